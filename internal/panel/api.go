package panel

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rendis/ruleflow/internal/expressions"
)

// handleImport validates a rule document and atomically replaces the
// subject's rules in the store.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
		return
	}

	doc, err := s.deps.Validator.ValidateRaw(raw)
	if err != nil {
		writeFlowError(w, err)
		return
	}

	if err := s.deps.Store.ReplaceRules(r.Context(), doc.Subject, doc.Rules); err != nil {
		writeFlowError(w, err)
		return
	}

	s.deps.Logger.Info("rules imported",
		"subject", doc.Subject,
		"rule_count", len(doc.Rules))
	writeJSON(w, http.StatusCreated, map[string]any{
		"subject":    doc.Subject,
		"rule_count": len(doc.Rules),
	})
}

type previewRequest struct {
	Expression string                   `json:"expression"`
	Scope      expressions.PreviewScope `json:"scope"`
}

type previewFunc func(ctx context.Context, expression string, scope expressions.PreviewScope) (any, error)

// handlePreviewCondition evaluates a CEL condition against a sample scope.
func (s *Server) handlePreviewCondition(w http.ResponseWriter, r *http.Request) {
	s.preview(w, r, s.deps.Previewer.PreviewCondition)
}

// handlePreviewFilter evaluates an Expr filter against a sample scope.
func (s *Server) handlePreviewFilter(w http.ResponseWriter, r *http.Request) {
	s.preview(w, r, s.deps.Previewer.PreviewFilter)
}

func (s *Server) preview(w http.ResponseWriter, r *http.Request, eval previewFunc) {
	var body previewRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	result, err := eval(r.Context(), body.Expression, body.Scope)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// handleProject runs a jq expression over a subject's rule collection.
func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Subject    string `json:"subject"`
		Expression string `json:"expression"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	rules, err := s.deps.Store.FetchRules(r.Context(), body.Subject)
	if err != nil {
		writeFlowError(w, err)
		return
	}

	results, err := s.deps.Previewer.Project(r.Context(), body.Expression, body.Subject, rules)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
