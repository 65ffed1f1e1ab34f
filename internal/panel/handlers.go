package panel

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rendis/ruleflow/internal/logging"
	"github.com/rendis/ruleflow/internal/view"
	"github.com/rendis/ruleflow/pkg/schema"
)

// handleCreateSession allocates a new session and returns its ID.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctrl := s.sessions.create()
	s.deps.Logger.InfoContext(
		logging.WithSessionID(r.Context(), ctrl.SessionID()), "session created")
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": ctrl.SessionID()})
}

// handleDeleteSession discards a session and its view state.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.sessions.remove(id) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

// session resolves the session from the path, writing a 404 when absent.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*view.Controller, bool) {
	ctrl, ok := s.sessions.get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
	}
	return ctrl, ok
}

// handleLoadSubject loads a subject's rules into the session and returns the
// fresh diagram. A superseded load returns 409; the newer load owns the state.
func (s *Server) handleLoadSubject(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}

	var body struct {
		Subject string `json:"subject"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	ctx := logging.WithIDs(r.Context(), ctrl.SessionID(), body.Subject, "")
	diagram, err := ctrl.LoadSubject(ctx, body.Subject)
	if err != nil {
		if errors.Is(err, view.ErrSuperseded) {
			writeError(w, http.StatusConflict, "superseded by a newer load")
			return
		}
		// Zero rules for a valid subject is guidance, not a failure. The
		// previous diagram stays untouched.
		if schema.CodeOf(err) == schema.ErrCodeEmptyResult {
			writeJSON(w, http.StatusOK, map[string]any{
				"subject": body.Subject,
				"status":  "empty",
				"message": fmt.Sprintf("no rules found for subject %q", body.Subject),
			})
			return
		}
		writeFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, diagram)
}

// handleToggleGroup flips a phase group's collapsed state.
func (s *Server) handleToggleGroup(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}

	var body struct {
		GroupID string `json:"group_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, ctrl.ToggleGroup(r.Context(), body.GroupID))
}

// handleSelectRule sets or clears the selected rule.
func (s *Server) handleSelectRule(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}

	var body struct {
		RuleID string `json:"rule_id"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, ctrl.SelectRule(r.Context(), body.RuleID))
}

// handleSetFilter updates one visibility filter.
func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}

	var body struct {
		Name  string `json:"name"`
		Value bool   `json:"value"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	diagram, err := ctrl.SetFilter(r.Context(), body.Name, body.Value)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diagram)
}

// handleDiagram returns the session's current diagram.
func (s *Server) handleDiagram(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}

	diagram := ctrl.Diagram()
	if diagram == nil {
		writeError(w, http.StatusNotFound, "no subject loaded")
		return
	}
	writeJSON(w, http.StatusOK, diagram)
}

// handleState returns the session's view state snapshot.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ctrl.State())
}

// handleStatus reports whether auto-refresh is configured and, when it is,
// the next scheduled refresh time.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"auto_refresh": false}
	if s.deps.Refresher != nil {
		body["auto_refresh"] = true
		if next := s.deps.Refresher.NextRun(); !next.IsZero() {
			body["next_refresh"] = next
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// handleListSubjects lists every subject known to the store.
func (s *Server) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := s.deps.Store.ListSubjects(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subjects": subjects})
}

// handleRecentSubjects returns the recently viewed subjects, newest first.
func (s *Server) handleRecentSubjects(w http.ResponseWriter, r *http.Request) {
	recent, err := s.deps.Store.RecentSubjects(r.Context())
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subjects": recent})
}

// handleDeleteRecentSubject removes one entry from the recent history.
func (s *Server) handleDeleteRecentSubject(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.deps.Store.DeleteRecentSubject(r.Context(), name); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name})
}

// handleRuleScript fetches a rule's script body on demand. Scripts are
// excluded from rule listings and loaded lazily when the detail pane asks.
func (s *Server) handleRuleScript(w http.ResponseWriter, r *http.Request) {
	ruleID := r.PathValue("id")
	script, err := s.deps.Store.FetchScript(r.Context(), ruleID)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"rule_id": ruleID, "script_body": script})
}
