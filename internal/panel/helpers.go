package panel

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rendis/ruleflow/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a plain JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFlowError maps a structured error onto an HTTP status and serializes
// it with its code and details intact.
func writeFlowError(w http.ResponseWriter, err error) {
	var fe *schema.FlowError
	if !errors.As(err, &fe) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	body := map[string]any{
		"error": fe.Message,
		"code":  fe.Code,
	}
	if fe.RuleID != "" {
		body["rule_id"] = fe.RuleID
	}
	if len(fe.Details) > 0 {
		body["details"] = fe.Details
	}
	writeJSON(w, statusForCode(fe.Code), body)
}

func statusForCode(code string) int {
	switch code {
	case schema.ErrCodeValidation, schema.ErrCodeInputMissing:
		return http.StatusBadRequest
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeExecution:
		return http.StatusUnprocessableEntity
	case schema.ErrCodeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody decodes a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
