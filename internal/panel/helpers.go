package panel

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rendis/iterview/internal/streaming"
	"github.com/rendis/iterview/pkg/schema"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeViewError maps err to an HTTP status by its ViewError code.
func writeViewError(w http.ResponseWriter, err error) {
	var ve *schema.ViewError
	if !errors.As(err, &ve) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	body := map[string]any{
		"error": ve.Message,
		"code":  ve.Code,
	}
	if len(ve.Details) > 0 {
		body["details"] = ve.Details
	}
	if ve.CorrelationID != "" {
		body["correlation_id"] = ve.CorrelationID
	}
	writeJSON(w, statusForCode(ve.Code), body)
}

func statusForCode(code string) int {
	switch code {
	case schema.ErrCodeValidation, schema.ErrCodeDecode:
		return http.StatusBadRequest
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeConflict:
		return http.StatusConflict
	case schema.ErrCodeClosed:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// filterFromQuery reads an UpdateFilter from the request query:
// session_id, correlation_id, types (comma separated) and filter (CEL).
func filterFromQuery(r *http.Request) streaming.UpdateFilter {
	q := r.URL.Query()
	f := streaming.UpdateFilter{
		SessionID:     q.Get("session_id"),
		CorrelationID: q.Get("correlation_id"),
		Expression:    q.Get("filter"),
	}
	if types := q.Get("types"); types != "" {
		for _, t := range strings.Split(types, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Types = append(f.Types, t)
			}
		}
	}
	return f
}

// queryBool reads a boolean query param; "1", "true" and "yes" are true.
func queryBool(r *http.Request, key string) bool {
	switch strings.ToLower(r.URL.Query().Get(key)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
