package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/meridianrisk/exposure-engine/internal/apperrors"
)

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps an error to its apperrors.HTTPStatus and renders the
// standard envelope, always carrying request_id per spec.md §7.
func writeError(w http.ResponseWriter, requestID string, err error) {
	status := apperrors.HTTPStatus(err)
	body := map[string]any{"error": err.Error(), "request_id": requestID}
	if ae, ok := apperrors.As(err); ok {
		body["kind"] = string(ae.Kind)
		if len(ae.Details) > 0 {
			body["details"] = ae.Details
		}
	}
	writeJSON(w, status, body)
}
