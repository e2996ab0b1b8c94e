package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/mimelyc/subtrans/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

// writeErrorFromErr maps err to a status code: a benign apperr.UserError
// becomes 400, everything else becomes 500.
func writeErrorFromErr(w http.ResponseWriter, err error) {
	if apperr.IsUserError(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
