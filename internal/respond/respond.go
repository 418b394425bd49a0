// Package respond writes the JSON envelope every REST response uses:
// {"success": bool, "message": string, "data": any}.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pliu/chatcore/internal/apperr"
)

type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func JSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{Success: status < http.StatusBadRequest, Message: message, Data: data})
}

func OK(w http.ResponseWriter, message string, data any) {
	JSON(w, http.StatusOK, message, data)
}

// Error maps err onto its status. Unclassified errors are logged in full
// and reported with a generic message.
func Error(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status := apperr.Status(err)
	if status == http.StatusInternalServerError {
		log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	JSON(w, status, apperr.PublicMessage(err), nil)
}
