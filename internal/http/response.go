package httpapi

import (
	"encoding/json"
	"net/http"

	"linova-go/internal/logger"
	"linova-go/internal/services"
)

type ErrorResponse struct {
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorResponse{Message: message})
}

// writeServiceError answers with the status carried by a ServiceError, or
// logs err and answers 500.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, op string, err error) {
	if svcErr, ok := services.AsServiceError(err); ok {
		WriteError(w, svcErr.Status, svcErr.Message)
		return
	}
	log.Error(op+" failed", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal server error")
}
