package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"novaupdate/internal/domain"
)

// writeJSON сериализует ответ
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[HTTP] Failed to encode response: %v", err)
	}
}

// writeDomainError сопоставляет ошибки движка с HTTP статусами
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrBadInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrRateLimited):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	default:
		log.Printf("[HTTP] Internal error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
