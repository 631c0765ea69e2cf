// Package api exposes the session and GitHub proxy routes over HTTP.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/user/codeflare/pkg/logger"
)

// Response is the envelope wrapping every API response.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error().Err(err).Msg("Failed to write response")
	}
}

func ok(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Error: message})
}

func badRequest(w http.ResponseWriter, message string) {
	fail(w, http.StatusBadRequest, message)
}
