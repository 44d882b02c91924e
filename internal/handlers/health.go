package handlers

import (
	"net/http"
)

// HealthResponse represents the health check response structure.
type HealthResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Provider string `json:"provider"`
}

// HealthCheck returns the GET /health handler.
// It reports the server's health status for monitoring and load balancer
// checks, and which cloud provider the services run on.
func HealthCheck(provider string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Message:  "webchat backend is running",
			Provider: provider,
		})
	}
}
