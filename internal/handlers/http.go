package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/adi-253/webchat/backend/internal/gateway"
	"github.com/go-chi/chi/v5"
)

// Mount registers every API route on a chi router.
func (a *API) Mount(r chi.Router) {
	for _, route := range a.Routes() {
		r.Method(route.Method, route.Resource, a.httpHandler(route))
	}
}

func (a *API) httpHandler(route Route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := gateway.FromHTTP(r, route.Resource)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, gateway.ErrorBody{Message: "Unable to read request body."})
			return
		}
		status, body := a.Serve(r.Context(), route.Operation, req)
		writeJSON(w, status, body)
	}
}

// writeJSON is a helper function to write JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
