package handler

import "net/http"

// HealthHandler reports liveness.
type HealthHandler struct {
	name string
	env  string
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(name, env string) *HealthHandler {
	return &HealthHandler{name: name, env: env}
}

type healthResponse struct {
	OK   bool   `json:"ok"`
	Name string `json:"name"`
	Env  string `json:"env"`
}

// Health returns {ok, name, env}.
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, healthResponse{OK: true, Name: h.name, Env: h.env})
}
