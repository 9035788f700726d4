package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// MeHandler reports the identity and role of the caller
type MeHandler struct {
	BaseHandler
}

// NewMeHandler creates a new current user handler
func NewMeHandler(logger *zap.Logger) *MeHandler {
	return &MeHandler{BaseHandler: BaseHandler{logger: logger}}
}

// RegisterRoutes registers all current user routes
func (h *MeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.Me)
}

// Me handles GET /api/v1/me
// @Summary Current user
// @Tags users
// @Produce json
// @Success 200 {object} models.Actor
// @Failure 401 {object} map[string]string
// @Router /api/v1/me [get]
func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	h.respondJSON(w, http.StatusOK, actor)
}
