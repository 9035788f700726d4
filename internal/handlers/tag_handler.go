package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/damstudio/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// TagsService is the interface that wraps methods for Tags business logic.
type TagsService interface {
	// Method ListTags retrieves all tags ordered by name.
	ListTags(ctx context.Context) ([]models.Tag, error)
	// Method GetTag retrieves a tag. A missing tag returns models.ErrNotFound.
	GetTag(ctx context.Context, id int64) (*models.Tag, error)
	// Method CreateTag creates a new tag.
	//
	// Any authenticated role may manage tags. An empty color falls back to models.DefaultTagColor.
	// A duplicate name returns models.ErrConflict.
	CreateTag(ctx context.Context, actor models.Actor, req models.CreateTagRequest) (*models.Tag, error)
	// Method UpdateTag renames or recolors a tag.
	UpdateTag(ctx context.Context, actor models.Actor, id int64, req models.UpdateTagRequest) (*models.Tag, error)
	// Method DeleteTag removes a tag and unlinks it from every asset.
	DeleteTag(ctx context.Context, actor models.Actor, id int64) error
}

// TagsHandler handles HTTP requests for tags
type TagsHandler struct {
	BaseHandler
	service TagsService
}

// NewTagsHandler creates a new tag handler
func NewTagsHandler(svc TagsService, logger *zap.Logger) *TagsHandler {
	return &TagsHandler{
		service:     svc,
		BaseHandler: BaseHandler{logger: logger},
	}
}

// RegisterRoutes registers all tag handler routes
func (h *TagsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/tags", h.ListTags)
	r.Post("/tags", h.CreateTag)
	r.Get("/tags/{id}", h.GetTag)
	r.Patch("/tags/{id}", h.UpdateTag)
	r.Delete("/tags/{id}", h.DeleteTag)
}

// ListTags handles GET /api/v1/tags
// @Summary List tags
// @Tags tags
// @Produce json
// @Success 200 {array} models.Tag
// @Failure 500 {object} map[string]string
// @Router /api/v1/tags [get]
func (h *TagsHandler) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.service.ListTags(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err, "list tags")
		return
	}

	h.respondJSON(w, http.StatusOK, tags)
}

// CreateTag handles POST /api/v1/tags
// @Summary Create tag
// @Tags tags
// @Accept json
// @Produce json
// @Param request body models.CreateTagRequest true "Tag name and #RRGGBB color"
// @Success 201 {object} models.Tag
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/tags [post]
func (h *TagsHandler) CreateTag(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	var req models.CreateTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tag, err := h.service.CreateTag(r.Context(), actor, req)
	if err != nil {
		h.respondServiceError(w, r, err, "create tag")
		return
	}

	h.respondJSON(w, http.StatusCreated, tag)
}

// GetTag handles GET /api/v1/tags/{id}
// @Summary Get tag
// @Tags tags
// @Produce json
// @Param id path int true "Tag ID"
// @Success 200 {object} models.Tag
// @Failure 404 {object} map[string]string
// @Router /api/v1/tags/{id} [get]
func (h *TagsHandler) GetTag(w http.ResponseWriter, r *http.Request) {
	id, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}

	tag, err := h.service.GetTag(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, err, "get tag")
		return
	}

	h.respondJSON(w, http.StatusOK, tag)
}

// UpdateTag handles PATCH /api/v1/tags/{id}
// @Summary Update tag
// @Tags tags
// @Accept json
// @Produce json
// @Param id path int true "Tag ID"
// @Param request body models.UpdateTagRequest true "New name and/or color"
// @Success 200 {object} models.Tag
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/tags/{id} [patch]
func (h *TagsHandler) UpdateTag(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	id, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}

	var req models.UpdateTagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tag, err := h.service.UpdateTag(r.Context(), actor, id, req)
	if err != nil {
		h.respondServiceError(w, r, err, "update tag")
		return
	}

	h.respondJSON(w, http.StatusOK, tag)
}

// DeleteTag handles DELETE /api/v1/tags/{id}
// @Summary Delete tag
// @Description Delete a tag; assets keep existing and only lose the link
// @Tags tags
// @Param id path int true "Tag ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /api/v1/tags/{id} [delete]
func (h *TagsHandler) DeleteTag(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	id, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteTag(r.Context(), actor, id); err != nil {
		h.respondServiceError(w, r, err, "delete tag")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
