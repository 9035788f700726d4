package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// ListVersions handles GET /api/v1/assets/{id}/versions
// @Summary List asset versions
// @Description Get the version history of an asset, newest first
// @Tags versions
// @Produce json
// @Param id path int true "Asset ID"
// @Success 200 {array} models.AssetVersion
// @Failure 404 {object} map[string]string
// @Router /api/v1/assets/{id}/versions [get]
func (h *AssetsHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	id, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}

	versions, err := h.service.ListVersions(r.Context(), actor, id)
	if err != nil {
		h.respondServiceError(w, r, err, "list versions")
		return
	}

	h.respondJSON(w, http.StatusOK, versions)
}

// LatestVersion handles GET /api/v1/assets/{id}/versions/latest
// @Summary Get latest version
// @Tags versions
// @Produce json
// @Param id path int true "Asset ID"
// @Success 200 {object} models.AssetVersion
// @Failure 404 {object} map[string]string
// @Router /api/v1/assets/{id}/versions/latest [get]
func (h *AssetsHandler) LatestVersion(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	id, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}

	version, err := h.service.LatestVersion(r.Context(), actor, id)
	if err != nil {
		h.respondServiceError(w, r, err, "get latest version")
		return
	}

	h.respondJSON(w, http.StatusOK, version)
}

// GetVersion handles GET /api/v1/assets/{id}/versions/{version}
// @Summary Get version by number
// @Tags versions
// @Produce json
// @Param id path int true "Asset ID"
// @Param version path int true "Version number"
// @Success 200 {object} models.AssetVersion
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/assets/{id}/versions/{version} [get]
func (h *AssetsHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	id, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}
	number, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid version parameter")
		return
	}

	version, err := h.service.GetVersion(r.Context(), actor, id, number)
	if err != nil {
		h.respondServiceError(w, r, err, "get version")
		return
	}

	h.respondJSON(w, http.StatusOK, version)
}

// UploadVersion handles POST /api/v1/assets/{id}/versions
// @Summary Upload a new version
// @Description Append a new file revision to the asset and make it current
// @Tags versions
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Asset ID"
// @Param file formData file true "Version file"
// @Param note formData string false "Version note, up to 255 characters"
// @Success 201 {object} models.AssetVersion
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 413 {object} map[string]string
// @Router /api/v1/assets/{id}/versions [post]
func (h *AssetsHandler) UploadVersion(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	id, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}

	upload, cleanup, err := parseUpload(r)
	if err != nil {
		h.respondUploadError(w, r, err)
		return
	}
	defer cleanup()

	var note *string
	if values, ok := r.MultipartForm.Value["note"]; ok && len(values) > 0 {
		note = &values[0]
	}

	version, err := h.service.UploadVersion(r.Context(), actor, id, upload, note)
	if err != nil {
		h.respondServiceError(w, r, err, "upload version")
		return
	}

	h.respondJSON(w, http.StatusCreated, version)
}

// RestoreVersion handles POST /api/v1/assets/{id}/versions/{version}/restore
// @Summary Restore a version
// @Description Append a new version carrying the file of an earlier one
// @Tags versions
// @Produce json
// @Param id path int true "Asset ID"
// @Param version path int true "Version number to restore"
// @Success 201 {object} models.AssetVersion
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /api/v1/assets/{id}/versions/{version}/restore [post]
func (h *AssetsHandler) RestoreVersion(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	id, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}
	number, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid version parameter")
		return
	}

	version, err := h.service.RestoreVersion(r.Context(), actor, id, number)
	if err != nil {
		h.respondServiceError(w, r, err, "restore version")
		return
	}

	h.respondJSON(w, http.StatusCreated, version)
}
