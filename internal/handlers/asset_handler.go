package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/damstudio/backend/internal/middleware"
	"github.com/damstudio/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AssetsService is the interface that wraps methods for Assets business logic.
//
// Every method takes the calling Actor explicitly; the role policy is applied by the service.
type AssetsService interface {
	// Method CreateAsset uploads a new asset whose file becomes version 1.
	//
	// Only editors may create assets. A missing asset number is generated.
	// A duplicate asset number returns models.ErrConflict.
	CreateAsset(ctx context.Context, actor models.Actor, req models.CreateAssetRequest, file *models.FileUpload) (*models.Asset, error)
	// Method GetAsset retrieves one asset with its tags, or models.ErrNotFound.
	GetAsset(ctx context.Context, actor models.Actor, id int64) (*models.Asset, error)
	// Method ListAssets retrieves a page of assets matching the filter.
	//
	// Page and page size are normalized by the service; an unknown asset type returns models.ErrValidation.
	ListAssets(ctx context.Context, actor models.Actor, filter models.AssetFilter) ([]models.Asset, error)
	// Method UpdateAsset applies a metadata edit. Only the editor who uploaded the asset may edit it.
	UpdateAsset(ctx context.Context, actor models.Actor, id int64, req *models.UpdateAssetRequest) (*models.Asset, error)
	// Method DeleteAsset removes an asset with all of its versions. Admins and the owning editor may delete.
	DeleteAsset(ctx context.Context, actor models.Actor, id int64) error
	// Method ListVersions retrieves the version history of an asset, newest first.
	ListVersions(ctx context.Context, actor models.Actor, assetID int64) ([]models.AssetVersion, error)
	// Method LatestVersion retrieves the current version of an asset, or models.ErrNotFound when it has none.
	LatestVersion(ctx context.Context, actor models.Actor, assetID int64) (*models.AssetVersion, error)
	// Method GetVersion retrieves one version by number, or models.ErrNotFound when it does not exist.
	GetVersion(ctx context.Context, actor models.Actor, assetID int64, number int) (*models.AssetVersion, error)
	// Method UploadVersion appends a new file revision and moves the head pointer to it.
	//
	// A lost version number race is retried once; a second loss returns models.ErrConflict.
	UploadVersion(ctx context.Context, actor models.Actor, assetID int64, file *models.FileUpload, note *string) (*models.AssetVersion, error)
	// Method RestoreVersion appends a new version carrying the file of version "number".
	//
	// The restored version itself is never modified. A missing version returns models.ErrNotFound.
	RestoreVersion(ctx context.Context, actor models.Actor, assetID int64, number int) (*models.AssetVersion, error)
	// Method Download opens the current file of an asset and counts the download.
	//
	// The caller must close the returned body.
	Download(ctx context.Context, actor models.Actor, assetID int64) (*models.Download, error)
	// Method TrackView counts a view at most once per viewer and debounce window.
	//
	// "actor" is nil for anonymous callers, who are identified by "fingerprint".
	TrackView(ctx context.Context, actor *models.Actor, fingerprint string, assetID int64) (*models.ViewResult, error)
}

const (
	multipartMemory = 32 << 20
	dateLayout      = "2006-01-02"
)

// AssetsHandler handles HTTP requests for assets and their versions
type AssetsHandler struct {
	BaseHandler
	service AssetsService
}

// NewAssetsHandler creates a new asset handler
func NewAssetsHandler(svc AssetsService, logger *zap.Logger) *AssetsHandler {
	return &AssetsHandler{
		service:     svc,
		BaseHandler: BaseHandler{logger: logger},
	}
}

// RegisterRoutes registers the asset routes that require an authenticated caller
func (h *AssetsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/assets", h.ListAssets)
	r.Post("/assets", h.CreateAsset)
	r.Get("/assets/{id}", h.GetAsset)
	r.Patch("/assets/{id}", h.UpdateAsset)
	r.Delete("/assets/{id}", h.DeleteAsset)
	r.Get("/assets/{id}/download", h.Download)
	r.Get("/assets/{id}/versions", h.ListVersions)
	r.Post("/assets/{id}/versions", h.UploadVersion)
	r.Get("/assets/{id}/versions/latest", h.LatestVersion)
	r.Get("/assets/{id}/versions/{version}", h.GetVersion)
	r.Post("/assets/{id}/versions/{version}/restore", h.RestoreVersion)
}

// RegisterPublicRoutes registers the asset routes that also accept anonymous callers
func (h *AssetsHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/assets/{id}/track_view", h.TrackView)
}

// ListAssets handles GET /api/v1/assets
// @Summary List assets
// @Description Get a page of assets filtered by type, uploader, tag and upload date
// @Tags assets
// @Produce json
// @Param asset_type query string false "Asset type: image, video, document, audio, 3d-model, other"
// @Param uploaded_by query int false "Uploader ID"
// @Param tag query int false "Tag ID"
// @Param date_from query string false "First upload day, YYYY-MM-DD"
// @Param date_to query string false "Last upload day, YYYY-MM-DD"
// @Param ordering query string false "upload_date, name, download_count or view_count, prefix - for descending"
// @Param page query int false "Page number, default: 1"
// @Param page_size query int false "Page size, default: 20, max: 100"
// @Success 200 {array} models.Asset
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/v1/assets [get]
func (h *AssetsHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	filter, err := parseAssetFilter(r.URL.Query())
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	assets, err := h.service.ListAssets(r.Context(), actor, filter)
	if err != nil {
		h.respondServiceError(w, r, err, "list assets")
		return
	}

	h.respondJSON(w, http.StatusOK, assets)
}

// CreateAsset handles POST /api/v1/assets
// @Summary Upload a new asset
// @Description Upload a file with its metadata; the file becomes version 1
// @Tags assets
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Asset file"
// @Param name formData string true "Asset name"
// @Param asset_type formData string false "Asset type, default: other"
// @Param description formData string false "Description"
// @Param brand formData string false "Brand, up to 100 characters"
// @Param asset_no formData string false "Asset number, generated when empty"
// @Param tag_ids formData string false "Comma separated tag IDs"
// @Success 201 {object} models.Asset
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 413 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/v1/assets [post]
func (h *AssetsHandler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	upload, cleanup, err := parseUpload(r)
	if err != nil {
		h.respondUploadError(w, r, err)
		return
	}
	defer cleanup()

	tagIDs, err := parseIDList(r.MultipartForm.Value["tag_ids"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := models.CreateAssetRequest{
		Name:        r.FormValue("name"),
		AssetNo:     r.FormValue("asset_no"),
		Type:        models.AssetType(r.FormValue("asset_type")),
		Description: r.FormValue("description"),
		Brand:       r.FormValue("brand"),
		TagIDs:      tagIDs,
	}

	asset, err := h.service.CreateAsset(r.Context(), actor, req, upload)
	if err != nil {
		h.respondServiceError(w, r, err, "create asset")
		return
	}

	h.respondJSON(w, http.StatusCreated, asset)
}

// GetAsset handles GET /api/v1/assets/{id}
// @Summary Get asset by ID
// @Tags assets
// @Produce json
// @Param id path int true "Asset ID"
// @Success 200 {object} models.Asset
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/assets/{id} [get]
func (h *AssetsHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	id, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}

	asset, err := h.service.GetAsset(r.Context(), actor, id)
	if err != nil {
		h.respondServiceError(w, r, err, "get asset")
		return
	}

	h.respondJSON(w, http.StatusOK, asset)
}

// UpdateAsset handles PATCH /api/v1/assets/{id}
// @Summary Update asset metadata
// @Description Edit name, description, brand, type or tags; only the uploading editor may edit
// @Tags assets
// @Accept json
// @Produce json
// @Param id path int true "Asset ID"
// @Param request body models.UpdateAssetRequest true "Fields to change"
// @Success 200 {object} models.Asset
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/assets/{id} [patch]
func (h *AssetsHandler) UpdateAsset(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	id, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}

	var req models.UpdateAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	asset, err := h.service.UpdateAsset(r.Context(), actor, id, &req)
	if err != nil {
		h.respondServiceError(w, r, err, "update asset")
		return
	}

	h.respondJSON(w, http.StatusOK, asset)
}

// DeleteAsset handles DELETE /api/v1/assets/{id}
// @Summary Delete asset
// @Description Delete an asset with all of its versions
// @Tags assets
// @Param id path int true "Asset ID"
// @Success 204
// @Failure 403 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/v1/assets/{id} [delete]
func (h *AssetsHandler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	id, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteAsset(r.Context(), actor, id); err != nil {
		h.respondServiceError(w, r, err, "delete asset")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Download handles GET /api/v1/assets/{id}/download
// @Summary Download asset file
// @Description Stream the current version file and count the download
// @Tags assets
// @Produce octet-stream
// @Param id path int true "Asset ID"
// @Success 200 {file} file
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/v1/assets/{id}/download [get]
func (h *AssetsHandler) Download(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	id, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}

	download, err := h.service.Download(r.Context(), actor, id)
	if err != nil {
		h.respondServiceError(w, r, err, "download asset")
		return
	}
	defer download.Body.Close()

	w.Header().Set("Content-Type", download.ContentType)
	w.Header().Set("Content-Disposition", contentDisposition(download.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, download.Body); err != nil {
		h.logger.Warn("download interrupted",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Int64("asset_id", id),
			zap.Error(err),
		)
	}
}

// TrackView handles POST /api/v1/assets/{id}/track_view
// @Summary Track a view
// @Description Count a view of the asset at most once per viewer in the debounce window
// @Tags assets
// @Produce json
// @Param id path int true "Asset ID"
// @Success 200 {object} models.ViewResult
// @Failure 404 {object} map[string]string
// @Router /api/v1/assets/{id}/track_view [post]
func (h *AssetsHandler) TrackView(w http.ResponseWriter, r *http.Request) {
	id, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}

	var actor *models.Actor
	if a, ok := middleware.GetActor(r.Context()); ok {
		actor = &a
	}

	result, err := h.service.TrackView(r.Context(), actor, middleware.ClientFingerprint(r), id)
	if err != nil {
		h.respondServiceError(w, r, err, "track view")
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// respondUploadError reports a multipart parsing failure
func (h *AssetsHandler) respondUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		h.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, http.ErrMissingFile):
		h.respondError(w, http.StatusBadRequest, "file is required")
	default:
		h.respondError(w, http.StatusBadRequest, "invalid multipart form")
	}
}

// parseUpload reads the multipart form and opens its "file" part.
// The returned cleanup closes the file and removes temporary parts.
func parseUpload(r *http.Request) (*models.FileUpload, func(), error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, nil, err
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		r.MultipartForm.RemoveAll()
		return nil, nil, err
	}

	cleanup := func() {
		file.Close()
		r.MultipartForm.RemoveAll()
	}

	return &models.FileUpload{
		Name:        header.Filename,
		ContentType: partContentType(header),
		Reader:      file,
	}, cleanup, nil
}

func partContentType(header *multipart.FileHeader) string {
	if ct := header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// parseIDList accepts repeated values and comma separated lists
func parseIDList(values []string) ([]int64, error) {
	var ids []int64
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id < 1 {
				return nil, fmt.Errorf("invalid tag id %q", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func parseAssetFilter(q url.Values) (models.AssetFilter, error) {
	filter := models.AssetFilter{
		Type:     models.AssetType(q.Get("asset_type")),
		Ordering: q.Get("ordering"),
	}

	var err error
	if filter.OwnerID, err = optionalID(q, "uploaded_by"); err != nil {
		return filter, err
	}
	if filter.TagID, err = optionalID(q, "tag"); err != nil {
		return filter, err
	}
	if filter.DateFrom, err = optionalDate(q, "date_from"); err != nil {
		return filter, err
	}
	if filter.DateTo, err = optionalDate(q, "date_to"); err != nil {
		return filter, err
	}
	if filter.Page, err = optionalInt(q, "page"); err != nil {
		return filter, err
	}
	if filter.PageSize, err = optionalInt(q, "page_size"); err != nil {
		return filter, err
	}
	return filter, nil
}

func optionalID(q url.Values, name string) (*int64, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s parameter", name)
	}
	return &id, nil
}

func optionalInt(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return n, nil
}

func optionalDate(q url.Values, name string) (*time.Time, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	day, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s parameter, expected YYYY-MM-DD", name)
	}
	return &day, nil
}

// contentDisposition builds an attachment header that survives non-ASCII filenames
func contentDisposition(filename string) string {
	fallback := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, filename)
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, fallback, encodeExtValue(filename))
}

// encodeExtValue percent-encodes every byte of s outside the RFC 5987 attr-char set
func encodeExtValue(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isAttrChar(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isAttrChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("!#$&+-.^_`|~", c) >= 0
}
