package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/damstudio/backend/internal/metrics"
	"github.com/damstudio/backend/internal/models"
	"github.com/damstudio/backend/internal/policy"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AssetRepository is the interface that wraps methods for the assets table and its tag links
type AssetRepository interface {
	// Method Create inserts a new asset together with its tags and its first version.
	//
	// The first version is appended inside the same transaction, so the returned version and the
	// asset head pointer always agree. A duplicate asset number returns models.ErrConflict.
	Create(ctx context.Context, asset *models.Asset, tagIDs []int64, nv models.NewVersion) (*models.AssetVersion, error)
	// Method GetByID retrieves an asset with its tags or models.ErrNotFound.
	GetByID(ctx context.Context, id int64) (*models.Asset, error)
	// Method List retrieves a page of assets matching the filter.
	List(ctx context.Context, filter models.AssetFilter) ([]models.Asset, error)
	// Method UpdateMetadata applies a metadata edit. The tag set is replaced only when req.TagIDs is set.
	UpdateMetadata(ctx context.Context, id int64, req *models.UpdateAssetRequest) error
	// Method Delete removes an asset with its versions and tag links.
	//
	// It returns the blob keys referenced by the removed versions so the caller can clean them up.
	Delete(ctx context.Context, id int64) ([]string, error)
	// Method IncrementDownload atomically adds one to the download counter.
	IncrementDownload(ctx context.Context, id int64) error
	// Method IncrementView atomically adds one to the view counter.
	IncrementView(ctx context.Context, id int64) error
	// Method GetViewCount retrieves the current view counter or models.ErrNotFound.
	GetViewCount(ctx context.Context, id int64) (int64, error)
}

// VersionRepository is the interface that wraps methods for the append-only version ledger
type VersionRepository interface {
	// Method List retrieves all versions of an asset, newest first.
	List(ctx context.Context, assetID int64) ([]models.AssetVersion, error)
	// Method Latest retrieves the highest-numbered version, or models.ErrNotFound when there is none.
	Latest(ctx context.Context, assetID int64) (*models.AssetVersion, error)
	// Method GetByNumber retrieves one version, or models.ErrNotFound when the number was never allocated.
	GetByNumber(ctx context.Context, assetID int64, number int) (*models.AssetVersion, error)
	// Method Append allocates the next version number, records the version and moves the head pointer
	// in one transaction. A lost number race returns models.ErrConflict and nothing is written.
	Append(ctx context.Context, assetID int64, nv models.NewVersion) (*models.AssetVersion, error)
	// Method Restore appends a new version reusing the file of version target.
	// A missing target returns models.ErrNotFound.
	Restore(ctx context.Context, assetID int64, target int, uploaderID *int64) (*models.AssetVersion, error)
}

// Storage is the blob store holding version files
type Storage interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// ViewDebouncer collapses repeated views of the same viewer inside a time window
type ViewDebouncer interface {
	// Claim reports whether the key was free; a true result reserves it for the window.
	Claim(ctx context.Context, key string) (bool, error)
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxPage         = 1_000_000

	maxNameLength     = 200
	maxAssetNoLength  = 50
	maxBrandLength    = 100
	maxFileNameLength = 255

	initialVersionNote = "initial upload"
)

type assetService struct {
	assets    AssetRepository
	versions  VersionRepository
	storage   Storage
	debouncer ViewDebouncer
	metrics   *metrics.Metrics
	txTimeout time.Duration
	logger    *zap.Logger
}

// NewAssetService creates a new asset service.
// txTimeout bounds every ledger transaction; zero disables the bound.
func NewAssetService(
	assets AssetRepository,
	versions VersionRepository,
	storage Storage,
	debouncer ViewDebouncer,
	m *metrics.Metrics,
	txTimeout time.Duration,
	logger *zap.Logger,
) *assetService {
	return &assetService{
		assets:    assets,
		versions:  versions,
		storage:   storage,
		debouncer: debouncer,
		metrics:   m,
		txTimeout: txTimeout,
		logger:    logger,
	}
}

// CreateAsset uploads a new asset; its file becomes version 1
func (s *assetService) CreateAsset(ctx context.Context, actor models.Actor, req models.CreateAssetRequest, file *models.FileUpload) (*models.Asset, error) {
	if err := s.authorize(actor, policy.OpCreate, nil); err != nil {
		return nil, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.AssetNo = strings.TrimSpace(req.AssetNo)
	if req.Type == "" {
		req.Type = models.AssetTypeOther
	}
	if err := validateCreate(req); err != nil {
		return nil, err
	}
	if err := validateFile(file); err != nil {
		return nil, err
	}
	if req.AssetNo == "" {
		req.AssetNo = generateAssetNo()
	}

	ownerID := actor.ID
	asset := &models.Asset{
		Name:        req.Name,
		AssetNo:     req.AssetNo,
		Type:        req.Type,
		Description: req.Description,
		Brand:       strings.TrimSpace(req.Brand),
		OwnerID:     &ownerID,
	}

	ctx, cancel := s.withTxTimeout(ctx)
	defer cancel()

	note := initialVersionNote
	nv, stored := s.storeFile(file)
	nv.UploaderID = &ownerID
	nv.Note = &note

	if _, err := s.assets.Create(ctx, asset, req.TagIDs, nv); err != nil {
		s.cleanupBlob(ctx, *stored)
		return nil, err
	}
	s.metrics.VersionsAppendedTotal.WithLabelValues(metrics.SourceCreate).Inc()

	s.logger.Info("asset created",
		zap.Int64("asset_id", asset.ID),
		zap.String("asset_no", asset.AssetNo),
		zap.Int64("actor_id", actor.ID),
	)

	created, err := s.assets.GetByID(ctx, asset.ID)
	if err != nil {
		return nil, err
	}
	return s.decorateAsset(created), nil
}

// GetAsset retrieves one asset with its tags
func (s *assetService) GetAsset(ctx context.Context, actor models.Actor, id int64) (*models.Asset, error) {
	asset, err := s.assets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, policy.OpRead, asset); err != nil {
		return nil, err
	}
	return s.decorateAsset(asset), nil
}

// ListAssets retrieves a page of assets matching the filter
func (s *assetService) ListAssets(ctx context.Context, actor models.Actor, filter models.AssetFilter) ([]models.Asset, error) {
	if err := s.authorize(actor, policy.OpRead, nil); err != nil {
		return nil, err
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, fmt.Errorf("unknown asset type %q: %w", filter.Type, models.ErrValidation)
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
	if filter.Page > maxPage {
		return nil, fmt.Errorf("page must not exceed %d: %w", maxPage, models.ErrValidation)
	}

	assets, err := s.assets.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range assets {
		s.decorateAsset(&assets[i])
	}
	return assets, nil
}

// UpdateAsset applies a metadata edit; only the owning editor may do so
func (s *assetService) UpdateAsset(ctx context.Context, actor models.Actor, id int64, req *models.UpdateAssetRequest) (*models.Asset, error) {
	if req == nil {
		return nil, fmt.Errorf("empty update: %w", models.ErrValidation)
	}

	asset, err := s.assets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, policy.OpUpdate, asset); err != nil {
		return nil, err
	}

	if err := validateUpdate(req); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTxTimeout(ctx)
	defer cancel()

	if err := s.assets.UpdateMetadata(ctx, id, req); err != nil {
		return nil, err
	}

	updated, err := s.assets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.decorateAsset(updated), nil
}

// DeleteAsset removes an asset with all of its versions.
// Version files are removed after the rows are gone; failures there are only logged.
func (s *assetService) DeleteAsset(ctx context.Context, actor models.Actor, id int64) error {
	asset, err := s.assets.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(actor, policy.OpDelete, asset); err != nil {
		return err
	}

	txCtx, cancel := s.withTxTimeout(ctx)
	files, err := s.assets.Delete(txCtx, id)
	cancel()
	if err != nil {
		return err
	}

	for _, file := range files {
		s.cleanupBlob(ctx, file)
	}

	s.logger.Info("asset deleted", zap.Int64("asset_id", id), zap.Int64("actor_id", actor.ID), zap.Int("files", len(files)))
	return nil
}

// authorize consults the role policy; asset is nil for operations without a target
func (s *assetService) authorize(actor models.Actor, op policy.Operation, asset *models.Asset) error {
	isOwner := asset != nil && asset.IsOwnedBy(actor.ID)
	if policy.Can(actor.Role, op, isOwner) {
		return nil
	}

	s.metrics.PermissionDeniedTotal.WithLabelValues(string(op)).Inc()

	fields := []zap.Field{
		zap.String("operation", string(op)),
		zap.Int64("actor_id", actor.ID),
		zap.String("role", string(models.ResolveRole(string(actor.Role)))),
	}
	if asset != nil {
		fields = append(fields, zap.Int64("asset_id", asset.ID), zap.Bool("owner", isOwner))
	}
	s.logger.Info("operation denied", fields...)

	return fmt.Errorf("%s: %w", op, models.ErrPermissionDenied)
}

func (s *assetService) withTxTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.txTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.txTimeout)
}

// storeFile returns a NewVersion whose Store callback streams the upload into the blob store.
// The returned pointer holds the key once the blob has been written.
func (s *assetService) storeFile(file *models.FileUpload) (models.NewVersion, *string) {
	stored := new(string)
	nv := models.NewVersion{
		FileName: file.Name,
		Store: func(ctx context.Context, key string) error {
			if _, err := s.storage.Put(ctx, key, file.Reader, file.ContentType); err != nil {
				return err
			}
			*stored = key
			return nil
		},
	}
	return nv, stored
}

// cleanupBlob removes a blob that no committed version references
func (s *assetService) cleanupBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.storage.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("failed to remove orphaned file", zap.String("file", key), zap.Error(err))
	}
}

func (s *assetService) decorateAsset(asset *models.Asset) *models.Asset {
	if asset.File != "" {
		asset.FileURL = s.storage.URL(asset.File)
	}
	if asset.Tags == nil {
		asset.Tags = []models.Tag{}
	}
	return asset
}

// generateAssetNo returns a fresh asset number of the form AST-XXXXXXXX
func generateAssetNo() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "AST-" + strings.ToUpper(id[:8])
}

func validateCreate(req models.CreateAssetRequest) error {
	if req.Name == "" {
		return fmt.Errorf("name is required: %w", models.ErrValidation)
	}
	if len([]rune(req.Name)) > maxNameLength {
		return fmt.Errorf("name is longer than %d characters: %w", maxNameLength, models.ErrValidation)
	}
	if len([]rune(req.AssetNo)) > maxAssetNoLength {
		return fmt.Errorf("asset number is longer than %d characters: %w", maxAssetNoLength, models.ErrValidation)
	}
	if len([]rune(strings.TrimSpace(req.Brand))) > maxBrandLength {
		return fmt.Errorf("brand is longer than %d characters: %w", maxBrandLength, models.ErrValidation)
	}
	if !req.Type.IsValid() {
		return fmt.Errorf("unknown asset type %q: %w", req.Type, models.ErrValidation)
	}
	return nil
}

func validateUpdate(req *models.UpdateAssetRequest) error {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return fmt.Errorf("name cannot be empty: %w", models.ErrValidation)
		}
		if len([]rune(name)) > maxNameLength {
			return fmt.Errorf("name is longer than %d characters: %w", maxNameLength, models.ErrValidation)
		}
		req.Name = &name
	}
	if req.Brand != nil {
		brand := strings.TrimSpace(*req.Brand)
		if len([]rune(brand)) > maxBrandLength {
			return fmt.Errorf("brand is longer than %d characters: %w", maxBrandLength, models.ErrValidation)
		}
		req.Brand = &brand
	}
	if req.Type != nil && !req.Type.IsValid() {
		return fmt.Errorf("unknown asset type %q: %w", *req.Type, models.ErrValidation)
	}
	return nil
}

func validateFile(file *models.FileUpload) error {
	if file == nil || file.Reader == nil {
		return fmt.Errorf("file is required: %w", models.ErrValidation)
	}
	if len(file.Name) > maxFileNameLength {
		return fmt.Errorf("file name is longer than %d characters: %w", maxFileNameLength, models.ErrValidation)
	}
	return nil
}
