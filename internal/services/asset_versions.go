package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/damstudio/backend/internal/metrics"
	"github.com/damstudio/backend/internal/models"
	"github.com/damstudio/backend/internal/policy"
	"go.uber.org/zap"
)

// ListVersions retrieves the version history of an asset, newest first
func (s *assetService) ListVersions(ctx context.Context, actor models.Actor, assetID int64) ([]models.AssetVersion, error) {
	asset, err := s.assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, policy.OpRead, asset); err != nil {
		return nil, err
	}

	versions, err := s.versions.List(ctx, assetID)
	if err != nil {
		return nil, err
	}
	for i := range versions {
		s.decorateVersion(&versions[i])
	}
	return versions, nil
}

// LatestVersion retrieves the current version of an asset
func (s *assetService) LatestVersion(ctx context.Context, actor models.Actor, assetID int64) (*models.AssetVersion, error) {
	asset, err := s.assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, policy.OpRead, asset); err != nil {
		return nil, err
	}

	version, err := s.versions.Latest(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return s.decorateVersion(version), nil
}

// GetVersion retrieves one version of an asset by its number
func (s *assetService) GetVersion(ctx context.Context, actor models.Actor, assetID int64, number int) (*models.AssetVersion, error) {
	if number < 1 {
		return nil, fmt.Errorf("version number must be positive: %w", models.ErrValidation)
	}
	asset, err := s.assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, policy.OpRead, asset); err != nil {
		return nil, err
	}

	version, err := s.versions.GetByNumber(ctx, assetID, number)
	if err != nil {
		return nil, err
	}
	return s.decorateVersion(version), nil
}

// UploadVersion appends a new file revision to an asset and makes it current
func (s *assetService) UploadVersion(ctx context.Context, actor models.Actor, assetID int64, file *models.FileUpload, note *string) (*models.AssetVersion, error) {
	if err := validateFile(file); err != nil {
		return nil, err
	}
	note, err := normalizeNote(note)
	if err != nil {
		return nil, err
	}

	asset, err := s.assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, policy.OpUploadVersion, asset); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTxTimeout(ctx)
	defer cancel()

	uploaderID := actor.ID
	nv, stored := s.storeFile(file)
	nv.UploaderID = &uploaderID
	nv.Note = note

	version, err := s.appendWithRetry(ctx, assetID, metrics.SourceUpload, func() (*models.AssetVersion, error) {
		return s.versions.Append(ctx, assetID, nv)
	})
	if err != nil {
		s.cleanupBlob(ctx, *stored)
		return nil, err
	}

	s.logger.Info("asset version uploaded",
		zap.Int64("asset_id", assetID),
		zap.Int("version", version.Version),
		zap.Int64("actor_id", actor.ID),
	)
	return s.decorateVersion(version), nil
}

// RestoreVersion appends a new version carrying the file of an earlier one.
// The restored version is left untouched, so the history records that a restore happened.
func (s *assetService) RestoreVersion(ctx context.Context, actor models.Actor, assetID int64, number int) (*models.AssetVersion, error) {
	if number < 1 {
		return nil, fmt.Errorf("version number must be positive: %w", models.ErrValidation)
	}

	asset, err := s.assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, policy.OpRestoreVersion, asset); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTxTimeout(ctx)
	defer cancel()

	uploaderID := actor.ID
	version, err := s.appendWithRetry(ctx, assetID, metrics.SourceRestore, func() (*models.AssetVersion, error) {
		return s.versions.Restore(ctx, assetID, number, &uploaderID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("asset version restored",
		zap.Int64("asset_id", assetID),
		zap.Int("from_version", number),
		zap.Int("version", version.Version),
		zap.Int64("actor_id", actor.ID),
	)
	return s.decorateVersion(version), nil
}

// appendWithRetry runs one allocate-and-insert unit and re-runs it once when the version number race was lost
func (s *assetService) appendWithRetry(ctx context.Context, assetID int64, source string, appendFn func() (*models.AssetVersion, error)) (*models.AssetVersion, error) {
	version, err := appendFn()
	if errors.Is(err, models.ErrConflict) && ctx.Err() == nil {
		s.metrics.VersionConflictsTotal.WithLabelValues(metrics.ConflictRetried).Inc()
		s.logger.Warn("version number taken by a concurrent writer, retrying",
			zap.Int64("asset_id", assetID),
			zap.String("source", source),
		)
		version, err = appendFn()
	}
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.metrics.VersionConflictsTotal.WithLabelValues(metrics.ConflictSurfaced).Inc()
		}
		return nil, err
	}

	s.metrics.VersionsAppendedTotal.WithLabelValues(source).Inc()
	return version, nil
}

func (s *assetService) decorateVersion(v *models.AssetVersion) *models.AssetVersion {
	if v.File != "" {
		v.FileURL = s.storage.URL(v.File)
	}
	return v
}

// normalizeNote trims the note; a blank note is stored as NULL
func normalizeNote(note *string) (*string, error) {
	if note == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*note)
	if trimmed == "" {
		return nil, nil
	}
	if len([]rune(trimmed)) > models.MaxNoteLength {
		return nil, fmt.Errorf("note is longer than %d characters: %w", models.MaxNoteLength, models.ErrValidation)
	}
	return &trimmed, nil
}
