package services

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strconv"
	"strings"

	"github.com/damstudio/backend/internal/cache"
	"github.com/damstudio/backend/internal/metrics"
	"github.com/damstudio/backend/internal/models"
	"github.com/damstudio/backend/internal/policy"
	"go.uber.org/zap"
)

const defaultContentType = "application/octet-stream"

// Download opens the current file of an asset and counts the download
func (s *assetService) Download(ctx context.Context, actor models.Actor, assetID int64) (*models.Download, error) {
	asset, err := s.assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, policy.OpRead, asset); err != nil {
		return nil, err
	}
	if asset.File == "" {
		return nil, fmt.Errorf("asset %d has no file: %w", assetID, models.ErrNotFound)
	}

	body, err := s.storage.Open(ctx, asset.File)
	if err != nil {
		s.logger.Error("failed to open asset file", zap.Int64("asset_id", assetID), zap.String("file", asset.File), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", models.ErrStorage, err)
	}

	if err := s.assets.IncrementDownload(ctx, assetID); err != nil {
		body.Close()
		return nil, err
	}
	s.metrics.DownloadsTotal.Inc()

	return &models.Download{
		Filename:    DownloadFilename(asset.Name, asset.File),
		ContentType: ContentTypeFor(asset.File),
		Body:        body,
	}, nil
}

// TrackView counts a view of an asset at most once per viewer and debounce window.
// actor is nil for anonymous viewers, who are told apart by fingerprint.
func (s *assetService) TrackView(ctx context.Context, actor *models.Actor, fingerprint string, assetID int64) (*models.ViewResult, error) {
	var viewer string
	switch {
	case actor != nil:
		viewer = "user:" + strconv.FormatInt(actor.ID, 10)
	case fingerprint != "":
		viewer = "anon:" + fingerprint
	default:
		return nil, fmt.Errorf("viewer identity is required: %w", models.ErrValidation)
	}

	count, err := s.assets.GetViewCount(ctx, assetID)
	if err != nil {
		return nil, err
	}

	claimed, err := s.debouncer.Claim(ctx, cache.ViewKey(assetID, viewer))
	if err != nil {
		s.logger.Warn("view debounce unavailable, counting view", zap.Int64("asset_id", assetID), zap.Error(err))
		claimed = true
	}
	if !claimed {
		s.metrics.ViewsTotal.WithLabelValues(metrics.ViewSuppressed).Inc()
		return &models.ViewResult{ViewCount: count, Counted: false}, nil
	}

	if err := s.assets.IncrementView(ctx, assetID); err != nil {
		return nil, err
	}
	s.metrics.ViewsTotal.WithLabelValues(metrics.ViewCounted).Inc()

	count, err = s.assets.GetViewCount(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return &models.ViewResult{ViewCount: count, Counted: true}, nil
}

// DownloadFilename returns the client-facing filename of an asset.
// The asset name is used, with the stored file's extension appended when the name has none.
func DownloadFilename(name, file string) string {
	base := strings.TrimSpace(name)
	if base == "" {
		base = path.Base(file)
	}
	if path.Ext(base) == "" {
		base += path.Ext(file)
	}
	return base
}

// ContentTypeFor guesses the content type of a stored file from its extension
func ContentTypeFor(file string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(file))); ct != "" {
		return ct
	}
	return defaultContentType
}
