package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/damstudio/backend/internal/models"
	"go.uber.org/zap"
)

const versionColumns = `id, asset_id, version, file, note, uploader_id, created_at`

// versionRepository is the append-only ledger of asset file revisions
type versionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewVersionRepository creates a new version repository
func NewVersionRepository(db *sql.DB, logger *zap.Logger) *versionRepository {
	return &versionRepository{
		db:     db,
		logger: logger,
	}
}

// List retrieves all versions of an asset, newest first
func (r *versionRepository) List(ctx context.Context, assetID int64) ([]models.AssetVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM asset_versions
		WHERE asset_id = ?
		ORDER BY version DESC, created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, assetID)
	if err != nil {
		r.logger.Error("failed to query asset versions", zap.Int64("asset_id", assetID), zap.Error(err))
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	versions := []models.AssetVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			r.logger.Error("failed to scan asset version", zap.Error(err))
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, *v)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating asset versions", zap.Error(err))
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return versions, nil
}

// Latest retrieves the highest-numbered version of an asset
func (r *versionRepository) Latest(ctx context.Context, assetID int64) (*models.AssetVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM asset_versions
		WHERE asset_id = ?
		ORDER BY version DESC, created_at DESC
		LIMIT 1
	`

	v, err := scanVersion(r.db.QueryRowContext(ctx, query, assetID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("asset %d has no versions: %w", assetID, models.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get latest version", zap.Int64("asset_id", assetID), zap.Error(err))
		return nil, fmt.Errorf("failed to get latest version: %w", err)
	}

	return v, nil
}

// GetByNumber retrieves one version of an asset by its number
func (r *versionRepository) GetByNumber(ctx context.Context, assetID int64, number int) (*models.AssetVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM asset_versions
		WHERE asset_id = ? AND version = ?
		LIMIT 1
	`

	v, err := scanVersion(r.db.QueryRowContext(ctx, query, assetID, number))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("version %d of asset %d: %w", number, assetID, models.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get version", zap.Int64("asset_id", assetID), zap.Int("version", number), zap.Error(err))
		return nil, fmt.Errorf("failed to get version: %w", err)
	}

	return v, nil
}

// Append records a new version of an existing asset and moves its head pointer.
//
// The asset row is locked for the duration of the transaction, so concurrent appends to
// the same asset are serialized. A lost race on the (asset, version) key returns models.ErrConflict
// and the caller may retry the whole call.
func (r *versionRepository) Append(ctx context.Context, assetID int64, nv models.NewVersion) (*models.AssetVersion, error) {
	var version *models.AssetVersion

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockAsset(ctx, tx, assetID); err != nil {
			return err
		}

		v, err := appendVersion(ctx, tx, assetID, nv)
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	if err != nil {
		r.logger.Warn("failed to append asset version", zap.Int64("asset_id", assetID), zap.Error(err))
		return nil, err
	}

	return version, nil
}

// Restore appends a new version that reuses the file of version target.
// The restored version itself is never modified.
func (r *versionRepository) Restore(ctx context.Context, assetID int64, target int, uploaderID *int64) (*models.AssetVersion, error) {
	var version *models.AssetVersion

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockAsset(ctx, tx, assetID); err != nil {
			return err
		}

		var file string
		err := tx.QueryRowContext(ctx,
			`SELECT file FROM asset_versions WHERE asset_id = ? AND version = ?`,
			assetID, target,
		).Scan(&file)
		if err == sql.ErrNoRows {
			return fmt.Errorf("version %d of asset %d: %w", target, assetID, models.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get restore source: %w", err)
		}

		note := models.RestoreNote(target)
		v, err := appendVersion(ctx, tx, assetID, models.NewVersion{
			UploaderID: uploaderID,
			Note:       &note,
			File:       file,
		})
		if err != nil {
			return err
		}
		version = v
		return nil
	})
	if err != nil {
		r.logger.Warn("failed to restore asset version",
			zap.Int64("asset_id", assetID),
			zap.Int("target_version", target),
			zap.Error(err),
		)
		return nil, err
	}

	return version, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(s rowScanner) (*models.AssetVersion, error) {
	var (
		v        models.AssetVersion
		note     sql.NullString
		uploader sql.NullInt64
	)
	if err := s.Scan(&v.ID, &v.AssetID, &v.Version, &v.File, &note, &uploader, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.Note = stringPtr(note)
	v.UploaderID = int64Ptr(uploader)
	return &v, nil
}
