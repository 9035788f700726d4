package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/damstudio/backend/internal/models"
	"go.uber.org/zap"
)

const assetColumns = `id, name, asset_no, asset_type, file, description, brand, owner_id, view_count, download_count, created_at`

// orderings maps the accepted ordering parameters to SQL
var orderings = map[string]string{
	"upload_date":     "created_at ASC, id ASC",
	"-upload_date":    "created_at DESC, id DESC",
	"name":            "name ASC, id ASC",
	"-name":           "name DESC, id DESC",
	"download_count":  "download_count ASC, id ASC",
	"-download_count": "download_count DESC, id DESC",
	"view_count":      "view_count ASC, id ASC",
	"-view_count":     "view_count DESC, id DESC",
}

const defaultOrdering = "-upload_date"

type assetRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(db *sql.DB, logger *zap.Logger) *assetRepository {
	return &assetRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new asset together with its tags and first version.
// The head pointer is set to the first version's file before commit.
func (r *assetRepository) Create(ctx context.Context, asset *models.Asset, tagIDs []int64, nv models.NewVersion) (*models.AssetVersion, error) {
	var version *models.AssetVersion

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		createdAt := time.Now().UTC()
		result, err := tx.ExecContext(ctx, `
			INSERT INTO assets (name, asset_no, asset_type, file, description, brand, owner_id, created_at)
			VALUES (?, ?, ?, '', ?, ?, ?, ?)
		`,
			asset.Name,
			asset.AssetNo,
			asset.Type,
			asset.Description,
			asset.Brand,
			nullInt64(asset.OwnerID),
			createdAt,
		)
		if err != nil {
			if isDuplicateKey(err) {
				return fmt.Errorf("asset number %q already exists: %w", asset.AssetNo, models.ErrConflict)
			}
			return fmt.Errorf("failed to insert asset: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get asset id: %w", err)
		}

		if err := replaceTags(ctx, tx, id, tagIDs); err != nil {
			return err
		}

		v, err := appendVersion(ctx, tx, id, nv)
		if err != nil {
			return err
		}

		asset.ID = id
		asset.File = v.File
		asset.CreatedAt = createdAt
		version = v
		return nil
	})
	if err != nil {
		r.logger.Error("failed to create asset", zap.String("asset_no", asset.AssetNo), zap.Error(err))
		return nil, err
	}

	return version, nil
}

// GetByID retrieves an asset with its tags
func (r *assetRepository) GetByID(ctx context.Context, id int64) (*models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = ? LIMIT 1`

	asset, err := scanAsset(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("asset %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get asset", zap.Int64("asset_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	tags, err := r.tagsFor(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	asset.Tags = tags[id]
	if asset.Tags == nil {
		asset.Tags = []models.Tag{}
	}

	return asset, nil
}

// List retrieves a page of assets matching the filter
func (r *assetRepository) List(ctx context.Context, filter models.AssetFilter) ([]models.Asset, error) {
	var (
		where []string
		args  []any
	)
	if filter.Type != "" {
		where = append(where, "a.asset_type = ?")
		args = append(args, filter.Type)
	}
	if filter.OwnerID != nil {
		where = append(where, "a.owner_id = ?")
		args = append(args, *filter.OwnerID)
	}
	if filter.TagID != nil {
		where = append(where, "EXISTS (SELECT 1 FROM asset_tags at WHERE at.asset_id = a.id AND at.tag_id = ?)")
		args = append(args, *filter.TagID)
	}
	if filter.DateFrom != nil {
		where = append(where, "a.created_at >= ?")
		args = append(args, truncateDay(*filter.DateFrom))
	}
	if filter.DateTo != nil {
		where = append(where, "a.created_at < ?")
		args = append(args, truncateDay(*filter.DateTo).AddDate(0, 0, 1))
	}

	order, ok := orderings[filter.Ordering]
	if !ok {
		order = orderings[defaultOrdering]
	}

	query := `SELECT ` + prefixColumns("a", assetColumns) + ` FROM assets a`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + prefixColumns("a", order) + " LIMIT ? OFFSET ?"
	args = append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to query assets", zap.Error(err))
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	assets := []models.Asset{}
	ids := []int64{}
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			r.logger.Error("failed to scan asset", zap.Error(err))
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, *asset)
		ids = append(ids, asset.ID)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating assets", zap.Error(err))
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	if len(ids) == 0 {
		return assets, nil
	}

	tags, err := r.tagsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range assets {
		assets[i].Tags = tags[assets[i].ID]
		if assets[i].Tags == nil {
			assets[i].Tags = []models.Tag{}
		}
	}

	return assets, nil
}

// UpdateMetadata applies a metadata edit; the tag set is replaced when TagIDs is set
func (r *assetRepository) UpdateMetadata(ctx context.Context, id int64, req *models.UpdateAssetRequest) error {
	var (
		sets []string
		args []any
	)
	if req.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *req.Name)
	}
	if req.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *req.Description)
	}
	if req.Brand != nil {
		sets = append(sets, "brand = ?")
		args = append(args, *req.Brand)
	}
	if req.Type != nil {
		sets = append(sets, "asset_type = ?")
		args = append(args, *req.Type)
	}

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if len(sets) > 0 {
			query := "UPDATE assets SET " + strings.Join(sets, ", ") + " WHERE id = ?"
			if _, err := tx.ExecContext(ctx, query, append(args, id)...); err != nil {
				return fmt.Errorf("failed to update asset: %w", err)
			}
		}
		if req.TagIDs != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM asset_tags WHERE asset_id = ?`, id); err != nil {
				return fmt.Errorf("failed to clear asset tags: %w", err)
			}
			if err := replaceTags(ctx, tx, id, *req.TagIDs); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("failed to update asset metadata", zap.Int64("asset_id", id), zap.Error(err))
		return err
	}

	return nil
}

// Delete removes an asset; versions and tag links go with it through cascading keys.
// It returns the blob keys referenced by the removed versions.
func (r *assetRepository) Delete(ctx context.Context, id int64) ([]string, error) {
	var files []string

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT DISTINCT file FROM asset_versions WHERE asset_id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to query version files: %w", err)
		}
		for rows.Next() {
			var file string
			if err := rows.Scan(&file); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan version file: %w", err)
			}
			files = append(files, file)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("error iterating rows: %w", err)
		}
		rows.Close()

		result, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete asset: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("asset %d: %w", id, models.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("failed to delete asset", zap.Int64("asset_id", id), zap.Error(err))
		return nil, err
	}

	return files, nil
}

// IncrementDownload adds one to the download counter in place
func (r *assetRepository) IncrementDownload(ctx context.Context, id int64) error {
	return r.increment(ctx, id, "download_count")
}

// IncrementView adds one to the view counter in place
func (r *assetRepository) IncrementView(ctx context.Context, id int64) error {
	return r.increment(ctx, id, "view_count")
}

// GetViewCount retrieves the current view counter of an asset
func (r *assetRepository) GetViewCount(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT view_count FROM assets WHERE id = ?`, id).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("asset %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get view count", zap.Int64("asset_id", id), zap.Error(err))
		return 0, fmt.Errorf("failed to get view count: %w", err)
	}
	return count, nil
}

// increment performs an atomic in-place counter update.
// column is always one of the fixed counter names above.
func (r *assetRepository) increment(ctx context.Context, id int64, column string) error {
	query := fmt.Sprintf(`UPDATE assets SET %s = %s + 1 WHERE id = ?`, column, column)

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		r.logger.Error("failed to increment counter", zap.String("counter", column), zap.Int64("asset_id", id), zap.Error(err))
		return fmt.Errorf("failed to increment %s: %w", column, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("asset %d: %w", id, models.ErrNotFound)
	}

	return nil
}

// tagsFor loads the tags of the given assets keyed by asset id
func (r *assetRepository) tagsFor(ctx context.Context, assetIDs []int64) (map[int64][]models.Tag, error) {
	placeholders := make([]string, len(assetIDs))
	args := make([]any, len(assetIDs))
	for i, id := range assetIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT at.asset_id, t.id, t.name, t.color
		FROM asset_tags at
		INNER JOIN tags t ON t.id = at.tag_id
		WHERE at.asset_id IN (%s)
		ORDER BY t.name
	`, strings.Join(placeholders, ","))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to query asset tags", zap.Error(err))
		return nil, fmt.Errorf("failed to query asset tags: %w", err)
	}
	defer rows.Close()

	tags := make(map[int64][]models.Tag, len(assetIDs))
	for rows.Next() {
		var (
			assetID int64
			tag     models.Tag
		)
		if err := rows.Scan(&assetID, &tag.ID, &tag.Name, &tag.Color); err != nil {
			r.logger.Error("failed to scan asset tag", zap.Error(err))
			return nil, fmt.Errorf("failed to scan asset tag: %w", err)
		}
		tags[assetID] = append(tags[assetID], tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return tags, nil
}

// replaceTags links the asset to the given tags; unknown tag ids are ignored
func replaceTags(ctx context.Context, tx *sql.Tx, assetID int64, tagIDs []int64) error {
	if len(tagIDs) == 0 {
		return nil
	}

	placeholders := make([]string, len(tagIDs))
	args := []any{assetID}
	for i, id := range tagIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		INSERT IGNORE INTO asset_tags (asset_id, tag_id)
		SELECT ?, id FROM tags WHERE id IN (%s)
	`, strings.Join(placeholders, ","))

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to link asset tags: %w", err)
	}
	return nil
}

// truncateDay returns midnight UTC of the day t falls on
func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// prefixColumns qualifies a comma separated column list with a table alias
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

func scanAsset(s rowScanner) (*models.Asset, error) {
	var (
		a     models.Asset
		owner sql.NullInt64
	)
	err := s.Scan(
		&a.ID,
		&a.Name,
		&a.AssetNo,
		&a.Type,
		&a.File,
		&a.Description,
		&a.Brand,
		&owner,
		&a.ViewCount,
		&a.DownloadCount,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.OwnerID = int64Ptr(owner)
	return &a, nil
}
