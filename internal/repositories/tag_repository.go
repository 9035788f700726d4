package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/damstudio/backend/internal/models"
	"go.uber.org/zap"
)

type tagRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTagRepository creates a new tag repository
func NewTagRepository(db *sql.DB, logger *zap.Logger) *tagRepository {
	return &tagRepository{
		db:     db,
		logger: logger,
	}
}

// List retrieves all tags ordered by name
func (r *tagRepository) List(ctx context.Context) ([]models.Tag, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, color FROM tags ORDER BY name`)
	if err != nil {
		r.logger.Error("failed to query tags", zap.Error(err))
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	tags := []models.Tag{}
	for rows.Next() {
		var tag models.Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.Color); err != nil {
			r.logger.Error("failed to scan tag", zap.Error(err))
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating tags", zap.Error(err))
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return tags, nil
}

// Create inserts a new tag
func (r *tagRepository) Create(ctx context.Context, tag *models.Tag) error {
	result, err := r.db.ExecContext(ctx, `INSERT INTO tags (name, color) VALUES (?, ?)`, tag.Name, tag.Color)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("tag %q already exists: %w", tag.Name, models.ErrConflict)
		}
		r.logger.Error("failed to create tag", zap.Error(err))
		return fmt.Errorf("failed to create tag: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get tag id: %w", err)
	}
	tag.ID = id

	return nil
}

// GetByID retrieves a tag by ID
func (r *tagRepository) GetByID(ctx context.Context, id int64) (*models.Tag, error) {
	var tag models.Tag
	err := r.db.QueryRowContext(ctx, `SELECT id, name, color FROM tags WHERE id = ? LIMIT 1`, id).
		Scan(&tag.ID, &tag.Name, &tag.Color)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tag %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get tag", zap.Int64("tag_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}

	return &tag, nil
}

// Update stores a new name and color for an existing tag
func (r *tagRepository) Update(ctx context.Context, tag *models.Tag) error {
	_, err := r.db.ExecContext(ctx, `UPDATE tags SET name = ?, color = ? WHERE id = ?`, tag.Name, tag.Color, tag.ID)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("tag %q already exists: %w", tag.Name, models.ErrConflict)
		}
		r.logger.Error("failed to update tag", zap.Int64("tag_id", tag.ID), zap.Error(err))
		return fmt.Errorf("failed to update tag: %w", err)
	}

	return nil
}

// Delete removes a tag. Its asset links go with it through the foreign key; assets stay.
func (r *tagRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("failed to delete tag", zap.Int64("tag_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete tag: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("tag %d: %w", id, models.ErrNotFound)
	}

	return nil
}
