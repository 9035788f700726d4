package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/damstudio/backend/internal/models"
	"go.uber.org/zap"
)

type profileRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *sql.DB, logger *zap.Logger) *profileRepository {
	return &profileRepository{
		db:     db,
		logger: logger,
	}
}

// GetByUserID retrieves the role profile attached to an identity
func (r *profileRepository) GetByUserID(ctx context.Context, userID int64) (*models.Profile, error) {
	profile := &models.Profile{UserID: userID}
	err := r.db.QueryRowContext(ctx, `SELECT role FROM profiles WHERE user_id = ? LIMIT 1`, userID).Scan(&profile.Role)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("profile of user %d: %w", userID, models.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("failed to get profile", zap.Int64("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return profile, nil
}
