package services

import (
	"context"
	"errors"

	"github.com/damstudio/backend/internal/models"
	"go.uber.org/zap"
)

// ProfileRepository is the interface that wraps methods for Profiles table data access
type ProfileRepository interface {
	// Method GetByUserID retrieves the profile of an identity or models.ErrNotFound.
	GetByUserID(ctx context.Context, userID int64) (*models.Profile, error)
}

type actorService struct {
	repo   ProfileRepository
	logger *zap.Logger
}

// NewActorService creates a new actor service
func NewActorService(repo ProfileRepository, logger *zap.Logger) *actorService {
	return &actorService{
		repo:   repo,
		logger: logger,
	}
}

// ResolveActor builds the Actor of an authenticated identity.
// Identities without a profile are viewers.
func (s *actorService) ResolveActor(ctx context.Context, userID int64) (models.Actor, error) {
	profile, err := s.repo.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to resolve actor", zap.Int64("user_id", userID), zap.Error(err))
		return models.Actor{}, err
	}

	return models.Actor{
		ID:   userID,
		Role: models.ResolveProfileRole(profile),
	}, nil
}
