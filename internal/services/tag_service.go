package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/damstudio/backend/internal/models"
	"github.com/damstudio/backend/internal/policy"
	"go.uber.org/zap"
)

// TagRepository is the interface that wraps methods for Tags table data access
type TagRepository interface {
	// Method List retrieves all tags ordered by name.
	List(ctx context.Context) ([]models.Tag, error)
	// Method GetByID retrieves a tag. A missing tag returns models.ErrNotFound.
	GetByID(ctx context.Context, id int64) (*models.Tag, error)
	// Method Create inserts a new tag and sets its ID. A duplicate name returns models.ErrConflict.
	Create(ctx context.Context, tag *models.Tag) error
	// Method Update stores the tag's name and color. A duplicate name returns models.ErrConflict.
	Update(ctx context.Context, tag *models.Tag) error
	// Method Delete removes a tag and its asset links. A missing tag returns models.ErrNotFound.
	Delete(ctx context.Context, id int64) error
}

const maxTagNameLength = 50

var tagColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

type tagService struct {
	repo   TagRepository
	logger *zap.Logger
}

// NewTagService creates a new tag service
func NewTagService(repo TagRepository, logger *zap.Logger) *tagService {
	return &tagService{
		repo:   repo,
		logger: logger,
	}
}

// ListTags retrieves all tags
func (s *tagService) ListTags(ctx context.Context) ([]models.Tag, error) {
	return s.repo.List(ctx)
}

// GetTag retrieves a single tag
func (s *tagService) GetTag(ctx context.Context, id int64) (*models.Tag, error) {
	return s.repo.GetByID(ctx, id)
}

// CreateTag creates a new tag
func (s *tagService) CreateTag(ctx context.Context, actor models.Actor, req models.CreateTagRequest) (*models.Tag, error) {
	if err := s.authorize(actor, "create tag"); err != nil {
		return nil, err
	}

	tag := &models.Tag{
		Name:  strings.TrimSpace(req.Name),
		Color: strings.TrimSpace(req.Color),
	}
	if tag.Color == "" {
		tag.Color = models.DefaultTagColor
	}
	if err := validateTag(tag); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, tag); err != nil {
		return nil, err
	}

	return tag, nil
}

// UpdateTag renames or recolors a tag
func (s *tagService) UpdateTag(ctx context.Context, actor models.Actor, id int64, req models.UpdateTagRequest) (*models.Tag, error) {
	if err := s.authorize(actor, "update tag"); err != nil {
		return nil, err
	}
	if req.Name == nil && req.Color == nil {
		return nil, fmt.Errorf("no fields to update: %w", models.ErrValidation)
	}

	tag, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		tag.Name = strings.TrimSpace(*req.Name)
	}
	if req.Color != nil {
		tag.Color = strings.TrimSpace(*req.Color)
	}
	if err := validateTag(tag); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, tag); err != nil {
		return nil, err
	}

	return tag, nil
}

// DeleteTag removes a tag. Assets carrying it only lose the link.
func (s *tagService) DeleteTag(ctx context.Context, actor models.Actor, id int64) error {
	if err := s.authorize(actor, "delete tag"); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("tag deleted", zap.Int64("tag_id", id), zap.Int64("actor_id", actor.ID))
	return nil
}

func (s *tagService) authorize(actor models.Actor, action string) error {
	if policy.Can(actor.Role, policy.OpManageTags, false) {
		return nil
	}
	s.logger.Info("operation denied", zap.String("operation", action), zap.Int64("actor_id", actor.ID))
	return fmt.Errorf("%s: %w", action, models.ErrPermissionDenied)
}

func validateTag(tag *models.Tag) error {
	if tag.Name == "" {
		return fmt.Errorf("tag name is required: %w", models.ErrValidation)
	}
	if len([]rune(tag.Name)) > maxTagNameLength {
		return fmt.Errorf("tag name is longer than %d characters: %w", maxTagNameLength, models.ErrValidation)
	}
	if !tagColorPattern.MatchString(tag.Color) {
		return fmt.Errorf("tag color %q must look like #RRGGBB: %w", tag.Color, models.ErrValidation)
	}
	return nil
}
