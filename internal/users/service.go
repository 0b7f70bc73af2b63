package users

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/farmbid-backend/pkg/db"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmbid-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

const maxDisplayNameLen = 80

// Service manages marketplace profiles for externally issued identities.
type Service struct {
	repo     *Repository
	sanitize *bluemonday.Policy
}

// NewService constructs the users service.
func NewService(repo *Repository) (*Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "users repository required")
	}
	return &Service{repo: repo, sanitize: bluemonday.StrictPolicy()}, nil
}

// EnsureProfile creates the profile on first sight and returns the stored row.
// Role is fixed at creation; later calls never change it.
func (s *Service) EnsureProfile(ctx context.Context, input EnsureProfileInput) (*models.User, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInvalidInput, "user id required")
	}
	if !input.Role.IsValid() {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInvalidInput, "role must be farmer or merchant")
	}

	name := strings.TrimSpace(s.sanitize.Sanitize(input.DisplayName))
	if name == "" {
		name = string(input.Role)
	}
	if len(name) > maxDisplayNameLen {
		name = name[:maxDisplayNameLen]
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:          input.UserID,
		Role:        input.Role,
		DisplayName: name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateIfMissing(ctx, user); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create profile")
	}
	return s.Get(ctx, input.UserID)
}

// Get returns a profile or USER_NOT_FOUND.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.NewReason(pkgerrors.ReasonUserNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

// IDsByRole lists recipients for role-wide fan-out.
func (s *Service) IDsByRole(ctx context.Context, role enums.Role, exclude *uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.repo.ListIDsByRole(ctx, role, exclude)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users by role")
	}
	return ids, nil
}

// UpdateRatingSummary refreshes the cached average shown on profiles.
func (s *Service) UpdateRatingSummary(ctx context.Context, id uuid.UUID, average float64, count int64) error {
	if err := s.repo.UpdateRatingSummary(ctx, id, average, count); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update rating summary")
	}
	return nil
}
