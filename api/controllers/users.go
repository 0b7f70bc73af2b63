package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmbid-backend/api/responses"
	"github.com/angelmondragon/farmbid-backend/api/validators"
	"github.com/angelmondragon/farmbid-backend/internal/ratings"
	"github.com/angelmondragon/farmbid-backend/internal/users"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
)

const maxDisplayNameLen = 80

// ProfileService is the part of users.Service the API needs.
type ProfileService interface {
	EnsureProfile(ctx context.Context, input users.EnsureProfileInput) (*models.User, error)
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type registerProfileRequest struct {
	DisplayName string `json:"display_name" validate:"max=200"`
}

// RegisterProfile creates the caller's profile with the role carried by the
// access token. Calling it again returns the existing profile.
func RegisterProfile(svc ProfileService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "users")
			return
		}
		userID, role, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}

		var payload registerProfileRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, err := svc.EnsureProfile(r.Context(), users.EnsureProfileInput{
			UserID:      userID,
			Role:        role,
			DisplayName: validators.SanitizeString(payload.DisplayName, maxDisplayNameLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, users.FromModel(user))
	}
}

// RatingReader is the part of ratings.Service used for public profiles.
type RatingReader interface {
	AverageRating(ctx context.Context, userID uuid.UUID) (*ratings.Summary, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Rating, error)
}

type userRatingsResponse struct {
	UserID  uuid.UUID       `json:"user_id"`
	Summary ratings.Summary `json:"summary"`
	Items   []ratingDTO     `json:"items"`
}

// UserRatings returns a user's rating average and most recent reviews.
func UserRatings(svc RatingReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "ratings")
			return
		}
		userID, err := validators.URLParamUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 20, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.AverageRating(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.ListForUser(r.Context(), userID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := userRatingsResponse{UserID: userID, Summary: *summary, Items: make([]ratingDTO, 0, len(rows))}
		for i := range rows {
			resp.Items = append(resp.Items, ratingFromModel(&rows[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}
