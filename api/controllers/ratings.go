package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmbid-backend/api/responses"
	"github.com/angelmondragon/farmbid-backend/api/validators"
	"github.com/angelmondragon/farmbid-backend/internal/ratings"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/farmbid-backend/pkg/errors"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
)

// RatingService is the part of ratings.Service used by rating writes.
type RatingService interface {
	CheckEligibility(ctx context.Context, productID, fromUserID, toUserID uuid.UUID) (*ratings.Eligibility, error)
	SubmitRating(ctx context.Context, input ratings.SubmitInput) (*models.Rating, error)
}

// RatingEligibility answers whether the caller may rate to_user_id for
// product_id.
func RatingEligibility(svc RatingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "ratings")
			return
		}
		userID, _, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		productID, err := validators.QueryUUID(r, "product_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		toUserID, err := validators.QueryUUID(r, "to_user_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if productID == nil || toUserID == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.NewReason(pkgerrors.ReasonInvalidInput, "product_id and to_user_id are required"))
			return
		}
		result, err := svc.CheckEligibility(r.Context(), *productID, userID, *toUserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type submitRatingRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	ToUserID  string `json:"to_user_id" validate:"required,uuid"`
	Rating    int    `json:"rating" validate:"required"`
	Review    string `json:"review"`
}

// SubmitRating records the caller's rating of the other party of a delivered
// lot. Score and review bounds are enforced by the rating service.
func SubmitRating(svc RatingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "ratings")
			return
		}
		userID, _, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		var payload submitRatingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rating, err := svc.SubmitRating(r.Context(), ratings.SubmitInput{
			ProductID:  uuid.MustParse(payload.ProductID),
			FromUserID: userID,
			ToUserID:   uuid.MustParse(payload.ToUserID),
			Score:      payload.Rating,
			Review:     payload.Review,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, ratingFromModel(rating))
	}
}
