// Package ratings records post-delivery ratings between the seller and the
// winning merchant of a lot.
package ratings

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/angelmondragon/farmbid-backend/pkg/db"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmbid-backend/pkg/errors"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
	"github.com/angelmondragon/farmbid-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
)

const (
	minScore        = 1
	maxScore        = 5
	maxReviewLength = 200
)

// SummaryStore caches the aggregate on the user profile.
type SummaryStore interface {
	UpdateRatingSummary(ctx context.Context, id uuid.UUID, average float64, count int64) error
}

// Eligibility tells a user whether they may rate the other party of a lot.
type Eligibility struct {
	CanRate  bool `json:"can_rate"`
	HasRated bool `json:"has_rated"`
}

// Summary is a user's rating aggregate.
type Summary struct {
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

// SubmitInput is one rating submission.
type SubmitInput struct {
	ProductID  uuid.UUID
	FromUserID uuid.UUID
	ToUserID   uuid.UUID
	Score      int
	Review     string
}

type Service struct {
	repo     *Repository
	profiles SummaryStore
	logg     *logger.Logger
	sanitize *bluemonday.Policy
	now      func() time.Time
}

func NewService(repo *Repository, profiles SummaryStore, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ratings repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		repo:     repo,
		profiles: profiles,
		logg:     logg,
		sanitize: bluemonday.StrictPolicy(),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// CheckEligibility reports whether fromUserID can rate toUserID for productID.
func (s *Service) CheckEligibility(ctx context.Context, productID, fromUserID, toUserID uuid.UUID) (*Eligibility, error) {
	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	hasRated, err := s.repo.Exists(ctx, productID, fromUserID, toUserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing rating")
	}
	_, _, participant := roles(product, fromUserID, toUserID)
	return &Eligibility{
		CanRate:  settled(product) && participant && !hasRated,
		HasRated: hasRated,
	}, nil
}

// SubmitRating stores a rating. A second submission for the same product and
// pair fails with ALREADY_RATED.
func (s *Service) SubmitRating(ctx context.Context, input SubmitInput) (*models.Rating, error) {
	review := strings.TrimSpace(s.sanitize.Sanitize(input.Review))
	switch {
	case input.ProductID == uuid.Nil || input.FromUserID == uuid.Nil || input.ToUserID == uuid.Nil:
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInvalidInput, "product, rater and ratee are required")
	case input.FromUserID == input.ToUserID:
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInvalidInput, "cannot rate yourself")
	case input.Score < minScore || input.Score > maxScore:
		return nil, pkgerrors.NewReasonf(pkgerrors.ReasonInvalidInput, "rating must be between %d and %d", minScore, maxScore)
	case utf8.RuneCountInString(review) > maxReviewLength:
		return nil, pkgerrors.NewReasonf(pkgerrors.ReasonInvalidInput, "review must be at most %d characters", maxReviewLength)
	}

	product, err := s.loadProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	if !settled(product) {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonNotSettled, "ratings open once the product is delivered")
	}
	fromRole, toRole, ok := roles(product, input.FromUserID, input.ToUserID)
	if !ok {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonNotParticipant, "only the seller and the winning merchant can rate each other")
	}

	rating := &models.Rating{
		ProductID:  input.ProductID,
		FromUserID: input.FromUserID,
		ToUserID:   input.ToUserID,
		FromRole:   fromRole,
		ToRole:     toRole,
		Score:      input.Score,
		Review:     review,
		CreatedAt:  s.now(),
	}
	if err := s.repo.Create(ctx, rating); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.NewReason(pkgerrors.ReasonAlreadyRated, "rating already submitted")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create rating")
	}

	s.refreshSummary(ctx, input.ToUserID)
	return rating, nil
}

func (s *Service) refreshSummary(ctx context.Context, userID uuid.UUID) {
	if s.profiles == nil {
		return
	}
	logCtx := s.logg.WithUserID(ctx, userID.String())
	summary, err := s.AverageRating(ctx, userID)
	if err != nil {
		s.logg.Error(logCtx, "rating summary refresh failed", err)
		return
	}
	if err := s.profiles.UpdateRatingSummary(ctx, userID, summary.Average, summary.Count); err != nil {
		s.logg.Error(logCtx, "rating summary refresh failed", err)
	}
}

// AverageRating returns the mean rating received by userID rounded to one
// decimal place. A user with no ratings reports {0, 0}.
func (s *Service) AverageRating(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	row, err := s.repo.Summary(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate ratings")
	}
	if row.Count == 0 {
		return &Summary{}, nil
	}
	return &Summary{
		Average: decimal.NewFromFloat(row.Average).Round(1).InexactFloat64(),
		Count:   row.Count,
	}, nil
}

// ListForUser returns ratings received by userID, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Rating, error) {
	rows, err := s.repo.ListFor(ctx, userID, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ratings")
	}
	return rows, nil
}

func (s *Service) loadProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindProduct(ctx, productID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.NewReason(pkgerrors.ReasonProductNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func settled(p *models.Product) bool {
	return p.ProductDelivered && p.Status == enums.ProductStatusDelivered
}

// roles resolves the rater and ratee roles when the pair is the seller and
// the winner of p, in either direction.
func roles(p *models.Product, from, to uuid.UUID) (enums.Role, enums.Role, bool) {
	if !p.HasBid() {
		return "", "", false
	}
	winner := *p.HighestBidderID
	switch {
	case from == p.SellerID && to == winner:
		return enums.RoleFarmer, enums.RoleMerchant, true
	case from == winner && to == p.SellerID:
		return enums.RoleMerchant, enums.RoleFarmer, true
	default:
		return "", "", false
	}
}
