package auctions

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/angelmondragon/farmbid-backend/internal/events"
	"github.com/angelmondragon/farmbid-backend/pkg/config"
	"github.com/angelmondragon/farmbid-backend/pkg/db"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmbid-backend/pkg/errors"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
	"github.com/angelmondragon/farmbid-backend/pkg/metrics"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/farmbid-backend/pkg/pagination"
	"github.com/angelmondragon/farmbid-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"
)

const (
	maxNameLen        = 120
	maxDescriptionLen = 2000
	maxGradeLen       = 40
	sweepBatchSize    = 200
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// EscrowLedger is the slice of the wallet the auction engine composes into
// its own transactions.
type EscrowLedger interface {
	FreezeTx(ctx context.Context, tx *gorm.DB, payerID, payeeID uuid.UUID, amountCents int64, productID uuid.UUID) (*models.Transaction, error)
	RefundTx(ctx context.Context, tx *gorm.DB, escrowID uuid.UUID) (*models.Transaction, error)
	ObserveSettled(stage string, escrow *models.Transaction)
}

// Service is the auction engine.
type Service struct {
	db       txRunner
	repo     *Repository
	ledger   EscrowLedger
	events   events.Emitter
	market   config.MarketConfig
	metrics  *metrics.MarketMetrics
	logg     *logger.Logger
	sanitize *bluemonday.Policy
	now      func() time.Time
}

// ServiceParams wires the auction engine.
type ServiceParams struct {
	DB      txRunner
	Repo    *Repository
	Ledger  EscrowLedger
	Events  events.Emitter
	Market  config.MarketConfig
	Metrics *metrics.MarketMetrics
	Logger  *logger.Logger
	Clock   func() time.Time
}

// NewService validates params and builds the engine.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "db client required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "auctions repository required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "escrow ledger required")
	}
	emitter := params.Events
	if emitter == nil {
		emitter = events.Nop{}
	}
	market := params.Market
	if market.Currency == "" {
		market.Currency = "INR"
	}
	if market.DeliveryWindow <= 0 {
		market.DeliveryWindow = 48 * time.Hour
	}
	if market.MaxAuctionDuration <= 0 {
		market.MaxAuctionDuration = 720 * time.Hour
	}
	if market.MaxImages <= 0 {
		market.MaxImages = 10
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		db:       params.DB,
		repo:     params.Repo,
		ledger:   params.Ledger,
		events:   emitter,
		market:   market,
		metrics:  params.Metrics,
		logg:     logg,
		sanitize: bluemonday.StrictPolicy(),
		now:      func() time.Time { return clock().UTC() },
	}, nil
}

// CreateProduct validates and lists a new lot for sellerID.
func (s *Service) CreateProduct(ctx context.Context, sellerID uuid.UUID, input CreateProductInput) (*models.Product, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInvalidInput, "seller id required")
	}
	clean, err := s.validateListing(input)
	if err != nil {
		return nil, err
	}

	now := s.now()
	product := &models.Product{
		ID:                 uuid.New(),
		SellerID:           sellerID,
		Name:               clean.Name,
		Description:        clean.Description,
		StartingPriceCents: clean.StartingPriceCents,
		Currency:           s.market.Currency,
		Quantity:           clean.Quantity,
		UnitType:           clean.UnitType,
		Grade:              clean.Grade,
		ImageURLs:          types.StringList(clean.ImageURLs),
		DurationHours:      clean.DurationHours,
		EndTime:            now.Add(time.Duration(clean.DurationHours) * time.Hour),
		Status:             enums.ProductStatusActive,
		PaymentStatus:      enums.PaymentStatusNone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	staged := events.Stage(s.events)
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
		}
		return s.stage(ctx, tx, staged, outbox.DomainEvent{
			EventType:     enums.EventProductListed,
			AggregateType: enums.AggregateProduct,
			AggregateID:   product.ID,
			Actor:         outbox.Actor(sellerID, enums.RoleFarmer),
			Data: payloads.ProductListedEvent{
				ProductID:          product.ID,
				SellerID:           sellerID,
				Name:               product.Name,
				StartingPriceCents: product.StartingPriceCents,
				Quantity:           product.Quantity,
				UnitType:           product.UnitType,
				EndTime:            product.EndTime,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	staged.Flush(ctx, s.logg)
	return product, nil
}

// stage adds event to the transaction's outgoing events.
func (s *Service) stage(ctx context.Context, tx *gorm.DB, staged *events.Staged, event outbox.DomainEvent) error {
	if err := staged.Add(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stage "+string(event.EventType))
	}
	return nil
}

func (s *Service) validateListing(input CreateProductInput) (CreateProductInput, error) {
	out := input
	out.Name = strings.TrimSpace(s.sanitize.Sanitize(input.Name))
	out.Description = strings.TrimSpace(s.sanitize.Sanitize(input.Description))
	out.Grade = strings.TrimSpace(s.sanitize.Sanitize(input.Grade))

	invalid := func(msg string, field string) error {
		return pkgerrors.NewReason(pkgerrors.ReasonInvalidInput, msg).WithDetails(map[string]any{"field": field})
	}

	switch {
	case out.Name == "":
		return out, invalid("name is required", "name")
	case utf8.RuneCountInString(out.Name) > maxNameLen:
		return out, invalid(fmt.Sprintf("name must be at most %d characters", maxNameLen), "name")
	case utf8.RuneCountInString(out.Description) > maxDescriptionLen:
		return out, invalid(fmt.Sprintf("description must be at most %d characters", maxDescriptionLen), "description")
	case utf8.RuneCountInString(out.Grade) > maxGradeLen:
		return out, invalid(fmt.Sprintf("grade must be at most %d characters", maxGradeLen), "grade")
	case out.StartingPriceCents <= 0:
		return out, pkgerrors.NewReason(pkgerrors.ReasonInvalidAmount, "starting price must be positive")
	case out.Quantity <= 0:
		return out, invalid("quantity must be positive", "quantity")
	case !out.UnitType.IsValid():
		return out, invalid("unknown unit type", "unit_type")
	case out.DurationHours <= 0 || time.Duration(out.DurationHours)*time.Hour > s.market.MaxAuctionDuration:
		return out, invalid(fmt.Sprintf("duration must be between 1 and %d hours", int(s.market.MaxAuctionDuration/time.Hour)), "duration_hours")
	case len(out.ImageURLs) > s.market.MaxImages:
		return out, invalid(fmt.Sprintf("at most %d images", s.market.MaxImages), "image_urls")
	}

	urls := make([]string, 0, len(out.ImageURLs))
	for _, raw := range out.ImageURLs {
		raw = strings.TrimSpace(raw)
		u, err := url.ParseRequestURI(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return out, invalid("image urls must be absolute http(s) urls", "image_urls")
		}
		urls = append(urls, raw)
	}
	out.ImageURLs = urls
	return out, nil
}

// GetProduct returns a lot with its standing bid and bid history.
func (s *Service) GetProduct(ctx context.Context, productID uuid.UUID) (*ProductView, error) {
	product, err := s.repo.Find(ctx, productID)
	if err != nil {
		return nil, productLookupError(err)
	}
	bids, err := s.repo.BidsFor(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bids")
	}
	return newView(product, bids), nil
}

// ListProducts pages through lots, newest first.
func (s *Service) ListProducts(ctx context.Context, params ListParams) (*ProductPage, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInvalidInput, "unknown product status")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor").WithReason(pkgerrors.ReasonInvalidInput)
	}
	rows, next, err := s.repo.List(ctx, ListFilter{
		Status:   params.Status,
		SellerID: params.SellerID,
		BidderID: params.BidderID,
		WinnerID: params.WinnerID,
		Limit:    params.Limit,
		Cursor:   cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return &ProductPage{Items: rows, Cursor: pagination.EncodeNext(next)}, nil
}

func productLookupError(err error) error {
	if db.IsNotFound(err) {
		return pkgerrors.NewReason(pkgerrors.ReasonProductNotFound, "product not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
}
