package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmbid-backend/api/responses"
	"github.com/angelmondragon/farmbid-backend/api/validators"
	"github.com/angelmondragon/farmbid-backend/internal/auctions"
	"github.com/angelmondragon/farmbid-backend/internal/delivery"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmbid-backend/pkg/errors"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
)

// AuctionService is the part of auctions.Service exposed over HTTP.
type AuctionService interface {
	CreateProduct(ctx context.Context, sellerID uuid.UUID, input auctions.CreateProductInput) (*models.Product, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (*auctions.ProductView, error)
	ListProducts(ctx context.Context, params auctions.ListParams) (*auctions.ProductPage, error)
	PlaceBid(ctx context.Context, productID, bidderID uuid.UUID, amountCents int64) (*auctions.BidResult, error)
	RespondToBid(ctx context.Context, productID, sellerID uuid.UUID, accept bool) (*models.Product, error)
}

// DeliveryService is the part of delivery.Service exposed over HTTP.
type DeliveryService interface {
	ConfirmDelivery(ctx context.Context, productID, confirmerID uuid.UUID) (*models.Product, error)
	PendingFor(ctx context.Context, merchantID uuid.UUID) ([]delivery.Awaiting, error)
}

type createProductRequest struct {
	Name          string   `json:"name" validate:"required,max=200"`
	Description   string   `json:"description" validate:"max=4000"`
	StartingPrice string   `json:"starting_price" validate:"required,rupees"`
	Quantity      int      `json:"quantity" validate:"required,min=1"`
	UnitType      string   `json:"unit_type" validate:"required"`
	Grade         string   `json:"grade" validate:"max=40"`
	ImageURLs     []string `json:"image_urls" validate:"omitempty,dive,required,url"`
	DurationHours int      `json:"duration_hours" validate:"required,min=1"`
}

func (r createProductRequest) toInput() (auctions.CreateProductInput, error) {
	cents, err := validators.ParseAmount("starting_price", r.StartingPrice)
	if err != nil {
		return auctions.CreateProductInput{}, err
	}
	unit, err := enums.ParseUnitType(strings.TrimSpace(r.UnitType))
	if err != nil {
		return auctions.CreateProductInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit type").
			WithReason(pkgerrors.ReasonInvalidInput).
			WithDetails(map[string]any{"field": "unit_type"})
	}
	return auctions.CreateProductInput{
		Name:               r.Name,
		Description:        r.Description,
		StartingPriceCents: cents,
		Quantity:           r.Quantity,
		UnitType:           unit,
		Grade:              r.Grade,
		ImageURLs:          r.ImageURLs,
		DurationHours:      r.DurationHours,
	}, nil
}

// CreateProduct lists a new lot for the calling farmer.
func CreateProduct(svc AuctionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "auction")
			return
		}
		userID, _, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.CreateProduct(r.Context(), userID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, productFromModel(product))
	}
}

// ListProducts pages through lots. Filters: status, seller_id, bidder_id and
// won=true for lots the caller currently leads.
func ListProducts(svc AuctionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "auction")
			return
		}
		userID, _, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}

		params := auctions.ListParams{Cursor: strings.TrimSpace(r.URL.Query().Get("cursor"))}
		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.Limit = limit

		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseProductStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").WithReason(pkgerrors.ReasonInvalidInput))
				return
			}
			params.Status = &status
		}
		if params.SellerID, err = validators.QueryUUID(r, "seller_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.BidderID, err = validators.QueryUUID(r, "bidder_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		won, err := validators.QueryBool(r, "won")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if won {
			params.WinnerID = &userID
		}

		page, err := svc.ListProducts(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp := productPageDTO{Items: make([]productDTO, 0, len(page.Items)), Cursor: page.Cursor}
		for i := range page.Items {
			resp.Items = append(resp.Items, productFromModel(&page.Items[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}

func GetProduct(svc AuctionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "auction")
			return
		}
		productID, err := validators.URLParamUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.GetProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, productFromView(view))
	}
}

type placeBidRequest struct {
	Amount string `json:"amount" validate:"required,rupees"`
}

// PlaceBid records a merchant bid on a lot.
func PlaceBid(svc AuctionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "auction")
			return
		}
		userID, _, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		productID, err := validators.URLParamUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload placeBidRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cents, err := validators.ParseAmount("amount", payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithProductID(r.Context(), productID.String())
		result, err := svc.PlaceBid(ctx, productID, userID, cents)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, bidResultDTO{
			Bid:     bidFromModel(result.Bid),
			Product: productFromModel(&result.Product),
		})
	}
}

type respondRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

// RespondToBid lets the seller accept or reject the standing bid.
func RespondToBid(svc AuctionService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "auction")
			return
		}
		userID, _, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		productID, err := validators.URLParamUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload respondRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithProductID(r.Context(), productID.String())
		product, err := svc.RespondToBid(ctx, productID, userID, *payload.Accept)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, productFromModel(product))
	}
}

// ConfirmDelivery releases escrow to the seller once the winner has the goods.
func ConfirmDelivery(svc DeliveryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "delivery")
			return
		}
		userID, _, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		productID, err := validators.URLParamUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithProductID(r.Context(), productID.String())
		product, err := svc.ConfirmDelivery(ctx, productID, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, productFromModel(product))
	}
}

// PendingDeliveries lists lots the caller won and must still confirm.
func PendingDeliveries(svc DeliveryService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "delivery")
			return
		}
		userID, _, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		items, err := svc.PendingFor(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": awaitingFrom(items)})
	}
}
