package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmbid-backend/internal/auctions"
	"github.com/angelmondragon/farmbid-backend/internal/delivery"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/angelmondragon/farmbid-backend/pkg/money"
)

type amountDTO struct {
	Cents int64  `json:"cents"`
	Value string `json:"value"`
}

func amountOf(cents int64) amountDTO {
	return amountDTO{Cents: cents, Value: money.FormatMajor(cents)}
}

type bidDTO struct {
	ID        uuid.UUID `json:"id"`
	BidderID  uuid.UUID `json:"bidder_id"`
	Amount    amountDTO `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

func bidFromModel(b models.Bid) bidDTO {
	return bidDTO{ID: b.ID, BidderID: b.BidderID, Amount: amountOf(b.AmountCents), CreatedAt: b.CreatedAt}
}

type highestBidDTO struct {
	BidderID uuid.UUID `json:"bidder_id"`
	Amount   amountDTO `json:"amount"`
	PlacedAt time.Time `json:"placed_at"`
}

type productDTO struct {
	ID                  uuid.UUID           `json:"id"`
	SellerID            uuid.UUID           `json:"seller_id"`
	Name                string              `json:"name"`
	Description         string              `json:"description"`
	StartingPrice       amountDTO           `json:"starting_price"`
	Currency            string              `json:"currency"`
	Quantity            int                 `json:"quantity"`
	UnitType            enums.UnitType      `json:"unit_type"`
	Grade               string              `json:"grade"`
	ImageURLs           []string            `json:"image_urls"`
	DurationHours       int                 `json:"duration_hours"`
	EndTime             time.Time           `json:"end_time"`
	Status              enums.ProductStatus `json:"status"`
	HighestBid          *highestBidDTO      `json:"highest_bid,omitempty"`
	BidCount            int                 `json:"bid_count"`
	BidAccepted         bool                `json:"bid_accepted"`
	BidRespondedAt      *time.Time          `json:"bid_responded_at,omitempty"`
	ProductDelivered    bool                `json:"product_delivered"`
	DeliveredAt         *time.Time          `json:"delivered_at,omitempty"`
	PaymentStatus       enums.PaymentStatus `json:"payment_status"`
	EscrowTransactionID *uuid.UUID          `json:"escrow_transaction_id,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	PreviousBids        []bidDTO            `json:"previous_bids,omitempty"`
}

func productFromModel(p *models.Product) productDTO {
	out := productDTO{
		ID:                  p.ID,
		SellerID:            p.SellerID,
		Name:                p.Name,
		Description:         p.Description,
		StartingPrice:       amountOf(p.StartingPriceCents),
		Currency:            p.Currency,
		Quantity:            p.Quantity,
		UnitType:            p.UnitType,
		Grade:               p.Grade,
		ImageURLs:           append([]string{}, p.ImageURLs...),
		DurationHours:       p.DurationHours,
		EndTime:             p.EndTime,
		Status:              p.Status,
		BidCount:            p.BidCount,
		BidAccepted:         p.BidAccepted,
		BidRespondedAt:      p.BidRespondedAt,
		ProductDelivered:    p.ProductDelivered,
		DeliveredAt:         p.DeliveredAt,
		PaymentStatus:       p.PaymentStatus,
		EscrowTransactionID: p.EscrowTransactionID,
		CreatedAt:           p.CreatedAt,
	}
	if p.HasBid() {
		out.HighestBid = &highestBidDTO{BidderID: *p.HighestBidderID, Amount: amountOf(*p.HighestBidCents)}
		if p.HighestBidAt != nil {
			out.HighestBid.PlacedAt = *p.HighestBidAt
		}
	}
	return out
}

func productFromView(view *auctions.ProductView) productDTO {
	out := productFromModel(&view.Product)
	out.PreviousBids = make([]bidDTO, 0, len(view.PreviousBids))
	for _, b := range view.PreviousBids {
		out.PreviousBids = append(out.PreviousBids, bidFromModel(b))
	}
	return out
}

type productPageDTO struct {
	Items  []productDTO `json:"items"`
	Cursor string       `json:"cursor"`
}

type bidResultDTO struct {
	Bid     bidDTO     `json:"bid"`
	Product productDTO `json:"product"`
}

type awaitingDTO struct {
	Product  productDTO `json:"product"`
	Deadline time.Time  `json:"deadline"`
}

func awaitingFrom(items []delivery.Awaiting) []awaitingDTO {
	out := make([]awaitingDTO, 0, len(items))
	for i := range items {
		out = append(out, awaitingDTO{Product: productFromModel(&items[i].Product), Deadline: items[i].Deadline})
	}
	return out
}

type walletDTO struct {
	UserID        uuid.UUID `json:"user_id"`
	Balance       amountDTO `json:"balance"`
	FrozenBalance amountDTO `json:"frozen_balance"`
	Currency      string    `json:"currency"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func walletFromModel(w *models.Wallet) walletDTO {
	return walletDTO{
		UserID:        w.UserID,
		Balance:       amountOf(w.BalanceCents),
		FrozenBalance: amountOf(w.FrozenBalanceCents),
		Currency:      w.Currency,
		UpdatedAt:     w.UpdatedAt,
	}
}

type transactionDTO struct {
	ID          uuid.UUID               `json:"id"`
	Type        enums.TransactionType   `json:"type"`
	Status      enums.TransactionStatus `json:"status"`
	Amount      amountDTO               `json:"amount"`
	Currency    string                  `json:"currency"`
	FromUserID  uuid.UUID               `json:"from_user_id"`
	ToUserID    *uuid.UUID              `json:"to_user_id,omitempty"`
	ProductID   *uuid.UUID              `json:"product_id,omitempty"`
	Metadata    map[string]any          `json:"metadata,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

func transactionFromModel(t *models.Transaction) transactionDTO {
	return transactionDTO{
		ID:          t.ID,
		Type:        t.Type,
		Status:      t.Status,
		Amount:      amountOf(t.AmountCents),
		Currency:    t.Currency,
		FromUserID:  t.FromUserID,
		ToUserID:    t.ToUserID,
		ProductID:   t.ProductID,
		Metadata:    t.Metadata,
		CreatedAt:   t.CreatedAt,
		CompletedAt: t.CompletedAt,
	}
}

type transactionPageDTO struct {
	Items  []transactionDTO `json:"items"`
	Cursor string           `json:"cursor"`
}

type ratingDTO struct {
	ProductID  uuid.UUID  `json:"product_id"`
	FromUserID uuid.UUID  `json:"from_user_id"`
	ToUserID   uuid.UUID  `json:"to_user_id"`
	FromRole   enums.Role `json:"from_role"`
	ToRole     enums.Role `json:"to_role"`
	Rating     int        `json:"rating"`
	Review     string     `json:"review,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func ratingFromModel(r *models.Rating) ratingDTO {
	return ratingDTO{
		ProductID:  r.ProductID,
		FromUserID: r.FromUserID,
		ToUserID:   r.ToUserID,
		FromRole:   r.FromRole,
		ToRole:     r.ToRole,
		Rating:     r.Score,
		Review:     r.Review,
		CreatedAt:  r.CreatedAt,
	}
}
