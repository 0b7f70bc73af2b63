package auctions

import (
	"time"

	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/google/uuid"
)

// CreateProductInput is what a farmer submits to list a lot.
type CreateProductInput struct {
	Name               string
	Description        string
	StartingPriceCents int64
	Quantity           int
	UnitType           enums.UnitType
	Grade              string
	ImageURLs          []string
	DurationHours      int
}

// HighestBid is the standing bid on a lot.
type HighestBid struct {
	AmountCents int64     `json:"amount_cents"`
	BidderID    uuid.UUID `json:"bidder_id"`
	PlacedAt    time.Time `json:"placed_at"`
}

// ProductView is a lot together with its bid history.
type ProductView struct {
	models.Product
	Highest      *HighestBid  `json:"highest_bid,omitempty"`
	PreviousBids []models.Bid `json:"previous_bids"`
}

// BidResult describes a successfully placed bid.
type BidResult struct {
	Product models.Product
	Bid     models.Bid
	// OutbidUserIDs are earlier bidders other than the new one.
	OutbidUserIDs []uuid.UUID
}

// ListParams configures product listings.
type ListParams struct {
	Status   *enums.ProductStatus
	SellerID *uuid.UUID
	BidderID *uuid.UUID
	WinnerID *uuid.UUID
	Limit    int
	Cursor   string
}

// ProductPage is one page of lots.
type ProductPage struct {
	Items  []models.Product `json:"items"`
	Cursor string           `json:"cursor"`
}

func newView(product *models.Product, bids []models.Bid) *ProductView {
	view := &ProductView{Product: *product, PreviousBids: []models.Bid{}}
	if product.HasBid() {
		view.Highest = &HighestBid{
			AmountCents: *product.HighestBidCents,
			BidderID:    *product.HighestBidderID,
		}
		if product.HighestBidAt != nil {
			view.Highest.PlacedAt = *product.HighestBidAt
		}
		// the standing bid is always the most recent one
		if len(bids) > 0 {
			bids = bids[:len(bids)-1]
		}
	}
	view.PreviousBids = append(view.PreviousBids, bids...)
	return view
}
