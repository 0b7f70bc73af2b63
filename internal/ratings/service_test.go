package ratings

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/farmbid-backend/internal/users"
	"github.com/angelmondragon/farmbid-backend/pkg/db/dbtest"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmbid-backend/pkg/errors"
	"github.com/angelmondragon/farmbid-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	conn  *gorm.DB
	svc   *Service
	users *users.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.New(t)
	profiles, err := users.NewService(users.NewRepository(client.DB()))
	require.NoError(t, err)
	svc, err := NewService(NewRepository(client.DB()), profiles, nil)
	require.NoError(t, err)
	return &fixture{conn: client.DB(), svc: svc, users: profiles}
}

func (f *fixture) seedProduct(t *testing.T, seller, winner uuid.UUID, status enums.ProductStatus) uuid.UUID {
	t.Helper()
	now := time.Now().UTC()
	amount := int64(5000)
	p := models.Product{
		ID:                 uuid.New(),
		SellerID:           seller,
		Name:               "Potatoes",
		StartingPriceCents: 1000,
		Currency:           "INR",
		Quantity:           10,
		UnitType:           enums.UnitKilogram,
		ImageURLs:          types.StringList{},
		DurationHours:      1,
		EndTime:            now,
		Status:             status,
		HighestBidCents:    &amount,
		HighestBidderID:    &winner,
		BidCount:           1,
		BidAccepted:        true,
		ProductDelivered:   status == enums.ProductStatusDelivered,
		PaymentStatus:      enums.PaymentStatusEscrow,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if status == enums.ProductStatusDelivered {
		p.PaymentStatus = enums.PaymentStatusCompleted
		p.DeliveredAt = &now
	}
	require.NoError(t, f.conn.Create(&p).Error)
	return p.ID
}

func requireReason(t *testing.T, err error, reason pkgerrors.Reason) {
	t.Helper()
	require.True(t, pkgerrors.HasReason(err, reason), "expected %s, got %v", reason, err)
}

func TestSubmitRatingBothDirections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seller, winner := uuid.New(), uuid.New()
	productID := f.seedProduct(t, seller, winner, enums.ProductStatusDelivered)

	rating, err := f.svc.SubmitRating(ctx, SubmitInput{ProductID: productID, FromUserID: seller, ToUserID: winner, Score: 5, Review: "<b>Paid</b> promptly"})
	require.NoError(t, err)
	require.Equal(t, enums.RoleFarmer, rating.FromRole)
	require.Equal(t, enums.RoleMerchant, rating.ToRole)
	require.Equal(t, "Paid promptly", rating.Review)

	rating, err = f.svc.SubmitRating(ctx, SubmitInput{ProductID: productID, FromUserID: winner, ToUserID: seller, Score: 4})
	require.NoError(t, err)
	require.Equal(t, enums.RoleMerchant, rating.FromRole)
}

func TestSubmitRatingTwiceFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seller, winner := uuid.New(), uuid.New()
	productID := f.seedProduct(t, seller, winner, enums.ProductStatusDelivered)

	input := SubmitInput{ProductID: productID, FromUserID: winner, ToUserID: seller, Score: 3}
	_, err := f.svc.SubmitRating(ctx, input)
	require.NoError(t, err)

	input.Score = 5
	_, err = f.svc.SubmitRating(ctx, input)
	requireReason(t, err, pkgerrors.ReasonAlreadyRated)

	summary, err := f.svc.AverageRating(ctx, seller)
	require.NoError(t, err)
	require.Equal(t, &Summary{Average: 3, Count: 1}, summary, "the first rating stands")
}

func TestConcurrentDuplicateRatingsStoreOne(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seller, winner := uuid.New(), uuid.New()
	productID := f.seedProduct(t, seller, winner, enums.ProductStatusDelivered)

	const submitters = 2
	var wg sync.WaitGroup
	errs := make([]error, submitters)
	wg.Add(submitters)
	for i := range submitters {
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.SubmitRating(ctx, SubmitInput{ProductID: productID, FromUserID: winner, ToUserID: seller, Score: i + 3})
		}()
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		requireReason(t, err, pkgerrors.ReasonAlreadyRated)
	}
	require.Equal(t, 1, successes)

	var stored int64
	require.NoError(t, f.conn.Model(&models.Rating{}).
		Where("product_id = ? AND from_user_id = ? AND to_user_id = ?", productID, winner, seller).
		Count(&stored).Error)
	require.EqualValues(t, 1, stored)
}

func TestSubmitRatingGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seller, winner := uuid.New(), uuid.New()
	sold := f.seedProduct(t, seller, winner, enums.ProductStatusSold)
	delivered := f.seedProduct(t, seller, winner, enums.ProductStatusDelivered)

	_, err := f.svc.SubmitRating(ctx, SubmitInput{ProductID: uuid.New(), FromUserID: seller, ToUserID: winner, Score: 4})
	requireReason(t, err, pkgerrors.ReasonProductNotFound)

	_, err = f.svc.SubmitRating(ctx, SubmitInput{ProductID: sold, FromUserID: seller, ToUserID: winner, Score: 4})
	requireReason(t, err, pkgerrors.ReasonNotSettled)

	_, err = f.svc.SubmitRating(ctx, SubmitInput{ProductID: delivered, FromUserID: uuid.New(), ToUserID: seller, Score: 4})
	requireReason(t, err, pkgerrors.ReasonNotParticipant)

	for _, in := range []SubmitInput{
		{ProductID: delivered, FromUserID: seller, ToUserID: winner, Score: 0},
		{ProductID: delivered, FromUserID: seller, ToUserID: winner, Score: 6},
		{ProductID: delivered, FromUserID: seller, ToUserID: seller, Score: 4},
		{ProductID: delivered, FromUserID: seller, ToUserID: winner, Score: 4, Review: strings.Repeat("a", 201)},
	} {
		_, err = f.svc.SubmitRating(ctx, in)
		requireReason(t, err, pkgerrors.ReasonInvalidInput)
	}
}

func TestCheckEligibility(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seller, winner := uuid.New(), uuid.New()
	sold := f.seedProduct(t, seller, winner, enums.ProductStatusSold)
	delivered := f.seedProduct(t, seller, winner, enums.ProductStatusDelivered)

	e, err := f.svc.CheckEligibility(ctx, sold, winner, seller)
	require.NoError(t, err)
	require.Equal(t, Eligibility{}, *e)

	e, err = f.svc.CheckEligibility(ctx, delivered, winner, seller)
	require.NoError(t, err)
	require.Equal(t, Eligibility{CanRate: true}, *e)

	_, err = f.svc.SubmitRating(ctx, SubmitInput{ProductID: delivered, FromUserID: winner, ToUserID: seller, Score: 5})
	require.NoError(t, err)

	e, err = f.svc.CheckEligibility(ctx, delivered, winner, seller)
	require.NoError(t, err)
	require.Equal(t, Eligibility{HasRated: true}, *e)

	e, err = f.svc.CheckEligibility(ctx, delivered, uuid.New(), seller)
	require.NoError(t, err)
	require.False(t, e.CanRate)

	_, err = f.svc.CheckEligibility(ctx, uuid.New(), winner, seller)
	requireReason(t, err, pkgerrors.ReasonProductNotFound)
}

func TestAverageRatingRoundsAndRefreshesProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seller := uuid.New()
	_, err := f.users.EnsureProfile(ctx, users.EnsureProfileInput{UserID: seller, Role: enums.RoleFarmer, DisplayName: "Ramesh"})
	require.NoError(t, err)

	empty, err := f.svc.AverageRating(ctx, seller)
	require.NoError(t, err)
	require.Equal(t, &Summary{}, empty)

	for _, score := range []int{5, 4, 4} {
		winner := uuid.New()
		productID := f.seedProduct(t, seller, winner, enums.ProductStatusDelivered)
		_, err := f.svc.SubmitRating(ctx, SubmitInput{ProductID: productID, FromUserID: winner, ToUserID: seller, Score: score})
		require.NoError(t, err)
	}

	summary, err := f.svc.AverageRating(ctx, seller)
	require.NoError(t, err)
	require.Equal(t, &Summary{Average: 4.3, Count: 3}, summary)

	profile, err := f.users.Get(ctx, seller)
	require.NoError(t, err)
	require.Equal(t, 4.3, profile.RatingAverage)
	require.Equal(t, int64(3), profile.RatingCount)

	list, err := f.svc.ListForUser(ctx, seller, 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		require.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt))
	}
}
