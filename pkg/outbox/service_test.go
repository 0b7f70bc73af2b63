package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmbid-backend/pkg/db/dbtest"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox/payloads"
)

func TestEmitStagesDecodableEnvelope(t *testing.T) {
	ctx := context.Background()
	client := dbtest.New(t)
	svc := NewService(NewRepository(client.DB()), nil)

	productID, farmer := uuid.New(), uuid.New()
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventAuctionClosed,
			AggregateType: enums.AggregateProduct,
			AggregateID:   productID,
			Actor:         Actor(farmer, enums.RoleFarmer),
			Data:          payloads.AuctionClosedEvent{ProductID: productID, SellerID: farmer},
		})
	}))

	var rows []models.OutboxEvent
	require.NoError(t, client.DB().Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, productID, rows[0].AggregateID)
	require.Nil(t, rows[0].PublishedAt)

	envelope, eventID, err := DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, eventID)
	require.Equal(t, EnvelopeVersion, envelope.Version)
	require.Equal(t, "farmer", envelope.Actor.Role)
	require.Contains(t, string(envelope.Data), productID.String())
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	ctx := context.Background()
	client := dbtest.New(t)
	svc := NewService(NewRepository(client.DB()), nil)

	abort := errors.New("bid rejected")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventBidPlaced,
			AggregateType: enums.AggregateProduct,
			AggregateID:   uuid.New(),
			Data:          map[string]any{},
		}); err != nil {
			return err
		}
		return abort
	})
	require.ErrorIs(t, err, abort)

	var count int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestEmitRejectsMalformedEvents(t *testing.T) {
	svc := NewService(nil, nil)
	tx := &gorm.DB{}
	cases := map[string]DomainEvent{
		"unknown type":      {EventType: "harvest_logged", AggregateType: enums.AggregateProduct, AggregateID: uuid.New()},
		"unknown aggregate": {EventType: enums.EventBidPlaced, AggregateType: "farm", AggregateID: uuid.New()},
		"missing aggregate": {EventType: enums.EventBidPlaced, AggregateType: enums.AggregateProduct},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, svc.Emit(context.Background(), tx, event))
		})
	}
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{}))
}

func TestDecodeEnvelopeRejectsFutureVersions(t *testing.T) {
	_, _, err := DecodeEnvelope([]byte(`{"version":2,"eventId":"` + uuid.NewString() + `","data":{}}`))
	require.ErrorContains(t, err, "newer")

	_, _, err = DecodeEnvelope([]byte(`{"version":1,"eventId":"nope","data":{}}`))
	require.ErrorContains(t, err, "event id")

	_, _, err = DecodeEnvelope([]byte(`not json`))
	require.Error(t, err)
}

func TestDeletePublishedBeforeSkipsPendingRows(t *testing.T) {
	ctx := context.Background()
	client := dbtest.New(t)
	repo := NewRepository(client.DB())
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	seed := func(publishedAt *time.Time) {
		require.NoError(t, client.DB().Create(&models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     enums.EventBidPlaced,
			AggregateType: enums.AggregateProduct,
			AggregateID:   uuid.New(),
			Payload:       []byte(`{}`),
			PublishedAt:   publishedAt,
		}).Error)
	}
	old := now.Add(-40 * 24 * time.Hour)
	for range 3 {
		seed(&old)
	}
	seed(nil)
	recent := now.Add(-time.Hour)
	seed(&recent)

	cutoff := now.Add(-30 * 24 * time.Hour)
	n, err := repo.DeletePublishedBefore(ctx, cutoff, 2)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	n, err = repo.DeletePublishedBefore(ctx, cutoff, 2)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	var left int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&left).Error)
	require.EqualValues(t, 2, left, "pending and recent rows stay")
}
