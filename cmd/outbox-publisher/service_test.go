package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmbid-backend/pkg/config"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox/registry"
)

func bidEvent(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventBidPlaced,
		AggregateType: enums.AggregateProduct,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t),
		AttemptCount:  attempts,
	}
}

func marketRegistry() *fakeRegistry {
	return &fakeRegistry{resolved: &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: "market-topic"},
		Payload:    &payloads.BidPlacedEvent{},
	}}
}

func TestProcessBatchKeepsGoingAfterTransientFailure(t *testing.T) {
	first, second := bidEvent(t, 0), bidEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	svc := newTestService(t, repo, pub, marketRegistry(), &fakeDLQRepo{}, nil)

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, []uuid.UUID{first.ID}, repo.failed)
	require.Equal(t, []uuid.UUID{second.ID}, repo.published)
}

func TestProcessBatchForwardsPayloadWithRoutingAttributes(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPaymentReleased,
		AggregateType: enums.AggregateEscrow,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t),
		CreatedAt:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	svc := newTestService(t, repo, pub, marketRegistry(), &fakeDLQRepo{}, nil)
	svc.publisherFactory = func(topic string) publisher {
		require.Equal(t, "market-topic", topic)
		return pub
	}

	_, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, pub.sent, 1)
	require.Equal(t, []byte(event.Payload), pub.sent[0].Data)
	require.Equal(t, map[string]string{
		"event_id":       event.ID.String(),
		"event_type":     string(enums.EventPaymentReleased),
		"aggregate_type": string(enums.AggregateEscrow),
		"aggregate_id":   event.AggregateID.String(),
		"schema_version": "0",
		"created_at":     "2026-03-01T09:00:00Z",
	}, pub.sent[0].Attributes)
	require.Equal(t, []uuid.UUID{event.ID}, repo.published)
}

func TestPublishersAreReusedPerTopicAndStopped(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{bidEvent(t, 0), bidEvent(t, 0)}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}, fakePublishResult{}, fakePublishResult{}, fakePublishResult{}}}
	svc := newTestService(t, repo, pub, marketRegistry(), &fakeDLQRepo{}, nil)
	built := 0
	svc.publisherFactory = func(string) publisher {
		built++
		return pub
	}

	for range 2 {
		_, err := svc.processBatch(context.Background())
		require.NoError(t, err)
	}
	require.Equal(t, 1, built)
	require.Len(t, pub.sent, 4)

	svc.stopPublishers()
	require.Equal(t, 1, pub.stopped)
	require.Empty(t, svc.publishers)
}

func TestProcessBatchIdleWhenOutboxEmpty(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, nil)
	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	require.False(t, processed)
}

func TestProcessBatchDeadLetters(t *testing.T) {
	cases := []struct {
		name     string
		attempts int
		registry *fakeRegistry
		results  []publishResult
		factory  publisherFactory
		reason   enums.OutboxDLQErrorReason
	}{
		{
			name:     "undecodable event",
			registry: &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))},
			reason:   enums.OutboxDLQReasonNonRetryable,
		},
		{
			name:     "attempts exhausted",
			attempts: 1,
			registry: marketRegistry(),
			results:  []publishResult{fakePublishResult{err: errors.New("transient")}},
			reason:   enums.OutboxDLQReasonMaxAttempts,
		},
		{
			name:     "unknown topic",
			registry: marketRegistry(),
			factory:  func(string) publisher { return nil },
			reason:   enums.OutboxDLQReasonNonRetryable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := bidEvent(t, tc.attempts)
			repo := &fakeRepo{events: []models.OutboxEvent{event}}
			dlq := &fakeDLQRepo{}
			svc := newTestService(t, repo, &fakePublisher{results: tc.results}, tc.registry, dlq, &config.OutboxConfig{
				BatchSize:   1,
				MaxAttempts: 2,
			})
			if tc.factory != nil {
				svc.publisherFactory = tc.factory
			}

			processed, err := svc.processBatch(context.Background())
			require.NoError(t, err)
			require.True(t, processed)
			require.Len(t, dlq.entries, 1)
			entry := dlq.entries[0]
			require.Equal(t, event.ID, entry.EventID)
			require.Equal(t, tc.reason, entry.ErrorReason)
			require.Equal(t, []byte(event.Payload), []byte(entry.Payload))
			require.NotNil(t, entry.ErrorMessage)
			require.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
			require.Empty(t, repo.published)
		})
	}
}

func TestPollPolicyBacksOffToCeiling(t *testing.T) {
	p := pollPolicy{base: 100 * time.Millisecond, ceiling: time.Second}
	within := func(d, want time.Duration) {
		t.Helper()
		require.GreaterOrEqual(t, d, want)
		require.Less(t, d, want+jitterWindow)
	}
	within(p.wait(0), 100*time.Millisecond)
	within(p.wait(1), 200*time.Millisecond)
	within(p.wait(3), 800*time.Millisecond)
	within(p.wait(4), time.Second)
	within(p.wait(40), time.Second)
}

func TestNewServiceDefaults(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, &config.OutboxConfig{})
	require.Equal(t, defaultBatchSize, svc.batchSize)
	require.Equal(t, defaultMaxAttempts, svc.maxAttempts)
	require.Equal(t, defaultPollInterval, svc.poll.base)
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, resolver registryResolver, dlq dlqRepository, override *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{BatchSize: 2, PollIntervalMS: 100, MaxAttempts: 5}
	if override != nil {
		outboxCfg = *override
	}
	svc, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: outboxCfg},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               fakeDB{},
		PubSub:           fakePubSubClient{},
		Repository:       repo,
		Registry:         resolver,
		PublisherFactory: func(string) publisher { return pub },
		DLQRepository:    dlq,
	})
	require.NoError(t, err)
	return svc
}

func mustEnvelopePayload(t *testing.T) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return payload
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSubClient struct{}

func (fakePubSubClient) Ping(context.Context) error { return nil }

func (fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results []publishResult
	sent    []*gcppubsub.Message
	stopped int
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

func (f *fakePublisher) Stop() { f.stopped++ }

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
