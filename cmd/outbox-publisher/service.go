package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/farmbid-backend/pkg/config"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
	"github.com/angelmondragon/farmbid-backend/pkg/metrics"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox"
	"github.com/angelmondragon/farmbid-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	Stop()
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.MarketMetrics
}

// Service relays committed marketplace events from outbox_events to the
// market Pub/Sub topic. Rows are claimed with SKIP LOCKED inside one
// transaction per batch, so several relays can share a database.
type Service struct {
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	registry         registryResolver
	dlq              dlqRepository
	publisherFactory publisherFactory
	publishers       map[string]publisher
	metrics          *metrics.MarketMetrics
	batchSize        int
	maxAttempts      int
	poll             pollPolicy
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic))
		}
	}

	cfg := params.Config.Outbox
	interval := time.Duration(cfg.PollIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = defaultPollInterval
	}

	return &Service{
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		registry:         params.Registry,
		dlq:              params.DLQRepository,
		publisherFactory: factory,
		publishers:       map[string]publisher{},
		metrics:          params.Metrics,
		batchSize:        positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:      positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		poll:             pollPolicy{base: interval, ceiling: maxBackoff},
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run drains the outbox until ctx is cancelled. A full batch is followed
// immediately by the next one; an empty batch waits one poll interval and a
// failing batch backs off exponentially.
func (s *Service) Run(ctx context.Context) error {
	for _, dep := range []struct {
		name string
		ping func(context.Context) error
	}{{"database", s.db.Ping}, {"pubsub", s.pubsub.Ping}} {
		if err := dep.ping(ctx); err != nil {
			err = fmt.Errorf("%s ping failed: %w", dep.name, err)
			s.logg.Error(ctx, "outbox.dependency_down", err)
			return err
		}
	}
	defer s.stopPublishers()

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox.stopping")
			return err
		}

		processed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			failures++
			s.logg.Error(s.logg.WithField(ctx, "consecutive_failures", failures), "outbox.batch_failed", err)
		case processed:
			failures = 0
			continue
		default:
			failures = 0
		}

		if err := sleepCtx(ctx, s.poll.wait(failures)); err != nil {
			return err
		}
	}
}

// outcome is what happened to one event on the wire.
type outcome struct {
	published bool
	// dlqReason is set when the row must not be retried.
	dlqReason enums.OutboxDLQErrorReason
	err       error
	topic     string
	envelope  outbox.PayloadEnvelope
}

// processBatch claims up to batchSize rows, hands all of them to the bus
// before waiting on any acknowledgement, then records each outcome in the
// claiming transaction. It reports whether any row was claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events)

		publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
		defer cancel()
		inflight := make([]sent, len(events))
		for i, event := range events {
			inflight[i] = s.send(publishCtx, event)
		}
		for i, event := range events {
			if err := s.record(ctx, tx, event, s.settle(publishCtx, event, inflight[i])); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed > 0, err
}

// sent is an event handed to a publisher whose server ack is still pending.
type sent struct {
	resolved *registry.ResolvedEvent
	result   publishResult
	err      error
}

func (s *Service) send(ctx context.Context, event models.OutboxEvent) sent {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return sent{err: err}
	}
	topic := resolved.Descriptor.Topic
	pub := s.publisherFor(topic)
	if pub == nil {
		return sent{resolved: resolved, err: registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))}
	}
	result := pub.Publish(ctx, &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: messageAttributes(event, resolved.Envelope),
	})
	if result == nil {
		return sent{resolved: resolved, err: registry.NewNonRetryableError(fmt.Errorf("publisher for %s returned no result", topic))}
	}
	return sent{resolved: resolved, result: result}
}

func (s *Service) settle(ctx context.Context, event models.OutboxEvent, in sent) outcome {
	var out outcome
	if in.resolved != nil {
		out.topic = in.resolved.Descriptor.Topic
		out.envelope = in.resolved.Envelope
	}
	err := in.err
	if err == nil {
		_, err = in.result.Get(ctx)
	}

	var nonRetry registry.NonRetryableError
	switch {
	case err == nil:
		out.published = true
	case errors.As(err, &nonRetry):
		out.dlqReason = enums.OutboxDLQReasonNonRetryable
		out.err = err
	case event.AttemptCount+1 >= s.maxAttempts:
		out.dlqReason = enums.OutboxDLQReasonMaxAttempts
		out.err = fmt.Errorf("max publish attempts reached: %w", err)
	default:
		out.err = err
	}
	return out
}

// publisherFor reuses one publisher per topic; each holds its own batching
// goroutines until stopPublishers.
func (s *Service) publisherFor(topic string) publisher {
	if pub, ok := s.publishers[topic]; ok {
		return pub
	}
	pub := s.publisherFactory(topic)
	if pub != nil {
		s.publishers[topic] = pub
	}
	return pub
}

func (s *Service) stopPublishers() {
	for topic, pub := range s.publishers {
		pub.Stop()
		delete(s.publishers, topic)
	}
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, out outcome) error {
	logCtx := s.eventContext(ctx, event, out)
	eventType := string(event.EventType)

	if out.published {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.ObserveOutbox(eventType, "published")
		s.logg.Info(logCtx, "outbox.published")
		return nil
	}

	logCtx = s.logg.WithField(logCtx, "error", out.err.Error())
	if out.dlqReason == "" {
		s.logg.Warn(s.logg.WithField(logCtx, "attempt_count", event.AttemptCount+1), "outbox.publish_failed")
		s.metrics.ObserveOutbox(eventType, "retry")
		if err := s.repo.MarkFailedTx(tx, event.ID, out.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		return nil
	}

	s.logg.Warn(s.logg.WithField(logCtx, "error_reason", out.dlqReason), "outbox.dead_lettered")
	msg := out.err.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   out.dlqReason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, out.err, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.ObserveOutbox(eventType, "dead_letter")
	return nil
}

// messageAttributes lets subscribers route and dedupe without decoding the
// payload. event_id is the consumer idempotency key.
func messageAttributes(event models.OutboxEvent, envelope outbox.PayloadEnvelope) map[string]string {
	return map[string]string{
		"event_id":       envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"schema_version": strconv.Itoa(envelope.Version),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
}

func (s *Service) eventContext(ctx context.Context, event models.OutboxEvent, out outcome) context.Context {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if out.topic != "" {
		fields["topic"] = out.topic
	}
	if out.envelope.EventID != "" {
		fields["event_id"] = out.envelope.EventID
		fields["occurred_at"] = out.envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	ctx = s.logg.WithFields(ctx, fields)
	if event.AggregateType == enums.AggregateProduct {
		ctx = s.logg.WithProductID(ctx, event.AggregateID.String())
	}
	return ctx
}

// pollPolicy computes the pause between batches: base while healthy, then
// base doubled per consecutive failure up to ceiling, plus jitter.
type pollPolicy struct {
	base    time.Duration
	ceiling time.Duration
}

func (p pollPolicy) wait(failures int) time.Duration {
	d := p.base
	for i := 0; i < failures && d < p.ceiling; i++ {
		d *= 2
	}
	if d > p.ceiling {
		d = p.ceiling
	}
	return d + rand.N(jitterWindow)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type gcpPublisher struct {
	topic *gcppubsub.Publisher
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return gcpPublisher{topic: p}
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.topic.Publish(ctx, msg)
}

// Stop flushes buffered messages and releases the batching goroutines.
func (p gcpPublisher) Stop() { p.topic.Stop() }
