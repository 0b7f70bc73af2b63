// Package feeds streams live marketplace updates over Redis Pub/Sub. A
// subscriber owns its Subscription handle; nothing is registered globally.
package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/farmbid-backend/pkg/redis"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const subscriptionBuffer = 32

// Topic names one live feed.
type Topic struct {
	Kind string
	ID   string
}

func ProductTopic(id uuid.UUID) Topic { return Topic{Kind: "product", ID: id.String()} }
func UserTopic(id uuid.UUID) Topic    { return Topic{Kind: "user", ID: id.String()} }
func RoleTopic(role enums.Role) Topic { return Topic{Kind: "role", ID: role.String()} }

// Event is one message on a feed.
type Event struct {
	Type      string          `json:"type"`
	ProductID *uuid.UUID      `json:"product_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	At        time.Time       `json:"at"`
}

// Stream is an open Pub/Sub connection. *redis.PubSub satisfies it.
type Stream interface {
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// Transport is the Pub/Sub backend.
type Transport interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (Stream, error)
	FeedChannel(kind, id string) string
}

type redisTransport struct {
	client *pkgredis.Client
}

// NewRedisTransport adapts the shared Redis client.
func NewRedisTransport(client *pkgredis.Client) Transport {
	return redisTransport{client: client}
}

func (t redisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	return t.client.Publish(ctx, channel, payload)
}

func (t redisTransport) Subscribe(ctx context.Context, channels ...string) (Stream, error) {
	return t.client.Subscribe(ctx, channels...)
}

func (t redisTransport) FeedChannel(kind, id string) string {
	return t.client.FeedChannel(kind, id)
}

// Broker publishes and subscribes to feed topics.
type Broker struct {
	transport Transport
	logg      *logger.Logger
	now       func() time.Time
}

func NewBroker(transport Transport, logg *logger.Logger) (*Broker, error) {
	if transport == nil {
		return nil, errors.New("feed transport required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Broker{transport: transport, logg: logg, now: time.Now}, nil
}

// Publish sends data to topic. Feeds are best-effort; callers log failures.
func (b *Broker) Publish(ctx context.Context, topic Topic, eventType string, productID *uuid.UUID, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Event{Type: eventType, ProductID: productID, Data: raw, At: b.now().UTC()})
	if err != nil {
		return err
	}
	return b.transport.Publish(ctx, b.transport.FeedChannel(topic.Kind, topic.ID), payload)
}

// Subscribe opens a subscription on topics. The caller must Cancel it.
func (b *Broker) Subscribe(ctx context.Context, topics ...Topic) (*Subscription, error) {
	if len(topics) == 0 {
		return nil, errors.New("at least one topic required")
	}
	channels := make([]string, 0, len(topics))
	for _, topic := range topics {
		channels = append(channels, b.transport.FeedChannel(topic.Kind, topic.ID))
	}
	stream, err := b.transport.Subscribe(ctx, channels...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		events: make(chan Event, subscriptionBuffer),
		stream: stream,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go sub.pump(ctx, b.logg)
	return sub, nil
}

// Subscription is a live handle on one or more topics.
type Subscription struct {
	events chan Event
	stream Stream
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Events yields feed events until the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Done is closed once the subscription has stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Cancel stops the subscription and waits for its goroutine. Safe to call
// more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.cancel()
		_ = s.stream.Close()
	})
	<-s.done
}

func (s *Subscription) pump(ctx context.Context, logg *logger.Logger) {
	defer close(s.done)
	defer close(s.events)

	messages := s.stream.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logg.Warn(logg.WithField(ctx, "channel", msg.Channel), "dropping malformed feed message")
				continue
			}
			select {
			case s.events <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}
