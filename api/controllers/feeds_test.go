package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/farmbid-backend/api/middleware"
	"github.com/angelmondragon/farmbid-backend/internal/feeds"
	"github.com/angelmondragon/farmbid-backend/internal/notifications"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
)

type memoryStream struct {
	ch     chan *redis.Message
	once   sync.Once
	closed chan struct{}
}

func (s *memoryStream) Channel(...redis.ChannelOption) <-chan *redis.Message { return s.ch }

func (s *memoryStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type memoryTransport struct {
	mu      sync.Mutex
	streams map[string][]*memoryStream
	opened  chan *memoryStream
}

func newMemoryTransport() *memoryTransport {
	return &memoryTransport{streams: map[string][]*memoryStream{}, opened: make(chan *memoryStream, 4)}
}

func (t *memoryTransport) Publish(_ context.Context, channel string, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.streams[channel] {
		select {
		case <-s.closed:
		case s.ch <- &redis.Message{Channel: channel, Payload: string(payload)}:
		}
	}
	return nil
}

func (t *memoryTransport) Subscribe(_ context.Context, channels ...string) (feeds.Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := &memoryStream{ch: make(chan *redis.Message, 8), closed: make(chan struct{})}
	for _, c := range channels {
		t.streams[c] = append(t.streams[c], s)
	}
	t.opened <- s
	return s, nil
}

func (t *memoryTransport) FeedChannel(kind, id string) string {
	return "fb:feed:" + kind + ":" + id
}

func newFeedServer(t *testing.T, userID uuid.UUID, role enums.Role) (*httptest.Server, *feeds.Broker, *memoryTransport) {
	t.Helper()
	transport := newMemoryTransport()
	broker, err := feeds.NewBroker(transport, testLogger())
	if err != nil {
		t.Fatalf("new broker: %v", err)
	}
	opts := FeedOptions{Subscriber: broker, Logger: testLogger()}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithIdentity(req.Context(), userID, role)))
		})
	})
	r.Get("/feeds/products/{productId}", ProductFeed(opts))
	r.Get("/feeds/notifications", NotificationFeed(opts))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, broker, transport
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn
}

func awaitStream(t *testing.T, transport *memoryTransport) *memoryStream {
	t.Helper()
	select {
	case s := <-transport.opened:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("subscription was not opened")
		return nil
	}
}

func TestProductFeedStreamsEvents(t *testing.T) {
	srv, broker, transport := newFeedServer(t, uuid.New(), enums.RoleMerchant)
	productID := uuid.New()

	conn := dial(t, srv, "/feeds/products/"+productID.String())
	stream := awaitStream(t, transport)

	if err := broker.Publish(context.Background(), feeds.ProductTopic(productID), "price_update", &productID, map[string]int64{"amount_cents": 150000}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event feeds.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != "price_update" || event.ProductID == nil || *event.ProductID != productID {
		t.Fatalf("unexpected event %+v", event)
	}

	conn.Close()
	select {
	case <-stream.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not cancelled after client disconnect")
	}
}

func TestNotificationFeedSubscribesUserAndRole(t *testing.T) {
	userID := uuid.New()
	srv, broker, transport := newFeedServer(t, userID, enums.RoleMerchant)

	conn := dial(t, srv, "/feeds/notifications")
	defer conn.Close()
	awaitStream(t, transport)

	ctx := context.Background()
	if err := broker.Publish(ctx, feeds.RoleTopic(enums.RoleFarmer), "notification", nil, map[string]string{"for": "farmers"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := broker.Publish(ctx, feeds.RoleTopic(enums.RoleMerchant), "notification", nil, map[string]string{"for": "merchants"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := broker.Publish(ctx, feeds.UserTopic(userID), "notification", nil, map[string]string{"for": "me"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var got []string
	for i := 0; i < 2; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var event feeds.Event
		if err := conn.ReadJSON(&event); err != nil {
			t.Fatalf("read event %d: %v", i, err)
		}
		got = append(got, string(event.Data))
	}
	if got[0] != `{"for":"merchants"}` || got[1] != `{"for":"me"}` {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestNotificationFeedDropsOwnBroadcasts(t *testing.T) {
	bidder := uuid.New()
	srv, broker, transport := newFeedServer(t, bidder, enums.RoleMerchant)

	conn := dial(t, srv, "/feeds/notifications")
	defer conn.Close()
	awaitStream(t, transport)

	ctx := context.Background()
	rival := uuid.New()
	productID := uuid.New()
	broadcast := func(originator uuid.UUID) notifications.Item {
		return notifications.Item{
			ID:           uuid.New(),
			Type:         enums.NotificationPriceUpdate,
			ProductID:    &productID,
			OriginatorID: &originator,
			Broadcast:    true,
		}
	}
	own, other := broadcast(bidder), broadcast(rival)
	for _, item := range []notifications.Item{own, other} {
		if err := broker.Publish(ctx, feeds.RoleTopic(enums.RoleMerchant), notifications.FeedEventNotification, &productID, item); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event feeds.Event
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	var got notifications.Item
	if err := json.Unmarshal(event.Data, &got); err != nil {
		t.Fatalf("decode item: %v", err)
	}
	if got.ID != other.ID {
		t.Fatalf("expected the rival's broadcast first, got %+v", got)
	}
}

func TestOwnBroadcastKeepsDirectRows(t *testing.T) {
	viewer := uuid.New()
	skip := ownBroadcast(viewer)
	direct, err := json.Marshal(notifications.Item{Type: enums.NotificationTest, OriginatorID: &viewer})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if skip(feeds.Event{Type: notifications.FeedEventNotification, Data: direct}) {
		t.Fatal("direct rows addressed to the viewer must be delivered")
	}
	if skip(feeds.Event{Type: "price_update", Data: json.RawMessage(`{"amount_cents":1}`)}) {
		t.Fatal("product events are never filtered")
	}
}

func TestProductFeedRejectsBadID(t *testing.T) {
	srv, _, _ := newFeedServer(t, uuid.New(), enums.RoleMerchant)
	resp, err := http.Get(srv.URL + "/feeds/products/not-a-uuid")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.StatusCode)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:3000/"})
	req := httptest.NewRequest(http.MethodGet, "http://api.farmbid.test/feeds", nil)

	if !check(req) {
		t.Fatal("requests without origin are allowed")
	}
	req.Header.Set("Origin", "http://localhost:3000")
	if !check(req) {
		t.Fatal("configured origin should pass")
	}
	req.Header.Set("Origin", "http://api.farmbid.test")
	if !check(req) {
		t.Fatal("same host should pass")
	}
	req.Header.Set("Origin", "https://evil.example")
	if check(req) {
		t.Fatal("foreign origin should be rejected")
	}
}
