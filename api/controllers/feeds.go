package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/angelmondragon/farmbid-backend/api/responses"
	"github.com/angelmondragon/farmbid-backend/api/validators"
	"github.com/angelmondragon/farmbid-backend/internal/feeds"
	"github.com/angelmondragon/farmbid-backend/internal/notifications"
	pkgerrors "github.com/angelmondragon/farmbid-backend/pkg/errors"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
	"github.com/angelmondragon/farmbid-backend/pkg/metrics"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = (feedPongWait * 9) / 10
	feedReadLimit  = 512
)

// FeedSubscriber opens live feed subscriptions.
type FeedSubscriber interface {
	Subscribe(ctx context.Context, topics ...feeds.Topic) (*feeds.Subscription, error)
}

// FeedOptions configures the WebSocket feed handlers.
type FeedOptions struct {
	Subscriber     FeedSubscriber
	AllowedOrigins []string
	Metrics        *metrics.MarketMetrics
	Logger         *logger.Logger
}

// ProductFeed streams price updates and status changes for one lot.
func ProductFeed(opts FeedOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.URLParamUUID(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), opts.Logger, w, err)
			return
		}
		ctx := opts.Logger.WithProductID(r.Context(), productID.String())
		serveFeed(w, r.WithContext(ctx), opts, "product", nil, feeds.ProductTopic(productID))
	}
}

// NotificationFeed streams new notifications addressed to the caller or
// broadcast to the caller's role. Role broadcasts the caller originated are
// dropped, matching what List shows them.
func NotificationFeed(opts FeedOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, role, ok := requireIdentity(w, r, opts.Logger)
		if !ok {
			return
		}
		serveFeed(w, r, opts, "notifications", ownBroadcast(userID), feeds.UserTopic(userID), feeds.RoleTopic(role))
	}
}

// ownBroadcast matches broadcast notification events originated by viewer.
func ownBroadcast(viewer uuid.UUID) func(feeds.Event) bool {
	return func(event feeds.Event) bool {
		if event.Type != notifications.FeedEventNotification {
			return false
		}
		var item notifications.Item
		if err := json.Unmarshal(event.Data, &item); err != nil {
			return false
		}
		return item.Broadcast && item.OriginatorID != nil && *item.OriginatorID == viewer
	}
}

// serveFeed upgrades the request and pumps topic events to the socket,
// skipping any event for which skip returns true.
func serveFeed(w http.ResponseWriter, r *http.Request, opts FeedOptions, feed string, skip func(feeds.Event) bool, topics ...feeds.Topic) {
	ctx := r.Context()
	if opts.Subscriber == nil {
		serviceUnavailable(w, r, opts.Logger, "feed")
		return
	}

	sub, err := opts.Subscriber.Subscribe(ctx, topics...)
	if err != nil {
		responses.WriteError(ctx, opts.Logger, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open feed"))
		return
	}
	defer sub.Cancel()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		opts.Logger.Warn(opts.Logger.WithField(ctx, "error", err.Error()), "feed.upgrade_failed")
		return
	}
	defer conn.Close()

	done := opts.Metrics.FeedConnected(feed)
	defer done()
	opts.Logger.Debug(ctx, "feed.connected")

	readDone := make(chan struct{})
	go readPump(conn, readDone)
	writePump(ctx, conn, sub, readDone, skip, opts.Logger)
	opts.Logger.Debug(ctx, "feed.disconnected")
}

// readPump drains client frames so pongs and close frames are processed.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(feedReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(feedPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, sub *feeds.Subscription, readDone <-chan struct{}, skip func(feeds.Event) bool, logg *logger.Logger) {
	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			writeClose(conn)
			return
		case <-readDone:
			return
		case event, ok := <-sub.Events():
			if !ok {
				writeClose(conn)
				return
			}
			if skip != nil && skip(event) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				logg.Debug(logg.WithField(ctx, "error", err.Error()), "feed.write_failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeClose(conn *websocket.Conn) {
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(feedWriteWait),
	)
}

// originChecker accepts same-host requests, requests without an Origin
// header, and any configured CORS origin. "*" allows everything.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.TrimSpace(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		if _, ok := set[strings.TrimRight(origin, "/")]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
