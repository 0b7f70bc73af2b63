package notifications

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/farmbid-backend/internal/feeds"
	"github.com/angelmondragon/farmbid-backend/pkg/db"
	"github.com/angelmondragon/farmbid-backend/pkg/db/models"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/farmbid-backend/pkg/errors"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
	"github.com/angelmondragon/farmbid-backend/pkg/metrics"
	"github.com/angelmondragon/farmbid-backend/pkg/pagination"
	"github.com/google/uuid"
)

// FeedEventNotification is the live feed event carrying a new notification.
const FeedEventNotification = "notification"

// Service defines notification write, list and read operations.
type Service interface {
	Notify(ctx context.Context, to Recipients, payload Payload) ([]models.Notification, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, userID uuid.UUID, role enums.Role, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID, role enums.Role) (int64, error)
	UnreadCount(ctx context.Context, userID uuid.UUID, role enums.Role) (int64, error)
}

// Directory resolves role audiences to concrete users.
type Directory interface {
	IDsByRole(ctx context.Context, role enums.Role, exclude *uuid.UUID) ([]uuid.UUID, error)
}

// FeedPublisher pushes new notifications to live subscribers.
type FeedPublisher interface {
	Publish(ctx context.Context, topic feeds.Topic, eventType string, productID *uuid.UUID, data any) error
}

type service struct {
	repo      Repository
	directory Directory
	feeds     FeedPublisher
	metrics   *metrics.MarketMetrics
	logg      *logger.Logger
	now       func() time.Time
}

// ServiceParams wires notifications dependencies. Feeds and Metrics are
// optional.
type ServiceParams struct {
	Repo      Repository
	Directory Directory
	Feeds     FeedPublisher
	Metrics   *metrics.MarketMetrics
	Logger    *logger.Logger
	Clock     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if params.Directory == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "user directory required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:      params.Repo,
		directory: params.Directory,
		feeds:     params.Feeds,
		metrics:   params.Metrics,
		logg:      logg,
		now:       func() time.Time { return clock().UTC() },
	}, nil
}

// Notify writes payload for the selected recipients. Fan-out-on-read types
// addressed to a role are stored once and resolved per viewer; every other
// role audience is expanded to one row per user, minus the originator.
func (s *service) Notify(ctx context.Context, to Recipients, payload Payload) ([]models.Notification, error) {
	payload.Title = strings.TrimSpace(payload.Title)
	payload.Message = strings.TrimSpace(payload.Message)
	if !payload.Type.IsValid() {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInvalidInput, "unknown notification type")
	}
	if payload.Title == "" || payload.Message == "" {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInvalidInput, "title and message are required")
	}
	if to.Role != nil && !to.Role.IsValid() {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInvalidInput, "unknown recipient role")
	}
	if len(to.UserIDs) == 0 && to.Role == nil {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInvalidInput, "recipient required")
	}

	now := s.now()
	build := func() models.Notification {
		return models.Notification{
			ID:           uuid.New(),
			OriginatorID: payload.OriginatorID,
			Type:         payload.Type,
			Title:        payload.Title,
			Message:      payload.Message,
			ProductID:    payload.ProductID,
			CreatedAt:    now,
		}
	}

	var rows []models.Notification
	seen := make(map[uuid.UUID]struct{})
	addUser := func(id uuid.UUID) {
		if id == uuid.Nil {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		row := build()
		recipient := id
		row.RecipientID = &recipient
		rows = append(rows, row)
	}

	for _, id := range to.UserIDs {
		addUser(id)
	}
	if to.Role != nil {
		if payload.Type.FanOutOnRead() {
			row := build()
			role := *to.Role
			row.RecipientRole = &role
			rows = append(rows, row)
		} else {
			ids, err := s.directory.IDsByRole(ctx, *to.Role, payload.OriginatorID)
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				addUser(id)
			}
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}

	if err := s.repo.CreateBatch(ctx, rows); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notifications")
	}
	s.metrics.AddNotifications(string(payload.Type), len(rows))
	s.publish(ctx, rows)
	return rows, nil
}

func (s *service) publish(ctx context.Context, rows []models.Notification) {
	if s.feeds == nil {
		return
	}
	for _, row := range rows {
		var topic feeds.Topic
		switch {
		case row.RecipientID != nil:
			topic = feeds.UserTopic(*row.RecipientID)
		case row.RecipientRole != nil:
			topic = feeds.RoleTopic(*row.RecipientRole)
		default:
			continue
		}
		if err := s.feeds.Publish(ctx, topic, FeedEventNotification, row.ProductID, itemFromModel(row, false)); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "notification_id", row.ID.String()), "feed publish failed: "+err.Error())
		}
	}
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !params.Role.IsValid() {
		return nil, pkgerrors.NewReason(pkgerrors.ReasonInvalidInput, "role required")
	}

	query := listNotificationsParams{
		Viewer:     viewer{UserID: params.UserID, Role: params.Role},
		Limit:      params.Limit,
		UnreadOnly: params.UnreadOnly,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, itemFromModel(row.Notification, row.ViewerRead))
	}
	return &ListResult{
		Items:  items,
		Cursor: pagination.EncodeNext(next),
	}, nil
}

// MarkRead flags one notification read for userID. Repeating it is a no-op.
func (s *service) MarkRead(ctx context.Context, userID uuid.UUID, role enums.Role, notificationID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if notificationID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}

	v := viewer{UserID: userID, Role: role}
	row, err := s.repo.FindVisible(ctx, v, notificationID)
	if err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.NewReason(pkgerrors.ReasonNotificationNotFound, "notification not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load notification")
	}

	now := s.now()
	if row.IsBroadcast() {
		_, err = s.repo.MarkBroadcastRead(ctx, userID, notificationID, now)
	} else {
		_, err = s.repo.MarkDirectRead(ctx, userID, notificationID, now)
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, userID uuid.UUID, role enums.Role) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	updated, err := s.repo.MarkAllRead(ctx, viewer{UserID: userID, Role: role}, s.now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return updated, nil
}

func (s *service) UnreadCount(ctx context.Context, userID uuid.UUID, role enums.Role) (int64, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	count, err := s.repo.UnreadCount(ctx, viewer{UserID: userID, Role: role})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread notifications")
	}
	return count, nil
}
