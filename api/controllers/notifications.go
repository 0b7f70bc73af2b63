package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/farmbid-backend/api/responses"
	"github.com/angelmondragon/farmbid-backend/api/validators"
	"github.com/angelmondragon/farmbid-backend/internal/notifications"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
)

// ListNotifications returns the caller's notifications, newest first,
// including role broadcasts they did not originate.
func ListNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "notifications")
			return
		}
		userID, role, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}

		params := notifications.ListParams{
			UserID: userID,
			Role:   role,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		limit, err := validators.ParseQueryInt(r, "limit", 0, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params.Limit = limit
		if params.UnreadOnly, err = validators.QueryBool(r, "unreadOnly"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unread, err := svc.UnreadCount(r.Context(), userID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"items":  resp.Items,
			"cursor": resp.Cursor,
			"unread": unread,
		})
	}
}

func MarkNotificationRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "notifications")
			return
		}
		userID, role, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		notificationID, err := validators.URLParamUUID(r, "notificationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.MarkRead(r.Context(), userID, role, notificationID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"read": true})
	}
}

func MarkAllNotificationsRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "notifications")
			return
		}
		userID, role, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		updated, err := svc.MarkAllRead(r.Context(), userID, role)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"updated": updated})
	}
}

type testNotificationRequest struct {
	Title   string `json:"title" validate:"max=120"`
	Message string `json:"message" validate:"max=500"`
}

// SendTestNotification writes a test notification to the caller. Only routed
// outside production.
func SendTestNotification(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "notifications")
			return
		}
		userID, _, ok := requireIdentity(w, r, logg)
		if !ok {
			return
		}
		var payload testNotificationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		title := validators.SanitizeString(payload.Title, 120)
		if title == "" {
			title = "Test notification"
		}
		message := validators.SanitizeString(payload.Message, 500)
		if message == "" {
			message = "Notifications are working."
		}

		rows, err := svc.Notify(r.Context(), notifications.Recipients{UserIDs: []uuid.UUID{userID}}, notifications.Payload{
			Type:    enums.NotificationTest,
			Title:   title,
			Message: message,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]int{"created": len(rows)})
	}
}
