package handlers

import (
	"net/http"

	"github.com/anonto42/nano-midea/notifications/internal/middleware"
	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/anonto42/nano-midea/notifications/internal/notifications"
	"github.com/anonto42/nano-midea/notifications/internal/repositories"
	"github.com/anonto42/nano-midea/notifications/pkg/domain"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// NoCacheHeader makes the list endpoint read through to the store.
const NoCacheHeader = "X-No-Cache"

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	cache     *notifications.DeliveryCache
	creator   *notifications.Creator
	readState *notifications.ReadStateSynchronizer
	log       *logrus.Entry
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(cache *notifications.DeliveryCache, creator *notifications.Creator, readState *notifications.ReadStateSynchronizer, log *logrus.Entry) *NotificationHandler {
	return &NotificationHandler{
		cache:     cache,
		creator:   creator,
		readState: readState,
		log:       log.WithField("component", "notification-handler"),
	}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.PATCH("/notifications/read-all", h.MarkAllAsRead)
	g.PUT("/notifications/read-all", h.MarkAllAsRead)
	g.PATCH("/notifications/:id/read", h.MarkAsRead)
	g.PUT("/notifications/:id/read", h.MarkAsRead)
}

// GetNotifications returns the caller's recent notifications, newest first
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	currentUserID := middleware.UserID(c)
	if currentUserID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	bypass := c.Request().Header.Get(NoCacheHeader) == "true" || c.QueryParam("no_cache") == "true"
	list, err := h.cache.Get(c.Request().Context(), currentUserID, bypass)
	if err != nil {
		h.log.WithError(err).WithField("recipient", currentUserID).Error("failed to read notifications")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Notifications are temporarily unavailable")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"notifications": list,
			"unreadCount":   domain.CountUnread(list),
		},
	})
}

// GetUnreadCount returns the unread notification count
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	currentUserID := middleware.UserID(c)
	if currentUserID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	list, err := h.cache.Get(c.Request().Context(), currentUserID, false)
	if err != nil {
		h.log.WithError(err).WithField("recipient", currentUserID).Error("failed to count unread notifications")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "Notifications are temporarily unavailable")
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"count": domain.CountUnread(list)}})
}

// CreateNotification creates a notification on behalf of another service.
// It is mounted behind the service token, never behind end-user auth.
func (h *NotificationHandler) CreateNotification(c echo.Context) error {
	var req models.CreateNotificationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	id, err := h.creator.Create(c.Request().Context(), notifications.CreateParams{
		RecipientID: req.UserID,
		Kind:        domain.Kind(req.Type),
		Message:     req.Message,
		OriginID:    req.PostID,
		OriginLabel: req.PostTitle,
		ActorID:     req.RelatedUserID,
		ActorName:   req.RelatedUsername,
		ActorAvatar: req.RelatedUserImage,
	})
	if err != nil {
		return notificationError(err)
	}

	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": echo.Map{"id": id}})
}

// MarkAsRead marks one of the caller's notifications as read. An id the
// store cannot parse answers 404 like any other unknown id, not 400.
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	currentUserID := middleware.UserID(c)
	if currentUserID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	id := c.Param("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification ID")
	}

	if err := h.readState.MarkOneRead(c.Request().Context(), id, currentUserID); err != nil {
		return notificationError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"id": id, "isRead": true}})
}

// MarkAllAsRead marks all of the caller's notifications as read
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	currentUserID := middleware.UserID(c)
	if currentUserID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	count, err := h.readState.MarkAllRead(c.Request().Context(), currentUserID)
	if err != nil {
		return notificationError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"updatedCount": count}})
}

func notificationError(err error) error {
	switch {
	case errors.Is(err, notifications.ErrInvalidNotification):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, notifications.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, "Notification belongs to another user")
	case errors.Is(err, repositories.ErrNotificationNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Notification not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update notifications").SetInternal(err)
}
