package handlers

import (
	"net/http"

	"github.com/anonto42/nano-midea/notifications/internal/middleware"
	"github.com/anonto42/nano-midea/notifications/internal/models"
	"github.com/anonto42/nano-midea/notifications/internal/notifications"
	"github.com/anonto42/nano-midea/notifications/pkg/domain"
	"github.com/labstack/echo/v4"
)

// ReactionHandler turns likes, comments and follows reported by the content
// services into notifications for the content owner.
type ReactionHandler struct {
	creator *notifications.Creator
}

// NewReactionHandler creates a new ReactionHandler
func NewReactionHandler(creator *notifications.Creator) *ReactionHandler {
	return &ReactionHandler{creator: creator}
}

// RegisterReactionRoutes registers reaction routes
func (h *ReactionHandler) RegisterReactionRoutes(g *echo.Group) {
	g.POST("/reactions", h.React)
}

// React notifies the owner about the caller's reaction. A failed notification
// never fails the request. The actor is always the authenticated caller, but
// ownerId and postText are taken from the body as-is: the route trusts its
// caller to have done the reaction on content that owner really owns.
func (h *ReactionHandler) React(c echo.Context) error {
	actor := middleware.Actor(c)
	if actor.ID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.ReactionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	notified := h.creator.NotifyReaction(c.Request().Context(), notifications.ReactionEvent{
		Kind:     domain.Kind(req.Type),
		OwnerID:  req.OwnerID,
		PostID:   req.PostID,
		PostText: req.PostText,
		Actor:    actor,
	})

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"notified": notified}})
}
