package router

import (
	"github.com/anonto42/nano-midea/notifications/internal/handlers"
	"github.com/anonto42/nano-midea/notifications/internal/notifications"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Dependencies are the services the routes are wired to.
type Dependencies struct {
	Cache     *notifications.DeliveryCache
	Creator   *notifications.Creator
	ReadState *notifications.ReadStateSynchronizer
	// Auth authenticates the end-user /api/v1 routes.
	Auth echo.MiddlewareFunc
	// ServiceAuth guards notification creation. Without it the create
	// route is not mounted.
	ServiceAuth echo.MiddlewareFunc
	Logger      *logrus.Entry
}

// SetupRoutes configures all application routes and injects dependencies
func SetupRoutes(e *echo.Echo, d Dependencies) {
	e.Validator = handlers.NewRequestValidator()

	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)

	api := e.Group("/api/v1")
	api.Use(d.Auth)

	notificationHandler := handlers.NewNotificationHandler(d.Cache, d.Creator, d.ReadState, d.Logger)
	notificationHandler.RegisterNotificationRoutes(api)
	if d.ServiceAuth != nil {
		// Registered on e so the end-user group middleware does not apply.
		e.POST("/api/v1/notifications", notificationHandler.CreateNotification, d.ServiceAuth)
	}

	reactionHandler := handlers.NewReactionHandler(d.Creator)
	reactionHandler.RegisterReactionRoutes(api)

	d.Logger.Debug("all routes configured")
}
