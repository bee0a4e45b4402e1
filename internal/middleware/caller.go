package middleware

import (
	"github.com/anonto42/nano-midea/notifications/pkg/domain"
	"github.com/labstack/echo/v4"
)

const (
	userIDKey = "userID"
	actorKey  = "actor"
)

// SetCaller records userID as the authenticated caller of c.
func SetCaller(c echo.Context, userID, name, avatar string) {
	c.Set(userIDKey, userID)
	c.Set(actorKey, domain.Actor{ID: userID, Name: name, Avatar: avatar})
}

// UserID returns the authenticated caller, or "" outside an authenticated group.
func UserID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}

// Actor returns the authenticated caller as a notification actor.
func Actor(c echo.Context) domain.Actor {
	if a, ok := c.Get(actorKey).(domain.Actor); ok {
		return a
	}
	return domain.Actor{ID: UserID(c)}
}
