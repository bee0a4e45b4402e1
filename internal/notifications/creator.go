package notifications

import (
	"context"

	"github.com/anonto42/nano-midea/notifications/internal/repositories"
	"github.com/anonto42/nano-midea/notifications/pkg/domain"
	"github.com/go-playground/validator/v10"
	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrInvalidNotification is returned for creation requests missing required fields.
var ErrInvalidNotification = errors.New("invalid notification")

// Column sizes of the display fields. Longer values are truncated.
const (
	maxOriginLabelLength = 64
	maxActorNameLength   = 100
)

// CreateParams describes a notification to create. Only missing required
// fields and IDs longer than the store's key columns are rejected.
type CreateParams struct {
	RecipientID string      `validate:"required,max=64"`
	Kind        domain.Kind `validate:"required,oneof=like comment follow system"`
	Message     string      `validate:"required"`
	OriginID    string      `validate:"required_if=Kind like,required_if=Kind comment,max=64"`
	OriginLabel string
	ActorID     string `validate:"required_if=Kind like,required_if=Kind comment,required_if=Kind follow,max=64"`
	ActorName   string
	ActorAvatar string
}

// Creator writes notifications and invalidates the recipient's cached page.
type Creator struct {
	store       repositories.NotificationRepository
	invalidator Invalidator
	validate    *validator.Validate
	clock       clock.Clock
	log         *logrus.Entry
	metrics     *Metrics
}

// NewCreator creates a Creator. invalidator may be nil.
func NewCreator(store repositories.NotificationRepository, invalidator Invalidator, clk clock.Clock, log *logrus.Entry, metrics *Metrics) *Creator {
	if invalidator == nil {
		invalidator = Invalidators(nil)
	}
	if clk == nil {
		clk = clock.WallClock
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Creator{
		store:       store,
		invalidator: invalidator,
		validate:    validator.New(),
		clock:       clk,
		log:         log.WithField("component", "creator"),
		metrics:     metrics,
	}
}

// Create validates p, appends the notification and invalidates the
// recipient's cache. Failures are logged before they are returned.
func (c *Creator) Create(ctx context.Context, p CreateParams) (string, error) {
	log := c.log.WithFields(logrus.Fields{"recipient": p.RecipientID, "type": p.Kind})

	if err := c.validate.Struct(p); err != nil {
		c.metrics.CreateFailures.Inc()
		log.WithError(err).Warn("rejected notification")
		return "", errors.WithMessage(ErrInvalidNotification, err.Error())
	}

	payload, err := domain.BuildPayload(p.Kind, domain.Fields{
		PostID:           p.OriginID,
		PostTitle:        truncate(p.OriginLabel, maxOriginLabelLength),
		RelatedUserID:    p.ActorID,
		RelatedUsername:  truncate(p.ActorName, maxActorNameLength),
		RelatedUserImage: p.ActorAvatar,
	})
	if err != nil {
		c.metrics.CreateFailures.Inc()
		return "", errors.WithMessage(ErrInvalidNotification, err.Error())
	}

	n := &domain.Notification{
		RecipientID: p.RecipientID,
		Message:     p.Message,
		Payload:     payload,
		CreatedAt:   c.clock.Now().UTC(),
	}
	id, err := c.store.Append(ctx, n)
	if err != nil {
		c.metrics.CreateFailures.Inc()
		log.WithError(err).Error("failed to create notification")
		return "", err
	}

	c.invalidator.Invalidate(p.RecipientID)
	c.metrics.Created.Inc()
	log.WithField("id", id).Debug("notification created")
	return id, nil
}

// Notify is Create for callers that must not fail because of a
// notification. It reports whether a notification was written.
func (c *Creator) Notify(ctx context.Context, p CreateParams) bool {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.CreateFailures.Inc()
			c.log.WithField("panic", r).Error("recovered while creating notification")
		}
	}()
	_, err := c.Create(ctx, p)
	return err == nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
