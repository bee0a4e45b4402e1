package notifications

import (
	"context"

	"github.com/anonto42/nano-midea/notifications/internal/repositories"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrUnauthorized is returned when a caller marks a notification that
// belongs to someone else.
var ErrUnauthorized = errors.New("notification belongs to another user")

// ReadStateSynchronizer applies mark-as-read operations on behalf of a caller.
// Successful changes invalidate the caller's cached page so the next read
// does not report the notification as unread again.
type ReadStateSynchronizer struct {
	store       repositories.NotificationRepository
	invalidator Invalidator
	log         *logrus.Entry
}

// NewReadStateSynchronizer creates a ReadStateSynchronizer. invalidator may be nil.
func NewReadStateSynchronizer(store repositories.NotificationRepository, invalidator Invalidator, log *logrus.Entry) *ReadStateSynchronizer {
	if invalidator == nil {
		invalidator = Invalidators(nil)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ReadStateSynchronizer{
		store:       store,
		invalidator: invalidator,
		log:         log.WithField("component", "read-state"),
	}
}

// MarkOneRead marks id read if it belongs to callerID. It returns
// repositories.ErrNotificationNotFound or ErrUnauthorized without touching
// the store otherwise. Marking an already read notification succeeds.
func (s *ReadStateSynchronizer) MarkOneRead(ctx context.Context, id, callerID string) error {
	owner, err := s.store.OwnerOf(ctx, id)
	if err != nil {
		return err
	}
	if owner != callerID {
		s.log.WithFields(logrus.Fields{"id": id, "caller": callerID}).Warn("refused to mark foreign notification read")
		return ErrUnauthorized
	}
	if err := s.store.MarkRead(ctx, id); err != nil {
		return err
	}
	s.invalidator.Invalidate(callerID)
	return nil
}

// MarkAllRead marks every unread notification of callerID read and returns
// how many changed.
func (s *ReadStateSynchronizer) MarkAllRead(ctx context.Context, callerID string) (int64, error) {
	count, err := s.store.MarkAllRead(ctx, callerID)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.invalidator.Invalidate(callerID)
	}
	s.log.WithFields(logrus.Fields{"caller": callerID, "count": count}).Debug("marked all notifications read")
	return count, nil
}
