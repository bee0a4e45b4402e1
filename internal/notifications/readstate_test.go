package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/anonto42/nano-midea/notifications/internal/repositories"
)

func TestMarkOneReadRejectsOtherUsers(t *testing.T) {
	store := repositories.NewMemoryNotificationRepository()
	inv := &recordingInvalidator{}
	log, _ := nullLogger()
	sync := NewReadStateSynchronizer(store, inv, log)
	ctx := context.Background()
	id := seed(t, store, "bob", "hello", epoch)

	if err := sync.MarkOneRead(ctx, id, "alice"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("MarkOneRead() error = %v, want ErrUnauthorized", err)
	}
	list, _ := store.ListRecent(ctx, "bob", 30)
	if list[0].IsRead {
		t.Error("unauthorized mark-read changed the read flag")
	}
	if len(inv.calls()) != 0 {
		t.Error("unauthorized mark-read invalidated the cache")
	}
}

func TestMarkOneReadNotFound(t *testing.T) {
	log, _ := nullLogger()
	sync := NewReadStateSynchronizer(repositories.NewMemoryNotificationRepository(), nil, log)

	err := sync.MarkOneRead(context.Background(), "42", "bob")
	if !errors.Is(err, repositories.ErrNotificationNotFound) {
		t.Fatalf("MarkOneRead() error = %v, want ErrNotificationNotFound", err)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Error("not found must be reported distinctly from unauthorized")
	}
}

func TestMarkOneReadIsIdempotent(t *testing.T) {
	store := repositories.NewMemoryNotificationRepository()
	inv := &recordingInvalidator{}
	log, _ := nullLogger()
	sync := NewReadStateSynchronizer(store, inv, log)
	ctx := context.Background()
	id := seed(t, store, "bob", "hello", epoch)

	for i := 0; i < 2; i++ {
		if err := sync.MarkOneRead(ctx, id, "bob"); err != nil {
			t.Fatalf("MarkOneRead() #%d error: %v", i+1, err)
		}
	}
	list, _ := store.ListRecent(ctx, "bob", 30)
	if !list[0].IsRead {
		t.Error("notification is still unread")
	}
	if got := inv.calls(); len(got) != 2 || got[0] != "bob" {
		t.Errorf("invalidations = %v, want bob twice", got)
	}
}

func TestMarkAllReadTwice(t *testing.T) {
	store := repositories.NewMemoryNotificationRepository()
	inv := &recordingInvalidator{}
	log, _ := nullLogger()
	sync := NewReadStateSynchronizer(store, inv, log)
	ctx := context.Background()
	seed(t, store, "bob", "one", epoch)
	seed(t, store, "bob", "two", epoch)

	first, err := sync.MarkAllRead(ctx, "bob")
	if err != nil {
		t.Fatalf("MarkAllRead() error: %v", err)
	}
	second, err := sync.MarkAllRead(ctx, "bob")
	if err != nil {
		t.Fatalf("MarkAllRead() error: %v", err)
	}
	if first != 2 || second != 0 {
		t.Errorf("MarkAllRead() counts = %d, %d; want 2, 0", first, second)
	}
	if got := inv.calls(); len(got) != 1 {
		t.Errorf("invalidations = %v, want exactly one", got)
	}
}

func TestMarkReadPropagatesStoreFailure(t *testing.T) {
	store := repositories.NewMemoryNotificationRepository()
	log, _ := nullLogger()
	sync := NewReadStateSynchronizer(store, nil, log)
	store.SetUnavailable(true)

	if _, err := sync.MarkAllRead(context.Background(), "bob"); !errors.Is(err, repositories.ErrStoreUnavailable) {
		t.Errorf("MarkAllRead() error = %v, want ErrStoreUnavailable", err)
	}
}
