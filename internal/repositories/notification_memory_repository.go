package repositories

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/anonto42/nano-midea/notifications/pkg/domain"
	"github.com/pkg/errors"
)

// ErrStoreUnavailable is returned by a memory store that was switched off
// with SetUnavailable.
var ErrStoreUnavailable = errors.New("notification store unavailable")

type memoryEntry struct {
	seq          uint64
	notification domain.Notification
}

// MemoryNotificationRepository keeps notifications in process memory. It is
// used for local development and as the store in tests.
type MemoryNotificationRepository struct {
	mu          sync.RWMutex
	seq         uint64
	entries     map[string]*memoryEntry
	byRecipient map[string][]*memoryEntry
	unavailable bool
	listCalls   int
}

// NewMemoryNotificationRepository creates an empty in-memory store
func NewMemoryNotificationRepository() *MemoryNotificationRepository {
	return &MemoryNotificationRepository{
		entries:     make(map[string]*memoryEntry),
		byRecipient: make(map[string][]*memoryEntry),
	}
}

// SetUnavailable makes every following call fail with ErrStoreUnavailable
func (r *MemoryNotificationRepository) SetUnavailable(unavailable bool) {
	r.mu.Lock()
	r.unavailable = unavailable
	r.mu.Unlock()
}

// ListCalls returns how many times ListRecent reached the store
func (r *MemoryNotificationRepository) ListCalls() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listCalls
}

func (r *MemoryNotificationRepository) Append(_ context.Context, n *domain.Notification) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return "", ErrStoreUnavailable
	}

	r.seq++
	stored := *n
	stored.ID = strconv.FormatUint(r.seq, 10)
	entry := &memoryEntry{seq: r.seq, notification: stored}
	r.entries[stored.ID] = entry
	r.byRecipient[stored.RecipientID] = append(r.byRecipient[stored.RecipientID], entry)
	return stored.ID, nil
}

func (r *MemoryNotificationRepository) ListRecent(_ context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listCalls++
	if r.unavailable {
		return nil, ErrStoreUnavailable
	}

	entries := append([]*memoryEntry(nil), r.byRecipient[recipientID]...)
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.notification.CreatedAt.Equal(b.notification.CreatedAt) {
			return a.notification.CreatedAt.After(b.notification.CreatedAt)
		}
		return a.seq > b.seq
	})
	if limit >= 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]domain.Notification, len(entries))
	for i, e := range entries {
		out[i] = e.notification
	}
	return out, nil
}

func (r *MemoryNotificationRepository) MarkRead(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return ErrStoreUnavailable
	}
	entry, ok := r.entries[id]
	if !ok {
		return ErrNotificationNotFound
	}
	entry.notification.IsRead = true
	return nil
}

func (r *MemoryNotificationRepository) MarkAllRead(_ context.Context, recipientID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return 0, ErrStoreUnavailable
	}
	var count int64
	for _, entry := range r.byRecipient[recipientID] {
		if !entry.notification.IsRead {
			entry.notification.IsRead = true
			count++
		}
	}
	return count, nil
}

func (r *MemoryNotificationRepository) OwnerOf(_ context.Context, id string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.unavailable {
		return "", ErrStoreUnavailable
	}
	entry, ok := r.entries[id]
	if !ok {
		return "", ErrNotificationNotFound
	}
	return entry.notification.RecipientID, nil
}
