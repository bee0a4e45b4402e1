package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/repositories"
	"github.com/anonto42/nano-midea/notifications/pkg/domain"
	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultCacheTTL is how long a cached page is served without the store.
	DefaultCacheTTL = 15 * time.Second
	// DefaultListLimit is the page size read from the store.
	DefaultListLimit = 30
)

// Invalidator drops whatever is cached for a recipient.
type Invalidator interface {
	Invalidate(recipientID string)
}

// Invalidators fans an invalidation out to several invalidators.
type Invalidators []Invalidator

// Invalidate calls every invalidator in order.
func (is Invalidators) Invalidate(recipientID string) {
	for _, i := range is {
		i.Invalidate(recipientID)
	}
}

type cacheEntry struct {
	notifications []domain.Notification
	expiresAt     time.Time
	stamp         uint64
}

func (e cacheEntry) isFresh(now time.Time) bool {
	return now.Before(e.expiresAt)
}

type invalidation struct {
	stamp uint64
	at    time.Time
}

// CacheConfig configures a DeliveryCache. Zero values select the defaults.
type CacheConfig struct {
	TTL     time.Duration
	Limit   int
	Clock   clock.Clock
	Logger  *logrus.Entry
	Metrics *Metrics
}

// DeliveryCache is a per-recipient TTL cache in front of the notification
// store.
//
// Every fetch and every invalidation takes a stamp from one monotonic
// sequence. A fetch result is only written back when its stamp is newer
// than the recipient's last invalidation and newer than the entry it would
// replace, so a read that overlaps an invalidation can never reinstate the
// data the invalidation removed.
type DeliveryCache struct {
	store   repositories.NotificationRepository
	ttl     time.Duration
	limit   int
	clock   clock.Clock
	log     *logrus.Entry
	metrics *Metrics

	mu          sync.Mutex
	seq         uint64
	entries     map[string]cacheEntry
	invalidated map[string]invalidation
}

// NewDeliveryCache creates a cache reading through to store.
func NewDeliveryCache(store repositories.NotificationRepository, cfg CacheConfig) *DeliveryCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultListLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	return &DeliveryCache{
		store:       store,
		ttl:         cfg.TTL,
		limit:       cfg.Limit,
		clock:       cfg.Clock,
		log:         cfg.Logger.WithField("component", "delivery-cache"),
		metrics:     cfg.Metrics,
		entries:     make(map[string]cacheEntry),
		invalidated: make(map[string]invalidation),
	}
}

// Get returns the recent notifications of recipientID. Unless bypass is set,
// a fresh cached page is returned without touching the store.
func (c *DeliveryCache) Get(ctx context.Context, recipientID string, bypass bool) ([]domain.Notification, error) {
	c.mu.Lock()
	startedAt := c.clock.Now()
	if !bypass {
		if entry, ok := c.entries[recipientID]; ok && entry.isFresh(startedAt) {
			list := cloneList(entry.notifications)
			c.mu.Unlock()
			c.metrics.CacheHits.Inc()
			c.log.WithField("recipient", recipientID).Debug("serving cached notifications")
			return list, nil
		}
	}
	c.seq++
	stamp := c.seq
	c.mu.Unlock()

	c.metrics.CacheMisses.Inc()
	list, err := c.store.ListRecent(ctx, recipientID, c.limit)
	if err != nil {
		return nil, errors.Wrap(err, "read notifications from store")
	}

	c.put(recipientID, list, stamp, startedAt)
	return cloneList(list), nil
}

func (c *DeliveryCache) put(recipientID string, list []domain.Notification, stamp uint64, startedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := startedAt.Add(c.ttl)
	if inv, ok := c.invalidated[recipientID]; ok && stamp <= inv.stamp {
		c.metrics.CacheRejectedWrites.Inc()
		c.log.WithField("recipient", recipientID).Debug("discarding read overtaken by invalidation")
		return
	}
	if current, ok := c.entries[recipientID]; ok && stamp <= current.stamp {
		return
	}
	// A read slower than the TTL is already stale.
	if !c.clock.Now().Before(expiresAt) {
		return
	}
	c.entries[recipientID] = cacheEntry{
		notifications: cloneList(list),
		expiresAt:     expiresAt,
		stamp:         stamp,
	}
}

// Invalidate drops the cached page of recipientID. A read that is still in
// flight when Invalidate runs will not be cached.
func (c *DeliveryCache) Invalidate(recipientID string) {
	c.mu.Lock()
	c.seq++
	c.invalidated[recipientID] = invalidation{stamp: c.seq, at: c.clock.Now()}
	delete(c.entries, recipientID)
	c.mu.Unlock()

	c.metrics.Invalidations.Inc()
	c.log.WithField("recipient", recipientID).Debug("invalidated cached notifications")
}

// Sweep removes expired entries and invalidation markers no in-flight read
// can still depend on. It returns the number of entries removed.
func (c *DeliveryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for recipientID, entry := range c.entries {
		if !entry.isFresh(now) {
			delete(c.entries, recipientID)
			removed++
		}
	}
	// Reads that started before the marker are older than the TTL by now
	// and put refuses them anyway.
	for recipientID, inv := range c.invalidated {
		if now.Sub(inv.at) >= c.ttl {
			delete(c.invalidated, recipientID)
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (c *DeliveryCache) RunSweeper(ctx context.Context, interval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(interval):
			if n := c.Sweep(); n > 0 {
				c.log.WithField("removed", n).Debug("swept expired cache entries")
			}
		}
	}
}

// Len returns the number of cached recipients.
func (c *DeliveryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func cloneList(list []domain.Notification) []domain.Notification {
	out := make([]domain.Notification, len(list))
	copy(out, list)
	return out
}
