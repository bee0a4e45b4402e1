package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anonto42/nano-midea/notifications/pkg/domain"
	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/sirupsen/logrus"
)

// Default coordinator timings.
const (
	DefaultFreshness      = 10 * time.Second
	DefaultMountDebounce  = 300 * time.Millisecond
	DefaultDisplayRefresh = 60 * time.Second
)

// Fetcher is the part of the API a Coordinator needs. *Client implements it.
type Fetcher interface {
	ListNotifications(ctx context.Context, noCache bool) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) (int64, error)
}

// Item is a mirrored notification with its rendered age.
type Item struct {
	domain.Notification
	DisplayTime string
}

// Snapshot is a consistent view of the mirror.
type Snapshot struct {
	Items         []Item
	UnreadCount   int
	LastFetchedAt time.Time
	// Err is the error of the last fetch, nil once a fetch succeeds again.
	Err error
}

// Options configures a Coordinator. Zero values select the defaults.
type Options struct {
	Clock  clock.Clock
	Logger *logrus.Entry
	// Freshness is how long a successful fetch satisfies Request(false).
	Freshness time.Duration
	// MountDebounce is how long Mount waits before fetching.
	MountDebounce time.Duration
	// DisplayRefresh is how often Run recomputes display times.
	DisplayRefresh time.Duration
	// PollInterval makes Run refresh the mirror periodically. Zero disables polling.
	PollInterval time.Duration
}

type fetch struct {
	done    chan struct{}
	bypass  bool
	waiters int
	err     error
}

// Coordinator owns the notification mirror of one client session. Every
// consumer of the session shares one Coordinator, which guarantees that at
// most one fetch is outstanding at a time.
type Coordinator struct {
	api     Fetcher
	clock   clock.Clock
	log     *logrus.Entry
	opts    Options
	session string

	mu            sync.Mutex
	mirror        []Item
	lastFetchedAt time.Time
	initialized   bool
	inFlight      *fetch
	lastErr       error
	subscribers   map[int]chan Snapshot
	nextSub       int
	closed        bool
	done          chan struct{}
}

// NewCoordinator creates the Coordinator of a new client session.
func NewCoordinator(api Fetcher, opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if opts.Freshness <= 0 {
		opts.Freshness = DefaultFreshness
	}
	if opts.MountDebounce <= 0 {
		opts.MountDebounce = DefaultMountDebounce
	}
	if opts.DisplayRefresh <= 0 {
		opts.DisplayRefresh = DefaultDisplayRefresh
	}
	session := uuid.NewString()
	return &Coordinator{
		api:         api,
		clock:       opts.Clock,
		log:         opts.Logger.WithFields(logrus.Fields{"component": "coordinator", "session": session}),
		opts:        opts,
		session:     session,
		mirror:      []Item{},
		subscribers: make(map[int]chan Snapshot),
		done:        make(chan struct{}),
	}
}

// Session returns the id of the session the coordinator belongs to.
func (c *Coordinator) Session() string {
	return c.session
}

// Request returns the mirror, fetching it first when needed.
//
// Without forceRefresh, a mirror fetched less than Freshness ago is returned
// as is, and a caller arriving while a fetch is outstanding waits for that
// fetch instead of starting another. With forceRefresh the server cache is
// bypassed; a forced caller only shares an outstanding fetch that bypasses
// the cache too.
//
// When the fetch fails the last known mirror is returned together with an
// error wrapping ErrFetchFailed.
func (c *Coordinator) Request(ctx context.Context, forceRefresh bool) ([]Item, error) {
	c.mu.Lock()
	for {
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClosed
		}
		if !forceRefresh && c.initialized && c.clock.Now().Sub(c.lastFetchedAt) < c.opts.Freshness {
			items := cloneItems(c.mirror)
			c.mu.Unlock()
			return items, nil
		}
		f := c.inFlight
		if f == nil {
			f = c.startFetch(ctx, forceRefresh)
		}
		shared := !forceRefresh || f.bypass

		f.waiters++
		c.mu.Unlock()
		var ctxErr error
		select {
		case <-f.done:
		case <-ctx.Done():
			ctxErr = ctx.Err()
		}
		c.mu.Lock()
		f.waiters--

		if ctxErr != nil {
			items := cloneItems(c.mirror)
			c.mu.Unlock()
			return items, ctxErr
		}
		if shared {
			items := cloneItems(c.mirror)
			c.mu.Unlock()
			return items, f.err
		}
		// The outstanding fetch may have been served from the server cache.
	}
}

// startFetch must be called with c.mu held.
func (c *Coordinator) startFetch(ctx context.Context, bypass bool) *fetch {
	f := &fetch{done: make(chan struct{}), bypass: bypass}
	c.inFlight = f
	go c.runFetch(context.WithoutCancel(ctx), f)
	return f
}

func (c *Coordinator) runFetch(ctx context.Context, f *fetch) {
	list, err := c.api.ListNotifications(ctx, f.bypass)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(f.done)
	c.inFlight = nil

	if c.closed {
		f.err = ErrClosed
		return
	}
	if err != nil {
		f.err = fmt.Errorf("%w: %w", ErrFetchFailed, err)
		c.lastErr = f.err
		c.log.WithError(err).WithField("bypass", f.bypass).Warn("failed to fetch notifications")
		c.publishLocked()
		return
	}

	now := c.clock.Now()
	c.mirror = mergeReadState(c.mirror, list, now)
	c.lastFetchedAt = now
	c.initialized = true
	c.lastErr = nil
	c.log.WithFields(logrus.Fields{"count": len(list), "bypass": f.bypass}).Debug("refreshed notification mirror")
	c.publishLocked()
}

// mergeReadState builds the new mirror from fetched. A notification the old
// mirror already holds as read stays read.
func mergeReadState(old []Item, fetched []domain.Notification, now time.Time) []Item {
	read := make(map[string]bool, len(old))
	for _, it := range old {
		if it.IsRead {
			read[it.ID] = true
		}
	}
	items := make([]Item, len(fetched))
	for i, n := range fetched {
		if read[n.ID] {
			n.IsRead = true
		}
		items[i] = Item{Notification: n, DisplayTime: FormatAge(n.CreatedAt, now)}
	}
	return items
}

// Mount is Request(false) for a consumer that has just appeared. When
// nothing has been fetched yet it waits MountDebounce first, so consumers
// mounting together end up sharing the first fetch.
func (c *Coordinator) Mount(ctx context.Context) ([]Item, error) {
	c.mu.Lock()
	pending := !c.initialized && c.inFlight == nil
	c.mu.Unlock()

	if pending {
		select {
		case <-c.clock.After(c.opts.MountDebounce):
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, ErrClosed
		}
	}
	return c.Request(ctx, false)
}

// Run keeps display times current, and polls when PollInterval is set,
// until ctx is done or the coordinator is closed.
func (c *Coordinator) Run(ctx context.Context) {
	refresh := c.clock.After(c.opts.DisplayRefresh)
	var poll <-chan time.Time
	if c.opts.PollInterval > 0 {
		poll = c.clock.After(c.opts.PollInterval)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-refresh:
			c.RefreshDisplayTimes()
			refresh = c.clock.After(c.opts.DisplayRefresh)
		case <-poll:
			if _, err := c.Request(ctx, false); err != nil {
				c.log.WithError(err).Debug("poll failed")
			}
			poll = c.clock.After(c.opts.PollInterval)
		}
	}
}

// RefreshDisplayTimes recomputes the display time of every mirrored item.
func (c *Coordinator) RefreshDisplayTimes() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	now := c.clock.Now()
	for i := range c.mirror {
		c.mirror[i].DisplayTime = FormatAge(c.mirror[i].CreatedAt, now)
	}
	c.publishLocked()
}

// UnreadCount returns the number of unread items in the mirror.
func (c *Coordinator) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return unreadCount(c.mirror)
}

// MarkRead marks id read in the mirror and then on the server. The mirror
// is not reverted when the server call fails; the error is logged and
// returned.
func (c *Coordinator) MarkRead(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	changed := false
	for i := range c.mirror {
		if c.mirror[i].ID == id && !c.mirror[i].IsRead {
			c.mirror[i].IsRead = true
			changed = true
		}
	}
	if changed {
		c.publishLocked()
	}
	c.mu.Unlock()

	if err := c.api.MarkRead(ctx, id); err != nil {
		c.log.WithError(err).WithField("id", id).Warn("failed to mark notification read")
		return err
	}
	return nil
}

// MarkAllRead marks the whole mirror read and then every notification on
// the server. Like MarkRead it does not roll back on failure.
func (c *Coordinator) MarkAllRead(ctx context.Context) (int64, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	changed := false
	for i := range c.mirror {
		if !c.mirror[i].IsRead {
			c.mirror[i].IsRead = true
			changed = true
		}
	}
	if changed {
		c.publishLocked()
	}
	c.mu.Unlock()

	count, err := c.api.MarkAllRead(ctx)
	if err != nil {
		c.log.WithError(err).Warn("failed to mark all notifications read")
		return 0, err
	}
	return count, nil
}

// Snapshot returns the current state of the mirror.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() Snapshot {
	return Snapshot{
		Items:         cloneItems(c.mirror),
		UnreadCount:   unreadCount(c.mirror),
		LastFetchedAt: c.lastFetchedAt,
		Err:           c.lastErr,
	}
}

// Subscribe returns a channel receiving a Snapshot after every change of
// the mirror. Only the latest snapshot is kept for a slow receiver. The
// channel is closed by cancel or Close.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subscribers[id]; ok {
				delete(c.subscribers, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

func (c *Coordinator) publishLocked() {
	if len(c.subscribers) == 0 {
		return
	}
	s := c.snapshotLocked()
	for _, ch := range c.subscribers {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// Close ends the session: the mirror is dropped, subscribers are closed
// and every following call fails with ErrClosed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.mirror = []Item{}
	c.initialized = false
	for id, ch := range c.subscribers {
		delete(c.subscribers, id)
		close(ch)
	}
	close(c.done)
	c.log.Debug("session closed")
}

// waiters returns how many callers wait for the outstanding fetch.
func (c *Coordinator) waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight == nil {
		return 0
	}
	return c.inFlight.waiters
}

func unreadCount(items []Item) int {
	n := 0
	for _, it := range items {
		if !it.IsRead {
			n++
		}
	}
	return n
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
