// ABOUTME: Per-viewer unread counter: fast-path increments corrected by delayed recomputation
// ABOUTME: Always re-derivable from authoritative storage; the live count is an approximation

package unread

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hearthlabs/hearth/internal/event"
)

// defaultRecomputeDelay is how long after an update event the counter waits
// before re-deriving the count from storage.
const defaultRecomputeDelay = 2 * time.Second

// defaultCheckTimeout bounds membership checks and recomputations.
const defaultCheckTimeout = 5 * time.Second

// Source defines what the counter needs from authoritative storage.
type Source interface {
	TotalUnread(ctx context.Context, viewerID string) (int, error)
	IsParticipant(ctx context.Context, viewerID, conversationID string) (bool, error)
}

// Badge is the external display collaborator notified with the current count
// on every confirmed increment and every recomputation. Implementations must
// not block; the counter fires and forgets.
type Badge interface {
	Notify(viewerID string, count int)
}

// Counter maintains one viewer session's best-effort unread count, eventually
// consistent with storage.
type Counter struct {
	source   Source
	badge    Badge
	viewerID string
	logger   *slog.Logger

	recomputeDelay time.Duration
	checkTimeout   time.Duration

	mu        sync.Mutex
	count     int
	closed    bool
	timers    map[*time.Timer]struct{}
	runCancel context.CancelFunc
}

// Option configures a Counter.
type Option func(*Counter)

// WithRecomputeDelay overrides the delay before post-update recomputation.
func WithRecomputeDelay(d time.Duration) Option {
	return func(c *Counter) {
		if d >= 0 {
			c.recomputeDelay = d
		}
	}
}

// WithCheckTimeout overrides the bound on storage calls.
func WithCheckTimeout(d time.Duration) Option {
	return func(c *Counter) {
		if d > 0 {
			c.checkTimeout = d
		}
	}
}

// NewCounter creates a counter for the viewer. Pass nil logger for default.
func NewCounter(source Source, badge Badge, viewerID string, logger *slog.Logger, opts ...Option) *Counter {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Counter{
		source:         source,
		badge:          badge,
		viewerID:       viewerID,
		logger:         logger.With("component", "unread", "viewer_id", viewerID),
		recomputeDelay: defaultRecomputeDelay,
		checkTimeout:   defaultCheckTimeout,
		timers:         make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start fetches the true count once from storage and begins consuming the
// event stream. An initial fetch failure leaves the count at zero and is
// corrected by the next recomputation.
func (c *Counter) Start(ctx context.Context, events <-chan *event.MessageEvent) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	count, err := c.source.TotalUnread(fetchCtx, c.viewerID)
	cancel()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.logger.Warn("initial unread fetch failed", "error", err)
	} else {
		c.count = count
	}
	c.mu.Unlock()

	runCtx, runCancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.runCancel = runCancel
	c.mu.Unlock()

	go c.run(runCtx, events)
}

func (c *Counter) run(ctx context.Context, events <-chan *event.MessageEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.handle(ev)
		}
	}
}

func (c *Counter) handle(ev *event.MessageEvent) {
	switch ev.Kind {
	case event.KindInsert:
		c.handleInsert(ev)
	case event.KindUpdate:
		c.scheduleRecompute()
	}
}

// handleInsert increments the count for a confirmed incoming message: the
// sender must not be the viewer and the viewer must be a participant of the
// event's conversation.
func (c *Counter) handleInsert(ev *event.MessageEvent) {
	if ev.SenderID == c.viewerID {
		return
	}

	checkCtx, cancel := context.WithTimeout(context.Background(), c.checkTimeout)
	member, err := c.source.IsParticipant(checkCtx, c.viewerID, ev.ConversationID)
	cancel()
	if err != nil {
		c.logger.Warn("membership check failed, skipping increment",
			"conversation_id", ev.ConversationID,
			"error", err)
		return
	}
	if !member {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.count++
	count := c.count
	c.mu.Unlock()

	c.badge.Notify(c.viewerID, count)
}

// scheduleRecompute arms a one-shot recomputation after the configured delay.
// Update payloads do not say which transition occurred, so no incremental
// adjustment is attempted. Multiple updates each arm their own timer; the
// redundancy self-corrects and is deliberately not deduplicated.
func (c *Counter) scheduleRecompute() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(c.recomputeDelay, func() {
		c.mu.Lock()
		delete(c.timers, timer)
		c.mu.Unlock()
		c.recompute(context.Background())
	})
	c.timers[timer] = struct{}{}
	c.mu.Unlock()
}

// Refresh forces an immediate recomputation. Used after local actions known
// to affect the count, such as opening a conversation.
func (c *Counter) Refresh(ctx context.Context) {
	c.recompute(ctx)
}

// recompute re-derives the count from storage. On failure the previous value
// is kept; a later recomputation corrects it.
func (c *Counter) recompute(parent context.Context) {
	fetchCtx, cancel := context.WithTimeout(parent, c.checkTimeout)
	count, err := c.source.TotalUnread(fetchCtx, c.viewerID)
	cancel()
	if err != nil {
		c.logger.Warn("unread recomputation failed, keeping previous count", "error", err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.count = count
	c.mu.Unlock()

	c.badge.Notify(c.viewerID, count)
}

// Count returns the current best-effort count.
func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Close stops pending recomputation timers and bars further mutation.
func (c *Counter) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for timer := range c.timers {
		timer.Stop()
		delete(c.timers, timer)
	}
	cancel := c.runCancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.logger.Debug("counter closed")
}
