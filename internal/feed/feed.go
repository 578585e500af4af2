// ABOUTME: Per-viewer conversation feed: snapshot fetch merged with live message events
// ABOUTME: One run goroutine per session; detail fetches are collapsed and guarded against races

package feed

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hearthlabs/hearth/internal/event"
)

// defaultFetchTimeout bounds snapshot and detail fetches.
const defaultFetchTimeout = 5 * time.Second

// Backend defines what the feed needs from storage. Snapshot results must be
// pre-sorted freshest-first.
type Backend interface {
	UserConversations(ctx context.Context, viewerID string) ([]*Conversation, error)
	ConversationByID(ctx context.Context, viewerID, conversationID string) (*Conversation, error)
}

// State describes the feed's fetch lifecycle.
type State int

const (
	// StateLoading is the initial state before the first snapshot resolves.
	StateLoading State = iota
	// StateReady means the working list reflects a successful snapshot.
	StateReady
	// StateError means the last snapshot fetch failed; Retry is available and
	// any previously loaded list is preserved untouched.
	StateError
	// StateClosed means Close was called; no further mutation occurs.
	StateClosed
)

// Feed maintains one viewer session's ordered conversation list, merging an
// initial snapshot with live message events. Exactly one Feed exists per
// websocket session; selection state is session-local.
type Feed struct {
	backend  Backend
	viewerID string
	logger   *slog.Logger

	fetchTimeout time.Duration

	mu         sync.Mutex
	list       []*Conversation
	state      State
	err        error
	selectedID string
	version    uint64
	closed     bool
	started    bool
	pending    map[string]struct{} // conversation ids with a detail fetch in flight

	flights singleflight.Group

	updates   chan struct{}
	runCancel context.CancelFunc
}

// Option configures a Feed.
type Option func(*Feed)

// WithFetchTimeout overrides the bound on snapshot and detail fetches.
func WithFetchTimeout(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.fetchTimeout = d
		}
	}
}

// New creates a feed for the viewer. Pass nil logger for default.
func New(backend Backend, viewerID string, logger *slog.Logger, opts ...Option) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Feed{
		backend:      backend,
		viewerID:     viewerID,
		logger:       logger.With("component", "feed", "viewer_id", viewerID),
		fetchTimeout: defaultFetchTimeout,
		pending:      make(map[string]struct{}),
		updates:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start performs the initial snapshot fetch and begins consuming events.
// A failed snapshot leaves the feed in StateError with Retry available; the
// event loop runs either way. Start is a no-op if called twice.
func (f *Feed) Start(ctx context.Context, events <-chan *event.MessageEvent) {
	f.mu.Lock()
	if f.started || f.closed {
		f.mu.Unlock()
		return
	}
	f.started = true
	f.mu.Unlock()

	f.loadSnapshot(ctx)

	runCtx, cancel := context.WithCancel(context.Background())
	f.mu.Lock()
	f.runCancel = cancel
	f.mu.Unlock()

	go f.run(runCtx, events)
}

// loadSnapshot fetches the full conversation list and installs it. On failure
// the previous list, if any, is preserved and the feed enters StateError.
func (f *Feed) loadSnapshot(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, f.fetchTimeout)
	defer cancel()

	list, err := f.backend.UserConversations(fetchCtx, f.viewerID)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if err != nil {
		f.logger.Warn("snapshot fetch failed", "error", err)
		f.state = StateError
		f.err = err
		f.bumpLocked()
		return
	}
	f.list = list
	f.state = StateReady
	f.err = nil
	f.bumpLocked()
	f.logger.Debug("snapshot loaded", "conversations", len(list))
}

// Retry re-runs the snapshot fetch after a failure.
func (f *Feed) Retry(ctx context.Context) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	f.loadSnapshot(ctx)
}

// run consumes the event stream until it closes or the feed is torn down.
// Events are handled strictly in delivery order; the handler never blocks on
// I/O (detail fetches run detached).
func (f *Feed) run(ctx context.Context, events <-chan *event.MessageEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			f.handle(ev)
		}
	}
}

// handle merges one event into the working list.
func (f *Feed) handle(ev *event.MessageEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	merged, outcome := MergeEvent(f.list, ev, f.viewerID, f.selectedID)
	switch outcome {
	case OutcomeApplied:
		f.list = merged
		f.bumpLocked()

	case OutcomeNeedsFetch:
		// Brand-new thread: fetch its detail asynchronously. The pending set
		// is checked under the same lock as the merge, so duplicate events
		// arriving before the fetch resolves share the one flight.
		if _, inflight := f.pending[ev.ConversationID]; inflight {
			return
		}
		f.pending[ev.ConversationID] = struct{}{}
		go f.fetchDetail(ev.ConversationID)

	case OutcomeUnchanged:
	}
}

// fetchDetail loads a single conversation and inserts it at the head, unless
// an entry with that id appeared in the meantime or the feed was closed.
// Failures are logged and the event dropped; the conversation reappears on
// the next full snapshot.
func (f *Feed) fetchDetail(conversationID string) {
	v, err, _ := f.flights.Do(conversationID, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.Background(), f.fetchTimeout)
		defer cancel()
		return f.backend.ConversationByID(fetchCtx, f.viewerID, conversationID)
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, conversationID)

	if f.closed {
		return
	}
	if err != nil {
		f.logger.Warn("detail fetch failed, dropping event",
			"conversation_id", conversationID,
			"error", err)
		return
	}

	conv := v.(*Conversation)
	for _, c := range f.list {
		if c.ID == conv.ID {
			// Already present: a snapshot or earlier fetch won the race.
			return
		}
	}
	f.list = append([]*Conversation{conv}, f.list...)
	f.bumpLocked()
	f.logger.Debug("new conversation inserted", "conversation_id", conv.ID)
}

// Select marks a conversation as the one the viewer is looking at, zeroing
// its unread count locally and immediately. It does not mark messages read on
// the backend; it only suppresses further local badge growth while the
// thread is open. Select("") deselects.
func (f *Feed) Select(conversationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	f.selectedID = conversationID
	if conversationID == "" {
		return
	}
	for i, c := range f.list {
		if c.ID != conversationID {
			continue
		}
		if c.UnreadCount != 0 {
			updated := c.clone()
			updated.UnreadCount = 0
			f.list[i] = updated
			f.bumpLocked()
		}
		return
	}
}

// Selected returns the currently selected conversation id, if any.
func (f *Feed) Selected() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selectedID
}

// Snapshot returns a copy of the working list for rendering.
func (f *Feed) Snapshot() []*Conversation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneList(f.list)
}

// Filtered returns the conversations whose other participant's display name
// contains the query, case-insensitively. The working list is never mutated;
// an empty query returns everything.
func (f *Feed) Filtered(query string) []*Conversation {
	f.mu.Lock()
	defer f.mu.Unlock()

	if query == "" {
		return cloneList(f.list)
	}
	needle := strings.ToLower(query)
	var out []*Conversation
	for _, c := range f.list {
		if c.Other == nil {
			continue
		}
		if strings.Contains(strings.ToLower(c.Other.DisplayName), needle) {
			out = append(out, c.clone())
		}
	}
	return out
}

// State returns the fetch lifecycle state.
func (f *Feed) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Err returns the last snapshot error, nil when StateReady.
func (f *Feed) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Version increments on every applied mutation, so callers can cheaply
// detect change between renders.
func (f *Feed) Version() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version
}

// Updates signals after mutations. The channel is coalescing: a pending
// signal covers any number of mutations since the last receive.
func (f *Feed) Updates() <-chan struct{} {
	return f.updates
}

// Close tears the feed down: the run goroutine stops and no state mutation
// occurs afterwards. In-flight detail fetches resolve against the closed
// flag and are discarded.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.state = StateClosed
	cancel := f.runCancel
	f.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	f.logger.Debug("feed closed")
}

// bumpLocked advances the version and signals Updates. Must be called with
// mu held.
func (f *Feed) bumpLocked() {
	f.version++
	select {
	case f.updates <- struct{}{}:
	default:
	}
}

func cloneList(list []*Conversation) []*Conversation {
	out := make([]*Conversation, len(list))
	for i, c := range list {
		out[i] = c.clone()
	}
	return out
}
