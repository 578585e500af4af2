// ABOUTME: In-memory fan-out of message events to per-viewer subscriber channels
// ABOUTME: Non-blocking publish; slow consumers drop events instead of stalling senders

package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/hearthlabs/hearth/internal/event"
)

// subscriberBufferSize is the channel buffer for each subscriber (64 events).
const subscriberBufferSize = 64

// Broadcaster provides in-memory pub/sub for message events, keyed by viewer
// id. Each websocket session subscribes for its viewer and receives events in
// publish order. Cancellation is "close the channel": unsubscribing (directly
// or via context) closes the subscriber's channel.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *event.MessageEvent // viewerID -> subID -> ch
	logger      *slog.Logger
}

// New creates a broadcaster. Pass nil logger for default.
func New(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *event.MessageEvent),
		logger:      logger.With("component", "broadcast"),
	}
}

// Subscribe registers a subscriber for the viewer's event stream. Returns a
// buffered channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, viewerID string) (<-chan *event.MessageEvent, string) {
	subID := uuid.New().String()
	ch := make(chan *event.MessageEvent, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[viewerID]; !ok {
		b.subscribers[viewerID] = make(map[string]chan *event.MessageEvent)
	}
	b.subscribers[viewerID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"viewer_id", viewerID,
		"sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(viewerID, subID)
	}()

	return ch, subID
}

// Publish sends an event to all of the viewer's subscribers.
// Non-blocking: events are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(viewerID string, ev *event.MessageEvent) {
	b.mu.RLock()
	subs, ok := b.subscribers[viewerID]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}

	// Copy subscriber channels under read lock to avoid holding lock during sends
	targets := make([]chan *event.MessageEvent, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- ev:
			// Sent
		default:
			// Subscriber channel full — drop event for this subscriber
			b.logger.Debug("dropped event for slow subscriber",
				"viewer_id", viewerID,
				"conversation_id", ev.ConversationID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(viewerID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[viewerID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	// Clean up empty viewer entries
	if len(subs) == 0 {
		delete(b.subscribers, viewerID)
	}

	b.logger.Debug("subscriber removed",
		"viewer_id", viewerID,
		"sub_id", subID)
}

// SubscriberCount returns the number of active subscriptions for a viewer.
func (b *Broadcaster) SubscriberCount(viewerID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[viewerID])
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for viewerID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, viewerID)
	}

	b.logger.Debug("broadcaster closed")
}
