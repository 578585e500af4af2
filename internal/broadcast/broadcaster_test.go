// ABOUTME: Tests for the per-viewer event broadcaster
// ABOUTME: Covers subscribe, publish, unsubscribe, context cancellation, slow-consumer drops

package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthlabs/hearth/internal/event"
)

func makeEvent(conversationID, senderID string) *event.MessageEvent {
	return &event.MessageEvent{
		Kind:           event.KindInsert,
		ConversationID: conversationID,
		MessageID:      "msg-" + conversationID,
		SenderID:       senderID,
		Content:        "hello from " + senderID,
		CreatedAt:      time.Now(),
	}
}

func TestBroadcaster_SingleSubscriberReceivesEvent(t *testing.T) {
	b := New(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "member-1")

	b.Publish("member-1", makeEvent("conv-1", "member-2"))

	select {
	case received := <-ch:
		assert.Equal(t, "conv-1", received.ConversationID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroadcaster_MultipleSessionsReceiveSameEvent(t *testing.T) {
	b := New(nil)
	defer b.Close()

	ctx := t.Context()

	ch1, _ := b.Subscribe(ctx, "member-1")
	ch2, _ := b.Subscribe(ctx, "member-1")
	ch3, _ := b.Subscribe(ctx, "member-1")

	b.Publish("member-1", makeEvent("conv-2", "member-2"))

	for i, ch := range []<-chan *event.MessageEvent{ch1, ch2, ch3} {
		select {
		case received := <-ch:
			assert.Equal(t, "conv-2", received.ConversationID, "subscriber %d got wrong event", i)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i)
		}
	}
}

func TestBroadcaster_ViewersAreIsolated(t *testing.T) {
	b := New(nil)
	defer b.Close()

	ctx := t.Context()

	ch1, _ := b.Subscribe(ctx, "member-1")
	ch2, _ := b.Subscribe(ctx, "member-2")

	b.Publish("member-1", makeEvent("conv-1", "member-2"))

	select {
	case received := <-ch1:
		assert.Equal(t, "conv-1", received.ConversationID)
	case <-time.After(time.Second):
		t.Fatal("member-1 subscriber timed out")
	}

	select {
	case ev := <-ch2:
		t.Fatalf("member-2 should not receive member-1's event, got %v", ev)
	case <-time.After(50 * time.Millisecond):
		// Correct: nothing delivered
	}
}

func TestBroadcaster_DeliveryOrderMatchesPublishOrder(t *testing.T) {
	b := New(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "member-1")

	for i := 0; i < 10; i++ {
		ev := makeEvent("conv-1", "member-2")
		ev.MessageID = string(rune('a' + i))
		b.Publish("member-1", ev)
	}

	for i := 0; i < 10; i++ {
		select {
		case received := <-ch:
			assert.Equal(t, string(rune('a'+i)), received.MessageID)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := New(nil)
	defer b.Close()

	ch, subID := b.Subscribe(t.Context(), "member-1")
	require.Equal(t, 1, b.SubscriberCount("member-1"))

	b.Unsubscribe("member-1", subID)

	_, open := <-ch
	assert.False(t, open, "channel should be closed after unsubscribe")
	assert.Equal(t, 0, b.SubscriberCount("member-1"))
}

func TestBroadcaster_ContextCancellationUnsubscribes(t *testing.T) {
	b := New(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(t.Context())
	ch, _ := b.Subscribe(ctx, "member-1")

	cancel()

	// Cleanup is asynchronous; wait for the channel to close.
	select {
	case _, open := <-ch:
		assert.False(t, open, "channel should close after context cancellation")
	case <-time.After(time.Second):
		t.Fatal("channel did not close after context cancellation")
	}
}

func TestBroadcaster_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := New(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "member-1")

	// Fill the buffer and then some; Publish must never block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBufferSize+10; i++ {
			b.Publish("member-1", makeEvent("conv-1", "member-2"))
		}
	}()

	select {
	case <-done:
		// Publisher completed without a consumer
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	assert.Len(t, ch, subscriberBufferSize, "buffer holds exactly its capacity; overflow dropped")
}

func TestBroadcaster_PublishToUnknownViewerIsNoop(t *testing.T) {
	b := New(nil)
	defer b.Close()

	// Must not panic or block.
	b.Publish("nobody", makeEvent("conv-1", "member-2"))
}

func TestBroadcaster_ConcurrentPublishAndSubscribe(t *testing.T) {
	b := New(nil)
	defer b.Close()

	ctx := t.Context()
	var wg sync.WaitGroup

	// Drain a handful of subscribers while publishers hammer the same viewer.
	for i := 0; i < 8; i++ {
		ch, _ := b.Subscribe(ctx, "member-1")
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range ch {
			}
		}()
	}

	var publishers sync.WaitGroup
	for i := 0; i < 8; i++ {
		publishers.Add(1)
		go func() {
			defer publishers.Done()
			for j := 0; j < 50; j++ {
				b.Publish("member-1", makeEvent("conv-1", "member-2"))
			}
		}()
	}

	publishers.Wait()
	b.Close()
	wg.Wait()
}

func TestBroadcaster_CloseClosesAllChannels(t *testing.T) {
	b := New(nil)

	ch1, _ := b.Subscribe(t.Context(), "member-1")
	ch2, _ := b.Subscribe(t.Context(), "member-2")

	b.Close()

	_, open1 := <-ch1
	_, open2 := <-ch2
	assert.False(t, open1)
	assert.False(t, open2)
}
