// ABOUTME: Tests for the Feed session engine
// ABOUTME: Snapshot lifecycle, live merges, detail-fetch race guard, selection, teardown

package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthlabs/hearth/internal/event"
)

// fakeBackend is a hand-rolled Backend with gateable detail fetches, in the
// style of the store mock.
type fakeBackend struct {
	mu            sync.Mutex
	snapshot      []*Conversation
	snapshotErr   error
	snapshotCalls int
	details       map[string]*Conversation
	detailErr     error
	detailCalls   int
	detailGate    chan struct{} // when non-nil, ConversationByID blocks until closed
}

func (b *fakeBackend) UserConversations(ctx context.Context, viewerID string) ([]*Conversation, error) {
	b.mu.Lock()
	b.snapshotCalls++
	snap, err := b.snapshot, b.snapshotErr
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return cloneList(snap), nil
}

func (b *fakeBackend) ConversationByID(ctx context.Context, viewerID, conversationID string) (*Conversation, error) {
	b.mu.Lock()
	b.detailCalls++
	gate := b.detailGate
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.detailErr != nil {
		return nil, b.detailErr
	}
	c, ok := b.details[conversationID]
	if !ok {
		return nil, errors.New("not found")
	}
	return c.clone(), nil
}

func (b *fakeBackend) calls() (snapshots, details int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotCalls, b.detailCalls
}

func startedFeed(t *testing.T, backend *fakeBackend) (*Feed, chan *event.MessageEvent) {
	t.Helper()
	events := make(chan *event.MessageEvent, 16)
	f := New(backend, "u1", nil, WithFetchTimeout(time.Second))
	f.Start(t.Context(), events)
	t.Cleanup(f.Close)
	return f, events
}

func waitForVersion(t *testing.T, f *Feed, atLeast uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.Version() >= atLeast
	}, 2*time.Second, 5*time.Millisecond, "feed never reached version %d", atLeast)
}

func TestFeed_StartLoadsSnapshotFreshestFirst(t *testing.T) {
	backend := &fakeBackend{snapshot: []*Conversation{
		conv("B", baseTime.Add(5*time.Minute), 0),
		conv("A", baseTime, 2),
	}}
	f, _ := startedFeed(t, backend)

	assert.Equal(t, StateReady, f.State())
	assert.NoError(t, f.Err())

	snap := f.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "B", snap[0].ID)
	assert.Equal(t, "A", snap[1].ID)
	assert.Equal(t, 2, snap[1].UnreadCount)
}

func TestFeed_SnapshotFailureIsRetryable(t *testing.T) {
	backend := &fakeBackend{snapshotErr: errors.New("backend down")}
	f, _ := startedFeed(t, backend)

	assert.Equal(t, StateError, f.State())
	assert.Error(t, f.Err())
	assert.Empty(t, f.Snapshot())

	// Backend recovers; a manual retry installs the snapshot.
	backend.mu.Lock()
	backend.snapshotErr = nil
	backend.snapshot = []*Conversation{conv("A", baseTime, 0)}
	backend.mu.Unlock()

	f.Retry(t.Context())

	assert.Equal(t, StateReady, f.State())
	assert.NoError(t, f.Err())
	require.Len(t, f.Snapshot(), 1)
}

func TestFeed_RetryFailurePreservesExistingList(t *testing.T) {
	backend := &fakeBackend{snapshot: []*Conversation{conv("A", baseTime, 0)}}
	f, _ := startedFeed(t, backend)
	require.Equal(t, StateReady, f.State())

	backend.mu.Lock()
	backend.snapshotErr = errors.New("backend down")
	backend.mu.Unlock()

	f.Retry(t.Context())

	assert.Equal(t, StateError, f.State())
	// Previously loaded state is not corrupted.
	require.Len(t, f.Snapshot(), 1)
	assert.Equal(t, "A", f.Snapshot()[0].ID)
}

func TestFeed_InsertEventMergesIntoWorkingList(t *testing.T) {
	backend := &fakeBackend{snapshot: []*Conversation{
		conv("B", baseTime.Add(5*time.Minute), 0),
		conv("A", baseTime, 0),
	}}
	f, events := startedFeed(t, backend)
	v := f.Version()

	events <- insertEvent("A", "u2", baseTime.Add(10*time.Minute))
	waitForVersion(t, f, v+1)

	snap := f.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "A", snap[0].ID)
	assert.Equal(t, 1, snap[0].UnreadCount)
	assert.Equal(t, "fresh message", snap[0].LastMessage.Content)
}

func TestFeed_RacingEventsForNewConversationInsertOnce(t *testing.T) {
	// Two insert events for a conversation absent from the cache arrive
	// before the detail fetch resolves; the conversation appears exactly once.
	gate := make(chan struct{})
	backend := &fakeBackend{
		snapshot:   []*Conversation{conv("A", baseTime, 0)},
		details:    map[string]*Conversation{"C": conv("C", baseTime.Add(20*time.Minute), 1)},
		detailGate: gate,
	}
	f, events := startedFeed(t, backend)

	events <- insertEvent("C", "u2", baseTime.Add(20*time.Minute))
	events <- insertEvent("C", "u2", baseTime.Add(21*time.Minute))

	// Until the fetch resolves, the list is unchanged.
	require.Eventually(t, func() bool {
		_, details := backend.calls()
		return details >= 1
	}, 2*time.Second, 5*time.Millisecond)
	require.Len(t, f.Snapshot(), 1)

	close(gate)

	require.Eventually(t, func() bool {
		return len(f.Snapshot()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	snap := f.Snapshot()
	assert.Equal(t, "C", snap[0].ID)

	seen := 0
	for _, c := range snap {
		if c.ID == "C" {
			seen++
		}
	}
	assert.Equal(t, 1, seen, "conversation C must appear exactly once")

	_, details := backend.calls()
	assert.Equal(t, 1, details, "duplicate events share one detail fetch")
}

func TestFeed_FailedDetailFetchDropsEvent(t *testing.T) {
	backend := &fakeBackend{
		snapshot:  []*Conversation{conv("A", baseTime, 0)},
		detailErr: errors.New("backend down"),
	}
	f, events := startedFeed(t, backend)

	events <- insertEvent("C", "u2", baseTime.Add(time.Minute))

	require.Eventually(t, func() bool {
		_, details := backend.calls()
		return details >= 1
	}, 2*time.Second, 5*time.Millisecond)

	// The event is dropped; the list is unchanged and the feed stays healthy.
	time.Sleep(20 * time.Millisecond)
	require.Len(t, f.Snapshot(), 1)
	assert.Equal(t, StateReady, f.State())

	// A later event for the same conversation may fetch again.
	backend.mu.Lock()
	backend.detailErr = nil
	backend.details = map[string]*Conversation{"C": conv("C", baseTime.Add(2*time.Minute), 1)}
	backend.mu.Unlock()

	events <- insertEvent("C", "u2", baseTime.Add(2*time.Minute))
	require.Eventually(t, func() bool {
		return len(f.Snapshot()) == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestFeed_SelectResetsUnreadImmediately(t *testing.T) {
	// Selecting a conversation with unread > 0 zeroes it locally with no
	// network call.
	backend := &fakeBackend{snapshot: []*Conversation{conv("A", baseTime, 4)}}
	f, _ := startedFeed(t, backend)

	snapshotsBefore, detailsBefore := backend.calls()
	f.Select("A")

	snap := f.Snapshot()
	assert.Equal(t, 0, snap[0].UnreadCount)

	snapshotsAfter, detailsAfter := backend.calls()
	assert.Equal(t, snapshotsBefore, snapshotsAfter)
	assert.Equal(t, detailsBefore, detailsAfter)
}

func TestFeed_SelectionSuppressesUnreadGrowth(t *testing.T) {
	backend := &fakeBackend{snapshot: []*Conversation{
		conv("A", baseTime, 0),
		conv("B", baseTime, 0),
	}}
	f, events := startedFeed(t, backend)

	f.Select("A")
	v := f.Version()

	events <- insertEvent("A", "u2", baseTime.Add(time.Minute))
	waitForVersion(t, f, v+1)

	snap := f.Snapshot()
	assert.Equal(t, "A", snap[0].ID)
	assert.Equal(t, 0, snap[0].UnreadCount)

	// Deselect: growth resumes.
	f.Select("")
	v = f.Version()
	events <- insertEvent("A", "u2", baseTime.Add(2*time.Minute))
	waitForVersion(t, f, v+1)
	assert.Equal(t, 1, f.Snapshot()[0].UnreadCount)
}

func TestFeed_FilteredMatchesOtherDisplayName(t *testing.T) {
	beatrice := conv("A", baseTime, 0)
	marcus := conv("B", baseTime.Add(time.Minute), 0)
	marcus.Other = &Participant{ID: "u3", DisplayName: "Marcus Webb"}
	group := conv("C", baseTime.Add(2*time.Minute), 0)
	group.Other = nil

	backend := &fakeBackend{snapshot: []*Conversation{group, marcus, beatrice}}
	f, _ := startedFeed(t, backend)

	matches := f.Filtered("BEATRICE")
	require.Len(t, matches, 1)
	assert.Equal(t, "A", matches[0].ID)

	matches = f.Filtered("webb")
	require.Len(t, matches, 1)
	assert.Equal(t, "B", matches[0].ID)

	assert.Empty(t, f.Filtered("nobody"))
	assert.Len(t, f.Filtered(""), 3)

	// Filtering never mutates the working list.
	require.Len(t, f.Snapshot(), 3)
	assert.Equal(t, "C", f.Snapshot()[0].ID)
}

func TestFeed_NoMutationAfterClose(t *testing.T) {
	backend := &fakeBackend{snapshot: []*Conversation{conv("A", baseTime, 0)}}
	events := make(chan *event.MessageEvent, 16)
	f := New(backend, "u1", nil, WithFetchTimeout(time.Second))
	f.Start(t.Context(), events)

	f.Close()
	assert.Equal(t, StateClosed, f.State())
	v := f.Version()

	events <- insertEvent("A", "u2", baseTime.Add(time.Minute))
	f.Select("A")
	f.Retry(t.Context())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, v, f.Version(), "closed feed must not mutate")
}

func TestFeed_DetailFetchResolvingAfterCloseIsDiscarded(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{
		snapshot:   []*Conversation{conv("A", baseTime, 0)},
		details:    map[string]*Conversation{"C": conv("C", baseTime.Add(time.Minute), 1)},
		detailGate: gate,
	}
	f, events := startedFeed(t, backend)

	events <- insertEvent("C", "u2", baseTime.Add(time.Minute))
	require.Eventually(t, func() bool {
		_, details := backend.calls()
		return details >= 1
	}, 2*time.Second, 5*time.Millisecond)

	f.Close()
	close(gate)

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, f.Snapshot(), 1, "post-teardown fetch result must be discarded")
}

func TestFeed_ClosedEventChannelEndsRunLoop(t *testing.T) {
	backend := &fakeBackend{snapshot: []*Conversation{conv("A", baseTime, 0)}}
	events := make(chan *event.MessageEvent)
	f := New(backend, "u1", nil)
	f.Start(t.Context(), events)
	defer f.Close()

	close(events)

	// The run loop exits; the feed itself stays readable.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateReady, f.State())
	assert.Len(t, f.Snapshot(), 1)
}
