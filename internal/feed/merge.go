// ABOUTME: Pure merge of one message event into a working conversation list
// ABOUTME: Deterministic given (list, event, viewerID, selectedID); no I/O, no clock

package feed

import (
	"time"

	"github.com/hearthlabs/hearth/internal/event"
)

// MessageSummary is the last-message digest displayed on a conversation row.
type MessageSummary struct {
	ID        string
	SenderID  string
	Content   string
	CreatedAt time.Time
}

// Participant is the denormalized profile slice shown for the other member
// of a two-party thread.
type Participant struct {
	ID          string
	DisplayName string
	AvatarURL   string
	JobTitle    string
	Company     string
}

// Conversation is one entry in a viewer's working list. UnreadCount is
// per-viewer and reset to zero exactly when the viewer selects the
// conversation.
type Conversation struct {
	ID           string
	Participants []string
	Other        *Participant
	LastMessage  *MessageSummary
	UpdatedAt    time.Time
	UnreadCount  int
}

// clone returns a copy with its own LastMessage so merges never mutate
// entries shared with earlier snapshots.
func (c *Conversation) clone() *Conversation {
	cp := *c
	if c.LastMessage != nil {
		lm := *c.LastMessage
		cp.LastMessage = &lm
	}
	if c.Other != nil {
		o := *c.Other
		cp.Other = &o
	}
	cp.Participants = append([]string(nil), c.Participants...)
	return &cp
}

// Outcome reports what MergeEvent did with an event.
type Outcome int

const (
	// OutcomeUnchanged means the event required no list mutation.
	OutcomeUnchanged Outcome = iota
	// OutcomeApplied means the event was merged into an existing entry.
	OutcomeApplied
	// OutcomeNeedsFetch means the event referenced a conversation not in the
	// list; the caller should fetch its detail and insert it.
	OutcomeNeedsFetch
)

// MergeEvent merges one event into the list and returns the resulting list.
// The input list is never mutated; entries it shares with the result are the
// untouched ones.
//
// Inserts for a known conversation refresh the last message, move the entry
// to the head (move-to-front is the only ordering guarantee), and increment
// the unread count only when the sender is not the viewer and the
// conversation is not currently selected. Inserts for an unknown
// conversation leave the list unchanged and report OutcomeNeedsFetch.
//
// Updates never touch unread counts. A content-bearing update refreshes the
// last message and moves the entry to the head only when its timestamp is
// not older than the entry's; stale updates and pure read-flag flips leave
// the list as it is. Updates for unknown conversations are dropped.
func MergeEvent(list []*Conversation, ev *event.MessageEvent, viewerID, selectedID string) ([]*Conversation, Outcome) {
	idx := -1
	for i, c := range list {
		if c.ID == ev.ConversationID {
			idx = i
			break
		}
	}

	switch ev.Kind {
	case event.KindInsert:
		if idx < 0 {
			return list, OutcomeNeedsFetch
		}
		updated := list[idx].clone()
		updated.LastMessage = &MessageSummary{
			ID:        ev.MessageID,
			SenderID:  ev.SenderID,
			Content:   ev.Content,
			CreatedAt: ev.CreatedAt,
		}
		updated.UpdatedAt = ev.CreatedAt
		if ev.SenderID != viewerID && ev.ConversationID != selectedID {
			updated.UnreadCount++
		}
		return moveToFront(list, idx, updated), OutcomeApplied

	case event.KindUpdate:
		if idx < 0 {
			return list, OutcomeUnchanged
		}
		if ev.Content == "" {
			// Read-flag flip: the counter handles it via recompute.
			return list, OutcomeUnchanged
		}
		if ev.CreatedAt.Before(list[idx].UpdatedAt) {
			// Stale content update; latest-applied wins for displayed content.
			return list, OutcomeUnchanged
		}
		updated := list[idx].clone()
		updated.LastMessage = &MessageSummary{
			ID:        ev.MessageID,
			SenderID:  ev.SenderID,
			Content:   ev.Content,
			CreatedAt: ev.CreatedAt,
		}
		updated.UpdatedAt = ev.CreatedAt
		return moveToFront(list, idx, updated), OutcomeApplied

	default:
		return list, OutcomeUnchanged
	}
}

// moveToFront builds a new list with replacement at the head and the entry
// previously at idx removed.
func moveToFront(list []*Conversation, idx int, replacement *Conversation) []*Conversation {
	out := make([]*Conversation, 0, len(list))
	out = append(out, replacement)
	for i, c := range list {
		if i == idx {
			continue
		}
		out = append(out, c)
	}
	return out
}
