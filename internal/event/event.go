// ABOUTME: MessageEvent tagged union for message inserts and updates
// ABOUTME: Validating decode turns loose JSON into typed events before business logic sees them

package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Decode errors
var (
	ErrUnknownKind  = errors.New("unknown event kind")
	ErrMissingField = errors.New("missing required field")
	ErrBadTimestamp = errors.New("malformed timestamp")
)

// Kind discriminates the event union.
type Kind string

const (
	// KindInsert is a newly persisted message.
	KindInsert Kind = "insert"
	// KindUpdate is a mutation of an existing message, e.g. a read-flag flip.
	// Updates do not carry enough detail to reconstruct which transition
	// occurred; consumers recompute from storage instead.
	KindUpdate Kind = "update"
)

// MessageEvent is one notification on a viewer's message stream. Events are
// transient: they trigger exactly one reconciliation step and are never
// retained.
type MessageEvent struct {
	Kind           Kind
	ConversationID string
	MessageID      string
	SenderID       string
	Content        string
	Read           bool
	CreatedAt      time.Time
}

// wireEvent is the loose JSON shape events travel in. All fields are strings
// or optional so that Decode owns every validation decision.
type wireEvent struct {
	Kind           string `json:"kind"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id,omitempty"`
	SenderID       string `json:"sender_id,omitempty"`
	Content        string `json:"content,omitempty"`
	Read           bool   `json:"read,omitempty"`
	CreatedAt      string `json:"created_at"`
}

// Decode validates a raw JSON payload into a typed MessageEvent. Raw payloads
// must never reach the reconciler or counter; this is the only way in.
func Decode(raw []byte) (*MessageEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("unmarshaling event: %w", err)
	}

	kind := Kind(w.Kind)
	switch kind {
	case KindInsert, KindUpdate:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, w.Kind)
	}

	if w.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversation_id", ErrMissingField)
	}
	if kind == KindInsert {
		if w.SenderID == "" {
			return nil, fmt.Errorf("%w: sender_id", ErrMissingField)
		}
		if w.Content == "" {
			return nil, fmt.Errorf("%w: content", ErrMissingField)
		}
	}
	if w.CreatedAt == "" {
		return nil, fmt.Errorf("%w: created_at", ErrMissingField)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, w.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadTimestamp, w.CreatedAt)
	}

	return &MessageEvent{
		Kind:           kind,
		ConversationID: w.ConversationID,
		MessageID:      w.MessageID,
		SenderID:       w.SenderID,
		Content:        w.Content,
		Read:           w.Read,
		CreatedAt:      createdAt,
	}, nil
}

// Encode serializes the event into its wire JSON form. Decode(Encode(e))
// yields an equal event.
func (e *MessageEvent) Encode() ([]byte, error) {
	w := wireEvent{
		Kind:           string(e.Kind),
		ConversationID: e.ConversationID,
		MessageID:      e.MessageID,
		SenderID:       e.SenderID,
		Content:        e.Content,
		Read:           e.Read,
		CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("marshaling event: %w", err)
	}
	return data, nil
}
