// ABOUTME: Messaging service: conversation creation, message sends, read marks
// ABOUTME: Record first, then broadcast - storage is the source of truth, events are derived

package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hearthlabs/hearth/internal/broadcast"
	"github.com/hearthlabs/hearth/internal/dedupe"
	"github.com/hearthlabs/hearth/internal/event"
	"github.com/hearthlabs/hearth/internal/feed"
	"github.com/hearthlabs/hearth/internal/render"
	"github.com/hearthlabs/hearth/internal/store"
	"github.com/hearthlabs/hearth/internal/unread"
)

// Service errors
var (
	ErrNotParticipant = errors.New("viewer is not a participant")
	ErrEmptyContent   = errors.New("message content is empty")
	ErrSelfThread     = errors.New("cannot open a conversation with yourself")
)

// maxContentLength caps stored message bodies.
const maxContentLength = 8192

// MessagingStore defines what the service needs from storage.
type MessagingStore interface {
	CreateConversation(ctx context.Context, conv *store.Conversation, participantIDs []string) error
	GetConversationByPairKey(ctx context.Context, pairKey string) (*store.Conversation, error)
	UserConversations(ctx context.Context, viewerID string) ([]*store.ConversationSummary, error)
	UserConversation(ctx context.Context, viewerID, conversationID string) (*store.ConversationSummary, error)
	IsParticipant(ctx context.Context, memberID, conversationID string) (bool, error)
	Participants(ctx context.Context, conversationID string) ([]string, error)

	InsertMessage(ctx context.Context, msg *store.Message) error
	GetMessage(ctx context.Context, id string) (*store.Message, error)
	Messages(ctx context.Context, params store.MessagesParams) (*store.MessagesResult, error)
	MarkConversationRead(ctx context.Context, viewerID, conversationID string, at time.Time) (int, error)
	TotalUnread(ctx context.Context, viewerID string) (int, error)
}

// Service is the central messaging layer. All message flow goes through
// here: writes hit storage first, and only then does an event fan out to the
// participants' streams. A broadcast that reaches nobody never unwinds the
// write.
type Service struct {
	store       MessagingStore
	broadcaster *broadcast.Broadcaster
	dedupe      *dedupe.Cache
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a messaging service. Pass nil logger for default.
func New(st MessagingStore, b *broadcast.Broadcaster, d *dedupe.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       st,
		broadcaster: b,
		dedupe:      d,
		logger:      logger.With("component", "messaging"),
		now:         time.Now,
	}
}

// PairKey returns the deterministic key for a two-party thread. The member
// ids are sorted so both orderings produce the same key.
func PairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return fmt.Sprintf("dm_%s_%s", ids[0], ids[1])
}

// GetOrCreateConversation resolves the two-party thread between the viewer
// and the other member, creating it if absent. Idempotent: the same pair
// always yields the same conversation, including under racing creates.
func (s *Service) GetOrCreateConversation(ctx context.Context, viewerID, otherID string) (*store.Conversation, error) {
	if viewerID == otherID {
		return nil, ErrSelfThread
	}

	pairKey := PairKey(viewerID, otherID)
	conv, err := s.store.GetConversationByPairKey(ctx, pairKey)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up conversation: %w", err)
	}

	conv = &store.Conversation{
		ID:        uuid.New().String(),
		PairKey:   pairKey,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateConversation(ctx, conv, []string{viewerID, otherID}); err != nil {
		// Another request may have created the thread between our lookup and
		// insert; the pair key constraint catches it, so look up again.
		if errors.Is(err, store.ErrDuplicateConversation) {
			existing, lookupErr := s.store.GetConversationByPairKey(ctx, pairKey)
			if lookupErr == nil {
				s.logger.Debug("found existing conversation after race", "conversation_id", existing.ID)
				return existing, nil
			}
			return nil, fmt.Errorf("retry lookup after duplicate: %w", lookupErr)
		}
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.logger.Debug("conversation created", "conversation_id", conv.ID, "pair_key", pairKey)
	return conv, nil
}

// SendRequest contains everything needed to send a message.
type SendRequest struct {
	ConversationID string
	SenderID       string
	Content        string

	// ClientMessageID, when set, is a client-minted id used both as the
	// message id and as the idempotency key: retrying the same send returns
	// the recorded message instead of inserting twice.
	ClientMessageID string
}

// SendMessage validates, sanitizes, records, and then broadcasts a message.
//
// Key principle: record first, then act. The message is saved to the store
// BEFORE any event fans out, so there is a record even if every subscriber
// is gone.
func (s *Service) SendMessage(ctx context.Context, req SendRequest) (*store.Message, error) {
	content := render.Sanitize(req.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if len(content) > maxContentLength {
		content = content[:maxContentLength]
	}

	member, err := s.store.IsParticipant(ctx, req.SenderID, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("checking membership: %w", err)
	}
	if !member {
		return nil, ErrNotParticipant
	}

	messageID := req.ClientMessageID
	if messageID == "" {
		messageID = uuid.New().String()
	} else if s.dedupe != nil && s.dedupe.CheckAndMark(req.SenderID+"/"+req.ClientMessageID) {
		// Replayed send: return the recorded message.
		existing, getErr := s.store.GetMessage(ctx, messageID)
		if getErr == nil {
			s.logger.Debug("duplicate send ignored", "message_id", messageID)
			return existing, nil
		}
		// Marked but not recorded (crashed between mark and insert); fall
		// through and record it now.
	}

	msg := &store.Message{
		ID:             messageID,
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		Content:        content,
		CreatedAt:      s.now(),
	}
	if err := s.store.InsertMessage(ctx, msg); err != nil {
		if errors.Is(err, store.ErrDuplicateMessage) {
			existing, getErr := s.store.GetMessage(ctx, messageID)
			if getErr == nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("recording message: %w", err)
	}

	s.logger.Debug("message recorded",
		"conversation_id", msg.ConversationID,
		"message_id", msg.ID,
		"sender_id", msg.SenderID)

	s.broadcastEvent(ctx, req.ConversationID, &event.MessageEvent{
		Kind:           event.KindInsert,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		Content:        render.Preview(msg.Content, 120),
		CreatedAt:      msg.CreatedAt,
	})

	return msg, nil
}

// MarkConversationRead advances the viewer's read watermark and broadcasts
// an update event so the viewer's other sessions and the counterparty can
// recompute their counters. Returns the number of messages newly marked read.
func (s *Service) MarkConversationRead(ctx context.Context, viewerID, conversationID string) (int, error) {
	now := s.now()
	flipped, err := s.store.MarkConversationRead(ctx, viewerID, conversationID, now)
	if err != nil {
		return 0, fmt.Errorf("marking conversation read: %w", err)
	}

	if flipped > 0 {
		s.broadcastEvent(ctx, conversationID, &event.MessageEvent{
			Kind:           event.KindUpdate,
			ConversationID: conversationID,
			SenderID:       viewerID,
			Read:           true,
			CreatedAt:      now,
		})
	}

	return flipped, nil
}

// broadcastEvent fans an event out to every participant's stream. Lookup
// failures are logged, never propagated: the write already happened.
func (s *Service) broadcastEvent(ctx context.Context, conversationID string, ev *event.MessageEvent) {
	participants, err := s.store.Participants(ctx, conversationID)
	if err != nil {
		s.logger.Error("participant lookup for broadcast failed",
			"conversation_id", conversationID,
			"error", err)
		return
	}
	for _, p := range participants {
		s.broadcaster.Publish(p, ev)
	}
}

// UserConversations returns the viewer's conversations freshest-first,
// converted to feed entries. Implements feed.Backend.
func (s *Service) UserConversations(ctx context.Context, viewerID string) ([]*feed.Conversation, error) {
	summaries, err := s.store.UserConversations(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("fetching conversations: %w", err)
	}
	out := make([]*feed.Conversation, len(summaries))
	for i, cs := range summaries {
		out[i] = toFeedConversation(cs)
	}
	return out, nil
}

// ConversationByID returns one conversation as the viewer sees it.
// Implements feed.Backend; absent conversations yield store.ErrNotFound.
func (s *Service) ConversationByID(ctx context.Context, viewerID, conversationID string) (*feed.Conversation, error) {
	cs, err := s.store.UserConversation(ctx, viewerID, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("fetching conversation: %w", err)
	}
	return toFeedConversation(cs), nil
}

// IsParticipant reports whether the viewer belongs to the conversation.
// Implements unread.Source together with TotalUnread.
func (s *Service) IsParticipant(ctx context.Context, viewerID, conversationID string) (bool, error) {
	return s.store.IsParticipant(ctx, viewerID, conversationID)
}

// TotalUnread returns the viewer's authoritative unread count.
func (s *Service) TotalUnread(ctx context.Context, viewerID string) (int, error) {
	return s.store.TotalUnread(ctx, viewerID)
}

// Messages returns a page of a conversation's history for a participant.
func (s *Service) Messages(ctx context.Context, viewerID string, params store.MessagesParams) (*store.MessagesResult, error) {
	member, err := s.store.IsParticipant(ctx, viewerID, params.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("checking membership: %w", err)
	}
	if !member {
		return nil, ErrNotParticipant
	}
	return s.store.Messages(ctx, params)
}

// Subscribe opens a stream of the viewer's message events. The subscription
// is released when ctx is cancelled or via Unsubscribe.
func (s *Service) Subscribe(ctx context.Context, viewerID string) (<-chan *event.MessageEvent, string) {
	return s.broadcaster.Subscribe(ctx, viewerID)
}

// Unsubscribe releases a subscription, closing its channel.
func (s *Service) Unsubscribe(viewerID, subID string) {
	s.broadcaster.Unsubscribe(viewerID, subID)
}

// toFeedConversation converts a store summary into a feed entry.
func toFeedConversation(cs *store.ConversationSummary) *feed.Conversation {
	conv := &feed.Conversation{
		ID:           cs.ID,
		Participants: append([]string(nil), cs.Participants...),
		UpdatedAt:    cs.UpdatedAt,
		UnreadCount:  cs.UnreadCount,
	}
	if cs.Other != nil {
		conv.Other = &feed.Participant{
			ID:          cs.Other.ID,
			DisplayName: cs.Other.DisplayName,
			AvatarURL:   cs.Other.AvatarURL,
			JobTitle:    cs.Other.JobTitle,
			Company:     cs.Other.Company,
		}
	}
	if cs.LastMessage != nil {
		conv.LastMessage = &feed.MessageSummary{
			ID:        cs.LastMessage.ID,
			SenderID:  cs.LastMessage.SenderID,
			Content:   cs.LastMessage.Content,
			CreatedAt: cs.LastMessage.CreatedAt,
		}
	}
	return conv
}

// Interface checks
var (
	_ feed.Backend  = (*Service)(nil)
	_ unread.Source = (*Service)(nil)
)
