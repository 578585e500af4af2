// ABOUTME: Store interface and data types for hearth persistence
// ABOUTME: Defines Member, Conversation, Message, Referral structs and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when trying to create a conversation
// whose pair key already exists
var ErrDuplicateConversation = errors.New("conversation already exists")

// ErrDuplicateMember is returned when a member handle is already taken
var ErrDuplicateMember = errors.New("member already exists")

// ErrDuplicateMessage is returned when a message id is already recorded
var ErrDuplicateMessage = errors.New("message already exists")

// Member is a club member profile.
type Member struct {
	ID          string
	Handle      string
	DisplayName string
	AvatarURL   string
	JobTitle    string
	Company     string
	Bio         string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MemberSnapshot is the denormalized slice of a member profile carried on
// conversation summaries for display (the "other participant" card).
type MemberSnapshot struct {
	ID          string
	DisplayName string
	AvatarURL   string
	JobTitle    string
	Company     string
}

// Snapshot returns the display slice of a member profile.
func (m *Member) Snapshot() *MemberSnapshot {
	return &MemberSnapshot{
		ID:          m.ID,
		DisplayName: m.DisplayName,
		AvatarURL:   m.AvatarURL,
		JobTitle:    m.JobTitle,
		Company:     m.Company,
	}
}

// Conversation is a message thread between members. Two-party threads carry
// a deterministic pair key so creation is idempotent per member pair.
type Conversation struct {
	ID        string
	PairKey   string
	CreatedAt time.Time
}

// MessageSummary is the last-message digest carried on conversation summaries.
type MessageSummary struct {
	ID        string
	SenderID  string
	Content   string
	CreatedAt time.Time
}

// ConversationSummary is a conversation as seen by one viewer: participants,
// the other participant's profile snapshot for two-party threads, the last
// message digest, and the viewer's unread count derived from their read
// watermark.
type ConversationSummary struct {
	ID           string
	Participants []string
	Other        *MemberSnapshot
	LastMessage  *MessageSummary
	UpdatedAt    time.Time
	UnreadCount  int
}

// Message is a single message within a conversation. Read marks the message
// as seen by its recipients (flipped when a recipient advances their read
// watermark).
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	Read           bool
	CreatedAt      time.Time
}

// ReferralStatus tracks a business referral through its lifecycle.
type ReferralStatus string

const (
	ReferralStatusOpen       ReferralStatus = "open"
	ReferralStatusAccepted   ReferralStatus = "accepted"
	ReferralStatusDeclined   ReferralStatus = "declined"
	ReferralStatusClosedWon  ReferralStatus = "closed_won"
	ReferralStatusClosedLost ReferralStatus = "closed_lost"
)

// Referral is a business referral passed from one member to another.
type Referral struct {
	ID           string
	FromMemberID string
	ToMemberID   string
	BusinessName string
	ContactInfo  string
	Note         string
	Status       ReferralStatus
	ValueCents   int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ReferralStats aggregates a member's referral activity.
type ReferralStats struct {
	Sent                int
	Received            int
	ByStatus            map[ReferralStatus]int
	ClosedWonValueCents int64
}

// PushSubscription is a Web Push endpoint registered by a member's browser.
type PushSubscription struct {
	ID        string
	MemberID  string
	Endpoint  string
	P256dh    string
	Auth      string
	CreatedAt time.Time
}

// MessagesParams specifies the parameters for retrieving messages from a
// conversation.
type MessagesParams struct {
	ConversationID string     // Required: the conversation to fetch messages from
	Since          *time.Time // Optional: only messages at or after this timestamp
	Until          *time.Time // Optional: only messages at or before this timestamp
	Limit          int        // 1-500, defaults to 50
	Cursor         string     // Opaque cursor from a previous response for pagination
}

// MessagesResult contains the results of a Messages query.
type MessagesResult struct {
	Messages   []Message // The messages returned by the query, oldest first
	NextCursor string    // Opaque cursor for fetching the next page, empty if no more
	HasMore    bool      // True if there are more messages after this page
}

// Store defines the interface for hearth persistence.
type Store interface {
	// Members
	CreateMember(ctx context.Context, m *Member) error
	GetMember(ctx context.Context, id string) (*Member, error)
	GetMemberByHandle(ctx context.Context, handle string) (*Member, error)
	UpdateMember(ctx context.Context, m *Member) error
	SearchMembers(ctx context.Context, query string, limit int) ([]*Member, error)
	ListMembers(ctx context.Context, limit int) ([]*Member, error)

	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation, participantIDs []string) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	GetConversationByPairKey(ctx context.Context, pairKey string) (*Conversation, error)
	UserConversations(ctx context.Context, viewerID string) ([]*ConversationSummary, error)
	UserConversation(ctx context.Context, viewerID, conversationID string) (*ConversationSummary, error)
	IsParticipant(ctx context.Context, memberID, conversationID string) (bool, error)
	Participants(ctx context.Context, conversationID string) ([]string, error)

	// Messages
	InsertMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	Messages(ctx context.Context, params MessagesParams) (*MessagesResult, error)
	MarkConversationRead(ctx context.Context, viewerID, conversationID string, at time.Time) (int, error)
	TotalUnread(ctx context.Context, viewerID string) (int, error)
	ConversationUnread(ctx context.Context, viewerID, conversationID string) (int, error)

	// Referrals
	CreateReferral(ctx context.Context, r *Referral) error
	GetReferral(ctx context.Context, id string) (*Referral, error)
	UpdateReferralStatus(ctx context.Context, id string, status ReferralStatus, at time.Time) error
	ListReferralsForMember(ctx context.Context, memberID string, limit int) ([]*Referral, error)
	ReferralStats(ctx context.Context, memberID string) (*ReferralStats, error)

	// Push subscriptions
	SavePushSubscription(ctx context.Context, sub *PushSubscription) error
	ListPushSubscriptions(ctx context.Context, memberID string) ([]*PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error

	// Tour progress
	MarkTourStep(ctx context.Context, memberID, stepID string, at time.Time) error
	TourProgress(ctx context.Context, memberID string) (map[string]time.Time, error)
	ResetTourProgress(ctx context.Context, memberID string) error

	// Close releases any resources held by the store
	Close() error
}
