// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	members       map[string]*Member            // keyed by member ID
	memberHandles map[string]string             // keyed by handle -> member ID
	conversations map[string]*Conversation      // keyed by conversation ID
	pairKeys      map[string]string             // keyed by pair key -> conversation ID
	participants  map[string]map[string]*mockParticipant
	messages      map[string][]*Message         // keyed by conversation ID, in insert order
	messageIndex  map[string]*Message           // keyed by message ID
	referrals     map[string]*Referral          // keyed by referral ID
	pushSubs      map[string]*PushSubscription  // keyed by endpoint
	tourProgress  map[string]map[string]time.Time
}

type mockParticipant struct {
	lastReadAt time.Time
	joinedAt   time.Time
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		members:       make(map[string]*Member),
		memberHandles: make(map[string]string),
		conversations: make(map[string]*Conversation),
		pairKeys:      make(map[string]string),
		participants:  make(map[string]map[string]*mockParticipant),
		messages:      make(map[string][]*Message),
		messageIndex:  make(map[string]*Message),
		referrals:     make(map[string]*Referral),
		pushSubs:      make(map[string]*PushSubscription),
		tourProgress:  make(map[string]map[string]time.Time),
	}
}

// CreateMember stores a new member.
func (m *MockStore) CreateMember(ctx context.Context, member *Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.memberHandles[member.Handle]; ok {
		return ErrDuplicateMember
	}

	// Make a copy to avoid external modification
	c := *member
	m.members[c.ID] = &c
	m.memberHandles[c.Handle] = c.ID
	return nil
}

// GetMember retrieves a member by ID.
func (m *MockStore) GetMember(ctx context.Context, id string) (*Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	member, ok := m.members[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *member
	return &result, nil
}

// GetMemberByHandle retrieves a member by handle.
func (m *MockStore) GetMemberByHandle(ctx context.Context, handle string) (*Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.memberHandles[handle]
	if !ok {
		return nil, ErrNotFound
	}
	result := *m.members[id]
	return &result, nil
}

// UpdateMember updates an existing member.
func (m *MockStore) UpdateMember(ctx context.Context, member *Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.members[member.ID]
	if !ok {
		return ErrNotFound
	}

	c := *member
	c.Handle = existing.Handle
	c.CreatedAt = existing.CreatedAt
	m.members[c.ID] = &c
	return nil
}

// SearchMembers finds members matching the query case-insensitively.
func (m *MockStore) SearchMembers(ctx context.Context, query string, limit int) ([]*Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	q := strings.ToLower(query)
	var results []*Member
	for _, member := range m.members {
		if strings.Contains(strings.ToLower(member.DisplayName), q) ||
			strings.Contains(strings.ToLower(member.Handle), q) ||
			strings.Contains(strings.ToLower(member.Company), q) {
			c := *member
			results = append(results, &c)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].DisplayName < results[j].DisplayName
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ListMembers returns members ordered by display name.
func (m *MockStore) ListMembers(ctx context.Context, limit int) ([]*Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var results []*Member
	for _, member := range m.members {
		c := *member
		results = append(results, &c)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].DisplayName < results[j].DisplayName
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CreateConversation stores a conversation and its participants.
func (m *MockStore) CreateConversation(ctx context.Context, conv *Conversation, participantIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conv.PairKey != "" {
		if _, ok := m.pairKeys[conv.PairKey]; ok {
			return ErrDuplicateConversation
		}
	}

	c := *conv
	m.conversations[c.ID] = &c
	if c.PairKey != "" {
		m.pairKeys[c.PairKey] = c.ID
	}

	parts := make(map[string]*mockParticipant, len(participantIDs))
	for _, id := range participantIDs {
		parts[id] = &mockParticipant{
			lastReadAt: c.CreatedAt,
			joinedAt:   c.CreatedAt,
		}
	}
	m.participants[c.ID] = parts
	return nil
}

// GetConversation retrieves a conversation by ID.
func (m *MockStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *conv
	return &result, nil
}

// GetConversationByPairKey retrieves a conversation by pair key.
func (m *MockStore) GetConversationByPairKey(ctx context.Context, pairKey string) (*Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.pairKeys[pairKey]
	if !ok {
		return nil, ErrNotFound
	}
	result := *m.conversations[id]
	return &result, nil
}

// UserConversations assembles viewer summaries, freshest-first.
func (m *MockStore) UserConversations(ctx context.Context, viewerID string) ([]*ConversationSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var summaries []*ConversationSummary
	for convID, parts := range m.participants {
		if _, ok := parts[viewerID]; !ok {
			continue
		}
		summaries = append(summaries, m.buildSummary(viewerID, convID))
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].UpdatedAt.Equal(summaries[j].UpdatedAt) {
			return summaries[i].ID > summaries[j].ID
		}
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// UserConversation assembles a single viewer summary.
func (m *MockStore) UserConversation(ctx context.Context, viewerID, conversationID string) (*ConversationSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	parts, ok := m.participants[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	if _, ok := parts[viewerID]; !ok {
		return nil, ErrNotFound
	}
	return m.buildSummary(viewerID, conversationID), nil
}

// buildSummary must be called with the lock held.
func (m *MockStore) buildSummary(viewerID, convID string) *ConversationSummary {
	conv := m.conversations[convID]
	parts := m.participants[convID]

	cs := &ConversationSummary{
		ID:        convID,
		UpdatedAt: conv.CreatedAt,
	}

	for memberID := range parts {
		cs.Participants = append(cs.Participants, memberID)
	}
	sort.Strings(cs.Participants)

	if len(cs.Participants) == 2 {
		for _, memberID := range cs.Participants {
			if memberID == viewerID {
				continue
			}
			if member, ok := m.members[memberID]; ok {
				cs.Other = member.Snapshot()
			}
		}
	}

	msgs := m.messages[convID]
	if len(msgs) > 0 {
		last := msgs[0]
		for _, msg := range msgs[1:] {
			if msg.CreatedAt.After(last.CreatedAt) || (msg.CreatedAt.Equal(last.CreatedAt) && msg.ID > last.ID) {
				last = msg
			}
		}
		cs.LastMessage = &MessageSummary{
			ID:        last.ID,
			SenderID:  last.SenderID,
			Content:   last.Content,
			CreatedAt: last.CreatedAt,
		}
		cs.UpdatedAt = last.CreatedAt
	}

	watermark := parts[viewerID].lastReadAt
	for _, msg := range msgs {
		if msg.SenderID != viewerID && msg.CreatedAt.After(watermark) {
			cs.UnreadCount++
		}
	}
	return cs
}

// IsParticipant reports conversation membership.
func (m *MockStore) IsParticipant(ctx context.Context, memberID, conversationID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	parts, ok := m.participants[conversationID]
	if !ok {
		return false, nil
	}
	_, ok = parts[memberID]
	return ok, nil
}

// Participants returns the member ids in a conversation.
func (m *MockStore) Participants(ctx context.Context, conversationID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	parts := m.participants[conversationID]
	ids := make([]string, 0, len(parts))
	for id := range parts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// InsertMessage stores a message.
func (m *MockStore) InsertMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.messageIndex[msg.ID]; ok {
		return ErrDuplicateMessage
	}

	c := *msg
	m.messages[c.ConversationID] = append(m.messages[c.ConversationID], &c)
	m.messageIndex[c.ID] = &c
	return nil
}

// GetMessage retrieves a message by ID.
func (m *MockStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messageIndex[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *msg
	return &result, nil
}

// Messages returns a page of messages in chronological order.
func (m *MockStore) Messages(ctx context.Context, p MessagesParams) (*MessagesResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p.Limit <= 0 {
		p.Limit = 50
	}

	var cursorTS time.Time
	var cursorID string
	if p.Cursor != "" {
		var err error
		cursorTS, cursorID, err = decodeCursor(p.Cursor)
		if err != nil {
			return nil, err
		}
	}

	var msgs []Message
	for _, msg := range m.messages[p.ConversationID] {
		if p.Since != nil && msg.CreatedAt.Before(*p.Since) {
			continue
		}
		if p.Until != nil && msg.CreatedAt.After(*p.Until) {
			continue
		}
		if p.Cursor != "" {
			if msg.CreatedAt.Before(cursorTS) {
				continue
			}
			if msg.CreatedAt.Equal(cursorTS) && msg.ID <= cursorID {
				continue
			}
		}
		msgs = append(msgs, *msg)
	}

	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})

	hasMore := len(msgs) > p.Limit
	if hasMore {
		msgs = msgs[:p.Limit]
	}

	result := &MessagesResult{Messages: msgs, HasMore: hasMore}
	if hasMore && len(msgs) > 0 {
		last := msgs[len(msgs)-1]
		result.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	return result, nil
}

// MarkConversationRead advances the watermark and flips read flags.
func (m *MockStore) MarkConversationRead(ctx context.Context, viewerID, conversationID string, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parts, ok := m.participants[conversationID]
	if !ok {
		return 0, ErrNotFound
	}
	part, ok := parts[viewerID]
	if !ok {
		return 0, ErrNotFound
	}
	part.lastReadAt = at

	flipped := 0
	for _, msg := range m.messages[conversationID] {
		if msg.SenderID != viewerID && !msg.Read && !msg.CreatedAt.After(at) {
			msg.Read = true
			flipped++
		}
	}
	return flipped, nil
}

// TotalUnread counts unread messages across the viewer's conversations.
func (m *MockStore) TotalUnread(ctx context.Context, viewerID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for convID, parts := range m.participants {
		part, ok := parts[viewerID]
		if !ok {
			continue
		}
		for _, msg := range m.messages[convID] {
			if msg.SenderID != viewerID && msg.CreatedAt.After(part.lastReadAt) {
				total++
			}
		}
	}
	return total, nil
}

// ConversationUnread counts unread messages in one conversation.
func (m *MockStore) ConversationUnread(ctx context.Context, viewerID, conversationID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	parts, ok := m.participants[conversationID]
	if !ok {
		return 0, nil
	}
	part, ok := parts[viewerID]
	if !ok {
		return 0, nil
	}

	count := 0
	for _, msg := range m.messages[conversationID] {
		if msg.SenderID != viewerID && msg.CreatedAt.After(part.lastReadAt) {
			count++
		}
	}
	return count, nil
}

// CreateReferral stores a referral.
func (m *MockStore) CreateReferral(ctx context.Context, r *Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *r
	m.referrals[c.ID] = &c
	return nil
}

// GetReferral retrieves a referral by ID.
func (m *MockStore) GetReferral(ctx context.Context, id string) (*Referral, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.referrals[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *r
	return &result, nil
}

// UpdateReferralStatus sets a referral's status.
func (m *MockStore) UpdateReferralStatus(ctx context.Context, id string, status ReferralStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.referrals[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = at
	return nil
}

// ListReferralsForMember returns referrals sent or received by the member.
func (m *MockStore) ListReferralsForMember(ctx context.Context, memberID string, limit int) ([]*Referral, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var results []*Referral
	for _, r := range m.referrals {
		if r.FromMemberID == memberID || r.ToMemberID == memberID {
			c := *r
			results = append(results, &c)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ReferralStats aggregates a member's referral activity.
func (m *MockStore) ReferralStats(ctx context.Context, memberID string) (*ReferralStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &ReferralStats{ByStatus: make(map[ReferralStatus]int)}
	for _, r := range m.referrals {
		if r.FromMemberID != memberID && r.ToMemberID != memberID {
			continue
		}
		if r.FromMemberID == memberID {
			stats.Sent++
		}
		if r.ToMemberID == memberID {
			stats.Received++
		}
		stats.ByStatus[r.Status]++
		if r.Status == ReferralStatusClosedWon {
			stats.ClosedWonValueCents += r.ValueCents
		}
	}
	return stats, nil
}

// SavePushSubscription upserts a subscription by endpoint.
func (m *MockStore) SavePushSubscription(ctx context.Context, sub *PushSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *sub
	if existing, ok := m.pushSubs[c.Endpoint]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	}
	m.pushSubs[c.Endpoint] = &c
	return nil
}

// ListPushSubscriptions returns a member's subscriptions.
func (m *MockStore) ListPushSubscriptions(ctx context.Context, memberID string) ([]*PushSubscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var subs []*PushSubscription
	for _, sub := range m.pushSubs {
		if sub.MemberID == memberID {
			c := *sub
			subs = append(subs, &c)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
	return subs, nil
}

// DeletePushSubscription removes a subscription by endpoint.
func (m *MockStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pushSubs, endpoint)
	return nil
}

// MarkTourStep records a completed tour step.
func (m *MockStore) MarkTourStep(ctx context.Context, memberID, stepID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	progress, ok := m.tourProgress[memberID]
	if !ok {
		progress = make(map[string]time.Time)
		m.tourProgress[memberID] = progress
	}
	if _, done := progress[stepID]; !done {
		progress[stepID] = at
	}
	return nil
}

// TourProgress returns the member's completed steps.
func (m *MockStore) TourProgress(ctx context.Context, memberID string) (map[string]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	progress := make(map[string]time.Time, len(m.tourProgress[memberID]))
	for stepID, at := range m.tourProgress[memberID] {
		progress[stepID] = at
	}
	return progress, nil
}

// ResetTourProgress clears the member's tour progress.
func (m *MockStore) ResetTourProgress(ctx context.Context, memberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tourProgress, memberID)
	return nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements Store interface
var _ Store = (*MockStore)(nil)
