// ABOUTME: Viewer-scoped conversation summaries for the feed snapshot
// ABOUTME: Assembles last message, other-participant profile, and unread count per conversation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// UserConversations returns every conversation the viewer participates in,
// freshest-first, with the last-message digest, the other participant's
// profile snapshot (two-party threads), and the viewer's unread count.
func (s *SQLiteStore) UserConversations(ctx context.Context, viewerID string) ([]*ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, summaryQuery+`
		ORDER BY updated_at DESC, c.id DESC
	`, viewerID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("querying user conversations: %w", err)
	}
	defer rows.Close()

	summaries, err := collectSummaries(rows)
	if err != nil {
		return nil, err
	}

	if err := s.attachParticipants(ctx, viewerID, summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

// UserConversation returns a single conversation as seen by the viewer.
// Returns ErrNotFound if the conversation doesn't exist or the viewer is not
// a participant.
func (s *SQLiteStore) UserConversation(ctx context.Context, viewerID, conversationID string) (*ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, summaryQuery+`
		AND c.id = ?
	`, viewerID, viewerID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying user conversation: %w", err)
	}
	defer rows.Close()

	summaries, err := collectSummaries(rows)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, ErrNotFound
	}

	if err := s.attachParticipants(ctx, viewerID, summaries); err != nil {
		return nil, err
	}
	return summaries[0], nil
}

// summaryQuery selects one row per conversation the viewer participates in,
// including the last-message digest and the watermark-derived unread count.
// A conversation with no messages yet falls back to its creation time for
// recency ordering.
const summaryQuery = `
	SELECT c.id,
	       COALESCE(lm.created_at, c.created_at) AS updated_at,
	       lm.id, lm.sender_id, lm.content, lm.created_at,
	       (SELECT COUNT(*) FROM messages m
	         WHERE m.conversation_id = c.id
	           AND m.sender_id != ?
	           AND m.created_at > p.last_read_at) AS unread
	FROM conversations c
	JOIN conversation_participants p
		ON p.conversation_id = c.id AND p.member_id = ?
	LEFT JOIN messages lm ON lm.id = (
		SELECT id FROM messages
		WHERE conversation_id = c.id
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	)
	WHERE 1 = 1
`

func collectSummaries(rows *sql.Rows) ([]*ConversationSummary, error) {
	var summaries []*ConversationSummary
	for rows.Next() {
		var cs ConversationSummary
		var updatedAtStr string
		var lmID, lmSender, lmContent, lmCreatedAt sql.NullString

		if err := rows.Scan(
			&cs.ID,
			&updatedAtStr,
			&lmID,
			&lmSender,
			&lmContent,
			&lmCreatedAt,
			&cs.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}

		var err error
		cs.UpdatedAt, err = parseTime(updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}

		if lmID.Valid {
			createdAt, err := parseTime(lmCreatedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing last message created_at: %w", err)
			}
			cs.LastMessage = &MessageSummary{
				ID:        lmID.String,
				SenderID:  lmSender.String,
				Content:   lmContent.String,
				CreatedAt: createdAt,
			}
		}

		summaries = append(summaries, &cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating summary rows: %w", err)
	}
	return summaries, nil
}

// attachParticipants fills Participants and the Other snapshot for each
// summary with a single query across all the collected conversations.
func (s *SQLiteStore) attachParticipants(ctx context.Context, viewerID string, summaries []*ConversationSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	byID := make(map[string]*ConversationSummary, len(summaries))
	args := make([]any, 0, len(summaries))
	for _, cs := range summaries {
		byID[cs.ID] = cs
		args = append(args, cs.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(summaries)), ",")

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.conversation_id, m.id, m.display_name, m.avatar_url, m.job_title, m.company
		FROM conversation_participants p
		JOIN members m ON m.id = p.member_id
		WHERE p.conversation_id IN (`+placeholders+`)
		ORDER BY p.conversation_id, m.id
	`, args...)
	if err != nil {
		return fmt.Errorf("querying summary participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var convID string
		var snap MemberSnapshot
		var avatarURL, jobTitle, company sql.NullString

		if err := rows.Scan(&convID, &snap.ID, &snap.DisplayName, &avatarURL, &jobTitle, &company); err != nil {
			return fmt.Errorf("scanning summary participant: %w", err)
		}
		snap.AvatarURL = avatarURL.String
		snap.JobTitle = jobTitle.String
		snap.Company = company.String

		cs := byID[convID]
		if cs == nil {
			continue
		}
		cs.Participants = append(cs.Participants, snap.ID)
		if snap.ID != viewerID {
			// Two-party threads get the single counterparty as Other.
			// Group threads end up with the last non-viewer scanned; cleared below.
			other := snap
			cs.Other = &other
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating summary participants: %w", err)
	}

	for _, cs := range summaries {
		if len(cs.Participants) != 2 {
			cs.Other = nil
		}
	}
	return nil
}
