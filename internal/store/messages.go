// ABOUTME: Message persistence, cursor pagination, and read-watermark accounting
// ABOUTME: Unread counts are derived from each participant's last_read_at watermark

package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

// InsertMessage persists a message.
// Returns ErrDuplicateMessage if the message id is already recorded.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, sender_id, content, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.Content,
		boolToInt(msg.Read),
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateMessage
		}
		return fmt.Errorf("inserting message: %w", err)
	}

	s.logger.Debug("inserted message", "id", msg.ID, "conversation_id", msg.ConversationID)
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetMessage retrieves a single message by ID.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, content, read, created_at
		FROM messages
		WHERE id = ?
	`, id)

	var msg Message
	var read int
	var createdAtStr string

	err := row.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &read, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}

	msg.Read = read != 0
	msg.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &msg, nil
}

// encodeCursor creates an opaque cursor string from a timestamp and message ID.
// Format is base64(timestamp|message_id)
func encodeCursor(ts time.Time, id string) string {
	data := fmt.Sprintf("%s|%s", formatTime(ts), id)
	return base64.StdEncoding.EncodeToString([]byte(data))
}

// decodeCursor parses an opaque cursor string into a timestamp and message ID.
// Returns an error if the cursor is invalid.
func decodeCursor(cursor string) (time.Time, string, error) {
	decoded, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid cursor encoding: %w", err)
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", fmt.Errorf("invalid cursor format: expected timestamp|message_id")
	}

	ts, err := parseTime(parts[0])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid cursor timestamp: %w", err)
	}

	return ts, parts[1], nil
}

// Messages retrieves messages for a conversation with pagination support.
// Messages are returned in chronological order (oldest first).
func (s *SQLiteStore) Messages(ctx context.Context, p MessagesParams) (*MessagesResult, error) {
	if p.ConversationID == "" {
		return nil, errors.New("conversation_id required")
	}

	// Apply default and cap limit
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 500 {
		p.Limit = 500
	}

	// Parse cursor if provided
	var cursorTS time.Time
	var cursorID string
	if p.Cursor != "" {
		var err error
		cursorTS, cursorID, err = decodeCursor(p.Cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
	}

	var args []any
	query := `
		SELECT id, conversation_id, sender_id, content, read, created_at
		FROM messages
		WHERE conversation_id = ?
	`
	args = append(args, p.ConversationID)

	if p.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, formatTime(*p.Since))
	}

	if p.Until != nil {
		query += ` AND created_at <= ?`
		args = append(args, formatTime(*p.Until))
	}

	if p.Cursor != "" {
		query += ` AND (created_at > ? OR (created_at = ? AND id > ?))`
		args = append(args, formatTime(cursorTS), formatTime(cursorTS), cursorID)
	}

	// Order by timestamp, then id for deterministic pagination
	query += ` ORDER BY created_at ASC, id ASC`

	// Fetch limit+1 to detect if there are more results
	query += ` LIMIT ?`
	args = append(args, p.Limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var read int
		var createdAtStr string

		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &read, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.Read = read != 0
		msg.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}

	hasMore := len(messages) > p.Limit
	if hasMore {
		messages = messages[:p.Limit]
	}

	result := &MessagesResult{
		Messages: messages,
		HasMore:  hasMore,
	}

	if hasMore && len(messages) > 0 {
		last := messages[len(messages)-1]
		result.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}

	return result, nil
}

// MarkConversationRead advances the viewer's read watermark to the given time
// and flips the read flag on the other participants' messages. Returns the
// number of messages newly marked read.
// Returns ErrNotFound if the viewer is not a participant.
func (s *SQLiteStore) MarkConversationRead(ctx context.Context, viewerID, conversationID string, at time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE conversation_participants
		SET last_read_at = ?
		WHERE conversation_id = ? AND member_id = ?
	`, formatTime(at), conversationID, viewerID)
	if err != nil {
		return 0, fmt.Errorf("advancing read watermark: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return 0, ErrNotFound
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE messages
		SET read = 1
		WHERE conversation_id = ? AND sender_id != ? AND read = 0 AND created_at <= ?
	`, conversationID, viewerID, formatTime(at))
	if err != nil {
		return 0, fmt.Errorf("flipping read flags: %w", err)
	}

	flipped, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing read marks: %w", err)
	}

	s.logger.Debug("marked conversation read",
		"conversation_id", conversationID,
		"viewer_id", viewerID,
		"flipped", flipped,
	)
	return int(flipped), nil
}

// TotalUnread returns the viewer's unread message count across all their
// conversations, derived from read watermarks.
func (s *SQLiteStore) TotalUnread(ctx context.Context, viewerID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversation_participants p
			ON p.conversation_id = m.conversation_id AND p.member_id = ?
		WHERE m.sender_id != ? AND m.created_at > p.last_read_at
	`, viewerID, viewerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unread messages: %w", err)
	}
	return count, nil
}

// ConversationUnread returns the viewer's unread message count for a single
// conversation. Returns 0 if the viewer is not a participant.
func (s *SQLiteStore) ConversationUnread(ctx context.Context, viewerID, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN conversation_participants p
			ON p.conversation_id = m.conversation_id AND p.member_id = ?
		WHERE m.conversation_id = ? AND m.sender_id != ? AND m.created_at > p.last_read_at
	`, viewerID, conversationID, viewerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting conversation unread: %w", err)
	}
	return count, nil
}
