// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides member/conversation persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeFormat is RFC 3339 with a fixed-width fractional second so that
// lexicographic comparison of stored TEXT timestamps matches chronological
// order (time.RFC3339Nano trims trailing zeros and breaks that).
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS members (
			id TEXT PRIMARY KEY,
			handle TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			avatar_url TEXT,
			job_title TEXT,
			company TEXT,
			bio TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_members_handle ON members(handle);

		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			pair_key TEXT UNIQUE,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS conversation_participants (
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			member_id TEXT NOT NULL REFERENCES members(id),
			last_read_at TEXT NOT NULL,
			joined_at TEXT NOT NULL,

			PRIMARY KEY (conversation_id, member_id)
		);

		CREATE INDEX IF NOT EXISTS idx_participants_member
			ON conversation_participants(member_id);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			sender_id TEXT NOT NULL,
			content TEXT NOT NULL,
			read INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at);

		CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id);

		CREATE TABLE IF NOT EXISTS referrals (
			id TEXT PRIMARY KEY,
			from_member_id TEXT NOT NULL REFERENCES members(id),
			to_member_id TEXT NOT NULL REFERENCES members(id),
			business_name TEXT NOT NULL,
			contact_info TEXT,
			note TEXT,
			status TEXT NOT NULL,
			value_cents INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (status IN ('open', 'accepted', 'declined', 'closed_won', 'closed_lost'))
		);

		CREATE INDEX IF NOT EXISTS idx_referrals_from ON referrals(from_member_id);
		CREATE INDEX IF NOT EXISTS idx_referrals_to ON referrals(to_member_id);
		CREATE INDEX IF NOT EXISTS idx_referrals_status ON referrals(status);

		CREATE TABLE IF NOT EXISTS push_subscriptions (
			id TEXT PRIMARY KEY,
			member_id TEXT NOT NULL REFERENCES members(id),
			endpoint TEXT NOT NULL UNIQUE,
			p256dh TEXT NOT NULL,
			auth TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_push_member ON push_subscriptions(member_id);

		CREATE TABLE IF NOT EXISTS tour_progress (
			member_id TEXT NOT NULL REFERENCES members(id),
			step_id TEXT NOT NULL,
			completed_at TEXT NOT NULL,

			PRIMARY KEY (member_id, step_id)
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		check  string // Query to check if migration is needed
		apply  string // Query to apply the migration
		column string // Column name for logging
	}{
		{
			table:  "members",
			check:  `SELECT 1 FROM pragma_table_info('members') WHERE name = 'bio'`,
			apply:  `ALTER TABLE members ADD COLUMN bio TEXT`,
			column: "bio",
		},
		{
			table:  "referrals",
			check:  `SELECT 1 FROM pragma_table_info('referrals') WHERE name = 'value_cents'`,
			apply:  `ALTER TABLE referrals ADD COLUMN value_cents INTEGER NOT NULL DEFAULT 0`,
			column: "value_cents",
		},
		{
			table:  "messages",
			check:  `SELECT 1 FROM pragma_table_info('messages') WHERE name = 'read'`,
			apply:  `ALTER TABLE messages ADD COLUMN read INTEGER NOT NULL DEFAULT 0`,
			column: "read",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			// Column already exists, skip
			continue
		}
		// Column doesn't exist, apply migration
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CreateMember creates a new member.
// Returns ErrDuplicateMember if the handle is already taken.
func (s *SQLiteStore) CreateMember(ctx context.Context, m *Member) error {
	query := `
		INSERT INTO members (id, handle, display_name, avatar_url, job_title, company, bio, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		m.ID,
		m.Handle,
		m.DisplayName,
		nullString(m.AvatarURL),
		nullString(m.JobTitle),
		nullString(m.Company),
		nullString(m.Bio),
		formatTime(m.CreatedAt),
		formatTime(m.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateMember
		}
		return fmt.Errorf("inserting member: %w", err)
	}

	s.logger.Debug("created member", "id", m.ID, "handle", m.Handle)
	return nil
}

// scanMember scans a member row from either a Row or Rows receiver.
func scanMember(scan func(dest ...any) error) (*Member, error) {
	var m Member
	var avatarURL, jobTitle, company, bio sql.NullString
	var createdAtStr, updatedAtStr string

	if err := scan(
		&m.ID,
		&m.Handle,
		&m.DisplayName,
		&avatarURL,
		&jobTitle,
		&company,
		&bio,
		&createdAtStr,
		&updatedAtStr,
	); err != nil {
		return nil, err
	}

	m.AvatarURL = avatarURL.String
	m.JobTitle = jobTitle.String
	m.Company = company.String
	m.Bio = bio.String

	var err error
	m.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	m.UpdatedAt, err = parseTime(updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &m, nil
}

const memberColumns = `id, handle, display_name, avatar_url, job_title, company, bio, created_at, updated_at`

// GetMember retrieves a member by ID.
// Returns ErrNotFound if the member doesn't exist.
func (s *SQLiteStore) GetMember(ctx context.Context, id string) (*Member, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = ?`, id)

	m, err := scanMember(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying member: %w", err)
	}
	return m, nil
}

// GetMemberByHandle retrieves a member by handle.
// Returns ErrNotFound if no member has the given handle.
func (s *SQLiteStore) GetMemberByHandle(ctx context.Context, handle string) (*Member, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE handle = ?`, handle)

	m, err := scanMember(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying member by handle: %w", err)
	}
	return m, nil
}

// UpdateMember updates a member's profile fields.
// Returns ErrNotFound if the member doesn't exist.
func (s *SQLiteStore) UpdateMember(ctx context.Context, m *Member) error {
	query := `
		UPDATE members
		SET display_name = ?, avatar_url = ?, job_title = ?, company = ?, bio = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		m.DisplayName,
		nullString(m.AvatarURL),
		nullString(m.JobTitle),
		nullString(m.Company),
		nullString(m.Bio),
		formatTime(m.UpdatedAt),
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("updating member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated member", "id", m.ID)
	return nil
}

// SearchMembers finds members whose display name, handle, or company contains
// the query, case-insensitively. Results are ordered by display name.
func (s *SQLiteStore) SearchMembers(ctx context.Context, query string, limit int) ([]*Member, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM members
		WHERE display_name LIKE ? OR handle LIKE ? OR company LIKE ?
		ORDER BY display_name
		LIMIT ?
	`, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("searching members: %w", err)
	}
	defer rows.Close()

	return collectMembers(rows)
}

// ListMembers returns members ordered by display name.
func (s *SQLiteStore) ListMembers(ctx context.Context, limit int) ([]*Member, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM members
		ORDER BY display_name
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	defer rows.Close()

	return collectMembers(rows)
}

func collectMembers(rows *sql.Rows) ([]*Member, error) {
	var members []*Member
	for rows.Next() {
		m, err := scanMember(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning member row: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating member rows: %w", err)
	}
	return members, nil
}

// CreateConversation creates a conversation and its participant rows in one
// transaction. Each participant's read watermark starts at the conversation's
// creation time. Returns ErrDuplicateConversation if the pair key is taken.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation, participantIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	createdAt := formatTime(conv.CreatedAt)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, pair_key, created_at) VALUES (?, ?, ?)`,
		conv.ID, nullString(conv.PairKey), createdAt)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateConversation
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	for _, memberID := range participantIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, member_id, last_read_at, joined_at)
			VALUES (?, ?, ?, ?)
		`, conv.ID, memberID, createdAt, createdAt)
		if err != nil {
			return fmt.Errorf("inserting participant %s: %w", memberID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "participants", len(participantIDs))
	return nil
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, pair_key, created_at FROM conversations WHERE id = ?`, id)
	return scanConversation(row)
}

// GetConversationByPairKey retrieves a two-party conversation by its pair key.
// Returns ErrNotFound if no conversation exists for the pair.
func (s *SQLiteStore) GetConversationByPairKey(ctx context.Context, pairKey string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, pair_key, created_at FROM conversations WHERE pair_key = ?`, pairKey)
	return scanConversation(row)
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	var conv Conversation
	var pairKey sql.NullString
	var createdAtStr string

	err := row.Scan(&conv.ID, &pairKey, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	conv.PairKey = pairKey.String
	conv.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &conv, nil
}

// IsParticipant reports whether the member belongs to the conversation.
func (s *SQLiteStore) IsParticipant(ctx context.Context, memberID, conversationID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM conversation_participants
		WHERE conversation_id = ? AND member_id = ?
	`, conversationID, memberID).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying participant: %w", err)
	}
	return true, nil
}

// Participants returns the member ids in a conversation.
func (s *SQLiteStore) Participants(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT member_id FROM conversation_participants
		WHERE conversation_id = ?
		ORDER BY member_id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning participant row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating participant rows: %w", err)
	}
	return ids, nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
