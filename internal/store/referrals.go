// ABOUTME: Business referral persistence and per-member aggregation
// ABOUTME: Referrals move open -> accepted -> closed_won/closed_lost, or are declined

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const referralColumns = `id, from_member_id, to_member_id, business_name, contact_info, note, status, value_cents, created_at, updated_at`

// CreateReferral persists a new referral.
func (s *SQLiteStore) CreateReferral(ctx context.Context, r *Referral) error {
	query := `
		INSERT INTO referrals (` + referralColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		r.ID,
		r.FromMemberID,
		r.ToMemberID,
		r.BusinessName,
		nullString(r.ContactInfo),
		nullString(r.Note),
		string(r.Status),
		r.ValueCents,
		formatTime(r.CreatedAt),
		formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting referral: %w", err)
	}

	s.logger.Debug("created referral", "id", r.ID, "from", r.FromMemberID, "to", r.ToMemberID)
	return nil
}

func scanReferral(scan func(dest ...any) error) (*Referral, error) {
	var r Referral
	var contactInfo, note sql.NullString
	var status, createdAtStr, updatedAtStr string

	if err := scan(
		&r.ID,
		&r.FromMemberID,
		&r.ToMemberID,
		&r.BusinessName,
		&contactInfo,
		&note,
		&status,
		&r.ValueCents,
		&createdAtStr,
		&updatedAtStr,
	); err != nil {
		return nil, err
	}

	r.ContactInfo = contactInfo.String
	r.Note = note.String
	r.Status = ReferralStatus(status)

	var err error
	r.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	r.UpdatedAt, err = parseTime(updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &r, nil
}

// GetReferral retrieves a referral by ID.
// Returns ErrNotFound if the referral doesn't exist.
func (s *SQLiteStore) GetReferral(ctx context.Context, id string) (*Referral, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+referralColumns+` FROM referrals WHERE id = ?`, id)

	r, err := scanReferral(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying referral: %w", err)
	}
	return r, nil
}

// UpdateReferralStatus sets a referral's status.
// Returns ErrNotFound if the referral doesn't exist. Transition legality is
// the ledger service's responsibility; the store only enforces the status
// domain via the schema CHECK.
func (s *SQLiteStore) UpdateReferralStatus(ctx context.Context, id string, status ReferralStatus, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE referrals
		SET status = ?, updated_at = ?
		WHERE id = ?
	`, string(status), formatTime(at), id)
	if err != nil {
		return fmt.Errorf("updating referral status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated referral status", "id", id, "status", status)
	return nil
}

// ListReferralsForMember returns referrals the member sent or received,
// newest first.
func (s *SQLiteStore) ListReferralsForMember(ctx context.Context, memberID string, limit int) ([]*Referral, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+referralColumns+`
		FROM referrals
		WHERE from_member_id = ? OR to_member_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, memberID, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing referrals: %w", err)
	}
	defer rows.Close()

	var referrals []*Referral
	for rows.Next() {
		r, err := scanReferral(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning referral row: %w", err)
		}
		referrals = append(referrals, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating referral rows: %w", err)
	}
	return referrals, nil
}

// ReferralStats aggregates a member's referral activity: sent/received
// counts, per-status counts, and the total closed-won value.
func (s *SQLiteStore) ReferralStats(ctx context.Context, memberID string) (*ReferralStats, error) {
	stats := &ReferralStats{
		ByStatus: make(map[ReferralStatus]int),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN from_member_id = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN to_member_id = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'closed_won' THEN value_cents ELSE 0 END), 0)
		FROM referrals
		WHERE from_member_id = ? OR to_member_id = ?
	`, memberID, memberID, memberID, memberID).Scan(
		&stats.Sent,
		&stats.Received,
		&stats.ClosedWonValueCents,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating referral totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM referrals
		WHERE from_member_id = ? OR to_member_id = ?
		GROUP BY status
	`, memberID, memberID)
	if err != nil {
		return nil, fmt.Errorf("aggregating referral statuses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning status row: %w", err)
		}
		stats.ByStatus[ReferralStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status rows: %w", err)
	}

	return stats, nil
}
