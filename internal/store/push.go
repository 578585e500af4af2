// ABOUTME: Web Push subscription persistence for member browsers
// ABOUTME: Subscriptions are upserted by endpoint and pruned when the push service rejects them

package store

import (
	"context"
	"fmt"
	"time"
)

// SavePushSubscription stores a subscription, replacing any existing row for
// the same endpoint (browsers re-register the same endpoint across sessions).
func (s *SQLiteStore) SavePushSubscription(ctx context.Context, sub *PushSubscription) error {
	query := `
		INSERT INTO push_subscriptions (id, member_id, endpoint, p256dh, auth, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			member_id = excluded.member_id,
			p256dh = excluded.p256dh,
			auth = excluded.auth
	`

	_, err := s.db.ExecContext(ctx, query,
		sub.ID,
		sub.MemberID,
		sub.Endpoint,
		sub.P256dh,
		sub.Auth,
		formatTime(sub.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving push subscription: %w", err)
	}

	s.logger.Debug("saved push subscription", "member_id", sub.MemberID)
	return nil
}

// ListPushSubscriptions returns a member's registered push endpoints.
func (s *SQLiteStore) ListPushSubscriptions(ctx context.Context, memberID string) ([]*PushSubscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, member_id, endpoint, p256dh, auth, created_at
		FROM push_subscriptions
		WHERE member_id = ?
		ORDER BY created_at
	`, memberID)
	if err != nil {
		return nil, fmt.Errorf("listing push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*PushSubscription
	for rows.Next() {
		var sub PushSubscription
		var createdAtStr string

		if err := rows.Scan(&sub.ID, &sub.MemberID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning push subscription row: %w", err)
		}

		sub.CreatedAt, err = parseTime(createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		subs = append(subs, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating push subscription rows: %w", err)
	}
	return subs, nil
}

// DeletePushSubscription removes a subscription by endpoint.
// Deleting an unknown endpoint is not an error.
func (s *SQLiteStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	if err != nil {
		return fmt.Errorf("deleting push subscription: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		s.logger.Debug("deleted push subscription", "endpoint", endpoint)
	}
	return nil
}

// MarkTourStep records that a member completed a tour step.
// Re-completing a step keeps the original completion time.
func (s *SQLiteStore) MarkTourStep(ctx context.Context, memberID, stepID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tour_progress (member_id, step_id, completed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(member_id, step_id) DO NOTHING
	`, memberID, stepID, formatTime(at))
	if err != nil {
		return fmt.Errorf("marking tour step: %w", err)
	}

	s.logger.Debug("marked tour step", "member_id", memberID, "step_id", stepID)
	return nil
}

// TourProgress returns the member's completed steps keyed by step id.
func (s *SQLiteStore) TourProgress(ctx context.Context, memberID string) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT step_id, completed_at
		FROM tour_progress
		WHERE member_id = ?
	`, memberID)
	if err != nil {
		return nil, fmt.Errorf("querying tour progress: %w", err)
	}
	defer rows.Close()

	progress := make(map[string]time.Time)
	for rows.Next() {
		var stepID, completedAtStr string
		if err := rows.Scan(&stepID, &completedAtStr); err != nil {
			return nil, fmt.Errorf("scanning tour progress row: %w", err)
		}
		completedAt, err := parseTime(completedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing completed_at: %w", err)
		}
		progress[stepID] = completedAt
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tour progress rows: %w", err)
	}
	return progress, nil
}

// ResetTourProgress clears a member's tour progress.
func (s *SQLiteStore) ResetTourProgress(ctx context.Context, memberID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tour_progress WHERE member_id = ?`, memberID)
	if err != nil {
		return fmt.Errorf("resetting tour progress: %w", err)
	}

	s.logger.Debug("reset tour progress", "member_id", memberID)
	return nil
}
