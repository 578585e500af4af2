// ABOUTME: Referral ledger service enforcing the referral lifecycle
// ABOUTME: Open referrals move to accepted/declined; accepted ones close won or lost

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hearthlabs/hearth/internal/render"
	"github.com/hearthlabs/hearth/internal/store"
)

// Service errors
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrSelfReferral      = errors.New("cannot refer business to yourself")
	ErrEmptyBusiness     = errors.New("business name is required")
	ErrNotRecipient      = errors.New("only the recipient can update a referral")
)

// transitions maps each status to the statuses it may move to. Terminal
// statuses have no entry.
var transitions = map[store.ReferralStatus][]store.ReferralStatus{
	store.ReferralStatusOpen:     {store.ReferralStatusAccepted, store.ReferralStatusDeclined},
	store.ReferralStatusAccepted: {store.ReferralStatusClosedWon, store.ReferralStatusClosedLost},
}

// ReferralStore defines what the ledger needs from storage.
type ReferralStore interface {
	GetMember(ctx context.Context, id string) (*store.Member, error)
	CreateReferral(ctx context.Context, r *store.Referral) error
	GetReferral(ctx context.Context, id string) (*store.Referral, error)
	UpdateReferralStatus(ctx context.Context, id string, status store.ReferralStatus, at time.Time) error
	ListReferralsForMember(ctx context.Context, memberID string, limit int) ([]*store.Referral, error)
	ReferralStats(ctx context.Context, memberID string) (*store.ReferralStats, error)
}

// Service records business referrals between members and walks them through
// the open -> accepted/declined -> closed lifecycle.
type Service struct {
	store  ReferralStore
	logger *slog.Logger
	now    func() time.Time
}

// New creates a referral ledger service. Pass nil logger for default.
func New(st ReferralStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		logger: logger.With("component", "ledger"),
		now:    time.Now,
	}
}

// CreateRequest holds the fields for a new referral.
type CreateRequest struct {
	FromMemberID string
	ToMemberID   string
	BusinessName string
	ContactInfo  string
	Note         string
	ValueCents   int64
}

// Create records a new referral in the open status. Both members must exist
// and differ.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*store.Referral, error) {
	if req.FromMemberID == req.ToMemberID {
		return nil, ErrSelfReferral
	}
	business := render.Sanitize(req.BusinessName)
	if business == "" {
		return nil, ErrEmptyBusiness
	}

	if _, err := s.store.GetMember(ctx, req.FromMemberID); err != nil {
		return nil, fmt.Errorf("looking up sender: %w", err)
	}
	if _, err := s.store.GetMember(ctx, req.ToMemberID); err != nil {
		return nil, fmt.Errorf("looking up recipient: %w", err)
	}

	now := s.now()
	r := &store.Referral{
		ID:           uuid.New().String(),
		FromMemberID: req.FromMemberID,
		ToMemberID:   req.ToMemberID,
		BusinessName: business,
		ContactInfo:  render.Sanitize(req.ContactInfo),
		Note:         render.Sanitize(req.Note),
		Status:       store.ReferralStatusOpen,
		ValueCents:   req.ValueCents,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateReferral(ctx, r); err != nil {
		return nil, fmt.Errorf("creating referral: %w", err)
	}

	s.logger.Info("referral created",
		"referral_id", r.ID,
		"from", r.FromMemberID,
		"to", r.ToMemberID)
	return r, nil
}

// UpdateStatus moves a referral to a new status on behalf of actorID. Only
// the recipient may act, and only along a valid lifecycle edge.
func (s *Service) UpdateStatus(ctx context.Context, actorID, referralID string, status store.ReferralStatus) (*store.Referral, error) {
	r, err := s.store.GetReferral(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if r.ToMemberID != actorID {
		return nil, ErrNotRecipient
	}
	if !validTransition(r.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, status)
	}

	now := s.now()
	if err := s.store.UpdateReferralStatus(ctx, referralID, status, now); err != nil {
		return nil, fmt.Errorf("updating referral status: %w", err)
	}

	r.Status = status
	r.UpdatedAt = now
	s.logger.Info("referral status changed",
		"referral_id", r.ID,
		"status", status)
	return r, nil
}

// Get returns a single referral, visible only to its two parties.
func (s *Service) Get(ctx context.Context, actorID, referralID string) (*store.Referral, error) {
	r, err := s.store.GetReferral(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if r.FromMemberID != actorID && r.ToMemberID != actorID {
		return nil, store.ErrNotFound
	}
	return r, nil
}

// ListForMember returns referrals the member sent or received, newest first.
func (s *Service) ListForMember(ctx context.Context, memberID string, limit int) ([]*store.Referral, error) {
	return s.store.ListReferralsForMember(ctx, memberID, limit)
}

// Stats aggregates a member's referral activity.
func (s *Service) Stats(ctx context.Context, memberID string) (*store.ReferralStats, error) {
	return s.store.ReferralStats(ctx, memberID)
}

func validTransition(from, to store.ReferralStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
