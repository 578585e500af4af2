// ABOUTME: Member profile service with a TTL cache fronting the store
// ABOUTME: Hot profile reads (feed snapshots, directory) skip storage; updates invalidate

package members

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/c-pro/geche"
	"github.com/google/uuid"

	"github.com/hearthlabs/hearth/internal/render"
	"github.com/hearthlabs/hearth/internal/store"
)

// Service errors
var (
	ErrInvalidHandle = errors.New("invalid handle")
	ErrEmptyName     = errors.New("display name is required")
)

// profileCacheTTL bounds staleness of cached profiles.
const profileCacheTTL = 5 * time.Minute

// handleRegex allows alphanumerics, dot, dash, and underscore.
var handleRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]{2,32}$`)

// MemberStore defines what the service needs from storage.
type MemberStore interface {
	CreateMember(ctx context.Context, m *store.Member) error
	GetMember(ctx context.Context, id string) (*store.Member, error)
	GetMemberByHandle(ctx context.Context, handle string) (*store.Member, error)
	UpdateMember(ctx context.Context, m *store.Member) error
	SearchMembers(ctx context.Context, query string, limit int) ([]*store.Member, error)
	ListMembers(ctx context.Context, limit int) ([]*store.Member, error)
}

// Service manages member profiles. Reads go through a TTL cache keyed by
// member id; writes invalidate.
type Service struct {
	store  MemberStore
	cache  geche.Geche[string, *store.Member]
	logger *slog.Logger
	now    func() time.Time
}

// New creates a member service. The context bounds the cache's background
// cleanup. Pass nil logger for default.
func New(ctx context.Context, st MemberStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		cache:  geche.NewMapTTLCache[string, *store.Member](ctx, profileCacheTTL, time.Minute),
		logger: logger.With("component", "members"),
		now:    time.Now,
	}
}

// RegisterRequest holds the fields for a new member profile.
type RegisterRequest struct {
	Handle      string
	DisplayName string
	AvatarURL   string
	JobTitle    string
	Company     string
	Bio         string
}

// Register creates a member profile. Handles are unique; a taken handle
// yields store.ErrDuplicateMember.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*store.Member, error) {
	if !handleRegex.MatchString(req.Handle) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHandle, req.Handle)
	}
	displayName := render.Sanitize(req.DisplayName)
	if displayName == "" {
		return nil, ErrEmptyName
	}

	now := s.now()
	m := &store.Member{
		ID:          uuid.New().String(),
		Handle:      req.Handle,
		DisplayName: displayName,
		AvatarURL:   req.AvatarURL,
		JobTitle:    render.Sanitize(req.JobTitle),
		Company:     render.Sanitize(req.Company),
		Bio:         render.Sanitize(req.Bio),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateMember(ctx, m); err != nil {
		return nil, fmt.Errorf("creating member: %w", err)
	}

	s.logger.Info("member registered", "member_id", m.ID, "handle", m.Handle)
	return m, nil
}

// Profile returns a member by id, served from cache when fresh.
func (s *Service) Profile(ctx context.Context, id string) (*store.Member, error) {
	if cached, err := s.cache.Get(id); err == nil {
		return cached, nil
	}

	m, err := s.store.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(id, m)
	return m, nil
}

// ProfileByHandle returns a member by handle. Always hits storage; the cache
// is keyed by id.
func (s *Service) ProfileByHandle(ctx context.Context, handle string) (*store.Member, error) {
	m, err := s.store.GetMemberByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	s.cache.Set(m.ID, m)
	return m, nil
}

// UpdateRequest holds the mutable profile fields. Handle is immutable.
type UpdateRequest struct {
	DisplayName string
	AvatarURL   string
	JobTitle    string
	Company     string
	Bio         string
}

// UpdateProfile replaces a member's mutable fields and invalidates the cache.
func (s *Service) UpdateProfile(ctx context.Context, id string, req UpdateRequest) (*store.Member, error) {
	displayName := render.Sanitize(req.DisplayName)
	if displayName == "" {
		return nil, ErrEmptyName
	}

	existing, err := s.store.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.DisplayName = displayName
	existing.AvatarURL = req.AvatarURL
	existing.JobTitle = render.Sanitize(req.JobTitle)
	existing.Company = render.Sanitize(req.Company)
	existing.Bio = render.Sanitize(req.Bio)
	existing.UpdatedAt = s.now()

	if err := s.store.UpdateMember(ctx, existing); err != nil {
		return nil, fmt.Errorf("updating member: %w", err)
	}

	_ = s.cache.Del(id)
	s.logger.Debug("profile updated", "member_id", id)
	return existing, nil
}

// Search finds members by display name, handle, or company substring.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*store.Member, error) {
	return s.store.SearchMembers(ctx, query, limit)
}

// List returns the member directory ordered by display name.
func (s *Service) List(ctx context.Context, limit int) ([]*store.Member, error) {
	return s.store.ListMembers(ctx, limit)
}
