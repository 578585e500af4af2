// ABOUTME: HTTP server wiring the REST API, stream endpoint, and middleware
// ABOUTME: Owns the mux, route registration, and graceful shutdown

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hearthlabs/hearth/internal/auth"
	"github.com/hearthlabs/hearth/internal/ledger"
	"github.com/hearthlabs/hearth/internal/localcache"
	"github.com/hearthlabs/hearth/internal/members"
	"github.com/hearthlabs/hearth/internal/messaging"
	"github.com/hearthlabs/hearth/internal/store"
	"github.com/hearthlabs/hearth/internal/tour"
	"github.com/hearthlabs/hearth/internal/unread"
)

// Config holds the server's tunables.
type Config struct {
	Addr           string
	AdminToken     string
	FetchTimeout   time.Duration
	RecomputeDelay time.Duration
}

// Server serves the hearth REST API and the websocket stream.
type Server struct {
	cfg       Config
	members   *members.Service
	messaging *messaging.Service
	ledger    *ledger.Service
	tour      *tour.Service
	store     store.Store
	cache     *localcache.Cache
	verifier  auth.TokenVerifier
	badge     unread.Badge
	logger    *slog.Logger

	httpSrv *http.Server
}

// Deps bundles the services the server fronts.
type Deps struct {
	Members   *members.Service
	Messaging *messaging.Service
	Ledger    *ledger.Service
	Tour      *tour.Service
	Store     store.Store
	Cache     *localcache.Cache
	Verifier  auth.TokenVerifier
	Badge     unread.Badge
}

// New creates the server. Pass nil logger for default.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		members:   deps.Members,
		messaging: deps.Messaging,
		ledger:    deps.Ledger,
		tour:      deps.Tour,
		store:     deps.Store,
		cache:     deps.Cache,
		verifier:  deps.Verifier,
		badge:     deps.Badge,
		logger:    logger.With("component", "server"),
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the full route tree with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Unauthenticated probes
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	// Member API
	authed := auth.Middleware(s.store, s.verifier)
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authed(h))
	}

	handle("GET /v1/me", s.handleMe)
	handle("PUT /v1/me", s.handleUpdateMe)
	handle("GET /v1/members", s.handleListMembers)
	handle("GET /v1/members/{id}", s.handleGetMember)

	handle("GET /v1/conversations", s.handleListConversations)
	handle("POST /v1/conversations", s.handleCreateConversation)
	handle("GET /v1/conversations/{id}", s.handleGetConversation)
	handle("GET /v1/conversations/{id}/messages", s.handleMessages)
	handle("POST /v1/conversations/{id}/messages", s.handleSendMessage)
	handle("POST /v1/conversations/{id}/read", s.handleMarkRead)

	handle("POST /v1/referrals", s.handleCreateReferral)
	handle("GET /v1/referrals", s.handleListReferrals)
	handle("GET /v1/referrals/{id}", s.handleGetReferral)
	handle("POST /v1/referrals/{id}/status", s.handleReferralStatus)
	handle("GET /v1/referrals/stats", s.handleReferralStats)

	handle("GET /v1/tour", s.handleTourSteps)
	handle("GET /v1/tour/next", s.handleTourNext)
	handle("POST /v1/tour/{step}/complete", s.handleTourComplete)
	handle("POST /v1/tour/reset", s.handleTourReset)

	handle("POST /v1/push/subscriptions", s.handlePushSubscribe)
	handle("DELETE /v1/push/subscriptions", s.handlePushUnsubscribe)

	handle("GET /v1/stream", s.handleStream)

	// Operator API
	admin := auth.RequireAdminToken(s.cfg.AdminToken)
	mux.Handle("GET /admin/stats", admin(http.HandlerFunc(s.handleAdminStats)))
	mux.Handle("GET /admin/members", admin(http.HandlerFunc(s.handleAdminListMembers)))
	mux.Handle("POST /admin/members", admin(http.HandlerFunc(s.handleAdminCreateMember)))
	mux.Handle("POST /admin/tokens", admin(http.HandlerFunc(s.handleAdminIssueToken)))

	return withRequestID(withLogging(s.logger, mux))
}

// Start serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// Ready once the store answers a cheap query.
	if _, err := s.store.ListMembers(r.Context(), 1); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
