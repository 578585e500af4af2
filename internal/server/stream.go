// ABOUTME: WebSocket stream session running a per-viewer feed and unread counter
// ABOUTME: Speaks the snapshot/feed/badge frame protocol with ping/pong deadlines

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hearthlabs/hearth/internal/auth"
	"github.com/hearthlabs/hearth/internal/feed"
	"github.com/hearthlabs/hearth/internal/localcache"
	"github.com/hearthlabs/hearth/internal/messaging"
	"github.com/hearthlabs/hearth/internal/unread"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Auth is token based; origin checks add nothing for the PWA.
		return true
	},
}

// serverFrame is a message from server to client.
type serverFrame struct {
	Type          string             `json:"type"`
	Conversations []conversationView `json:"conversations,omitempty"`
	State         string             `json:"state,omitempty"`
	Version       uint64             `json:"version,omitempty"`
	Cached        bool               `json:"cached,omitempty"`
	Count         *int               `json:"count,omitempty"`
	Message       string             `json:"message,omitempty"`
}

// clientFrame is a message from client to server.
type clientFrame struct {
	Type            string `json:"type"`
	ConversationID  string `json:"conversation_id,omitempty"`
	Query           string `json:"query,omitempty"`
	Content         string `json:"content,omitempty"`
	ClientMessageID string `json:"client_message_id,omitempty"`
}

func stateString(s feed.State) string {
	switch s {
	case feed.StateLoading:
		return "loading"
	case feed.StateReady:
		return "ready"
	case feed.StateError:
		return "error"
	case feed.StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// sessionBadge delivers badge counts into the session's write pump, keeping
// only the latest when the session is slow.
type sessionBadge struct {
	ch    chan int
	outer unread.Badge
}

func (b *sessionBadge) Notify(viewerID string, count int) {
	if b.outer != nil {
		b.outer.Notify(viewerID, count)
	}
	for {
		select {
		case b.ch <- count:
			return
		default:
			select {
			case <-b.ch:
			default:
			}
		}
	}
}

// session is one live stream connection for a viewer.
type session struct {
	conn      *websocket.Conn
	viewerID  string
	messaging *messaging.Service
	cache     *localcache.Cache
	feed      *feed.Feed
	counter   *unread.Counter
	badge     *sessionBadge
	logger    *slog.Logger

	mu     sync.Mutex
	filter string

	out       chan serverFrame
	refreshCh chan struct{}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	logger := s.logger.With("member_id", id.MemberID)
	badge := &sessionBadge{ch: make(chan int, 1), outer: s.badge}
	sess := &session{
		conn:      conn,
		viewerID:  id.MemberID,
		messaging: s.messaging,
		cache:     s.cache,
		badge:     badge,
		logger:    logger,
		out:       make(chan serverFrame, 16),
		refreshCh: make(chan struct{}, 1),
	}
	sess.feed = feed.New(s.messaging, id.MemberID, logger, feed.WithFetchTimeout(s.cfg.FetchTimeout))
	sess.counter = unread.NewCounter(s.messaging, badge, id.MemberID, logger,
		unread.WithRecomputeDelay(s.cfg.RecomputeDelay))

	sess.run(r.Context())
}

func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.logger.Info("stream opened")
	defer s.logger.Info("stream closed")

	// Frame 0: last persisted snapshot, if fresh, so the client paints
	// before the live list arrives.
	s.sendCachedSnapshot()

	feedCh, feedSub := s.messaging.Subscribe(ctx, s.viewerID)
	counterCh, counterSub := s.messaging.Subscribe(ctx, s.viewerID)
	defer s.messaging.Unsubscribe(s.viewerID, feedSub)
	defer s.messaging.Unsubscribe(s.viewerID, counterSub)

	s.feed.Start(ctx, feedCh)
	s.counter.Start(ctx, counterCh)
	s.counter.Refresh(ctx)

	defer s.teardown()

	count := s.counter.Count()
	s.out <- serverFrame{
		Type:          "snapshot",
		Conversations: toConversationViews(s.feed.Snapshot()),
		State:         stateString(s.feed.State()),
		Version:       s.feed.Version(),
		Count:         &count,
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		s.writePump(ctx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		s.readPump(ctx)
	}()
	wg.Wait()
}

// sendCachedSnapshot writes the persisted snapshot directly; the write pump
// is not running yet.
func (s *session) sendCachedSnapshot() {
	if s.cache == nil {
		return
	}
	list, _, err := s.cache.LoadSnapshot(s.viewerID)
	if err != nil {
		if !errors.Is(err, localcache.ErrNoSnapshot) {
			s.logger.Warn("loading cached snapshot failed", "error", err)
		}
		return
	}
	frame := serverFrame{
		Type:          "snapshot",
		Conversations: toConversationViews(list),
		State:         "loading",
		Cached:        true,
	}
	if count, err := s.cache.LoadCount(s.viewerID); err == nil {
		frame.Count = &count
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(frame); err != nil {
		s.logger.Warn("writing cached snapshot failed", "error", err)
	}
}

func (s *session) teardown() {
	// Persist what the client last saw so the next connect paints warm.
	if s.cache != nil {
		if err := s.cache.SaveSnapshot(s.viewerID, s.feed.Snapshot()); err != nil {
			s.logger.Warn("persisting snapshot failed", "error", err)
		}
		if err := s.cache.SaveCount(s.viewerID, s.counter.Count()); err != nil {
			s.logger.Warn("persisting badge count failed", "error", err)
		}
	}
	s.feed.Close()
	s.counter.Close()
	s.conn.Close()
}

func (s *session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(frame serverFrame) bool {
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteJSON(frame); err != nil {
			s.logger.Debug("write failed", "error", err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-s.out:
			if !write(frame) {
				return
			}
		case <-s.feed.Updates():
			if !write(s.feedFrame()) {
				return
			}
		case <-s.refreshCh:
			if !write(s.feedFrame()) {
				return
			}
		case count := <-s.badge.ch:
			if !write(serverFrame{Type: "badge", Count: &count}) {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// feedFrame snapshots the feed through the session's active filter.
func (s *session) feedFrame() serverFrame {
	s.mu.Lock()
	query := s.filter
	s.mu.Unlock()

	var list []*feed.Conversation
	if query != "" {
		list = s.feed.Filtered(query)
	} else {
		list = s.feed.Snapshot()
	}

	frame := serverFrame{
		Type:          "feed",
		Conversations: toConversationViews(list),
		State:         stateString(s.feed.State()),
		Version:       s.feed.Version(),
	}
	if err := s.feed.Err(); err != nil {
		frame.Message = err.Error()
	}
	return frame
}

func (s *session) readPump(ctx context.Context) {
	s.conn.SetReadLimit(64 << 10)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame clientFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("read failed", "error", err)
			}
			return
		}
		s.handleFrame(ctx, frame)
	}
}

func (s *session) handleFrame(ctx context.Context, frame clientFrame) {
	switch frame.Type {
	case "select":
		s.feed.Select(frame.ConversationID)
		if frame.ConversationID != "" {
			if _, err := s.messaging.MarkConversationRead(ctx, s.viewerID, frame.ConversationID); err != nil {
				s.sendError(err)
			}
		}
		s.signalRefresh()

	case "filter":
		s.mu.Lock()
		s.filter = frame.Query
		s.mu.Unlock()
		s.signalRefresh()

	case "send":
		_, err := s.messaging.SendMessage(ctx, messaging.SendRequest{
			ConversationID:  frame.ConversationID,
			SenderID:        s.viewerID,
			Content:         frame.Content,
			ClientMessageID: frame.ClientMessageID,
		})
		if err != nil {
			s.sendError(err)
		}

	case "read":
		if _, err := s.messaging.MarkConversationRead(ctx, s.viewerID, frame.ConversationID); err != nil {
			s.sendError(err)
		}

	case "refresh":
		s.feed.Retry(ctx)
		s.counter.Refresh(ctx)
		s.signalRefresh()

	default:
		s.sendError(errors.New("unknown frame type"))
	}
}

func (s *session) signalRefresh() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

func (s *session) sendError(err error) {
	select {
	case s.out <- serverFrame{Type: "error", Message: err.Error()}:
	default:
		s.logger.Warn("dropping error frame", "error", err)
	}
}
