// ABOUTME: REST handlers for members, conversations, referrals, tour, and push
// ABOUTME: All handlers run behind the auth middleware and use the viewer identity

package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hearthlabs/hearth/internal/auth"
	"github.com/hearthlabs/hearth/internal/feed"
	"github.com/hearthlabs/hearth/internal/ledger"
	"github.com/hearthlabs/hearth/internal/members"
	"github.com/hearthlabs/hearth/internal/messaging"
	"github.com/hearthlabs/hearth/internal/store"
	"github.com/hearthlabs/hearth/internal/tour"
)

// memberView is the public shape of a member profile.
type memberView struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	JobTitle    string `json:"job_title,omitempty"`
	Company     string `json:"company,omitempty"`
	Bio         string `json:"bio,omitempty"`
}

func toMemberView(m *store.Member) memberView {
	return memberView{
		ID:          m.ID,
		Handle:      m.Handle,
		DisplayName: m.DisplayName,
		AvatarURL:   m.AvatarURL,
		JobTitle:    m.JobTitle,
		Company:     m.Company,
		Bio:         m.Bio,
	}
}

// conversationView is the wire shape of a feed conversation.
type conversationView struct {
	ID           string           `json:"id"`
	Participants []string         `json:"participants"`
	Other        *participantView `json:"other,omitempty"`
	LastMessage  *lastMessageView `json:"last_message,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
	UnreadCount  int              `json:"unread_count"`
}

type participantView struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	JobTitle    string `json:"job_title,omitempty"`
	Company     string `json:"company,omitempty"`
}

type lastMessageView struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"sender_id"`
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"created_at"`
}

func toConversationView(c *feed.Conversation) conversationView {
	v := conversationView{
		ID:           c.ID,
		Participants: c.Participants,
		UpdatedAt:    c.UpdatedAt,
		UnreadCount:  c.UnreadCount,
	}
	if c.Other != nil {
		v.Other = &participantView{
			ID:          c.Other.ID,
			DisplayName: c.Other.DisplayName,
			AvatarURL:   c.Other.AvatarURL,
			JobTitle:    c.Other.JobTitle,
			Company:     c.Other.Company,
		}
	}
	if c.LastMessage != nil {
		v.LastMessage = &lastMessageView{
			ID:        c.LastMessage.ID,
			SenderID:  c.LastMessage.SenderID,
			Preview:   c.LastMessage.Content,
			CreatedAt: c.LastMessage.CreatedAt,
		}
	}
	return v
}

func toConversationViews(list []*feed.Conversation) []conversationView {
	views := make([]conversationView, 0, len(list))
	for _, c := range list {
		views = append(views, toConversationView(c))
	}
	return views
}

// Members

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	m, err := s.members.Profile(r.Context(), id.MemberID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberView(m))
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	var req struct {
		DisplayName string `json:"display_name"`
		AvatarURL   string `json:"avatar_url"`
		JobTitle    string `json:"job_title"`
		Company     string `json:"company"`
		Bio         string `json:"bio"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	m, err := s.members.UpdateProfile(r.Context(), id.MemberID, members.UpdateRequest{
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		JobTitle:    req.JobTitle,
		Company:     req.Company,
		Bio:         req.Bio,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberView(m))
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	var (
		list []*store.Member
		err  error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		list, err = s.members.Search(r.Context(), q, limit)
	} else {
		list, err = s.members.List(r.Context(), limit)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]memberView, 0, len(list))
	for _, m := range list {
		views = append(views, toMemberView(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": views})
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	m, err := s.members.Profile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberView(m))
}

// Conversations

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	list, err := s.messaging.UserConversations(r.Context(), id.MemberID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": toConversationViews(list)})
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	var req struct {
		MemberID string `json:"member_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	conv, err := s.messaging.GetOrCreateConversation(r.Context(), id.MemberID, req.MemberID)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := s.messaging.ConversationByID(r.Context(), id.MemberID, conv.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationView(view))
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	view, err := s.messaging.ConversationByID(r.Context(), id.MemberID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationView(view))
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	params := store.MessagesParams{
		ConversationID: r.PathValue("id"),
		Cursor:         r.URL.Query().Get("cursor"),
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		params.Limit, _ = strconv.Atoi(limitStr)
	}

	result, err := s.messaging.Messages(r.Context(), id.MemberID, params)
	if err != nil {
		writeError(w, err)
		return
	}

	type messageView struct {
		ID        string    `json:"id"`
		SenderID  string    `json:"sender_id"`
		Content   string    `json:"content"`
		Read      bool      `json:"read"`
		CreatedAt time.Time `json:"created_at"`
	}
	views := make([]messageView, 0, len(result.Messages))
	for _, m := range result.Messages {
		views = append(views, messageView{
			ID:        m.ID,
			SenderID:  m.SenderID,
			Content:   m.Content,
			Read:      m.Read,
			CreatedAt: m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages":    views,
		"next_cursor": result.NextCursor,
		"has_more":    result.HasMore,
	})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	var req struct {
		Content         string `json:"content"`
		ClientMessageID string `json:"client_message_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := s.messaging.SendMessage(r.Context(), messaging.SendRequest{
		ConversationID:  r.PathValue("id"),
		SenderID:        id.MemberID,
		Content:         req.Content,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         msg.ID,
		"created_at": msg.CreatedAt,
	})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	flipped, err := s.messaging.MarkConversationRead(r.Context(), id.MemberID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": flipped})
}

// Referrals

func (s *Server) handleCreateReferral(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	var req struct {
		ToMemberID   string `json:"to_member_id"`
		BusinessName string `json:"business_name"`
		ContactInfo  string `json:"contact_info"`
		Note         string `json:"note"`
		ValueCents   int64  `json:"value_cents"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	ref, err := s.ledger.Create(r.Context(), ledger.CreateRequest{
		FromMemberID: id.MemberID,
		ToMemberID:   req.ToMemberID,
		BusinessName: req.BusinessName,
		ContactInfo:  req.ContactInfo,
		Note:         req.Note,
		ValueCents:   req.ValueCents,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReferralView(ref))
}

type referralView struct {
	ID           string    `json:"id"`
	FromMemberID string    `json:"from_member_id"`
	ToMemberID   string    `json:"to_member_id"`
	BusinessName string    `json:"business_name"`
	ContactInfo  string    `json:"contact_info,omitempty"`
	Note         string    `json:"note,omitempty"`
	Status       string    `json:"status"`
	ValueCents   int64     `json:"value_cents"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toReferralView(r *store.Referral) referralView {
	return referralView{
		ID:           r.ID,
		FromMemberID: r.FromMemberID,
		ToMemberID:   r.ToMemberID,
		BusinessName: r.BusinessName,
		ContactInfo:  r.ContactInfo,
		Note:         r.Note,
		Status:       string(r.Status),
		ValueCents:   r.ValueCents,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (s *Server) handleListReferrals(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := s.ledger.ListForMember(r.Context(), id.MemberID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]referralView, 0, len(list))
	for _, ref := range list {
		views = append(views, toReferralView(ref))
	}
	writeJSON(w, http.StatusOK, map[string]any{"referrals": views})
}

func (s *Server) handleGetReferral(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	ref, err := s.ledger.Get(r.Context(), id.MemberID, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReferralView(ref))
}

func (s *Server) handleReferralStatus(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	var req struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	ref, err := s.ledger.UpdateStatus(r.Context(), id.MemberID, r.PathValue("id"), store.ReferralStatus(req.Status))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReferralView(ref))
}

func (s *Server) handleReferralStats(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	stats, err := s.ledger.Stats(r.Context(), id.MemberID)
	if err != nil {
		writeError(w, err)
		return
	}

	byStatus := make(map[string]int, len(stats.ByStatus))
	for status, n := range stats.ByStatus {
		byStatus[string(status)] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sent":                   stats.Sent,
		"received":               stats.Received,
		"by_status":              byStatus,
		"closed_won_value_cents": stats.ClosedWonValueCents,
	})
}

// Tour

type tourStepView struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Anchor    string `json:"anchor"`
	Placement string `json:"placement,omitempty"`
}

func toTourStepView(step tour.Step) tourStepView {
	return tourStepView{
		ID:        step.ID,
		Title:     step.Title,
		Body:      step.Body,
		Anchor:    step.Anchor,
		Placement: step.Placement,
	}
}

func (s *Server) handleTourSteps(w http.ResponseWriter, r *http.Request) {
	steps := s.tour.Steps()
	views := make([]tourStepView, 0, len(steps))
	for _, step := range steps {
		views = append(views, toTourStepView(step))
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": views})
}

func (s *Server) handleTourNext(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	step, err := s.tour.Next(r.Context(), id.MemberID)
	if errors.Is(err, tour.ErrTourComplete) {
		writeJSON(w, http.StatusOK, map[string]any{"complete": true})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"complete": false, "step": toTourStepView(*step)})
}

func (s *Server) handleTourComplete(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	if err := s.tour.Complete(r.Context(), id.MemberID, r.PathValue("step")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTourReset(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	if err := s.tour.Reset(r.Context(), id.MemberID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Push subscriptions

func (s *Server) handlePushSubscribe(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	var req struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "endpoint and keys are required"})
		return
	}

	err := s.store.SavePushSubscription(r.Context(), &store.PushSubscription{
		ID:        uuid.New().String(),
		MemberID:  id.MemberID,
		Endpoint:  req.Endpoint,
		P256dh:    req.Keys.P256dh,
		Auth:      req.Keys.Auth,
		CreatedAt: time.Now(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "subscribed"})
}

func (s *Server) handlePushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := s.store.DeletePushSubscription(r.Context(), req.Endpoint); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}
