// ABOUTME: Handler tests for the REST surface
// ABOUTME: Covers member, conversation, referral, tour, and push endpoints

package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeAndProfileUpdate(t *testing.T) {
	env := newTestEnv(t)
	token := env.addMember(t, "m1", "ada", "Ada Lovelace")

	rec := env.do(t, http.MethodGet, "/v1/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody[memberView](t, rec)
	assert.Equal(t, "ada", me.Handle)

	rec = env.do(t, http.MethodPut, "/v1/me", token, map[string]string{
		"display_name": "Ada L.",
		"job_title":    "Engineer",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody[memberView](t, rec)
	assert.Equal(t, "Ada L.", updated.DisplayName)
	assert.Equal(t, "Engineer", updated.JobTitle)

	rec = env.do(t, http.MethodPut, "/v1/me", token, map[string]string{"display_name": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestMemberDirectory(t *testing.T) {
	env := newTestEnv(t)
	token := env.addMember(t, "m1", "ada", "Ada Lovelace")
	env.addMember(t, "m2", "grace", "Grace Hopper")

	rec := env.do(t, http.MethodGet, "/v1/members", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[struct {
		Members []memberView `json:"members"`
	}](t, rec)
	assert.Len(t, body.Members, 2)

	rec = env.do(t, http.MethodGet, "/v1/members?q=grace", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody[struct {
		Members []memberView `json:"members"`
	}](t, rec)
	require.Len(t, body.Members, 1)
	assert.Equal(t, "grace", body.Members[0].Handle)

	rec = env.do(t, http.MethodGet, "/v1/members/m2", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Grace Hopper", decodeBody[memberView](t, rec).DisplayName)

	rec = env.do(t, http.MethodGet, "/v1/members/nobody", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConversationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	adaToken := env.addMember(t, "m1", "ada", "Ada Lovelace")
	graceToken := env.addMember(t, "m2", "grace", "Grace Hopper")

	// Create (idempotent) conversation.
	rec := env.do(t, http.MethodPost, "/v1/conversations", adaToken, map[string]string{"member_id": "m2"})
	require.Equal(t, http.StatusOK, rec.Code)
	conv := decodeBody[conversationView](t, rec)
	assert.NotEmpty(t, conv.ID)
	require.NotNil(t, conv.Other)
	assert.Equal(t, "m2", conv.Other.ID)

	rec = env.do(t, http.MethodPost, "/v1/conversations", graceToken, map[string]string{"member_id": "m1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, conv.ID, decodeBody[conversationView](t, rec).ID)

	// Starting a thread with yourself is rejected.
	rec = env.do(t, http.MethodPost, "/v1/conversations", adaToken, map[string]string{"member_id": "m1"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Send a message.
	rec = env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", adaToken, map[string]string{
		"content": "Shall we meet Thursday?",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Grace sees one conversation with one unread.
	rec = env.do(t, http.MethodGet, "/v1/conversations", graceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[struct {
		Conversations []conversationView `json:"conversations"`
	}](t, rec)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, 1, list.Conversations[0].UnreadCount)
	require.NotNil(t, list.Conversations[0].LastMessage)

	// History.
	rec = env.do(t, http.MethodGet, "/v1/conversations/"+conv.ID+"/messages", graceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}](t, rec)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "Shall we meet Thursday?", history.Messages[0].Content)

	// Mark read.
	rec = env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/read", graceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[map[string]int](t, rec)["marked"])

	rec = env.do(t, http.MethodGet, "/v1/conversations/"+conv.ID, graceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeBody[conversationView](t, rec).UnreadCount)
}

func TestConversationAccessControl(t *testing.T) {
	env := newTestEnv(t)
	adaToken := env.addMember(t, "m1", "ada", "Ada Lovelace")
	env.addMember(t, "m2", "grace", "Grace Hopper")
	outsiderToken := env.addMember(t, "m3", "mallory", "Mallory Untrusted")

	rec := env.do(t, http.MethodPost, "/v1/conversations", adaToken, map[string]string{"member_id": "m2"})
	require.Equal(t, http.StatusOK, rec.Code)
	conv := decodeBody[conversationView](t, rec)

	rec = env.do(t, http.MethodGet, "/v1/conversations/"+conv.ID+"/messages", outsiderToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", outsiderToken, map[string]string{
		"content": "let me in",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReferralEndpoints(t *testing.T) {
	env := newTestEnv(t)
	adaToken := env.addMember(t, "m1", "ada", "Ada Lovelace")
	graceToken := env.addMember(t, "m2", "grace", "Grace Hopper")

	rec := env.do(t, http.MethodPost, "/v1/referrals", adaToken, map[string]any{
		"to_member_id":  "m2",
		"business_name": "Riverside Plumbing",
		"value_cents":   50000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	ref := decodeBody[referralView](t, rec)
	assert.Equal(t, "open", ref.Status)

	// Sender cannot accept their own referral.
	rec = env.do(t, http.MethodPost, "/v1/referrals/"+ref.ID+"/status", adaToken, map[string]string{"status": "accepted"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/referrals/"+ref.ID+"/status", graceToken, map[string]string{"status": "accepted"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "accepted", decodeBody[referralView](t, rec).Status)

	// Illegal transition.
	rec = env.do(t, http.MethodPost, "/v1/referrals/"+ref.ID+"/status", graceToken, map[string]string{"status": "open"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/referrals", graceToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[struct {
		Referrals []referralView `json:"referrals"`
	}](t, rec)
	assert.Len(t, list.Referrals, 1)

	rec = env.do(t, http.MethodGet, "/v1/referrals/stats", adaToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[struct {
		Sent     int `json:"sent"`
		Received int `json:"received"`
	}](t, rec)
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 0, stats.Received)
}

func TestTourEndpoints(t *testing.T) {
	env := newTestEnv(t)
	token := env.addMember(t, "m1", "ada", "Ada Lovelace")

	rec := env.do(t, http.MethodGet, "/v1/tour", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/tour/next", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	next := decodeBody[struct {
		Complete bool         `json:"complete"`
		Step     tourStepView `json:"step"`
	}](t, rec)
	assert.False(t, next.Complete)
	assert.Equal(t, "welcome", next.Step.ID)

	rec = env.do(t, http.MethodPost, "/v1/tour/welcome/complete", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/tour/next", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[struct {
		Complete bool `json:"complete"`
	}](t, rec).Complete)

	rec = env.do(t, http.MethodPost, "/v1/tour/unknown/complete", token, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/tour/reset", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPushSubscriptionEndpoints(t *testing.T) {
	env := newTestEnv(t)
	token := env.addMember(t, "m1", "ada", "Ada Lovelace")

	rec := env.do(t, http.MethodPost, "/v1/push/subscriptions", token, map[string]any{
		"endpoint": "https://push.example.com/abc",
		"keys":     map[string]string{"p256dh": "pk", "auth": "secret"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	subs, err := env.store.ListPushSubscriptions(t.Context(), "m1")
	require.NoError(t, err)
	require.Len(t, subs, 1)

	rec = env.do(t, http.MethodPost, "/v1/push/subscriptions", token, map[string]any{
		"endpoint": "https://push.example.com/abc",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, http.MethodDelete, "/v1/push/subscriptions", token, map[string]string{
		"endpoint": "https://push.example.com/abc",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	subs, err = env.store.ListPushSubscriptions(t.Context(), "m1")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestEnv(t)

	// Wrong token rejected.
	rec := env.do(t, http.MethodGet, "/admin/stats", "wrong", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/admin/members", testAdminToken, map[string]string{
		"handle":       "newbie",
		"display_name": "New Member",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[memberView](t, rec)
	assert.Equal(t, "newbie", created.Handle)

	rec = env.do(t, http.MethodGet, "/admin/members", testAdminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/admin/stats", testAdminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody[map[string]any](t, rec)["members"])

	// Issue a token for the new member, then use it.
	rec = env.do(t, http.MethodPost, "/admin/tokens", testAdminToken, map[string]string{
		"member_id": created.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	token := decodeBody[map[string]string](t, rec)["token"]

	rec = env.do(t, http.MethodGet, "/v1/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "newbie", decodeBody[memberView](t, rec).Handle)
}
