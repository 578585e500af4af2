// ABOUTME: WebSocket stream tests covering the frame protocol end to end
// ABOUTME: Dials a real server and drives the session with client frames

package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthlabs/hearth/internal/messaging"
)

func dialStream(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readFrame reads the next frame with a deadline.
func readFrame(t *testing.T, conn *websocket.Conn) serverFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var frame serverFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// awaitFrame reads frames until one matches, failing on timeout.
func awaitFrame(t *testing.T, conn *websocket.Conn, match func(serverFrame) bool) serverFrame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		frame := readFrame(t, conn)
		if match(frame) {
			return frame
		}
	}
	t.Fatal("expected frame never arrived")
	return serverFrame{}
}

func TestStreamSnapshotAndLiveMessage(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	adaToken := env.addMember(t, "m1", "ada", "Ada Lovelace")
	graceToken := env.addMember(t, "m2", "grace", "Grace Hopper")

	// Seed one conversation with an unread message for grace.
	rec := env.do(t, http.MethodPost, "/v1/conversations", adaToken, map[string]string{"member_id": "m2"})
	require.Equal(t, http.StatusOK, rec.Code)
	conv := decodeBody[conversationView](t, rec)
	rec = env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", adaToken, map[string]string{
		"content": "Welcome to the club!",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	conn := dialStream(t, srv, graceToken)

	snapshot := awaitFrame(t, conn, func(f serverFrame) bool { return f.Type == "snapshot" && !f.Cached })
	assert.Equal(t, "ready", snapshot.State)
	require.Len(t, snapshot.Conversations, 1)
	assert.Equal(t, 1, snapshot.Conversations[0].UnreadCount)
	require.NotNil(t, snapshot.Count)
	assert.Equal(t, 1, *snapshot.Count)

	// A new live message lands as a feed frame.
	rec = env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", adaToken, map[string]string{
		"content": "Second message",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	feedFrame := awaitFrame(t, conn, func(f serverFrame) bool {
		return f.Type == "feed" && len(f.Conversations) == 1 && f.Conversations[0].UnreadCount == 2
	})
	require.NotNil(t, feedFrame.Conversations[0].LastMessage)
	assert.Equal(t, "Second message", feedFrame.Conversations[0].LastMessage.Preview)

	// The recompute timer confirms the badge from the store.
	badge := awaitFrame(t, conn, func(f serverFrame) bool {
		return f.Type == "badge" && f.Count != nil && *f.Count == 2
	})
	assert.Equal(t, 2, *badge.Count)
}

func TestStreamSelectZerosUnread(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	adaToken := env.addMember(t, "m1", "ada", "Ada Lovelace")
	graceToken := env.addMember(t, "m2", "grace", "Grace Hopper")

	rec := env.do(t, http.MethodPost, "/v1/conversations", adaToken, map[string]string{"member_id": "m2"})
	require.Equal(t, http.StatusOK, rec.Code)
	conv := decodeBody[conversationView](t, rec)
	rec = env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", adaToken, map[string]string{
		"content": "Unread until selected",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	conn := dialStream(t, srv, graceToken)
	awaitFrame(t, conn, func(f serverFrame) bool { return f.Type == "snapshot" && !f.Cached })

	require.NoError(t, conn.WriteJSON(clientFrame{Type: "select", ConversationID: conv.ID}))

	awaitFrame(t, conn, func(f serverFrame) bool {
		return f.Type == "feed" && len(f.Conversations) == 1 && f.Conversations[0].UnreadCount == 0
	})
}

func TestStreamSendAndFilter(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	adaToken := env.addMember(t, "m1", "ada", "Ada Lovelace")
	env.addMember(t, "m2", "grace", "Grace Hopper")
	env.addMember(t, "m3", "bob", "Bob Stone")

	rec := env.do(t, http.MethodPost, "/v1/conversations", adaToken, map[string]string{"member_id": "m2"})
	require.Equal(t, http.StatusOK, rec.Code)
	graceConv := decodeBody[conversationView](t, rec)
	rec = env.do(t, http.MethodPost, "/v1/conversations", adaToken, map[string]string{"member_id": "m3"})
	require.Equal(t, http.StatusOK, rec.Code)

	conn := dialStream(t, srv, adaToken)
	awaitFrame(t, conn, func(f serverFrame) bool { return f.Type == "snapshot" && !f.Cached })

	// Send over the socket.
	require.NoError(t, conn.WriteJSON(clientFrame{
		Type:            "send",
		ConversationID:  graceConv.ID,
		Content:         "Sent over the stream",
		ClientMessageID: "client-msg-1",
	}))
	awaitFrame(t, conn, func(f serverFrame) bool {
		if f.Type != "feed" {
			return false
		}
		for _, c := range f.Conversations {
			if c.ID == graceConv.ID && c.LastMessage != nil && c.LastMessage.Preview == "Sent over the stream" {
				return true
			}
		}
		return false
	})

	// Filter down to Grace.
	require.NoError(t, conn.WriteJSON(clientFrame{Type: "filter", Query: "grace"}))
	filtered := awaitFrame(t, conn, func(f serverFrame) bool {
		return f.Type == "feed" && len(f.Conversations) == 1
	})
	require.NotNil(t, filtered.Conversations[0].Other)
	assert.Equal(t, "Grace Hopper", filtered.Conversations[0].Other.DisplayName)

	// Clearing the filter restores both threads.
	require.NoError(t, conn.WriteJSON(clientFrame{Type: "filter", Query: ""}))
	awaitFrame(t, conn, func(f serverFrame) bool {
		return f.Type == "feed" && len(f.Conversations) == 2
	})
}

func TestStreamSendErrorFrame(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	adaToken := env.addMember(t, "m1", "ada", "Ada Lovelace")
	env.addMember(t, "m2", "grace", "Grace Hopper")
	outsiderToken := env.addMember(t, "m3", "mallory", "Mallory Untrusted")

	rec := env.do(t, http.MethodPost, "/v1/conversations", adaToken, map[string]string{"member_id": "m2"})
	require.Equal(t, http.StatusOK, rec.Code)
	conv := decodeBody[conversationView](t, rec)

	conn := dialStream(t, srv, outsiderToken)
	awaitFrame(t, conn, func(f serverFrame) bool { return f.Type == "snapshot" && !f.Cached })

	require.NoError(t, conn.WriteJSON(clientFrame{
		Type:           "send",
		ConversationID: conv.ID,
		Content:        "should fail",
	}))
	errFrame := awaitFrame(t, conn, func(f serverFrame) bool { return f.Type == "error" })
	assert.Contains(t, errFrame.Message, messaging.ErrNotParticipant.Error())
}

func TestStreamReconnectPaintsCachedSnapshot(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	adaToken := env.addMember(t, "m1", "ada", "Ada Lovelace")
	graceToken := env.addMember(t, "m2", "grace", "Grace Hopper")

	rec := env.do(t, http.MethodPost, "/v1/conversations", adaToken, map[string]string{"member_id": "m2"})
	require.Equal(t, http.StatusOK, rec.Code)
	conv := decodeBody[conversationView](t, rec)
	rec = env.do(t, http.MethodPost, "/v1/conversations/"+conv.ID+"/messages", adaToken, map[string]string{
		"content": "Persist me",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// First session loads live and persists on close.
	conn := dialStream(t, srv, graceToken)
	awaitFrame(t, conn, func(f serverFrame) bool { return f.Type == "snapshot" && !f.Cached })
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	conn.Close()

	// The persisted snapshot shows up asynchronously after teardown.
	require.Eventually(t, func() bool {
		list, _, err := env.server.cache.LoadSnapshot("m2")
		return err == nil && len(list) == 1
	}, 3*time.Second, 20*time.Millisecond)

	// Second session paints from cache first.
	conn2 := dialStream(t, srv, graceToken)
	cached := awaitFrame(t, conn2, func(f serverFrame) bool { return f.Type == "snapshot" })
	assert.True(t, cached.Cached)
	require.Len(t, cached.Conversations, 1)
	require.NotNil(t, cached.Conversations[0].LastMessage)
	assert.Equal(t, "Persist me", cached.Conversations[0].LastMessage.Preview)

	// Live snapshot still follows.
	awaitFrame(t, conn2, func(f serverFrame) bool { return f.Type == "snapshot" && !f.Cached })
}
