// ABOUTME: Tests for Web Push badge delivery
// ABOUTME: Runs a fake push service over httptest with real message encryption

package push

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthlabs/hearth/internal/store"
)

// browserKeys generates the client-side key material a browser would hand
// out when subscribing.
func browserKeys(t *testing.T) (p256dh, auth string) {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	secret := make([]byte, 16)
	_, err = rand.Read(secret)
	require.NoError(t, err)

	return base64.RawURLEncoding.EncodeToString(priv.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(secret)
}

func newSender(t *testing.T, st SubscriptionStore) *WebPush {
	t.Helper()
	priv, pub, err := GenerateVAPIDKeys()
	require.NoError(t, err)
	return NewWebPush(st, Config{
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: priv,
		Subscriber:      "mailto:ops@example.com",
	}, nil)
}

func subscribe(t *testing.T, st *store.MockStore, memberID, endpoint string) {
	t.Helper()
	p256dh, auth := browserKeys(t)
	require.NoError(t, st.SavePushSubscription(t.Context(), &store.PushSubscription{
		ID:       "sub-" + endpoint,
		MemberID: memberID,
		Endpoint: endpoint,
		P256dh:   p256dh,
		Auth:     auth,
	}))
}

func TestNotifyDelivers(t *testing.T) {
	var delivered atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		delivered.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	st := store.NewMockStore()
	subscribe(t, st, "viewer", srv.URL+"/sub1")
	subscribe(t, st, "viewer", srv.URL+"/sub2")

	sender := newSender(t, st)
	sender.Notify("viewer", 4)

	assert.Equal(t, int32(2), delivered.Load())
}

func TestNotifyNoSubscriptions(t *testing.T) {
	sender := newSender(t, store.NewMockStore())
	// Nothing registered; must return quietly.
	sender.Notify("viewer", 1)
}

func TestNotifyPrunesGoneEndpoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	st := store.NewMockStore()
	subscribe(t, st, "viewer", srv.URL+"/expired")

	sender := newSender(t, st)
	sender.Notify("viewer", 1)

	subs, err := st.ListPushSubscriptions(t.Context(), "viewer")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestNotifyKeepsSubscriptionOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	st := store.NewMockStore()
	subscribe(t, st, "viewer", srv.URL+"/flaky")

	sender := newSender(t, st)
	sender.Notify("viewer", 1)

	subs, err := st.ListPushSubscriptions(t.Context(), "viewer")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestGenerateVAPIDKeys(t *testing.T) {
	priv, pub, err := GenerateVAPIDKeys()
	require.NoError(t, err)
	assert.NotEmpty(t, priv)
	assert.NotEmpty(t, pub)
	assert.NotEqual(t, priv, pub)
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink(nil)
	// Must be a no-op beyond logging.
	sink.Notify("viewer", 3)
}
