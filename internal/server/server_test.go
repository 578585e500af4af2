// ABOUTME: Shared test harness building a full server over the mock store
// ABOUTME: Spins up real services so handler tests exercise the whole stack

package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hearthlabs/hearth/internal/auth"
	"github.com/hearthlabs/hearth/internal/broadcast"
	"github.com/hearthlabs/hearth/internal/dedupe"
	"github.com/hearthlabs/hearth/internal/ledger"
	"github.com/hearthlabs/hearth/internal/localcache"
	"github.com/hearthlabs/hearth/internal/members"
	"github.com/hearthlabs/hearth/internal/messaging"
	"github.com/hearthlabs/hearth/internal/push"
	"github.com/hearthlabs/hearth/internal/store"
	"github.com/hearthlabs/hearth/internal/tour"
)

const testAdminToken = "test-admin-token"

var testJWTSecret = []byte("server-test-secret-32-bytes-long!")

type testEnv struct {
	server   *Server
	store    *store.MockStore
	verifier *auth.JWTVerifier
	handler  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st := store.NewMockStore()
	b := broadcast.New(nil)
	t.Cleanup(b.Close)
	d := dedupe.New(time.Minute, 1024)
	t.Cleanup(d.Close)

	msgSvc := messaging.New(st, b, d, nil)
	memberSvc := members.New(t.Context(), st, nil)
	ledgerSvc := ledger.New(st, nil)

	stepsPath := filepath.Join(t.TempDir(), "tour.toml")
	require.NoError(t, os.WriteFile(stepsPath, []byte(
		"[[step]]\nid = \"welcome\"\ntitle = \"Welcome\"\nbody = \"Hi\"\nanchor = \"#feed\"\n"), 0o644))
	steps, err := tour.LoadSteps(stepsPath)
	require.NoError(t, err)
	tourSvc := tour.New(steps, st, nil)

	cache, err := localcache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	verifier := auth.NewJWTVerifier(testJWTSecret, "hearth", "hearth-app")

	srv := New(Config{
		Addr:           "127.0.0.1:0",
		AdminToken:     testAdminToken,
		FetchTimeout:   2 * time.Second,
		RecomputeDelay: 20 * time.Millisecond,
	}, Deps{
		Members:   memberSvc,
		Messaging: msgSvc,
		Ledger:    ledgerSvc,
		Tour:      tourSvc,
		Store:     st,
		Cache:     cache,
		Verifier:  verifier,
		Badge:     push.NewLogSink(nil),
	}, nil)

	return &testEnv{
		server:   srv,
		store:    st,
		verifier: verifier,
		handler:  srv.Handler(),
	}
}

// addMember creates a member directly in the store and returns a valid token.
func (e *testEnv) addMember(t *testing.T, id, handle, displayName string) string {
	t.Helper()
	require.NoError(t, e.store.CreateMember(t.Context(), &store.Member{
		ID:          id,
		Handle:      handle,
		DisplayName: displayName,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}))
	token, err := e.verifier.Generate(id, handle, time.Hour)
	require.NoError(t, err)
	return token
}

// do performs a JSON request against the handler.
func (e *testEnv) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}
