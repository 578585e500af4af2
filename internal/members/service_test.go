// ABOUTME: Tests for the member profile service
// ABOUTME: Covers handle validation, caching behavior, and update invalidation

package members

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthlabs/hearth/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.MockStore) {
	t.Helper()
	st := store.NewMockStore()
	return New(t.Context(), st, nil), st
}

func TestRegister(t *testing.T) {
	svc, _ := newTestService(t)

	m, err := svc.Register(t.Context(), RegisterRequest{
		Handle:      "ada.lovelace",
		DisplayName: "Ada Lovelace",
		JobTitle:    "Engineer",
		Company:     "Analytical Engines Ltd",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "ada.lovelace", m.Handle)
	assert.Equal(t, "Ada Lovelace", m.DisplayName)
	assert.False(t, m.CreatedAt.IsZero())
}

func TestRegisterInvalidHandle(t *testing.T) {
	svc, _ := newTestService(t)

	for _, handle := range []string{"", "a", "has spaces", "way@too@odd", "x"} {
		_, err := svc.Register(t.Context(), RegisterRequest{Handle: handle, DisplayName: "Someone"})
		assert.ErrorIs(t, err, ErrInvalidHandle, "handle %q", handle)
	}
}

func TestRegisterEmptyName(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(t.Context(), RegisterRequest{Handle: "nameless", DisplayName: "  "})
	assert.ErrorIs(t, err, ErrEmptyName)

	// Markup-only names sanitize to empty too.
	_, err = svc.Register(t.Context(), RegisterRequest{Handle: "markup", DisplayName: "<script>x</script>"})
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestRegisterDuplicateHandle(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(t.Context(), RegisterRequest{Handle: "taken", DisplayName: "First"})
	require.NoError(t, err)

	_, err = svc.Register(t.Context(), RegisterRequest{Handle: "taken", DisplayName: "Second"})
	assert.ErrorIs(t, err, store.ErrDuplicateMember)
}

func TestRegisterSanitizesFields(t *testing.T) {
	svc, _ := newTestService(t)

	m, err := svc.Register(t.Context(), RegisterRequest{
		Handle:      "grace",
		DisplayName: "Grace <b>Hopper</b>",
		Bio:         "Compilers <img src=x onerror=alert(1)> and standards",
	})
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", m.DisplayName)
	assert.NotContains(t, m.Bio, "<img")
}

func TestProfileServedFromCache(t *testing.T) {
	svc, st := newTestService(t)

	m, err := svc.Register(t.Context(), RegisterRequest{Handle: "cached", DisplayName: "Cached"})
	require.NoError(t, err)

	first, err := svc.Profile(t.Context(), m.ID)
	require.NoError(t, err)

	// Mutate storage directly; a cached read must not see it.
	stored, err := st.GetMember(t.Context(), m.ID)
	require.NoError(t, err)
	stored.DisplayName = "Changed Behind The Cache"
	require.NoError(t, st.UpdateMember(t.Context(), stored))

	second, err := svc.Profile(t.Context(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, first.DisplayName, second.DisplayName)
}

func TestProfileNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Profile(t.Context(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProfileByHandle(t *testing.T) {
	svc, _ := newTestService(t)

	m, err := svc.Register(t.Context(), RegisterRequest{Handle: "findable", DisplayName: "Findable"})
	require.NoError(t, err)

	got, err := svc.ProfileByHandle(t.Context(), "findable")
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)

	_, err = svc.ProfileByHandle(t.Context(), "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateProfileInvalidatesCache(t *testing.T) {
	svc, _ := newTestService(t)

	m, err := svc.Register(t.Context(), RegisterRequest{Handle: "mutable", DisplayName: "Before"})
	require.NoError(t, err)

	// Prime the cache.
	_, err = svc.Profile(t.Context(), m.ID)
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(t.Context(), m.ID, UpdateRequest{
		DisplayName: "After",
		JobTitle:    "Founder",
	})
	require.NoError(t, err)
	assert.Equal(t, "After", updated.DisplayName)
	assert.Equal(t, "Founder", updated.JobTitle)

	got, err := svc.Profile(t.Context(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, "After", got.DisplayName)
}

func TestUpdateProfileRejectsEmptyName(t *testing.T) {
	svc, _ := newTestService(t)

	m, err := svc.Register(t.Context(), RegisterRequest{Handle: "stable", DisplayName: "Stable"})
	require.NoError(t, err)

	_, err = svc.UpdateProfile(t.Context(), m.ID, UpdateRequest{DisplayName: ""})
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestSearchAndList(t *testing.T) {
	svc, _ := newTestService(t)

	for _, r := range []RegisterRequest{
		{Handle: "alice", DisplayName: "Alice Martin", Company: "Northwind"},
		{Handle: "bob", DisplayName: "Bob Stone", Company: "Contoso"},
		{Handle: "carol", DisplayName: "Carol North", Company: "Northwind"},
	} {
		_, err := svc.Register(t.Context(), r)
		require.NoError(t, err)
	}

	results, err := svc.Search(t.Context(), "northwind", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	all, err := svc.List(t.Context(), 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
