package access

import (
	"context"
	"encoding/json"
	"testing"

	"typesync/internal/document/lifecycle"
	"typesync/internal/document/model"
	"typesync/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	assert.Equal(t, "a_b@x_com", Canonicalize("a.b@x.com"))
	assert.Equal(t, "user@example_com", Canonicalize("user@example.com"))
	assert.Equal(t, "no-dots@host", Canonicalize("no-dots@host"))
	assert.Equal(t, "", Canonicalize(""))

	// Case is preserved; only periods change.
	assert.Equal(t, "Ada_Lovelace@x_com", Canonicalize("Ada.Lovelace@x.com"))

	// The documented collision class: period and underscore placements
	// that differ only there collapse to the same key.
	assert.Equal(t, Canonicalize("a.b@x.com"), Canonicalize("a_b@x.com"))
}

func readUsers(t *testing.T, st store.Store, id string) map[string]model.Member {
	t.Helper()
	raw, err := st.Read(context.Background(), model.DocumentPath(id))
	require.NoError(t, err)
	var doc model.Document
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc.Users
}

func TestGrantRejectsInvalidEmail(t *testing.T) {
	st := store.NewMemory()
	r := NewRegistry(st)
	ctx := context.Background()

	require.NoError(t, lifecycle.NewManager(st).Create(ctx, "doc1", "Report"))

	assert.ErrorIs(t, r.Grant(ctx, "doc1", ""), ErrInvalidEmail)
	assert.ErrorIs(t, r.Grant(ctx, "doc1", "not-an-email"), ErrInvalidEmail)
	assert.Empty(t, readUsers(t, st, "doc1"), "failed grants must leave membership unchanged")
}

func TestGrantMergesMembers(t *testing.T) {
	st := store.NewMemory()
	r := NewRegistry(st)
	ctx := context.Background()

	require.NoError(t, lifecycle.NewManager(st).Create(ctx, "doc1", "Report"))
	require.NoError(t, r.Grant(ctx, "doc1", "a@x.com"))
	require.NoError(t, r.Grant(ctx, "doc1", "b@x.com"))

	users := readUsers(t, st, "doc1")
	require.Len(t, users, 2)
	assert.Equal(t, "a@x.com", users["a@x_com"].Email)
	assert.Equal(t, "b@x.com", users["b@x_com"].Email)
}

func TestGrantKeepsSiblingFields(t *testing.T) {
	st := store.NewMemory()
	r := NewRegistry(st)
	ctx := context.Background()

	require.NoError(t, lifecycle.NewManager(st).Initialize(ctx, "doc1", "Report", "some content"))
	require.NoError(t, r.Grant(ctx, "doc1", "a@x.com"))

	raw, err := st.Read(ctx, model.DocumentPath("doc1"))
	require.NoError(t, err)
	var doc model.Document
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "Report", doc.Title)
	assert.Equal(t, "some content", doc.Content)
}

func TestGrantRefreshesAccessTimeNotIdentity(t *testing.T) {
	st := store.NewMemory()
	r := NewRegistry(st)
	ctx := context.Background()

	require.NoError(t, r.Grant(ctx, "doc1", "a.b@x.com"))
	require.NoError(t, r.Grant(ctx, "doc1", "a.b@x.com"))

	users := readUsers(t, st, "doc1")
	require.Len(t, users, 1)
	assert.Equal(t, "a.b@x.com", users["a_b@x_com"].Email)
}

func TestGrantCreatesPlaceholderDocument(t *testing.T) {
	st := store.NewMemory()
	r := NewRegistry(st)
	ctx := context.Background()

	require.NoError(t, r.Grant(ctx, "fresh", "a@x.com"))

	raw, err := st.Read(ctx, model.DocumentPath("fresh"))
	require.NoError(t, err)
	var doc model.Document
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, lifecycle.DefaultTitle, doc.Title)
	assert.Equal(t, lifecycle.DefaultSeedContent, doc.Content)
	assert.Contains(t, doc.Users, "a@x_com")
}

func TestRevokeRemovesMember(t *testing.T) {
	st := store.NewMemory()
	r := NewRegistry(st)
	ctx := context.Background()

	require.NoError(t, r.Grant(ctx, "doc1", "a@x.com"))
	require.NoError(t, r.Grant(ctx, "doc1", "b@x.com"))
	require.NoError(t, r.Revoke(ctx, "doc1", "a@x.com"))

	users := readUsers(t, st, "doc1")
	require.Len(t, users, 1)
	assert.Contains(t, users, "b@x_com")
}

func TestRevokeAbsentMemberIsNoOp(t *testing.T) {
	st := store.NewMemory()
	r := NewRegistry(st)
	ctx := context.Background()

	require.NoError(t, r.Grant(ctx, "doc1", "a@x.com"))
	require.NoError(t, r.Revoke(ctx, "doc1", "never.granted@x.com"))
	assert.Len(t, readUsers(t, st, "doc1"), 1)

	// Missing document is equally silent.
	require.NoError(t, r.Revoke(ctx, "no-such-doc", "a@x.com"))
}
