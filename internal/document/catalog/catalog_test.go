package catalog

import (
	"context"
	"testing"

	"typesync/internal/document/access"
	"typesync/internal/document/lifecycle"
	"typesync/internal/document/model"
	"typesync/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCollection(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	lc := lifecycle.NewManager(st)
	reg := access.NewRegistry(st)

	require.NoError(t, lc.Create(ctx, "d1", "First Doc"))
	require.NoError(t, lc.Create(ctx, "d2", "Second Doc"))
	require.NoError(t, reg.Grant(ctx, "d1", "u1@x.com"))
	require.NoError(t, reg.Grant(ctx, "d2", "u2@x.com"))
}

func TestListFiltersByMembership(t *testing.T) {
	st := store.NewMemory()
	setupCollection(t, st)
	c := NewCatalog(st)

	entries, err := c.List(context.Background(), "u1@x.com")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.CatalogEntry{ID: "d1", Name: "First Doc"}, entries[0])
}

func TestListUnauthenticatedIsEmpty(t *testing.T) {
	st := store.NewMemory()
	setupCollection(t, st)
	c := NewCatalog(st)

	entries, err := c.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListEmptyCollection(t *testing.T) {
	c := NewCatalog(store.NewMemory())

	entries, err := c.List(context.Background(), "u1@x.com")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListNameFallsBackToHumanizedID(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.Write(ctx, model.DocumentPath("meeting_notes_2026"), model.Document{
		Users: map[string]model.Member{"u1@x_com": {Email: "u1@x.com"}},
	}))
	c := NewCatalog(st)

	entries, err := c.List(ctx, "u1@x.com")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "meeting notes 2026", entries[0].Name)
}

func TestListMatchesCanonicalKey(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, access.NewRegistry(st).Grant(ctx, "d1", "a.b@x.com"))
	c := NewCatalog(st)

	// The raw email carries periods; membership is keyed canonically.
	entries, err := c.List(ctx, "a.b@x.com")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWatchRefiltersOnEveryCollectionChange(t *testing.T) {
	st := store.NewMemory()
	setupCollection(t, st)
	c := NewCatalog(st)

	var updates [][]model.CatalogEntry
	unsub, err := c.Watch("u1@x.com", func(entries []model.CatalogEntry) {
		updates = append(updates, entries)
	})
	require.NoError(t, err)
	defer unsub()

	require.Len(t, updates, 1)
	assert.Len(t, updates[0], 1)

	// Granting u1 access to d2 makes it appear in the next update.
	ctx := context.Background()
	require.NoError(t, access.NewRegistry(st).Grant(ctx, "d2", "u1@x.com"))

	last := updates[len(updates)-1]
	assert.Len(t, last, 2)

	// Deleting d1 shrinks the list again.
	require.NoError(t, st.Remove(ctx, model.DocumentPath("d1")))
	last = updates[len(updates)-1]
	require.Len(t, last, 1)
	assert.Equal(t, "d2", last[0].ID)
}

func TestWatchUnauthenticatedDeliversEmptyOnce(t *testing.T) {
	st := store.NewMemory()
	setupCollection(t, st)
	c := NewCatalog(st)

	var updates [][]model.CatalogEntry
	unsub, err := c.Watch("", func(entries []model.CatalogEntry) {
		updates = append(updates, entries)
	})
	require.NoError(t, err)
	defer unsub()

	require.Len(t, updates, 1)
	assert.Empty(t, updates[0])
}
