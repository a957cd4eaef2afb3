package lifecycle

import (
	"context"
	"encoding/json"
	"testing"

	"typesync/internal/document/model"
	"typesync/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readDocument(t *testing.T, st store.Store, id string) model.Document {
	t.Helper()
	raw, err := st.Read(context.Background(), model.DocumentPath(id))
	require.NoError(t, err)
	var doc model.Document
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}

func TestCreateWritesEmptyDocument(t *testing.T) {
	st := store.NewMemory()
	m := NewManager(st)

	require.NoError(t, m.Create(context.Background(), "doc1", "Report"))

	doc := readDocument(t, st, "doc1")
	assert.Equal(t, "Report", doc.Title)
	assert.Equal(t, "", doc.Content)
	assert.Empty(t, doc.Users)
	assert.NotEmpty(t, doc.LastModified)
}

func TestCreateIsIdempotent(t *testing.T) {
	st := store.NewMemory()
	m := NewManager(st)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, "doc1", "Report"))
	first := readDocument(t, st, "doc1")

	require.NoError(t, m.Create(ctx, "doc1", "Another Title"))
	second := readDocument(t, st, "doc1")

	assert.Equal(t, first, second, "second create must not touch the record")
}

func TestCreateDefaultsTitle(t *testing.T) {
	st := store.NewMemory()
	m := NewManager(st)

	require.NoError(t, m.Create(context.Background(), "doc1", ""))
	assert.Equal(t, DefaultTitle, readDocument(t, st, "doc1").Title)
}

func TestInitializeSeedsContent(t *testing.T) {
	st := store.NewMemory()
	m := NewManager(st)
	ctx := context.Background()

	require.NoError(t, m.Initialize(ctx, "doc1", "Notes", "Starting point"))
	assert.Equal(t, "Starting point", readDocument(t, st, "doc1").Content)

	require.NoError(t, m.Initialize(ctx, "doc2", "Notes", ""))
	assert.Equal(t, DefaultSeedContent, readDocument(t, st, "doc2").Content)
}

func TestInitializeDoesNotReseedExisting(t *testing.T) {
	st := store.NewMemory()
	m := NewManager(st)
	ctx := context.Background()

	require.NoError(t, m.Initialize(ctx, "doc1", "Notes", "v1"))
	require.NoError(t, m.Initialize(ctx, "doc1", "Notes", "v2"))

	assert.Equal(t, "v1", readDocument(t, st, "doc1").Content)
}
