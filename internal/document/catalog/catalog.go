package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"typesync/internal/document/access"
	"typesync/internal/document/model"
	"typesync/pkg/logger"
	"typesync/store"
)

// Catalog derives the per-user view of the document collection: a
// document is visible iff its membership mapping holds the user's
// canonical key. Ordering follows the collection snapshot and is
// deliberately unsorted.
type Catalog struct {
	Store store.Store
}

func NewCatalog(st store.Store) *Catalog {
	return &Catalog{Store: st}
}

// List is the one-shot form of the catalog. An empty email (no signed-in
// user) yields an empty list, as does an empty collection.
func (c *Catalog) List(ctx context.Context, currentUserEmail string) ([]model.CatalogEntry, error) {
	if currentUserEmail == "" {
		return []model.CatalogEntry{}, nil
	}
	raw, err := c.Store.Read(ctx, model.Collection)
	if errors.Is(err, store.ErrNotFound) {
		return []model.CatalogEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return filter(raw, access.Canonicalize(currentUserEmail)), nil
}

// Watch keeps fn supplied with the filtered listing for as long as the
// subscription lives: once immediately, then on every collection change.
// The caller must invoke the returned unsubscribe on teardown.
func (c *Catalog) Watch(currentUserEmail string, fn func([]model.CatalogEntry)) (store.Unsubscribe, error) {
	if currentUserEmail == "" {
		fn([]model.CatalogEntry{})
		return func() {}, nil
	}
	key := access.Canonicalize(currentUserEmail)
	return c.Store.Subscribe(model.Collection, func(raw json.RawMessage) {
		fn(filter(raw, key))
	})
}

func filter(raw json.RawMessage, canonicalKey string) []model.CatalogEntry {
	entries := []model.CatalogEntry{}
	if raw == nil {
		return entries
	}
	var collection map[string]model.Document
	if err := json.Unmarshal(raw, &collection); err != nil {
		logger.Sugar.Errorf("Bad document collection snapshot: %v", err)
		return entries
	}
	for id, doc := range collection {
		if _, ok := doc.Users[canonicalKey]; !ok {
			continue
		}
		name := doc.Title
		if name == "" {
			name = strings.ReplaceAll(id, "_", " ")
		}
		entries = append(entries, model.CatalogEntry{ID: id, Name: name})
	}
	return entries
}
