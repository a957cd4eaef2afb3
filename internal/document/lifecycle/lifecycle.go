package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"typesync/internal/document/model"
	"typesync/pkg/logger"
	"typesync/store"
)

const (
	DefaultTitle       = "Untitled Document"
	DefaultSeedContent = "Welcome to TypeSync!"
)

// Manager creates documents lazily. Creation is idempotent with respect
// to existence: the check is a read before the write, so two clients
// racing on the same caller-chosen id can both pass it.
type Manager struct {
	Store store.Store
}

func NewManager(st store.Store) *Manager {
	return &Manager{Store: st}
}

// Create writes a new empty document at id unless one already exists.
func (m *Manager) Create(ctx context.Context, documentID, title string) error {
	return m.createIfAbsent(ctx, documentID, title, "")
}

// Initialize is Create with seeded content, for documents that must not
// appear blank on first open. An empty seed falls back to the default.
func (m *Manager) Initialize(ctx context.Context, documentID, title, seedContent string) error {
	if seedContent == "" {
		seedContent = DefaultSeedContent
	}
	return m.createIfAbsent(ctx, documentID, title, seedContent)
}

func (m *Manager) createIfAbsent(ctx context.Context, documentID, title, content string) error {
	path := model.DocumentPath(documentID)
	_, err := m.Store.Read(ctx, path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("checking document %s: %w", documentID, err)
	}

	if title == "" {
		title = DefaultTitle
	}
	doc := model.Document{
		Title:        title,
		Content:      content,
		Users:        map[string]model.Member{},
		LastModified: model.Timestamp(),
	}
	if err := m.Store.Write(ctx, path, doc); err != nil {
		logger.Sugar.Errorf("Failed to create document %s: %v", documentID, err)
		return fmt.Errorf("creating document %s: %w", documentID, err)
	}
	return nil
}
