package service

import (
	"context"
	"fmt"
	"sort"

	"typesync/internal/document/access"
	"typesync/internal/document/catalog"
	"typesync/internal/document/lifecycle"
	"typesync/internal/document/model"
	"typesync/store"

	"github.com/google/uuid"
)

type DocumentService struct {
	Store     store.Store
	Lifecycle *lifecycle.Manager
	Registry  *access.Registry
	Catalog   *catalog.Catalog
}

func NewDocumentService(st store.Store) *DocumentService {
	return &DocumentService{
		Store:     st,
		Lifecycle: lifecycle.NewManager(st),
		Registry:  access.NewRegistry(st),
		Catalog:   catalog.NewCatalog(st),
	}
}

// CreateDocument mints a fresh id, initializes the document with seeded
// content, and grants the creator access. Minted ids are UUIDs, so
// concurrent creators cannot collide on a new document.
func (s *DocumentService) CreateDocument(ctx context.Context, creatorEmail, title string) (string, error) {
	docID := uuid.NewString()
	if err := s.Lifecycle.Initialize(ctx, docID, title, ""); err != nil {
		return "", err
	}
	if err := s.Registry.Grant(ctx, docID, creatorEmail); err != nil {
		return "", err
	}
	return docID, nil
}

// OpenDocument lazily initializes the document and grants the opening
// user access, refreshing their access time on every open.
func (s *DocumentService) OpenDocument(ctx context.Context, docID, userEmail string) error {
	if err := s.Lifecycle.Initialize(ctx, docID, "", ""); err != nil {
		return err
	}
	return s.Registry.Grant(ctx, docID, userEmail)
}

func (s *DocumentService) DeleteDocument(ctx context.Context, docID string) error {
	return s.Store.Remove(ctx, model.DocumentPath(docID))
}

// UpdateTitle renames an existing document, stamping lastModified.
func (s *DocumentService) UpdateTitle(ctx context.Context, docID, title string) error {
	path := model.DocumentPath(docID)
	if _, err := s.Store.Read(ctx, path); err != nil {
		return err
	}
	if err := s.Store.Merge(ctx, path, map[string]any{
		"title":        title,
		"lastModified": model.Timestamp(),
	}); err != nil {
		return fmt.Errorf("updating title of %s: %w", docID, err)
	}
	return nil
}

func (s *DocumentService) ListDocuments(ctx context.Context, userEmail string) ([]model.CatalogEntry, error) {
	return s.Catalog.List(ctx, userEmail)
}

// Members lists the document's collaborators, sorted by canonical key so
// the response is stable.
func (s *DocumentService) Members(ctx context.Context, docID string) ([]model.MemberResponse, error) {
	users, err := s.Registry.Members(ctx, docID)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(users))
	for key := range users {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	members := make([]model.MemberResponse, 0, len(keys))
	for _, key := range keys {
		member := users[key]
		members = append(members, model.MemberResponse{
			Key:        key,
			Email:      member.Email,
			AccessTime: member.AccessTime,
		})
	}
	return members, nil
}
