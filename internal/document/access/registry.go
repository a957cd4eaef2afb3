package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"typesync/internal/document/lifecycle"
	"typesync/internal/document/model"
	"typesync/store"
)

var ErrInvalidEmail = errors.New("invalid email address")

// Canonicalize derives the membership key for an email address. Store
// path segments forbid periods, so every period becomes an underscore.
// Distinct addresses differing only by period-vs-underscore placement
// collapse to the same key; that collision class is accepted.
func Canonicalize(email string) string {
	return strings.ReplaceAll(email, ".", "_")
}

// Registry maintains the per-document collaborator set. It keeps no
// state between calls: every mutation re-reads the record first.
type Registry struct {
	Store store.Store
}

func NewRegistry(st store.Store) *Registry {
	return &Registry{Store: st}
}

// Grant adds email to the document's membership, stamping a fresh access
// time. Re-granting an existing member only refreshes that stamp. If the
// document does not exist yet, a seeded placeholder is written with the
// member already present.
func (r *Registry) Grant(ctx context.Context, documentID, email string) error {
	if email == "" || !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}

	key := Canonicalize(email)
	member := model.Member{Email: email, AccessTime: model.Timestamp()}
	path := model.DocumentPath(documentID)

	raw, err := r.Store.Read(ctx, path)
	if errors.Is(err, store.ErrNotFound) {
		doc := model.Document{
			Title:        lifecycle.DefaultTitle,
			Content:      lifecycle.DefaultSeedContent,
			Users:        map[string]model.Member{key: member},
			LastModified: model.Timestamp(),
		}
		if err := r.Store.Write(ctx, path, doc); err != nil {
			return fmt.Errorf("granting access to %s: %w", documentID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("granting access to %s: %w", documentID, err)
	}

	var doc model.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("granting access to %s: %w", documentID, err)
	}
	users := doc.Users
	if users == nil {
		users = map[string]model.Member{}
	}
	users[key] = member

	// Only the users field is written, so concurrent writers of sibling
	// fields are not clobbered.
	if err := r.Store.Merge(ctx, path, map[string]any{"users": users}); err != nil {
		return fmt.Errorf("granting access to %s: %w", documentID, err)
	}
	return nil
}

// Revoke removes email's canonical key from the membership. Revoking a
// member that was never granted, or from a missing document, is a no-op.
func (r *Registry) Revoke(ctx context.Context, documentID, email string) error {
	key := Canonicalize(email)
	path := model.DocumentPath(documentID)

	raw, err := r.Store.Read(ctx, path)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("revoking access to %s: %w", documentID, err)
	}

	var doc model.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("revoking access to %s: %w", documentID, err)
	}
	if _, ok := doc.Users[key]; !ok {
		return nil
	}
	remaining := make(map[string]model.Member, len(doc.Users)-1)
	for k, member := range doc.Users {
		if k != key {
			remaining[k] = member
		}
	}
	if err := r.Store.Merge(ctx, path, map[string]any{"users": remaining}); err != nil {
		return fmt.Errorf("revoking access to %s: %w", documentID, err)
	}
	return nil
}

// Members returns the current membership mapping, keyed canonically.
func (r *Registry) Members(ctx context.Context, documentID string) (map[string]model.Member, error) {
	raw, err := r.Store.Read(ctx, model.DocumentPath(documentID))
	if err != nil {
		return nil, err
	}
	var doc model.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc.Users == nil {
		return map[string]model.Member{}, nil
	}
	return doc.Users, nil
}
