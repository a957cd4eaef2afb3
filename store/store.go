package store

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrNotFound = errors.New("store: not found")

// Unsubscribe stops delivery of change notifications for one subscription.
type Unsubscribe func()

// Store is an observable key-value store holding JSON records.
//
// A record path is "<collection>/<id>". Reading or subscribing to a bare
// collection path yields a JSON object keyed by record id. Subscribe
// delivers the current value immediately and again on every change; a nil
// value means the record is absent.
type Store interface {
	Read(ctx context.Context, path string) (json.RawMessage, error)
	// Write replaces the record at path entirely.
	Write(ctx context.Context, path string, value any) error
	// Merge shallow-merges fields into the record at path, creating it if
	// absent. Fields not named are left untouched.
	Merge(ctx context.Context, path string, fields map[string]any) error
	Remove(ctx context.Context, path string) error
	Subscribe(path string, fn func(value json.RawMessage)) (Unsubscribe, error)
}
