package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store used by tests and single-node runs.
// Notifications run synchronously on the mutating goroutine, in
// subscription order, without holding the store lock.
type Memory struct {
	mu      sync.Mutex
	records map[string]json.RawMessage
	subs    map[string]map[int]func(json.RawMessage)
	nextSub int
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]json.RawMessage),
		subs:    make(map[string]map[int]func(json.RawMessage)),
	}
}

func (m *Memory) Read(ctx context.Context, path string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(path)
}

func (m *Memory) Write(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.records[path] = raw
	m.mu.Unlock()
	m.notify(path)
	return nil
}

func (m *Memory) Merge(ctx context.Context, path string, fields map[string]any) error {
	m.mu.Lock()
	record := make(map[string]json.RawMessage)
	if existing, ok := m.records[path]; ok {
		if err := json.Unmarshal(existing, &record); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	for name, value := range fields {
		raw, err := json.Marshal(value)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		record[name] = raw
	}
	merged, err := json.Marshal(record)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.records[path] = merged
	m.mu.Unlock()
	m.notify(path)
	return nil
}

func (m *Memory) Remove(ctx context.Context, path string) error {
	m.mu.Lock()
	delete(m.records, path)
	m.mu.Unlock()
	m.notify(path)
	return nil
}

func (m *Memory) Subscribe(path string, fn func(json.RawMessage)) (Unsubscribe, error) {
	m.mu.Lock()
	if m.subs[path] == nil {
		m.subs[path] = make(map[int]func(json.RawMessage))
	}
	id := m.nextSub
	m.nextSub++
	m.subs[path][id] = fn
	current, err := m.snapshotLocked(path)
	m.mu.Unlock()

	if err != nil && err != ErrNotFound {
		return nil, err
	}
	fn(current)

	return func() {
		m.mu.Lock()
		delete(m.subs[path], id)
		m.mu.Unlock()
	}, nil
}

// snapshotLocked returns the current value at path: the record itself, or
// for a collection path the aggregated object of its records.
func (m *Memory) snapshotLocked(path string) (json.RawMessage, error) {
	if raw, ok := m.records[path]; ok {
		return raw, nil
	}
	prefix := path + "/"
	collection := make(map[string]json.RawMessage)
	for key, raw := range m.records {
		if strings.HasPrefix(key, prefix) && !strings.Contains(key[len(prefix):], "/") {
			collection[key[len(prefix):]] = raw
		}
	}
	if len(collection) == 0 {
		return nil, ErrNotFound
	}
	return json.Marshal(collection)
}

// notify fires subscribers of the changed record and of its parent
// collection. Callbacks are invoked outside the lock so they may call
// back into the store.
func (m *Memory) notify(path string) {
	targets := []string{path}
	if i := strings.LastIndex(path, "/"); i > 0 {
		targets = append(targets, path[:i])
	}
	for _, target := range targets {
		m.mu.Lock()
		ids := make([]int, 0, len(m.subs[target]))
		for id := range m.subs[target] {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		fns := make([]func(json.RawMessage), 0, len(ids))
		for _, id := range ids {
			fns = append(fns, m.subs[target][id])
		}
		value, err := m.snapshotLocked(target)
		m.mu.Unlock()
		if err == ErrNotFound {
			value = nil
		}
		for _, fn := range fns {
			fn(value)
		}
	}
}
