package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"typesync/pkg/logger"

	"github.com/lib/pq"
)

// NotifyChannel is the Postgres channel carrying changed record paths.
const NotifyChannel = "record_changed"

const schema = `
CREATE TABLE IF NOT EXISTS records (
	path       text PRIMARY KEY,
	value      jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
)`

// Postgres stores records as jsonb rows and delivers change
// notifications over LISTEN/NOTIFY. The listener may be nil for callers
// that never subscribe.
type Postgres struct {
	db        *sql.DB
	listener  *pq.Listener
	mu        sync.Mutex
	subs      map[string]map[int]func(json.RawMessage)
	nextSub   int
	listening bool
	done      chan struct{}
}

func NewPostgres(db *sql.DB, listener *pq.Listener) *Postgres {
	p := &Postgres{
		db:       db,
		listener: listener,
		subs:     make(map[string]map[int]func(json.RawMessage)),
		done:     make(chan struct{}),
	}
	if listener != nil {
		go p.dispatch()
	}
	return p
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

func (p *Postgres) Close() error {
	close(p.done)
	if p.listener != nil {
		return p.listener.Close()
	}
	return nil
}

func (p *Postgres) Read(ctx context.Context, path string) (json.RawMessage, error) {
	var value []byte
	err := p.db.QueryRowContext(ctx, "SELECT value FROM records WHERE path = $1", path).Scan(&value)
	if err == nil {
		return value, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}
	return p.readCollection(ctx, path)
}

func (p *Postgres) readCollection(ctx context.Context, path string) (json.RawMessage, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT path, value FROM records WHERE path LIKE $1 || '/%'", path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	collection := make(map[string]json.RawMessage)
	for rows.Next() {
		var recordPath string
		var value []byte
		if err := rows.Scan(&recordPath, &value); err != nil {
			return nil, err
		}
		id := recordPath[len(path)+1:]
		if strings.Contains(id, "/") {
			continue
		}
		collection[id] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(collection) == 0 {
		return nil, ErrNotFound
	}
	return json.Marshal(collection)
}

func (p *Postgres) Write(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return p.execNotify(ctx, path,
		`INSERT INTO records (path, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, raw)
}

func (p *Postgres) Merge(ctx context.Context, path string, fields map[string]any) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	// jsonb || is a shallow field merge, exactly the gateway contract.
	return p.execNotify(ctx, path,
		`INSERT INTO records (path, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (path) DO UPDATE SET value = records.value || EXCLUDED.value, updated_at = now()`, raw)
}

func (p *Postgres) Remove(ctx context.Context, path string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE path = $1", path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", NotifyChannel, path); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) execNotify(ctx context.Context, path, query string, value []byte) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, query, path, value); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", NotifyChannel, path); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) Subscribe(path string, fn func(json.RawMessage)) (Unsubscribe, error) {
	if p.listener == nil {
		return nil, errors.New("store: subscriptions require a listener")
	}
	p.mu.Lock()
	if !p.listening {
		if err := p.listener.Listen(NotifyChannel); err != nil {
			p.mu.Unlock()
			return nil, err
		}
		p.listening = true
	}
	if p.subs[path] == nil {
		p.subs[path] = make(map[int]func(json.RawMessage))
	}
	id := p.nextSub
	p.nextSub++
	p.subs[path][id] = fn
	p.mu.Unlock()

	current, err := p.Read(context.Background(), path)
	if err != nil && err != ErrNotFound {
		return nil, err
	}
	fn(current)

	return func() {
		p.mu.Lock()
		delete(p.subs[path], id)
		p.mu.Unlock()
	}, nil
}

func (p *Postgres) dispatch() {
	for {
		select {
		case n, ok := <-p.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Reconnect ping from the listener; nothing changed.
				continue
			}
			p.fanOut(n.Extra)
		case <-p.done:
			return
		}
	}
}

func (p *Postgres) fanOut(changed string) {
	targets := []string{changed}
	if i := strings.LastIndex(changed, "/"); i > 0 {
		targets = append(targets, changed[:i])
	}
	for _, target := range targets {
		p.mu.Lock()
		fns := make([]func(json.RawMessage), 0, len(p.subs[target]))
		for _, fn := range p.subs[target] {
			fns = append(fns, fn)
		}
		p.mu.Unlock()
		if len(fns) == 0 {
			continue
		}
		value, err := p.Read(context.Background(), target)
		if err == ErrNotFound {
			value = nil
		} else if err != nil {
			logger.Sugar.Errorf("Failed to reload %s after notification: %v", target, err)
			continue
		}
		for _, fn := range fns {
			fn(value)
		}
	}
}
