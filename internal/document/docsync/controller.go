package docsync

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"typesync/internal/document/model"
	"typesync/pkg/logger"
	"typesync/store"

	"github.com/google/uuid"
)

// DefaultDebounceWindow is the delay after the last local edit before
// the coalesced content write goes out.
const DefaultDebounceWindow = 500 * time.Millisecond

// Bookmark is an opaque selection marker owned by the editing surface.
type Bookmark any

// Editor is the editing surface the controller mirrors content into.
// How a bookmark survives a text it no longer fits is the editor's call.
type Editor interface {
	SetText(text string)
	SelectionBookmark() Bookmark
	RestoreSelection(bookmark Bookmark)
}

// Controller reconciles local edits on one open document with remote
// change notifications.
//
// Local edits are applied to the mirrored content immediately, then
// coalesced into a single store write after a quiet debounce window.
// Every write carries a tag naming this controller's client id and a
// monotonically increasing sequence; an incoming change tagged with this
// client at or below the last-sent sequence is the echo of our own write
// and is discarded. Anything else is adopted and pushed to the editor,
// preserving the selection bookmark across the text swap.
type Controller struct {
	st       store.Store
	path     string
	editor   Editor
	window   time.Duration
	clientID string
	ctx      context.Context
	cancel   context.CancelFunc

	mu      sync.Mutex
	content string
	seq     uint64 // last sequence assigned to a local edit
	sent    uint64 // sequence carried by the last issued write
	timer   *time.Timer
	unsub   store.Unsubscribe
	closed  bool
}

type Option func(*Controller)

func WithDebounceWindow(d time.Duration) Option {
	return func(c *Controller) { c.window = d }
}

// Open subscribes to the document and begins mirroring it into editor.
// The subscription's immediate initial delivery seeds the editor text.
// The caller owns the controller and must Close it when the view goes
// away; a leaked controller keeps a timer and a subscription alive.
func Open(ctx context.Context, st store.Store, documentID string, editor Editor, opts ...Option) (*Controller, error) {
	ctx, cancel := context.WithCancel(ctx)
	c := &Controller{
		st:       st,
		path:     model.DocumentPath(documentID),
		editor:   editor,
		window:   DefaultDebounceWindow,
		clientID: uuid.NewString(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(c)
	}

	unsub, err := st.Subscribe(c.path, c.onRemoteChange)
	if err != nil {
		cancel()
		return nil, err
	}
	c.mu.Lock()
	c.unsub = unsub
	c.mu.Unlock()
	return c, nil
}

// Content returns the last known document text.
func (c *Controller) Content() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content
}

// OnLocalEdit records a local edit. The mirrored content reflects it
// immediately; the store write waits out the debounce window, and each
// further edit restarts the clock.
func (c *Controller) OnLocalEdit(newContent string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.content = newContent
	c.seq++
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.window, c.flush)
}

func (c *Controller) flush() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	content := c.content
	seq := c.seq
	c.sent = seq
	c.timer = nil
	c.mu.Unlock()

	err := c.st.Merge(c.ctx, c.path, map[string]any{
		"content":      content,
		"lastModified": model.Timestamp(),
		"lastWriter":   model.WriterTag{Client: c.clientID, Seq: seq},
	})
	if err != nil {
		// Dropped on purpose: no retry, no rollback of the local content.
		logger.Sugar.Errorf("Failed to write content for %s: %v", c.path, err)
	}
}

func (c *Controller) onRemoteChange(raw json.RawMessage) {
	if raw == nil {
		// Document removed; keep showing the last known content.
		return
	}
	var doc model.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		logger.Sugar.Errorf("Bad change notification for %s: %v", c.path, err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if doc.LastWriter != nil && doc.LastWriter.Client == c.clientID && doc.LastWriter.Seq <= c.sent {
		c.mu.Unlock()
		return
	}
	c.content = doc.Content
	c.mu.Unlock()

	bookmark := c.editor.SelectionBookmark()
	c.editor.SetText(doc.Content)
	c.editor.RestoreSelection(bookmark)
}

// Close cancels the debounce timer and the change subscription. A write
// already in flight is cancelled through the controller context. Close
// is idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	unsub := c.unsub
	c.unsub = nil
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	c.cancel()
}
