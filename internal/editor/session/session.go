// internal/editor/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-editor/internal/browser/imageload"
	"github.com/xkilldash9x/scalpel-editor/internal/browser/style"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/guest"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/history"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/host"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/panel"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/protocol"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/sandbox"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session is closed")

// UpdateKind says what an Update carries.
type UpdateKind int

const (
	// UpdateDocument carries a new authoritative document.
	UpdateDocument UpdateKind = iota
	// UpdateSelection carries the guest's selection; nil when cleared.
	UpdateSelection
	// UpdateScale carries the viewport zoom.
	UpdateScale
	// UpdatePanel carries the properties form state.
	UpdatePanel
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateDocument:
		return "document"
	case UpdateSelection:
		return "selection"
	case UpdateScale:
		return "scale"
	case UpdatePanel:
		return "panel"
	}
	return "unknown"
}

// Update is one change pushed to subscribers.
type Update struct {
	Kind      UpdateKind
	Document  string
	Origin    host.Origin
	Selection *protocol.SelectionProjection
	Fields    *panel.Fields
	Scale     float64
	CanUndo   bool
	CanRedo   bool
}

// Subscriber receives updates. It is called from the session's delivery
// goroutines and must not block.
type Subscriber func(Update)

// Options configures a Session.
type Options struct {
	Logger       *zap.Logger
	Runtime      guest.Config
	HistoryDepth int
	Prober       imageload.Prober
	Styles       *style.Engine
}

// Session is one editor: a sandbox, the controller driving it, the document
// store that owns the authoritative snapshot and the properties panel.
type Session struct {
	id     string
	logger *zap.Logger

	sandbox *sandbox.Sandbox
	ctrl    *host.Controller
	store   *history.Store
	panel   *panel.Panel

	mu     sync.Mutex
	subs   map[int]Subscriber
	nextID int
	closed bool

	// travelMu orders Load, Undo and Redo against each other.
	travelMu sync.Mutex
	// docMu orders store writes. superseded is the guest an External
	// snapshot is replacing; its saves no longer describe the store's lineage.
	docMu      sync.Mutex
	superseded string
}

// New builds a session with an empty document. Nothing is rendered until
// Load.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	logger = logger.Named("session").With(zap.String("session_id", id))

	s := &Session{
		id:     id,
		logger: logger,
		store:  history.NewStore("", opts.HistoryDepth),
		subs:   make(map[int]Subscriber),
	}
	s.sandbox = sandbox.New(sandbox.Options{Logger: logger, Prober: opts.Prober, Styles: opts.Styles})
	s.ctrl = host.NewController(host.Options{
		Logger:            logger,
		Frame:             s.sandbox,
		Runtime:           opts.Runtime,
		OnSave:            s.onSave,
		OnScaleChange:     s.onScale,
		OnSelectionChange: s.onSelection,
	})
	s.panel = panel.New(logger, s.ctrl, s.onPanel)
	return s
}

// ID is the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Controller exposes the command surface.
func (s *Session) Controller() *host.Controller { return s.ctrl }

// Panel exposes the properties panel.
func (s *Session) Panel() *panel.Panel { return s.panel }

// Subscribe registers fn and returns a function that removes it.
func (s *Session) Subscribe(fn Subscriber) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Session) publish(u Update) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	subs := make([]Subscriber, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(u)
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Load replaces the document and starts a fresh history at it.
func (s *Session) Load(document string) error {
	if s.isClosed() {
		return ErrClosed
	}
	err := s.travel(func() (string, error) {
		s.store.Reset(document)
		return document, nil
	})
	if err != nil {
		return fmt.Errorf("loading document: %w", err)
	}
	s.logger.Info("Document loaded.", zap.Int("bytes", len(document)))
	return nil
}

// Document is the authoritative snapshot.
func (s *Session) Document() string { return s.store.Current() }

// Undo restores the previous snapshot and rehydrates the sandbox from it.
func (s *Session) Undo() error {
	return s.travel(s.store.Undo)
}

// Redo reapplies the next snapshot.
func (s *Session) Redo() error {
	return s.travel(s.store.Redo)
}

// travel moves the store with step and rehydrates the guest from the result.
// The running guest is marked superseded in the same critical section as the
// store move, so none of its saves can land on top of the new snapshot.
// Document updates are published in store order.
func (s *Session) travel(step func() (string, error)) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.travelMu.Lock()
	defer s.travelMu.Unlock()

	s.docMu.Lock()
	doc, err := step()
	if err != nil {
		s.docMu.Unlock()
		return err
	}
	previous := s.ctrl.Instance()
	s.superseded = previous
	s.publishDocument(doc, host.OriginExternal)
	s.docMu.Unlock()

	if err := s.ctrl.Observe(host.Snapshot{Document: doc, Origin: host.OriginExternal}); err != nil {
		s.docMu.Lock()
		if s.ctrl.Instance() == previous {
			s.superseded = ""
		}
		s.docMu.Unlock()
		return fmt.Errorf("restoring snapshot: %w", err)
	}
	return nil
}

func (s *Session) publishDocument(doc string, origin host.Origin) {
	s.publish(Update{
		Kind:     UpdateDocument,
		Document: doc,
		Origin:   origin,
		CanUndo:  s.store.CanUndo(),
		CanRedo:  s.store.CanRedo(),
	})
}

// Mount fits the design canvas into the viewport.
func (s *Session) Mount(viewportWidth, viewportHeight float64) float64 {
	return s.ctrl.Mount(viewportWidth, viewportHeight)
}

// SetScale changes the zoom and reports the value actually applied.
func (s *Session) SetScale(v float64) float64 {
	applied := s.ctrl.SetScale(v)
	s.onScale(applied)
	return applied
}

// Dispatch delivers native input to the sandbox.
func (s *Session) Dispatch(ev sandbox.Event) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.sandbox.Dispatch(ev)
}

// State reports the guest's interaction state.
func (s *Session) State() (guest.State, error) { return s.sandbox.State() }

// HTML asks the guest for its live clean document.
func (s *Session) HTML(ctx context.Context) (string, error) { return s.ctrl.GetHTML(ctx) }

// Settle waits until everything sent to the guest so far has been handled
// and every resulting update has been published.
func (s *Session) Settle(ctx context.Context) error {
	return s.sandbox.Settle(ctx)
}

// Commit saves any edit still inside the debounce window, then settles.
func (s *Session) Commit(ctx context.Context) error {
	// Commands still in the port must land before the flush.
	if err := s.Settle(ctx); err != nil {
		return err
	}
	if err := s.sandbox.FlushHistory(); err != nil {
		return err
	}
	return s.Settle(ctx)
}

// Close tears the session down. Subscribers receive nothing further.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.subs = nil
	s.mu.Unlock()

	s.ctrl.Close()
	s.sandbox.Close()
	s.logger.Debug("Session closed.")
}

func (s *Session) onSave(snap host.Snapshot) {
	s.docMu.Lock()
	stale := snap.Instance == s.superseded || snap.Instance != s.ctrl.Instance()
	if !stale && s.store.Save(snap.Document) {
		s.publishDocument(snap.Document, snap.Origin)
	}
	s.docMu.Unlock()

	if stale {
		s.logger.Debug("Dropping save from superseded guest.", zap.String("instance", snap.Instance))
		return
	}
	// The store hands the new snapshot back down like any owner would; a
	// Local snapshot keeps the live guest.
	if err := s.ctrl.Observe(snap); err != nil {
		s.logger.Warn("Failed to observe saved snapshot.", zap.Error(err))
	}
}

func (s *Session) onScale(v float64) {
	s.publish(Update{Kind: UpdateScale, Scale: v})
}

func (s *Session) onSelection(sel *protocol.SelectionProjection) {
	s.publish(Update{Kind: UpdateSelection, Selection: sel})
	s.panel.Show(sel)
}

func (s *Session) onPanel(f *panel.Fields) {
	s.publish(Update{Kind: UpdatePanel, Fields: f})
}
