// internal/editor/host/controller.go
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-editor/internal/browser/layout"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/geometry"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/guest"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/protocol"
)

// Fixed design canvas the initial fit is computed against. The guest lays
// documents out on the same canvas.
const (
	DesignWidth  = layout.DesignWidth
	DesignHeight = layout.DesignHeight
)

var (
	// ErrSuperseded fails a GetHTML whose guest was replaced before answering.
	ErrSuperseded = errors.New("guest instance was superseded")
	// ErrNotMounted is returned by operations that need a rehydrated guest.
	ErrNotMounted = errors.New("no document has been rehydrated")
)

// Origin says who authored a snapshot.
type Origin int

const (
	// OriginExternal snapshots come from the owner: initial loads, undo, redo.
	OriginExternal Origin = iota
	// OriginLocal snapshots were emitted by this controller from guest edits.
	OriginLocal
)

func (o Origin) String() string {
	if o == OriginLocal {
		return "local"
	}
	return "external"
}

// Snapshot is a complete artifact-free document tagged with its origin.
type Snapshot struct {
	Document string
	Origin   Origin
	// Instance is the guest that emitted a Local snapshot.
	Instance string
}

// Frame is the isolated document host the controller drives.
type Frame interface {
	Write(document string) error
	Post(protocol.Message) error
	Listen(protocol.Handler)
}

// Options configures a Controller. Callbacks run on the frame's delivery
// goroutine, never with the controller's lock held.
type Options struct {
	Logger *zap.Logger
	Frame  Frame
	// Runtime is the boot descriptor template; Instance is assigned per
	// rehydrate.
	Runtime guest.Config

	OnSave            func(Snapshot)
	OnScaleChange     func(float64)
	OnSelectionChange func(*protocol.SelectionProjection)
}

type htmlResult struct {
	document string
	err      error
}

// Controller owns the sandbox lifecycle and mediates everything crossing the
// message boundary.
type Controller struct {
	logger  *zap.Logger
	frame   Frame
	runtime guest.Config

	onSave      func(Snapshot)
	onScale     func(float64)
	onSelection func(*protocol.SelectionProjection)

	mu       sync.Mutex
	instance string
	script   string
	scale    float64
	waiters  []chan htmlResult
	closed   bool
}

// NewController wires a controller to its frame.
func NewController(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		logger:      logger.Named("host"),
		frame:       opts.Frame,
		runtime:     opts.Runtime,
		onSave:      opts.OnSave,
		onScale:     opts.OnScaleChange,
		onSelection: opts.OnSelectionChange,
		scale:       1,
	}
	c.frame.Listen(c.handle)
	return c
}

// Observe is called whenever the owner's snapshot changes. Local snapshots
// describe edits that are already live in the guest and never rehydrate, so
// a Local snapshot that arrives late cannot undo a newer External one. Only
// External snapshots replace the guest.
func (c *Controller) Observe(s Snapshot) error {
	if s.Origin == OriginLocal {
		c.logger.Debug("Ignoring local snapshot.")
		return nil
	}
	return c.Rehydrate(s.Document)
}

// Rehydrate discards the sandbox content and rebuilds it from document with
// a fresh runtime instance.
func (c *Controller) Rehydrate(document string) error {
	cfg := c.runtime
	cfg.Instance = uuid.NewString()
	script, err := RuntimeScript(cfg)
	if err != nil {
		return err
	}
	page := InjectRuntime(WrapDocument(document), script)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrNotMounted
	}
	// Claim the new instance first so nothing from the old one is accepted
	// while the frame swaps.
	c.instance = cfg.Instance
	c.script = script
	stale := c.waiters
	c.waiters = nil
	scale := c.scale
	c.mu.Unlock()

	for _, w := range stale {
		w <- htmlResult{err: ErrSuperseded}
	}

	if err := c.frame.Write(page); err != nil {
		return fmt.Errorf("rehydrating sandbox: %w", err)
	}
	c.logger.Debug("Rehydrated.", zap.String("instance", cfg.Instance), zap.Int("bytes", len(document)))

	// A fresh guest starts at scale 1; it must convert pointer deltas with
	// the zoom actually on screen.
	c.post(protocol.KindUpdateScale, protocol.ScalePayload{Value: scale})
	return nil
}

// Instance is the id of the guest currently accepted.
func (c *Controller) Instance() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instance
}

// Mount computes the initial fit of the design canvas into the viewport,
// propagates it to the guest and reports it upward.
func (c *Controller) Mount(viewportWidth, viewportHeight float64) float64 {
	scale := geometry.FitScale(viewportWidth, viewportHeight, DesignWidth, DesignHeight)
	c.mu.Lock()
	c.scale = scale
	c.mu.Unlock()

	c.post(protocol.KindUpdateScale, protocol.ScalePayload{Value: scale})
	if c.onScale != nil {
		c.onScale(scale)
	}
	return scale
}

// SetScale propagates an owner-driven zoom change.
func (c *Controller) SetScale(v float64) float64 {
	v = geometry.ClampViewportScale(v)
	c.mu.Lock()
	changed := v != c.scale
	c.scale = v
	c.mu.Unlock()

	if changed {
		c.post(protocol.KindUpdateScale, protocol.ScalePayload{Value: v})
	}
	return v
}

// Scale is the current viewport zoom.
func (c *Controller) Scale() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scale
}

// -- imperative command surface --

// UpdateStyle merges props into the selection's inline style.
func (c *Controller) UpdateStyle(props map[string]string) {
	c.post(protocol.KindUpdateStyle, protocol.StylePayload(props))
}

// UpdateContent replaces the selection's text.
func (c *Controller) UpdateContent(text string) {
	c.post(protocol.KindUpdateContent, protocol.ContentPayload{Text: text})
}

// UpdateAttribute sets one attribute on the selection, or on the image of a
// selected wrapper for image attributes.
func (c *Controller) UpdateAttribute(key, val string) {
	c.post(protocol.KindUpdateAttribute, protocol.AttributePayload{Key: key, Val: val})
}

// InsertElement adds a new element of kind to the canvas. Only "img" is
// supported; src must pass the guest's image policy.
func (c *Controller) InsertElement(kind, src string) {
	c.post(protocol.KindInsertElement, protocol.InsertPayload{Type: kind, Src: src})
}

// UpdateTransform nudges the selection; a nil scale leaves it unchanged.
func (c *Controller) UpdateTransform(dx, dy float64, scale *float64) {
	c.post(protocol.KindUpdateTransform, protocol.TransformPayload{DX: dx, DY: dy, Scale: scale})
}

// ChangeLayer moves the selection one z-index step up or down.
func (c *Controller) ChangeLayer(dir protocol.LayerDirection) {
	c.post(protocol.KindLayer, protocol.LayerPayload{Direction: dir})
}

// Duplicate inserts an offset copy of the selection after it and selects it.
func (c *Controller) Duplicate() { c.post(protocol.KindDuplicate, nil) }

// DeleteElement detaches the selection.
func (c *Controller) DeleteElement() { c.post(protocol.KindDelete, nil) }

// Deselect clears the selection, ending any text edit.
func (c *Controller) Deselect() { c.post(protocol.KindDeselectForce, nil) }

// GetHTML asks the guest for its current clean document and waits for the
// answer. Requests are answered in order.
func (c *Controller) GetHTML(ctx context.Context) (string, error) {
	w := make(chan htmlResult, 1)
	c.mu.Lock()
	if c.instance == "" {
		c.mu.Unlock()
		return "", ErrNotMounted
	}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	if err := c.send(protocol.KindGetHTML, nil); err != nil {
		c.dropWaiter(w)
		return "", err
	}
	select {
	case r := <-w:
		return r.document, r.err
	case <-ctx.Done():
		// The slot stays queued so later answers still pair up in order.
		return "", ctx.Err()
	}
}

func (c *Controller) dropWaiter(w chan htmlResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, x := range c.waiters {
		if x == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

// Close fails outstanding GetHTML calls. The frame is owned by the caller.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	stale := c.waiters
	c.waiters = nil
	c.mu.Unlock()
	for _, w := range stale {
		w <- htmlResult{err: ErrSuperseded}
	}
}

func (c *Controller) post(kind protocol.Kind, payload any) {
	if err := c.send(kind, payload); err != nil {
		c.logger.Debug("Command not delivered.", zap.String("type", string(kind)), zap.Error(err))
	}
}

func (c *Controller) send(kind protocol.Kind, payload any) error {
	msg, err := protocol.New(kind, payload)
	if err != nil {
		return err
	}
	return c.frame.Post(msg)
}

// handle receives every guest -> host message.
func (c *Controller) handle(msg protocol.Message) {
	c.mu.Lock()
	current := c.instance
	c.mu.Unlock()
	if msg.Instance != current {
		c.logger.Debug("Dropping message from superseded guest.",
			zap.String("type", string(msg.Type)), zap.String("from", msg.Instance))
		return
	}

	switch msg.Type {
	case protocol.KindSelected:
		var p protocol.SelectionProjection
		if err := msg.Decode(&p); err != nil {
			c.logger.Warn("Bad selection payload.", zap.Error(err))
			return
		}
		if c.onSelection != nil {
			c.onSelection(&p)
		}
	case protocol.KindDeselect:
		if c.onSelection != nil {
			c.onSelection(nil)
		}
	case protocol.KindHistoryUpdate:
		c.relayHistory(msg)
	case protocol.KindHTMLResult:
		c.answerHTML(msg)
	default:
		c.logger.Debug("Ignoring unexpected message.", zap.String("type", string(msg.Type)))
	}
}

func (c *Controller) relayHistory(msg protocol.Message) {
	var p protocol.DocumentPayload
	if err := msg.Decode(&p); err != nil {
		c.logger.Warn("Bad history payload.", zap.Error(err))
		return
	}
	c.mu.Lock()
	doc := StripRuntime(p.Document, c.script)
	c.mu.Unlock()

	if c.onSave != nil {
		c.onSave(Snapshot{Document: doc, Origin: OriginLocal, Instance: msg.Instance})
	}
}

func (c *Controller) answerHTML(msg protocol.Message) {
	var p protocol.DocumentPayload
	err := msg.Decode(&p)

	c.mu.Lock()
	if len(c.waiters) == 0 {
		c.mu.Unlock()
		c.logger.Debug("Unrequested HTML result dropped.")
		return
	}
	w := c.waiters[0]
	c.waiters = c.waiters[1:]
	doc := StripRuntime(p.Document, c.script)
	c.mu.Unlock()

	w <- htmlResult{document: doc, err: err}
}
