// internal/editor/guest/runtime.go
package guest

import (
	"context"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-editor/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-editor/internal/browser/imageload"
	"github.com/xkilldash9x/scalpel-editor/internal/browser/style"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/debounce"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/geometry"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/protocol"
)

// Scheduler runs tasks on the runtime's goroutine, in order.
type Scheduler interface {
	Enqueue(fn func()) error
}

// Outbound carries guest -> host messages.
type Outbound interface {
	Post(protocol.Message) error
}

// Options wires a Runtime to its sandbox.
type Options struct {
	Logger    *zap.Logger
	Document  *html.Node
	Config    Config
	Out       Outbound
	Scheduler Scheduler
	Prober    imageload.Prober
	Styles    *style.Engine
}

// gesture is the start state of a drag or resize, captured at pointer-down.
type gesture struct {
	startX, startY float64
	scale          float64
	transform      geometry.Transform
	box            geometry.Box
	handle         geometry.Handle
}

// Runtime is the interaction controller of one sandbox instance. It owns the
// document tree exclusively. Every method must be called from the
// Scheduler's goroutine; the only exceptions are WaitLoads and Instance.
type Runtime struct {
	logger *zap.Logger
	cfg    Config
	doc    *html.Node
	canvas *html.Node
	out    Outbound
	sched  Scheduler
	prober imageload.Prober
	styles *style.Engine
	policy *SourcePolicy

	history *debounce.Debouncer
	ctx     context.Context
	cancel  context.CancelFunc
	loads   sync.WaitGroup

	state     State
	selection Selectable
	hover     *html.Node
	scale     float64
	gesture   gesture
	editText  string
	disposed  bool
}

// New boots a runtime over doc. It installs the affordance sheet and
// resolves the canvas root; it emits nothing until input or a command
// arrives.
func New(opts Options) *Runtime {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := opts.Config.withDefaults()
	styles := opts.Styles
	if styles == nil {
		styles = style.NewEngine(logger)
	}
	ctx, cancel := context.WithCancel(context.Background())

	r := &Runtime{
		logger: logger.Named("guest").With(zap.String("instance", cfg.Instance)),
		cfg:    cfg,
		doc:    opts.Document,
		out:    opts.Out,
		sched:  opts.Scheduler,
		prober: opts.Prober,
		styles: styles,
		policy: NewSourcePolicy(),
		ctx:    ctx,
		cancel: cancel,
		state:  Idle,
		scale:  1,
	}
	r.history = debounce.New(cfg.Window(), func() {
		if err := r.sched.Enqueue(r.emitHistory); err != nil {
			r.logger.Debug("History snapshot dropped.", zap.Error(err))
		}
	})
	r.canvas = r.resolveCanvas()
	installArtifactSheet(r.doc)
	return r
}

func (r *Runtime) resolveCanvas() *html.Node {
	if r.cfg.Canvas != "" {
		sel, err := cascadia.Compile(r.cfg.Canvas)
		if err != nil {
			r.logger.Warn("Invalid canvas selector; using body.", zap.String("selector", r.cfg.Canvas), zap.Error(err))
		} else if n := sel.MatchFirst(r.doc); n != nil {
			return n
		}
	}
	return dom.Body(r.doc)
}

// Instance is the id carried on every outbound message.
func (r *Runtime) Instance() string { return r.cfg.Instance }

// State reports the current interaction state.
func (r *Runtime) State() State { return r.state }

// Selection returns the current selection, nil when Idle.
func (r *Runtime) Selection() Selectable { return r.selection }

// Scale is the viewport zoom last received from the host.
func (r *Runtime) Scale() float64 { return r.scale }

// Document exposes the live tree to the owning sandbox.
func (r *Runtime) Document() *html.Node { return r.doc }

// Canvas is the container insertions append to.
func (r *Runtime) Canvas() *html.Node { return r.canvas }

// Snapshot renders the document without editor artifacts.
func (r *Runtime) Snapshot() (string, error) {
	return cleanSnapshot(r.doc)
}

// FlushHistory emits a pending debounced snapshot now. It reports whether one
// was pending.
func (r *Runtime) FlushHistory() bool {
	return r.history.Flush()
}

// WaitLoads blocks until every in-flight image probe has handed its result
// to the scheduler. Safe from any goroutine.
func (r *Runtime) WaitLoads() {
	r.loads.Wait()
}

// Dispose stops the debounce timer and abandons pending image loads. A
// disposed runtime ignores all further input.
func (r *Runtime) Dispose() {
	if r.disposed {
		return
	}
	r.disposed = true
	r.history.Stop()
	r.cancel()
}

// HandleMessage applies one host command.
func (r *Runtime) HandleMessage(msg protocol.Message) {
	if r.disposed {
		return
	}
	h, ok := commands[msg.Type]
	if !ok {
		r.logger.Debug("Ignoring message with no guest handler.", zap.String("type", string(msg.Type)))
		return
	}
	h(r, msg)
}

// -- selection --

// isRoot reports targets whose click clears the selection.
func (r *Runtime) isRoot(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return true
	}
	if n == r.canvas {
		return true
	}
	return dom.IsElement(n, "html", "body", "head")
}

// classify turns a click target into the unit of manipulation, wrapping a
// bare image on first contact.
func (r *Runtime) classify(target *html.Node) Selectable {
	for n := target; n != nil; n = n.Parent {
		if isWrapper(n) {
			return ImageWrapper{Wrapper: n, Image: firstImage(n)}
		}
		if n == r.canvas {
			break
		}
	}
	if dom.IsElement(target, "img") {
		return r.wrapImage(target)
	}
	return PlainElement{Node: target}
}

func (r *Runtime) sameSelection(s Selectable) bool {
	return r.selection != nil && s != nil && r.selection.Element() == s.Element()
}

// selectItem makes s the only selected element and reports it.
func (r *Runtime) selectItem(s Selectable) {
	if !r.sameSelection(s) {
		r.clearSelectionMarks()
		el := s.Element()
		if r.hover == el {
			r.clearHover()
		}
		dom.SetAttr(el, AttrSelected, "")
		attachHandles(el)
	}
	r.selection = s
	r.state = Selected
	r.emitSelected()
}

func (r *Runtime) clearSelectionMarks() {
	if r.selection == nil {
		return
	}
	el := r.selection.Element()
	dom.RemoveAttr(el, AttrSelected)
	detachHandles(el)
}

// deselect ends any edit, clears the selection and reports DESELECT. It is
// silent when already Idle.
func (r *Runtime) deselect() {
	if r.state == EditingText {
		r.endEditing()
	}
	if r.selection == nil {
		r.state = Idle
		return
	}
	r.clearSelectionMarks()
	r.selection = nil
	r.state = Idle
	r.post(protocol.KindDeselect, nil)
}

// -- emission --

func (r *Runtime) emitSelected() {
	if r.selection == nil {
		return
	}
	r.post(protocol.KindSelected, r.project(r.selection))
}

// commit re-reports the selection and schedules a history snapshot. Every
// mutation ends here.
func (r *Runtime) commit() {
	r.emitSelected()
	r.history.Trigger()
}

func (r *Runtime) emitHistory() {
	if r.disposed {
		return
	}
	doc, err := r.Snapshot()
	if err != nil {
		r.logger.Warn("Failed to capture history snapshot.", zap.Error(err))
		return
	}
	r.post(protocol.KindHistoryUpdate, protocol.DocumentPayload{Document: doc})
}

func (r *Runtime) post(kind protocol.Kind, payload any) {
	msg, err := protocol.New(kind, payload)
	if err != nil {
		r.logger.Warn("Failed to build message.", zap.String("type", string(kind)), zap.Error(err))
		return
	}
	msg.Instance = r.cfg.Instance
	if err := r.out.Post(msg); err != nil {
		r.logger.Debug("Outbound message dropped.", zap.String("type", string(kind)), zap.Error(err))
	}
}

// -- helpers --

func (r *Runtime) isSelectedOrInside(n *html.Node) bool {
	return r.selection != nil && dom.Contains(r.selection.Element(), n)
}

func (r *Runtime) clearHover() {
	if r.hover != nil {
		dom.RemoveAttr(r.hover, AttrHover)
		r.hover = nil
	}
}

func keyIs(key string, names ...string) bool {
	for _, n := range names {
		if strings.EqualFold(key, n) {
			return true
		}
	}
	return false
}
