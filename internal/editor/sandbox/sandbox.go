// internal/editor/sandbox/sandbox.go
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-editor/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-editor/internal/browser/imageload"
	"github.com/xkilldash9x/scalpel-editor/internal/browser/style"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/eventloop"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/guest"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/protocol"
)

var (
	// ErrClosed is returned once the sandbox has been closed.
	ErrClosed = errors.New("sandbox is closed")
	// ErrNoRuntime is returned when the written document carried no runtime
	// script, so nothing inside the sandbox can receive commands or input.
	ErrNoRuntime = errors.New("sandbox has no running runtime")
)

// Options configures a Sandbox.
type Options struct {
	Logger *zap.Logger
	// Prober measures inserted images. Defaults to an imageload.Loader.
	Prober imageload.Prober
	// Styles is shared by every runtime this sandbox boots.
	Styles *style.Engine
}

// Sandbox is an isolated document host. It parses whatever document it is
// given into a tree it alone owns and boots the runtime the document's boot
// script describes. The outside world reaches the tree only through the
// message pipe and input dispatch. Each Write discards the previous tree and
// runtime entirely.
type Sandbox struct {
	logger *zap.Logger
	prober imageload.Prober
	styles *style.Engine

	mu       sync.Mutex
	current  *instance
	listener protocol.Handler
	writes   int
	closed   bool
}

// instance is one written document and its runtime.
type instance struct {
	id   string
	loop *eventloop.Loop
	pipe *protocol.Pipe
	doc  *html.Node
	rt   *guest.Runtime // set before the instance is published
}

// New creates an empty sandbox.
func New(opts Options) *Sandbox {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("sandbox")
	prober := opts.Prober
	if prober == nil {
		prober = imageload.NewLoader(logger, 0, 0)
	}
	styles := opts.Styles
	if styles == nil {
		styles = style.NewEngine(logger)
	}
	return &Sandbox{logger: logger, prober: prober, styles: styles}
}

// Listen installs the handler for guest -> host messages. It applies to the
// current instance and to every instance booted later.
func (s *Sandbox) Listen(h protocol.Handler) {
	s.mu.Lock()
	s.listener = h
	s.mu.Unlock()
}

func (s *Sandbox) deliver(msg protocol.Message) {
	s.mu.Lock()
	h := s.listener
	s.mu.Unlock()
	if h != nil {
		h(msg)
	}
}

// Write replaces the sandbox content with document. The previous runtime is
// disposed before the new tree is parsed; its undelivered messages are
// dropped. A document without a runtime script is hosted inert.
func (s *Sandbox) Write(document string) error {
	doc, err := dom.Parse(document)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	old := s.current
	s.current = nil
	s.writes++
	s.mu.Unlock()

	if old != nil {
		s.dispose(old)
	}

	inst, err := s.boot(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.dispose(inst)
		return ErrClosed
	}
	s.current = inst
	s.mu.Unlock()
	return nil
}

func (s *Sandbox) boot(doc *html.Node) (*instance, error) {
	inst := &instance{doc: doc}
	script := findRuntimeScript(doc)
	if script == nil {
		s.logger.Info("Document has no runtime script; hosting it inert.")
		return inst, nil
	}
	cfg, err := guest.DecodeConfig(strings.TrimSpace(dom.TextContent(script, nil)))
	if err != nil {
		return nil, fmt.Errorf("booting runtime: %w", err)
	}

	inst.id = cfg.Instance
	logger := s.logger.With(zap.String("instance", cfg.Instance))
	inst.loop = eventloop.New(logger, "loop")
	inst.pipe = protocol.NewPipe(logger)
	inst.pipe.ToHost.Listen(s.deliver)

	err = inst.loop.Enqueue(func() {
		inst.rt = guest.New(guest.Options{
			Logger:    s.logger,
			Document:  doc,
			Config:    cfg,
			Out:       inst.pipe.ToHost,
			Scheduler: inst.loop,
			Prober:    s.prober,
			Styles:    s.styles,
		})
	})
	if err == nil {
		err = inst.loop.Sync()
	}
	if err != nil {
		s.dispose(inst)
		return nil, fmt.Errorf("booting runtime: %w", err)
	}

	inst.pipe.ToGuest.Listen(func(msg protocol.Message) {
		if qerr := inst.loop.Enqueue(func() { inst.rt.HandleMessage(msg) }); qerr != nil {
			logger.Debug("Command dropped; runtime gone.", zap.String("type", string(msg.Type)))
		}
	})
	logger.Debug("Runtime booted.")
	return inst, nil
}

// findRuntimeScript returns the last boot script in doc. The host appends its
// own at the end of the body, so it wins over any stale copy.
func findRuntimeScript(doc *html.Node) *html.Node {
	scripts := htmlquery.Find(doc, "//script")
	for i := len(scripts) - 1; i >= 0; i-- {
		n := scripts[i]
		if dom.HasAttr(n, guest.AttrRuntime) {
			return n
		}
		if t, _ := dom.Attr(n, "type"); t == guest.RuntimeScriptType {
			return n
		}
	}
	return nil
}

// dispose stops an instance's runtime and releases its goroutines.
func (s *Sandbox) dispose(inst *instance) {
	if inst.loop == nil {
		return
	}
	inst.pipe.ToGuest.Close()
	dispose := func() {
		if inst.rt != nil {
			inst.rt.Dispose()
		}
	}
	if err := inst.loop.Enqueue(dispose); err == nil {
		_ = inst.loop.Sync()
	}
	if inst.rt != nil {
		inst.rt.WaitLoads()
	}
	inst.loop.Close()
	inst.pipe.ToHost.Close()
}

func (s *Sandbox) active() (*instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.current == nil || s.current.loop == nil {
		return nil, ErrNoRuntime
	}
	return s.current, nil
}

// Instance is the id of the running runtime, empty when none runs.
func (s *Sandbox) Instance() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.id
}

// Writes counts how many documents have been written.
func (s *Sandbox) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Post sends a host command to the running runtime.
func (s *Sandbox) Post(msg protocol.Message) error {
	inst, err := s.active()
	if err != nil {
		return err
	}
	return inst.pipe.ToGuest.Post(msg)
}

// Event is native input addressed by selector. Target may be CSS or XPath;
// it may be empty for input that needs no target (moves, key presses).
type Event struct {
	Kind   guest.EventKind
	Target string
	X, Y   float64
	Key    string
	Text   string
}

// Dispatch delivers input to the runtime and waits until it has been
// handled. Commands posted earlier are handled first. Messages the runtime
// emits in response still arrive asynchronously.
func (s *Sandbox) Dispatch(ev Event) error {
	inst, err := s.active()
	if err != nil {
		return err
	}
	if err := inst.pipe.ToGuest.Flush(); err != nil {
		return ErrNoRuntime
	}
	result := make(chan error, 1)
	err = inst.loop.Enqueue(func() {
		var target *html.Node
		if ev.Target != "" {
			n, qerr := dom.Query(inst.rt.Document(), ev.Target)
			if qerr != nil {
				result <- qerr
				return
			}
			target = n
		}
		inst.rt.Dispatch(guest.Event{
			Kind:    ev.Kind,
			Target:  target,
			ClientX: ev.X,
			ClientY: ev.Y,
			Key:     ev.Key,
			Text:    ev.Text,
		})
		result <- nil
	})
	if err != nil {
		return fmt.Errorf("dispatching %s: %w", ev.Kind, ErrNoRuntime)
	}
	select {
	case err := <-result:
		return err
	case <-inst.loop.Done():
		return ErrClosed
	}
}

// State reports the runtime's interaction state.
func (s *Sandbox) State() (guest.State, error) {
	var st guest.State
	err := s.onLoop(func(rt *guest.Runtime) { st = rt.State() })
	return st, err
}

// Snapshot renders the live tree without editor artifacts.
func (s *Sandbox) Snapshot() (string, error) {
	var (
		doc  string
		serr error
	)
	if err := s.onLoop(func(rt *guest.Runtime) { doc, serr = rt.Snapshot() }); err != nil {
		return "", err
	}
	return doc, serr
}

// FlushHistory makes the runtime emit a pending history snapshot now rather
// than at the end of its debounce window.
func (s *Sandbox) FlushHistory() error {
	return s.onLoop(func(rt *guest.Runtime) { rt.FlushHistory() })
}

// Settle waits until every command posted so far has been handled, every
// image probe has landed, and everything the runtime emitted in response has
// been delivered to the listener.
func (s *Sandbox) Settle(ctx context.Context) error {
	inst, err := s.active()
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		steps := []func() error{
			inst.pipe.ToGuest.Flush,
			inst.loop.Sync,
			func() error {
				inst.rt.WaitLoads()
				return nil
			},
			inst.loop.Sync,
			inst.pipe.ToHost.Flush,
		}
		for _, step := range steps {
			if err := step(); err != nil {
				done <- fmt.Errorf("settling sandbox: %w", err)
				return
			}
		}
		done <- nil
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sandbox) onLoop(fn func(*guest.Runtime)) error {
	inst, err := s.active()
	if err != nil {
		return err
	}
	if err := inst.loop.Enqueue(func() { fn(inst.rt) }); err != nil {
		return ErrNoRuntime
	}
	if err := inst.loop.Sync(); err != nil {
		return ErrNoRuntime
	}
	return nil
}

// Close disposes the current instance. The sandbox accepts no further
// writes.
func (s *Sandbox) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	inst := s.current
	s.current = nil
	s.mu.Unlock()

	if inst != nil {
		s.dispose(inst)
	}
	s.logger.Debug("Sandbox closed.")
}
