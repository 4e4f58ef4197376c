package host

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-editor/internal/editor/geometry"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/guest"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/protocol"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/sandbox"
)

// fakeFrame records what the controller writes and posts and lets a test
// play the guest.
type fakeFrame struct {
	mu       sync.Mutex
	written  []string
	posted   []protocol.Message
	handler  protocol.Handler
	writeErr error
}

func (f *fakeFrame) Write(doc string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.written = append(f.written, doc)
	return nil
}

func (f *fakeFrame) Post(m protocol.Message) error {
	f.mu.Lock()
	f.posted = append(f.posted, m)
	f.mu.Unlock()
	return nil
}

func (f *fakeFrame) Listen(h protocol.Handler) { f.handler = h }

func (f *fakeFrame) emit(instance string, kind protocol.Kind, payload any) {
	m := protocol.MustNew(kind, payload)
	m.Instance = instance
	f.handler(m)
}

func (f *fakeFrame) writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func (f *fakeFrame) postedKinds() []protocol.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Kind
	for _, m := range f.posted {
		out = append(out, m.Type)
	}
	return out
}

func (f *fakeFrame) lastPosted() protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.posted[len(f.posted)-1]
}

type owner struct {
	mu        sync.Mutex
	saves     []Snapshot
	scales    []float64
	selection []*protocol.SelectionProjection
}

func (o *owner) options(t *testing.T, frame Frame) Options {
	return Options{
		Logger:  zaptest.NewLogger(t),
		Frame:   frame,
		Runtime: guest.DefaultConfig(),
		OnSave: func(s Snapshot) {
			o.mu.Lock()
			o.saves = append(o.saves, s)
			o.mu.Unlock()
		},
		OnScaleChange: func(v float64) {
			o.mu.Lock()
			o.scales = append(o.scales, v)
			o.mu.Unlock()
		},
		OnSelectionChange: func(p *protocol.SelectionProjection) {
			o.mu.Lock()
			o.selection = append(o.selection, p)
			o.mu.Unlock()
		},
	}
}

func (o *owner) lastSave() (Snapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.saves) == 0 {
		return Snapshot{}, false
	}
	return o.saves[len(o.saves)-1], true
}

func TestRehydrateWritesWrappedDocumentWithRuntime(t *testing.T) {
	f := &fakeFrame{}
	c := NewController((&owner{}).options(t, f))

	require.NoError(t, c.Rehydrate("<p>hi</p>"))
	w := f.writes()
	require.Len(t, w, 1)
	assert.True(t, strings.HasPrefix(w[0], "<!DOCTYPE html>"))
	assert.Contains(t, w[0], `<p>hi</p><script type="application/x-editor-runtime"`)
	assert.Contains(t, w[0], `"instance":"`+c.Instance()+`"`)
	assert.True(t, strings.HasSuffix(w[0], "</body></html>"))

	assert.Equal(t, []protocol.Kind{protocol.KindUpdateScale}, f.postedKinds(), "scale is re-posted to the fresh guest")

	first := c.Instance()
	require.NoError(t, c.Rehydrate("<p>hi</p>"))
	assert.NotEqual(t, first, c.Instance(), "every rehydrate boots a new instance")
}

func TestRehydrateWriteFailure(t *testing.T) {
	f := &fakeFrame{writeErr: errors.New("boom")}
	c := NewController((&owner{}).options(t, f))
	assert.ErrorContains(t, c.Rehydrate("<p>x</p>"), "boom")
}

func TestObserveOriginRule(t *testing.T) {
	f := &fakeFrame{}
	o := &owner{}
	c := NewController(o.options(t, f))
	require.NoError(t, c.Observe(Snapshot{Document: "<p>v1</p>", Origin: OriginExternal}))
	id := c.Instance()

	f.emit(id, protocol.KindHistoryUpdate, protocol.DocumentPayload{Document: "<p>v2</p>"})
	saved, ok := o.lastSave()
	require.True(t, ok)
	assert.Equal(t, Snapshot{Document: "<p>v2</p>", Origin: OriginLocal, Instance: id}, saved)

	// The owner feeds our own emission back: no rehydrate.
	require.NoError(t, c.Observe(saved))
	assert.Len(t, f.writes(), 1)
	assert.Equal(t, id, c.Instance())

	// Local snapshots never rehydrate, whatever their text.
	require.NoError(t, c.Observe(saved))
	require.NoError(t, c.Observe(Snapshot{Document: "<p>other</p>", Origin: OriginLocal}))
	assert.Len(t, f.writes(), 1)

	// External snapshots always win, even when equal to the last emission.
	f.emit(c.Instance(), protocol.KindHistoryUpdate, protocol.DocumentPayload{Document: "<p>v3</p>"})
	require.NoError(t, c.Observe(Snapshot{Document: "<p>v3</p>", Origin: OriginExternal}))
	assert.Len(t, f.writes(), 2)
}

func TestLateLocalSnapshotCannotRollBackExternal(t *testing.T) {
	f := &fakeFrame{}
	o := &owner{}
	opts := o.options(t, f)
	var c *Controller
	// The owner applies an undo while the save is in flight, then feeds the
	// now stale local snapshot back down.
	opts.OnSave = func(s Snapshot) {
		require.NoError(t, c.Observe(Snapshot{Document: "<p>undo-target</p>", Origin: OriginExternal}))
		require.NoError(t, c.Observe(s))
	}
	c = NewController(opts)
	require.NoError(t, c.Observe(Snapshot{Document: "<p>v1</p>", Origin: OriginExternal}))

	f.emit(c.Instance(), protocol.KindHistoryUpdate, protocol.DocumentPayload{Document: "<p>stale edit</p>"})

	w := f.writes()
	require.Len(t, w, 2)
	assert.Contains(t, w[1], "undo-target")
	assert.NotContains(t, w[1], "stale edit")
}

func TestStaleInstanceMessagesAreDropped(t *testing.T) {
	f := &fakeFrame{}
	o := &owner{}
	c := NewController(o.options(t, f))
	require.NoError(t, c.Rehydrate("<p>a</p>"))
	old := c.Instance()
	require.NoError(t, c.Rehydrate("<p>b</p>"))

	f.emit(old, protocol.KindHistoryUpdate, protocol.DocumentPayload{Document: "<p>stale</p>"})
	f.emit(old, protocol.KindSelected, protocol.SelectionProjection{TagName: "P"})
	_, saved := o.lastSave()
	assert.False(t, saved)
	assert.Empty(t, o.selection)
}

func TestSelectionRelay(t *testing.T) {
	f := &fakeFrame{}
	o := &owner{}
	c := NewController(o.options(t, f))
	require.NoError(t, c.Rehydrate("<p>a</p>"))

	f.emit(c.Instance(), protocol.KindSelected, protocol.SelectionProjection{TagName: "P", Text: "a", FontSize: 16})
	f.emit(c.Instance(), protocol.KindDeselect, nil)

	require.Len(t, o.selection, 2)
	assert.Equal(t, &protocol.SelectionProjection{TagName: "P", Text: "a", FontSize: 16}, o.selection[0])
	assert.Nil(t, o.selection[1])
}

func TestHistoryRelayStripsRuntime(t *testing.T) {
	f := &fakeFrame{}
	o := &owner{}
	c := NewController(o.options(t, f))
	require.NoError(t, c.Rehydrate("<p>a</p>"))

	leaky := f.writes()[0]
	f.emit(c.Instance(), protocol.KindHistoryUpdate, protocol.DocumentPayload{Document: leaky})

	saved, ok := o.lastSave()
	require.True(t, ok)
	assert.NotContains(t, saved.Document, guest.AttrRuntime)
	assert.Contains(t, saved.Document, "<p>a</p>")
}

func TestCallbacksRunWithoutLock(t *testing.T) {
	f := &fakeFrame{}
	var c *Controller
	done := make(chan struct{})
	opts := (&owner{}).options(t, f)
	opts.OnSave = func(Snapshot) {
		_ = c.Scale()
		_ = c.Instance()
		close(done)
	}
	c = NewController(opts)
	require.NoError(t, c.Rehydrate("<p>a</p>"))
	go f.emit(c.Instance(), protocol.KindHistoryUpdate, protocol.DocumentPayload{Document: "<p>b</p>"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback deadlocked on the controller lock")
	}
}

func TestScale(t *testing.T) {
	f := &fakeFrame{}
	o := &owner{}
	c := NewController(o.options(t, f))

	assert.Equal(t, 0.5, c.Mount(640, 360))
	assert.Equal(t, []float64{0.5}, o.scales)
	assert.Equal(t, 1.0, c.Mount(4000, 4000), "fit never zooms past 1")
	assert.Equal(t, geometry.MinViewportScale, c.Mount(10, 10))

	require.Equal(t, 3.0, c.SetScale(7))
	var p protocol.ScalePayload
	require.NoError(t, f.lastPosted().Decode(&p))
	assert.Equal(t, 3.0, p.Value)

	n := len(f.postedKinds())
	c.SetScale(3)
	assert.Len(t, f.postedKinds(), n, "unchanged scale is not re-posted")

	require.NoError(t, c.Rehydrate("<p>x</p>"))
	require.NoError(t, f.lastPosted().Decode(&p))
	assert.Equal(t, 3.0, p.Value, "rehydrate re-posts the current scale")
}

func TestCommandSurface(t *testing.T) {
	f := &fakeFrame{}
	c := NewController((&owner{}).options(t, f))
	half := 0.5

	c.UpdateStyle(map[string]string{"color": "red"})
	c.UpdateContent("x")
	c.UpdateAttribute("title", "t")
	c.InsertElement("img", "https://example.com/a.png")
	c.UpdateTransform(1, 2, &half)
	c.ChangeLayer(protocol.LayerUp)
	c.Duplicate()
	c.DeleteElement()
	c.Deselect()

	assert.Equal(t, []protocol.Kind{
		protocol.KindUpdateStyle, protocol.KindUpdateContent, protocol.KindUpdateAttribute,
		protocol.KindInsertElement, protocol.KindUpdateTransform, protocol.KindLayer,
		protocol.KindDuplicate, protocol.KindDelete, protocol.KindDeselectForce,
	}, f.postedKinds())

	var tp protocol.TransformPayload
	f.mu.Lock()
	require.NoError(t, f.posted[4].Decode(&tp))
	f.mu.Unlock()
	assert.Equal(t, 1.0, tp.DX)
	require.NotNil(t, tp.Scale)
	assert.Equal(t, 0.5, *tp.Scale)
}

func TestGetHTMLWaiters(t *testing.T) {
	f := &fakeFrame{}
	c := NewController((&owner{}).options(t, f))

	_, err := c.GetHTML(context.Background())
	assert.ErrorIs(t, err, ErrNotMounted)

	require.NoError(t, c.Rehydrate("<p>a</p>"))
	id := c.Instance()

	results := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			doc, err := c.GetHTML(context.Background())
			if err == nil {
				results <- doc
			}
		}()
	}
	require.Eventually(t, func() bool {
		n := 0
		for _, k := range f.postedKinds() {
			if k == protocol.KindGetHTML {
				n++
			}
		}
		return n == 2
	}, time.Second, time.Millisecond)

	f.emit(id, protocol.KindHTMLResult, protocol.DocumentPayload{Document: "one"})
	f.emit(id, protocol.KindHTMLResult, protocol.DocumentPayload{Document: "two"})
	got := []string{<-results, <-results}
	assert.ElementsMatch(t, []string{"one", "two"}, got)

	t.Run("Context Bounds The Wait", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := c.GetHTML(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("Rehydrate Fails Pending Waiters", func(t *testing.T) {
		errs := make(chan error, 1)
		go func() {
			_, err := c.GetHTML(context.Background())
			errs <- err
		}()
		require.Eventually(t, func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			return len(c.waiters) == 2 // the abandoned slot plus this one
		}, time.Second, time.Millisecond)
		require.NoError(t, c.Rehydrate("<p>b</p>"))
		assert.ErrorIs(t, <-errs, ErrSuperseded)
	})
}

// -- against a real sandbox --

type live struct {
	sb *sandbox.Sandbox
	c  *Controller
	o  *owner
}

func newLive(t *testing.T) *live {
	t.Helper()
	sb := sandbox.New(sandbox.Options{Logger: zaptest.NewLogger(t)})
	t.Cleanup(sb.Close)
	o := &owner{}
	opts := o.options(t, sb)
	opts.Runtime.DebounceMillis = 60 * 60 * 1000
	c := NewController(opts)
	t.Cleanup(c.Close)
	return &live{sb: sb, c: c, o: o}
}

func (l *live) settle(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.sb.Settle(ctx))
}

func (l *live) html(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	doc, err := l.c.GetHTML(ctx)
	require.NoError(t, err)
	return doc
}

func TestIdempotentRehydration(t *testing.T) {
	l := newLive(t)
	const source = `<!DOCTYPE html><html><head><title>deck</title></head><body>
<h1 style="color: rgb(255, 0, 0)">Title</h1>
<div data-editor-wrapper="image" style="width: 40px"><img src="https://example.com/a.png" style="width: 100%"/></div>
</body></html>`

	require.NoError(t, l.c.Observe(Snapshot{Document: source, Origin: OriginExternal}))
	first := l.html(t)
	require.NoError(t, l.c.Observe(Snapshot{Document: first, Origin: OriginExternal}))
	second := l.html(t)
	require.NoError(t, l.c.Observe(Snapshot{Document: first, Origin: OriginExternal}))
	third := l.html(t)

	assert.Equal(t, first, second)
	assert.Equal(t, first, third)
	assert.Equal(t, strings.Join(strings.Fields(source), " "), strings.Join(strings.Fields(first), " "))
	assert.Equal(t, 3, l.sb.Writes())
}

func TestScenarioEThroughHost(t *testing.T) {
	l := newLive(t)
	require.Equal(t, 0.5, l.c.Mount(640, 360))
	require.NoError(t, l.c.Rehydrate(`<div id="card" style="width: 100px; height: 100px">card</div>`))

	require.NoError(t, l.sb.Dispatch(sandbox.Event{Kind: guest.Click, Target: "#card"}))
	require.NoError(t, l.sb.Dispatch(sandbox.Event{Kind: guest.PointerDown, Target: "#card", X: 0, Y: 0}))
	require.NoError(t, l.sb.Dispatch(sandbox.Event{Kind: guest.PointerMove, X: 100, Y: 50}))
	require.NoError(t, l.sb.Dispatch(sandbox.Event{Kind: guest.PointerUp, X: 100, Y: 50}))
	require.NoError(t, l.sb.FlushHistory())
	l.settle(t)

	saved, ok := l.o.lastSave()
	require.True(t, ok)
	assert.Equal(t, OriginLocal, saved.Origin)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(saved.Document))
	require.NoError(t, err)
	style, _ := doc.Find("#card").Attr("style")
	assert.Contains(t, style, "translate(200px, 100px)")
	assert.Zero(t, doc.Find("[data-editor-selected], [data-editor-handle], script").Length())

	// Saving the snapshot back is an echo and keeps the live selection.
	require.NoError(t, l.c.Observe(saved))
	assert.Equal(t, 1, l.sb.Writes())
	st, err := l.sb.State()
	require.NoError(t, err)
	assert.Equal(t, guest.Selected, st)
}

func TestExternalSnapshotDiscardsGesture(t *testing.T) {
	l := newLive(t)
	require.NoError(t, l.c.Rehydrate(`<div id="card">card</div>`))
	require.NoError(t, l.sb.Dispatch(sandbox.Event{Kind: guest.Click, Target: "#card"}))
	require.NoError(t, l.sb.Dispatch(sandbox.Event{Kind: guest.PointerDown, Target: "#card"}))

	require.NoError(t, l.c.Observe(Snapshot{Document: `<p id="other">replaced</p>`, Origin: OriginExternal}))
	st, err := l.sb.State()
	require.NoError(t, err)
	assert.Equal(t, guest.Idle, st)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(l.html(t)))
	require.NoError(t, err)
	assert.Equal(t, "replaced", doc.Find("#other").Text())
	assert.Zero(t, doc.Find("#card").Length())
}

func TestSelectionReachesOwner(t *testing.T) {
	l := newLive(t)
	require.NoError(t, l.c.Rehydrate(`<p id="p" style="font-weight: bold">x</p>`))
	require.NoError(t, l.sb.Dispatch(sandbox.Event{Kind: guest.Click, Target: "#p"}))
	l.c.Deselect()
	l.settle(t)

	l.o.mu.Lock()
	defer l.o.mu.Unlock()
	require.Len(t, l.o.selection, 2)
	assert.Equal(t, "700", l.o.selection[0].FontWeight)
	assert.Nil(t, l.o.selection[1])
}
