package guest

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/andybalholm/cascadia"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-editor/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-editor/internal/browser/imageload"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/protocol"
)

// recorder is an Outbound that keeps everything posted to it.
type recorder struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (r *recorder) Post(m protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recorder) all() []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Message(nil), r.msgs...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.msgs = nil
	r.mu.Unlock()
}

func (r *recorder) count(kind protocol.Kind) int {
	n := 0
	for _, m := range r.all() {
		if m.Type == kind {
			n++
		}
	}
	return n
}

func (r *recorder) last(kind protocol.Kind) (protocol.Message, bool) {
	msgs := r.all()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == kind {
			return msgs[i], true
		}
	}
	return protocol.Message{}, false
}

// queue is a Scheduler the test drains by hand.
type queue struct {
	mu    sync.Mutex
	tasks []func()
}

func (q *queue) Enqueue(fn func()) error {
	q.mu.Lock()
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()
	return nil
}

func (q *queue) drain() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		fn := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()
		fn()
	}
}

type harness struct {
	t   *testing.T
	rt  *Runtime
	out *recorder
	q   *queue
}

// hourWindow keeps the debounce timer from ever firing on its own; tests
// flush history explicitly.
const hourWindow = 60 * 60 * 1000

func newHarness(t *testing.T, document string, prober imageload.Prober) *harness {
	t.Helper()
	doc, err := dom.Parse(document)
	require.NoError(t, err)

	h := &harness{t: t, out: &recorder{}, q: &queue{}}
	h.rt = New(Options{
		Logger:    zaptest.NewLogger(t),
		Document:  doc,
		Config:    Config{Instance: "test-instance", DebounceMillis: hourWindow},
		Out:       h.out,
		Scheduler: h.q,
		Prober:    prober,
	})
	t.Cleanup(h.rt.Dispose)
	return h
}

func (h *harness) find(selector string) *html.Node {
	h.t.Helper()
	n := cascadia.MustCompile(selector).MatchFirst(h.rt.Document())
	require.NotNil(h.t, n, "no match for %q", selector)
	return n
}

func (h *harness) findAll(selector string) []*html.Node {
	return cascadia.MustCompile(selector).MatchAll(h.rt.Document())
}

func (h *harness) send(kind protocol.Kind, payload any) {
	h.rt.HandleMessage(protocol.MustNew(kind, payload))
	h.q.drain()
}

func (h *harness) event(kind EventKind, target *html.Node, x, y float64) {
	h.rt.Dispatch(Event{Kind: kind, Target: target, ClientX: x, ClientY: y})
	h.q.drain()
}

func (h *harness) click(selector string) {
	h.event(Click, h.find(selector), 0, 0)
}

func (h *harness) selection() protocol.SelectionProjection {
	h.t.Helper()
	msg, ok := h.out.last(protocol.KindSelected)
	require.True(h.t, ok, "no SELECTED emitted")
	var p protocol.SelectionProjection
	require.NoError(h.t, msg.Decode(&p))
	return p
}

func (h *harness) snapshot() string {
	h.t.Helper()
	h.send(protocol.KindGetHTML, nil)
	msg, ok := h.out.last(protocol.KindHTMLResult)
	require.True(h.t, ok)
	var p protocol.DocumentPayload
	require.NoError(h.t, msg.Decode(&p))
	return p.Document
}

func (h *harness) flushHistory() (string, bool) {
	h.t.Helper()
	h.out.reset()
	if !h.rt.FlushHistory() {
		return "", false
	}
	h.q.drain()
	msg, ok := h.out.last(protocol.KindHistoryUpdate)
	require.True(h.t, ok)
	var p protocol.DocumentPayload
	require.NoError(h.t, msg.Decode(&p))
	return p.Document, true
}

func (h *harness) inline(n *html.Node, prop string) string {
	v, _ := dom.Attr(n, "style")
	for _, part := range strings.Split(v, ";") {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) == 2 && strings.TrimSpace(kv[0]) == prop {
			return strings.TrimSpace(kv[1])
		}
	}
	return ""
}

func staticProber(w, h int) imageload.Prober {
	return imageload.ProberFunc(func(context.Context, string) (imageload.Size, error) {
		return imageload.Size{Width: w, Height: h}, nil
	})
}

const page = `<!DOCTYPE html><html><head><style>.note { color: #ff0000; font-size: 20px; }</style></head>
<body>
<h1 id="title">Quarterly report</h1>
<p id="intro" class="note">Revenue grew.</p>
<div id="box" style="width: 100px; height: 50px"><span id="inner">inside</span></div>
<img id="pic" src="http://example.com/a.png" width="120" height="80">
<hr id="rule">
</body></html>`
