package session

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-editor/internal/editor/guest"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/protocol"
)

func TestExecuteCommands(t *testing.T) {
	s, _ := newSession(t)
	require.NoError(t, s.Load(`<div id="a" style="width: 50px">a</div><div id="b">b</div>`))
	require.NoError(t, s.Input(Input{Kind: "click", Target: "#a"}))

	run := func(kind protocol.Kind, payload any) {
		t.Helper()
		require.NoError(t, s.Execute(protocol.MustNew(kind, payload)))
	}
	run(protocol.KindUpdateStyle, protocol.StylePayload{"color": "red"})
	run(protocol.KindUpdateAttribute, protocol.AttributePayload{Key: "title", Val: "first"})
	run(protocol.KindUpdateContent, protocol.ContentPayload{Text: "alpha"})
	run(protocol.KindUpdateTransform, protocol.TransformPayload{DX: 5, DY: 6})
	run(protocol.KindLayer, protocol.LayerPayload{Direction: protocol.LayerUp})
	require.NoError(t, s.Commit(ctx(t)))

	doc := s.Document()
	st := styleOf(t, doc, "#a")
	assert.Contains(t, st, "color: red")
	assert.Contains(t, st, "translate(5px, 6px)")
	assert.Contains(t, doc, `title="first"`)
	assert.Contains(t, doc, ">alpha</div>")

	run(protocol.KindDuplicate, nil)
	require.NoError(t, s.Commit(ctx(t)))
	live, err := s.HTML(ctx(t))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(live, ">alpha</div>"))

	run(protocol.KindDelete, nil)
	run(protocol.KindDeselectForce, nil)
	require.NoError(t, s.Settle(ctx(t)))
	state, err := s.State()
	require.NoError(t, err)
	assert.Equal(t, guest.Idle, state)
}

func TestExecuteRejections(t *testing.T) {
	s, _ := newSession(t)
	require.NoError(t, s.Load("<p>x</p>"))

	assert.ErrorIs(t, s.Execute(protocol.MustNew(protocol.KindSelected, nil)), ErrNotACommand)
	assert.ErrorIs(t, s.Execute(protocol.MustNew(protocol.KindGetHTML, nil)), ErrNotACommand)
	assert.ErrorIs(t, s.Execute(protocol.Message{Type: protocol.KindUpdateStyle}), protocol.ErrInvalidPayload)
	assert.ErrorIs(t, s.Execute(protocol.Message{Type: protocol.KindLayer, Payload: json.RawMessage(`{"direction":"sideways"}`)}),
		protocol.ErrInvalidPayload)
	assert.ErrorIs(t, s.Input(Input{Kind: "swipe"}), ErrUnknownEvent)
}

func TestExecuteScale(t *testing.T) {
	s, r := newSession(t)
	require.NoError(t, s.Execute(protocol.MustNew(protocol.KindUpdateScale, protocol.ScalePayload{Value: 1.5})))
	assert.Equal(t, 1.5, s.Controller().Scale())
	scales := r.of(UpdateScale)
	require.Len(t, scales, 1)
	assert.Equal(t, 1.5, scales[0].Scale)
}

func TestInputEvent(t *testing.T) {
	ev, err := Input{Kind: "pointermove", X: 3, Y: 4}.Event()
	require.NoError(t, err)
	assert.Equal(t, guest.PointerMove, ev.Kind)
	assert.Equal(t, 3.0, ev.X)
}
