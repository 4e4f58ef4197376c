package protocol

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestKindClassification(t *testing.T) {
	for _, k := range []Kind{KindSelected, KindDeselect, KindHistoryUpdate, KindHTMLResult} {
		assert.True(t, k.IsOutbound(), k)
		assert.False(t, k.IsInbound(), k)
		assert.False(t, k.Mutates(), k)
	}

	mutating := []Kind{KindUpdateStyle, KindUpdateContent, KindUpdateAttribute, KindInsertElement,
		KindUpdateTransform, KindLayer, KindDuplicate, KindDelete}
	for _, k := range mutating {
		assert.True(t, k.IsInbound(), k)
		assert.True(t, k.Mutates(), k)
	}

	for _, k := range []Kind{KindUpdateScale, KindGetHTML, KindDeselectForce} {
		assert.True(t, k.IsInbound(), k)
		assert.False(t, k.Mutates(), k)
	}
}

func TestNewAndDecode(t *testing.T) {
	scale := 2.0
	msg, err := New(KindUpdateTransform, TransformPayload{DX: 10, DY: 5, Scale: &scale})
	require.NoError(t, err)

	var p TransformPayload
	require.NoError(t, msg.Decode(&p))
	assert.Equal(t, 10.0, p.DX)
	assert.Equal(t, 5.0, p.DY)
	require.NotNil(t, p.Scale)
	assert.Equal(t, 2.0, *p.Scale)

	_, err = New(Kind("NOPE"), nil)
	assert.ErrorIs(t, err, ErrUnknownKind)

	bare := MustNew(KindDelete, nil)
	assert.Empty(t, bare.Payload)
	assert.ErrorIs(t, bare.Decode(&p), ErrInvalidPayload)
}

func TestEnvelopeWireFormat(t *testing.T) {
	msg := MustNew(KindHistoryUpdate, DocumentPayload{Document: "<p>x</p>"})
	msg.Instance = "abc"

	data, err := Encode(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"HISTORY_UPDATE","instance":"abc","payload":{"document":"<p>x</p>"}}`, string(data))

	back, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, KindHistoryUpdate, back.Type)
	assert.Equal(t, "abc", back.Instance)

	_, err = Decode([]byte(`{"type":"SOMETHING"}`))
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestPayloadDecodingIsLoose(t *testing.T) {
	// Extra fields from a newer peer are tolerated.
	msg, err := Decode([]byte(`{"type":"UPDATE_ATTRIBUTE","payload":{"key":"src","val":"a.png","extra":1}}`))
	require.NoError(t, err)

	var a AttributePayload
	require.NoError(t, msg.Decode(&a))
	assert.Equal(t, AttributePayload{Key: "src", Val: "a.png"}, a)

	var styles StylePayload
	msg, err = Decode([]byte(`{"type":"UPDATE_STYLE","payload":{"color":"red","opacity":"0.5"}}`))
	require.NoError(t, err)
	require.NoError(t, msg.Decode(&styles))
	assert.Equal(t, StylePayload{"color": "red", "opacity": "0.5"}, styles)
}

func TestPort_PreservesSenderOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	port := NewPort(zaptest.NewLogger(t), "test")
	defer port.Close()

	var mu sync.Mutex
	var got []float64
	port.Listen(func(m Message) {
		var s ScalePayload
		assert.NoError(t, m.Decode(&s))
		mu.Lock()
		got = append(got, s.Value)
		mu.Unlock()
	})

	for i := 0; i < 50; i++ {
		require.NoError(t, port.Post(MustNew(KindUpdateScale, ScalePayload{Value: float64(i)})))
	}
	require.NoError(t, port.Flush())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, float64(i), v)
	}
}

func TestPort_DoesNotShareMemory(t *testing.T) {
	defer goleak.VerifyNone(t)

	port := NewPort(nil, "test")
	defer port.Close()

	received := make(chan Message, 1)
	port.Listen(func(m Message) { received <- m })

	msg := MustNew(KindHTMLResult, DocumentPayload{Document: "original"})
	require.NoError(t, port.Post(msg))
	// Mutating the sender's copy after posting must not leak across.
	for i := range msg.Payload {
		msg.Payload[i] = ' '
	}

	got := <-received
	var doc DocumentPayload
	require.NoError(t, got.Decode(&doc))
	assert.Equal(t, "original", doc.Document)
}

func TestPort_PostAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	pipe := NewPipe(zaptest.NewLogger(t))
	pipe.Close()

	assert.ErrorIs(t, pipe.ToGuest.Post(MustNew(KindDelete, nil)), ErrPortClosed)
	assert.ErrorIs(t, pipe.ToHost.Flush(), ErrPortClosed)
}

func TestPort_NoListenerDrops(t *testing.T) {
	defer goleak.VerifyNone(t)

	port := NewPort(zaptest.NewLogger(t), "test")
	defer port.Close()

	require.NoError(t, port.Post(MustNew(KindDeselect, nil)))
	require.NoError(t, port.Flush())
}
