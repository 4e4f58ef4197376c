// internal/editor/protocol/messages.go
package protocol

import (
	stdjson "encoding/json"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind tags a message on the host <-> guest channel.
type Kind string

// Guest -> host.
const (
	KindSelected      Kind = "SELECTED"
	KindDeselect      Kind = "DESELECT"
	KindHistoryUpdate Kind = "HISTORY_UPDATE"
	KindHTMLResult    Kind = "HTML_RESULT"
)

// Host -> guest.
const (
	KindUpdateScale     Kind = "UPDATE_SCALE"
	KindGetHTML         Kind = "GET_HTML"
	KindInsertElement   Kind = "INSERT_ELEMENT"
	KindUpdateContent   Kind = "UPDATE_CONTENT"
	KindUpdateStyle     Kind = "UPDATE_STYLE"
	KindUpdateAttribute Kind = "UPDATE_ATTRIBUTE"
	KindDelete          Kind = "DELETE"
	KindDuplicate       Kind = "DUPLICATE"
	KindLayer           Kind = "LAYER"
	KindUpdateTransform Kind = "UPDATE_TRANSFORM"
	KindDeselectForce   Kind = "DESELECT_FORCE"
)

var (
	ErrUnknownKind    = errors.New("unknown message kind")
	ErrInvalidPayload = errors.New("invalid message payload")
)

var outbound = map[Kind]bool{
	KindSelected: true, KindDeselect: true, KindHistoryUpdate: true, KindHTMLResult: true,
}

var inbound = map[Kind]bool{
	KindUpdateScale: true, KindGetHTML: true, KindInsertElement: true, KindUpdateContent: true,
	KindUpdateStyle: true, KindUpdateAttribute: true, KindDelete: true, KindDuplicate: true,
	KindLayer: true, KindUpdateTransform: true, KindDeselectForce: true,
}

// IsOutbound reports whether the guest emits k.
func (k Kind) IsOutbound() bool { return outbound[k] }

// IsInbound reports whether the host sends k.
func (k Kind) IsInbound() bool { return inbound[k] }

// Mutates reports whether an inbound command changes the document and so
// must be followed by a history snapshot.
func (k Kind) Mutates() bool {
	switch k {
	case KindUpdateStyle, KindUpdateContent, KindUpdateAttribute, KindInsertElement,
		KindUpdateTransform, KindLayer, KindDuplicate, KindDelete:
		return true
	}
	return false
}

// Message is the tagged envelope that crosses the sandbox boundary. The
// payload stays raw until the receiver decodes it for the kind it expects.
type Message struct {
	Type Kind `json:"type"`

	// Instance identifies the guest runtime that emitted the message. Empty on
	// host -> guest commands.
	Instance string `json:"instance,omitempty"`

	Payload stdjson.RawMessage `json:"payload,omitempty"`
}

// New builds a message, encoding payload (which may be nil).
func New(kind Kind, payload any) (Message, error) {
	if !kind.IsInbound() && !kind.IsOutbound() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	msg := Message{Type: kind}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encoding %s payload: %w", kind, err)
	}
	msg.Payload = raw
	return msg, nil
}

// MustNew is New for payloads that cannot fail to encode.
func MustNew(kind Kind, payload any) Message {
	msg, err := New(kind, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrInvalidPayload, m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, m.Type, err)
	}
	return nil
}

// Encode serializes the whole envelope.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses an envelope and checks its kind is known.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decoding message: %w", err)
	}
	if !m.Type.IsInbound() && !m.Type.IsOutbound() {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, m.Type)
	}
	return m, nil
}
