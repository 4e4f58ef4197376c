// internal/editor/session/commands.go
package session

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/scalpel-editor/internal/editor/guest"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/protocol"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/sandbox"
)

var (
	// ErrNotACommand is returned by Execute for kinds the owner cannot send,
	// such as guest notifications or GET_HTML (use HTML).
	ErrNotACommand = errors.New("message kind is not an owner command")
	// ErrUnknownEvent is returned for an input name the guest does not handle.
	ErrUnknownEvent = errors.New("unknown input event")
)

// Execute runs one command envelope through the controller's command
// surface. Commands are fire-and-forget; a nil error means it was sent.
func (s *Session) Execute(msg protocol.Message) error {
	if s.isClosed() {
		return ErrClosed
	}
	c := s.ctrl
	switch msg.Type {
	case protocol.KindUpdateStyle:
		var p protocol.StylePayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		c.UpdateStyle(p)
	case protocol.KindUpdateContent:
		var p protocol.ContentPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		c.UpdateContent(p.Text)
	case protocol.KindUpdateAttribute:
		var p protocol.AttributePayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		c.UpdateAttribute(p.Key, p.Val)
	case protocol.KindInsertElement:
		var p protocol.InsertPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		c.InsertElement(p.Type, p.Src)
	case protocol.KindUpdateTransform:
		var p protocol.TransformPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		c.UpdateTransform(p.DX, p.DY, p.Scale)
	case protocol.KindLayer:
		var p protocol.LayerPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		if p.Direction != protocol.LayerUp && p.Direction != protocol.LayerDown {
			return fmt.Errorf("%w: layer direction %q", protocol.ErrInvalidPayload, p.Direction)
		}
		c.ChangeLayer(p.Direction)
	case protocol.KindDuplicate:
		c.Duplicate()
	case protocol.KindDelete:
		c.DeleteElement()
	case protocol.KindDeselectForce:
		c.Deselect()
	case protocol.KindUpdateScale:
		var p protocol.ScalePayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		s.SetScale(p.Value)
	default:
		return fmt.Errorf("%w: %s", ErrNotACommand, msg.Type)
	}
	return nil
}

// Input is native input described by name, as a remote UI or a script sends
// it.
type Input struct {
	Kind   string  `json:"kind"`
	Target string  `json:"target,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Key    string  `json:"key,omitempty"`
	Text   string  `json:"text,omitempty"`
}

// Event converts the input to a sandbox event.
func (in Input) Event() (sandbox.Event, error) {
	kind, ok := guest.ParseEventKind(in.Kind)
	if !ok {
		return sandbox.Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, in.Kind)
	}
	return sandbox.Event{Kind: kind, Target: in.Target, X: in.X, Y: in.Y, Key: in.Key, Text: in.Text}, nil
}

// Input dispatches named input.
func (s *Session) Input(in Input) error {
	ev, err := in.Event()
	if err != nil {
		return err
	}
	return s.Dispatch(ev)
}
