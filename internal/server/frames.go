// internal/server/frames.go
package server

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/scalpel-editor/internal/editor/panel"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/protocol"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Op names a client request.
type Op string

const (
	OpLoad    Op = "load"
	OpCommand Op = "command"
	OpEvent   Op = "event"
	OpUndo    Op = "undo"
	OpRedo    Op = "redo"
	OpScale   Op = "scale"
	OpMount   Op = "mount"
	OpPanel   Op = "panel"
	OpHTML    Op = "html"
	OpCommit  Op = "commit"
)

// Panel buttons a client can press.
const (
	ButtonLayerUp   = "layerUp"
	ButtonLayerDown = "layerDown"
	ButtonDuplicate = "duplicate"
	ButtonDelete    = "delete"
)

// ClientFrame is one request from the remote UI. Which fields matter depends
// on Op.
type ClientFrame struct {
	Op       Op                `json:"op"`
	ID       string            `json:"id,omitempty"`
	Document string            `json:"document,omitempty"`
	Command  *protocol.Message `json:"command,omitempty"`
	Event    *session.Input    `json:"event,omitempty"`
	Scale    float64           `json:"scale,omitempty"`
	Width    float64           `json:"width,omitempty"`
	Height   float64           `json:"height,omitempty"`
	Field    panel.Field       `json:"field,omitempty"`
	Value    string            `json:"value,omitempty"`
	Button   string            `json:"button,omitempty"`
}

// FrameType names a server push.
type FrameType string

const (
	FrameSelection FrameType = "selection"
	FrameDocument  FrameType = "document"
	FrameScale     FrameType = "scale"
	FramePanel     FrameType = "panel"
	FrameHTML      FrameType = "html"
	FrameError     FrameType = "error"
)

// ServerFrame is one push to the remote UI. A selection frame without a
// selection means it was cleared.
type ServerFrame struct {
	Type      FrameType                     `json:"type"`
	ID        string                        `json:"id,omitempty"`
	Session   string                        `json:"session,omitempty"`
	Document  string                        `json:"document,omitempty"`
	Origin    string                        `json:"origin,omitempty"`
	CanUndo   bool                          `json:"canUndo,omitempty"`
	CanRedo   bool                          `json:"canRedo,omitempty"`
	Selection *protocol.SelectionProjection `json:"selection,omitempty"`
	Fields    *panel.Fields                 `json:"fields,omitempty"`
	Scale     float64                       `json:"scale,omitempty"`
	Error     string                        `json:"error,omitempty"`
}

func frameFor(u session.Update) ServerFrame {
	switch u.Kind {
	case session.UpdateDocument:
		return ServerFrame{
			Type:     FrameDocument,
			Document: u.Document,
			Origin:   u.Origin.String(),
			CanUndo:  u.CanUndo,
			CanRedo:  u.CanRedo,
		}
	case session.UpdateSelection:
		return ServerFrame{Type: FrameSelection, Selection: u.Selection}
	case session.UpdateScale:
		return ServerFrame{Type: FrameScale, Scale: u.Scale}
	default:
		return ServerFrame{Type: FramePanel, Fields: u.Fields}
	}
}

func errorFrame(id string, err error) ServerFrame {
	return ServerFrame{Type: FrameError, ID: id, Error: err.Error()}
}
