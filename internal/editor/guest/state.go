// internal/editor/guest/state.go
package guest

import (
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-editor/internal/browser/dom"
)

// State is the interaction state of one runtime instance. Exactly one is
// current at a time.
type State int

const (
	Idle State = iota
	Selected
	Dragging
	Resizing
	EditingText
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selected:
		return "selected"
	case Dragging:
		return "dragging"
	case Resizing:
		return "resizing"
	case EditingText:
		return "editing_text"
	}
	return "unknown"
}

// Selectable is the unit of manipulation: either a plain element or an image
// wrapper. Style edits address Element(); attribute edits for an image
// wrapper's src go to the inner image.
type Selectable interface {
	Element() *html.Node
	isSelectable()
}

// PlainElement is any selectable element that is not an image wrapper.
type PlainElement struct {
	Node *html.Node
}

func (p PlainElement) Element() *html.Node { return p.Node }
func (PlainElement) isSelectable()         {}

// ImageWrapper is the synthetic container around an image. The image always
// fills it.
type ImageWrapper struct {
	Wrapper *html.Node
	Image   *html.Node
}

func (w ImageWrapper) Element() *html.Node { return w.Wrapper }
func (ImageWrapper) isSelectable()         {}

// attributeTarget is where an attribute edit for the selection lands.
func attributeTarget(s Selectable, key string) *html.Node {
	if w, ok := s.(ImageWrapper); ok && key == "src" && w.Image != nil {
		return w.Image
	}
	return s.Element()
}

// isImageLike reports whether s is an image or the container of one.
func isImageLike(s Selectable) bool {
	if _, ok := s.(ImageWrapper); ok {
		return true
	}
	return dom.IsElement(s.Element(), "img")
}

// EventKind classifies native input delivered to the runtime.
type EventKind int

const (
	Click EventKind = iota
	DoubleClick
	PointerDown
	PointerMove
	PointerUp
	MouseOver
	MouseOut
	Input
	Blur
	KeyDown
)

var eventNames = map[EventKind]string{
	Click: "click", DoubleClick: "dblclick", PointerDown: "pointerdown", PointerMove: "pointermove",
	PointerUp: "pointerup", MouseOver: "mouseover", MouseOut: "mouseout", Input: "input",
	Blur: "blur", KeyDown: "keydown",
}

func (k EventKind) String() string {
	if n, ok := eventNames[k]; ok {
		return n
	}
	return "unknown"
}

// ParseEventKind maps a DOM event name to its kind.
func ParseEventKind(name string) (EventKind, bool) {
	for k, n := range eventNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// Event is one piece of native input. Target is a live node of the
// runtime's own document; ClientX/ClientY are viewport pixels.
type Event struct {
	Kind    EventKind
	Target  *html.Node
	ClientX float64
	ClientY float64
	Key     string
	Text    string
}
