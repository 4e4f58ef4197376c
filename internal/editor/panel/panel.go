// internal/editor/panel/panel.go
package panel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-editor/internal/browser/style"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/protocol"
)

var (
	// ErrNoSelection is returned by edits made while nothing is selected.
	ErrNoSelection = errors.New("nothing is selected")
	// ErrNotEditable is returned when a field does not apply to the
	// selection, such as text content on an image.
	ErrNotEditable = errors.New("field is not editable for this selection")
	// ErrInvalidValue is returned when a field value does not parse.
	ErrInvalidValue = errors.New("invalid field value")
	// ErrUnknownField is returned for a field name the panel does not know.
	ErrUnknownField = errors.New("unknown field")
)

// BoldWeight is the numeric font weight at and above which text is bold.
const BoldWeight = 700

// Field names one editable form field.
type Field string

const (
	FieldText            Field = "text"
	FieldSrc             Field = "src"
	FieldColor           Field = "color"
	FieldFontSize        Field = "fontSize"
	FieldBold            Field = "bold"
	FieldTextAlign       Field = "textAlign"
	FieldWidth           Field = "width"
	FieldHeight          Field = "height"
	FieldBackgroundColor Field = "backgroundColor"
	FieldBorderRadius    Field = "borderRadius"
	FieldOpacity         Field = "opacity"
)

// Fields is the form state shown for a selection.
type Fields struct {
	TagName         string  `json:"tagName"`
	ImageLike       bool    `json:"imageLike"`
	Text            string  `json:"text,omitempty"`
	Src             string  `json:"src,omitempty"`
	Color           string  `json:"color"`
	FontSize        float64 `json:"fontSize"`
	Bold            bool    `json:"bold"`
	TextAlign       string  `json:"textAlign"`
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
	Display         string  `json:"display"`
	BackgroundColor string  `json:"backgroundColor"`
	BorderRadius    float64 `json:"borderRadius"`
	Opacity         float64 `json:"opacity"`
}

// IsImageLike reports whether p describes an image or a wrapper holding one.
func IsImageLike(p protocol.SelectionProjection) bool {
	return strings.EqualFold(p.TagName, "img") || p.HasImageChild
}

// IsBold binarizes a CSS font-weight.
func IsBold(weight string) bool {
	switch strings.ToLower(strings.TrimSpace(weight)) {
	case "bold", "bolder":
		return true
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(weight), 64)
	return err == nil && n >= BoldWeight
}

// Project maps a selection to form fields. Image-like selections show a
// source editor instead of the text editor.
func Project(p protocol.SelectionProjection) Fields {
	f := Fields{
		TagName:         p.TagName,
		ImageLike:       IsImageLike(p),
		Color:           p.Color,
		FontSize:        p.FontSize,
		Bold:            IsBold(p.FontWeight),
		TextAlign:       p.TextAlign,
		Width:           p.Width,
		Height:          p.Height,
		Display:         p.Display,
		BackgroundColor: p.BackgroundColor,
		BorderRadius:    p.BorderRadius,
		Opacity:         p.Opacity,
	}
	if f.ImageLike {
		f.Src = p.Src
	} else {
		f.Text = p.Text
	}
	return f
}

// Commander is the command surface the panel drives.
type Commander interface {
	UpdateStyle(props map[string]string)
	UpdateContent(text string)
	UpdateAttribute(key, val string)
	ChangeLayer(dir protocol.LayerDirection)
	Duplicate()
	DeleteElement()
}

// Panel holds the displayed form state and turns edits into commands.
type Panel struct {
	logger *zap.Logger
	cmd    Commander

	mu       sync.Mutex
	fields   *Fields
	onChange func(*Fields)
}

// New creates a panel that sends edits to cmd. onChange, when set, receives
// every new field state, including nil when the selection clears.
func New(logger *zap.Logger, cmd Commander, onChange func(*Fields)) *Panel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Panel{logger: logger.Named("panel"), cmd: cmd, onChange: onChange}
}

// Show replaces the form state with the projection of sel; nil clears it.
func (p *Panel) Show(sel *protocol.SelectionProjection) {
	var f *Fields
	if sel != nil {
		projected := Project(*sel)
		f = &projected
	}
	p.mu.Lock()
	p.fields = f
	p.mu.Unlock()
	p.notify(f)
}

// Fields returns a copy of the form state, nil when nothing is selected.
func (p *Panel) Fields() *Fields {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fields == nil {
		return nil
	}
	f := *p.fields
	return &f
}

// Edit applies one field edit: it sends the command and optimistically merges
// the value into the displayed state.
func (p *Panel) Edit(field Field, value string) error {
	p.mu.Lock()
	if p.fields == nil {
		p.mu.Unlock()
		return ErrNoSelection
	}
	next := *p.fields
	p.mu.Unlock()

	send, err := apply(&next, field, value)
	if err != nil {
		return fmt.Errorf("editing %s: %w", field, err)
	}

	p.mu.Lock()
	if p.fields == nil {
		// Deselected while the edit was prepared.
		p.mu.Unlock()
		return ErrNoSelection
	}
	p.fields = &next
	p.mu.Unlock()

	send(p.cmd)
	p.notify(&next)
	return nil
}

func (p *Panel) notify(f *Fields) {
	if p.onChange == nil {
		return
	}
	if f != nil {
		c := *f
		f = &c
	}
	p.onChange(f)
}

// apply merges value into f and returns the command that carries it.
func apply(f *Fields, field Field, value string) (func(Commander), error) {
	value = strings.TrimSpace(value)
	switch field {
	case FieldText:
		if f.ImageLike {
			return nil, ErrNotEditable
		}
		f.Text = value
		return func(c Commander) { c.UpdateContent(value) }, nil

	case FieldSrc:
		if !f.ImageLike {
			return nil, ErrNotEditable
		}
		f.Src = value
		return func(c Commander) { c.UpdateAttribute("src", value) }, nil

	case FieldColor, FieldBackgroundColor:
		col, ok := style.ParseColor(value)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a color", ErrInvalidValue, value)
		}
		formatted := style.FormatColor(col)
		prop := "color"
		if field == FieldColor {
			f.Color = formatted
		} else {
			f.BackgroundColor = formatted
			prop = "background-color"
		}
		return styleCmd(prop, value), nil

	case FieldFontSize, FieldWidth, FieldHeight, FieldBorderRadius:
		n, err := parseNonNegative(value)
		if err != nil {
			return nil, err
		}
		var prop string
		switch field {
		case FieldFontSize:
			f.FontSize, prop = n, "font-size"
		case FieldWidth:
			f.Width, prop = n, "width"
		case FieldHeight:
			f.Height, prop = n, "height"
		default:
			f.BorderRadius, prop = n, "border-radius"
		}
		return styleCmd(prop, style.FormatPx(n)), nil

	case FieldBold:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, value)
		}
		f.Bold = b
		weight := "400"
		if b {
			weight = strconv.Itoa(BoldWeight)
		}
		return styleCmd("font-weight", weight), nil

	case FieldTextAlign:
		switch value {
		case "left", "right", "center", "justify", "start", "end":
		default:
			return nil, fmt.Errorf("%w: text-align %q", ErrInvalidValue, value)
		}
		f.TextAlign = value
		return styleCmd("text-align", value), nil

	case FieldOpacity:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil || n < 0 || n > 1 {
			return nil, fmt.Errorf("%w: opacity %q must be between 0 and 1", ErrInvalidValue, value)
		}
		f.Opacity = n
		return styleCmd("opacity", strconv.FormatFloat(n, 'f', -1, 64)), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
}

func styleCmd(prop, value string) func(Commander) {
	return func(c Commander) { c.UpdateStyle(map[string]string{prop: value}) }
}

func parseNonNegative(value string) (float64, error) {
	n, err := strconv.ParseFloat(strings.TrimSuffix(value, "px"), 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q is not a non-negative number", ErrInvalidValue, value)
	}
	return n, nil
}

// LayerUp moves the selection one step toward the viewer.
func (p *Panel) LayerUp() error { return p.button(func(c Commander) { c.ChangeLayer(protocol.LayerUp) }) }

// LayerDown moves the selection one step away from the viewer.
func (p *Panel) LayerDown() error {
	return p.button(func(c Commander) { c.ChangeLayer(protocol.LayerDown) })
}

// Duplicate copies the selection.
func (p *Panel) Duplicate() error { return p.button(Commander.Duplicate) }

// Delete removes the selection.
func (p *Panel) Delete() error { return p.button(Commander.DeleteElement) }

func (p *Panel) button(fn func(Commander)) error {
	p.mu.Lock()
	selected := p.fields != nil
	p.mu.Unlock()
	if !selected {
		return ErrNoSelection
	}
	fn(p.cmd)
	return nil
}
