package panel

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-editor/internal/editor/protocol"
)

type call struct {
	op   string
	args []string
}

type commander struct {
	mu    sync.Mutex
	calls []call
}

func (c *commander) record(op string, args ...string) {
	c.mu.Lock()
	c.calls = append(c.calls, call{op, args})
	c.mu.Unlock()
}

func (c *commander) UpdateStyle(props map[string]string) {
	for k, v := range props {
		c.record("style", k, v)
	}
}
func (c *commander) UpdateContent(text string)               { c.record("content", text) }
func (c *commander) UpdateAttribute(key, val string)         { c.record("attr", key, val) }
func (c *commander) ChangeLayer(dir protocol.LayerDirection) { c.record("layer", string(dir)) }
func (c *commander) Duplicate()                              { c.record("duplicate") }
func (c *commander) DeleteElement()                          { c.record("delete") }

var paragraph = protocol.SelectionProjection{
	TagName: "P", Text: "hello", Color: "rgb(0, 0, 0)", FontSize: 16, FontWeight: "400",
	TextAlign: "start", Width: 200, Height: 40, Display: "block",
	BackgroundColor: "rgba(0, 0, 0, 0)", Opacity: 1,
}

var wrapper = protocol.SelectionProjection{
	TagName: "DIV", Text: "", FontWeight: "400", Width: 400, Height: 200,
	Display: "block", HasImageChild: true, Src: "https://example.com/a.png", Opacity: 1,
}

func TestProject(t *testing.T) {
	got := Project(paragraph)
	want := Fields{
		TagName: "P", Text: "hello", Color: "rgb(0, 0, 0)", FontSize: 16, TextAlign: "start",
		Width: 200, Height: 40, Display: "block", BackgroundColor: "rgba(0, 0, 0, 0)", Opacity: 1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Project mismatch (-want +got):\n%s", diff)
	}

	img := Project(wrapper)
	assert.True(t, img.ImageLike)
	assert.Equal(t, "https://example.com/a.png", img.Src)
	assert.Empty(t, img.Text, "image-like selections hide the text editor")

	bare := Project(protocol.SelectionProjection{TagName: "img", Src: "x"})
	assert.True(t, bare.ImageLike)
}

func TestIsBold(t *testing.T) {
	cases := map[string]bool{
		"700": true, "800": true, "699": false, "400": false, "bold": true,
		"normal": false, "": false, " 900 ": true, "bolder": true,
	}
	for in, want := range cases {
		assert.Equal(t, want, IsBold(in), in)
	}
}

func newPanel(t *testing.T) (*Panel, *commander, *[]*Fields) {
	cmd := &commander{}
	var seen []*Fields
	p := New(zaptest.NewLogger(t), cmd, func(f *Fields) { seen = append(seen, f) })
	return p, cmd, &seen
}

func TestEditSendsCommandAndMerges(t *testing.T) {
	p, cmd, seen := newPanel(t)
	p.Show(&paragraph)

	tests := []struct {
		field Field
		value string
		want  call
		check func(*Fields) bool
	}{
		{FieldText, "bye", call{"content", []string{"bye"}}, func(f *Fields) bool { return f.Text == "bye" }},
		{FieldColor, "#ff0000", call{"style", []string{"color", "#ff0000"}}, func(f *Fields) bool { return f.Color == "rgb(255, 0, 0)" }},
		{FieldBackgroundColor, "blue", call{"style", []string{"background-color", "blue"}}, func(f *Fields) bool { return f.BackgroundColor == "rgb(0, 0, 255)" }},
		{FieldFontSize, "24", call{"style", []string{"font-size", "24px"}}, func(f *Fields) bool { return f.FontSize == 24 }},
		{FieldWidth, "120.5px", call{"style", []string{"width", "120.5px"}}, func(f *Fields) bool { return f.Width == 120.5 }},
		{FieldHeight, "0", call{"style", []string{"height", "0px"}}, func(f *Fields) bool { return f.Height == 0 }},
		{FieldBorderRadius, "8", call{"style", []string{"border-radius", "8px"}}, func(f *Fields) bool { return f.BorderRadius == 8 }},
		{FieldBold, "true", call{"style", []string{"font-weight", "700"}}, func(f *Fields) bool { return f.Bold }},
		{FieldBold, "false", call{"style", []string{"font-weight", "400"}}, func(f *Fields) bool { return !f.Bold }},
		{FieldTextAlign, "center", call{"style", []string{"text-align", "center"}}, func(f *Fields) bool { return f.TextAlign == "center" }},
		{FieldOpacity, "0.25", call{"style", []string{"opacity", "0.25"}}, func(f *Fields) bool { return f.Opacity == 0.25 }},
	}
	for _, tt := range tests {
		t.Run(string(tt.field)+"="+tt.value, func(t *testing.T) {
			cmd.calls = nil
			require.NoError(t, p.Edit(tt.field, tt.value))
			require.Len(t, cmd.calls, 1)
			assert.Equal(t, tt.want, cmd.calls[0])
			assert.True(t, tt.check(p.Fields()), "optimistic merge")
			assert.True(t, tt.check((*seen)[len(*seen)-1]), "listener sees the merge")
		})
	}
}

func TestEditRejections(t *testing.T) {
	p, cmd, _ := newPanel(t)
	assert.ErrorIs(t, p.Edit(FieldText, "x"), ErrNoSelection)

	p.Show(&paragraph)
	assert.ErrorIs(t, p.Edit(FieldSrc, "https://example.com/b.png"), ErrNotEditable)
	assert.ErrorIs(t, p.Edit(FieldFontSize, "big"), ErrInvalidValue)
	assert.ErrorIs(t, p.Edit(FieldWidth, "-4"), ErrInvalidValue)
	assert.ErrorIs(t, p.Edit(FieldOpacity, "1.5"), ErrInvalidValue)
	assert.ErrorIs(t, p.Edit(FieldColor, "not-a-color"), ErrInvalidValue)
	assert.ErrorIs(t, p.Edit(FieldBold, "maybe"), ErrInvalidValue)
	assert.ErrorIs(t, p.Edit(FieldTextAlign, "diagonal"), ErrInvalidValue)
	assert.ErrorIs(t, p.Edit(Field("zIndex"), "3"), ErrUnknownField)
	assert.Empty(t, cmd.calls, "rejected edits send nothing")
	assert.Equal(t, "hello", p.Fields().Text, "and merge nothing")

	p.Show(&wrapper)
	assert.ErrorIs(t, p.Edit(FieldText, "caption"), ErrNotEditable)
	require.NoError(t, p.Edit(FieldSrc, " https://example.com/b.png "))
	assert.Equal(t, call{"attr", []string{"src", "https://example.com/b.png"}}, cmd.calls[0])
	assert.Equal(t, "https://example.com/b.png", p.Fields().Src)
}

func TestButtons(t *testing.T) {
	p, cmd, seen := newPanel(t)
	assert.ErrorIs(t, p.LayerUp(), ErrNoSelection)
	assert.ErrorIs(t, p.Delete(), ErrNoSelection)

	p.Show(&paragraph)
	require.NoError(t, p.LayerUp())
	require.NoError(t, p.LayerDown())
	require.NoError(t, p.Duplicate())
	require.NoError(t, p.Delete())
	assert.Equal(t, []call{
		{"layer", []string{"up"}}, {"layer", []string{"down"}}, {"duplicate", nil}, {"delete", nil},
	}, cmd.calls)

	p.Show(nil)
	assert.Nil(t, p.Fields())
	assert.Nil(t, (*seen)[len(*seen)-1])
}

func TestFieldsReturnsCopy(t *testing.T) {
	p, _, _ := newPanel(t)
	p.Show(&paragraph)
	f := p.Fields()
	f.Text = "mutated"
	assert.Equal(t, "hello", p.Fields().Text)
}
