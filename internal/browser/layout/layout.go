// internal/browser/layout/layout.go
package layout

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-editor/internal/browser/style"
)

// -- Constants and Configuration --

const (
	// DesignWidth and DesignHeight are the canvas a document is authored for.
	DesignWidth  = 1280.0
	DesignHeight = 720.0

	// DefaultLineHeight is the multiplier behind 'line-height: normal'.
	DefaultLineHeight = 1.2

	// glyphAdvance approximates the advance of one glyph in ems. There is no
	// font shaping; text width is a function of rune count.
	glyphAdvance = 0.6
)

// -- Box Model Structures --

// Rect is an axis-aligned rectangle in document pixels.
type Rect struct {
	X, Y, Width, Height float64
}

// ExpandedBy grows the rectangle outward by the given edges.
func (r Rect) ExpandedBy(e Edges) Rect {
	return Rect{
		X:      r.X - e.Left,
		Y:      r.Y - e.Top,
		Width:  r.Width + e.Left + e.Right,
		Height: r.Height + e.Top + e.Bottom,
	}
}

// Edges is the thickness of one box model layer.
type Edges struct {
	Top, Right, Bottom, Left float64
}

func (e Edges) horizontal() float64 { return e.Left + e.Right }
func (e Edges) vertical() float64   { return e.Top + e.Bottom }

// Dimensions is the CSS box model of one box.
type Dimensions struct {
	Content Rect
	Padding Edges
	Border  Edges
	Margin  Edges
}

// PaddingBox is the content area plus padding.
func (d Dimensions) PaddingBox() Rect { return d.Content.ExpandedBy(d.Padding) }

// BorderBox is the padding box plus borders.
func (d Dimensions) BorderBox() Rect { return d.PaddingBox().ExpandedBy(d.Border) }

// MarginBox is the border box plus margins.
func (d Dimensions) MarginBox() Rect { return d.BorderBox().ExpandedBy(d.Margin) }

// -- Layout Tree Structures --

// BoxType is how a box takes part in its parent's flow.
type BoxType int

const (
	BlockBox BoxType = iota
	InlineBox
	InlineBlockBox
	TextBox
)

// Box is one node of the layout tree.
type Box struct {
	Dimensions Dimensions
	Type       BoxType
	Node       *html.Node
	Style      style.Computed
	Children   []*Box

	replaced bool
	// shrink marks boxes whose auto width is shrink-to-fit: atomic inlines,
	// floats and absolutely positioned boxes.
	shrink bool
}

func (b *Box) outOfFlow() bool {
	switch b.Style.Lookup("position", "static") {
	case "absolute", "fixed":
		return b.Type != TextBox
	}
	return false
}

func (b *Box) borderBoxSizing() bool {
	return b.Type != TextBox && b.Style.Lookup("box-sizing", "content-box") == "border-box"
}

// UsedWidth is the width declaration that reproduces the laid out box: the
// content width, or the border-box width under 'box-sizing: border-box'.
func (b *Box) UsedWidth() float64 {
	if b.borderBoxSizing() {
		return b.Dimensions.BorderBox().Width
	}
	return b.Dimensions.Content.Width
}

// UsedHeight is the height counterpart of UsedWidth.
func (b *Box) UsedHeight() float64 {
	if b.borderBoxSizing() {
		return b.Dimensions.BorderBox().Height
	}
	return b.Dimensions.Content.Height
}

// Tree is a laid out document.
type Tree struct {
	Root  *Box
	boxes map[*html.Node]*Box
}

// Box returns the box generated by element n. Elements that generate no box,
// such as those under 'display: none', report false.
func (t *Tree) Box(n *html.Node) (*Box, bool) {
	if t == nil {
		return nil, false
	}
	b, ok := t.boxes[n]
	return b, ok
}

// -- Layout Engine --

// Engine lays out documents against a fixed viewport.
type Engine struct {
	resolver       *style.Resolver
	viewportWidth  float64
	viewportHeight float64
}

// NewEngine builds an engine over resolved values from resolver. A
// non-positive viewport dimension falls back to the design canvas.
func NewEngine(resolver *style.Resolver, viewportWidth, viewportHeight float64) *Engine {
	if viewportWidth <= 0 {
		viewportWidth = DesignWidth
	}
	if viewportHeight <= 0 {
		viewportHeight = DesignHeight
	}
	return &Engine{resolver: resolver, viewportWidth: viewportWidth, viewportHeight: viewportHeight}
}

// Layout builds the box tree of doc's root element and runs block and inline
// flow over it.
func (e *Engine) Layout(doc *html.Node) *Tree {
	t := &Tree{boxes: make(map[*html.Node]*Box)}
	root := rootElement(doc)
	if root == nil {
		return t
	}
	t.Root = e.build(root, t, nil)
	if t.Root == nil {
		return t
	}
	// The root element is always block-level and fills the viewport width.
	t.Root.Type = BlockBox
	t.Root.shrink = false
	e.sizeWidth(t.Root, e.viewportWidth)
	d := &t.Root.Dimensions
	d.Content.X = d.Margin.Left + d.Border.Left + d.Padding.Left
	d.Content.Y = d.Margin.Top + d.Border.Top + d.Padding.Top
	e.layoutInside(t.Root, e.viewportHeight)
	return t
}

func rootElement(doc *html.Node) *html.Node {
	if doc == nil {
		return nil
	}
	if doc.Type == html.ElementNode {
		return doc
	}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// -- Box Tree Construction --

func (e *Engine) build(n *html.Node, t *Tree, parent style.Computed) *Box {
	switch n.Type {
	case html.TextNode:
		if strings.TrimSpace(n.Data) == "" {
			return nil
		}
		return &Box{Type: TextBox, Node: n, Style: parent}
	case html.ElementNode:
	default:
		return nil
	}

	c := e.resolver.Compute(n)
	display := c.Lookup("display", "inline")
	if display == "none" {
		return nil
	}
	b := &Box{Node: n, Style: c, Type: boxTypeFor(display), replaced: isReplaced(n)}
	floated := c.Lookup("float", "none") != "none"
	if b.outOfFlow() || floated {
		// Blockified, with a shrink-to-fit width.
		if b.Type == InlineBox {
			b.Type = InlineBlockBox
		}
		b.shrink = true
	}
	if b.Type == InlineBlockBox {
		b.shrink = true
	}
	t.boxes[n] = b

	if b.replaced {
		return b
	}
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		if cb := e.build(ch, t, c); cb != nil {
			b.Children = append(b.Children, cb)
		}
	}
	return b
}

func boxTypeFor(display string) BoxType {
	switch display {
	case "inline":
		return InlineBox
	case "inline-block", "inline-flex", "inline-grid", "inline-table", "table-cell":
		return InlineBlockBox
	default:
		return BlockBox
	}
}

func isReplaced(n *html.Node) bool {
	switch strings.ToLower(n.Data) {
	case "img", "video", "canvas", "iframe", "input", "textarea", "select":
		return true
	}
	return false
}

// -- Length Resolution --

func fontSize(c style.Computed) float64 {
	if fs := style.ParseAbsoluteLength(c.Lookup("font-size", "16px")); fs > 0 {
		return fs
	}
	return style.BaseFontSize
}

// length resolves value like style.ParseLengthWithUnits, adding the viewport
// units that only the layout engine can answer.
func (e *Engine) length(c style.Computed, value string, reference float64) float64 {
	v := strings.ToLower(strings.TrimSpace(value))
	if num, ok := strings.CutSuffix(v, "vw"); ok {
		if f, err := strconv.ParseFloat(num, 64); err == nil {
			return f * e.viewportWidth / 100
		}
	}
	if num, ok := strings.CutSuffix(v, "vh"); ok {
		if f, err := strconv.ParseFloat(num, 64); err == nil {
			return f * e.viewportHeight / 100
		}
	}
	return style.ParseLengthWithUnits(v, fontSize(c), style.BaseFontSize, reference)
}

// autoLength is length with 'auto' reported as NaN.
func (e *Engine) autoLength(c style.Computed, value string, reference float64) float64 {
	if strings.TrimSpace(value) == "auto" {
		return math.NaN()
	}
	return e.length(c, value, reference)
}

func zeroIfAuto(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

func lineHeight(c style.Computed) float64 {
	fs := fontSize(c)
	v := strings.TrimSpace(c.Lookup("line-height", "normal"))
	if v == "" || v == "normal" {
		return fs * DefaultLineHeight
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f * fs
	}
	return style.ParseLengthWithUnits(v, fs, style.BaseFontSize, fs)
}

func borderWidth(c style.Computed, side string) float64 {
	switch c.Lookup("border-"+side+"-style", "none") {
	case "none", "hidden":
		return 0
	}
	switch w := c.Lookup("border-"+side+"-width", "medium"); w {
	case "thin":
		return 1
	case "medium":
		return 3
	case "thick":
		return 5
	default:
		return math.Max(0, style.ParseLengthWithUnits(w, fontSize(c), style.BaseFontSize, 0))
	}
}

// edges resolves padding, borders and non-auto margins. Percentages refer
// to the containing block width, vertical ones included.
func (e *Engine) edges(b *Box, reference float64) (padding, border, margin Edges) {
	c := b.Style
	pad := func(side string) float64 {
		return math.Max(0, e.length(c, c.Lookup("padding-"+side, "0"), reference))
	}
	mar := func(side string) float64 {
		return zeroIfAuto(e.autoLength(c, c.Lookup("margin-"+side, "0"), reference))
	}
	padding = Edges{Top: pad("top"), Right: pad("right"), Bottom: pad("bottom"), Left: pad("left")}
	border = Edges{
		Top: borderWidth(c, "top"), Right: borderWidth(c, "right"),
		Bottom: borderWidth(c, "bottom"), Left: borderWidth(c, "left"),
	}
	margin = Edges{Top: mar("top"), Right: mar("right"), Bottom: mar("bottom"), Left: mar("left")}
	if b.Type == InlineBox {
		// Vertical margins do not apply to non-replaced inline boxes.
		margin.Top, margin.Bottom = 0, 0
	}
	return padding, border, margin
}

// -- Width Resolution --

// sizeWidth resolves the width and edges of b inside a containing block of
// content width avail.
func (e *Engine) sizeWidth(b *Box, avail float64) {
	d := &b.Dimensions
	d.Padding, d.Border, d.Margin = e.edges(b, avail)
	static := d.Padding.horizontal() + d.Border.horizontal()

	c := b.Style
	width := e.autoLength(c, c.Lookup("width", "auto"), avail)
	if !math.IsNaN(width) && b.borderBoxSizing() {
		width = math.Max(0, width-static)
	}
	ml := e.autoLength(c, c.Lookup("margin-left", "0"), avail)
	mr := e.autoLength(c, c.Lookup("margin-right", "0"), avail)

	switch {
	case b.replaced:
		if math.IsNaN(width) {
			width = intrinsic(b.Node, "width")
		}
		ml, mr = zeroIfAuto(ml), zeroIfAuto(mr)
	case b.shrink:
		ml, mr = zeroIfAuto(ml), zeroIfAuto(mr)
		if math.IsNaN(width) {
			fit := math.Max(0, avail-static-ml-mr)
			width = math.Min(e.preferredWidth(b), fit)
		}
	case math.IsNaN(width):
		// Auto width fills the containing block.
		ml, mr = zeroIfAuto(ml), zeroIfAuto(mr)
		width = math.Max(0, avail-static-ml-mr)
	case math.IsNaN(ml) && math.IsNaN(mr):
		// Both margins auto: center the box.
		rest := math.Max(0, avail-static-width)
		ml, mr = rest/2, rest/2
	case math.IsNaN(ml):
		ml = avail - static - width - mr
	case math.IsNaN(mr):
		mr = avail - static - width - ml
	}

	if !b.replaced {
		width = e.clamp(b, width, avail, "width", static)
	}
	d.Content.Width = math.Max(0, width)
	d.Margin.Left, d.Margin.Right = ml, mr
}

// clamp applies min-* and max-* constraints to a content dimension.
func (e *Engine) clamp(b *Box, v, reference float64, axis string, static float64) float64 {
	resolve := func(prop string) (float64, bool) {
		raw := strings.TrimSpace(b.Style.Lookup(prop, "none"))
		if raw == "none" || raw == "auto" || (strings.HasSuffix(raw, "%") && reference < 0) {
			return 0, false
		}
		px := e.length(b.Style, raw, reference)
		if b.borderBoxSizing() {
			px -= static
		}
		return px, true
	}
	if mx, ok := resolve("max-" + axis); ok && v > mx {
		v = mx
	}
	if mn, ok := resolve("min-" + axis); ok && v < mn {
		v = mn
	}
	return v
}

// intrinsic reads the presentational size attribute of a replaced element.
func intrinsic(n *html.Node, attr string) float64 {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, attr) {
			v := strings.TrimSuffix(strings.TrimSpace(a.Val), "px")
			if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
				return f
			}
		}
	}
	return 0
}

// preferredWidth is the max-content width of b's content: inline runs laid
// out on one line, block children stacked.
func (e *Engine) preferredWidth(b *Box) float64 {
	if b.Type == TextBox {
		return textWidth(b)
	}
	if b.replaced {
		if w := b.Style.Lookup("width", "auto"); w != "auto" && !strings.HasSuffix(w, "%") {
			return e.length(b.Style, w, 0)
		}
		return intrinsic(b.Node, "width")
	}
	var line, widest float64
	for _, c := range b.Children {
		if c.outOfFlow() {
			continue
		}
		w := e.preferredOuterWidth(c)
		if c.Type == BlockBox && !c.shrink {
			widest = math.Max(widest, math.Max(line, w))
			line = 0
			continue
		}
		line += w
	}
	return math.Max(widest, line)
}

func (e *Engine) preferredOuterWidth(b *Box) float64 {
	if b.Type == TextBox {
		return textWidth(b)
	}
	padding, border, margin := e.edges(b, 0)
	static := padding.horizontal() + border.horizontal()
	inner := e.preferredWidth(b)
	if w := b.Style.Lookup("width", "auto"); w != "auto" && !strings.HasSuffix(w, "%") {
		inner = e.length(b.Style, w, 0)
		if b.borderBoxSizing() {
			inner = math.Max(0, inner-static)
		}
	}
	return inner + static + margin.horizontal()
}

func collapsedText(b *Box) string {
	return strings.Join(strings.Fields(b.Node.Data), " ")
}

func textWidth(b *Box) float64 {
	return float64(utf8.RuneCountInString(collapsedText(b))) * fontSize(b.Style) * glyphAdvance
}

// -- Height Resolution --

// specifiedHeight resolves a declared height as a content height. NaN means
// auto; percentages need a definite containing height (cbHeight >= 0).
func (e *Engine) specifiedHeight(b *Box, cbHeight float64) float64 {
	raw := strings.TrimSpace(b.Style.Lookup("height", "auto"))
	if raw == "auto" || (strings.HasSuffix(raw, "%") && cbHeight < 0) {
		return math.NaN()
	}
	h := e.length(b.Style, raw, cbHeight)
	if b.borderBoxSizing() {
		d := b.Dimensions
		h -= d.Padding.vertical() + d.Border.vertical()
	}
	return math.Max(0, h)
}

// -- Flow --

// layoutInside runs the flow inside b, whose width and content origin are
// set, and resolves its height. A negative cbHeight is indefinite.
func (e *Engine) layoutInside(b *Box, cbHeight float64) {
	d := &b.Dimensions
	h := e.specifiedHeight(b, cbHeight)
	if b.replaced {
		if math.IsNaN(h) {
			h = intrinsic(b.Node, "height")
		}
		d.Content.Height = h
		return
	}

	own := -1.0
	if !math.IsNaN(h) {
		own = h
	}
	content := e.flow(b, own)
	if math.IsNaN(h) {
		h = content
	}
	static := d.Padding.vertical() + d.Border.vertical()
	d.Content.Height = math.Max(0, e.clamp(b, h, cbHeight, "height", static))
	e.layoutOutOfFlow(b)
}

// flow stacks b's block children with collapsed vertical margins and packs
// inline-level children into wrapping lines. It returns the content height.
func (e *Engine) flow(b *Box, ownHeight float64) float64 {
	d := &b.Dimensions
	x0, top := d.Content.X, d.Content.Y
	avail := d.Content.Width
	strut := lineHeight(b.Style)

	y := top
	var (
		pendingMargin float64
		lineX, lineH  float64
		inLine        bool
	)
	closeLine := func() {
		if inLine {
			y += math.Max(lineH, strut)
			lineX, lineH, inLine = 0, 0, false
		}
	}

	for _, c := range b.Children {
		if c.outOfFlow() {
			continue
		}
		if c.Type == BlockBox && !c.shrink {
			closeLine()
			e.sizeWidth(c, avail)
			cd := &c.Dimensions
			collapsed := math.Max(pendingMargin, cd.Margin.Top)
			cd.Content.X = x0 + cd.Margin.Left + cd.Border.Left + cd.Padding.Left
			cd.Content.Y = y + collapsed + cd.Border.Top + cd.Padding.Top
			e.layoutInside(c, ownHeight)
			bb := cd.BorderBox()
			y = bb.Y + bb.Height
			pendingMargin = cd.Margin.Bottom
			continue
		}

		if !inLine {
			y += pendingMargin
			pendingMargin = 0
			inLine = true
		}
		e.layoutInline(c, avail, ownHeight)
		mb := c.Dimensions.MarginBox()
		if lineX > 0 && lineX+mb.Width > avail {
			y += math.Max(lineH, strut)
			lineX, lineH = 0, 0
		}
		translate(c, x0+lineX, y)
		lineX += mb.Width
		lineH = math.Max(lineH, lineContribution(c))
	}
	closeLine()
	y += pendingMargin
	return y - top
}

func lineContribution(b *Box) float64 {
	if b.Type == InlineBox || b.Type == TextBox {
		return b.Dimensions.Content.Height
	}
	return b.Dimensions.MarginBox().Height
}

// layoutInline lays out an inline-level box with its margin box at the
// origin. The caller translates it onto its line.
func (e *Engine) layoutInline(b *Box, avail, cbHeight float64) {
	d := &b.Dimensions
	switch b.Type {
	case TextBox:
		w, lh := textWidth(b), lineHeight(b.Style)
		lines := 1.0
		if avail > 0 && w > avail {
			lines = math.Ceil(w / avail)
			w = avail
		}
		d.Content = Rect{Width: w, Height: lines * lh}
		return
	case InlineBox:
		d.Padding, d.Border, d.Margin = e.edges(b, avail)
		d.Content.X = d.Margin.Left + d.Border.Left + d.Padding.Left
		d.Content.Y = d.Border.Top + d.Padding.Top
		var x, h float64
		for _, c := range b.Children {
			if c.outOfFlow() {
				continue
			}
			e.layoutInline(c, avail, cbHeight)
			translate(c, d.Content.X+x, d.Content.Y)
			x += c.Dimensions.MarginBox().Width
			h = math.Max(h, lineContribution(c))
		}
		d.Content.Width = x
		d.Content.Height = math.Max(h, lineHeight(b.Style))
		e.layoutOutOfFlow(b)
		return
	}
	// Atomic inline: inline-block, float or replaced.
	e.sizeWidth(b, avail)
	d.Content.X = d.Margin.Left + d.Border.Left + d.Padding.Left
	d.Content.Y = d.Margin.Top + d.Border.Top + d.Padding.Top
	e.layoutInside(b, cbHeight)
}

// layoutOutOfFlow positions absolutely positioned children of b. The
// containing block is b's padding box for 'absolute' and the viewport for
// 'fixed'.
func (e *Engine) layoutOutOfFlow(b *Box) {
	for _, c := range b.Children {
		if !c.outOfFlow() {
			continue
		}
		cb := b.Dimensions.PaddingBox()
		if c.Style.Lookup("position", "") == "fixed" {
			cb = Rect{Width: e.viewportWidth, Height: e.viewportHeight}
		}
		cs := c.Style
		left := e.autoLength(cs, cs.Lookup("left", "auto"), cb.Width)
		right := e.autoLength(cs, cs.Lookup("right", "auto"), cb.Width)
		top := e.autoLength(cs, cs.Lookup("top", "auto"), cb.Height)

		e.sizeWidth(c, cb.Width)
		d := &c.Dimensions
		if cs.Lookup("width", "auto") == "auto" && !math.IsNaN(left) && !math.IsNaN(right) && !c.replaced {
			static := d.Padding.horizontal() + d.Border.horizontal()
			d.Content.Width = math.Max(0, cb.Width-left-right-static-d.Margin.horizontal())
		}

		x, y := b.Dimensions.Content.X, b.Dimensions.Content.Y
		if !math.IsNaN(left) {
			x = cb.X + left
		}
		if !math.IsNaN(top) {
			y = cb.Y + top
		}
		d.Content.X = x + d.Margin.Left + d.Border.Left + d.Padding.Left
		d.Content.Y = y + d.Margin.Top + d.Border.Top + d.Padding.Top
		e.layoutInside(c, cb.Height)
	}
}

// translate moves b and its subtree by (dx, dy).
func translate(b *Box, dx, dy float64) {
	b.Dimensions.Content.X += dx
	b.Dimensions.Content.Y += dy
	for _, c := range b.Children {
		translate(c, dx, dy)
	}
}
