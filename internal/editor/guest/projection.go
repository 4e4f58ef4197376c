// internal/editor/guest/projection.go
package guest

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-editor/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-editor/internal/browser/layout"
	"github.com/xkilldash9x/scalpel-editor/internal/browser/style"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/geometry"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/protocol"
)

// project computes the Selection Projection of s from resolved values.
// Width and height are the used sizes from a layout of the document on the
// design canvas.
func (r *Runtime) project(s Selectable) protocol.SelectionProjection {
	el := s.Element()
	resolver := r.styles.ForDocument(r.doc)
	c := resolver.Compute(el)
	width, height := r.usedSize(resolver, el)

	fontSize := style.ParseAbsoluteLength(c.Lookup("font-size", "16px"))
	p := protocol.SelectionProjection{
		TagName:         strings.ToUpper(el.Data),
		Text:            dom.TextContent(el, textSkip),
		Color:           c.Lookup("color", "rgb(0, 0, 0)"),
		FontSize:        fontSize,
		FontWeight:      c.Lookup("font-weight", "400"),
		TextAlign:       c.Lookup("text-align", "start"),
		Width:           width,
		Height:          height,
		Display:         c.Lookup("display", "inline"),
		BackgroundColor: c.Lookup("background-color", style.FormatColor(style.Transparent)),
		BorderRadius:    style.ParseLengthWithUnits(c.Lookup("border-top-left-radius", "0"), fontSize, style.BaseFontSize, 0),
		Opacity:         style.ParseOpacity(c.Lookup("opacity", "1")),
	}

	switch v := s.(type) {
	case ImageWrapper:
		p.HasImageChild = v.Image != nil
		if v.Image != nil {
			p.Src, _ = dom.Attr(v.Image, "src")
		}
	case PlainElement:
		if dom.IsElement(el, "img") {
			p.Src, _ = dom.Attr(el, "src")
		}
		p.HasImageChild = firstImage(el) != nil
	}
	return p
}

// usedSize lays out the document and reports el's used width and height.
// An element that generates no box measures 0.
func (r *Runtime) usedSize(resolver *style.Resolver, el *html.Node) (float64, float64) {
	tree := layout.NewEngine(resolver, layout.DesignWidth, layout.DesignHeight).Layout(r.doc)
	b, ok := tree.Box(el)
	if !ok {
		return 0, 0
	}
	return b.UsedWidth(), b.UsedHeight()
}

// startTransform is el's resolved transform, stylesheet rules included.
func startTransform(resolver *style.Resolver, el *html.Node) geometry.Transform {
	return geometry.ParseTransform(resolver.Compute(el).Lookup("transform", ""))
}

// firstImage returns the first img child of el.
func firstImage(el *html.Node) *html.Node {
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		if dom.IsElement(c, "img") {
			return c
		}
	}
	return nil
}
