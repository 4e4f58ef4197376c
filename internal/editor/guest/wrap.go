// internal/editor/guest/wrap.go
package guest

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-editor/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-editor/internal/browser/imageload"
	"github.com/xkilldash9x/scalpel-editor/internal/browser/style"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/protocol"
)

// wrapperBoxProperties are copied from an image onto its new wrapper.
var wrapperBoxProperties = []string{
	"display", "position", "top", "right", "bottom", "left",
	"margin-top", "margin-right", "margin-bottom", "margin-left",
	"transform", "z-index", "width", "height",
}

// imageResetProperties are cleared from a wrapped image so it fills the
// wrapper.
var imageResetProperties = []string{
	"top", "right", "bottom", "left", "margin", "transform", "z-index",
	"margin-top", "margin-right", "margin-bottom", "margin-left",
}

func newWrapper() *html.Node {
	return dom.NewElement("div", html.Attribute{Key: AttrWrapper, Val: "image"})
}

// fillWrapper resets img's own box so it fills its wrapper.
func fillWrapper(img *html.Node) {
	decls := style.Inline(img)
	for _, p := range imageResetProperties {
		decls.Delete(p)
	}
	decls.Set("display", "block")
	decls.Set("position", "static")
	decls.Set("width", "100%")
	decls.Set("height", "100%")
	style.SetInline(img, decls)
}

// wrapImage moves a bare image into a wrapper carrying the image's box and
// returns the wrapper as the selectable unit.
func (r *Runtime) wrapImage(img *html.Node) ImageWrapper {
	if isWrapper(img.Parent) {
		return ImageWrapper{Wrapper: img.Parent, Image: img}
	}

	resolver := r.styles.ForDocument(r.doc)
	c := resolver.Compute(img)

	var box style.Declarations
	for _, prop := range wrapperBoxProperties {
		if v, ok := c[prop]; ok && v != "" {
			box.Set(prop, v)
		}
	}
	// Without declared sizes the image's used size gives the box.
	w, h := r.usedSize(resolver, img)
	for _, used := range []struct {
		prop string
		px   float64
	}{{"width", w}, {"height", h}} {
		if _, ok := box.Get(used.prop); ok || used.px <= 0 {
			continue
		}
		box.Set(used.prop, style.FormatPx(used.px))
	}

	wrapper := newWrapper()
	style.SetInline(wrapper, box)
	img.Parent.InsertBefore(wrapper, img)
	img.Parent.RemoveChild(img)
	wrapper.AppendChild(img)
	fillWrapper(img)

	r.logger.Debug("Wrapped image.", zap.String("src", srcOf(img)))
	return ImageWrapper{Wrapper: wrapper, Image: img}
}

func srcOf(img *html.Node) string {
	v, _ := dom.Attr(img, "src")
	return v
}

// cmdInsertElement appends an empty wrapper at the insert position, then
// probes the image off the loop. Only a successful probe fills, sizes and
// selects the wrapper.
func (r *Runtime) cmdInsertElement(msg protocol.Message) {
	var p protocol.InsertPayload
	if !r.decode(msg, &p) {
		return
	}
	if !strings.EqualFold(p.Type, "img") {
		r.logger.Debug("Unsupported insert type.", zap.String("type", p.Type))
		return
	}
	if !r.policy.Allowed(p.Src) {
		r.logger.Warn("Image source rejected by policy.", zap.String("src", p.Src))
		return
	}
	if r.canvas == nil {
		r.logger.Warn("No canvas to insert into.")
		return
	}

	wrapper := newWrapper()
	style.SetInline(wrapper, style.Declarations{
		{Property: "position", Value: "absolute"},
		{Property: "left", Value: style.FormatPx(r.cfg.InsertX)},
		{Property: "top", Value: style.FormatPx(r.cfg.InsertY)},
	})
	r.canvas.AppendChild(wrapper)
	r.history.Trigger()

	if r.prober == nil {
		r.logger.Warn("Image load failed.", zap.String("src", p.Src), zap.String("reason", "no image prober"))
		return
	}

	src := p.Src
	r.loads.Add(1)
	go func() {
		defer r.loads.Done()
		size, err := r.prober.Probe(r.ctx, src)
		if r.ctx.Err() != nil {
			return
		}
		queueErr := r.sched.Enqueue(func() { r.finishInsert(wrapper, src, size, err) })
		if queueErr != nil {
			r.logger.Debug("Image load result dropped.", zap.Error(queueErr))
		}
	}()
}

func (r *Runtime) finishInsert(wrapper *html.Node, src string, size imageload.Size, err error) {
	if r.disposed {
		return
	}
	if err != nil {
		// The wrapper stays, empty and unsized; the selection does not move.
		r.logger.Warn("Image load failed.", zap.String("src", src), zap.Error(err))
		return
	}
	if !dom.Contains(r.doc, wrapper) {
		r.logger.Debug("Inserted wrapper removed before its image loaded.")
		return
	}

	w, h := float64(size.Width), float64(size.Height)
	if w > r.cfg.ImageMaxWidth {
		h = h * r.cfg.ImageMaxWidth / w
		w = r.cfg.ImageMaxWidth
	}
	_ = style.Merge(wrapper, map[string]string{
		"width":  style.FormatPx(w),
		"height": style.FormatPx(h),
	})

	img := dom.NewElement("img", html.Attribute{Key: "src", Val: src})
	fillWrapper(img)
	wrapper.AppendChild(img)

	if r.state == EditingText {
		r.endEditing()
	}
	r.selectItem(ImageWrapper{Wrapper: wrapper, Image: img})
	r.history.Trigger()
}
