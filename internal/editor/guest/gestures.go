// internal/editor/guest/gestures.go
package guest

import (
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-editor/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-editor/internal/browser/style"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/geometry"
)

// Dispatch feeds one native input event through the state machine.
func (r *Runtime) Dispatch(ev Event) {
	if r.disposed {
		return
	}
	if ev.Target != nil && !dom.Contains(r.doc, ev.Target) {
		// Stale reference into a tree this runtime no longer owns.
		r.logger.Debug("Ignoring event for detached target.", zap.Stringer("kind", ev.Kind))
		return
	}

	switch ev.Kind {
	case Click:
		r.onClick(ev)
	case DoubleClick:
		r.onDoubleClick(ev)
	case PointerDown:
		r.onPointerDown(ev)
	case PointerMove:
		r.onPointerMove(ev)
	case PointerUp:
		r.onPointerUp()
	case MouseOver:
		r.onMouseOver(ev)
	case MouseOut:
		r.onMouseOut(ev)
	case Input:
		r.onInput(ev)
	case Blur:
		r.onBlur()
	case KeyDown:
		r.onKeyDown(ev)
	}
}

func (r *Runtime) onClick(ev Event) {
	if r.state == Dragging || r.state == Resizing {
		return
	}
	if r.state == EditingText && r.isSelectedOrInside(ev.Target) {
		// Caret placement inside the element being edited.
		return
	}
	if isHandle(ev.Target) {
		return
	}
	if r.isRoot(ev.Target) {
		r.deselect()
		return
	}
	if r.state == EditingText {
		r.endEditing()
	}
	r.selectItem(r.classify(ev.Target))
}

func (r *Runtime) onDoubleClick(ev Event) {
	if r.state != Selected && r.state != Idle {
		return
	}
	if isHandle(ev.Target) || r.isRoot(ev.Target) {
		return
	}
	target := r.classify(ev.Target)
	if !r.sameSelection(target) {
		r.selectItem(target)
	}
	if isImageLike(target) || dom.IsVoid(target.Element()) {
		return
	}
	r.beginEditing()
}

func (r *Runtime) beginEditing() {
	el := r.selection.Element()
	detachHandles(el)
	markEditing(el)
	r.editText = dom.TextContent(el, textSkip)
	r.state = EditingText
}

// endEditing restores the non-editable state, reattaches handles and
// commits.
func (r *Runtime) endEditing() {
	el := r.selection.Element()
	releaseEditing(el)
	attachHandles(el)
	r.state = Selected
	if dom.TextContent(el, textSkip) != r.editText {
		r.logger.Debug("In-place edit changed text.")
	}
	r.editText = ""
	r.commit()
}

func (r *Runtime) onInput(ev Event) {
	if r.state != EditingText {
		return
	}
	dom.SetText(r.selection.Element(), ev.Text, nil)
}

func (r *Runtime) onBlur() {
	if r.state != EditingText {
		return
	}
	r.endEditing()
}

func (r *Runtime) onPointerDown(ev Event) {
	if r.state != Selected {
		// Suppressed while editing; nothing to move while idle.
		return
	}
	if owner, h, ok := handleOwner(ev.Target); ok {
		if owner != r.selection.Element() {
			return
		}
		r.gesture = gesture{
			startX: ev.ClientX,
			startY: ev.ClientY,
			scale:  r.scale,
			box:    r.currentBox(owner),
			handle: h,
		}
		r.state = Resizing
		return
	}
	if !r.isSelectedOrInside(ev.Target) {
		return
	}
	r.gesture = gesture{
		startX:    ev.ClientX,
		startY:    ev.ClientY,
		scale:     r.scale,
		transform: startTransform(r.styles.ForDocument(r.doc), r.selection.Element()),
	}
	r.state = Dragging
}

func (r *Runtime) onPointerMove(ev Event) {
	if r.state != Dragging && r.state != Resizing {
		return
	}
	// The zoom captured at pointer-down holds for the whole gesture.
	dx := geometry.PointerDeltaToDocumentDelta(ev.ClientX-r.gesture.startX, r.gesture.scale)
	dy := geometry.PointerDeltaToDocumentDelta(ev.ClientY-r.gesture.startY, r.gesture.scale)
	el := r.selection.Element()
	decls := style.Inline(el)

	if r.state == Dragging {
		t := r.gesture.transform.Translate(dx, dy)
		decls.Set("transform", t.String())
		style.SetInline(el, decls)
		return
	}

	res := geometry.Resize(r.gesture.box, r.gesture.handle, dx, dy, r.cfg.MinSize)
	if res.WidthApplied {
		decls.Set("width", style.FormatPx(res.Box.Width))
	}
	if res.HeightApplied {
		decls.Set("height", style.FormatPx(res.Box.Height))
	}
	if res.WidthApplied || res.HeightApplied {
		decls.Set("transform", res.Box.Transform.String())
	}
	style.SetInline(el, decls)
}

func (r *Runtime) onPointerUp() {
	if r.state != Dragging && r.state != Resizing {
		return
	}
	r.state = Selected
	r.gesture = gesture{}
	r.commit()
}

// currentBox reads the start geometry of a resize.
func (r *Runtime) currentBox(el *html.Node) geometry.Box {
	resolver := r.styles.ForDocument(r.doc)
	w, h := r.usedSize(resolver, el)
	return geometry.Box{Width: w, Height: h, Transform: startTransform(resolver, el)}
}

func (r *Runtime) onMouseOver(ev Event) {
	t := ev.Target
	if t == nil || r.isRoot(t) || isHandle(t) {
		r.clearHover()
		return
	}
	// Hovering the image inside a wrapper highlights the wrapper.
	if s := r.hoverTarget(t); s != nil {
		t = s
	}
	if r.selection != nil && r.selection.Element() == t {
		r.clearHover()
		return
	}
	if r.hover == t {
		return
	}
	r.clearHover()
	dom.SetAttr(t, AttrHover, "")
	r.hover = t
}

func (r *Runtime) hoverTarget(t *html.Node) *html.Node {
	if dom.IsElement(t, "img") && isWrapper(t.Parent) {
		return t.Parent
	}
	return nil
}

func (r *Runtime) onMouseOut(ev Event) {
	t := ev.Target
	if w := r.hoverTarget(t); w != nil {
		t = w
	}
	if r.hover != nil && r.hover == t {
		r.clearHover()
	}
}

func (r *Runtime) onKeyDown(ev Event) {
	switch {
	case keyIs(ev.Key, "Escape", "Esc"):
		r.deselect()
	case keyIs(ev.Key, "Delete", "Backspace"):
		// Inside an in-place edit these keys edit text.
		if r.state == Selected && r.selection != nil {
			r.deleteSelection()
		}
	}
}
