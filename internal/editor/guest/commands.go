// internal/editor/guest/commands.go
package guest

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-editor/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-editor/internal/browser/style"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/protocol"
)

type commandFunc func(*Runtime, protocol.Message)

// commands is the inbound dispatch table. Handlers that need a selection are
// silent no-ops without one.
var commands = map[protocol.Kind]commandFunc{
	protocol.KindUpdateScale:     (*Runtime).cmdUpdateScale,
	protocol.KindGetHTML:         (*Runtime).cmdGetHTML,
	protocol.KindInsertElement:   (*Runtime).cmdInsertElement,
	protocol.KindUpdateContent:   needsSelection((*Runtime).cmdUpdateContent),
	protocol.KindUpdateStyle:     needsSelection((*Runtime).cmdUpdateStyle),
	protocol.KindUpdateAttribute: needsSelection((*Runtime).cmdUpdateAttribute),
	protocol.KindDelete:          needsSelection((*Runtime).cmdDelete),
	protocol.KindDuplicate:       needsSelection((*Runtime).cmdDuplicate),
	protocol.KindLayer:           needsSelection((*Runtime).cmdLayer),
	protocol.KindUpdateTransform: needsSelection((*Runtime).cmdUpdateTransform),
	protocol.KindDeselectForce:   (*Runtime).cmdDeselectForce,
}

func needsSelection(fn commandFunc) commandFunc {
	return func(r *Runtime, msg protocol.Message) {
		if r.selection == nil {
			r.logger.Debug("No selection; command ignored.", zap.String("type", string(msg.Type)))
			return
		}
		fn(r, msg)
	}
}

func (r *Runtime) decode(msg protocol.Message, v any) bool {
	if err := msg.Decode(v); err != nil {
		r.logger.Debug("Ignoring command with bad payload.", zap.Error(err))
		return false
	}
	return true
}

func (r *Runtime) cmdUpdateScale(msg protocol.Message) {
	var p protocol.ScalePayload
	if !r.decode(msg, &p) {
		return
	}
	// Conversion treats non-positive zoom as 1; storing it as given keeps the
	// guard in one place.
	r.scale = p.Value
}

func (r *Runtime) cmdGetHTML(protocol.Message) {
	doc, err := r.Snapshot()
	if err != nil {
		r.logger.Warn("Failed to capture document.", zap.Error(err))
		return
	}
	r.post(protocol.KindHTMLResult, protocol.DocumentPayload{Document: doc})
}

func (r *Runtime) cmdUpdateStyle(msg protocol.Message) {
	var p protocol.StylePayload
	if !r.decode(msg, &p) || len(p) == 0 {
		return
	}
	if err := style.Merge(r.selection.Element(), p); err != nil {
		r.logger.Warn("Rejected style properties.", zap.Error(err))
	}
	r.commit()
}

func (r *Runtime) cmdUpdateContent(msg protocol.Message) {
	if isImageLike(r.selection) {
		return
	}
	var p protocol.ContentPayload
	if !r.decode(msg, &p) {
		return
	}
	el := r.selection.Element()
	if dom.IsVoid(el) {
		return
	}
	dom.SetText(el, p.Text, nil)
	if r.state != EditingText {
		attachHandles(el)
	}
	r.commit()
}

func (r *Runtime) cmdUpdateAttribute(msg protocol.Message) {
	var p protocol.AttributePayload
	if !r.decode(msg, &p) {
		return
	}
	key := strings.ToLower(strings.TrimSpace(p.Key))
	if key == "" || strings.HasPrefix(key, "data-editor-") {
		r.logger.Debug("Refusing to set reserved attribute.", zap.String("key", p.Key))
		return
	}
	target := attributeTarget(r.selection, key)
	if key == "src" && dom.IsElement(target, "img") && !r.policy.Allowed(p.Val) {
		r.logger.Warn("Image source rejected by policy.", zap.String("src", p.Val))
		return
	}
	dom.SetAttr(target, key, p.Val)
	r.commit()
}

func (r *Runtime) cmdUpdateTransform(msg protocol.Message) {
	var p protocol.TransformPayload
	if !r.decode(msg, &p) {
		return
	}
	el := r.selection.Element()
	decls := style.Inline(el)
	t := startTransform(r.styles.ForDocument(r.doc), el).Translate(p.DX, p.DY)
	if p.Scale != nil {
		t.Scale = *p.Scale
	}
	decls.Set("transform", t.String())
	style.SetInline(el, decls)
	r.commit()
}

func (r *Runtime) cmdLayer(msg protocol.Message) {
	var p protocol.LayerPayload
	if !r.decode(msg, &p) {
		return
	}
	var step int
	switch p.Direction {
	case protocol.LayerUp:
		step = 1
	case protocol.LayerDown:
		step = -1
	default:
		r.logger.Debug("Unknown layer direction.", zap.String("direction", string(p.Direction)))
		return
	}

	el := r.selection.Element()
	computed := r.styles.ForDocument(r.doc).Compute(el)
	z, err := strconv.Atoi(strings.TrimSpace(computed.Lookup("z-index", "0")))
	if err != nil {
		z = 0 // auto
	}
	z += step
	if z < 0 {
		z = 0
	}

	props := map[string]string{"z-index": strconv.Itoa(z)}
	if pos := computed.Lookup("position", "static"); pos == "static" {
		props["position"] = "relative"
	}
	_ = style.Merge(el, props)
	r.commit()
}

func (r *Runtime) cmdDuplicate(protocol.Message) {
	if r.state == EditingText {
		r.endEditing()
	}
	src := r.selection.Element()
	if src.Parent == nil {
		return
	}
	clone := dom.Clone(src)
	stripArtifacts(clone)

	// The clone is detached; it shares src's rules and inline style.
	decls := style.Inline(clone)
	t := startTransform(r.styles.ForDocument(r.doc), src).Translate(r.cfg.DuplicateOffset, r.cfg.DuplicateOffset)
	decls.Set("transform", t.String())
	style.SetInline(clone, decls)

	dom.InsertAfter(clone, src)
	r.selectItem(r.classify(clone))
	r.history.Trigger()
}

func (r *Runtime) cmdDelete(protocol.Message) {
	r.deleteSelection()
}

func (r *Runtime) deleteSelection() {
	el := r.selection.Element()
	if r.state == EditingText {
		r.endEditing()
	}
	r.clearSelectionMarks()
	if r.hover != nil && dom.Contains(el, r.hover) {
		r.clearHover()
	}
	dom.Detach(el)
	r.selection = nil
	r.state = Idle
	r.post(protocol.KindDeselect, nil)
	r.history.Trigger()
}

func (r *Runtime) cmdDeselectForce(protocol.Message) {
	r.deselect()
}
