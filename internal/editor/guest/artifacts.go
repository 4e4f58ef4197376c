// internal/editor/guest/artifacts.go
package guest

import (
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-editor/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/geometry"
)

// Editor-only markers. None of them may appear in a snapshot.
const (
	AttrSelected = "data-editor-selected"
	AttrHover    = "data-editor-hover"
	AttrHandle   = "data-editor-handle"
	AttrEditing  = "data-editor-editing"
	AttrArtifact = "data-editor-artifact"
	AttrRuntime  = "data-editor-runtime"

	// AttrWrapper marks image wrappers. Wrappers are document content and
	// survive snapshots.
	AttrWrapper = "data-editor-wrapper"
)

// RuntimeScriptType is the script type of the runtime boot element.
const RuntimeScriptType = "application/x-editor-runtime"

const artifactCSS = `
[data-editor-hover] { outline: 1px dashed #3b82f6; }
[data-editor-selected] { outline: 2px solid #2563eb; outline-offset: 1px; }
[data-editor-editing] { outline: 2px solid #f59e0b; cursor: text; }
[data-editor-handle] { position: absolute; width: 8px; height: 8px; background: #fff; border: 1px solid #2563eb; z-index: 2147483647; }
[data-editor-handle=nw] { left: -5px; top: -5px; cursor: nwse-resize; }
[data-editor-handle=n] { left: calc(50% - 5px); top: -5px; cursor: ns-resize; }
[data-editor-handle=ne] { right: -5px; top: -5px; cursor: nesw-resize; }
[data-editor-handle=e] { right: -5px; top: calc(50% - 5px); cursor: ew-resize; }
[data-editor-handle=se] { right: -5px; bottom: -5px; cursor: nwse-resize; }
[data-editor-handle=s] { left: calc(50% - 5px); bottom: -5px; cursor: ns-resize; }
[data-editor-handle=sw] { left: -5px; bottom: -5px; cursor: nesw-resize; }
[data-editor-handle=w] { left: -5px; top: calc(50% - 5px); cursor: ew-resize; }
`

func isHandle(n *html.Node) bool {
	return dom.IsElement(n) && dom.HasAttr(n, AttrHandle)
}

func isWrapper(n *html.Node) bool {
	return dom.IsElement(n) && dom.HasAttr(n, AttrWrapper)
}

// isArtifactNode reports nodes that exist only while editing.
func isArtifactNode(n *html.Node) bool {
	if !dom.IsElement(n) {
		return false
	}
	if dom.HasAttr(n, AttrHandle) || dom.HasAttr(n, AttrArtifact) {
		return true
	}
	if dom.IsElement(n, "script") {
		if dom.HasAttr(n, AttrRuntime) {
			return true
		}
		if t, _ := dom.Attr(n, "type"); t == RuntimeScriptType {
			return true
		}
	}
	return false
}

// installArtifactSheet adds the affordance styles to the head.
func installArtifactSheet(doc *html.Node) {
	head := dom.Head(doc)
	if head == nil {
		return
	}
	sheet := dom.NewElement("style", html.Attribute{Key: AttrArtifact})
	sheet.AppendChild(&html.Node{Type: html.TextNode, Data: artifactCSS})
	head.AppendChild(sheet)
}

// attachHandles gives el one handle per direction. Void elements cannot hold
// children and get none.
func attachHandles(el *html.Node) {
	if el == nil || dom.IsVoid(el) {
		return
	}
	detachHandles(el)
	for _, h := range geometry.Handles {
		el.AppendChild(dom.NewElement("div", html.Attribute{Key: AttrHandle, Val: string(h)}))
	}
}

// detachHandles removes el's direct handle children.
func detachHandles(el *html.Node) {
	if el == nil {
		return
	}
	for c := el.FirstChild; c != nil; {
		next := c.NextSibling
		if isHandle(c) {
			el.RemoveChild(c)
		}
		c = next
	}
}

// handleOwner returns the element a handle belongs to and its direction.
func handleOwner(n *html.Node) (*html.Node, geometry.Handle, bool) {
	if !isHandle(n) {
		return nil, "", false
	}
	v, _ := dom.Attr(n, AttrHandle)
	h, ok := geometry.ParseHandle(v)
	return n.Parent, h, ok
}

// stripArtifacts removes every editor-only node and marker from a subtree,
// in place.
func stripArtifacts(root *html.Node) {
	var doomed []*html.Node
	dom.Walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		if isArtifactNode(n) {
			doomed = append(doomed, n)
			return false
		}
		dom.RemoveAttr(n, AttrSelected)
		dom.RemoveAttr(n, AttrHover)
		releaseEditing(n)
		return true
	})
	for _, n := range doomed {
		dom.Detach(n)
	}
}

// cleanSnapshot renders doc without any editor artifacts. The live tree is
// left untouched, so the selection survives the capture.
func cleanSnapshot(doc *html.Node) (string, error) {
	clone := dom.Clone(doc)
	stripArtifacts(clone)
	return dom.Render(clone)
}

// editingAuthored marks an edit over an element whose contenteditable came
// from the document itself.
const editingAuthored = "authored"

// markEditing makes n editable in place.
func markEditing(n *html.Node) {
	if dom.HasAttr(n, "contenteditable") {
		dom.SetAttr(n, AttrEditing, editingAuthored)
		return
	}
	dom.SetAttr(n, "contenteditable", "true")
	dom.SetAttr(n, AttrEditing, "")
}

// releaseEditing undoes markEditing. An authored contenteditable stays.
func releaseEditing(n *html.Node) {
	v, ok := dom.Attr(n, AttrEditing)
	if !ok {
		return
	}
	dom.RemoveAttr(n, AttrEditing)
	if v != editingAuthored {
		dom.RemoveAttr(n, "contenteditable")
	}
}

// textSkip excludes handles from text content.
func textSkip(n *html.Node) bool {
	return isHandle(n)
}
