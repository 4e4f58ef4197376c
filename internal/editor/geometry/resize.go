// internal/editor/geometry/resize.go
package geometry

import "strings"

// MinSize is the smallest width or height, in document units, a resize may
// commit.
const MinSize = 10.0

// Viewport scale bounds.
const (
	MinViewportScale = 0.1
	MaxViewportScale = 3.0
	// MaxFitScale caps the initial fit so small documents are never blown up.
	MaxFitScale = 1.0
)

// Handle names one of the eight resize grips around a selected element.
type Handle string

const (
	HandleN  Handle = "n"
	HandleNE Handle = "ne"
	HandleE  Handle = "e"
	HandleSE Handle = "se"
	HandleS  Handle = "s"
	HandleSW Handle = "sw"
	HandleW  Handle = "w"
	HandleNW Handle = "nw"
)

// Handles lists every grip in the order they are attached.
var Handles = []Handle{HandleN, HandleNE, HandleE, HandleSE, HandleS, HandleSW, HandleW, HandleNW}

// ParseHandle validates a handle name.
func ParseHandle(s string) (Handle, bool) {
	h := Handle(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Handles {
		if h == known {
			return h, true
		}
	}
	return "", false
}

func (h Handle) has(edge byte) bool {
	return strings.IndexByte(string(h), edge) >= 0
}

// Box is the document-space geometry a resize gesture starts from.
type Box struct {
	Width     float64
	Height    float64
	Transform Transform
}

// ResizeResult is the outcome of one resize step. WidthApplied and
// HeightApplied report which axes cleared the size floor; callers must only
// write the axes that were applied.
type ResizeResult struct {
	Box           Box
	WidthApplied  bool
	HeightApplied bool
}

// Resize computes the box produced by dragging handle h by (dx, dy)
// document units from start. East/south edges grow in the positive
// direction. West/north edges change size by the negated delta and move the
// translate by the delta so the opposite edge stays put. An axis whose new
// size would fall below minSize keeps its start size and start translate.
func Resize(start Box, h Handle, dx, dy, minSize float64) ResizeResult {
	if minSize <= 0 {
		minSize = MinSize
	}
	res := ResizeResult{Box: start}

	if h.has('e') || h.has('w') {
		w, tx := start.Width, start.Transform.TranslateX
		if h.has('e') {
			w = start.Width + dx
		} else {
			w = start.Width - dx
			tx = start.Transform.TranslateX + dx
		}
		if w >= minSize {
			res.Box.Width = w
			res.Box.Transform.TranslateX = tx
			res.WidthApplied = true
		}
	}

	if h.has('s') || h.has('n') {
		hgt, ty := start.Height, start.Transform.TranslateY
		if h.has('s') {
			hgt = start.Height + dy
		} else {
			hgt = start.Height - dy
			ty = start.Transform.TranslateY + dy
		}
		if hgt >= minSize {
			res.Box.Height = hgt
			res.Box.Transform.TranslateY = ty
			res.HeightApplied = true
		}
	}

	return res
}

// PointerDeltaToDocumentDelta converts a screen-pixel delta into document
// units under the given viewport zoom. Non-positive zoom counts as 1.
func PointerDeltaToDocumentDelta(pixelDelta, viewportScale float64) float64 {
	if viewportScale <= 0 {
		viewportScale = 1
	}
	return pixelDelta / viewportScale
}

// ClampViewportScale bounds a zoom factor to [MinViewportScale, MaxViewportScale].
func ClampViewportScale(v float64) float64 {
	return clamp(v, MinViewportScale, MaxViewportScale)
}

// FitScale is the zoom that fits a design canvas inside a viewport,
// clamped to [MinViewportScale, MaxFitScale].
func FitScale(viewportWidth, viewportHeight, designWidth, designHeight float64) float64 {
	if designWidth <= 0 || designHeight <= 0 || viewportWidth <= 0 || viewportHeight <= 0 {
		return MaxFitScale
	}
	s := viewportWidth / designWidth
	if hs := viewportHeight / designHeight; hs < s {
		s = hs
	}
	return clamp(s, MinViewportScale, MaxFitScale)
}

func clamp(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
