// internal/editor/geometry/transform.go
package geometry

import (
	"regexp"
	"strconv"
	"strings"
)

// Transform is the translate+scale state carried in an element's inline
// `transform` style. Translate and scale are addressed independently.
type Transform struct {
	TranslateX float64
	TranslateY float64
	Scale      float64
}

// Identity is the transform of an element that has never been moved.
func Identity() Transform {
	return Transform{Scale: 1}
}

var (
	translateRe = regexp.MustCompile(`translate\(\s*(-?[0-9]*\.?[0-9]+(?:e[-+]?[0-9]+)?)(?:px)?\s*(?:,\s*(-?[0-9]*\.?[0-9]+(?:e[-+]?[0-9]+)?)(?:px)?\s*)?\)`)
	scaleRe     = regexp.MustCompile(`scale\(\s*(-?[0-9]*\.?[0-9]+(?:e[-+]?[0-9]+)?)\s*\)`)
)

// ParseTransform extracts translate and scale from a transform style value.
// Missing or unparseable components fall back to (0, 0, 1); it never fails.
func ParseTransform(value string) Transform {
	t := Identity()
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" || value == "none" {
		return t
	}

	if m := translateRe.FindStringSubmatch(value); m != nil {
		if x, err := strconv.ParseFloat(m[1], 64); err == nil {
			t.TranslateX = x
		}
		if m[2] != "" {
			if y, err := strconv.ParseFloat(m[2], 64); err == nil {
				t.TranslateY = y
			}
		}
	}

	if m := scaleRe.FindStringSubmatch(value); m != nil {
		if s, err := strconv.ParseFloat(m[1], 64); err == nil {
			t.Scale = s
		}
	}

	return t
}

// ComposeTransform is the inverse of ParseTransform for every value the
// editor itself writes.
func ComposeTransform(tx, ty, scale float64) string {
	var b strings.Builder
	b.WriteString("translate(")
	b.WriteString(formatFloat(tx))
	b.WriteString("px, ")
	b.WriteString(formatFloat(ty))
	b.WriteString("px) scale(")
	b.WriteString(formatFloat(scale))
	b.WriteString(")")
	return b.String()
}

// String composes the transform into its style form.
func (t Transform) String() string {
	return ComposeTransform(t.TranslateX, t.TranslateY, t.Scale)
}

// Translate returns a copy moved by (dx, dy).
func (t Transform) Translate(dx, dy float64) Transform {
	t.TranslateX += dx
	t.TranslateY += dy
	return t
}

// formatFloat uses the shortest representation that parses back to the
// same float64, which is what keeps parse(compose(x)) == x exact.
func formatFloat(v float64) string {
	if v == 0 {
		// Avoid "-0" leaking into documents.
		return "0"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
