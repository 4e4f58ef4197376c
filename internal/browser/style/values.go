// internal/browser/style/values.go
package style

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Color represents an RGBA color.
type Color struct {
	R, G, B, A uint8
}

var cssColors = map[string]Color{
	"black":       {0, 0, 0, 255},
	"white":       {255, 255, 255, 255},
	"red":         {255, 0, 0, 255},
	"green":       {0, 128, 0, 255},
	"blue":        {0, 0, 255, 255},
	"yellow":      {255, 255, 0, 255},
	"orange":      {255, 165, 0, 255},
	"purple":      {128, 0, 128, 255},
	"gray":        {128, 128, 128, 255},
	"grey":        {128, 128, 128, 255},
	"silver":      {192, 192, 192, 255},
	"navy":        {0, 0, 128, 255},
	"teal":        {0, 128, 128, 255},
	"maroon":      {128, 0, 0, 255},
	"lime":        {0, 255, 0, 255},
	"aqua":        {0, 255, 255, 255},
	"fuchsia":     {255, 0, 255, 255},
	"olive":       {128, 128, 0, 255},
	"transparent": {0, 0, 0, 0},
}

// Transparent is the initial background color.
var Transparent = Color{}

func ParseColor(value string) (Color, bool) {
	value = strings.TrimSpace(strings.ToLower(value))

	if color, ok := cssColors[value]; ok {
		return color, true
	}
	if strings.HasPrefix(value, "#") {
		return parseHexColor(value)
	}
	if strings.HasPrefix(value, "rgb") {
		return parseRGBColor(value)
	}
	return Color{0, 0, 0, 255}, false
}

// FormatColor serializes c the way browsers report resolved colors.
func FormatColor(c Color) string {
	if c.A == 255 {
		return fmt.Sprintf("rgb(%d, %d, %d)", c.R, c.G, c.B)
	}
	alpha := math.Round(float64(c.A)/255*1000) / 1000
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", c.R, c.G, c.B, strconv.FormatFloat(alpha, 'g', -1, 64))
}

// Hex renders c as #rrggbb, dropping alpha.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func parseHexColor(hex string) (Color, bool) {
	hex = strings.TrimPrefix(hex, "#")
	for i := 0; i < len(hex); i++ {
		if !isHexDigit(hex[i]) {
			return Color{}, false
		}
	}
	var r, g, b, a uint8 = 0, 0, 0, 255

	switch len(hex) {
	case 3:
		r = hexDigit(hex[0]) * 17
		g = hexDigit(hex[1]) * 17
		b = hexDigit(hex[2]) * 17
	case 4:
		r = hexDigit(hex[0]) * 17
		g = hexDigit(hex[1]) * 17
		b = hexDigit(hex[2]) * 17
		a = hexDigit(hex[3]) * 17
	case 6:
		r = hexDigit(hex[0])<<4 | hexDigit(hex[1])
		g = hexDigit(hex[2])<<4 | hexDigit(hex[3])
		b = hexDigit(hex[4])<<4 | hexDigit(hex[5])
	case 8:
		r = hexDigit(hex[0])<<4 | hexDigit(hex[1])
		g = hexDigit(hex[2])<<4 | hexDigit(hex[3])
		b = hexDigit(hex[4])<<4 | hexDigit(hex[5])
		a = hexDigit(hex[6])<<4 | hexDigit(hex[7])
	default:
		return Color{}, false
	}
	return Color{R: r, G: g, B: b, A: a}, true
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func hexDigit(c byte) uint8 {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

var rgbRegex = regexp.MustCompile(`rgba?\((.*?)\)`)

func parseRGBColor(value string) (Color, bool) {
	matches := rgbRegex.FindStringSubmatch(value)
	if len(matches) != 2 {
		return Color{}, false
	}

	values := strings.FieldsFunc(matches[1], func(r rune) bool {
		return r == ',' || r == ' ' || r == '/'
	})
	if len(values) < 3 || len(values) > 4 {
		return Color{}, false
	}

	r := parseColorComponent(values[0], false)
	g := parseColorComponent(values[1], false)
	b := parseColorComponent(values[2], false)
	a := uint8(255)
	if len(values) == 4 {
		a = parseColorComponent(values[3], true)
	}
	return Color{R: r, G: g, B: b, A: a}, true
}

func parseColorComponent(value string, isAlpha bool) uint8 {
	value = strings.TrimSpace(value)

	if strings.HasSuffix(value, "%") {
		percent, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64)
		if err != nil {
			return 0
		}
		return uint8(clamp(percent/100.0*255.0+0.5, 0, 255))
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		if isAlpha {
			return 255
		}
		return 0
	}
	if isAlpha {
		return uint8(clamp(val*255.0+0.5, 0, 255))
	}
	return uint8(clamp(val+0.5, 0, 255))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// -- Lengths --

// ParseLengthWithUnits resolves a length to pixels. Percentages resolve
// against referenceDimension; viewport units are not supported and yield 0.
func ParseLengthWithUnits(value string, parentFontSize, rootFontSize, referenceDimension float64) float64 {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" || value == "auto" || value == "normal" {
		return 0.0
	}

	parseNumeric := func(s, suffix string) (float64, bool) {
		v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, suffix)), 64)
		return v, err == nil
	}

	switch {
	case strings.HasSuffix(value, "%"):
		if percent, ok := parseNumeric(value, "%"); ok {
			return referenceDimension * (percent / 100.0)
		}
	case strings.HasSuffix(value, "px"):
		if px, ok := parseNumeric(value, "px"); ok {
			return px
		}
	// rem before em.
	case strings.HasSuffix(value, "rem"):
		if v, ok := parseNumeric(value, "rem"); ok {
			return v * rootFontSize
		}
	case strings.HasSuffix(value, "em"):
		if v, ok := parseNumeric(value, "em"); ok {
			return v * parentFontSize
		}
	case strings.HasSuffix(value, "pt"):
		if v, ok := parseNumeric(value, "pt"); ok {
			return v * 4 / 3
		}
	}
	// Unitless values are treated as px.
	if v, err := strconv.ParseFloat(value, 64); err == nil {
		return v
	}
	return 0.0
}

// ParseAbsoluteLength resolves a length with no font or box context.
func ParseAbsoluteLength(value string) float64 {
	return ParseLengthWithUnits(value, BaseFontSize, BaseFontSize, 0)
}

// FormatPx renders a pixel length with the shortest exact float form.
func FormatPx(v float64) string {
	if v == 0 {
		return "0px"
	}
	return strconv.FormatFloat(v, 'g', -1, 64) + "px"
}

// ParseOpacity reads a number or percentage, clamped to [0,1]. Anything
// unparseable is fully opaque.
func ParseOpacity(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 1
	}
	if strings.HasSuffix(value, "%") {
		v, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64)
		if err != nil {
			return 1
		}
		return clamp(v/100, 0, 1)
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 1
	}
	return clamp(v, 0, 1)
}
