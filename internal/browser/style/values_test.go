package style

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		input    string
		expected Color
		ok       bool
	}{
		// Keywords
		{"red", Color{R: 255, G: 0, B: 0, A: 255}, true},
		{"Transparent", Color{R: 0, G: 0, B: 0, A: 0}, true},
		// Hex
		{"#ff0099", Color{R: 0xff, G: 0x00, B: 0x99, A: 255}, true},
		{"#f09", Color{R: 0xff, G: 0x00, B: 0x99, A: 255}, true},
		{"#ff009988", Color{R: 0xff, G: 0x00, B: 0x99, A: 0x88}, true},
		// RGB/RGBA
		{"rgb(255, 0, 153)", Color{R: 255, G: 0, B: 153, A: 255}, true},
		// 0.5 * 255 = 127.5, rounded up.
		{"rgba(0, 0, 0, 0.5)", Color{R: 0, G: 0, B: 0, A: 128}, true},
		{"rgb(100%, 50%, 0%)", Color{R: 255, G: 128, B: 0, A: 255}, true},
		{"rgb(10 20 30 / 0)", Color{R: 10, G: 20, B: 30, A: 0}, true},
		// Invalid
		{"invalidcolor", Color{}, false},
		{"#12345", Color{}, false},
		{"#ggg", Color{}, false},
		{"rgb(1, 2)", Color{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			actual, ok := ParseColor(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, actual)
			}
		})
	}
}

func TestFormatColor(t *testing.T) {
	assert.Equal(t, "rgb(1, 2, 3)", FormatColor(Color{1, 2, 3, 255}))
	assert.Equal(t, "rgba(0, 0, 0, 0)", FormatColor(Transparent))
	assert.Equal(t, "rgba(0, 0, 0, 0.502)", FormatColor(Color{0, 0, 0, 128}))
	assert.Equal(t, "#ff0099", Color{0xff, 0x00, 0x99, 255}.Hex())
}

func TestParseLengthWithUnits(t *testing.T) {
	parentFontSize, rootFontSize, refDim := 20.0, 16.0, 100.0

	tests := []struct {
		input    string
		expected float64
	}{
		{"10px", 10.0},
		{"  12.5px ", 12.5},
		{"50%", 50.0},
		{"2em", 40.0},
		{"2rem", 32.0},
		{"12pt", 16.0},
		{"7", 7.0},
		{"-4px", -4.0},
		{"auto", 0.0},
		{"", 0.0},
		{"garbage", 0.0},
		{"10vw", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.InDelta(t, tt.expected, ParseLengthWithUnits(tt.input, parentFontSize, rootFontSize, refDim), 1e-9)
		})
	}
}

func TestFormatPx(t *testing.T) {
	assert.Equal(t, "0px", FormatPx(0))
	assert.Equal(t, "400px", FormatPx(400))
	assert.Equal(t, "12.5px", FormatPx(12.5))
}

func TestParseOpacity(t *testing.T) {
	assert.Equal(t, 1.0, ParseOpacity(""))
	assert.Equal(t, 0.5, ParseOpacity("0.5"))
	assert.Equal(t, 0.25, ParseOpacity("25%"))
	assert.Equal(t, 1.0, ParseOpacity("3"))
	assert.Equal(t, 0.0, ParseOpacity("-1"))
	assert.Equal(t, 1.0, ParseOpacity("nope"))
}
