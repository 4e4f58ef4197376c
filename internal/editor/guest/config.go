// internal/editor/guest/config.go
package guest

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/scalpel-editor/internal/editor/debounce"
	"github.com/xkilldash9x/scalpel-editor/internal/editor/geometry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Defaults for the boot descriptor.
const (
	DefaultImageMaxWidth   = 400.0
	DefaultInsertX         = 50.0
	DefaultInsertY         = 50.0
	DefaultDuplicateOffset = 20.0
)

// Config is the runtime's boot descriptor. The host serializes it into the
// runtime script; the sandbox decodes it to start the runtime.
type Config struct {
	Instance        string  `json:"instance"`
	DebounceMillis  int     `json:"debounceMs"`
	MinSize         float64 `json:"minSize"`
	ImageMaxWidth   float64 `json:"imageMaxWidth"`
	InsertX         float64 `json:"insertX"`
	InsertY         float64 `json:"insertY"`
	DuplicateOffset float64 `json:"duplicateOffset"`
	Canvas          string  `json:"canvas,omitempty"`
}

// DefaultConfig returns a descriptor with every default filled in and no
// instance id.
func DefaultConfig() Config {
	return Config{
		DebounceMillis:  int(debounce.DefaultWindow / time.Millisecond),
		MinSize:         geometry.MinSize,
		ImageMaxWidth:   DefaultImageMaxWidth,
		InsertX:         DefaultInsertX,
		InsertY:         DefaultInsertY,
		DuplicateOffset: DefaultDuplicateOffset,
	}
}

// Window is the history debounce window.
func (c Config) Window() time.Duration {
	return time.Duration(c.DebounceMillis) * time.Millisecond
}

// withDefaults fills zero fields. An insert position of (0,0) is
// indistinguishable from unset and also takes the default.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DebounceMillis <= 0 {
		c.DebounceMillis = d.DebounceMillis
	}
	if c.MinSize <= 0 {
		c.MinSize = d.MinSize
	}
	if c.ImageMaxWidth <= 0 {
		c.ImageMaxWidth = d.ImageMaxWidth
	}
	if c.InsertX == 0 && c.InsertY == 0 {
		c.InsertX, c.InsertY = d.InsertX, d.InsertY
	}
	if c.DuplicateOffset == 0 {
		c.DuplicateOffset = d.DuplicateOffset
	}
	return c
}

// EncodeConfig serializes a boot descriptor.
func EncodeConfig(c Config) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encoding boot descriptor: %w", err)
	}
	return string(data), nil
}

// DecodeConfig parses a boot descriptor.
func DecodeConfig(text string) (Config, error) {
	var c Config
	if err := json.Unmarshal([]byte(text), &c); err != nil {
		return Config{}, fmt.Errorf("decoding boot descriptor: %w", err)
	}
	return c, nil
}
