// internal/editor/protocol/payloads.go
package protocol

// SelectionProjection is the read-only summary of the selected element's
// resolved visual properties. It is the only view of a live element that
// ever leaves the sandbox.
type SelectionProjection struct {
	TagName         string  `json:"tagName"`
	Text            string  `json:"text"`
	Color           string  `json:"color"`
	FontSize        float64 `json:"fontSize"`
	FontWeight      string  `json:"fontWeight"`
	TextAlign       string  `json:"textAlign"`
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
	Display         string  `json:"display"`
	BackgroundColor string  `json:"backgroundColor"`
	BorderRadius    float64 `json:"borderRadius"`
	Src             string  `json:"src,omitempty"`
	HasImageChild   bool    `json:"hasImageChild"`
	Opacity         float64 `json:"opacity"`
}

// DocumentPayload carries a complete document string (HISTORY_UPDATE,
// HTML_RESULT).
type DocumentPayload struct {
	Document string `json:"document"`
}

// ScalePayload is the viewport zoom sent with UPDATE_SCALE.
type ScalePayload struct {
	Value float64 `json:"value"`
}

// StylePayload merges any number of style properties into the selection.
type StylePayload map[string]string

// ContentPayload replaces the selection's text.
type ContentPayload struct {
	Text string `json:"text"`
}

// AttributePayload sets one attribute on the selection.
type AttributePayload struct {
	Key string `json:"key"`
	Val string `json:"val"`
}

// InsertPayload describes an element to create. Only "img" is supported.
type InsertPayload struct {
	Type string `json:"type"`
	Src  string `json:"src"`
}

// TransformPayload nudges the selection's translate and optionally replaces
// its scale.
type TransformPayload struct {
	DX    float64  `json:"dx"`
	DY    float64  `json:"dy"`
	Scale *float64 `json:"scale,omitempty"`
}

// LayerDirection is the z-order step of a LAYER command.
type LayerDirection string

const (
	LayerUp   LayerDirection = "up"
	LayerDown LayerDirection = "down"
)

// LayerPayload moves the selection one step in the stacking order.
type LayerPayload struct {
	Direction LayerDirection `json:"direction"`
}
