package domain

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// SymbolCell is one recognized symbol at a grid position. Confidence is in [0,1].
type SymbolCell struct {
	Symbol     string  `json:"symbol"`
	Reel       int     `json:"reel"`
	Row        int     `json:"row"`
	Confidence float64 `json:"confidence"`
}

// SymbolGrid holds the recognized symbols for one screenshot. At most one
// symbol per grid position.
type SymbolGrid struct {
	Cells []SymbolCell `json:"cells,omitempty"`
}

func (g SymbolGrid) Empty() bool { return len(g.Cells) == 0 }

// ComboKey renders the grid as an ordered symbol tuple, stable across cell
// insertion order, e.g. "cherry|bell|cherry".
func (g SymbolGrid) ComboKey() string {
	if g.Empty() {
		return ""
	}
	cells := make([]SymbolCell, len(g.Cells))
	copy(cells, g.Cells)
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Reel != cells[j].Reel {
			return cells[i].Reel < cells[j].Reel
		}
		return cells[i].Row < cells[j].Row
	})
	var b strings.Builder
	for i, c := range cells {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(c.Symbol)
	}
	return b.String()
}

// SpinData is a resolved correlation entry as handed to the session store.
// Sequence numbers are assigned by the store, never by the correlator.
type SpinData struct {
	Ts             time.Time       `json:"ts"`
	Payload        json.RawMessage `json:"payload"`
	Fingerprint    string          `json:"fingerprint"`
	Grid           SymbolGrid      `json:"grid"`
	ScreenshotPath string          `json:"screenshotPath,omitempty"`
	BetSize        *float64        `json:"betSize,omitempty"`
	Outcome        *float64        `json:"outcome,omitempty"`
	Latency        time.Duration   `json:"latencyNs"`
	Expired        bool            `json:"expired"`
}

// Identity keys a spin by its underlying event so redelivered appends can be
// detected at the store boundary.
func (d SpinData) Identity() string {
	return d.Fingerprint + "@" + d.Ts.UTC().Format(time.RFC3339Nano)
}

// Spin is one correlated game round. Immutable once stored.
type Spin struct {
	SessionID string `json:"sessionId"`
	Seq       int64  `json:"seq"`
	SpinData
}
