package domain

// GameLayout describes the visible grid and the symbol strips of one game.
// ReelCounts[r] maps symbol name to its count on reel r's strip; the analyzer
// derives theoretical combination frequencies from it. An empty ReelCounts
// means the distribution is unknown and a uniform baseline is assumed.
type GameLayout struct {
	Reels      int              `json:"reels"`
	Rows       int              `json:"rows"`
	Symbols    []string         `json:"symbols"`
	ReelCounts []map[string]int `json:"reelCounts,omitempty"`
}

// SymbolProb returns the probability of symbol landing on reel r, falling
// back to uniform over the symbol set when the strip counts are unknown.
func (l GameLayout) SymbolProb(r int, symbol string) float64 {
	if r < len(l.ReelCounts) && len(l.ReelCounts[r]) > 0 {
		total := 0
		for _, n := range l.ReelCounts[r] {
			total += n
		}
		if total == 0 {
			return 0
		}
		return float64(l.ReelCounts[r][symbol]) / float64(total)
	}
	if len(l.Symbols) == 0 {
		return 0
	}
	return 1 / float64(len(l.Symbols))
}
