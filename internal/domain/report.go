package domain

import "time"

// DuplicateRecord groups spins sharing one payload fingerprint. A record is
// only emitted when at least two spins share the fingerprint.
type DuplicateRecord struct {
	Fingerprint string    `json:"fingerprint"`
	Seqs        []int64   `json:"seqs"`
	FirstSeen   time.Time `json:"firstSeen"`
}

// CrossSessionHit flags a fingerprint seen earlier in a different session.
type CrossSessionHit struct {
	Fingerprint  string    `json:"fingerprint"`
	OtherSession string    `json:"otherSession"`
	OtherSeq     int64     `json:"otherSeq"`
	FirstSeen    time.Time `json:"firstSeen"`
}

// ComboStat reports how often one ordered symbol combination occurred versus
// its theoretical frequency derived from per-reel symbol counts.
type ComboStat struct {
	Combo     string  `json:"combo"`
	Count     int     `json:"count"`
	Empirical float64 `json:"empirical"`
	Expected  float64 `json:"expected"`
	PValue    float64 `json:"pValue"`
	Flagged   bool    `json:"flagged"`
}

// CorrelationStat is the bet-size/outcome correlation result. Insufficient is
// set instead of a coefficient when fewer than the configured minimum number
// of qualifying spins exist; it is a normal state, not an error.
type CorrelationStat struct {
	Method       string  `json:"method"`
	Samples      int     `json:"samples"`
	Coefficient  float64 `json:"coefficient"`
	PValue       float64 `json:"pValue"`
	Insufficient bool    `json:"insufficient"`
}

type TimingStats struct {
	Intervals    int     `json:"intervals"`
	MinMs        float64 `json:"minMs"`
	MaxMs        float64 `json:"maxMs"`
	MeanMs       float64 `json:"meanMs"`
	StdDevMs     float64 `json:"stdDevMs"`
	Misses       int     `json:"misses"`
	MissFraction float64 `json:"missFraction"`
}

// SequencePattern is a recurring run of outcomes of a given window size.
type SequencePattern struct {
	Window  int    `json:"window"`
	Pattern string `json:"pattern"`
	Count   int    `json:"count"`
}

// StreakAnomaly is an unusually long run of identical outcomes.
type StreakAnomaly struct {
	Value    float64 `json:"value"`
	Length   int     `json:"length"`
	StartSeq int64   `json:"startSeq"`
}

// PatternReport is produced atomically from a snapshot of a session's spins
// and never mutated afterwards.
type PatternReport struct {
	SessionID      string            `json:"sessionId"`
	GeneratedAt    time.Time         `json:"generatedAt"`
	SpinCount      int               `json:"spinCount"`
	Combos         []ComboStat       `json:"combos"`
	BetOutcome     CorrelationStat   `json:"betOutcome"`
	Timing         TimingStats       `json:"timing"`
	Sequences      []SequencePattern `json:"sequences,omitempty"`
	Streaks        []StreakAnomaly   `json:"streaks,omitempty"`
	DuplicateRatio float64           `json:"duplicateRatio"`
	Skipped        int               `json:"skipped"`
}
