package analyzer

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/git-apexplanners/wsscapt/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func numSpin(seq int64, bet, outcome float64) domain.Spin {
	return domain.Spin{
		SessionID: "s1",
		Seq:       seq,
		SpinData: domain.SpinData{
			Ts:          time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Second),
			Fingerprint: fmt.Sprintf("fp%d", seq),
			BetSize:     ptr(bet),
			Outcome:     ptr(outcome),
		},
	}
}

func gridSpin(seq int64, symbols ...string) domain.Spin {
	cells := make([]domain.SymbolCell, len(symbols))
	for i, s := range symbols {
		cells[i] = domain.SymbolCell{Symbol: s, Reel: i, Confidence: 1}
	}
	sp := numSpin(seq, 1, 0)
	sp.Grid = domain.SymbolGrid{Cells: cells}
	return sp
}

func testSession() domain.Session {
	return domain.Session{ID: "s1", Casino: "lucky", Game: "fruits"}
}

func TestAnalyzeInsufficientSamples(t *testing.T) {
	a := New(Config{MinSamples: 30}, domain.GameLayout{}, nil)
	var spins []domain.Spin
	for i := int64(1); i <= 10; i++ {
		spins = append(spins, numSpin(i, 1, float64(i)))
	}
	report := a.Analyze(testSession(), spins)
	assert.True(t, report.BetOutcome.Insufficient)
	assert.Equal(t, 10, report.BetOutcome.Samples)
	assert.Zero(t, report.BetOutcome.Coefficient)
}

func TestAnalyzePearsonDetectsLinearRelationship(t *testing.T) {
	a := New(Config{Method: "pearson", MinSamples: 30}, domain.GameLayout{}, nil)
	var spins []domain.Spin
	for i := int64(1); i <= 40; i++ {
		bet := float64(i%5 + 1)
		spins = append(spins, numSpin(i, bet, 2*bet))
	}
	report := a.Analyze(testSession(), spins)
	require.False(t, report.BetOutcome.Insufficient)
	assert.Equal(t, "pearson", report.BetOutcome.Method)
	assert.InDelta(t, 1.0, report.BetOutcome.Coefficient, 1e-9)
	assert.Less(t, report.BetOutcome.PValue, 0.001)
}

func TestAnalyzeSpearmanHandlesMonotonicNonlinear(t *testing.T) {
	a := New(Config{Method: "spearman", MinSamples: 30}, domain.GameLayout{}, nil)
	var spins []domain.Spin
	for i := int64(1); i <= 40; i++ {
		bet := float64(i)
		spins = append(spins, numSpin(i, bet, bet*bet*bet))
	}
	report := a.Analyze(testSession(), spins)
	require.False(t, report.BetOutcome.Insufficient)
	assert.Equal(t, "spearman", report.BetOutcome.Method)
	assert.InDelta(t, 1.0, report.BetOutcome.Coefficient, 1e-9)
}

func TestAnalyzeZeroVarianceReportsNoCorrelation(t *testing.T) {
	a := New(Config{MinSamples: 5}, domain.GameLayout{}, nil)
	var spins []domain.Spin
	for i := int64(1); i <= 10; i++ {
		spins = append(spins, numSpin(i, 1, float64(i)))
	}
	report := a.Analyze(testSession(), spins)
	require.False(t, report.BetOutcome.Insufficient)
	assert.Zero(t, report.BetOutcome.Coefficient)
	assert.Equal(t, 1.0, report.BetOutcome.PValue)
}

func TestAnalyzeSkipsOutcomeWithoutBet(t *testing.T) {
	a := New(Config{}, domain.GameLayout{}, nil)
	spins := []domain.Spin{numSpin(1, 1, 5)}
	malformed := numSpin(2, 0, 7)
	malformed.BetSize = nil
	spins = append(spins, malformed)
	report := a.Analyze(testSession(), spins)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.BetOutcome.Samples)
}

func TestAnalyzeComboFlagsOverrepresentedCombination(t *testing.T) {
	layout := domain.GameLayout{Reels: 1, Rows: 1, Symbols: []string{"cherry", "bell", "seven", "bar"}}
	a := New(Config{Significance: 0.05}, layout, nil)
	// 40 of 40 grids show the same symbol against a uniform 1/4 baseline
	var spins []domain.Spin
	for i := int64(1); i <= 40; i++ {
		spins = append(spins, gridSpin(i, "cherry"))
	}
	report := a.Analyze(testSession(), spins)
	require.Len(t, report.Combos, 1)
	combo := report.Combos[0]
	assert.Equal(t, "cherry", combo.Combo)
	assert.Equal(t, 40, combo.Count)
	assert.Equal(t, 1.0, combo.Empirical)
	assert.Equal(t, 0.25, combo.Expected)
	assert.True(t, combo.Flagged)
}

func TestAnalyzeComboUsesReelCounts(t *testing.T) {
	layout := domain.GameLayout{
		Reels:      1,
		Rows:       1,
		Symbols:    []string{"cherry", "bell"},
		ReelCounts: []map[string]int{{"cherry": 3, "bell": 1}},
	}
	a := New(Config{}, layout, nil)
	// 30 cherry, 10 bell exactly matches the 3:1 strip, so neither is flagged
	var spins []domain.Spin
	for i := int64(1); i <= 30; i++ {
		spins = append(spins, gridSpin(i, "cherry"))
	}
	for i := int64(31); i <= 40; i++ {
		spins = append(spins, gridSpin(i, "bell"))
	}
	report := a.Analyze(testSession(), spins)
	require.Len(t, report.Combos, 2)
	for _, c := range report.Combos {
		assert.False(t, c.Flagged, "combo %s should match its expected frequency", c.Combo)
	}
	assert.Equal(t, "cherry", report.Combos[0].Combo)
	assert.Equal(t, 0.75, report.Combos[0].Expected)
}

func TestAnalyzeTopCombosCap(t *testing.T) {
	layout := domain.GameLayout{Reels: 1, Rows: 1, Symbols: []string{"a", "b", "c", "d", "e"}}
	a := New(Config{TopCombos: 3}, layout, nil)
	var spins []domain.Spin
	seq := int64(1)
	for _, sym := range []string{"a", "b", "c", "d", "e"} {
		spins = append(spins, gridSpin(seq, sym))
		seq++
	}
	report := a.Analyze(testSession(), spins)
	assert.Len(t, report.Combos, 3)
}

func TestAnalyzeTimingStats(t *testing.T) {
	a := New(Config{}, domain.GameLayout{}, nil)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mk := func(seq int64, offset time.Duration, withGrid bool) domain.Spin {
		sp := numSpin(seq, 1, 0)
		sp.Ts = base.Add(offset)
		if withGrid {
			sp.Grid = domain.SymbolGrid{Cells: []domain.SymbolCell{{Symbol: "x"}}}
		}
		return sp
	}
	spins := []domain.Spin{
		mk(1, 0, true),
		mk(2, 1*time.Second, true),
		mk(3, 3*time.Second, false), // expired spin counts as a miss
		mk(4, 7*time.Second, true),
	}
	report := a.Analyze(testSession(), spins)
	tm := report.Timing
	assert.Equal(t, 3, tm.Intervals)
	assert.Equal(t, 1000.0, tm.MinMs)
	assert.Equal(t, 4000.0, tm.MaxMs)
	assert.InDelta(t, 7000.0/3, tm.MeanMs, 1e-9)
	assert.Equal(t, 1, tm.Misses)
	assert.InDelta(t, 0.25, tm.MissFraction, 1e-9)
}

func TestAnalyzeRecurringSequences(t *testing.T) {
	a := New(Config{}, domain.GameLayout{}, nil)
	outcomes := []float64{1, 2, 1, 2, 1}
	var spins []domain.Spin
	for i, out := range outcomes {
		spins = append(spins, numSpin(int64(i+1), 1, out))
	}
	report := a.Analyze(testSession(), spins)
	want := map[string]int{"1,2": 2, "2,1": 2, "1,2,1": 2}
	for _, seq := range report.Sequences {
		if count, ok := want[seq.Pattern]; ok {
			assert.Equal(t, count, seq.Count, "pattern %s", seq.Pattern)
			delete(want, seq.Pattern)
		}
	}
	assert.Empty(t, want, "missing expected patterns")
}

func TestAnalyzeStreakAnomaly(t *testing.T) {
	a := New(Config{}, domain.GameLayout{}, nil)
	var spins []domain.Spin
	for i := int64(1); i <= 3; i++ {
		spins = append(spins, numSpin(i, 1, float64(i)))
	}
	for i := int64(4); i <= 10; i++ { // run of seven zeros
		spins = append(spins, numSpin(i, 1, 0))
	}
	report := a.Analyze(testSession(), spins)
	require.Len(t, report.Streaks, 1)
	streak := report.Streaks[0]
	assert.Equal(t, 0.0, streak.Value)
	assert.Equal(t, 7, streak.Length)
	assert.Equal(t, int64(4), streak.StartSeq)
}

func TestAnalyzeDuplicateRatio(t *testing.T) {
	a := New(Config{}, domain.GameLayout{}, nil)
	fps := []string{"a", "a", "b", "c"}
	var spins []domain.Spin
	for i, fp := range fps {
		sp := numSpin(int64(i+1), 1, 0)
		sp.Fingerprint = fp
		spins = append(spins, sp)
	}
	report := a.Analyze(testSession(), spins)
	assert.InDelta(t, 0.25, report.DuplicateRatio, 1e-9)
}

func TestAnalyzeEmptySession(t *testing.T) {
	a := New(Config{}, domain.GameLayout{}, nil)
	report := a.Analyze(testSession(), nil)
	assert.Zero(t, report.SpinCount)
	assert.Empty(t, report.Combos)
	assert.True(t, report.BetOutcome.Insufficient)
	assert.Zero(t, report.DuplicateRatio)
}
