// Package analyzer runs the statistical tests over a session's spins:
// symbol-combination frequencies against the layout's theoretical baseline,
// bet/outcome correlation, timing distribution, recurring outcome sequences
// and streak anomalies.
package analyzer

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/git-apexplanners/wsscapt/internal/domain"
	"github.com/git-apexplanners/wsscapt/internal/infrastructure/observability"
)

const (
	minSequenceWindow = 2
	maxSequenceWindow = 5
	streakAnomalyLen  = 5 // runs longer than this are reported
)

type Config struct {
	Method       string // "pearson" | "spearman"
	MinSamples   int
	Significance float64
	TopCombos    int
}

type Analyzer struct {
	cfg     Config
	layout  domain.GameLayout
	metrics *observability.Metrics
}

func New(cfg Config, layout domain.GameLayout, metrics *observability.Metrics) *Analyzer {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 30
	}
	if cfg.Significance <= 0 {
		cfg.Significance = 0.05
	}
	if cfg.TopCombos <= 0 {
		cfg.TopCombos = 10
	}
	if cfg.Method != "spearman" {
		cfg.Method = "pearson"
	}
	return &Analyzer{cfg: cfg, layout: layout, metrics: metrics}
}

// Analyze is a pure function of the given snapshot; it holds no state between
// calls and the report is never mutated after return.
func (a *Analyzer) Analyze(session domain.Session, spins []domain.Spin) domain.PatternReport {
	start := time.Now()
	report := domain.PatternReport{
		SessionID:   session.ID,
		GeneratedAt: start.UTC(),
		SpinCount:   len(spins),
	}

	report.Combos = a.comboStats(spins)
	var skipped int
	report.BetOutcome, skipped = a.betOutcome(spins)
	report.Skipped = skipped
	report.Timing = a.timing(spins)
	outcomes, startSeqs := outcomeSeries(spins)
	report.Sequences = recurringSequences(outcomes)
	report.Streaks = streakAnomalies(outcomes, startSeqs)
	report.DuplicateRatio = duplicateRatio(spins)

	if a.metrics != nil {
		a.metrics.AnalyzeDuration.Observe(time.Since(start).Seconds())
	}
	return report
}

// comboStats counts each distinct ordered symbol tuple and compares its
// empirical frequency with the theoretical frequency derived from the per-reel
// symbol counts, using a one-degree chi-square test per combination.
func (a *Analyzer) comboStats(spins []domain.Spin) []domain.ComboStat {
	counts := make(map[string]int)
	grids := make(map[string]domain.SymbolGrid)
	n := 0
	for _, sp := range spins {
		if sp.Grid.Empty() {
			continue
		}
		key := sp.Grid.ComboKey()
		counts[key]++
		grids[key] = sp.Grid
		n++
	}
	if n == 0 {
		return nil
	}
	chi1 := distuv.ChiSquared{K: 1}
	out := make([]domain.ComboStat, 0, len(counts))
	for key, count := range counts {
		cs := domain.ComboStat{
			Combo:     key,
			Count:     count,
			Empirical: float64(count) / float64(n),
			PValue:    1,
		}
		p := a.comboProb(grids[key])
		cs.Expected = p
		if p > 0 && p < 1 {
			e := float64(n) * p
			chi := (float64(count) - e) * (float64(count) - e) / (e * (1 - p))
			cs.PValue = chi1.Survival(chi)
			cs.Flagged = cs.PValue < a.cfg.Significance
		}
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Combo < out[j].Combo
	})
	if len(out) > a.cfg.TopCombos {
		out = out[:a.cfg.TopCombos]
	}
	return out
}

func (a *Analyzer) comboProb(grid domain.SymbolGrid) float64 {
	p := 1.0
	for _, cell := range grid.Cells {
		p *= a.layout.SymbolProb(cell.Reel, cell.Symbol)
	}
	return p
}

// betOutcome computes the configured correlation statistic over spins carrying
// both bet size and outcome. Below the minimum sample count the result says
// so explicitly instead of reporting a statistic.
func (a *Analyzer) betOutcome(spins []domain.Spin) (domain.CorrelationStat, int) {
	var bets, outcomes []float64
	skipped := 0
	for _, sp := range spins {
		switch {
		case sp.BetSize != nil && sp.Outcome != nil:
			bets = append(bets, *sp.BetSize)
			outcomes = append(outcomes, *sp.Outcome)
		case sp.Outcome != nil && sp.BetSize == nil:
			skipped++ // malformed: outcome without a bet
		}
	}
	cs := domain.CorrelationStat{Method: a.cfg.Method, Samples: len(bets)}
	if len(bets) < a.cfg.MinSamples {
		cs.Insufficient = true
		return cs, skipped
	}
	x, y := bets, outcomes
	if a.cfg.Method == "spearman" {
		x, y = ranks(bets), ranks(outcomes)
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		// zero variance on one side; no relationship measurable
		cs.Coefficient = 0
		cs.PValue = 1
		return cs, skipped
	}
	cs.Coefficient = r
	cs.PValue = correlationPValue(r, len(x))
	return cs, skipped
}

// correlationPValue is the two-sided p-value of r under the null hypothesis of
// no correlation, via the t-distribution with n-2 degrees of freedom.
func correlationPValue(r float64, n int) float64 {
	if n <= 2 {
		return 1
	}
	if r >= 1 || r <= -1 {
		return 0
	}
	t := r * math.Sqrt(float64(n-2)/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}
	return 2 * dist.Survival(math.Abs(t))
}

// ranks replaces values by their ranks, averaging ties.
func ranks(xs []float64) []float64 {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })
	out := make([]float64, len(xs))
	i := 0
	for i < len(idx) {
		j := i
		for j+1 < len(idx) && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = avg
		}
		i = j + 1
	}
	return out
}

func (a *Analyzer) timing(spins []domain.Spin) domain.TimingStats {
	ts := domain.TimingStats{}
	var intervals []float64
	for i, sp := range spins {
		if sp.Grid.Empty() {
			ts.Misses++
		}
		if i > 0 {
			intervals = append(intervals, sp.Ts.Sub(spins[i-1].Ts).Seconds()*1000)
		}
	}
	if len(spins) > 0 {
		ts.MissFraction = float64(ts.Misses) / float64(len(spins))
	}
	ts.Intervals = len(intervals)
	if len(intervals) == 0 {
		return ts
	}
	ts.MinMs = intervals[0]
	ts.MaxMs = intervals[0]
	for _, v := range intervals {
		ts.MinMs = math.Min(ts.MinMs, v)
		ts.MaxMs = math.Max(ts.MaxMs, v)
	}
	ts.MeanMs = stat.Mean(intervals, nil)
	if len(intervals) > 1 {
		ts.StdDevMs = stat.StdDev(intervals, nil)
	}
	return ts
}

func outcomeSeries(spins []domain.Spin) ([]float64, []int64) {
	var outcomes []float64
	var seqs []int64
	for _, sp := range spins {
		if sp.Outcome != nil {
			outcomes = append(outcomes, *sp.Outcome)
			seqs = append(seqs, sp.Seq)
		}
	}
	return outcomes, seqs
}

// recurringSequences finds outcome runs of window sizes 2..5 occurring more
// than once.
func recurringSequences(outcomes []float64) []domain.SequencePattern {
	if len(outcomes) < 3 {
		return nil
	}
	var out []domain.SequencePattern
	maxW := maxSequenceWindow
	if len(outcomes) < maxW {
		maxW = len(outcomes)
	}
	for w := minSequenceWindow; w <= maxW; w++ {
		counts := make(map[string]int)
		for i := 0; i+w <= len(outcomes); i++ {
			counts[patternKey(outcomes[i:i+w])]++
		}
		keys := make([]string, 0, len(counts))
		for k, c := range counts {
			if c > 1 {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, domain.SequencePattern{Window: w, Pattern: k, Count: counts[k]})
		}
	}
	return out
}

func patternKey(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// streakAnomalies reports unusually long runs of identical outcomes.
func streakAnomalies(outcomes []float64, seqs []int64) []domain.StreakAnomaly {
	var out []domain.StreakAnomaly
	i := 0
	for i < len(outcomes) {
		j := i
		for j+1 < len(outcomes) && outcomes[j+1] == outcomes[i] {
			j++
		}
		length := j - i + 1
		if length > streakAnomalyLen {
			out = append(out, domain.StreakAnomaly{Value: outcomes[i], Length: length, StartSeq: seqs[i]})
		}
		i = j + 1
	}
	return out
}

func duplicateRatio(spins []domain.Spin) float64 {
	total := 0
	unique := make(map[string]bool)
	for _, sp := range spins {
		if sp.Fingerprint == "" {
			continue
		}
		total++
		unique[sp.Fingerprint] = true
	}
	if total == 0 {
		return 0
	}
	return 1 - float64(len(unique))/float64(total)
}
