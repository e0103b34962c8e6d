package analyzer

import (
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/git-apexplanners/wsscapt/internal/domain"
	"github.com/git-apexplanners/wsscapt/internal/infrastructure/observability"
)

type indexEntry struct {
	sessionID string
	seq       int64
	firstSeen time.Time
}

// Detector groups spins by payload fingerprint. A bounded LRU index carries
// fingerprints across sessions so repeats between capture runs are flagged too.
type Detector struct {
	index   *lru.Cache[string, indexEntry]
	metrics *observability.Metrics
}

func NewDetector(indexSize int, metrics *observability.Metrics) (*Detector, error) {
	if indexSize <= 0 {
		indexSize = 4096
	}
	c, err := lru.New[string, indexEntry](indexSize)
	if err != nil {
		return nil, err
	}
	return &Detector{index: c, metrics: metrics}, nil
}

// Observe feeds the cross-session index with one appended spin and reports
// whether its fingerprint was first seen in a different session. Re-observing
// the same (session, seq) is a no-op, which keeps transport redeliveries from
// inflating counters.
func (d *Detector) Observe(sessionID string, spin domain.Spin) (domain.CrossSessionHit, bool) {
	if spin.Fingerprint == "" {
		return domain.CrossSessionHit{}, false
	}
	prev, ok := d.index.Get(spin.Fingerprint)
	if !ok {
		d.index.Add(spin.Fingerprint, indexEntry{sessionID: sessionID, seq: spin.Seq, firstSeen: spin.Ts})
		return domain.CrossSessionHit{}, false
	}
	if prev.sessionID == sessionID {
		if prev.seq != spin.Seq && d.metrics != nil {
			d.metrics.DuplicatesTotal.WithLabelValues("session").Inc()
		}
		return domain.CrossSessionHit{}, false
	}
	if d.metrics != nil {
		d.metrics.DuplicatesTotal.WithLabelValues("cross").Inc()
	}
	return domain.CrossSessionHit{
		Fingerprint:  spin.Fingerprint,
		OtherSession: prev.sessionID,
		OtherSeq:     prev.seq,
		FirstSeen:    prev.firstSeen,
	}, true
}

// Detect returns the fingerprint groups of size >= 2, ordered by first-seen
// timestamp ascending. Identical input always produces identical output:
// grouping keys off the deterministic fingerprint and ordering has a stable
// fingerprint tie-break.
func (d *Detector) Detect(session domain.Session, spins []domain.Spin) []domain.DuplicateRecord {
	byFp := make(map[string]*domain.DuplicateRecord)
	for _, sp := range spins {
		if sp.Fingerprint == "" {
			continue
		}
		rec, ok := byFp[sp.Fingerprint]
		if !ok {
			byFp[sp.Fingerprint] = &domain.DuplicateRecord{
				Fingerprint: sp.Fingerprint,
				Seqs:        []int64{sp.Seq},
				FirstSeen:   sp.Ts,
			}
			continue
		}
		rec.Seqs = append(rec.Seqs, sp.Seq)
		if sp.Ts.Before(rec.FirstSeen) {
			rec.FirstSeen = sp.Ts
		}
	}
	out := make([]domain.DuplicateRecord, 0, len(byFp))
	for _, rec := range byFp {
		if len(rec.Seqs) < 2 {
			continue
		}
		sort.Slice(rec.Seqs, func(i, j int) bool { return rec.Seqs[i] < rec.Seqs[j] })
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].FirstSeen.Before(out[j].FirstSeen)
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	return out
}
