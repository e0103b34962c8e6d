// Package correlator merges the asynchronous capture and screenshot streams
// into spins. Responses wait in a bounded per-session buffer until a
// screenshot claims them or their tolerance window elapses.
package correlator

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/git-apexplanners/wsscapt/internal/domain"
	"github.com/git-apexplanners/wsscapt/internal/infrastructure/observability"
	"github.com/git-apexplanners/wsscapt/internal/usecase"
	"github.com/git-apexplanners/wsscapt/pkg/shared/normalize"
)

type Config struct {
	Tolerance     time.Duration
	BufferCap     int
	SweepInterval time.Duration
	BetKeys       []string
	OutcomeKeys   []string
}

// Sink receives resolved entries as append requests. Sequence numbers are
// assigned behind it, never here.
type Sink interface {
	AppendSpin(ctx context.Context, sessionID string, data domain.SpinData) (domain.Spin, error)
}

type screenshot struct {
	ts   time.Time
	path string
}

type pendingResponse struct {
	ts      time.Time
	payload json.RawMessage
	bet     *float64
	// claimed holds the matched screenshot when a prior sink failure left the
	// entry queued for retry.
	claimed *screenshot
}

// sessionState serializes one session's correlation work. Connections within
// a session share the screenshot pool, so their claims serialize here;
// distinct sessions correlate in parallel.
type sessionState struct {
	mu      sync.Mutex
	pending []*pendingResponse // ordered by response timestamp
	shots   []*screenshot      // unclaimed, ordered by timestamp
	lastBet map[string]float64 // per correlation key, from request events
}

type Correlator struct {
	cfg        Config
	sink       Sink
	recognizer usecase.Recognizer
	layout     domain.GameLayout
	fp         *normalize.Fingerprinter
	logger     *zerolog.Logger
	metrics    *observability.Metrics
	now        func() time.Time

	mu           sync.RWMutex
	sessions     map[string]*sessionState
	pendingCount atomic.Int64

	stop chan struct{}
	done chan struct{}
}

func New(cfg Config, sink Sink, recognizer usecase.Recognizer, layout domain.GameLayout, fp *normalize.Fingerprinter, logger *zerolog.Logger, metrics *observability.Metrics) *Correlator {
	if cfg.BufferCap <= 0 {
		cfg.BufferCap = 100
	}
	return &Correlator{
		cfg:        cfg,
		sink:       sink,
		recognizer: recognizer,
		layout:     layout,
		fp:         fp,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
		sessions:   make(map[string]*sessionState),
	}
}

// SetClock overrides the correlator clock for tests.
func (c *Correlator) SetClock(now func() time.Time) { c.now = now }

func (c *Correlator) state(sessionID string) *sessionState {
	c.mu.RLock()
	st, ok := c.sessions[sessionID]
	c.mu.RUnlock()
	if ok {
		return st
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok = c.sessions[sessionID]; ok {
		return st
	}
	st = &sessionState{lastBet: make(map[string]float64)}
	c.sessions[sessionID] = st
	return st
}

// errSaturated signals that the pending buffer is full and the oldest entry
// could not be resolved because the store is unavailable.
var errSaturated = errors.New("pending buffer full, store unavailable")

// OnCapture routes one validated capture event. Requests only contribute bet
// sizes; responses and websocket frames become pending entries. A non-nil
// error means the event was not admitted; the caller should leave it to the
// transport's redelivery.
func (c *Correlator) OnCapture(ctx context.Context, ev domain.CaptureEvent) error {
	st := c.state(ev.SessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if ev.Direction == domain.DirectionRequest {
		if bet, ok := normalize.Number(ev.Payload, c.cfg.BetKeys); ok {
			if len(st.lastBet) >= c.cfg.BufferCap {
				// stale keys are bounded like the pending buffer; which one
				// goes is immaterial
				for k := range st.lastBet {
					delete(st.lastBet, k)
					break
				}
			}
			st.lastBet[ev.CorrelationKey] = bet
		}
		return nil
	}

	// Backpressure: a full buffer force-resolves the oldest entry before the
	// new one is admitted. When the store is down nothing is evicted and the
	// incoming event is refused instead of losing a queued response.
	for len(st.pending) >= c.cfg.BufferCap {
		if !c.resolveLocked(ctx, ev.SessionID, st, st.pending[0]) {
			return errSaturated
		}
		st.pending = st.pending[1:]
		c.trackPending(-1)
		if c.metrics != nil {
			c.metrics.ForceExpiredTotal.Inc()
		}
	}

	p := &pendingResponse{ts: ev.Ts, payload: ev.Payload}
	if bet, ok := normalize.Number(ev.Payload, c.cfg.BetKeys); ok {
		p.bet = &bet
	} else if bet, ok := st.lastBet[ev.CorrelationKey]; ok {
		p.bet = &bet
	}
	// a request's bet backs at most one response
	delete(st.lastBet, ev.CorrelationKey)
	idx := sort.Search(len(st.pending), func(i int) bool { return st.pending[i].ts.After(p.ts) })
	st.pending = append(st.pending, nil)
	copy(st.pending[idx+1:], st.pending[idx:])
	st.pending[idx] = p
	c.trackPending(1)

	c.flushLocked(ctx, ev.SessionID, st, false)
	return nil
}

// OnScreenshot adds a capture to the session's unclaimed pool.
func (c *Correlator) OnScreenshot(ctx context.Context, ev domain.ScreenshotEvent) {
	st := c.state(ev.SessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	sh := &screenshot{ts: ev.Ts, path: ev.Path}
	idx := sort.Search(len(st.shots), func(i int) bool { return st.shots[i].ts.After(sh.ts) })
	st.shots = append(st.shots, nil)
	copy(st.shots[idx+1:], st.shots[idx:])
	st.shots[idx] = sh

	c.flushLocked(ctx, ev.SessionID, st, false)
}

// FlushSession force-resolves every pending entry for the session; callers
// invoke it before a session may close so spin counts reflect all responses.
// A drained session's state is released so memory stays bounded under
// continuous capture; late events recreate the state and their appends are
// then refused at the store boundary.
func (c *Correlator) FlushSession(ctx context.Context, sessionID string) error {
	c.mu.RLock()
	st, ok := c.sessions[sessionID]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	c.flushLocked(ctx, sessionID, st, true)
	if len(st.pending) == 0 {
		c.mu.Lock()
		delete(c.sessions, sessionID)
		c.mu.Unlock()
	}
	return nil
}

// flushLocked resolves, in timestamp order, every pending entry whose
// tolerance window has elapsed relative to the lazy watermark (all of them
// when force is set). A sink failure leaves the entry queued for retry.
func (c *Correlator) flushLocked(ctx context.Context, sessionID string, st *sessionState, force bool) {
	watermark := c.now().Add(-c.cfg.Tolerance)
	for len(st.pending) > 0 {
		p := st.pending[0]
		if !force && p.ts.After(watermark) {
			break
		}
		if !c.resolveLocked(ctx, sessionID, st, p) {
			return // retried on the next event arrival or sweep
		}
		st.pending = st.pending[1:]
		c.trackPending(-1)
		if force && c.metrics != nil {
			c.metrics.ForceExpiredTotal.Inc()
		}
	}
	// Unclaimed screenshots too old to match any remaining or future entry.
	cutoff := watermark.Add(-c.cfg.Tolerance)
	i := 0
	for i < len(st.shots) && !st.shots[i].ts.After(cutoff) {
		i++
	}
	if i > 0 {
		st.shots = st.shots[i:]
	}
}

// resolveLocked claims the best screenshot for the entry and hands the result
// to the sink. Returns false when the sink append failed and the entry should
// stay queued.
func (c *Correlator) resolveLocked(ctx context.Context, sessionID string, st *sessionState, p *pendingResponse) bool {
	sh := p.claimed
	if sh == nil {
		sh = c.claimLocked(st, p.ts)
		p.claimed = sh
	}

	data := domain.SpinData{
		Ts:          p.ts,
		Payload:     p.payload,
		Fingerprint: c.fp.Fingerprint(p.payload),
		BetSize:     p.bet,
		Expired:     sh == nil,
	}
	if out, ok := normalize.Number(p.payload, c.cfg.OutcomeKeys); ok {
		data.Outcome = &out
	}
	if sh != nil {
		data.ScreenshotPath = sh.path
		data.Latency = absDuration(sh.ts.Sub(p.ts))
		if c.recognizer != nil {
			grid, err := c.recognizer.Recognize(ctx, sh.path, c.layout)
			if err != nil {
				c.logger.Error().Err(err).Str("session", sessionID).Str("screenshot", sh.path).Msg("symbol recognition failed")
			} else {
				data.Grid = grid
			}
		}
	}

	if _, err := c.sink.AppendSpin(ctx, sessionID, data); err != nil {
		if errors.Is(err, domain.ErrUnknownSession) {
			// permanent: the session was never started or is already closed
			c.logger.Warn().Str("session", sessionID).Msg("dropping spin for unknown or closed session")
			if c.metrics != nil {
				c.metrics.SpinsDroppedTotal.WithLabelValues("unknown_session").Inc()
			}
			return true
		}
		c.logger.Error().Err(err).Str("session", sessionID).Msg("spin append failed, will retry")
		return false
	}
	if sh == nil && c.metrics != nil {
		c.metrics.CorrelationMisses.Inc()
	}
	return true
}

// claimLocked selects the unclaimed screenshot with the smallest absolute
// distance to ts within the tolerance window, breaking ties by earliest
// screenshot timestamp. A claimed screenshot is never reused.
func (c *Correlator) claimLocked(st *sessionState, ts time.Time) *screenshot {
	best := -1
	var bestDist time.Duration
	for i, sh := range st.shots {
		d := absDuration(sh.ts.Sub(ts))
		if d > c.cfg.Tolerance {
			continue
		}
		// shots are ordered by timestamp, so the first of equal distances wins
		if best == -1 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	if best == -1 {
		return nil
	}
	sh := st.shots[best]
	st.shots = append(st.shots[:best], st.shots[best+1:]...)
	return sh
}

func (c *Correlator) trackPending(delta int) {
	n := c.pendingCount.Add(int64(delta))
	if c.metrics != nil {
		c.metrics.PendingEntries.Set(float64(n))
	}
}

// Start launches the periodic sweeper so expiry latency stays bounded even
// when the feed goes quiet.
func (c *Correlator) Start(ctx context.Context) error {
	interval := c.cfg.SweepInterval
	if interval <= 0 {
		interval = c.cfg.Tolerance
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				c.sweep(ctx)
			case <-c.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (c *Correlator) Stop(ctx context.Context) error {
	if c.stop == nil {
		return nil
	}
	close(c.stop)
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.stop = nil
	return nil
}

func (c *Correlator) Health() error { return nil }

func (c *Correlator) sweep(ctx context.Context) {
	c.mu.RLock()
	states := make(map[string]*sessionState, len(c.sessions))
	for id, st := range c.sessions {
		states[id] = st
	}
	c.mu.RUnlock()
	for id, st := range states {
		st.mu.Lock()
		c.flushLocked(ctx, id, st, false)
		st.mu.Unlock()
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
