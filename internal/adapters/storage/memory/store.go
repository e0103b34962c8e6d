package memory

import (
	"context"
	"sync"
	"time"

	"github.com/git-apexplanners/wsscapt/internal/domain"
	"github.com/git-apexplanners/wsscapt/internal/infrastructure/observability"
	"github.com/git-apexplanners/wsscapt/internal/usecase"
)

type sessionEntry struct {
	mu      sync.Mutex
	session domain.Session
	spins   []domain.Spin
	// event identity -> seq, for deduplicating transport redeliveries
	byIdentity map[string]int64
}

// Store keeps sessions in memory and writes one durable record per spin via
// the attached persister. Appends are serialized per session; independent
// sessions append in parallel.
type Store struct {
	mu    sync.RWMutex
	order []string
	items map[string]*sessionEntry

	persister usecase.SpinPersister
	metrics   *observability.Metrics

	now func() time.Time
}

func NewStore(persister usecase.SpinPersister, metrics *observability.Metrics) *Store {
	return &Store{
		order:     make([]string, 0, 16),
		items:     make(map[string]*sessionEntry, 16),
		persister: persister,
		metrics:   metrics,
		now:       time.Now,
	}
}

// SetClock overrides the store clock; tests pin session start times with it.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) Start(ctx context.Context, casino, game string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := s.now().UTC()
	id := domain.SessionID(casino, game, start)
	if e, ok := s.items[id]; ok && e.session.Status == domain.StatusActive {
		return domain.Session{}, domain.ErrDuplicateSession
	}
	sess := domain.Session{
		ID:        id,
		Casino:    casino,
		Game:      game,
		StartedAt: start,
		Status:    domain.StatusActive,
	}
	s.items[id] = &sessionEntry{
		session:    sess,
		spins:      make([]domain.Spin, 0, 64),
		byIdentity: make(map[string]int64, 64),
	}
	s.order = append(s.order, id)
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}
	return sess, nil
}

// Append assigns the next sequence number and stores the spin. Redelivery of
// an already-stored event identity is a no-op returning the existing spin.
// When persistence fails the in-memory append does not happen.
func (s *Store) Append(ctx context.Context, sessionID string, data domain.SpinData) (domain.Spin, error) {
	s.mu.RLock()
	e, ok := s.items[sessionID]
	s.mu.RUnlock()
	if !ok {
		return domain.Spin{}, domain.ErrUnknownSession
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Status != domain.StatusActive {
		return domain.Spin{}, domain.ErrUnknownSession
	}
	if seq, seen := e.byIdentity[data.Identity()]; seen {
		return e.spins[seq-1], nil
	}
	spin := domain.Spin{
		SessionID: sessionID,
		Seq:       int64(len(e.spins)) + 1,
		SpinData:  data,
	}
	if s.persister != nil {
		if err := s.persister.Persist(ctx, spin); err != nil {
			return domain.Spin{}, &domain.StorageError{Op: "append", Err: err}
		}
	}
	e.spins = append(e.spins, spin)
	e.byIdentity[data.Identity()] = spin.Seq
	e.session.Spins.Total++
	if data.Expired {
		e.session.Spins.Expired++
	} else {
		e.session.Spins.Matched++
	}
	if s.metrics != nil {
		state := "matched"
		if data.Expired {
			state = "expired"
		}
		s.metrics.SpinsTotal.WithLabelValues(state).Inc()
	}
	return spin, nil
}

// Close transitions the session to closed. Closing an already-closed session
// returns it unchanged.
func (s *Store) Close(ctx context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	e, ok := s.items[sessionID]
	s.mu.RUnlock()
	if !ok {
		return domain.Session{}, domain.ErrUnknownSession
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Status == domain.StatusClosed {
		return e.session, nil
	}
	ts := s.now().UTC()
	e.session.Status = domain.StatusClosed
	e.session.ClosedAt = &ts
	if s.metrics != nil {
		s.metrics.ActiveSessions.Dec()
	}
	return e.session, nil
}

func (s *Store) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	e, ok := s.items[sessionID]
	s.mu.RUnlock()
	if !ok {
		return domain.Session{}, domain.ErrUnknownSession
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session, nil
}

func (s *Store) List(ctx context.Context) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Session, 0, len(s.items))
	for _, id := range s.order { // preserve insertion order
		e := s.items[id]
		if e == nil {
			continue
		}
		e.mu.Lock()
		out = append(out, e.session)
		e.mu.Unlock()
	}
	return out, nil
}

// Spins returns a snapshot copy ordered by sequence number.
func (s *Store) Spins(ctx context.Context, sessionID string) ([]domain.Spin, error) {
	s.mu.RLock()
	e, ok := s.items[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrUnknownSession
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Spin, len(e.spins))
	copy(out, e.spins)
	return out, nil
}

// ListSpins pages through spins with seq > from, returning the next cursor, 0
// when the page reaches the end.
func (s *Store) ListSpins(ctx context.Context, sessionID string, from int64, limit int) ([]domain.Spin, int64, error) {
	s.mu.RLock()
	e, ok := s.items[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, 0, domain.ErrUnknownSession
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	start := int(from)
	if start < 0 {
		start = 0
	}
	if start > len(e.spins) {
		start = len(e.spins)
	}
	end := start + limit
	if limit <= 0 || end > len(e.spins) {
		end = len(e.spins)
	}
	out := make([]domain.Spin, end-start)
	copy(out, e.spins[start:end])
	next := int64(0)
	if end < len(e.spins) {
		next = e.spins[end-1].Seq
	}
	return out, next, nil
}
