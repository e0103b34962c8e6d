package usecase

import (
	"context"

	"github.com/git-apexplanners/wsscapt/internal/domain"
)

// SessionRepository owns session lifecycle and spin storage. Append is
// serialized per session (sequence numbers strictly increasing, no gaps) and
// idempotent under redelivery of the same event identity.
type SessionRepository interface {
	Start(ctx context.Context, casino, game string) (domain.Session, error)
	Append(ctx context.Context, sessionID string, data domain.SpinData) (domain.Spin, error)
	Close(ctx context.Context, sessionID string) (domain.Session, error)
	Get(ctx context.Context, sessionID string) (domain.Session, error)
	List(ctx context.Context) ([]domain.Session, error)
	// Spins returns an immutable snapshot ordered by sequence number.
	Spins(ctx context.Context, sessionID string) ([]domain.Spin, error)
	// ListSpins pages through a session's spins starting after seq `from`.
	ListSpins(ctx context.Context, sessionID string, from int64, limit int) ([]domain.Spin, int64, error)
}

// SpinPersister writes one durable record per spin, keyed by (sessionID, seq).
// A persist failure must abort the in-memory append.
type SpinPersister interface {
	Persist(ctx context.Context, spin domain.Spin) error
}

// PatternAnalyzer produces a report from a snapshot of a session's spins.
type PatternAnalyzer interface {
	Analyze(session domain.Session, spins []domain.Spin) domain.PatternReport
}

// DuplicateDetector groups repeated response payloads. Observe feeds the
// cross-session index as spins are appended.
type DuplicateDetector interface {
	Detect(session domain.Session, spins []domain.Spin) []domain.DuplicateRecord
	Observe(sessionID string, spin domain.Spin) (domain.CrossSessionHit, bool)
}

// SessionFlusher force-resolves pending correlator entries for a session so
// spin counts reflect every received response before the session closes.
type SessionFlusher interface {
	FlushSession(ctx context.Context, sessionID string) error
}
