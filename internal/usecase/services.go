package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/git-apexplanners/wsscapt/internal/domain"
)

// SessionService fronts the session repository for the HTTP API and the
// correlator. It owns the close choreography: pending correlator entries are
// flushed into the store before the session transitions to closed.
type SessionService struct {
	repo     SessionRepository
	flusher  SessionFlusher
	analyzer PatternAnalyzer
	detector DuplicateDetector
	bus      Transport
	logger   *zerolog.Logger

	analyzeOnClose bool
}

func NewSessionService(repo SessionRepository, analyzer PatternAnalyzer, detector DuplicateDetector, logger *zerolog.Logger) *SessionService {
	return &SessionService{repo: repo, analyzer: analyzer, detector: detector, logger: logger}
}

// AttachFlusher is called after construction; the correlator needs the
// service as its sink, so the two cannot reference each other in constructors.
func (s *SessionService) AttachFlusher(f SessionFlusher) { s.flusher = f }

// AttachBus enables publishing reports on session close.
func (s *SessionService) AttachBus(t Transport, analyzeOnClose bool) {
	s.bus = t
	s.analyzeOnClose = analyzeOnClose
}

func (s *SessionService) Start(ctx context.Context, casino, game string) (domain.Session, error) {
	return s.repo.Start(ctx, casino, game)
}

// AppendSpin stores one resolved correlation entry and feeds the
// cross-session duplicate index. It is the correlator's sink.
func (s *SessionService) AppendSpin(ctx context.Context, sessionID string, data domain.SpinData) (domain.Spin, error) {
	spin, err := s.repo.Append(ctx, sessionID, data)
	if err != nil {
		return domain.Spin{}, err
	}
	if s.detector != nil {
		if hit, ok := s.detector.Observe(sessionID, spin); ok {
			s.logger.Warn().
				Str("session", sessionID).
				Int64("seq", spin.Seq).
				Str("otherSession", hit.OtherSession).
				Str("fingerprint", hit.Fingerprint).
				Msg("response payload repeated across sessions")
		}
	}
	return spin, nil
}

// Close flushes pending correlations, transitions the session to closed and,
// when configured, runs analysis and publishes the report. Closing an
// already-closed session returns it unchanged.
func (s *SessionService) Close(ctx context.Context, sessionID string) (domain.Session, error) {
	if _, err := s.repo.Get(ctx, sessionID); err != nil {
		return domain.Session{}, err
	}
	if s.flusher != nil {
		if err := s.flusher.FlushSession(ctx, sessionID); err != nil {
			return domain.Session{}, err
		}
	}
	sess, err := s.repo.Close(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if s.analyzeOnClose && s.bus != nil {
		report, err := s.Report(ctx, sessionID)
		if err != nil {
			s.logger.Error().Err(err).Str("session", sessionID).Msg("analysis on close failed")
			return sess, nil
		}
		payload, err := json.Marshal(report)
		if err == nil {
			err = s.bus.Publish(ctx, Envelope{
				Type:      EnvelopeReport,
				SessionID: sessionID,
				Ts:        time.Now().UTC(),
				Payload:   payload,
			})
		}
		if err != nil {
			s.logger.Error().Err(err).Str("session", sessionID).Msg("failed to publish report")
		}
	}
	return sess, nil
}

func (s *SessionService) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	return s.repo.Get(ctx, sessionID)
}

func (s *SessionService) List(ctx context.Context) ([]domain.Session, error) {
	return s.repo.List(ctx)
}

func (s *SessionService) ListSpins(ctx context.Context, sessionID string, from int64, limit int) ([]domain.Spin, int64, error) {
	return s.repo.ListSpins(ctx, sessionID, from, limit)
}

func (s *SessionService) Spins(ctx context.Context, sessionID string) ([]domain.Spin, error) {
	return s.repo.Spins(ctx, sessionID)
}

// Report analyzes a snapshot of the session. Recomputed on every call.
func (s *SessionService) Report(ctx context.Context, sessionID string) (domain.PatternReport, error) {
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return domain.PatternReport{}, err
	}
	spins, err := s.repo.Spins(ctx, sessionID)
	if err != nil {
		return domain.PatternReport{}, err
	}
	return s.analyzer.Analyze(sess, spins), nil
}

// Duplicates groups repeated response payloads within the session.
func (s *SessionService) Duplicates(ctx context.Context, sessionID string) ([]domain.DuplicateRecord, error) {
	sess, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	spins, err := s.repo.Spins(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.detector.Detect(sess, spins), nil
}
