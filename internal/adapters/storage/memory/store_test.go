package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/git-apexplanners/wsscapt/internal/domain"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func spinData(fp string, ts time.Time) domain.SpinData {
	return domain.SpinData{
		Ts:          ts,
		Payload:     json.RawMessage(`{"reels":[1,2,3]}`),
		Fingerprint: fp,
	}
}

func startSession(t *testing.T, s *Store) domain.Session {
	t.Helper()
	sess, err := s.Start(context.Background(), "lucky", "fruits")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return sess
}

func TestStartAssignsCanonicalID(t *testing.T) {
	s := NewStore(nil, nil)
	s.SetClock(fixedClock(time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)))
	sess := startSession(t, s)
	if sess.ID != "lucky-fruits-20240301-123045" {
		t.Fatalf("unexpected id: %q", sess.ID)
	}
	if sess.Status != domain.StatusActive {
		t.Fatalf("unexpected status: %q", sess.Status)
	}
}

func TestStartRejectsDuplicateActiveSession(t *testing.T) {
	s := NewStore(nil, nil)
	s.SetClock(fixedClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))
	startSession(t, s)
	if _, err := s.Start(context.Background(), "lucky", "fruits"); !errors.Is(err, domain.ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
}

func TestAppendAssignsGaplessSequence(t *testing.T) {
	s := NewStore(nil, nil)
	sess := startSession(t, s)
	base := time.Now()
	for i := 0; i < 5; i++ {
		spin, err := s.Append(context.Background(), sess.ID, spinData(fmt.Sprintf("fp%d", i), base.Add(time.Duration(i)*time.Second)))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if spin.Seq != int64(i+1) {
			t.Fatalf("expected seq %d, got %d", i+1, spin.Seq)
		}
	}
}

func TestAppendConcurrentSequencesHaveNoGaps(t *testing.T) {
	s := NewStore(nil, nil)
	sess := startSession(t, s)
	const n = 64
	base := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Append(context.Background(), sess.ID, spinData(fmt.Sprintf("fp%d", i), base.Add(time.Duration(i)*time.Millisecond))); err != nil {
				t.Errorf("append: %v", err)
			}
		}(i)
	}
	wg.Wait()
	spins, err := s.Spins(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("spins: %v", err)
	}
	if len(spins) != n {
		t.Fatalf("expected %d spins, got %d", n, len(spins))
	}
	for i, sp := range spins {
		if sp.Seq != int64(i+1) {
			t.Fatalf("gap at index %d: seq %d", i, sp.Seq)
		}
	}
}

func TestAppendRedeliveryIsNoOp(t *testing.T) {
	s := NewStore(nil, nil)
	sess := startSession(t, s)
	data := spinData("fp1", time.Now())
	first, err := s.Append(context.Background(), sess.ID, data)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	second, err := s.Append(context.Background(), sess.ID, data)
	if err != nil {
		t.Fatalf("redelivered append: %v", err)
	}
	if second.Seq != first.Seq {
		t.Fatalf("redelivery created new seq: %d != %d", second.Seq, first.Seq)
	}
	spins, _ := s.Spins(context.Background(), sess.ID)
	if len(spins) != 1 {
		t.Fatalf("expected 1 spin, got %d", len(spins))
	}
}

type failingPersister struct {
	fail bool
}

func (p *failingPersister) Persist(ctx context.Context, spin domain.Spin) error {
	if p.fail {
		return errors.New("disk full")
	}
	return nil
}

func TestAppendRollsBackOnPersistFailure(t *testing.T) {
	p := &failingPersister{fail: true}
	s := NewStore(p, nil)
	sess := startSession(t, s)

	var storageErr *domain.StorageError
	if _, err := s.Append(context.Background(), sess.ID, spinData("fp1", time.Now())); !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	spins, _ := s.Spins(context.Background(), sess.ID)
	if len(spins) != 0 {
		t.Fatalf("failed append must not commit, got %d spins", len(spins))
	}

	// retry after recovery starts at seq 1
	p.fail = false
	spin, err := s.Append(context.Background(), sess.ID, spinData("fp1", time.Now()))
	if err != nil {
		t.Fatalf("retry append: %v", err)
	}
	if spin.Seq != 1 {
		t.Fatalf("expected seq 1 after rollback, got %d", spin.Seq)
	}
}

func TestAppendUnknownOrClosedSession(t *testing.T) {
	s := NewStore(nil, nil)
	if _, err := s.Append(context.Background(), "nope", spinData("fp", time.Now())); !errors.Is(err, domain.ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
	sess := startSession(t, s)
	if _, err := s.Close(context.Background(), sess.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.Append(context.Background(), sess.ID, spinData("fp", time.Now())); !errors.Is(err, domain.ErrUnknownSession) {
		t.Fatalf("append to closed session: expected ErrUnknownSession, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	s := NewStore(nil, nil)
	sess := startSession(t, s)
	first, err := s.Close(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	second, err := s.Close(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("second close: %v", err)
	}
	if first.Status != domain.StatusClosed || second.Status != domain.StatusClosed {
		t.Fatalf("unexpected statuses: %q %q", first.Status, second.Status)
	}
	if !first.ClosedAt.Equal(*second.ClosedAt) {
		t.Fatalf("second close changed ClosedAt: %v != %v", first.ClosedAt, second.ClosedAt)
	}
}

func TestListSpinsPagination(t *testing.T) {
	s := NewStore(nil, nil)
	sess := startSession(t, s)
	base := time.Now()
	for i := 0; i < 10; i++ {
		if _, err := s.Append(context.Background(), sess.ID, spinData(fmt.Sprintf("fp%d", i), base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	page, next, err := s.ListSpins(context.Background(), sess.ID, 0, 4)
	if err != nil {
		t.Fatalf("list spins: %v", err)
	}
	if len(page) != 4 || page[0].Seq != 1 || next != 4 {
		t.Fatalf("unexpected first page: len=%d first=%d next=%d", len(page), page[0].Seq, next)
	}
	page, next, err = s.ListSpins(context.Background(), sess.ID, next, 100)
	if err != nil {
		t.Fatalf("list spins: %v", err)
	}
	if len(page) != 6 || page[0].Seq != 5 || next != 0 {
		t.Fatalf("unexpected last page: len=%d next=%d", len(page), next)
	}
}
