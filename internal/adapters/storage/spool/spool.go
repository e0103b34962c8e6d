// Package spool persists one JSONL record per spin, keyed by (sessionId, seq),
// sufficient to reconstruct a session without replaying the transport.
package spool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/git-apexplanners/wsscapt/internal/domain"
)

type Writer struct {
	dir       string
	maxSizeMB int

	mu      sync.Mutex
	writers map[string]*lumberjack.Logger
}

func NewWriter(dir string, maxSizeMB int) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	return &Writer{dir: dir, maxSizeMB: maxSizeMB, writers: make(map[string]*lumberjack.Logger)}, nil
}

// Persist appends the spin record synchronously; the store's all-or-nothing
// append rule needs the failure before committing to memory.
func (w *Writer) Persist(ctx context.Context, spin domain.Spin) error {
	b, err := json.Marshal(spin)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	lw, ok := w.writers[spin.SessionID]
	if !ok {
		lw = &lumberjack.Logger{
			Filename:   filepath.Join(w.dir, spin.SessionID+".jsonl"),
			MaxSize:    w.maxSizeMB,
			MaxBackups: 10,
		}
		w.writers[spin.SessionID] = lw
	}
	_, err = lw.Write(append(b, '\n'))
	return err
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var first error
	for _, lw := range w.writers {
		if err := lw.Close(); err != nil && first == nil {
			first = err
		}
	}
	w.writers = make(map[string]*lumberjack.Logger)
	return first
}
