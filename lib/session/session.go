// Package session scopes the per-upload working state: each upload gets an
// extraction directory that is released exactly once, on whatever path the
// session ends.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"log/slog"

	"github.com/google/uuid"
)

type Session struct {
	ID  string
	Dir string

	logger    *slog.Logger
	closeOnce sync.Once
}

// New allocates a session with a fresh extraction directory under baseDir.
func New(baseDir string, logger *slog.Logger) (*Session, error) {
	id := uuid.NewString()
	dir := filepath.Join(baseDir, "filmlens-"+id)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &Session{ID: id, Dir: dir, logger: logger}, nil
}

// Close removes the session's extraction directory. Safe to call more than
// once and from deferred cleanup on error paths.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if rmErr := os.RemoveAll(s.Dir); rmErr != nil {
			err = fmt.Errorf("failed to remove session directory: %w", rmErr)
			return
		}
		s.logger.Debug("session directory released",
			slog.String("session", s.ID), slog.String("dir", s.Dir))
	})
	return err
}
