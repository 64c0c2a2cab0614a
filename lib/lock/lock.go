// Package lock provides a file-based lock used to serialize population-store
// upserts within one deployment. The read-then-write race across separate
// deployments sharing a store is accepted; see the stats package.
package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"log/slog"
)

// FileLock provides a simple file-based locking mechanism
type FileLock struct {
	logger *slog.Logger
}

// NewFileLock creates a new file-based lock instance
func NewFileLock(logger *slog.Logger) *FileLock {
	return &FileLock{logger: logger}
}

// TryLock attempts to acquire a lock with the given key and timeout
func (fl *FileLock) TryLock(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	lockFile := fl.getLockFilePath(key)

	if err := os.MkdirAll(filepath.Dir(lockFile), 0o750); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		file, err := os.OpenFile(lockFile, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			if os.IsExist(err) {
				if fl.isLockStale(lockFile, timeout*2) {
					fl.logger.Warn("Removing stale lock file", slog.String("file", lockFile))
					if err := os.Remove(lockFile); err != nil {
						fl.logger.Error("Failed to remove stale lock file", slog.String("file", lockFile), slog.Any("error", err))
					}
					continue
				}

				// Lock exists and is not stale, wait and retry
				select {
				case <-ctx.Done():
					return false, ctx.Err()
				case <-time.After(100 * time.Millisecond):
					continue
				}
			}
			return false, fmt.Errorf("failed to create lock file: %w", err)
		}

		if _, err := fmt.Fprintf(file, "%d\n%d\n", time.Now().Unix(), os.Getpid()); err != nil {
			if closeErr := file.Close(); closeErr != nil {
				fl.logger.Error("Failed to close lock file after write error", slog.String("file", lockFile), slog.Any("error", closeErr))
			}
			return false, fmt.Errorf("failed to write to lock file: %w", err)
		}
		if err := file.Close(); err != nil {
			return false, fmt.Errorf("failed to close lock file: %w", err)
		}

		fl.logger.Debug("Acquired lock", slog.String("key", key), slog.String("file", lockFile))
		return true, nil
	}

	return false, nil // Timeout exceeded
}

// Unlock releases the lock for the given key
func (fl *FileLock) Unlock(ctx context.Context, key string) error {
	lockFile := fl.getLockFilePath(key)

	if err := os.Remove(lockFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}

	fl.logger.Debug("Released lock", slog.String("key", key), slog.String("file", lockFile))
	return nil
}

// getLockFilePath returns the file path for a lock key
func (fl *FileLock) getLockFilePath(key string) string {
	lockDir := filepath.Join(os.TempDir(), "filmlens-locks")
	return filepath.Join(lockDir, key+".lock")
}

// isLockStale reports whether the lock file's timestamp is older than maxAge.
func (fl *FileLock) isLockStale(lockFile string, maxAge time.Duration) bool {
	data, err := os.ReadFile(lockFile) // #nosec G304 - path built by getLockFilePath
	if err != nil {
		return false
	}

	lines := strings.SplitN(string(data), "\n", 2)
	ts, err := strconv.ParseInt(strings.TrimSpace(lines[0]), 10, 64)
	if err != nil {
		return true
	}
	return time.Since(time.Unix(ts, 0)) > maxAge
}
