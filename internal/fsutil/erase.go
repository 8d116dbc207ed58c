package fsutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	appErrors "suite-backup/internal/errors"
	"suite-backup/internal/logging"
)

// EraserConfig bounds the retry ladder of an Eraser
type EraserConfig struct {
	// WalkRetry wraps the whole structured walk on file-locking platforms.
	WalkRetry appErrors.RetryConfig
	// EntryRetry wraps each unlink/rmdir on file-locking platforms.
	EntryRetry appErrors.RetryConfig
	// LockingPlatform enables the retry ladder. Defaults to the host OS.
	LockingPlatform bool
	// NativeFallback runs the host's recursive delete when the walk fails.
	NativeFallback bool
}

// DefaultEraserConfig returns the ladder used for temp directories
func DefaultEraserConfig() EraserConfig {
	return EraserConfig{
		WalkRetry:       appErrors.RetryConfig{MaxAttempts: 5, BaseDelay: 200 * time.Millisecond, Multiplier: 1},
		EntryRetry:      appErrors.RetryConfig{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond, Multiplier: 1},
		LockingPlatform: lockingPlatform,
		NativeFallback:  true,
	}
}

// Eraser deletes directory trees
type Eraser struct {
	config EraserConfig
	logger *logging.Logger

	remove func(string) error
	native func(context.Context, string) error
	sleep  func(time.Duration)
}

// NewEraser creates an eraser with the given configuration
func NewEraser(config EraserConfig, logger *logging.Logger) *Eraser {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Eraser{
		config: config,
		logger: logger,
		remove: os.Remove,
		native: nativeRemoveAll,
		sleep:  time.Sleep,
	}
}

// Remove deletes dir and everything beneath it. A missing directory is not an
// error. The structured post-order walk runs first; on file-locking platforms
// it is preceded by clearing read-only bits and retried with linear backoff;
// the host's native recursive delete is the last resort.
func (e *Eraser) Remove(ctx context.Context, dir string) error {
	if _, err := os.Lstat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	attempts := 1
	if e.config.LockingPlatform {
		clearReadOnly(dir)
		attempts = max(e.config.WalkRetry.MaxAttempts, 1)
	}

	var walkErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if walkErr = e.removeTree(ctx, dir); walkErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return appErrors.NewAppError(appErrors.ErrorTypeInterruption, "directory removal canceled", walkErr)
		}
		if attempt < attempts {
			e.logger.WithError(walkErr).WithField("attempt", attempt).Debug("Retrying directory removal")
			e.sleep(e.config.WalkRetry.Backoff(attempt))
		}
	}

	if !e.config.LockingPlatform {
		clearReadOnly(dir)
		if walkErr = e.removeTree(ctx, dir); walkErr == nil {
			return nil
		}
	}

	if e.config.NativeFallback && e.native != nil {
		nativeErr := e.native(ctx, dir)
		if _, statErr := os.Lstat(dir); errors.Is(statErr, fs.ErrNotExist) {
			e.logger.WithError(walkErr).WithField("path", dir).Warn("Directory removed by native fallback")
			return nil
		}
		walkErr = errors.Join(walkErr, nativeErr)
	}

	return appErrors.NewIOError(fmt.Sprintf("could not remove %s", dir), walkErr)
}

// Cleanup removes dir and only logs a failure. Leftover temp files never fail
// the operation that created them.
func (e *Eraser) Cleanup(ctx context.Context, dir string) {
	if dir == "" {
		return
	}
	// a canceled request still gets its temp directory removed
	if err := e.Remove(context.WithoutCancel(ctx), dir); err != nil {
		e.logger.WithError(err).WithField("path", dir).Warn("Temporary directory left behind")
	}
}

type walkEntry struct {
	path  string
	isDir bool
}

func (e *Eraser) removeTree(ctx context.Context, dir string) error {
	var entries []walkEntry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		entries = append(entries, walkEntry{path: path, isDir: d.IsDir()})
		return nil
	})
	if err != nil {
		return err
	}

	// reverse pre-order: children before their parent
	for i := len(entries) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry := entries[i]
		if entry.isDir {
			empty, err := isEmptyDir(entry.path)
			if err != nil {
				return err
			}
			if !empty {
				return fmt.Errorf("directory %s is not empty", entry.path)
			}
		}
		if err := e.removeEntry(entry.path); err != nil {
			return err
		}
	}
	return nil
}

func (e *Eraser) removeEntry(path string) error {
	attempts := 1
	if e.config.LockingPlatform {
		attempts = max(e.config.EntryRetry.MaxAttempts, 1)
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = e.remove(path)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if attempt < attempts {
			e.sleep(e.config.EntryRetry.Backoff(attempt))
		}
	}
	return err
}

func isEmptyDir(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}

// clearReadOnly makes every entry under root writable. Errors are ignored.
func clearReadOnly(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		mode := info.Mode().Perm() | 0200
		if d.IsDir() {
			mode |= 0700
		}
		if mode != info.Mode().Perm() && d.Type()&fs.ModeSymlink == 0 {
			_ = os.Chmod(path, mode)
		}
		return nil
	})
}
