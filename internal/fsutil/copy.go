package fsutil

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	appErrors "suite-backup/internal/errors"
	"suite-backup/internal/logging"
	"suite-backup/internal/pathfilter"
)

// Directories and files a restore never writes into the live tree, whatever
// the archive contains.
var (
	RestoreExcludedDirs  = []string{"backups", "logs", "configbackup", "temp_backup"}
	RestoreExcludedFiles = []string{"config.ini", ".git", ".gitignore", "backup_info.txt", "backup_info.json"}
)

// CopyOptions controls CopyTree
type CopyOptions struct {
	// Filter selects files by pattern; nil copies everything.
	Filter *pathfilter.Set
	// ExcludeDirs are relative directories whose subtree is skipped.
	ExcludeDirs []string
	// ExcludeFiles are base names skipped anywhere in the tree.
	ExcludeFiles []string
	// RestoreMode adds RestoreExcludedDirs and RestoreExcludedFiles.
	RestoreMode bool
	Logger      *logging.Logger
}

// CopyStats reports what CopyTree did
type CopyStats struct {
	Copied  int
	Skipped int
	Dirs    int
	Bytes   int64
}

// CopyTree copies src into dst in pre-order so every directory exists before
// its children. Per-file failures are logged and skipped; when any occurred the
// returned error is a recoverable PartialFailure and the stats count successes
// only. Symlinks are not followed.
func CopyTree(ctx context.Context, src, dst string, opts CopyOptions) (CopyStats, error) {
	var stats CopyStats
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	info, err := os.Stat(src)
	if err != nil {
		return stats, appErrors.NewIOError(fmt.Sprintf("cannot read source directory %s", src), err)
	}
	if !info.IsDir() {
		return stats, appErrors.NewValidationError(fmt.Sprintf("source %s is not a directory", src), nil)
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return stats, appErrors.NewIOError(fmt.Sprintf("cannot create destination %s", dst), err)
	}

	excludeDirs := normalizeList(opts.ExcludeDirs)
	excludeFiles := append([]string(nil), opts.ExcludeFiles...)
	if opts.RestoreMode {
		excludeDirs = append(excludeDirs, RestoreExcludedDirs...)
		excludeFiles = append(excludeFiles, RestoreExcludedFiles...)
	}
	lazyDirs := opts.Filter.HasIncludes()

	var failures []error
	skip := func(rel string, err error) {
		stats.Skipped++
		failures = append(failures, fmt.Errorf("%s: %w", rel, err))
		logger.WithError(err).WithField("path", rel).Warn("Skipping entry during copy")
	}

	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if err != nil {
			if rel == "." {
				return err
			}
			skip(rel, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if underAny(rel, excludeDirs) || hasBase(d.Name(), excludeFiles) || opts.Filter.Excluded(rel) {
				logger.WithField("path", rel).Debug("Skipping excluded directory")
				return filepath.SkipDir
			}
			if lazyDirs {
				return nil
			}
			if err := os.MkdirAll(filepath.Join(dst, filepath.FromSlash(rel)), dirMode(d)); err != nil {
				skip(rel, err)
				return filepath.SkipDir
			}
			stats.Dirs++
			return nil
		}

		if hasBase(d.Name(), excludeFiles) || !opts.Filter.Allowed(rel) {
			return nil
		}
		if !d.Type().IsRegular() {
			logger.WithField("path", rel).Debug("Skipping non-regular file")
			return nil
		}

		n, err := copyFile(path, filepath.Join(dst, filepath.FromSlash(rel)))
		if err != nil {
			skip(rel, err)
			return nil
		}
		stats.Copied++
		stats.Bytes += n
		return nil
	})

	if walkErr != nil {
		if ctx.Err() != nil {
			return stats, appErrors.NewAppError(appErrors.ErrorTypeInterruption, "copy canceled", walkErr)
		}
		return stats, appErrors.NewIOError(fmt.Sprintf("copy of %s failed", src), walkErr)
	}

	if stats.Skipped > 0 {
		return stats, appErrors.NewPartialFailure(
			fmt.Sprintf("%d entries skipped while copying %s", stats.Skipped, src), stats.Skipped, failures)
	}
	return stats, nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm()|0200)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, err
	}

	// mtime is informational only
	_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
	return n, nil
}

func dirMode(d fs.DirEntry) fs.FileMode {
	info, err := d.Info()
	if err != nil {
		return 0755
	}
	return info.Mode().Perm() | 0700
}

func underAny(rel string, dirs []string) bool {
	for _, dir := range dirs {
		if rel == dir || strings.HasPrefix(rel, dir+"/") {
			return true
		}
	}
	return false
}

func hasBase(name string, names []string) bool {
	for _, n := range names {
		if name == n {
			return true
		}
	}
	return false
}

func normalizeList(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = pathfilter.Normalize(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
