// Package archive packs directory trees into zip files and extracts them again.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	appErrors "suite-backup/internal/errors"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// Method selects how file entries are compressed
type Method string

const (
	MethodDeflate Method = "deflate"
	MethodZstd    Method = "zstd"
	MethodStore   Method = "store"
)

// maxManifestSize bounds ReadFile, which is only meant for small metadata entries
const maxManifestSize = 4 << 20

// Options controls PackDirectory
type Options struct {
	Method Method
	// Level is the deflate level (flate.BestSpeed..flate.BestCompression); 0 keeps the default.
	Level int
}

// Stats describes a packed or extracted archive
type Stats struct {
	Files int
	Dirs  int
	Bytes int64
	Size  int64
}

// Entries returns the number of zip entries
func (s *Stats) Entries() int {
	return s.Files + s.Dirs
}

// ParseMethod maps a config value to a Method
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "", MethodDeflate:
		return MethodDeflate, nil
	case MethodZstd, MethodStore:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported compression method %q", s)
	}
}

func (m Method) zipMethod() uint16 {
	switch m {
	case MethodZstd:
		return zstd.ZipMethodWinZip
	case MethodStore:
		return zip.Store
	default:
		return zip.Deflate
	}
}

// PackDirectory writes every file and directory under srcDir into a zip at
// dest. Entry names are slash-separated paths relative to srcDir and each
// directory, empty or not, gets its own entry. The archive is written to
// dest+".partial" and renamed once it has been finalized, so dest either does
// not exist or is complete.
func PackDirectory(ctx context.Context, srcDir, dest string, opts Options) (*Stats, error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return nil, appErrors.NewIOError(fmt.Sprintf("cannot read %s", srcDir), err)
	}
	if !info.IsDir() {
		return nil, appErrors.NewValidationError(fmt.Sprintf("%s is not a directory", srcDir), nil)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, appErrors.NewIOError("cannot create archive directory", err)
	}

	partial := dest + ".partial"
	file, err := os.OpenFile(partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, appErrors.NewIOError(fmt.Sprintf("cannot create %s", partial), err)
	}

	stats, err := writeArchive(ctx, file, srcDir, opts)
	if err == nil {
		err = file.Sync()
	}
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(partial, dest)
	}
	if err != nil {
		_ = os.Remove(partial)
		if appErrors.GetErrorType(err) != appErrors.ErrorTypeUnknown {
			return nil, err
		}
		return nil, appErrors.NewIOError(fmt.Sprintf("failed to finalize archive %s", filepath.Base(dest)), err)
	}

	if fi, statErr := os.Stat(dest); statErr == nil {
		stats.Size = fi.Size()
	}
	return stats, nil
}

func writeArchive(ctx context.Context, w io.Writer, srcDir string, opts Options) (*Stats, error) {
	stats := &Stats{}
	zw := zip.NewWriter(w)

	method := opts.Method
	if method == "" {
		method = MethodDeflate
	}
	switch {
	case method == MethodZstd:
		zw.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor(zstd.WithEncoderLevel(zstd.SpeedDefault)))
	case method == MethodDeflate && opts.Level != 0:
		level := opts.Level
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, level)
		})
	}

	walkErr := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		if d.IsDir() {
			header := &zip.FileHeader{Name: name + "/", Method: zip.Store, Modified: info.ModTime()}
			header.SetMode(info.Mode())
			if _, err := zw.CreateHeader(header); err != nil {
				return err
			}
			stats.Dirs++
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = name
		header.Method = method.zipMethod()

		entry, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		n, err := copyFileInto(entry, p)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		stats.Files++
		stats.Bytes += n
		return nil
	})
	if walkErr != nil {
		_ = zw.Close()
		if ctx.Err() != nil {
			return nil, appErrors.NewAppError(appErrors.ErrorTypeInterruption, "archive creation canceled", walkErr)
		}
		return nil, appErrors.NewIOError("failed to add entries to archive", walkErr)
	}

	if err := zw.Close(); err != nil {
		return nil, appErrors.NewIOError("failed to finalize archive", err)
	}
	return stats, nil
}

func copyFileInto(w io.Writer, name string) (int64, error) {
	f, err := os.Open(name)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(w, f)
}

func openReader(archivePath string) (*zip.ReadCloser, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, appErrors.NewNotFoundError(filepath.Base(archivePath))
		}
		return nil, appErrors.NewValidationError(fmt.Sprintf("%s is not a readable zip archive", filepath.Base(archivePath)), err)
	}
	r.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())
	return r, nil
}

// Extract unpacks archivePath into destDir. Entries that are absolute or would
// land outside destDir reject the whole archive before anything is written.
func Extract(ctx context.Context, archivePath, destDir string) (*Stats, error) {
	r, err := openReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	targets := make([]string, len(r.File))
	for i, f := range r.File {
		target, err := entryTarget(destDir, f.Name)
		if err != nil {
			return nil, err
		}
		targets[i] = target
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, appErrors.NewIOError(fmt.Sprintf("cannot create %s", destDir), err)
	}

	stats := &Stats{}
	for i, f := range r.File {
		if err := ctx.Err(); err != nil {
			return nil, appErrors.NewAppError(appErrors.ErrorTypeInterruption, "extraction canceled", err)
		}

		target := targets[i]
		mode := f.Mode()
		switch {
		case target == destDir:
			continue
		case mode.IsDir() || strings.HasSuffix(f.Name, "/"):
			if err := os.MkdirAll(target, mode.Perm()|0700); err != nil {
				return nil, appErrors.NewIOError(fmt.Sprintf("cannot create %s", f.Name), err)
			}
			stats.Dirs++
		case mode&fs.ModeSymlink != 0:
			// links are never materialized
			continue
		default:
			n, err := extractFile(f, target)
			if err != nil {
				return nil, appErrors.NewIOError(fmt.Sprintf("cannot extract %s", f.Name), err)
			}
			stats.Files++
			stats.Bytes += n
		}
	}

	if fi, err := os.Stat(archivePath); err == nil {
		stats.Size = fi.Size()
	}
	return stats, nil
}

func entryTarget(destDir, name string) (string, error) {
	clean := strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(clean, "/") || filepath.VolumeName(clean) != "" || hasDriveLetter(clean) {
		return "", appErrors.NewValidationError(fmt.Sprintf("archive entry %q has an absolute path", name), nil)
	}
	clean = path.Clean(clean)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", appErrors.NewValidationError(fmt.Sprintf("archive entry %q escapes the extraction directory", name), nil)
	}
	if clean == "." {
		return destDir, nil
	}
	return filepath.Join(destDir, filepath.FromSlash(clean)), nil
}

func hasDriveLetter(name string) bool {
	if len(name) < 2 || name[1] != ':' {
		return false
	}
	c := name[0] | 0x20
	return c >= 'a' && c <= 'z'
}

func extractFile(f *zip.File, target string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, err
	}

	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm()|0200)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, rc)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, err
	}

	if !f.Modified.IsZero() {
		_ = os.Chtimes(target, time.Now(), f.Modified)
	}
	return n, nil
}

// ReadFile returns the content of a single small entry without extracting the archive
func ReadFile(archivePath, name string) ([]byte, error) {
	r, err := openReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	for _, f := range r.File {
		if strings.TrimPrefix(strings.ReplaceAll(f.Name, "\\", "/"), "./") != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, appErrors.NewIOError(fmt.Sprintf("cannot open %s in archive", name), err)
		}
		defer rc.Close()

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, io.LimitReader(rc, maxManifestSize+1)); err != nil {
			return nil, appErrors.NewIOError(fmt.Sprintf("cannot read %s in archive", name), err)
		}
		if buf.Len() > maxManifestSize {
			return nil, appErrors.NewValidationError(fmt.Sprintf("%s is too large", name), nil)
		}
		return buf.Bytes(), nil
	}
	return nil, appErrors.NewNotFoundError(name)
}

// Names lists the entry names of an archive
func Names(archivePath string) ([]string, error) {
	r, err := openReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names, nil
}
