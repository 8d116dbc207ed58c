package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	appErrors "suite-backup/internal/errors"
	"suite-backup/internal/logging"

	"github.com/google/uuid"
)

// Catalog is the set of archives in the backup directory. Every name it
// accepts from callers is checked to be a bare archive file name before the
// filesystem is touched.
type Catalog struct {
	dir    string
	logger *logging.Logger
}

// NewCatalog creates a catalog over dir
func NewCatalog(dir string, logger *logging.Logger) *Catalog {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Catalog{dir: dir, logger: logger}
}

// Dir returns the backup directory
func (c *Catalog) Dir() string {
	return c.dir
}

// List returns every archive, newest first. The manifest's creation time and
// type are used when present; otherwise the file's modification time and the
// type inferred from its name.
func (c *Catalog) List(ctx context.Context) ([]BackupArchive, error) {
	entries, err := os.ReadDir(c.dir)
	if os.IsNotExist(err) {
		return []BackupArchive{}, nil
	}
	if err != nil {
		return nil, appErrors.NewIOError(fmt.Sprintf("cannot read backup directory %s", c.dir), err)
	}

	archives := make([]BackupArchive, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, appErrors.NewAppError(appErrors.ErrorTypeInterruption, "listing canceled", err)
		}
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ArchiveExtension) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		archives = append(archives, c.describe(entry.Name(), info))
	}

	sort.SliceStable(archives, func(i, j int) bool {
		if archives[i].CreatedAt.Equal(archives[j].CreatedAt) {
			return archives[i].Filename > archives[j].Filename
		}
		return archives[i].CreatedAt.After(archives[j].CreatedAt)
	})
	return archives, nil
}

func (c *Catalog) describe(name string, info os.FileInfo) BackupArchive {
	path := filepath.Join(c.dir, name)
	a := BackupArchive{
		Filename:  name,
		Path:      path,
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
		Type:      InferType(name),
	}

	m, err := readManifestArchive(path)
	if err != nil {
		c.logger.WithError(err).WithField("archive", name).Debug("Archive manifest unreadable, using file metadata")
		return a
	}
	if m != nil {
		a.Type = m.Type
		a.CreatedAt = m.CreatedAt
		a.CreatedBy = m.CreatedBy
		a.Reason = m.Reason
	}
	return a
}

// Get returns a single archive by name
func (c *Catalog) Get(name string) (*BackupArchive, error) {
	path, err := c.Resolve(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, appErrors.NewIOError(fmt.Sprintf("cannot stat %s", name), err)
	}
	a := c.describe(name, info)
	return &a, nil
}

// InferType maps a file name to an archive type by its prefix. Unknown
// prefixes are reported as complete archives.
func InferType(filename string) ArchiveType {
	if t, ok := typeFromPrefix(filename); ok {
		return t
	}
	return TypeComplete
}

func typeFromPrefix(filename string) (ArchiveType, bool) {
	switch {
	case strings.HasPrefix(filename, PrefixComplete+"_"):
		return TypeComplete, true
	case strings.HasPrefix(filename, PrefixDatabase+"_"), strings.HasPrefix(filename, legacyDatabasePrefix+"_"):
		return TypeDatabase, true
	case strings.HasPrefix(filename, PrefixProject+"_"):
		return TypeProject, true
	}
	return "", false
}

// ValidateFilename accepts only a bare archive name: no directory parts, no
// parent references, no NUL bytes and a .zip extension.
func ValidateFilename(name string) error {
	switch {
	case name == "":
		return appErrors.NewValidationError("backup file name is required", nil)
	case strings.ContainsAny(name, "/\\\x00"), strings.Contains(name, ".."):
		return appErrors.NewValidationError(fmt.Sprintf("invalid backup file name %q", name), nil).
			WithUserMessage("The backup name must be a plain file name")
	case !strings.HasSuffix(strings.ToLower(name), ArchiveExtension):
		return appErrors.NewValidationError(fmt.Sprintf("backup file %q is not a zip archive", name), nil)
	case filepath.Base(name) != name || filepath.IsAbs(name) || filepath.VolumeName(name) != "":
		return appErrors.NewValidationError(fmt.Sprintf("invalid backup file name %q", name), nil)
	}
	return nil
}

// Resolve returns the path of an existing archive
func (c *Catalog) Resolve(name string) (string, error) {
	if err := ValidateFilename(name); err != nil {
		return "", err
	}

	path := filepath.Join(c.dir, name)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", appErrors.NewNotFoundError(fmt.Sprintf("backup %s", name))
	}
	if err != nil {
		return "", appErrors.NewIOError(fmt.Sprintf("cannot access backup %s", name), err)
	}
	if !info.Mode().IsRegular() {
		return "", appErrors.NewNotFoundError(fmt.Sprintf("backup %s", name))
	}
	return path, nil
}

// Open opens an archive for reading
func (c *Catalog) Open(name string) (*os.File, os.FileInfo, error) {
	path, err := c.Resolve(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, appErrors.NewIOError(fmt.Sprintf("cannot open backup %s", name), err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, appErrors.NewIOError(fmt.Sprintf("cannot stat backup %s", name), err)
	}
	return f, info, nil
}

// Delete removes an archive and returns its size
func (c *Catalog) Delete(name string) (int64, error) {
	path, err := c.Resolve(name)
	if err != nil {
		return 0, err
	}
	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	if err := os.Remove(path); err != nil {
		return 0, appErrors.NewIOError(fmt.Sprintf("cannot delete backup %s", name), err)
	}
	c.logger.WithField("archive", name).Info("Backup deleted")
	return size, nil
}

// Classify decides the type of an extracted archive. The manifest wins; an
// archive without one must carry a recognized name prefix.
func (c *Catalog) Classify(filename, extractedDir string) (ArchiveType, *Manifest, error) {
	m, err := readManifestDir(extractedDir)
	if err != nil {
		return "", nil, err
	}
	if m != nil {
		return m.Type, m, nil
	}

	t, ok := typeFromPrefix(filename)
	if !ok {
		return "", nil, appErrors.NewValidationError(
			fmt.Sprintf("cannot determine the type of %s: no manifest and unrecognized name", filename), nil).
			WithUserMessage("The archive was not produced by this system or has been renamed")
	}
	c.logger.WithFields(map[string]interface{}{"archive": filename, "type": t}).
		Warn("Archive has no manifest, type inferred from its name")
	return t, nil, nil
}

// NewName builds a fresh archive name for prefix at now. A name already taken
// gets a short random suffix.
func (c *Catalog) NewName(prefix, suffix string, now time.Time) string {
	base := prefix + "_" + now.Format(TimestampLayout)
	if suffix != "" {
		base += "_" + suffix
	}

	name := base + ArchiveExtension
	if !c.taken(name) {
		return name
	}
	for {
		name = base + "_" + uuid.New().String()[:8] + ArchiveExtension
		if !c.taken(name) {
			return name
		}
	}
}

func (c *Catalog) taken(name string) bool {
	path := filepath.Join(c.dir, name)
	if _, err := os.Lstat(path); err == nil {
		return true
	}
	if _, err := os.Lstat(path + ".partial"); err == nil {
		return true
	}
	return false
}
