package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"suite-backup/internal/archive"
	appErrors "suite-backup/internal/errors"

	"github.com/goccy/go-json"
	"github.com/shirou/gopsutil/v3/host"
)

// Manifest describes an archive. It is stored as backup_info.json with a
// human-readable backup_info.txt next to it. Credentials never appear here.
type Manifest struct {
	FormatVersion int           `json:"format_version"`
	Type          ArchiveType   `json:"type"`
	CreatedAt     time.Time     `json:"created_at"`
	CreatedBy     string        `json:"created_by"`
	System        SystemInfo    `json:"system"`
	Host          HostInfo      `json:"host"`
	Database      *DatabaseInfo `json:"database,omitempty"`
	Compression   string        `json:"compression,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	SourceArchive string        `json:"source_archive,omitempty"`
	Files         *FileSummary  `json:"files,omitempty"`
	Dump          *DumpSummary  `json:"dump,omitempty"`
}

// SystemInfo names the installation that produced the archive
type SystemInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// HostInfo identifies the machine that produced the archive
type HostInfo struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	Platform        string `json:"platform,omitempty"`
	PlatformVersion string `json:"platform_version,omitempty"`
	KernelVersion   string `json:"kernel_version,omitempty"`
}

// DatabaseInfo is the connection target without credentials
type DatabaseInfo struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Charset  string `json:"charset"`
}

// FileSummary counts the files captured from the application tree
type FileSummary struct {
	Files   int   `json:"files"`
	Skipped int   `json:"skipped"`
	Bytes   int64 `json:"bytes"`
}

// DumpSummary counts what the database dump contains
type DumpSummary struct {
	Tables int   `json:"tables"`
	Views  int   `json:"views"`
	Rows   int   `json:"rows"`
	Bytes  int64 `json:"bytes"`
}

// Validate checks the fields every reader depends on
func (m *Manifest) Validate() error {
	if m.FormatVersion <= 0 || m.FormatVersion > ManifestFormat {
		return appErrors.NewValidationError(fmt.Sprintf("unsupported manifest format %d", m.FormatVersion), nil)
	}
	if !m.Type.Valid() {
		return appErrors.NewValidationError(fmt.Sprintf("unknown archive type %q in manifest", m.Type), nil)
	}
	if m.CreatedAt.IsZero() {
		return appErrors.NewValidationError("manifest has no creation time", nil)
	}
	return nil
}

// collectHostInfo never fails; missing details are left empty
func collectHostInfo(ctx context.Context) HostInfo {
	info := HostInfo{}
	if h, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = h.Hostname
		info.OS = h.OS
		info.Platform = h.Platform
		info.PlatformVersion = h.PlatformVersion
		info.KernelVersion = h.KernelVersion
	}
	if info.Hostname == "" {
		info.Hostname, _ = os.Hostname()
	}
	return info
}

// Text renders the manifest for backup_info.txt
func (m *Manifest) Text() string {
	var b strings.Builder
	b.WriteString("BACKUP INFORMATION\n")
	b.WriteString("==================\n\n")
	fmt.Fprintf(&b, "Type: %s\n", m.Type)
	fmt.Fprintf(&b, "Created: %s\n", m.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "User: %s\n", m.CreatedBy)
	fmt.Fprintf(&b, "System: %s", m.System.Name)
	if m.System.Version != "" {
		fmt.Fprintf(&b, " v%s", m.System.Version)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Host: %s (%s)\n", m.Host.Hostname, strings.TrimSpace(m.Host.OS+" "+m.Host.Platform+" "+m.Host.PlatformVersion))
	if m.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", m.Reason)
	}
	if m.SourceArchive != "" {
		fmt.Fprintf(&b, "Taken before restoring: %s\n", m.SourceArchive)
	}

	if m.Database != nil {
		b.WriteString("\nDATABASE\n")
		fmt.Fprintf(&b, "Host: %s\n", m.Database.Host)
		fmt.Fprintf(&b, "Port: %d\n", m.Database.Port)
		fmt.Fprintf(&b, "Database: %s\n", m.Database.Database)
		fmt.Fprintf(&b, "Charset: %s\n", m.Database.Charset)
	}
	if m.Dump != nil {
		fmt.Fprintf(&b, "Tables: %d, views: %d, rows: %d\n", m.Dump.Tables, m.Dump.Views, m.Dump.Rows)
	}
	if m.Files != nil {
		fmt.Fprintf(&b, "\nFILES\nCopied: %d\nSkipped: %d\nBytes: %d\n", m.Files.Files, m.Files.Skipped, m.Files.Bytes)
	}
	return b.String()
}

// writeManifest stores both manifest files in dir
func writeManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return appErrors.NewIOError("failed to encode manifest", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestJSON), data, 0644); err != nil {
		return appErrors.NewIOError("failed to write manifest", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestText), []byte(m.Text()), 0644); err != nil {
		return appErrors.NewIOError("failed to write manifest", err)
	}
	return nil
}

// ParseManifest decodes and validates backup_info.json
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, appErrors.NewValidationError("manifest is not valid JSON", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// readManifestDir loads the manifest of an extracted archive. A missing file returns nil, nil.
func readManifestDir(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestJSON))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, appErrors.NewIOError("failed to read manifest", err)
	}
	return ParseManifest(data)
}

// readManifestArchive loads the manifest straight from a zip. A missing entry returns nil, nil.
func readManifestArchive(path string) (*Manifest, error) {
	data, err := archive.ReadFile(path, ManifestJSON)
	if err != nil {
		if appErrors.IsType(err, appErrors.ErrorTypeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ParseManifest(data)
}
