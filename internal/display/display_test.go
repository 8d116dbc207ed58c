package display

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"suite-backup/internal/backup"
	appErrors "suite-backup/internal/errors"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newTestPrinter(format OutputFormat, quiet bool) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	p := New(Config{Format: format, Quiet: quiet, Out: out, Err: errOut})
	return p, out, errOut
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{" JSON ", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, appErrors.IsType(err, appErrors.ErrorTypeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestColorizer(t *testing.T) {
	off := newColorizer(false)
	assert.Equal(t, "plain", off.Sprint(ColorRed, "plain"))

	on := newColorizer(true)
	colored := on.Sprint(ColorGreen, "ok")
	assert.Contains(t, colored, "\x1b[")
	assert.Contains(t, colored, "ok")
	assert.Equal(t, "ok", on.Sprint(ColorReset, "ok"))
	assert.Contains(t, on.Sprintf(ColorRed, "%d files", 3), "3 files")
}

func TestColorSupportOnBuffer(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("FORCE_COLOR", "")
	assert.False(t, colorSupported(&bytes.Buffer{}))

	t.Setenv("FORCE_COLOR", "1")
	assert.True(t, colorSupported(&bytes.Buffer{}))

	t.Setenv("NO_COLOR", "1")
	assert.False(t, colorSupported(&bytes.Buffer{}))
}

func TestIcons(t *testing.T) {
	assert.Equal(t, "", iconSet{}.Render("success"))
	assert.Equal(t, "[OK]", iconSet{enabled: true}.Render("success"))
	assert.Equal(t, "[D]", iconSet{enabled: true}.Render(string(backup.TypeDatabase)))
	assert.Equal(t, "✔", iconSet{enabled: true, unicode: true}.Render("success"))
	assert.Equal(t, "", iconSet{enabled: true}.Render("unknown"))
}

func TestUnicodeSupported(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want bool
	}{
		{"utf8 locale", map[string]string{"LANG": "es_ES.UTF-8"}, true},
		{"lc_all wins", map[string]string{"LC_ALL": "C", "LANG": "es_ES.UTF-8"}, false},
		{"c locale", map[string]string{"LANG": "C"}, false},
		{"no locale", map[string]string{}, false},
		{"dumb terminal", map[string]string{"LANG": "en_US.utf8", "TERM": "dumb"}, false},
		{"forced", map[string]string{"FORCE_UNICODE": "1", "TERM": "dumb"}, true},
		{"disabled", map[string]string{"NO_UNICODE": "1", "LANG": "en_US.UTF-8"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"FORCE_UNICODE", "NO_UNICODE", "LC_ALL", "LC_CTYPE", "LANG"} {
				t.Setenv(key, "")
			}
			t.Setenv("TERM", "xterm")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.want, unicodeSupported())
		})
	}
}

func TestTableRender(t *testing.T) {
	table := NewTable("Name", "Size").AlignRight(1).SetMaxWidth(80)
	table.AddRow("a.zip", "2.0 KB")
	table.AddRow("bb.zip")

	var buf bytes.Buffer
	table.Render(&buf)

	want := strings.Join([]string{
		"+--------+--------+",
		"| Name   |   Size |",
		"+--------+--------+",
		"| a.zip  | 2.0 KB |",
		"| bb.zip |        |",
		"+--------+--------+",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
	assert.Equal(t, 2, table.Len())
}

func TestTableShrinksToWidth(t *testing.T) {
	table := NewTable("Filename", "T").SetMaxWidth(20)
	table.AddRow("complete_backup_2024-05-01.zip", "c")

	var buf bytes.Buffer
	table.Render(&buf)

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.LessOrEqual(t, utf8.RuneCountInString(line), 20, line)
	}
	assert.Contains(t, buf.String(), "complete_...")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abcdef", truncate("abcdef", 6))
	assert.Equal(t, "ab...", truncate("abcdefgh", 5))
	assert.Equal(t, "abc", truncate("abcdef", 3))
	assert.Equal(t, "año", truncate("año", 3))
}

func TestResultStructured(t *testing.T) {
	archive := &backup.BackupArchive{Filename: "proyecto_backup_2024-05-01_10-00-00.zip", Type: backup.TypeProject, Size: 2048}

	p, out, errOut := newTestPrinter(FormatJSON, false)
	require.NoError(t, p.Result(archive, nil))
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, backup.StatusSuccess, doc["status"])
	assert.Equal(t, "Backup proyecto_backup_2024-05-01_10-00-00.zip created (2.0 KB)", doc["message"])
	assert.Empty(t, errOut.String())

	p, out, _ = newTestPrinter(FormatYAML, false)
	require.NoError(t, p.Result(nil, appErrors.NewValidationError("invalid backup filename", nil)))
	var ydoc map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &ydoc))
	assert.Equal(t, backup.StatusError, ydoc["status"])
	assert.Equal(t, "validation", ydoc["error_type"])
}

func TestResultTable(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	list := []backup.BackupArchive{
		{Filename: "complete_backup_2024-05-01_10-00-00.zip", Type: backup.TypeComplete, Size: 4096, CreatedAt: created, CreatedBy: "admin"},
		{Filename: "database_backup_2024-04-30_10-00-00.zip", Type: backup.TypeDatabase, Size: 1024, CreatedAt: created.Add(-24 * time.Hour)},
	}

	p, out, errOut := newTestPrinter(FormatTable, false)
	require.NoError(t, p.Result(list, nil))
	assert.Contains(t, out.String(), "complete_backup_2024-05-01_10-00-00.zip")
	assert.Contains(t, out.String(), "database_backup_2024-04-30_10-00-00.zip")
	assert.Contains(t, out.String(), "admin")
	assert.Contains(t, out.String(), "2 backups, 5.0 KB")
	assert.Empty(t, errOut.String())

	p, out, errOut = newTestPrinter(FormatTable, false)
	require.NoError(t, p.Result([]backup.BackupArchive{}, nil))
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "No backups found")
}

func TestResultErrors(t *testing.T) {
	p, out, errOut := newTestPrinter(FormatTable, true)
	require.NoError(t, p.Result(nil, errors.New("boom")))
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "An unexpected error occurred")

	p, _, errOut = newTestPrinter(FormatTable, false)
	partial := appErrors.NewPartialFailure("2 files could not be read", 2, nil)
	require.NoError(t, p.Result(&backup.BackupArchive{Filename: "a.zip"}, partial))
	assert.Contains(t, errOut.String(), "2 files could not be read")
}

func TestResultRestore(t *testing.T) {
	p, out, errOut := newTestPrinter(FormatTable, false)
	result := &backup.RestoreResult{
		Filename:             "database_backup_2024-05-01_10-00-00.zip",
		Type:                 backup.TypeDatabase,
		QueriesExecuted:      2,
		DatabaseSafetyBackup: "database_backup_2024-05-01_10-05-00_pre_restore.zip",
		Warnings:             []string{"Restore failed; previous state is in database_backup_2024-05-01_10-05-00_pre_restore.zip"},
	}
	require.NoError(t, p.Result(result, appErrors.NewFatalRestoreError("statement 3 failed", nil)))
	assert.Contains(t, out.String(), "database_backup_2024-05-01_10-05-00_pre_restore.zip")
	assert.Contains(t, out.String(), "Statements executed")
	assert.Contains(t, errOut.String(), "statement 3 failed")
	assert.Contains(t, errOut.String(), "previous state is in")
}

func TestResultPrune(t *testing.T) {
	p, out, _ := newTestPrinter(FormatTable, false)
	require.NoError(t, p.Result(&backup.PruneResult{Deleted: []string{"old.zip"}, Kept: 3, Freed: 1024, DryRun: true}, nil))
	assert.Contains(t, out.String(), "Would delete old.zip")
	assert.Contains(t, out.String(), "1 deleted, 3 kept, 1.0 KB freed")

	p, out, errOut := newTestPrinter(FormatTable, false)
	require.NoError(t, p.Result(&backup.PruneResult{Deleted: []string{}, Kept: 2}, nil))
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Nothing to prune, 2 backups kept")
}

func TestQuietSuppressesStatus(t *testing.T) {
	p, out, errOut := newTestPrinter(FormatTable, true)
	p.Header("Backups")
	p.Info("listing")
	p.Success("done")
	p.Warning("careful")
	p.Error("failed")
	assert.Empty(t, out.String())
	assert.Equal(t, "failed\n", errOut.String())
}

func TestSpinner(t *testing.T) {
	var buf bytes.Buffer
	s := newSpinner(&buf, newColorizer(false), ColorBlue, "Creating backup")
	s.start()
	s.Update("Compressing")
	time.Sleep(3 * spinnerDelay)
	s.Stop("Backup created")
	s.Stop("ignored")

	assert.Contains(t, buf.String(), "\r\033[K")
	assert.True(t, strings.HasSuffix(buf.String(), "Backup created\n"))
	assert.NotContains(t, buf.String(), "ignored")

	var nilSpinner *Spinner
	assert.NotPanics(t, func() {
		nilSpinner.Update("x")
		nilSpinner.Stop("x")
	})

	p, _, _ := newTestPrinter(FormatTable, false)
	assert.Nil(t, p.StartSpinner("not a terminal"))
}
