package display

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"suite-backup/internal/backup"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

const timeLayout = "2006-01-02 15:04:05"

// Printer writes status messages and results in the configured format
type Printer struct {
	cfg    Config
	theme  ColorTheme
	colors *colorizer
	icons  iconSet
}

// New creates a printer. Color is only used when cfg allows it and Out is a
// color-capable terminal.
func New(cfg Config) *Printer {
	cfg.setDefaults()
	return &Printer{
		cfg:    cfg,
		theme:  ThemeByName(cfg.Theme),
		colors: newColorizer(cfg.Color && colorSupported(cfg.Out)),
		icons:  iconSet{enabled: cfg.Icons, unicode: unicodeSupported()},
	}
}

// Config returns the options the printer runs with
func (p *Printer) Config() Config {
	return p.cfg
}

// Header prints a section title
func (p *Printer) Header(title string) {
	if p.cfg.Quiet || p.cfg.Structured() {
		return
	}
	fmt.Fprintln(p.cfg.Out, p.colors.Sprint(p.theme.Primary, title))
	fmt.Fprintln(p.cfg.Out, strings.Repeat("=", len(title)))
}

// Success, Info and Warning go to Err so structured output on Out stays clean

func (p *Printer) Success(msg string) { p.status("success", p.theme.Success, msg, false) }

func (p *Printer) Info(msg string) { p.status("info", p.theme.Info, msg, false) }

func (p *Printer) Warning(msg string) { p.status("warning", p.theme.Warning, msg, false) }

// Error is printed even in quiet mode
func (p *Printer) Error(msg string) { p.status("error", p.theme.Error, msg, true) }

func (p *Printer) status(icon string, clr Color, msg string, always bool) {
	if p.cfg.Quiet && !always {
		return
	}
	prefix := p.icons.Render(icon)
	if prefix != "" {
		prefix = p.colors.Sprint(clr, prefix) + " "
	}
	fmt.Fprintln(p.cfg.Err, prefix+p.colors.Sprint(clr, msg))
}

// Encode writes v as JSON or YAML according to the format. Table format
// falls back to JSON.
func (p *Printer) Encode(v interface{}) error {
	return encode(p.cfg.Out, p.cfg.Format, v)
}

func encode(w io.Writer, format OutputFormat, v interface{}) error {
	if format == FormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// StartSpinner animates msg on Err. It returns nil when the output is not
// an interactive table.
func (p *Printer) StartSpinner(msg string) *Spinner {
	if p.cfg.Quiet || p.cfg.Structured() || !isTerminal(p.cfg.Err) {
		return nil
	}
	s := newSpinner(p.cfg.Err, p.colors, p.theme.Primary, msg)
	s.start()
	return s
}

// Result prints an operation's outcome. Structured formats get the Outcome
// document; tables get status lines plus the result rendered by type.
func (p *Printer) Result(result interface{}, err error) error {
	outcome := backup.NewOutcome(result, err)
	if p.cfg.Structured() {
		return p.Encode(outcome)
	}

	switch outcome.Status {
	case backup.StatusError:
		p.Error(outcome.Message)
	case backup.StatusPartial:
		p.Warning(outcome.Message)
	default:
		if _, isList := result.([]backup.BackupArchive); !isList {
			p.Success(outcome.Message)
		}
	}
	if outcome.Fields != nil {
		p.render(outcome.Fields)
	}
	return nil
}

func (p *Printer) render(v interface{}) {
	switch r := v.(type) {
	case []backup.BackupArchive:
		p.archives(r)
	case *backup.BackupArchive:
		p.archives([]backup.BackupArchive{*r})
	case *backup.RestoreResult:
		p.restore(r)
	case *backup.PruneResult:
		p.prune(r)
	case []backup.RemoteObject:
		p.remote(r)
	case *backup.RemoteObject:
		p.remote([]backup.RemoteObject{*r})
	}
}

func (p *Printer) archives(list []backup.BackupArchive) {
	if len(list) == 0 {
		p.Info("No backups found")
		return
	}
	t := NewTable("", "Filename", "Type", "Size", "Created", "By").AlignRight(3)
	var size int64
	for _, a := range list {
		t.AddRow(p.icons.Render(string(a.Type)), a.Filename, string(a.Type),
			backup.FormatSize(a.Size), a.CreatedAt.Local().Format(timeLayout), a.CreatedBy)
		size += a.Size
	}
	t.Render(p.cfg.Out)
	if len(list) > 1 {
		fmt.Fprintf(p.cfg.Out, "%d backups, %s\n", len(list), backup.FormatSize(size))
	}
}

func (p *Printer) restore(r *backup.RestoreResult) {
	t := NewTable("Field", "Value")
	t.AddRow("Archive", r.Filename)
	t.AddRow("Type", string(r.Type))
	if r.FilesRestored > 0 || r.FilesSkipped > 0 {
		t.AddRow("Files restored", strconv.Itoa(r.FilesRestored))
		t.AddRow("Files skipped", strconv.Itoa(r.FilesSkipped))
	}
	if r.QueriesExecuted > 0 {
		t.AddRow("Statements executed", strconv.Itoa(r.QueriesExecuted))
	}
	if r.FilesSafetyBackup != "" {
		t.AddRow("Files safety backup", r.FilesSafetyBackup)
	}
	if r.DatabaseSafetyBackup != "" {
		t.AddRow("Database safety backup", r.DatabaseSafetyBackup)
	}
	if r.Duration != "" {
		t.AddRow("Duration", r.Duration)
	}
	t.Render(p.cfg.Out)
	for _, w := range r.Warnings {
		p.Warning(w)
	}
}

func (p *Printer) prune(r *backup.PruneResult) {
	verb := "Deleted"
	if r.DryRun {
		verb = "Would delete"
	}
	if len(r.Deleted) == 0 {
		p.Info(fmt.Sprintf("Nothing to prune, %d backups kept", r.Kept))
		return
	}
	for _, name := range r.Deleted {
		fmt.Fprintf(p.cfg.Out, "%s %s %s\n", p.icons.Render("delete"), verb, name)
	}
	fmt.Fprintf(p.cfg.Out, "%d deleted, %d kept, %s freed\n", len(r.Deleted), r.Kept, backup.FormatSize(r.Freed))
}

func (p *Printer) remote(objects []backup.RemoteObject) {
	if len(objects) == 0 {
		p.Info("No offsite copies found")
		return
	}
	t := NewTable("", "Name", "Size", "Modified").AlignRight(2)
	for _, o := range objects {
		t.AddRow(p.icons.Render("remote"), o.Name, backup.FormatSize(o.Size), o.ModTime.Local().Format(timeLayout))
	}
	t.Render(p.cfg.Out)
}
