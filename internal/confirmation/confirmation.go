// Package confirmation asks the operator before destructive backup operations.
package confirmation

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"suite-backup/internal/backup"
	appErrors "suite-backup/internal/errors"

	"golang.org/x/term"
)

// Request describes the operation waiting for approval
type Request struct {
	Title       string
	Details     []string
	Destructive bool
}

// Service prompts on a terminal. AssumeYes approves without asking.
type Service struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
	assumeYes   bool
}

// NewService prompts on stdin and stderr. Prompting is refused when stdin
// is not a terminal and assumeYes is false.
func NewService(assumeYes bool) *Service {
	return &Service{
		in:          bufio.NewReader(os.Stdin),
		out:         os.Stderr,
		interactive: term.IsTerminal(int(os.Stdin.Fd())),
		assumeYes:   assumeYes,
	}
}

// NewServiceWithIO prompts on the given streams, always treating them as interactive
func NewServiceWithIO(in io.Reader, out io.Writer, assumeYes bool) *Service {
	return &Service{in: bufio.NewReader(in), out: out, interactive: true, assumeYes: assumeYes}
}

// Confirm returns true once the operator approves req. Declining returns
// false and no error; Ctrl+C or ctx cancellation returns an interruption error.
func (s *Service) Confirm(ctx context.Context, req Request) (bool, error) {
	if s.assumeYes {
		return true, nil
	}
	if !s.interactive {
		return false, appErrors.NewValidationError("confirmation required but stdin is not a terminal", nil).
			WithUserMessage("Run again with --yes to confirm without a prompt")
	}

	s.render(req)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	for {
		answer, err := s.prompt(ctx, interrupt)
		if err != nil {
			return false, err
		}
		switch answer {
		case "y", "yes":
			return true, nil
		case "n", "no", "":
			fmt.Fprintln(s.out, "Cancelled")
			return false, nil
		case "d", "details":
			s.details(req)
		default:
			fmt.Fprintf(s.out, "Invalid input '%s'. Enter 'y' for yes, 'n' for no or 'd' for details.\n", answer)
		}
	}
}

func (s *Service) render(req Request) {
	fmt.Fprintln(s.out)
	if req.Destructive {
		fmt.Fprintln(s.out, "WARNING: this operation overwrites current data")
	}
	fmt.Fprintln(s.out, req.Title)
}

func (s *Service) details(req Request) {
	if len(req.Details) == 0 {
		fmt.Fprintln(s.out, "No further details")
		return
	}
	for _, d := range req.Details {
		fmt.Fprintf(s.out, "  - %s\n", d)
	}
}

func (s *Service) prompt(ctx context.Context, interrupt <-chan os.Signal) (string, error) {
	fmt.Fprint(s.out, "Continue? [y/N/d]: ")

	type line struct {
		text string
		err  error
	}
	lines := make(chan line, 1)
	go func() {
		text, err := s.in.ReadString('\n')
		lines <- line{text, err}
	}()

	select {
	case <-interrupt:
		fmt.Fprintln(s.out)
		return "", interrupted()
	case <-ctx.Done():
		fmt.Fprintln(s.out)
		return "", interrupted()
	case l := <-lines:
		// a closed input without a newline still counts as an answer
		if l.err != nil && !errors.Is(l.err, io.EOF) {
			return "", appErrors.NewIOError("failed to read confirmation", l.err)
		}
		return strings.ToLower(strings.TrimSpace(l.text)), nil
	}
}

func interrupted() error {
	return appErrors.NewAppError(appErrors.ErrorTypeInterruption, "operation cancelled by user", nil)
}

// ForRestore describes what restoring an archive overwrites
func ForRestore(a backup.BackupArchive) Request {
	req := Request{
		Title:       fmt.Sprintf("Restore %s (%s, %s)?", a.Filename, a.Type, backup.FormatSize(a.Size)),
		Destructive: true,
	}
	if a.Type == backup.TypeProject || a.Type == backup.TypeComplete {
		req.Details = append(req.Details,
			"Application files are overwritten; config.ini, backups and logs are kept",
			"A safety backup of the current files is created first")
	}
	if a.Type == backup.TypeDatabase || a.Type == backup.TypeComplete {
		req.Details = append(req.Details,
			"Every table in the dump is dropped and recreated",
			"A safety backup of the current database is created first")
	}
	if !a.CreatedAt.IsZero() {
		req.Details = append(req.Details, "Archive created "+a.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return req
}

// ForDelete describes deleting one or more archives
func ForDelete(names ...string) Request {
	req := Request{Destructive: true, Details: names}
	if len(names) == 1 {
		req.Title = fmt.Sprintf("Delete %s?", names[0])
	} else {
		req.Title = fmt.Sprintf("Delete %d backups?", len(names))
	}
	return req
}
