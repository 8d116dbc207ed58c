package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"suite-backup/internal/application"
	"suite-backup/internal/config"
	"suite-backup/internal/display"
	appErrors "suite-backup/internal/errors"
	"suite-backup/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	logLevel     string
	logFormat    string
	outputFormat string
	noColor      bool
	noIcons      bool
	quiet        bool
)

// errReported marks a failure that was already shown to the operator
var errReported = errors.New("error already reported")

var rootCmd = &cobra.Command{
	Use:   "suite-backup",
	Short: "Backup and restore engine for the Suite Ambiental dashboard",
	Long: `suite-backup creates, lists, restores and prunes backups of the
Suite Ambiental dashboard: the application files, the MySQL database,
or both in one complete archive.

Every restore first takes a safety backup of the current state, and every
operation is recorded in the audit log.

Examples:
  # Back up files and database together
  suite-backup backup create complete

  # List archives as JSON
  suite-backup backup list --output json

  # Restore an archive without prompting
  suite-backup backup restore complete_backup_2024-05-01_10-00-00.zip --yes

  # Serve the HTTP API for the dashboard
  suite-backup serve --config /etc/suite/config.ini`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	ctx, stop := application.SignalContext(context.Background())
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	if !errors.Is(err, errReported) {
		application.ReportError(os.Stderr, logging.NewNopLogger(), err)
	}
	os.Exit(1)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file, INI or YAML (default is ./config.ini when present)")
	pf.StringVar(&logLevel, "log-level", "", "log level: quiet, normal, verbose, debug")
	pf.StringVar(&logFormat, "log-format", "", "log format: text, json")
	pf.StringVarP(&outputFormat, "output", "o", "table", "output format: table, json, yaml")
	pf.BoolVar(&noColor, "no-color", false, "disable color output")
	pf.BoolVar(&noIcons, "no-icons", false, "disable status icons")
	pf.BoolVarP(&quiet, "quiet", "q", false, "only print errors and results")

	rootCmd.AddCommand(newVersionCommand())
	rootCmd.AddCommand(newConfigCommand())
}

// loadConfig reads the configuration with command-line overrides applied
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	bindFlags(loader.Viper())
	return loader.Load(cfgFile)
}

func bindFlags(v *viper.Viper) {
	pf := rootCmd.PersistentFlags()
	if f := pf.Lookup("log-level"); f.Changed {
		v.Set("log.level", f.Value.String())
	}
	if f := pf.Lookup("log-format"); f.Changed {
		v.Set("log.format", f.Value.String())
	}
	if quiet && !pf.Lookup("log-level").Changed {
		v.Set("log.level", string(logging.LogLevelQuiet))
	}
}

func newPrinter(cmd *cobra.Command) (*display.Printer, error) {
	format, err := display.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return display.New(display.Config{
		Format: format,
		Theme:  "dark",
		Color:  !noColor,
		Icons:  !noIcons,
		Quiet:  quiet,
		Out:    cmd.OutOrStdout(),
		Err:    cmd.ErrOrStderr(),
	}), nil
}

// runner carries what a command needs once the engine is built
type runner struct {
	app *application.Application
	out *display.Printer
}

// withApp builds the engine, runs fn and releases everything afterwards.
// Errors are reported while the log is still open.
func withApp(cmd *cobra.Command, opts application.Options, fn func(ctx context.Context, r *runner) error) error {
	out, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := application.New(cmd.Context(), cfg, opts)
	if err != nil {
		return err
	}
	defer app.Close()

	r := &runner{app: app, out: out}
	if err := fn(cmd.Context(), r); err != nil {
		if errors.Is(err, errReported) {
			return err
		}
		return r.finish(nil, err)
	}
	return nil
}

// finish prints an operation's outcome. Partial failures still exit zero.
func (r *runner) finish(result interface{}, err error) error {
	if perr := r.out.Result(result, err); perr != nil {
		return perr
	}
	if err == nil || appErrors.IsPartialFailure(err) {
		return nil
	}
	application.LogError(r.app.Logger(), err)
	if !r.out.Config().Structured() {
		application.WriteHints(r.out.Config().Err, err)
	}
	return errReported
}

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	goVersion = gv
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "suite-backup version %s\n", version)
			fmt.Fprintf(w, "Built: %s\n", buildTime)
			fmt.Fprintf(w, "Commit: %s\n", gitCommit)
			fmt.Fprintf(w, "Go version: %s\n", goVersion)
		},
	}
}
