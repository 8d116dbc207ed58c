package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"suite-backup/internal/config"
	"suite-backup/internal/database"
	"suite-backup/internal/display"
	"suite-backup/internal/logging"

	"github.com/spf13/cobra"
)

var (
	forceInit       bool
	validateOffline bool
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect, validate or create the configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE:  runConfigShow,
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and check the working directories",
		Long: `Validate the configuration and check the working directories.

When a database is configured the command also connects to it and
reports the server version and table count. Use --offline to skip
the connection.`,
		RunE: runConfigValidate,
	}
	validateCmd.Flags().BoolVar(&validateOffline, "offline", false, "do not connect to the database")

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a commented config.ini template",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigInit,
	}
	initCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing file")

	envCmd := &cobra.Command{
		Use:   "env",
		Short: "List the environment variables that override configuration keys",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range config.EnvironmentVariables() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}

	configCmd.AddCommand(showCmd, validateCmd, initCmd, envCmd)
	return configCmd
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if out.Config().Format == display.FormatJSON {
		return out.Encode(cfg.Masked())
	}
	data, err := cfg.YAML()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	out, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	health := cfg.CheckHealth(false)
	if cfg.Database.Configured() && !validateOffline {
		checkDatabase(cmd.Context(), cfg, health)
	}
	if out.Config().Structured() {
		if err := out.Encode(health); err != nil {
			return err
		}
	} else {
		printHealth(out, health)
	}
	if health.OverallHealth == config.HealthUnhealthy {
		return errReported
	}
	return nil
}

func checkDatabase(ctx context.Context, cfg *config.Config, health *config.HealthCheckResult) {
	if err := cfg.ApplyVault(ctx); err != nil {
		health.RecordDatabase("", 0, err)
		return
	}
	handle, err := database.NewService(logging.NewNopLogger()).Connect(ctx, cfg.Database)
	if err != nil {
		health.RecordDatabase("", 0, err)
		return
	}
	defer handle.Close()

	version, err := handle.Version(ctx)
	if err != nil {
		health.RecordDatabase("", 0, err)
		return
	}
	tables, err := handle.TableCount(ctx)
	health.RecordDatabase(version, tables, err)
}

func printHealth(out *display.Printer, health *config.HealthCheckResult) {
	components := make([]string, 0, len(health.ComponentStatus))
	for name := range health.ComponentStatus {
		components = append(components, name)
	}
	sort.Strings(components)

	t := display.NewTable("Component", "Status")
	for _, name := range components {
		t.AddRow(name, health.ComponentStatus[name])
	}
	t.Render(out.Config().Out)

	if health.Database != nil {
		out.Info(fmt.Sprintf("Database server %s, %d tables", health.Database.Version, health.Database.Tables))
	}
	for _, issue := range health.Issues {
		out.Warning(issue)
	}
	for _, rec := range health.Recommendations {
		out.Info(rec)
	}

	switch health.OverallHealth {
	case config.HealthHealthy:
		out.Success("Configuration is valid")
	case config.HealthDegraded:
		out.Warning("Configuration is usable with limitations")
	default:
		out.Error("Configuration has problems: " + strings.Join(health.Issues, "; "))
	}
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.DefaultConfigName
	if len(args) == 1 {
		path = args[0]
	}
	if err := config.WriteTemplate(path, forceInit); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
