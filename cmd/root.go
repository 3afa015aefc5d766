package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"flexbackup-manager/internal/config"
	"flexbackup-manager/internal/display"
	apperrors "flexbackup-manager/internal/errors"
	"flexbackup-manager/internal/logging"

	"github.com/juju/clock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "FLEXBACKUP"

// Version information (set by main package)
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

// app holds the run-level options shared by all subcommands. Values come
// from flags, FLEXBACKUP_* environment variables or their defaults, in that
// order of precedence.
type app struct {
	v     *viper.Viper
	clock clock.Clock
}

// Execute runs the CLI and exits with a status derived from the error type.
func Execute() {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", apperrors.FormatUserError(err))
		os.Exit(apperrors.ExitCode(err))
	}
}

// NewRootCommand builds the command tree with its own viper instance
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New(), clock: clock.WallClock}

	rootCmd := &cobra.Command{
		Use:   "flexbackup-manager",
		Short: "Two-tier cyclic scheduler for flexbackup",
		Long: `flexbackup-manager decides every day which backup sets get a full backup
and which get an incremental one, runs flexbackup for each of them and
removes old snapshots beyond the configured retention.

Without a subcommand it performs today's run.

Examples:
  # Run today's backups
  flexbackup-manager --config=/etc/flexbackup/backup_list.yaml

  # Show what would run on a given day
  flexbackup-manager plan --date=2024-03-01

  # List snapshots retention would remove
  flexbackup-manager gc --dry-run`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.validateFlags()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBackup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", config.DefaultConfigFile, "backup set configuration file")
	flags.Bool("dry-run", false, "show what would be done without running backups or removing snapshots")
	flags.BoolP("verbose", "v", false, "enable verbose output")
	flags.BoolP("quiet", "q", false, "suppress non-error output")
	flags.String("log-level", "normal", "log level (quiet, normal, verbose, debug)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("log-file", "", "also write logs to this file")
	flags.Bool("no-color", false, "disable color output")
	flags.String("theme", "dark", "color theme (dark, light)")
	flags.String("format", "table", "output format (table, json, yaml)")

	for _, name := range []string{"config", "dry-run", "verbose", "quiet", "log-level", "log-format", "log-file", "no-color", "theme", "format"} {
		_ = a.v.BindPFlag(flagKey(name), flags.Lookup(name))
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	rootCmd.AddCommand(
		a.newRunCommand(),
		a.newPlanCommand(),
		a.newGCCommand(),
		a.newConfigCommand(),
		newVersionCommand(),
	)
	return rootCmd
}

func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// validateFlags validates CLI flags and their combinations
func (a *app) validateFlags() error {
	if a.v.GetBool("verbose") && a.v.GetBool("quiet") {
		return apperrors.NewConfigurationError("--verbose and --quiet flags are mutually exclusive", nil)
	}
	if _, err := logging.ParseLevel(a.v.GetString("log_level")); err != nil {
		return apperrors.NewConfigurationError("invalid --log-level", err)
	}
	if f := a.v.GetString("log_format"); f != "text" && f != "json" {
		return apperrors.NewConfigurationError(fmt.Sprintf("invalid --log-format %q (text, json)", f), nil)
	}
	if _, err := display.ParseFormat(a.v.GetString("format")); err != nil {
		return apperrors.NewConfigurationError("invalid --format", err)
	}
	return nil
}

func (a *app) loadConfig() (*config.Config, error) {
	return config.Load(a.v.GetString("config"))
}

// newLogger writes logs to stderr so that stdout carries only rendered output
func (a *app) newLogger(cmd *cobra.Command) (*logging.Logger, error) {
	level, _ := logging.ParseLevel(a.v.GetString("log_level"))
	switch {
	case a.v.GetBool("verbose") && level != logging.LogLevelDebug:
		level = logging.LogLevelVerbose
	case a.v.GetBool("quiet"):
		level = logging.LogLevelQuiet
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:   level,
		Output:  cmd.ErrOrStderr(),
		Format:  a.v.GetString("log_format"),
		LogFile: a.v.GetString("log_file"),
	})
	if err != nil {
		return nil, apperrors.NewConfigurationError("Failed to initialize logger", err)
	}
	return logger, nil
}

func (a *app) newRenderer(out io.Writer) *display.Renderer {
	format, _ := display.ParseFormat(a.v.GetString("format"))
	colors := display.NewColorSystem(display.GetThemeByName(a.v.GetString("theme")), !a.v.GetBool("no_color"))
	return display.NewRenderer(out, format, colors)
}

// now returns the --date override at midnight UTC, or the clock's time
func (a *app) now() (time.Time, error) {
	date := a.v.GetString("date")
	if date == "" {
		return a.clock.Now(), nil
	}
	t, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return time.Time{}, apperrors.NewConfigurationError(fmt.Sprintf("invalid --date %q, expected YYYY-MM-DD", date), err)
	}
	return t, nil
}

// bindDate binds the local --date flag of the command being executed
func (a *app) bindDate(cmd *cobra.Command) {
	_ = a.v.BindPFlag("date", cmd.Flags().Lookup("date"))
}

// newVersionCommand creates the version subcommand
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "flexbackup-manager version %s\n", version)
			fmt.Fprintf(out, "Built: %s\n", buildTime)
			fmt.Fprintf(out, "Commit: %s\n", gitCommit)
			fmt.Fprintf(out, "Go version: %s\n", goVersion)
		},
	}
}
