package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openfroyo/up/pkg/config"
	"github.com/openfroyo/up/pkg/engine"
	"github.com/openfroyo/up/pkg/ops/defaults"
	"github.com/openfroyo/up/pkg/report"
	"github.com/openfroyo/up/pkg/stores"
	"github.com/openfroyo/up/pkg/telemetry"
)

// Keys of the global flags in viper.
const (
	keyConfig        = "config"
	keyLogLevel      = "log-level"
	keyLogFormat     = "log-format"
	keyLogFile       = "log-file"
	keyJSON          = "json"
	keyMetricsFile   = "metrics-file"
	keyTraceExporter = "trace-exporter"
	keyTraceEndpoint = "trace-endpoint"
	keyDefaultsDB    = "defaults-db"
)

// app holds the state shared by every command of one invocation.
type app struct {
	v       *viper.Viper
	version string
	tel     *telemetry.Telemetry
	stdout  io.Writer
	stderr  io.Writer

	// exitCode is set by commands that run tasks.
	exitCode int
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context, version, commit, buildDate string) (int, error) {
	a := &app{
		v:       viper.New(),
		version: version,
		tel:     telemetry.NewNop(),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
	rootCmd := newRootCommand(a, version, commit, buildDate)
	err := rootCmd.ExecuteContext(ctx)
	return a.exitCode, err
}

func newRootCommand(a *app, version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "up",
		Short: "up - bring a machine up to date",
		Long: `up converges a machine to the state described by a directory of tasks.

Tasks run commands or built-in libraries:
  - link: keep dotfiles symlinked from a source tree
  - git: clone and fast-forward repositories, pruning gone branches
  - defaults: merge structured values into preference domains

Bootstrap tasks run first, one at a time; everything else runs in parallel.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setupTelemetry()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 10*time.Second)
			defer cancel()
			return a.tel.Shutdown(ctx)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP(keyConfig, "c", "", "path to up.yaml (default $XDG_CONFIG_HOME/up/up.yaml)")
	flags.String(keyLogLevel, "info", "log level (trace, debug, info, warn, error)")
	flags.String(keyLogFormat, "console", "log format (console, json)")
	flags.String(keyLogFile, "", "append logs to this file instead of stderr")
	flags.Bool(keyJSON, false, "output in JSON format")
	flags.String(keyMetricsFile, "", "write prometheus metrics to this file when the run ends")
	flags.String(keyTraceExporter, "none", "trace exporter (none, stdout, otlp)")
	flags.String(keyTraceEndpoint, "", "OTLP collector endpoint")
	flags.String(keyDefaultsDB, "", "preference database (default $XDG_DATA_HOME/up/defaults.db)")
	for _, key := range []string{
		keyConfig, keyLogLevel, keyLogFormat, keyLogFile, keyJSON,
		keyMetricsFile, keyTraceExporter, keyTraceEndpoint, keyDefaultsDB,
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(key))
	}
	a.v.SetEnvPrefix(config.EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	rootCmd.AddCommand(newRunCommand(a))
	rootCmd.AddCommand(newListCommand(a))
	rootCmd.AddCommand(newLinkCommand(a))
	rootCmd.AddCommand(newGitCommand(a))
	rootCmd.AddCommand(newDefaultsCommand(a))
	rootCmd.AddCommand(newGenerateCommand(a))

	return rootCmd
}

// setupTelemetry builds the logger, tracer and metrics from the global flags.
func (a *app) setupTelemetry() error {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = a.version
	cfg.Logging.Level = a.v.GetString(keyLogLevel)
	cfg.Logging.Format = a.v.GetString(keyLogFormat)
	if path := a.v.GetString(keyLogFile); path != "" {
		cfg.Logging.Output = path
		cfg.Logging.NoColor = true
	}

	if exporter := a.v.GetString(keyTraceExporter); exporter != "" && exporter != "none" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = exporter
		cfg.Tracing.Endpoint = a.v.GetString(keyTraceEndpoint)
	}
	if path := a.v.GetString(keyMetricsFile); path != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.TextfilePath = path
	}

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return fmt.Errorf("invalid telemetry settings: %w", err)
	}
	a.tel = tel
	return nil
}

func (a *app) loadConfig() (*config.Config, error) {
	return config.NewLoader(a.v, a.tel.Logger).Load(a.v.GetString(keyConfig))
}

// defaultsDBPath returns the preference database location.
func (a *app) defaultsDBPath() (string, error) {
	if path := a.v.GetString(keyDefaultsDB); path != "" {
		return path, nil
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "up", "defaults.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot locate data directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "up", "defaults.db"), nil
}

func (a *app) openDefaultsStore(ctx context.Context) (*stores.SQLiteStore, error) {
	path, err := a.defaultsDBPath()
	if err != nil {
		return nil, err
	}
	a.tel.Logger.Debugf("opening preference database %s", path)
	return stores.Open(ctx, path)
}

// runTasks schedules set, prints the report and records the exit code.
func (a *app) runTasks(ctx context.Context, set engine.TaskSet, opts engine.RunOptions) error {
	var dispatchOpts []engine.DispatcherOption
	if usesDefaults(set) {
		store, err := a.openDefaultsStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		dispatchOpts = append(dispatchOpts, engine.WithDefaultsStore(defaults.Store(store)))
	}

	scheduler := engine.NewScheduler(
		engine.NewDispatcher(dispatchOpts...),
		engine.WithTelemetry(a.tel),
		engine.WithOutput(a.stdout, a.stderr),
	)
	runID := uuid.New().String()
	result := scheduler.Run(ctx, runID, set, opts)

	a.exitCode = result.ExitCode()
	if a.v.GetBool(keyJSON) {
		return report.RenderJSON(a.stdout, result)
	}
	if set.Len() > 1 || !result.Success() {
		report.Render(a.stderr, result)
	}
	return nil
}

func usesDefaults(set engine.TaskSet) bool {
	for _, tasks := range [][]engine.TaskDefinition{set.Bootstrap, set.Parallel} {
		for _, t := range tasks {
			if _, ok := t.Operation.(engine.DefaultsWrite); ok {
				return true
			}
		}
	}
	return false
}
