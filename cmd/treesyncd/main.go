package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/schaermu/treesyncd/internal/config"
	"github.com/schaermu/treesyncd/internal/daemon"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	dryRun    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "treesyncd",
	Short: "Periodically mirror a source directory tree onto a target tree",
	Long: `treesyncd keeps a target directory tree identical to a source tree.

Files are compared by modification time only: new or changed files are copied,
entries missing from the source are removed, and every change is appended to
a plain-text journal.

It can run as a long-lived daemon that mirrors at a fixed interval or perform
a single pass and exit.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run [interval source target [log_file]]",
	Short: "Mirror the source tree every interval until interrupted",
	Long: `Run performs a mirror pass every interval milliseconds. The first pass starts
after one full interval.

Positional arguments override the config file. SIGINT and SIGTERM stop the
daemon after the running pass finishes; SIGHUP requests an immediate pass.`,
	Args: argCounts(0, 3, 4),
	RunE: runDaemon,
}

var syncCmd = &cobra.Command{
	Use:   "sync [source target [log_file]]",
	Short: "Perform a single mirror pass",
	Long: `Sync mirrors the source tree onto the target tree once and exits.

With --dry-run the planned changes are logged but neither the target tree nor
the journal is touched.`,
	Args: argCounts(0, 2, 3),
	RunE: runSync,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("treesyncd %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/treesyncd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Sync command flags
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")

	// Add commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(versionCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger, func(c *config.Config) {
		if len(args) == 0 {
			return
		}
		c.SetInterval(args[0])
		applyPaths(c, args[1:])
	}, len(args) > 0)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	runner := daemon.New(cfg, afero.NewOsFs(), logger)
	if err := runner.Bootstrap(); err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}

	return runner.Run(ctx, setupTriggerHandler(ctx))
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger, func(c *config.Config) {
		applyPaths(c, args)
	}, len(args) > 0)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	runner := daemon.New(cfg, afero.NewOsFs(), logger, daemon.WithDryRun(dryRun))
	if !dryRun {
		if err := runner.Bootstrap(); err != nil {
			logger.Error("startup failed", "error", err)
			return err
		}
	}

	report, err := runner.RunOnce(ctx)
	if err != nil {
		logger.Error("sync failed", "error", err)
		return err
	}

	if dryRun {
		logger.Info("dry run complete", "planned_changes", len(report.Events))
	}
	if len(report.Skipped) > 0 {
		return fmt.Errorf("%d entries could not be mirrored: %w", len(report.Skipped), report.Err())
	}
	return nil
}

// argCounts accepts exactly one of the given positional argument counts
func argCounts(counts ...int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		for _, n := range counts {
			if len(args) == n {
				return nil
			}
		}
		return fmt.Errorf("accepts %v positional args, received %d", counts, len(args))
	}
}

// applyPaths maps positional source, target and optional log file arguments
func applyPaths(c *config.Config, args []string) {
	if len(args) >= 2 {
		c.Paths.Source = args[0]
		c.Paths.Target = args[1]
	}
	if len(args) >= 3 {
		c.Paths.LogFile = args[2]
	}
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// loadConfig reads the config file, applies positional overrides and
// finalizes the result. A missing file is tolerated when the default
// location is used or when positional arguments supply the paths.
func loadConfig(logger *slog.Logger, override func(*config.Config), hasArgs bool) (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		defaultPath, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = defaultPath
	}

	logger.Debug("loading configuration", "path", configPath)

	opts := []config.LoadOption{}
	if hasArgs || cfgFile == "" {
		opts = append(opts, config.AllowMissing())
	}
	if override != nil {
		opts = append(opts, config.WithOverride(override))
	}

	cfg, err := config.Load(configPath, opts...)
	if err != nil {
		return nil, err
	}

	if cfg.File != "" {
		logger.Info("configuration loaded", "path", cfg.File)
	} else {
		logger.Info("no configuration file, using defaults", "path", configPath)
	}
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	logger.Debug("configuration resolved",
		"source", cfg.Paths.Source,
		"target", cfg.Paths.Target,
		"log_file", cfg.Paths.LogFile,
		"interval_ms", cfg.Sync.IntervalMS,
		"on_error", string(cfg.Sync.OnError))

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}

// setupTriggerHandler forwards SIGHUP as pass requests until ctx is done
func setupTriggerHandler(ctx context.Context) <-chan struct{} {
	triggers := make(chan struct{})

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)

	go func() {
		defer signal.Stop(hupCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hupCh:
				select {
				case triggers <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return triggers
}
