// Package daemon wires configuration, the reconciler, the journal and the
// scheduler into a running mirror.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"

	"github.com/schaermu/treesyncd/internal/config"
	"github.com/schaermu/treesyncd/internal/journal"
	"github.com/schaermu/treesyncd/internal/mirror"
	"github.com/schaermu/treesyncd/internal/schedule"
)

// Runner performs mirror passes for one configured source/target pair
type Runner struct {
	cfg       *config.Config
	fs        afero.Fs
	logger    *slog.Logger
	clock     clockwork.Clock
	journal   *journal.Journal
	scheduler *schedule.Scheduler
	dryRun    bool
}

// Option configures a Runner
type Option func(*Runner)

// WithClock sets the clock used for scheduling and timestamps
func WithClock(c clockwork.Clock) Option {
	return func(r *Runner) {
		r.clock = c
	}
}

// WithDryRun reports planned changes without touching the target or journal
func WithDryRun(dryRun bool) Option {
	return func(r *Runner) {
		r.dryRun = dryRun
	}
}

// New creates a runner for cfg. cfg must already be finalized.
func New(cfg *config.Config, fsys afero.Fs, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		fs:     fsys,
		logger: logger,
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.journal = journal.New(fsys, cfg.Paths.LogFile, r.clock)
	r.scheduler = schedule.New(r.clock, logger)
	return r
}

// Bootstrap creates the log directory and the source and target trees when
// they are missing
func (r *Runner) Bootstrap() error {
	created, err := r.journal.EnsureDir()
	if err != nil {
		return err
	}
	if created {
		r.logger.Info("log folder created", "path", r.journal.Dir())
	}

	for _, dir := range []struct {
		name string
		path string
	}{
		{"source", r.cfg.Paths.Source},
		{"target", r.cfg.Paths.Target},
	} {
		exists, err := afero.DirExists(r.fs, dir.path)
		if err != nil {
			return fmt.Errorf("failed to stat %s folder: %w", dir.name, err)
		}
		if exists {
			continue
		}
		if err := r.fs.MkdirAll(dir.path, 0755); err != nil {
			return fmt.Errorf("failed to create %s folder: %w", dir.name, err)
		}
		r.logger.Info(dir.name+" folder created", "path", dir.path)
	}
	return nil
}

// RunOnce performs a single pass. The end-of-pass journal line is written
// only when the pass returns no error.
func (r *Runner) RunOnce(ctx context.Context) (*mirror.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := r.logger.With("pass_id", uuid.NewString())
	logger.Info("starting sync pass", "source", r.cfg.Paths.Source, "target", r.cfg.Paths.Target, "dry_run", r.dryRun)

	reconciler := mirror.NewReconciler(r.fs, r.journal, logger,
		mirror.WithPolicy(mirror.Policy(r.cfg.Sync.OnError)),
		mirror.WithClock(r.clock),
		mirror.WithDryRun(r.dryRun),
	)

	start := r.clock.Now()
	report, err := reconciler.Reconcile(r.cfg.Paths.Source, r.cfg.Paths.Target)
	if err != nil {
		return report, fmt.Errorf("sync pass failed: %w", err)
	}

	logger.Info("sync pass completed",
		"files_copied", report.Count(mirror.FileCopied),
		"files_removed", report.Count(mirror.FileRemoved),
		"folders_copied", report.Count(mirror.DirCopied),
		"folders_removed", report.Count(mirror.DirRemoved),
		"skipped", len(report.Skipped),
		"duration", r.clock.Since(start).Round(time.Millisecond))

	if len(report.Skipped) > 0 {
		logger.Warn("some entries were skipped and will be retried next pass", "error", report.Err())
	}

	if r.dryRun {
		return report, nil
	}

	if err := r.journal.RecordSynchronized(); err != nil {
		logger.Warn("failed to record pass completion", "error", err)
	}
	return report, nil
}

// Run mirrors every configured interval until ctx is cancelled. Every value
// received on triggers requests an immediate pass.
func (r *Runner) Run(ctx context.Context, triggers <-chan struct{}) error {
	interval := r.cfg.Interval()

	err := r.scheduler.Start(interval, func(tickCtx context.Context) error {
		_, err := r.RunOnce(tickCtx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer r.scheduler.Stop()

	r.logger.Info("mirror running",
		"source", r.cfg.Paths.Source,
		"target", r.cfg.Paths.Target,
		"log_file", r.cfg.Paths.LogFile,
		"interval", interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping mirror, waiting for running pass")
			return nil
		case _, ok := <-triggers:
			if !ok {
				triggers = nil
				continue
			}
			r.logger.Info("pass requested")
			r.scheduler.Trigger()
		}
	}
}

