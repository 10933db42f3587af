// Package backup runs one backup cycle each time the game finishes saving.
package backup

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/mcdonaldj/savebak/internal/catalog"
	"github.com/mcdonaldj/savebak/internal/config"
	"github.com/mcdonaldj/savebak/internal/ports"
	"github.com/mcdonaldj/savebak/internal/retention"
	"github.com/mcdonaldj/savebak/internal/snapshot"
)

// Snapshotter writes one backup of the save directory.
type Snapshotter interface {
	Produce(sourceDir, backupRoot string, mode snapshot.Mode) (catalog.Entry, error)
}

// Pruner deletes outdated backups.
type Pruner interface {
	Apply(root string, p retention.Policy) (retention.Result, error)
}

// Run records one invocation of OnSaveCompleted.
type Run struct {
	ID       string
	Started  time.Time
	Duration time.Duration
	Skipped  bool

	Entry       catalog.Entry
	SnapshotErr error

	Retention    *retention.Result
	RetentionErr error

	OK bool
}

// Orchestrator ties the snapshot producer and the retention engine to the
// save-completed trigger.
type Orchestrator struct {
	snapshots Snapshotter
	pruner    Pruner
	clock     ports.Clock
	logger    *slog.Logger

	runMu sync.Mutex // one cycle at a time
	mu    sync.Mutex
	last  *Run
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock sets the clock used to time runs.
func WithClock(c ports.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// New creates an Orchestrator.
func New(snapshots Snapshotter, pruner Pruner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		snapshots: snapshots,
		pruner:    pruner,
		clock:     ports.SystemClock,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// OnSaveCompleted takes a snapshot and, when enabled, prunes outdated
// backups. It reports false only when the snapshot failed. Retention
// failures are logged and never change the result. Nothing escapes, not
// even a panic.
func (o *Orchestrator) OnSaveCompleted(cfg config.Backup) bool {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	run := &Run{ID: uuid.NewString(), Started: o.clock.Now(), OK: true}
	defer func() {
		run.Duration = o.clock.Now().Sub(run.Started)
		o.mu.Lock()
		o.last = run
		o.mu.Unlock()
	}()

	logger := o.logger.With("run_id", run.ID)

	if !cfg.Enabled {
		logger.Debug("backups disabled")
		run.Skipped = true
		return true
	}

	mode := snapshot.ModeFor(cfg.BackupAsArchive)
	logger.Info("backing up saves", "source", cfg.SourceDir, "mode", mode)
	run.SnapshotErr = guard(func() error {
		var err error
		run.Entry, err = o.snapshots.Produce(cfg.SourceDir, cfg.BackupDir, mode)
		return err
	})
	if run.SnapshotErr != nil {
		logger.Warn("backing up saves failed", "error", run.SnapshotErr)
		run.OK = false
	} else {
		logger.Info("backup written", "name", run.Entry.Name)
	}

	policy := retention.Policy{MaxCount: cfg.MaxCount, MaxAgeDays: cfg.MaxAgeDays}
	if cfg.AutoDelete && policy.Active() {
		logger.Info("deleting outdated backups", "policy", policy.String())
		run.RetentionErr = guard(func() error {
			res, err := o.pruner.Apply(cfg.BackupDir, policy)
			run.Retention = &res
			return err
		})
		switch {
		case run.RetentionErr != nil:
			logger.Warn("deleting outdated backups failed", "error", run.RetentionErr)
		default:
			logger.Info("outdated backups deleted",
				"deleted", len(run.Retention.Deleted),
				"failed", len(run.Retention.Failed),
				"kept", len(run.Retention.Kept))
		}
	}

	return run.OK
}

// AfterSave combines the host's own save result with a backup cycle. The
// cycle runs even when the save failed.
func (o *Orchestrator) AfterSave(saveOK bool, cfg config.Backup) bool {
	backupOK := o.OnSaveCompleted(cfg)
	return saveOK && backupOK
}

// LastRun returns a copy of the most recent run, or nil before the first.
func (o *Orchestrator) LastRun() *Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return nil
	}
	r := *o.last
	return &r
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("panic: %v", r)
		}
	}()
	return fn()
}
