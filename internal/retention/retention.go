// Package retention decides which backups are outdated and deletes them.
package retention

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mcdonaldj/savebak/internal/adapters/osfs"
	"github.com/mcdonaldj/savebak/internal/catalog"
	"github.com/mcdonaldj/savebak/internal/ports"
)

// Disabled turns a limit off.
const Disabled = -1

// Policy limits how many backups are kept and for how long. A negative
// value disables that limit.
type Policy struct {
	MaxCount   int
	MaxAgeDays int
}

// Active reports whether at least one limit is enabled.
func (p Policy) Active() bool {
	return p.countActive() || p.ageActive()
}

func (p Policy) countActive() bool { return p.MaxCount >= 0 }
func (p Policy) ageActive() bool   { return p.MaxAgeDays >= 0 }

func (p Policy) String() string {
	limit := func(v int, unit string) string {
		if v < 0 {
			return "unlimited"
		}
		return fmt.Sprintf("%d %s", v, unit)
	}
	return fmt.Sprintf("count %s, age %s", limit(p.MaxCount, "backups"), limit(p.MaxAgeDays, "days"))
}

// Plan splits a catalog into entries to keep and entries to delete.
type Plan struct {
	Keep   []catalog.Entry
	Delete []catalog.Entry
}

// NewPlan marks an entry for deletion when it sits past the first MaxCount
// entries (newest first) or was captured strictly before now minus
// MaxAgeDays. An entry exactly at the age cutoff is kept.
func NewPlan(entries []catalog.Entry, p Policy, now time.Time) Plan {
	sorted := slices.Clone(entries)
	catalog.SortNewestFirst(sorted)

	cutoff := now.AddDate(0, 0, -p.MaxAgeDays)

	var plan Plan
	for i, e := range sorted {
		overCount := p.countActive() && i >= p.MaxCount
		tooOld := p.ageActive() && e.CapturedAt.Before(cutoff)
		if overCount || tooOld {
			plan.Delete = append(plan.Delete, e)
		} else {
			plan.Keep = append(plan.Keep, e)
		}
	}
	return plan
}

// Result reports what Apply did.
type Result struct {
	Deleted []string
	// Missing lists entries that were already gone when deleted.
	Missing []string
	Failed  []Failure
	Kept    []string
	DryRun  bool
}

// Failure is a deletion that did not succeed.
type Failure struct {
	Name string
	Err  error
}

// Engine applies a Policy to a backup root.
type Engine struct {
	fs     ports.FileSystem
	clock  ports.Clock
	logger *slog.Logger
	dryRun bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithFileSystem sets the filesystem.
func WithFileSystem(fs ports.FileSystem) Option {
	return func(e *Engine) {
		e.fs = fs
	}
}

// WithClock sets the clock used for the age cutoff.
func WithClock(c ports.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithDryRun makes Apply report the plan without deleting anything.
func WithDryRun(dryRun bool) Option {
	return func(e *Engine) {
		e.dryRun = dryRun
	}
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		fs:     osfs.New(),
		clock:  ports.SystemClock,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply deletes the outdated backups under root. Only a failure to list root
// is returned; individual deletions that fail are logged, recorded in the
// Result, and skipped.
func (e *Engine) Apply(root string, p Policy) (Result, error) {
	res := Result{DryRun: e.dryRun}

	entries, err := catalog.Scan(e.fs, root)
	if err != nil {
		return res, errors.Wrap(err, "listing backups")
	}

	plan := NewPlan(entries, p, e.clock.Now())
	for _, k := range plan.Keep {
		res.Kept = append(res.Kept, k.Name)
	}

	for _, d := range plan.Delete {
		if e.dryRun {
			res.Deleted = append(res.Deleted, d.Name)
			continue
		}

		err := e.remove(d)
		switch {
		case err == nil:
			e.logger.Debug("deleted backup", "name", d.Name)
			res.Deleted = append(res.Deleted, d.Name)
		case errors.Is(err, os.ErrNotExist):
			res.Missing = append(res.Missing, d.Name)
		default:
			e.logger.Warn("failed to delete backup", "name", d.Name, "error", err)
			res.Failed = append(res.Failed, Failure{Name: d.Name, Err: err})
		}
	}
	return res, nil
}

func (e *Engine) remove(entry catalog.Entry) error {
	if entry.Kind == catalog.KindDirectory {
		return e.fs.RemoveAll(entry.Path)
	}
	return e.fs.Remove(entry.Path)
}
