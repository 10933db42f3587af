// Package watch fires the save-completed trigger when files in the save
// directory stop changing.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	"github.com/mcdonaldj/savebak/internal/config"
)

// DefaultDebounce is used when no debounce window is configured.
const DefaultDebounce = 2 * time.Second

// Trigger is the save-completed hook.
type Trigger interface {
	OnSaveCompleted(cfg config.Backup) bool
}

// Watcher watches a save directory tree.
type Watcher struct {
	cfg      config.Backup
	debounce time.Duration
	trigger  Trigger
	logger   *slog.Logger
	notify   func(ok bool)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long the tree must be quiet before the trigger fires.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = l
	}
}

// WithNotify registers a callback that receives each trigger result.
func WithNotify(fn func(ok bool)) Option {
	return func(w *Watcher) {
		w.notify = fn
	}
}

// New creates a Watcher for cfg.SourceDir.
func New(cfg config.Backup, trigger Trigger, opts ...Option) *Watcher {
	w := &Watcher{
		cfg:      cfg,
		debounce: DefaultDebounce,
		trigger:  trigger,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled. The trigger runs on the watch loop, so
// invocations never overlap.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "creating watcher")
	}
	defer fw.Close()

	if err := w.addTree(fw, w.cfg.SourceDir); err != nil {
		return err
	}
	w.logger.Info("watching saves", "source", w.cfg.SourceDir, "debounce", w.debounce)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("watch events channel closed")
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("save change", "name", ev.Name, "op", ev.Op.String())

			if ev.Has(fsnotify.Create) {
				w.watchCreated(fw, ev.Name)
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			ok := w.trigger.OnSaveCompleted(w.cfg)
			if w.notify != nil {
				w.notify(ok)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("watch errors channel closed")
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// relevant reports whether ev is a content change inside the save tree.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return !within(w.cfg.BackupDir, ev.Name)
}

// watchCreated adds watches for a newly created path. New subdirectories
// need their own watch; a path that is already gone again is not an error.
func (w *Watcher) watchCreated(fw *fsnotify.Watcher, path string) {
	err := w.addTree(fw, path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		w.logger.Debug("created path vanished before it was watched", "name", path)
	default:
		w.logger.Warn("could not watch new directory", "name", path, "error", err)
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return errors.Wrapf(err, "watching %s", root)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if within(w.cfg.BackupDir, path) {
			return filepath.SkipDir
		}
		return errors.Wrapf(fw.Add(path), "watching %s", path)
	})
}

func within(base, path string) bool {
	if base == "" {
		return false
	}
	base, path = filepath.Clean(base), filepath.Clean(path)
	return path == base || strings.HasPrefix(path, base+string(filepath.Separator))
}
