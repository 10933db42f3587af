// Package restore copies a backup back into a save directory and checks
// that backups are readable.
package restore

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mcdonaldj/savebak/internal/adapters/osfs"
	"github.com/mcdonaldj/savebak/internal/archive"
	"github.com/mcdonaldj/savebak/internal/backupid"
	"github.com/mcdonaldj/savebak/internal/catalog"
	"github.com/mcdonaldj/savebak/internal/ports"
	"github.com/mcdonaldj/savebak/internal/snapshot"
)

// ErrTargetNotEmpty is returned when restoring over existing files without Force.
var ErrTargetNotEmpty = errors.New("restore target is not empty")

// Options configures a restore operation.
type Options struct {
	Name   string // backup name, with or without extension; empty for latest
	Target string // directory to restore into
	Force  bool   // move a non-empty target aside first
}

// Result describes a completed restore.
type Result struct {
	Entry catalog.Entry
	// MovedAside is where the previous target contents went, if anywhere.
	MovedAside string
}

// Service provides restore operations with injected dependencies.
type Service struct {
	fs          ports.FileSystem
	archiverFor func(name string) (ports.Archiver, error)
	clock       ports.Clock
	logger      *slog.Logger
}

// NewService creates a restore service. archiverFor picks the archiver for
// an archive backup from its file name.
func NewService(fs ports.FileSystem, archiverFor func(name string) (ports.Archiver, error), clock ports.Clock, logger *slog.Logger) *Service {
	return &Service{fs: fs, archiverFor: archiverFor, clock: clock, logger: logger}
}

// NewDefaultService creates a restore service with real production dependencies.
func NewDefaultService(logger *slog.Logger) *Service {
	return NewService(osfs.New(), archive.ForName, ports.SystemClock, logger)
}

func (s *Service) find(backupRoot, name string) (*catalog.Entry, error) {
	entries, err := catalog.Scan(s.fs, backupRoot)
	if err != nil {
		return nil, err
	}
	if name == "" {
		latest := catalog.Latest(entries)
		if latest == nil {
			return nil, errors.Wrapf(catalog.ErrNotFound, "no backups in %s", backupRoot)
		}
		return latest, nil
	}
	return catalog.Find(entries, name)
}

// Restore writes the selected backup into opts.Target. Archive backups are
// verified before anything in the target is touched.
func (s *Service) Restore(backupRoot string, opts Options) (Result, error) {
	if opts.Target == "" {
		return Result{}, errors.New("restore target is required")
	}

	entry, err := s.find(backupRoot, opts.Name)
	if err != nil {
		return Result{}, err
	}
	res := Result{Entry: *entry}

	var archiver ports.Archiver
	if entry.Kind == catalog.KindArchive {
		archiver, err = s.archiverFor(entry.Name)
		if err != nil {
			return res, err
		}
		if _, err := archiver.Verify(entry.Path); err != nil {
			return res, errors.Wrapf(err, "verification of %s failed", entry.Name)
		}
	}

	empty, err := s.isEmpty(opts.Target)
	if err != nil {
		return res, err
	}
	if !empty {
		if !opts.Force {
			return res, errors.Wrapf(ErrTargetNotEmpty, "%s (use --force to move it aside)", opts.Target)
		}
		stamp := strings.TrimPrefix(backupid.Format(s.clock.Now()), backupid.Prefix)
		res.MovedAside = opts.Target + ".pre-restore-" + stamp
		if err := s.fs.Rename(opts.Target, res.MovedAside); err != nil {
			return res, errors.Wrap(err, "moving current saves aside")
		}
		s.logger.Info("moved current saves aside", "path", res.MovedAside)
	}

	if archiver != nil {
		if err := s.fs.MkdirAll(opts.Target, 0o755); err != nil {
			return res, errors.Wrapf(err, "creating %s", opts.Target)
		}
		if err := archiver.Extract(entry.Path, opts.Target); err != nil {
			return res, errors.Wrap(err, "extracting backup")
		}
	} else if _, err := snapshot.CopyTree(s.fs, entry.Path, opts.Target); err != nil {
		return res, errors.Wrap(err, "copying backup")
	}

	s.logger.Info("backup restored", "name", entry.Name, "target", opts.Target)
	return res, nil
}

func (s *Service) isEmpty(dir string) (bool, error) {
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true, nil
		}
		return false, errors.Wrapf(err, "reading %s", dir)
	}
	return len(entries) == 0, nil
}

// VerifyResult describes a verified backup.
type VerifyResult struct {
	Entry catalog.Entry
	Files int
}

// Verify reads every file of a backup end to end. Archive readers check
// each entry's CRC. An empty name selects the latest backup.
func (s *Service) Verify(backupRoot, name string) (VerifyResult, error) {
	entry, err := s.find(backupRoot, name)
	if err != nil {
		return VerifyResult{}, err
	}
	res := VerifyResult{Entry: *entry}

	if entry.Kind == catalog.KindArchive {
		archiver, err := s.archiverFor(entry.Name)
		if err != nil {
			return res, err
		}
		res.Files, err = archiver.Verify(entry.Path)
		return res, errors.Wrapf(err, "verifying %s", entry.Name)
	}

	err = s.fs.Walk(entry.Path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := s.fs.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(io.Discard, f); err != nil {
			return errors.Wrapf(err, "reading %s", path)
		}
		res.Files++
		return nil
	})
	return res, errors.Wrapf(err, "verifying %s", entry.Name)
}
