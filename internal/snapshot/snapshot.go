// Package snapshot copies a save directory into a new timestamped backup.
package snapshot

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mcdonaldj/savebak/internal/adapters/archiveutil"
	"github.com/mcdonaldj/savebak/internal/adapters/osfs"
	"github.com/mcdonaldj/savebak/internal/adapters/ziparchiver"
	"github.com/mcdonaldj/savebak/internal/backupid"
	"github.com/mcdonaldj/savebak/internal/catalog"
	"github.com/mcdonaldj/savebak/internal/ports"
)

var (
	// ErrSnapshotFailed marks every error returned by Produce.
	ErrSnapshotFailed = errors.New("snapshot failed")

	// ErrSourceMissing means the save directory does not exist or is not a directory.
	ErrSourceMissing = errors.New("source directory missing")
)

// Mode selects the backup layout.
type Mode int

const (
	// ModeDirectory mirrors the source into a new directory.
	ModeDirectory Mode = iota
	// ModeArchive writes the source into a single archive file.
	ModeArchive
)

// ModeFor maps the backup-as-archive setting to a Mode.
func ModeFor(asArchive bool) Mode {
	if asArchive {
		return ModeArchive
	}
	return ModeDirectory
}

func (m Mode) String() string {
	if m == ModeArchive {
		return "archive"
	}
	return "directory"
}

// Producer writes snapshots.
type Producer struct {
	fs       ports.FileSystem
	archiver ports.Archiver
	clock    ports.Clock
	logger   *slog.Logger
}

// Option configures a Producer.
type Option func(*Producer)

// WithFileSystem sets the filesystem used for directory snapshots.
func WithFileSystem(fs ports.FileSystem) Option {
	return func(p *Producer) {
		p.fs = fs
	}
}

// WithArchiver sets the archiver used in ModeArchive.
func WithArchiver(a ports.Archiver) Option {
	return func(p *Producer) {
		p.archiver = a
	}
}

// WithClock sets the clock that names new snapshots.
func WithClock(c ports.Clock) Option {
	return func(p *Producer) {
		p.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Producer) {
		p.logger = l
	}
}

// NewProducer creates a Producer. It defaults to the OS filesystem, zip
// archives and the system clock.
func NewProducer(opts ...Option) *Producer {
	p := &Producer{
		fs:       osfs.New(),
		archiver: ziparchiver.New(),
		clock:    ports.SystemClock,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Produce snapshots sourceDir into a new entry under backupRoot. A failed
// snapshot may leave a partial entry behind.
func (p *Producer) Produce(sourceDir, backupRoot string, mode Mode) (catalog.Entry, error) {
	entry, err := p.produce(sourceDir, backupRoot, mode)
	if err != nil {
		return entry, errors.Mark(err, ErrSnapshotFailed)
	}
	return entry, nil
}

func (p *Producer) produce(sourceDir, backupRoot string, mode Mode) (catalog.Entry, error) {
	info, err := p.fs.Stat(sourceDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return catalog.Entry{}, errors.Wrapf(ErrSourceMissing, "%s", sourceDir)
		}
		return catalog.Entry{}, errors.Wrapf(err, "stat source %s", sourceDir)
	}
	if !info.IsDir() {
		return catalog.Entry{}, errors.Wrapf(ErrSourceMissing, "%s is not a directory", sourceDir)
	}
	resolved, err := p.fs.EvalSymlinks(sourceDir)
	if err != nil {
		return catalog.Entry{}, errors.Wrapf(err, "resolving source %s", sourceDir)
	}
	for _, dir := range []string{sourceDir, resolved} {
		if err := checkOutside(dir, backupRoot); err != nil {
			return catalog.Entry{}, err
		}
	}
	sourceDir = resolved

	if err := p.fs.MkdirAll(backupRoot, 0o755); err != nil {
		return catalog.Entry{}, errors.Wrapf(err, "creating backup root %s", backupRoot)
	}

	now := p.clock.Now()
	entry := catalog.Entry{CapturedAt: now.Truncate(time.Millisecond)}

	switch mode {
	case ModeArchive:
		entry.Kind = catalog.KindArchive
		entry.Name = backupid.FormatArchive(now, p.archiver.Extension())
		entry.Path = filepath.Join(backupRoot, entry.Name)

		count, err := p.archiver.Create(entry.Path, sourceDir)
		if err != nil {
			return entry, errors.Wrapf(err, "writing archive %s", entry.Name)
		}
		p.logger.Debug("archive written", "name", entry.Name, "files", count)

	default:
		entry.Kind = catalog.KindDirectory
		entry.Name = backupid.Format(now)
		entry.Path = filepath.Join(backupRoot, entry.Name)

		count, err := CopyTree(p.fs, sourceDir, entry.Path)
		if err != nil {
			return entry, errors.Wrapf(err, "copying into %s", entry.Name)
		}
		p.logger.Debug("directory copied", "name", entry.Name, "files", count)
	}

	return entry, nil
}

// checkOutside rejects a backup root that lies inside the source, which
// would make every snapshot contain all earlier ones.
func checkOutside(sourceDir, backupRoot string) error {
	absSource, err := archiveutil.AbsDir(sourceDir)
	if err != nil {
		return err
	}
	if archiveutil.IsWithinDir(absSource, backupRoot) {
		return errors.Newf("backup root %s is inside source %s", backupRoot, sourceDir)
	}
	return nil
}

// CopyTree mirrors every directory and regular file under src into dst,
// creating dst if needed. Existing files are overwritten. Symlinks are
// followed and copied as the files and directories they point to. It returns
// the number of files copied.
func CopyTree(fsys ports.FileSystem, src, dst string) (int, error) {
	if err := fsys.MkdirAll(dst, 0o755); err != nil {
		return 0, errors.Wrapf(err, "creating %s", dst)
	}

	count := 0
	err := archiveutil.WalkTree(fsys, src, func(e archiveutil.SourceEntry) error {
		target := filepath.Join(dst, filepath.FromSlash(e.Name))
		if e.Info.IsDir() {
			return errors.Wrapf(fsys.MkdirAll(target, e.Info.Mode().Perm()|0o700), "creating %s", e.Name)
		}
		if err := copyFile(fsys, e.Path, target, e.Info.Mode().Perm()); err != nil {
			return errors.Wrapf(err, "copying %s", e.Name)
		}
		count++
		return nil
	})
	return count, err
}

func copyFile(fsys ports.FileSystem, src, dst string, perm os.FileMode) error {
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fsys.Create(dst, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
