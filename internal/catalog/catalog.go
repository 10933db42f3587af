// Package catalog enumerates the backups stored under a backup root.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mcdonaldj/savebak/internal/backupid"
	"github.com/mcdonaldj/savebak/internal/ports"
)

// ErrNotFound indicates no backup with the requested name exists.
var ErrNotFound = errors.New("backup not found")

// Kind tells a directory backup from an archive backup.
type Kind int

const (
	KindDirectory Kind = iota
	KindArchive
)

func (k Kind) String() string {
	if k == KindArchive {
		return "archive"
	}
	return "directory"
}

// Entry is one backup found under a backup root.
type Entry struct {
	Name       string
	Kind       Kind
	Path       string
	CapturedAt time.Time
}

// Scan lists the entries directly under root whose names parse as backup
// names, newest first. Everything else in root is ignored.
func Scan(fsys ports.FileSystem, root string) ([]Entry, error) {
	dirEntries, err := fsys.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "reading backup root %s", root)
	}

	var entries []Entry
	for _, de := range dirEntries {
		captured, ok := backupid.Parse(de.Name())
		if !ok {
			continue
		}
		kind := KindArchive
		if de.IsDir() {
			kind = KindDirectory
		}
		entries = append(entries, Entry{
			Name:       de.Name(),
			Kind:       kind,
			Path:       filepath.Join(root, de.Name()),
			CapturedAt: captured,
		})
	}

	SortNewestFirst(entries)
	return entries, nil
}

// SortNewestFirst orders entries by name descending. The name format is
// fixed width, so this is capture order without re-parsing.
func SortNewestFirst(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(b.Name, a.Name)
	})
}

// Latest returns the newest entry, or nil if there are none.
// entries must be sorted newest first.
func Latest(entries []Entry) *Entry {
	if len(entries) == 0 {
		return nil
	}
	return &entries[0]
}

// Find returns the entry with the given name. The name may omit the archive
// extension.
func Find(entries []Entry, name string) (*Entry, error) {
	for i := range entries {
		base, _ := backupid.Split(entries[i].Name)
		if entries[i].Name == name || base == name {
			return &entries[i], nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "%s", name)
}

// Size returns the bytes the entry occupies on disk.
func (e Entry) Size(fsys ports.FileSystem) (int64, error) {
	if e.Kind == KindArchive {
		info, err := fsys.Stat(e.Path)
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	}

	var total int64
	err := fsys.Walk(e.Path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}

// FormatSize formats bytes as human-readable
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
