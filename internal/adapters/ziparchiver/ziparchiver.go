// Package ziparchiver provides an archiver adapter using the archive/zip package.
package ziparchiver

import (
	"archive/zip"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mcdonaldj/savebak/internal/adapters/archiveutil"
	"github.com/mcdonaldj/savebak/internal/backupid"
	"github.com/mcdonaldj/savebak/internal/ports"
)

// ZipArchiver implements ports.Archiver using archive/zip.
type ZipArchiver struct{}

// New creates a new ZipArchiver adapter.
func New() *ZipArchiver {
	return &ZipArchiver{}
}

// Extension returns ".zip".
func (a *ZipArchiver) Extension() string {
	return backupid.ExtZip
}

// Create creates a zip archive of sourceDir's contents at destPath.
// Entries are stored relative to sourceDir, directories included so that
// empty ones survive extraction. Returns the number of files archived.
func (a *ZipArchiver) Create(destPath, sourceDir string) (int, error) {
	zipFile, err := os.Create(destPath)
	if err != nil {
		return 0, errors.Wrap(err, "creating zip file")
	}

	w := zip.NewWriter(zipFile)
	fileCount := 0

	walkErr := archiveutil.WalkSource(sourceDir, func(e archiveutil.SourceEntry) error {
		header, err := zip.FileInfoHeader(e.Info)
		if err != nil {
			return errors.Wrapf(err, "zip header for %s", e.Name)
		}

		if e.Info.IsDir() {
			header.Name = e.Name + "/"
			header.Method = zip.Store
			_, err := w.CreateHeader(header)
			return errors.Wrapf(err, "adding directory %s", e.Name)
		}

		header.Name = e.Name
		header.Method = zip.Deflate

		writer, err := w.CreateHeader(header)
		if err != nil {
			return errors.Wrapf(err, "adding %s", e.Name)
		}

		file, err := os.Open(e.Path)
		if err != nil {
			return errors.Wrapf(err, "opening %s", e.Name)
		}

		_, copyErr := io.Copy(writer, file)
		_ = file.Close() // Explicitly ignore close error - data already copied

		if copyErr != nil {
			return errors.Wrapf(copyErr, "archiving %s", e.Name)
		}

		fileCount++
		return nil
	})

	// Close zip writer first to flush data
	if closeErr := w.Close(); closeErr != nil {
		_ = zipFile.Close() // Best effort cleanup on error path
		return 0, errors.CombineErrors(walkErr, errors.Wrap(closeErr, "closing zip writer"))
	}

	// Then close the file
	if closeErr := zipFile.Close(); closeErr != nil {
		return 0, errors.CombineErrors(walkErr, errors.Wrap(closeErr, "closing zip file"))
	}

	if walkErr != nil {
		return 0, walkErr
	}
	return fileCount, nil
}

// Extract extracts a zip archive to destDir.
func (a *ZipArchiver) Extract(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	absDestDir, err := archiveutil.AbsDir(destDir)
	if err != nil {
		return err
	}

	for _, f := range r.File {
		// SECURITY: Block symlinks to prevent symlink attacks
		if f.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("symlinks not supported in backups: %s", f.Name)
		}

		fpath, err := archiveutil.Target(absDestDir, strings.TrimSuffix(f.Name, "/"))
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0o755); err != nil {
				return errors.Wrapf(err, "creating directory %s", fpath)
			}
			continue
		}

		if err := extractFile(f, fpath); err != nil {
			return errors.Wrapf(err, "extracting %s", f.Name)
		}
	}

	return nil
}

// extractFile extracts a single file from the zip.
func extractFile(f *zip.File, destPath string) error {
	// SECURITY: Limit decompression size to prevent zip bombs (G110)
	if f.UncompressedSize64 > archiveutil.MaxDecompressSize {
		return fmt.Errorf("file too large: %d bytes exceeds limit of %d bytes",
			f.UncompressedSize64, int64(archiveutil.MaxDecompressSize))
	}

	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	return archiveutil.WriteFile(destPath, rc, int64(f.UncompressedSize64), f.Mode())
}

// List returns a map of file paths to their info from the archive.
func (a *ZipArchiver) List(zipPath string) (map[string]ports.FileInfo, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	files := make(map[string]ports.FileInfo)
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}

		// Safe conversion: check for overflow before uint64 -> int64
		size := int64(0)
		if f.UncompressedSize64 <= math.MaxInt64 {
			size = int64(f.UncompressedSize64)
		}
		files[f.Name] = ports.FileInfo{
			Size:  size,
			CRC32: f.CRC32,
		}
	}

	return files, nil
}

// Verify decompresses every file in the archive. archive/zip checks each
// entry's CRC32 when its reader hits EOF, so a clean read means an intact file.
func (a *ZipArchiver) Verify(zipPath string) (int, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return 0, err
	}
	defer func() { _ = r.Close() }()

	count := 0
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return count, errors.Wrapf(err, "opening %s", f.Name)
		}
		_, err = io.Copy(io.Discard, rc)
		_ = rc.Close()
		if err != nil {
			return count, errors.Wrapf(err, "reading %s", f.Name)
		}
		count++
	}
	return count, nil
}

// Compile-time check that ZipArchiver implements ports.Archiver.
var _ ports.Archiver = (*ZipArchiver)(nil)
