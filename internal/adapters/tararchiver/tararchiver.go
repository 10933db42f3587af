// Package tararchiver provides compressed tar archivers: gzip and zstd via
// klauspost/compress, and lz4 via pierrec/lz4.
package tararchiver

import (
	"archive/tar"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/mcdonaldj/savebak/internal/adapters/archiveutil"
	"github.com/mcdonaldj/savebak/internal/backupid"
	"github.com/mcdonaldj/savebak/internal/ports"
)

// Codec wraps a tar stream in a compression format.
type Codec struct {
	Name      string
	Extension string
	NewWriter func(io.Writer) (io.WriteCloser, error)
	NewReader func(io.Reader) (io.ReadCloser, error)
}

// Gzip compresses with klauspost's drop-in gzip implementation.
var Gzip = Codec{
	Name:      "tar.gz",
	Extension: backupid.ExtTarGz,
	NewWriter: func(w io.Writer) (io.WriteCloser, error) {
		return gzip.NewWriter(w), nil
	},
	NewReader: func(r io.Reader) (io.ReadCloser, error) {
		return gzip.NewReader(r)
	},
}

// Zstd compresses with zstandard at the default level.
var Zstd = Codec{
	Name:      "tar.zst",
	Extension: backupid.ExtTarZst,
	NewWriter: func(w io.Writer) (io.WriteCloser, error) {
		return zstd.NewWriter(w)
	},
	NewReader: func(r io.Reader) (io.ReadCloser, error) {
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	},
}

// LZ4 trades ratio for speed.
var LZ4 = Codec{
	Name:      "tar.lz4",
	Extension: backupid.ExtTarLz4,
	NewWriter: func(w io.Writer) (io.WriteCloser, error) {
		return lz4.NewWriter(w), nil
	},
	NewReader: func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(lz4.NewReader(r)), nil
	},
}

// TarArchiver implements ports.Archiver for a compressed tar format.
type TarArchiver struct {
	codec Codec
}

// New creates a TarArchiver for the given codec.
func New(codec Codec) *TarArchiver {
	return &TarArchiver{codec: codec}
}

// Extension returns the codec's file suffix.
func (a *TarArchiver) Extension() string {
	return a.codec.Extension
}

// Create writes a compressed tar of sourceDir's contents to destPath.
func (a *TarArchiver) Create(destPath, sourceDir string) (int, error) {
	out, err := os.Create(destPath)
	if err != nil {
		return 0, errors.Wrap(err, "creating archive file")
	}

	cw, err := a.codec.NewWriter(out)
	if err != nil {
		_ = out.Close()
		return 0, errors.Wrapf(err, "creating %s writer", a.codec.Name)
	}
	tw := tar.NewWriter(cw)

	fileCount := 0
	walkErr := archiveutil.WalkSource(sourceDir, func(e archiveutil.SourceEntry) error {
		hdr, err := tar.FileInfoHeader(e.Info, "")
		if err != nil {
			return errors.Wrapf(err, "tar header for %s", e.Name)
		}
		hdr.Name = e.Name
		if e.Info.IsDir() {
			hdr.Name += "/"
		}
		// Strip host-specific ownership so archives are reproducible.
		hdr.Uid, hdr.Gid, hdr.Uname, hdr.Gname = 0, 0, "", ""

		if err := tw.WriteHeader(hdr); err != nil {
			return errors.Wrapf(err, "writing header for %s", e.Name)
		}
		if e.Info.IsDir() {
			return nil
		}

		file, err := os.Open(e.Path)
		if err != nil {
			return errors.Wrapf(err, "opening %s", e.Name)
		}
		// A file that shrinks mid-copy makes tar.Writer fail on the next
		// header; one that grows is cut at the header size.
		_, copyErr := io.CopyN(tw, file, hdr.Size)
		_ = file.Close()
		if copyErr != nil {
			return errors.Wrapf(copyErr, "archiving %s", e.Name)
		}

		fileCount++
		return nil
	})

	// Close innermost first: tar footer, then compressor, then file.
	closeErr := errors.CombineErrors(
		errors.Wrap(tw.Close(), "closing tar writer"),
		errors.Wrapf(cw.Close(), "closing %s writer", a.codec.Name),
	)
	closeErr = errors.CombineErrors(closeErr, errors.Wrap(out.Close(), "closing archive file"))

	if walkErr != nil {
		return 0, walkErr
	}
	if closeErr != nil {
		return 0, closeErr
	}
	return fileCount, nil
}

// open returns a tar reader over archivePath and a function closing every layer.
func (a *TarArchiver) open(archivePath string) (*tar.Reader, func(), error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, nil, err
	}
	cr, err := a.codec.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, errors.Wrapf(err, "opening %s stream", a.codec.Name)
	}
	closeAll := func() {
		_ = cr.Close()
		_ = f.Close()
	}
	return tar.NewReader(cr), closeAll, nil
}

// Extract extracts the archive into destDir.
func (a *TarArchiver) Extract(archivePath, destDir string) error {
	tr, closeAll, err := a.open(archivePath)
	if err != nil {
		return err
	}
	defer closeAll()

	absDestDir, err := archiveutil.AbsDir(destDir)
	if err != nil {
		return err
	}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading tar entry")
		}

		fpath, err := archiveutil.Target(absDestDir, strings.TrimSuffix(hdr.Name, "/"))
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(fpath, 0o755); err != nil {
				return errors.Wrapf(err, "creating directory %s", fpath)
			}
		case tar.TypeReg:
			if err := archiveutil.WriteFile(fpath, tr, hdr.Size, hdr.FileInfo().Mode()); err != nil {
				return errors.Wrapf(err, "extracting %s", hdr.Name)
			}
		default:
			// SECURITY: links and devices are never produced by Create
			return fmt.Errorf("unsupported entry type %q in backup: %s", hdr.Typeflag, hdr.Name)
		}
	}
}

// List returns a map of file paths to their info from the archive. Tar has
// no stored checksum, so CRC32 is computed while reading.
func (a *TarArchiver) List(archivePath string) (map[string]ports.FileInfo, error) {
	files := make(map[string]ports.FileInfo)
	err := a.each(archivePath, func(hdr *tar.Header, r io.Reader) error {
		h := crc32.NewIEEE()
		if _, err := io.Copy(h, r); err != nil {
			return err
		}
		files[hdr.Name] = ports.FileInfo{Size: hdr.Size, CRC32: h.Sum32()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Verify decompresses the whole stream. Corruption surfaces as a codec
// checksum error or a short read.
func (a *TarArchiver) Verify(archivePath string) (int, error) {
	count := 0
	err := a.each(archivePath, func(hdr *tar.Header, r io.Reader) error {
		n, err := io.Copy(io.Discard, r)
		if err != nil {
			return err
		}
		if n != hdr.Size {
			return fmt.Errorf("short entry: read %d of %d bytes", n, hdr.Size)
		}
		count++
		return nil
	})
	return count, err
}

// each calls fn for every regular file in the archive.
func (a *TarArchiver) each(archivePath string, fn func(*tar.Header, io.Reader) error) error {
	tr, closeAll, err := a.open(archivePath)
	if err != nil {
		return err
	}
	defer closeAll()

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading tar entry")
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := fn(hdr, tr); err != nil {
			return errors.Wrapf(err, "reading %s", hdr.Name)
		}
	}
}

var _ ports.Archiver = (*TarArchiver)(nil)
