// Package archive maps archive format names and backup file names to the
// archiver adapter that handles them.
package archive

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mcdonaldj/savebak/internal/adapters/tararchiver"
	"github.com/mcdonaldj/savebak/internal/adapters/ziparchiver"
	"github.com/mcdonaldj/savebak/internal/backupid"
	"github.com/mcdonaldj/savebak/internal/ports"
)

// Format names accepted in configuration.
const (
	FormatZip    = "zip"
	FormatTarGz  = "tar.gz"
	FormatTarZst = "tar.zst"
	FormatTarLz4 = "tar.lz4"
)

// DefaultFormat is used when no format is configured.
const DefaultFormat = FormatZip

// ErrUnknownFormat is returned for a format or extension no archiver handles.
var ErrUnknownFormat = errors.New("unknown archive format")

// Formats lists the supported format names.
func Formats() []string {
	return []string{FormatZip, FormatTarGz, FormatTarZst, FormatTarLz4}
}

// New returns the archiver for a format name. An empty name selects DefaultFormat.
func New(format string) (ports.Archiver, error) {
	switch strings.ToLower(format) {
	case "", FormatZip:
		return ziparchiver.New(), nil
	case FormatTarGz:
		return tararchiver.New(tararchiver.Gzip), nil
	case FormatTarZst:
		return tararchiver.New(tararchiver.Zstd), nil
	case FormatTarLz4:
		return tararchiver.New(tararchiver.LZ4), nil
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "%q (supported: %s)", format, strings.Join(Formats(), ", "))
	}
}

// ForName returns the archiver able to read a backup archive file name.
func ForName(name string) (ports.Archiver, error) {
	_, ext := backupid.Split(name)
	if ext == "" {
		return nil, errors.Wrapf(ErrUnknownFormat, "no archive extension on %s", name)
	}
	return New(strings.TrimPrefix(strings.ToLower(ext), "."))
}
