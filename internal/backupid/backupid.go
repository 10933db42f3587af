// Package backupid formats and parses backup names.
//
// A backup name encodes its capture instant with millisecond precision:
//
//	backup_2024-06-01_13-45-07-123
//	backup_2024-06-01_13-45-07-123.zip
//
// Every field is fixed width, so names sort lexicographically in capture order.
// Parse is a filter, not a validator: anything that does not match is simply
// reported as "not a backup".
package backupid

import (
	"strings"
	"time"
)

// Prefix starts every backup name.
const Prefix = "backup_"

// layout is the Go reference layout for the timestamp part. The fractional
// separator is rewritten to '-' by Format and back to '.' by Parse.
const layout = "2006-01-02_15-04-05.000"

// Archive extensions produced by the archivers, longest first so that
// ".tar.gz" wins over a shorter suffix.
const (
	ExtZip    = ".zip"
	ExtTarGz  = ".tar.gz"
	ExtTarZst = ".tar.zst"
	ExtTarLz4 = ".tar.lz4"
)

// Extensions lists every archive extension Parse knows how to strip.
var Extensions = []string{ExtTarZst, ExtTarLz4, ExtTarGz, ExtZip}

// canonical is the length of "backup_YYYY-MM-DD_HH-MM-SS-mmm".
const canonical = len(Prefix) + len("2006-01-02_15-04-05-000")

// Format renders t as a backup directory name, in t's own zone. Names carry
// no offset, so in local time the repeated hour of a DST fall-back renders
// two instants alike and name order is not capture order for that hour.
func Format(t time.Time) string {
	ts := t.Format(layout)
	return Prefix + ts[:len(ts)-4] + "-" + ts[len(ts)-3:]
}

// FormatArchive renders t as a backup archive file name with the given extension.
func FormatArchive(t time.Time, ext string) string {
	return Format(t) + ext
}

// Split separates a known archive extension from name. The extension match is
// case-insensitive; the returned extension keeps the caller's casing.
func Split(name string) (base, ext string) {
	lower := strings.ToLower(name)
	for _, e := range Extensions {
		if strings.HasSuffix(lower, e) {
			return name[:len(name)-len(e)], name[len(name)-len(e):]
		}
	}
	return name, ""
}

// Parse reports the capture instant encoded in name, in the local time zone.
// The second return value is false when name is not a backup name.
func Parse(name string) (time.Time, bool) {
	return ParseInLocation(name, time.Local)
}

// ParseInLocation is like Parse but interprets the timestamp in loc.
func ParseInLocation(name string, loc *time.Location) (time.Time, bool) {
	base, _ := Split(name)
	if len(base) != canonical || !strings.HasPrefix(base, Prefix) {
		return time.Time{}, false
	}

	ts := []byte(base[len(Prefix):])
	// Fixed positions: YYYY-MM-DD_HH-MM-SS-mmm
	for i, c := range ts {
		switch i {
		case 4, 7, 13, 16, 19:
			if c != '-' {
				return time.Time{}, false
			}
		case 10:
			if c != '_' {
				return time.Time{}, false
			}
		default:
			if c < '0' || c > '9' {
				return time.Time{}, false
			}
		}
	}
	ts[19] = '.'

	t, err := time.ParseInLocation(layout, string(ts), loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsBackupName reports whether name parses as a backup name.
func IsBackupName(name string) bool {
	_, ok := Parse(name)
	return ok
}
