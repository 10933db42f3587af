package ports

// Archiver abstracts single-file archive formats for testability.
// Production code uses the zip and tar adapters; tests use MockArchiver.
type Archiver interface {
	// Extension is the file name suffix for this format, e.g. ".zip".
	Extension() string

	// Create writes an archive of sourceDir's contents to destPath.
	// Entry names are relative to sourceDir. Any read or write failure
	// aborts the archive and is returned. Returns the number of files archived.
	Create(destPath, sourceDir string) (fileCount int, err error)

	// Extract extracts an archive into destDir.
	Extract(archivePath, destDir string) error

	// List returns a map of file paths to their info from the archive.
	List(archivePath string) (map[string]FileInfo, error)

	// Verify reads every entry of the archive end to end and returns the
	// number of files checked.
	Verify(archivePath string) (fileCount int, err error)
}

// FileInfo contains metadata about a file in an archive.
type FileInfo struct {
	Size  int64
	CRC32 uint32
}
