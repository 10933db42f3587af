// Package archiveutil holds the walking and extraction guards shared by the
// archive adapters.
package archiveutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mcdonaldj/savebak/internal/adapters/osfs"
	"github.com/mcdonaldj/savebak/internal/ports"
)

// MaxDecompressSize is the maximum allowed uncompressed file size (10GB).
// This prevents decompression bomb attacks (G110).
const MaxDecompressSize = 10 * 1024 * 1024 * 1024 // 10GB

// SourceEntry is one item found under an archive source directory.
type SourceEntry struct {
	Path string      // path on disk, possibly through a symlink
	Name string      // slash-separated path relative to the source root
	Info os.FileInfo // info of the file or directory itself, links followed
}

// WalkSource walks sourceDir on the local disk. See WalkTree.
func WalkSource(sourceDir string, fn func(SourceEntry) error) error {
	return WalkTree(osfs.New(), sourceDir, fn)
}

// WalkTree walks root and calls fn for every directory and regular file
// below it, parents before children. Symbolic links are followed, the root
// included, and entries reached through a link keep their name under root.
// A dangling link, a link to a special file and a link cycle abort the walk.
// Special files that are not links are skipped. Any walk error aborts the
// walk and is returned.
func WalkTree(fsys ports.FileSystem, root string, fn func(SourceEntry) error) error {
	resolved, err := fsys.EvalSymlinks(root)
	if err != nil {
		return errors.Wrapf(err, "resolving source %s", root)
	}
	resolved, err = AbsDir(resolved)
	if err != nil {
		return err
	}
	info, err := fsys.Stat(resolved)
	if err != nil {
		return errors.Wrap(err, "stat source")
	}
	if !info.IsDir() {
		return errors.Newf("source is not a directory: %s", root)
	}
	return walkTree(fsys, resolved, "", []string{resolved}, fn)
}

// walkTree walks dir, naming entries under prefix. chain holds the resolved
// directories entered so far through links, starting with the root.
func walkTree(fsys ports.FileSystem, dir, prefix string, chain []string, fn func(SourceEntry) error) error {
	return fsys.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return errors.Wrapf(err, "walking %s", path)
		}
		if path == dir {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return errors.Wrapf(err, "relative path for %s", path)
		}
		name := filepath.ToSlash(filepath.Join(prefix, rel))

		if info.Mode()&os.ModeSymlink == 0 {
			if !info.IsDir() && !info.Mode().IsRegular() {
				return nil
			}
			return fn(SourceEntry{Path: path, Name: name, Info: info})
		}

		target, err := fsys.Stat(path)
		if err != nil {
			return errors.Wrapf(err, "following link %s", name)
		}
		switch {
		case target.Mode().IsRegular():
			return fn(SourceEntry{Path: path, Name: name, Info: target})
		case target.IsDir():
			resolved, err := fsys.EvalSymlinks(path)
			if err != nil {
				return errors.Wrapf(err, "following link %s", name)
			}
			for _, seen := range chain {
				if IsWithinDir(resolved, seen) {
					return errors.Newf("link cycle: %s points back to %s", name, resolved)
				}
			}
			if err := fn(SourceEntry{Path: path, Name: name, Info: target}); err != nil {
				return err
			}
			return walkTree(fsys, resolved, name, append(slices.Clone(chain), resolved), fn)
		default:
			return errors.Newf("%s links to a special file", name)
		}
	})
}

// Target resolves an archive entry name to a path under destDir, rejecting
// absolute names and names that escape destDir (ZipSlip).
func Target(absDestDir, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("invalid file path (path traversal detected): %s", name)
	}
	fpath := filepath.Join(absDestDir, filepath.FromSlash(name))
	if !IsWithinDir(absDestDir, fpath) {
		return "", fmt.Errorf("invalid file path (path traversal detected): %s", name)
	}
	return fpath, nil
}

// IsWithinDir checks if the target path is within the base directory.
func IsWithinDir(absBaseDir, targetPath string) bool {
	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return false
	}
	absTarget = filepath.Clean(absTarget)

	prefix := strings.TrimSuffix(absBaseDir, string(filepath.Separator)) + string(filepath.Separator)
	return strings.HasPrefix(absTarget, prefix) || absTarget == absBaseDir
}

// AbsDir returns the cleaned absolute form of dir.
func AbsDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrap(err, "resolving destination path")
	}
	return filepath.Clean(abs), nil
}

// WriteFile copies at most declaredSize bytes from r into a new file at
// destPath, failing if r holds more than declared.
func WriteFile(destPath string, r io.Reader, declaredSize int64, mode os.FileMode) error {
	if declaredSize > MaxDecompressSize {
		return fmt.Errorf("file too large: %d bytes exceeds limit of %d bytes", declaredSize, int64(MaxDecompressSize))
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return errors.Wrapf(err, "creating parent directory for %s", destPath)
	}

	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm()|0o200)
	if err != nil {
		return err
	}

	// One extra byte detects entries larger than their header claims.
	written, err := io.Copy(out, io.LimitReader(r, declaredSize+1))
	if err != nil {
		_ = out.Close()
		return err
	}
	if written > declaredSize {
		_ = out.Close()
		return fmt.Errorf("decompressed size exceeds declared size")
	}
	return out.Close()
}
