// Package mocks provides mock implementations for testing.
package mocks

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/mcdonaldj/savebak/internal/ports"
)

// MockFileSystem implements ports.FileSystem in memory.
type MockFileSystem struct {
	// Files maps paths to file contents
	Files map[string][]byte
	// Dirs maps paths to directory entries for ReadDir
	Dirs map[string][]os.DirEntry
	// Stats maps paths to FileInfo for Stat
	Stats map[string]os.FileInfo
	// Errors maps paths to errors (for simulating failures)
	Errors map[string]error
	// WalkEntries contains entries to return during Walk
	WalkEntries []WalkEntry
	// Links maps symlink paths to their resolved targets for EvalSymlinks
	Links map[string]string
	// Removed records every path passed to Remove or RemoveAll, in order
	Removed []string
}

// WalkEntry represents a file or directory entry for Walk testing.
type WalkEntry struct {
	Path string
	Info os.FileInfo
	Err  error
}

// NewMockFileSystem creates a new mock filesystem.
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		Files:  make(map[string][]byte),
		Dirs:   make(map[string][]os.DirEntry),
		Stats:  make(map[string]os.FileInfo),
		Errors: make(map[string]error),
		Links:  make(map[string]string),
	}
}

// AddEntry lists name under dir for ReadDir and records a matching Stat.
func (m *MockFileSystem) AddEntry(dir, name string, isDir bool) {
	m.Dirs[dir] = append(m.Dirs[dir], NewDirEntry(name, isDir))
	m.Stats[filepath.Join(dir, name)] = NewFileInfo(name, 0, isDir)
}

// ReadDir reads the named directory and returns directory entries.
func (m *MockFileSystem) ReadDir(name string) ([]os.DirEntry, error) {
	if err, ok := m.Errors[name]; ok {
		return nil, err
	}
	if entries, ok := m.Dirs[name]; ok {
		return slices.Clone(entries), nil
	}
	return nil, os.ErrNotExist
}

// Stat returns file info for the named file.
func (m *MockFileSystem) Stat(name string) (os.FileInfo, error) {
	if err, ok := m.Errors[name]; ok {
		return nil, err
	}
	if info, ok := m.Stats[name]; ok {
		return info, nil
	}
	if content, ok := m.Files[name]; ok {
		return NewFileInfo(filepath.Base(name), int64(len(content)), false), nil
	}
	for _, entry := range m.WalkEntries {
		if entry.Path == name && entry.Info != nil && entry.Info.Mode()&os.ModeSymlink == 0 {
			return entry.Info, nil
		}
	}
	return nil, os.ErrNotExist
}

// MkdirAll creates a directory along with any necessary parents.
func (m *MockFileSystem) MkdirAll(path string, perm os.FileMode) error {
	if err, ok := m.Errors[path]; ok {
		return err
	}
	m.Stats[path] = NewFileInfo(filepath.Base(path), 0, true)
	return nil
}

// Remove removes the named file or empty directory.
func (m *MockFileSystem) Remove(name string) error {
	m.Removed = append(m.Removed, name)
	if err, ok := m.Errors[name]; ok {
		return err
	}
	delete(m.Files, name)
	delete(m.Stats, name)
	m.unlist(name)
	return nil
}

// RemoveAll removes path and any children it contains.
func (m *MockFileSystem) RemoveAll(path string) error {
	m.Removed = append(m.Removed, path)
	if err, ok := m.Errors[path]; ok {
		return err
	}
	for k := range m.Files {
		if k == path || strings.HasPrefix(k, path+string(filepath.Separator)) {
			delete(m.Files, k)
		}
	}
	for k := range m.Stats {
		if k == path || strings.HasPrefix(k, path+string(filepath.Separator)) {
			delete(m.Stats, k)
		}
	}
	m.unlist(path)
	return nil
}

func (m *MockFileSystem) unlist(path string) {
	dir, name := filepath.Dir(path), filepath.Base(path)
	m.Dirs[dir] = slices.DeleteFunc(m.Dirs[dir], func(e os.DirEntry) bool {
		return e.Name() == name
	})
}

// Rename renames (moves) oldpath to newpath.
func (m *MockFileSystem) Rename(oldpath, newpath string) error {
	if err, ok := m.Errors[oldpath]; ok {
		return err
	}
	if content, ok := m.Files[oldpath]; ok {
		m.Files[newpath] = content
		delete(m.Files, oldpath)
	}
	if info, ok := m.Stats[oldpath]; ok {
		m.Stats[newpath] = info
		delete(m.Stats, oldpath)
	}
	return nil
}

// Open opens the named file for reading.
func (m *MockFileSystem) Open(name string) (fs.File, error) {
	if err, ok := m.Errors[name]; ok {
		return nil, err
	}
	content, ok := m.Files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return &mockFile{name: filepath.Base(name), Reader: bytes.NewReader(content), size: int64(len(content))}, nil
}

// Create creates or truncates the named file. The content is stored in
// Files when the returned writer is closed.
func (m *MockFileSystem) Create(name string, perm os.FileMode) (io.WriteCloser, error) {
	if err, ok := m.Errors[name]; ok {
		return nil, err
	}
	m.Files[name] = []byte{}
	return &mockWriter{fs: m, name: name}, nil
}

// Walk calls fn for each WalkEntry under root.
func (m *MockFileSystem) Walk(root string, fn ports.WalkFunc) error {
	if err, ok := m.Errors[root]; ok {
		return fn(root, nil, err)
	}
	for _, entry := range m.WalkEntries {
		if entry.Path == root || strings.HasPrefix(entry.Path, root+string(filepath.Separator)) {
			if err := fn(entry.Path, entry.Info, entry.Err); err != nil {
				if err == filepath.SkipDir || err == filepath.SkipAll {
					return nil
				}
				return err
			}
		}
	}
	return nil
}

// EvalSymlinks resolves path through Links. Paths without an entry resolve
// to themselves.
func (m *MockFileSystem) EvalSymlinks(path string) (string, error) {
	if err, ok := m.Errors[path]; ok {
		return "", err
	}
	if target, ok := m.Links[path]; ok {
		return target, nil
	}
	return path, nil
}

// NewSymlinkInfo returns an os.FileInfo describing a symbolic link, as Walk
// reports one.
func NewSymlinkInfo(name string) os.FileInfo {
	return &mockFileInfo{name: name, mode: os.ModeSymlink | 0o777}
}

// NewFileInfo returns an os.FileInfo with the given attributes.
func NewFileInfo(name string, size int64, isDir bool) os.FileInfo {
	mode := os.FileMode(0o644)
	if isDir {
		mode = os.ModeDir | 0o755
	}
	return &mockFileInfo{name: name, size: size, mode: mode, isDir: isDir}
}

// NewDirEntry returns an os.DirEntry with the given name.
func NewDirEntry(name string, isDir bool) os.DirEntry {
	return fs.FileInfoToDirEntry(NewFileInfo(name, 0, isDir))
}

// mockFileInfo implements os.FileInfo for testing.
type mockFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	isDir   bool
}

func (fi *mockFileInfo) Name() string       { return fi.name }
func (fi *mockFileInfo) Size() int64        { return fi.size }
func (fi *mockFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *mockFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *mockFileInfo) IsDir() bool        { return fi.isDir }
func (fi *mockFileInfo) Sys() any           { return nil }

// mockFile implements fs.File for testing.
type mockFile struct {
	*bytes.Reader
	name string
	size int64
}

func (f *mockFile) Stat() (fs.FileInfo, error) {
	return NewFileInfo(f.name, f.size, false), nil
}

func (f *mockFile) Close() error { return nil }

type mockWriter struct {
	bytes.Buffer
	fs   *MockFileSystem
	name string
}

func (w *mockWriter) Close() error {
	w.fs.Files[w.name] = bytes.Clone(w.Bytes())
	return nil
}

// Compile-time check that MockFileSystem implements ports.FileSystem.
var _ ports.FileSystem = (*MockFileSystem)(nil)
