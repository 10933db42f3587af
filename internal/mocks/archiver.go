package mocks

import (
	"github.com/mcdonaldj/savebak/internal/ports"
)

// MockArchiver implements ports.Archiver for testing.
type MockArchiver struct {
	// Ext is returned by Extension
	Ext string
	// CreateCalls records calls to Create
	CreateCalls []CreateCall
	// ExtractCalls records calls to Extract
	ExtractCalls []ExtractCall
	// ListResults maps archive paths to file listings
	ListResults map[string]map[string]ports.FileInfo
	// Errors maps method names to errors
	Errors map[string]error
	// CreateResult is the file count returned by Create and Verify
	CreateResult int
	// Panic, when set, is raised by Create
	Panic any
}

// CreateCall records parameters of a Create call.
type CreateCall struct {
	DestPath  string
	SourceDir string
}

// ExtractCall records parameters of an Extract call.
type ExtractCall struct {
	ArchivePath string
	DestDir     string
}

// NewMockArchiver creates a new mock archiver.
func NewMockArchiver() *MockArchiver {
	return &MockArchiver{
		Ext:          ".zip",
		ListResults:  make(map[string]map[string]ports.FileInfo),
		Errors:       make(map[string]error),
		CreateResult: 1,
	}
}

// Extension returns Ext.
func (m *MockArchiver) Extension() string { return m.Ext }

// Create records the call and returns CreateResult.
func (m *MockArchiver) Create(destPath, sourceDir string) (int, error) {
	m.CreateCalls = append(m.CreateCalls, CreateCall{DestPath: destPath, SourceDir: sourceDir})
	if m.Panic != nil {
		panic(m.Panic)
	}
	if err, ok := m.Errors["Create"]; ok {
		return 0, err
	}
	return m.CreateResult, nil
}

// Extract records the call.
func (m *MockArchiver) Extract(archivePath, destDir string) error {
	m.ExtractCalls = append(m.ExtractCalls, ExtractCall{ArchivePath: archivePath, DestDir: destDir})
	if err, ok := m.Errors["Extract"]; ok {
		return err
	}
	return nil
}

// List returns the listing registered for archivePath.
func (m *MockArchiver) List(archivePath string) (map[string]ports.FileInfo, error) {
	if err, ok := m.Errors["List"]; ok {
		return nil, err
	}
	if result, ok := m.ListResults[archivePath]; ok {
		return result, nil
	}
	return make(map[string]ports.FileInfo), nil
}

// Verify returns CreateResult.
func (m *MockArchiver) Verify(archivePath string) (int, error) {
	if err, ok := m.Errors["Verify"]; ok {
		return 0, err
	}
	return m.CreateResult, nil
}

// Compile-time check that MockArchiver implements ports.Archiver.
var _ ports.Archiver = (*MockArchiver)(nil)
