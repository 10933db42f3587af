package ziparchiver

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		fullPath := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("Failed to create dir for %s: %v", path, err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", path, err)
		}
	}
}

func TestCreateStoresPathsRelativeToSource(t *testing.T) {
	tempDir := t.TempDir()
	sourceDir := filepath.Join(tempDir, "Saves")
	testFiles := map[string]string{
		"settings.celeste":   "settings",
		"0.celeste":          "slot zero",
		"debug/1.celeste":    "slot one",
		"deep/nested/f3.txt": "content 3",
	}
	writeTree(t, sourceDir, testFiles)

	zipPath := filepath.Join(tempDir, "backup.zip")
	fileCount, err := New().Create(zipPath, sourceDir)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if fileCount != len(testFiles) {
		t.Errorf("fileCount = %d, expected %d", fileCount, len(testFiles))
	}

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		t.Fatalf("Failed to open zip: %v", err)
	}
	defer r.Close()

	found := make(map[string]bool)
	for _, f := range r.File {
		if strings.HasPrefix(f.Name, "Saves/") {
			t.Errorf("entry %s carries the source directory name", f.Name)
		}
		found[f.Name] = true
	}
	for path := range testFiles {
		if !found[path] {
			t.Errorf("Expected file %s not found in zip", path)
		}
	}
}

func TestCreateExtractRoundTrip(t *testing.T) {
	tempDir := t.TempDir()
	sourceDir := filepath.Join(tempDir, "source")
	testFiles := map[string]string{
		"a.txt":         "alpha",
		"sub/b.bin":     string([]byte{0, 1, 2, 3, 255}),
		"sub/deep/c.md": strings.Repeat("compressible ", 1000),
	}
	writeTree(t, sourceDir, testFiles)
	if err := os.MkdirAll(filepath.Join(sourceDir, "empty"), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	a := New()
	zipPath := filepath.Join(tempDir, "out.zip")
	if _, err := a.Create(zipPath, sourceDir); err != nil {
		t.Fatalf("Create: %v", err)
	}

	destDir := filepath.Join(tempDir, "restored")
	if err := a.Extract(zipPath, destDir); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	for path, want := range testFiles {
		got, err := os.ReadFile(filepath.Join(destDir, path))
		if err != nil {
			t.Errorf("reading %s: %v", path, err)
			continue
		}
		if string(got) != want {
			t.Errorf("%s content mismatch", path)
		}
	}
	if info, err := os.Stat(filepath.Join(destDir, "empty")); err != nil || !info.IsDir() {
		t.Errorf("empty directory not restored: %v", err)
	}
}

func TestCreateMissingSourceFails(t *testing.T) {
	tempDir := t.TempDir()
	_, err := New().Create(filepath.Join(tempDir, "out.zip"), filepath.Join(tempDir, "missing"))
	if err == nil {
		t.Fatal("Create with missing source should fail")
	}
}

func TestCreateUnwritableDestinationFails(t *testing.T) {
	tempDir := t.TempDir()
	sourceDir := filepath.Join(tempDir, "source")
	writeTree(t, sourceDir, map[string]string{"a": "a"})

	_, err := New().Create(filepath.Join(tempDir, "no", "such", "dir", "out.zip"), sourceDir)
	if err == nil {
		t.Fatal("Create into missing directory should fail")
	}
}

func TestListAndVerify(t *testing.T) {
	tempDir := t.TempDir()
	sourceDir := filepath.Join(tempDir, "source")
	writeTree(t, sourceDir, map[string]string{"one.txt": "1", "dir/two.txt": "22"})

	a := New()
	zipPath := filepath.Join(tempDir, "out.zip")
	if _, err := a.Create(zipPath, sourceDir); err != nil {
		t.Fatalf("Create: %v", err)
	}

	files, err := a.List(zipPath)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("List returned %d files, expected 2", len(files))
	}
	if files["dir/two.txt"].Size != 2 {
		t.Errorf("dir/two.txt size = %d, expected 2", files["dir/two.txt"].Size)
	}

	n, err := a.Verify(zipPath)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if n != 2 {
		t.Errorf("Verify checked %d files, expected 2", n)
	}
}

func TestVerifyDetectsTruncatedArchive(t *testing.T) {
	tempDir := t.TempDir()
	zipPath := filepath.Join(tempDir, "bad.zip")
	if err := os.WriteFile(zipPath, []byte("PK\x03\x04 not really a zip"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := New().Verify(zipPath); err == nil {
		t.Error("Verify should fail on a corrupt archive")
	}
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	tempDir := t.TempDir()
	zipPath := filepath.Join(tempDir, "evil.zip")

	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	w := zip.NewWriter(f)
	fw, err := w.Create("../escape.txt")
	if err != nil {
		t.Fatalf("zip Create: %v", err)
	}
	_, _ = fw.Write([]byte("gotcha"))
	_ = w.Close()
	_ = f.Close()

	err = New().Extract(zipPath, filepath.Join(tempDir, "dest"))
	if err == nil || !strings.Contains(err.Error(), "path traversal") {
		t.Errorf("Extract error = %v, expected path traversal rejection", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "escape.txt")); !os.IsNotExist(err) {
		t.Error("traversal entry was written outside destination")
	}
}
