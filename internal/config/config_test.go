package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Enabled {
		t.Error("Enabled should default to true")
	}
	if cfg.BackupAsArchive || cfg.AutoDelete {
		t.Error("archive mode and auto delete should default to off")
	}
	if cfg.MaxAgeDays != Disabled || cfg.MaxCount != Disabled {
		t.Errorf("retention limits = %d/%d, expected both disabled", cfg.MaxAgeDays, cfg.MaxCount)
	}
	if cfg.ArchiveFormat != "zip" {
		t.Errorf("ArchiveFormat = %q, expected %q", cfg.ArchiveFormat, "zip")
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("Watch.Debounce = %v, expected 2s", cfg.Watch.Debounce)
	}
	if !strings.HasSuffix(cfg.SourceDir, filepath.Join("Celeste", "Saves")) {
		t.Errorf("SourceDir = %q, expected a Celeste/Saves path", cfg.SourceDir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadMissingConfig(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("Load failed for missing config: %v", err)
	}
	if cfg.MaxCount != Disabled {
		t.Errorf("Expected default max_count, got %d", cfg.MaxCount)
	}
}

func TestLoadValidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
enabled: true
source_dir: /custom/Saves
backup_dir: /custom/Backups
backup_as_archive: true
archive_format: tar.zst
auto_delete: true
max_age_days: 30
max_count: 10
watch:
  debounce: 500ms
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := Backup{
		Enabled:         true,
		SourceDir:       "/custom/Saves",
		BackupDir:       "/custom/Backups",
		BackupAsArchive: true,
		AutoDelete:      true,
		MaxAgeDays:      30,
		MaxCount:        10,
	}
	if got := cfg.Backup(); got != want {
		t.Errorf("Backup() = %+v, expected %+v", got, want)
	}
	if cfg.ArchiveFormat != "tar.zst" {
		t.Errorf("ArchiveFormat = %q", cfg.ArchiveFormat)
	}
	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("Watch.Debounce = %v", cfg.Watch.Debounce)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoadPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("max_count: 5\n"), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxCount != 5 {
		t.Errorf("MaxCount = %d, expected 5", cfg.MaxCount)
	}
	if cfg.MaxAgeDays != Disabled {
		t.Errorf("MaxAgeDays = %d, expected default", cfg.MaxAgeDays)
	}
	if !cfg.Enabled {
		t.Error("Enabled should keep its default")
	}
}

func TestLoadMalformedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("this: is: not: valid: yaml: [[["), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load should fail for malformed YAML")
	}
}

func TestLoadReadFileError(t *testing.T) {
	// A directory where the file should be
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Load should fail when the path is a directory")
	}
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "savebak", "config.yaml")

	cfg := DefaultConfig()
	cfg.SourceDir = "/my/Saves"
	cfg.MaxCount = 7
	cfg.BackupAsArchive = true

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load after save failed: %v", err)
	}
	if loaded.SourceDir != cfg.SourceDir || loaded.MaxCount != 7 || !loaded.BackupAsArchive {
		t.Errorf("mismatch after save/load: %+v", loaded)
	}
	if loaded.Watch.Debounce != cfg.Watch.Debounce {
		t.Errorf("Watch.Debounce = %v after save/load", loaded.Watch.Debounce)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"zero age is allowed", func(c *Config) { c.MaxAgeDays = 0 }, ""},
		{"count of one", func(c *Config) { c.MaxCount = 1 }, ""},
		{"uppercase format", func(c *Config) { c.ArchiveFormat = "TAR.GZ" }, ""},
		{"empty source", func(c *Config) { c.SourceDir = " " }, "source_dir is required"},
		{"empty backup dir", func(c *Config) { c.BackupDir = "" }, "backup_dir is required"},
		{"unknown format", func(c *Config) { c.ArchiveFormat = "rar" }, "archive_format"},
		{"age below -1", func(c *Config) { c.MaxAgeDays = -2 }, "max_age_days"},
		{"count below -1", func(c *Config) { c.MaxCount = -5 }, "max_count must be"},
		{"zero count", func(c *Config) { c.MaxCount = 0 }, "max_count 0"},
		{"negative debounce", func(c *Config) { c.Watch.Debounce = -time.Second }, "watch.debounce"},
		{
			"backup dir inside source",
			func(c *Config) { c.SourceDir = "/games/Saves"; c.BackupDir = "/games/Saves/Backups" },
			"inside source_dir",
		},
		{
			"backup dir equals source",
			func(c *Config) { c.SourceDir = "/games/Saves"; c.BackupDir = "/games/Saves/" },
			"inside source_dir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.SourceDir = "/games/Saves"
			cfg.BackupDir = "/games/Backups"
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, expected nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, expected error containing %q", tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error should be ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, expected to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := &Config{MaxCount: 0, MaxAgeDays: -3}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"source_dir", "backup_dir", "max_age_days", "max_count 0"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err.Error(), want)
		}
	}
}

func TestBackupExpandsPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home dir, skipping test")
	}
	cfg := DefaultConfig()
	cfg.SourceDir = "~/Saves"
	cfg.BackupDir = "~/Backups"
	cfg.Enabled = false

	b := cfg.Backup()
	if b.SourceDir != filepath.Join(home, "Saves") || b.BackupDir != filepath.Join(home, "Backups") {
		t.Errorf("paths not expanded: %+v", b)
	}
	if b.Enabled {
		t.Error("Enabled should carry over")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home dir, skipping test")
	}

	tests := []struct {
		input    string
		expected string
	}{
		{"~/Saves", filepath.Join(home, "Saves")},
		{"~/.local/share", filepath.Join(home, ".local/share")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
		{"~", home},
		{"~other/path", "~other/path"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := ExpandPath(tt.input); result != tt.expected {
				t.Errorf("ExpandPath(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	if !filepath.IsAbs(path) {
		t.Errorf("ConfigPath should be absolute, got %s", path)
	}
	if filepath.Base(filepath.Dir(path)) != "savebak" {
		t.Errorf("ConfigPath should live in a savebak directory, got %s", path)
	}
}
