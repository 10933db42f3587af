// Package config loads and validates the savebak configuration file.
package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/mcdonaldj/savebak/internal/archive"
)

// ErrInvalidConfig marks validation failures.
var ErrInvalidConfig = errors.New("invalid config")

// Disabled turns a retention limit off.
const Disabled = -1

type Config struct {
	Enabled         bool   `yaml:"enabled"`
	SourceDir       string `yaml:"source_dir"`
	BackupDir       string `yaml:"backup_dir"`
	BackupAsArchive bool   `yaml:"backup_as_archive"`
	ArchiveFormat   string `yaml:"archive_format"`
	AutoDelete      bool   `yaml:"auto_delete"`
	MaxAgeDays      int    `yaml:"max_age_days"`
	MaxCount        int    `yaml:"max_count"`

	Watch   WatchConfig   `yaml:"watch"`
	Logging LoggingConfig `yaml:"logging"`
}

type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Backup is what one save-completed trigger needs. Paths are expanded.
type Backup struct {
	Enabled         bool
	SourceDir       string
	BackupDir       string
	BackupAsArchive bool
	AutoDelete      bool
	MaxAgeDays      int
	MaxCount        int
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		SourceDir:     filepath.Join(xdg.DataHome, "Celeste", "Saves"),
		BackupDir:     filepath.Join(xdg.DataHome, "Celeste", "Backups"),
		ArchiveFormat: archive.DefaultFormat,
		MaxAgeDays:    Disabled,
		MaxCount:      Disabled,
		Watch:         WatchConfig{Debounce: 2 * time.Second},
		Logging:       LoggingConfig{Level: "info", Format: "text"},
	}
}

// ConfigPath returns the default config file location.
func ConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "savebak", "config.yaml")
}

// Load reads the config at path. A missing file yields the defaults; keys
// absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "reading config %s", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "creating config directory")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encoding config")
	}

	return errors.Wrap(os.WriteFile(path, data, 0o644), "writing config")
}

// Validate checks the config for values the backup core cannot act on.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.SourceDir) == "" {
		problems = append(problems, "source_dir is required")
	}
	if strings.TrimSpace(c.BackupDir) == "" {
		problems = append(problems, "backup_dir is required")
	}
	if c.SourceDir != "" && c.BackupDir != "" && isWithin(ExpandPath(c.SourceDir), ExpandPath(c.BackupDir)) {
		problems = append(problems, "backup_dir must not be inside source_dir")
	}
	if c.ArchiveFormat != "" && !slices.Contains(archive.Formats(), strings.ToLower(c.ArchiveFormat)) {
		problems = append(problems, "archive_format must be one of "+strings.Join(archive.Formats(), ", "))
	}
	if c.MaxAgeDays < Disabled {
		problems = append(problems, "max_age_days must be -1 (disabled) or at least 0")
	}
	if c.MaxCount < Disabled {
		problems = append(problems, "max_count must be -1 (disabled) or at least 1")
	}
	if c.MaxCount == 0 {
		problems = append(problems, "max_count 0 would delete every backup; use -1 to disable")
	}
	if c.Watch.Debounce < 0 {
		problems = append(problems, "watch.debounce must not be negative")
	}

	if len(problems) > 0 {
		return errors.Wrap(ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Backup projects the config onto the value passed to the orchestrator.
func (c *Config) Backup() Backup {
	return Backup{
		Enabled:         c.Enabled,
		SourceDir:       ExpandPath(c.SourceDir),
		BackupDir:       ExpandPath(c.BackupDir),
		BackupAsArchive: c.BackupAsArchive,
		AutoDelete:      c.AutoDelete,
		MaxAgeDays:      c.MaxAgeDays,
		MaxCount:        c.MaxCount,
	}
}

func isWithin(base, target string) bool {
	base, errBase := filepath.Abs(base)
	target, errTarget := filepath.Abs(target)
	if errBase != nil || errTarget != nil {
		return false
	}
	return target == base || strings.HasPrefix(target, base+string(filepath.Separator))
}

// ExpandPath expands ~ to home directory
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path // Return unexpanded if home unavailable
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
