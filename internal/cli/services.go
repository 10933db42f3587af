package cli

import (
	"context"

	"github.com/mcdonaldj/savebak/internal/adapters/osfs"
	"github.com/mcdonaldj/savebak/internal/archive"
	"github.com/mcdonaldj/savebak/internal/backup"
	"github.com/mcdonaldj/savebak/internal/catalog"
	"github.com/mcdonaldj/savebak/internal/config"
	"github.com/mcdonaldj/savebak/internal/restore"
	"github.com/mcdonaldj/savebak/internal/retention"
	"github.com/mcdonaldj/savebak/internal/snapshot"
	"github.com/mcdonaldj/savebak/internal/watch"
)

// ConfigService provides configuration operations for the CLI.
type ConfigService interface {
	Load(path string) (*config.Config, error)
	Save(cfg *config.Config, path string) error
	ConfigPath() string
	DefaultConfig() *config.Config
}

// Listing is a catalog entry with its size on disk.
type Listing struct {
	catalog.Entry
	Size int64
}

// BackupService provides backup operations for the CLI.
type BackupService interface {
	Run(cfg *config.Config) (*backup.Run, error)
	List(cfg *config.Config) ([]Listing, error)
	Prune(cfg *config.Config, dryRun bool) (retention.Result, error)
	Watch(ctx context.Context, cfg *config.Config, notify func(ok bool)) error
}

// RestoreService provides restore operations for the CLI.
type RestoreService interface {
	Restore(cfg *config.Config, opts restore.Options) (restore.Result, error)
	Verify(cfg *config.Config, name string) (restore.VerifyResult, error)
}

// defaultConfigService wraps the config package functions.
type defaultConfigService struct{}

func (d *defaultConfigService) Load(path string) (*config.Config, error) { return config.Load(path) }
func (d *defaultConfigService) Save(cfg *config.Config, path string) error {
	return cfg.Save(path)
}
func (d *defaultConfigService) ConfigPath() string            { return config.ConfigPath() }
func (d *defaultConfigService) DefaultConfig() *config.Config { return config.DefaultConfig() }

// defaultBackupService wires the real producer, retention engine and
// orchestrator. It logs through the CLI's logger.
type defaultBackupService struct {
	cli *CLI
}

func (d *defaultBackupService) orchestrator(cfg *config.Config) (*backup.Orchestrator, error) {
	archiver, err := archive.New(cfg.ArchiveFormat)
	if err != nil {
		return nil, err
	}
	logger := d.cli.logger
	producer := snapshot.NewProducer(snapshot.WithArchiver(archiver), snapshot.WithLogger(logger))
	engine := retention.NewEngine(retention.WithLogger(logger))
	return backup.New(producer, engine, backup.WithLogger(logger)), nil
}

func (d *defaultBackupService) Run(cfg *config.Config) (*backup.Run, error) {
	o, err := d.orchestrator(cfg)
	if err != nil {
		return nil, err
	}
	o.OnSaveCompleted(cfg.Backup())
	return o.LastRun(), nil
}

func (d *defaultBackupService) List(cfg *config.Config) ([]Listing, error) {
	fs := osfs.New()
	entries, err := catalog.Scan(fs, cfg.Backup().BackupDir)
	if err != nil {
		return nil, err
	}
	listings := make([]Listing, 0, len(entries))
	for _, e := range entries {
		size, err := e.Size(fs)
		if err != nil {
			d.cli.logger.Warn("could not size backup", "name", e.Name, "error", err)
		}
		listings = append(listings, Listing{Entry: e, Size: size})
	}
	return listings, nil
}

func (d *defaultBackupService) Prune(cfg *config.Config, dryRun bool) (retention.Result, error) {
	engine := retention.NewEngine(retention.WithLogger(d.cli.logger), retention.WithDryRun(dryRun))
	return engine.Apply(cfg.Backup().BackupDir, retention.Policy{MaxCount: cfg.MaxCount, MaxAgeDays: cfg.MaxAgeDays})
}

func (d *defaultBackupService) Watch(ctx context.Context, cfg *config.Config, notify func(ok bool)) error {
	o, err := d.orchestrator(cfg)
	if err != nil {
		return err
	}
	w := watch.New(cfg.Backup(), o,
		watch.WithDebounce(cfg.Watch.Debounce),
		watch.WithLogger(d.cli.logger),
		watch.WithNotify(notify),
	)
	return w.Run(ctx)
}

// defaultRestoreService wraps the restore package.
type defaultRestoreService struct {
	cli *CLI
}

func (d *defaultRestoreService) Restore(cfg *config.Config, opts restore.Options) (restore.Result, error) {
	return restore.NewDefaultService(d.cli.logger).Restore(cfg.Backup().BackupDir, opts)
}

func (d *defaultRestoreService) Verify(cfg *config.Config, name string) (restore.VerifyResult, error) {
	return restore.NewDefaultService(d.cli.logger).Verify(cfg.Backup().BackupDir, name)
}

// Helper methods to get the service or default
func (c *CLI) configSvc() ConfigService {
	if c.ConfigSvc != nil {
		return c.ConfigSvc
	}
	return &defaultConfigService{}
}

func (c *CLI) backupSvc() BackupService {
	if c.BackupSvc != nil {
		return c.BackupSvc
	}
	return &defaultBackupService{cli: c}
}

func (c *CLI) restoreSvc() RestoreService {
	if c.RestoreSvc != nil {
		return c.RestoreSvc
	}
	return &defaultRestoreService{cli: c}
}
