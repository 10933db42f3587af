// Package cli provides the command-line interface with injectable io.Writer for testing.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mcdonaldj/savebak/internal/backup"
	"github.com/mcdonaldj/savebak/internal/catalog"
	"github.com/mcdonaldj/savebak/internal/config"
	"github.com/mcdonaldj/savebak/internal/logging"
	"github.com/mcdonaldj/savebak/internal/restore"
	"github.com/mcdonaldj/savebak/internal/retention"
	"github.com/mcdonaldj/savebak/internal/snapshot"
)

// errBackupFailed makes `run` exit non-zero after its report is printed.
var errBackupFailed = errors.New("backup failed")

// CLI represents the command-line interface with injectable dependencies.
type CLI struct {
	Out     io.Writer // Standard output
	Err     io.Writer // Standard error, also receives logs
	Version string    // Application version
	Args    []string  // Command arguments (like os.Args)

	// Exit function for testability (defaults to os.Exit)
	Exit func(code int)

	// Injectable dependencies (nil means use defaults)
	ConfigSvc  ConfigService
	BackupSvc  BackupService
	RestoreSvc RestoreService

	// Flags
	configPath string
	verbose    bool
	quiet      bool

	logger *slog.Logger

	// Color functions (can be disabled for testing)
	green  func(a ...any) string
	yellow func(a ...any) string
	cyan   func(a ...any) string
	gray   func(a ...any) string
	red    func(a ...any) string
}

// New creates a new CLI with default settings.
func New(version string) *CLI {
	return &CLI{
		Out:     os.Stdout,
		Err:     os.Stderr,
		Version: version,
		Args:    os.Args,
		Exit:    os.Exit,
		logger:  logging.NewDiscard(),
		green:   color.New(color.FgGreen, color.Bold).SprintFunc(),
		yellow:  color.New(color.FgYellow).SprintFunc(),
		cyan:    color.New(color.FgCyan).SprintFunc(),
		gray:    color.New(color.FgHiBlack).SprintFunc(),
		red:     color.New(color.FgRed).SprintFunc(),
	}
}

// NewForTesting creates a CLI configured for testing (no colors, captured output).
func NewForTesting(out, errOut io.Writer, args []string) *CLI {
	noColor := func(a ...any) string { return fmt.Sprint(a...) }
	return &CLI{
		Out:     out,
		Err:     errOut,
		Version: "test",
		Args:    args,
		Exit:    func(int) {},
		logger:  logging.NewDiscard(),
		green:   noColor,
		yellow:  noColor,
		cyan:    noColor,
		gray:    noColor,
		red:     noColor,
	}
}

// Run executes the CLI with the configured arguments.
func (c *CLI) Run() {
	root := c.rootCommand()
	if len(c.Args) > 1 {
		root.SetArgs(c.Args[1:])
	} else {
		root.SetArgs([]string{})
	}

	if err := root.Execute(); err != nil {
		if !errors.Is(err, errBackupFailed) {
			fmt.Fprintf(c.Err, "%s %v\n", c.red("Error:"), err)
		}
		c.Exit(1)
	}
}

func (c *CLI) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "savebak",
		Short: "Timestamped backups of game save data",
		Long: `savebak snapshots a save directory each time the game finishes saving,
either as a mirrored directory or as a single archive, and optionally prunes
old backups by count and by age.`,
		Example: `  # Write a default config
  savebak init

  # Take one backup now and apply retention
  savebak run

  # Back up automatically whenever the saves change
  savebak watch`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Version:       c.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.quiet && c.verbose {
				return errors.New("cannot use --quiet and --verbose together")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.SetOut(c.Out)
	root.SetErr(c.Err)
	root.SetVersionTemplate("savebak v{{.Version}}\n")

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default "+c.configSvc().ConfigPath()+")")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVarP(&c.quiet, "quiet", "q", false, "only log errors")

	root.AddCommand(
		c.runCommand(),
		c.listCommand(),
		c.pruneCommand(),
		c.restoreCommand(),
		c.verifyCommand(),
		c.watchCommand(),
		c.initCommand(),
		c.statusCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Show version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(c.Out, "savebak v%s\n", c.Version)
			},
		},
	)
	return root
}

func (c *CLI) resolvedConfigPath() string {
	if c.configPath != "" {
		return config.ExpandPath(c.configPath)
	}
	return c.configSvc().ConfigPath()
}

// loadConfig loads and validates the config and sets up logging from it.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := c.configSvc().Load(c.resolvedConfigPath())
	if err != nil {
		return nil, errors.Wrap(err, "loading config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := c.setupLogging(cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *CLI) setupLogging(lc config.LoggingConfig) error {
	level, err := logging.ParseLevel(lc.Level)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(lc.Format)
	if err != nil {
		return err
	}
	switch {
	case c.verbose:
		level = slog.LevelDebug
	case c.quiet:
		level = slog.LevelError
	}
	c.logger = logging.New(logging.Config{Level: level, Format: format, Output: c.Err})
	return nil
}

func (c *CLI) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Take one backup now, then delete outdated backups",
		Long: `Fire the save-completed trigger once: snapshot the save directory and,
when auto_delete is on, apply the retention policy. Exits non-zero when the
snapshot fails. Retention problems are logged but do not fail the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Enabled {
				fmt.Fprintf(c.Out, "%s backups are disabled in %s\n", c.gray("-"), c.resolvedConfigPath())
				return nil
			}

			fmt.Fprintf(c.Out, "%s Backing up %s...\n", c.cyan("=>"), cfg.Backup().SourceDir)
			run, err := c.backupSvc().Run(cfg)
			if err != nil {
				return err
			}
			c.printRun(run)
			if !run.OK {
				return errBackupFailed
			}
			return nil
		},
	}
}

func (c *CLI) printRun(run *backup.Run) {
	if run.SnapshotErr != nil {
		fmt.Fprintf(c.Out, "  %s snapshot failed: %v\n", c.red("x"), run.SnapshotErr)
	} else {
		fmt.Fprintf(c.Out, "  %s %s %s\n", c.green("*"), run.Entry.Name, c.gray("("+run.Entry.Kind.String()+")"))
	}

	switch {
	case run.RetentionErr != nil:
		fmt.Fprintf(c.Out, "  %s retention failed: %v\n", c.yellow("!"), run.RetentionErr)
	case run.Retention != nil:
		c.printRetention(*run.Retention)
	}

	fmt.Fprintf(c.Out, "Done in %s\n", run.Duration.Round(time.Millisecond))
}

func (c *CLI) printRetention(res retention.Result) {
	verb := "deleted"
	if res.DryRun {
		verb = "would delete"
	}
	for _, name := range res.Deleted {
		fmt.Fprintf(c.Out, "  %s %s %s\n", c.yellow("-"), verb, name)
	}
	for _, f := range res.Failed {
		fmt.Fprintf(c.Out, "  %s could not delete %s: %v\n", c.red("x"), f.Name, f.Err)
	}
	fmt.Fprintf(c.Out, "  Retention: %s %s, %s kept",
		c.yellow(fmt.Sprintf("%d", len(res.Deleted))), verb,
		c.green(fmt.Sprintf("%d", len(res.Kept))))
	if len(res.Missing) > 0 {
		fmt.Fprintf(c.Out, ", %s already gone", c.gray(fmt.Sprintf("%d", len(res.Missing))))
	}
	if len(res.Failed) > 0 {
		fmt.Fprintf(c.Out, ", %s failed", c.red(fmt.Sprintf("%d", len(res.Failed))))
	}
	fmt.Fprintln(c.Out)
}

func (c *CLI) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			listings, err := c.backupSvc().List(cfg)
			if err != nil {
				return err
			}
			if len(listings) == 0 {
				fmt.Fprintf(c.Out, "No backups found in %s\n", cfg.Backup().BackupDir)
				return nil
			}

			fmt.Fprintf(c.Out, "Backups in %s:\n\n", c.cyan(cfg.Backup().BackupDir))
			fmt.Fprintf(c.Out, "  %-40s %-9s %10s  %s\n", "NAME", "KIND", "SIZE", "CAPTURED")
			fmt.Fprintf(c.Out, "  %-40s %-9s %10s  %s\n", "----", "----", "----", "--------")
			for _, l := range listings {
				fmt.Fprintf(c.Out, "  %-40s %-9s %10s  %s\n",
					l.Name,
					l.Kind,
					catalog.FormatSize(l.Size),
					c.gray(l.CapturedAt.Format("2006-01-02 15:04:05")))
			}
			return nil
		},
	}
}

func (c *CLI) pruneCommand() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete outdated backups without taking a new one",
		Long: `Apply the retention policy (max_count and max_age_days) to the backup
directory. A backup is deleted when it is beyond the newest max_count backups
or older than max_age_days. Use --dry-run to see what would be deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			policy := retention.Policy{MaxCount: cfg.MaxCount, MaxAgeDays: cfg.MaxAgeDays}
			if !policy.Active() {
				fmt.Fprintln(c.Out, "No retention limits configured (max_count and max_age_days are -1).")
				return nil
			}

			fmt.Fprintf(c.Out, "%s Pruning %s (%s)...\n", c.cyan("=>"), cfg.Backup().BackupDir, policy)
			res, err := c.backupSvc().Prune(cfg, dryRun)
			if err != nil {
				return err
			}
			c.printRetention(res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be deleted")
	return cmd
}

func (c *CLI) restoreCommand() *cobra.Command {
	var opts restore.Options
	cmd := &cobra.Command{
		Use:   "restore [name]",
		Short: "Restore a backup into the save directory",
		Long: `Copy a directory backup, or extract an archive backup, into the target
directory (the configured source_dir by default). The latest backup is used
when no name is given. A non-empty target is refused unless --force is set,
in which case it is first moved aside to <target>.pre-restore-<timestamp>.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				opts.Name = args[0]
			}
			if opts.Target == "" {
				opts.Target = cfg.Backup().SourceDir
			} else {
				opts.Target = config.ExpandPath(opts.Target)
			}

			if opts.Force {
				fmt.Fprintf(c.Out, "%s Restoring into %s (moving current aside)...\n", c.yellow("!"), opts.Target)
			} else {
				fmt.Fprintf(c.Out, "Restoring into %s...\n", opts.Target)
			}

			res, err := c.restoreSvc().Restore(cfg, opts)
			if err != nil {
				return errors.Wrap(err, "restore failed")
			}
			if res.MovedAside != "" {
				fmt.Fprintf(c.Out, "  previous saves moved to %s\n", res.MovedAside)
			}
			fmt.Fprintf(c.Out, "%s Restored %s\n", c.green("*"), res.Entry.Name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.Target, "target", "t", "", "directory to restore into (default: source_dir)")
	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "move a non-empty target aside first")
	return cmd
}

func (c *CLI) verifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [name]",
		Short: "Read a backup end to end to check it is intact",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}

			res, err := c.restoreSvc().Verify(cfg, name)
			if err != nil {
				return errors.Wrap(err, "verification failed")
			}
			fmt.Fprintf(c.Out, "%s %s verified (%d files)\n", c.green("*"), res.Entry.Name, res.Files)
			return nil
		},
	}
}

func (c *CLI) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Back up whenever the save directory changes",
		Long: `Watch the save directory and fire the save-completed trigger once writes
have been quiet for watch.debounce. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Enabled {
				fmt.Fprintf(c.Out, "%s backups are disabled in %s\n", c.gray("-"), c.resolvedConfigPath())
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(c.Out, "%s Watching %s (Ctrl+C to stop)\n", c.cyan("=>"), cfg.Backup().SourceDir)
			return c.backupSvc().Watch(ctx, cfg, func(ok bool) {
				stamp := time.Now().Format(time.TimeOnly)
				if ok {
					fmt.Fprintf(c.Out, "  %s %s backup taken\n", c.green("*"), c.gray(stamp))
				} else {
					fmt.Fprintf(c.Out, "  %s %s backup failed\n", c.red("x"), c.gray(stamp))
				}
			})
		},
	}
}

func (c *CLI) initCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := c.configSvc()
			path := c.resolvedConfigPath()

			if _, err := os.Stat(path); err == nil && !force {
				return errors.Newf("config already exists at %s (use --force to overwrite)", path)
			}
			if err := svc.Save(svc.DefaultConfig(), path); err != nil {
				return errors.Wrap(err, "saving config")
			}
			fmt.Fprintf(c.Out, "Created config at %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func (c *CLI) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and backup summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}

			enabled := c.green("enabled")
			if !cfg.Enabled {
				enabled = c.gray("disabled")
			}
			mode := snapshot.ModeFor(cfg.BackupAsArchive).String()
			if cfg.BackupAsArchive {
				mode += " (" + cfg.ArchiveFormat + ")"
			}
			policy := retention.Policy{MaxCount: cfg.MaxCount, MaxAgeDays: cfg.MaxAgeDays}
			prune := c.gray("off")
			if cfg.AutoDelete && policy.Active() {
				prune = policy.String()
			}

			fmt.Fprintln(c.Out, "savebak status:")
			fmt.Fprintf(c.Out, "  Backups:   %s\n", enabled)
			paths := cfg.Backup()
			fmt.Fprintf(c.Out, "  Source:    %s\n", paths.SourceDir)
			fmt.Fprintf(c.Out, "  Backup:    %s\n", paths.BackupDir)
			fmt.Fprintf(c.Out, "  Config:    %s\n", c.resolvedConfigPath())
			fmt.Fprintf(c.Out, "  Mode:      %s\n", mode)
			fmt.Fprintf(c.Out, "  Retention: %s\n", prune)

			listings, err := c.backupSvc().List(cfg)
			switch {
			case errors.Is(err, os.ErrNotExist):
				fmt.Fprintf(c.Out, "  Stored:    %s\n", c.gray("none yet"))
				return nil
			case err != nil:
				fmt.Fprintf(c.Out, "  Stored:    %s %v\n", c.red("unreadable:"), err)
				return nil
			}
			var total int64
			for _, l := range listings {
				total += l.Size
			}
			fmt.Fprintf(c.Out, "  Stored:    %d backups, %s\n", len(listings), catalog.FormatSize(total))
			if len(listings) > 0 {
				fmt.Fprintf(c.Out, "  Latest:    %s\n", listings[0].Name)
			}
			return nil
		},
	}
}

