package main

import (
	"fmt"
	"os"
	"path/filepath"

	"groupbot/internal/backup"
	"groupbot/internal/config"

	"github.com/spf13/cobra"
)

func backupCmd() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create a backup archive (database + config)",
		Long: `Creates a compressed .tar.gz archive containing the SQLite database
and configuration file. The backup is timestamped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			dir := outputDir
			if dir == "" {
				dir = cfg.Backup.Dir
			}

			archive, err := backup.Create(dir, cfg.History.DBPath, cfgPath)
			if err != nil {
				return err
			}

			info, _ := os.Stat(archive)
			size := int64(0)
			if info != nil {
				size = info.Size()
			}
			fmt.Printf("Backup created: %s (%s)\n", archive, backup.HumanSize(size))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default: backup.dir from config)")
	return cmd
}

func restoreCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <file.tar.gz>",
		Short: "Restore database and config from a backup archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archivePath := args[0]
			cfgPath := resolveConfigPath()

			// The config inside the archive may be the one being restored, so
			// the database path comes from the current config when loadable.
			dbPath := filepath.Join(config.DefaultConfigDir(), "history.db")
			if cfg, err := config.Load(cfgPath); err == nil {
				dbPath = cfg.History.DBPath
			}

			if !force {
				if _, err := os.Stat(dbPath); err == nil {
					fmt.Printf("WARNING: this will overwrite %s\n", dbPath)
					fmt.Printf("Use --force to proceed.\n")
					return fmt.Errorf("restore aborted (use --force to proceed)")
				}
			}

			restored, err := backup.Restore(archivePath, dbPath, cfgPath)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			fmt.Printf("Restore completed from: %s\n", archivePath)
			for _, f := range restored {
				fmt.Printf("  - %s\n", f)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing data without warning")
	return cmd
}

// runScheduledBackup is the nightly job body: create an archive, then prune
// old ones.
func runScheduledBackup(cfg *config.Config, cfgPath string) {
	archive, err := backup.Create(cfg.Backup.Dir, cfg.History.DBPath, cfgPath)
	if err != nil {
		logger.Error("scheduled backup failed", "err", err)
		return
	}
	logger.Info("backup created", "archive", archive)

	removed, err := backup.Prune(cfg.Backup.Dir)
	if err != nil {
		logger.Warn("backup prune failed", "err", err)
		return
	}
	if len(removed) > 0 {
		logger.Info("old backups pruned", "count", len(removed))
	}
}
