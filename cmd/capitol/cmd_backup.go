package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/capitol/internal/di"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	backupRotate bool
	backupList   bool
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload a database backup to the configured bucket",
	Long: `Snapshot the capitol and ledger databases into a tar.gz archive and
upload it to the S3-compatible bucket configured by BACKUP_* variables.

Examples:
  capitol backup
  capitol backup --rotate
  capitol backup --list`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(func(c *di.Container, log zerolog.Logger) error {
			if c.BackupService == nil {
				return errors.New("backups are disabled (set BACKUP_ENABLED=true and BACKUP_BUCKET)")
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			if backupList {
				backups, err := c.BackupService.ListBackups(ctx)
				if err != nil {
					return err
				}
				if outputFormat == "json" {
					return printJSON(backups)
				}
				for _, b := range backups {
					fmt.Printf("%s  %d bytes  %dh old\n", b.Filename, b.SizeBytes, b.AgeHours)
				}
				return nil
			}

			key, err := c.BackupService.CreateAndUpload(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Uploaded %s\n", key)

			if backupRotate {
				deleted, err := c.BackupService.RotateOldBackups(ctx, c.Config.Backup.RetentionDays)
				if err != nil {
					return err
				}
				fmt.Printf("Deleted %d old backups\n", deleted)
			}
			return nil
		})
	},
}

func init() {
	backupCmd.Flags().BoolVar(&backupRotate, "rotate", false, "Delete backups older than BACKUP_RETENTION_DAYS after uploading")
	backupCmd.Flags().BoolVar(&backupList, "list", false, "List stored backups instead of uploading")
	rootCmd.AddCommand(backupCmd)
}
