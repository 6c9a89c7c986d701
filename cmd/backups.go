package cmd

import (
	"fmt"
	"time"

	"github.com/Archerevan-01fischb/MW-website/internal/backup"
	"github.com/spf13/cobra"
)

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List registry snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := backupFacility()
		snaps, err := f.List()
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Printf("No backups in %s\n", f.Dir)
			return nil
		}
		for _, sn := range snaps {
			fmt.Printf("%s  %10d bytes  %s\n", sn.CreatedAt.Format(time.RFC3339), sn.Size, sn.Path)
		}
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <backup>",
	Short: "Replace the registry database with a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := backup.Restore(args[0], databasePath()); err != nil {
			return err
		}
		logger.Info("registry restored", "from", args[0], "to", databasePath())
		fmt.Printf("Restored %s from %s\n", databasePath(), args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupsCmd)
	rootCmd.AddCommand(restoreCmd)
}
