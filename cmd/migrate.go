package cmd

import (
	"fmt"

	"github.com/Archerevan-01fischb/MW-website/internal/migration"
	"github.com/Archerevan-01fischb/MW-website/internal/model"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate-names",
	Short: "Assign GONDOLA_NN identifiers and rename gondola stations",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		e := &migration.Engine{Store: s, Backup: backupFacility(), Log: logger}
		rep, err := e.Run(cmd.Context())
		if rep == nil {
			return err
		}

		fmt.Printf("Backup: %s\n", rep.BackupPath)
		fmt.Printf("Identifier width: %d\n", rep.Width)
		fmt.Printf("Systems updated: %d\n", rep.SystemsUpdated)
		fmt.Printf("Settlements renamed: %d (unchanged %d)\n", rep.SettlementsUpdated, rep.Unchanged)
		if !rep.Changed() {
			fmt.Printf("Nothing to do\n")
		}
		for _, d := range rep.Defects {
			fmt.Printf("  skipped %d %q: %s\n", d.SettlementID, d.Name, d.Reason)
		}
		if model.IsKind(err, model.KindAmbiguousSuffix) {
			return fmt.Errorf("%d settlements need manual renaming: %w", len(rep.Defects), err)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
