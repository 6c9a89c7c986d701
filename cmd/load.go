package cmd

import (
	"fmt"

	"github.com/Archerevan-01fischb/MW-website/internal/detection"
	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load <file>",
	Short: "Load a detection pass (JSON or YAML) into the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := detection.ReadFile(args[0])
		if err != nil {
			return err
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		l := &detection.Loader{Store: s, Grid: tileGrid(), Log: logger}
		res, err := l.Load(cmd.Context(), doc)
		if err != nil {
			return fmt.Errorf("loading %s: %w", args[0], err)
		}
		fmt.Printf("Loaded %d gondola systems and %d settlements from %s\n",
			len(res.SystemIDs), len(res.SettlementIDs), args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
}
