package cmd

import (
	"fmt"

	"github.com/Archerevan-01fischb/MW-website/internal/assembler"
	"github.com/spf13/cobra"
)

var (
	assembleSystem  int
	assembleWorkers int
)

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Rebuild cable-car lines from gondola stations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("workers") {
			assembleWorkers = cfg.Assembly.Workers
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		a := assembler.New(s, logger)
		var results []assembler.Result
		if assembleSystem > 0 {
			sys, err := s.GetGondolaSystemByNumber(cmd.Context(), assembleSystem)
			if err != nil {
				return err
			}
			res, err := a.BuildLine(cmd.Context(), sys.ID)
			if err != nil {
				return err
			}
			results = append(results, *res)
		} else {
			results, err = a.BuildAll(cmd.Context(), assembleWorkers)
			if err != nil {
				return err
			}
		}

		for _, r := range results {
			fmt.Printf("System %d: %d lines, spans multiple tiles: %t\n", r.Number, len(r.Lines), r.SpansMultipleTiles)
			for _, l := range r.Lines {
				logVerbose("  line %d on %s (%s, axis %d, %d settlements)",
					l.ID, l.TileID, l.LineType, l.AxisCoordinate, l.SettlementCount)
			}
		}
		fmt.Printf("Assembled %d systems\n", len(results))
		return nil
	},
}

func init() {
	assembleCmd.Flags().IntVar(&assembleSystem, "system", 0, "Assemble only this system number")
	assembleCmd.Flags().IntVar(&assembleWorkers, "workers", 4, "Systems assembled in parallel")
	rootCmd.AddCommand(assembleCmd)
}
