package cmd

import (
	"fmt"
	"sort"

	"github.com/Archerevan-01fischb/MW-website/internal/model"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registry contents",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		c, err := s.Counts(cmd.Context())
		if err != nil {
			return err
		}
		sum, err := s.Summary(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Registry Status\n")
		fmt.Printf("===============\n")
		fmt.Printf("Gondola systems:  %d\n", c.GondolaSystems)
		fmt.Printf("Settlements:      %d (enemy occupied: %d)\n", c.Settlements, sum.EnemyOccupied)
		fmt.Printf("Cable-car lines:  %d (%d memberships)\n", c.CableLines, c.Memberships)
		fmt.Printf("Stitching anchors: %d\n", c.Anchors)

		if len(sum.BySpatialType) > 0 {
			fmt.Printf("\nBy Spatial Type\n")
			fmt.Printf("---------------\n")

			var types []model.SpatialType
			for t := range sum.BySpatialType {
				types = append(types, t)
			}
			sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

			for _, t := range types {
				fmt.Printf("  %-20s %d\n", t, sum.BySpatialType[t])
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
