package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var (
	findTile string
	findX    int
	findY    int
)

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "Look up the settlement at a tile pixel",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		st, err := s.FindSettlementByLocation(cmd.Context(), findTile, findX, findY)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	},
}

func init() {
	findCmd.Flags().StringVar(&findTile, "tile", "", "Tile id, e.g. B10")
	findCmd.Flags().IntVar(&findX, "x", 0, "Pixel x within the tile")
	findCmd.Flags().IntVar(&findY, "y", 0, "Pixel y within the tile")
	findCmd.MarkFlagRequired("tile")
	rootCmd.AddCommand(findCmd)
}
