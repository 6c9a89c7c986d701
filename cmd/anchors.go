package cmd

import (
	"fmt"

	"github.com/Archerevan-01fischb/MW-website/internal/anchor"
	"github.com/Archerevan-01fischb/MW-website/internal/tilegrid"
	"github.com/spf13/cobra"
)

var (
	anchorEdge string
	anchorList bool
)

var anchorsCmd = &cobra.Command{
	Use:   "anchors",
	Short: "Resolve (or list) stitching anchors along a tile edge",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := tilegrid.ParseEdge(anchorEdge)
		if err != nil {
			return err
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		if anchorList {
			anchors, err := s.ListAnchorsByEdge(cmd.Context(), e.String())
			if err != nil {
				return err
			}
			for _, a := range anchors {
				fmt.Printf("%-40s %-18s tile1=%s tile2=%s\n", a.AnchorID, a.Kind, a.Tile1ID, a.Tile2ID)
			}
			fmt.Printf("%d anchors on %s\n", len(anchors), e)
			return nil
		}

		r := &anchor.Resolver{
			Store:     s,
			Grid:      tileGrid(),
			Tolerance: cfg.Anchors.Tolerance,
			Margin:    cfg.Anchors.Margin,
			Log:       logger,
		}
		res, err := r.ResolveAnchor(cmd.Context(), e.String(), e.Tile1ID, e.Tile2ID)
		if err != nil {
			return err
		}
		for _, a := range res.Anchors {
			logVerbose("  %s (%s)", a.AnchorID, a.Kind)
		}
		fmt.Printf("Edge %s: %d settlement pairs, %d orphans, %d cable lines\n", e, res.Pairs, res.Orphans, res.Cables)
		return nil
	},
}

func init() {
	anchorsCmd.Flags().StringVar(&anchorEdge, "edge", "", "Edge descriptor, e.g. G8_BOTTOM-H8_TOP")
	anchorsCmd.Flags().BoolVar(&anchorList, "list", false, "List stored anchors instead of resolving")
	anchorsCmd.MarkFlagRequired("edge")
	rootCmd.AddCommand(anchorsCmd)
}
