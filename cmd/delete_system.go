package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var deleteSystemCmd = &cobra.Command{
	Use:   "delete-system <number>",
	Short: "Delete a gondola system that nothing references",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("system number %q: %w", args[0], err)
		}

		s, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		sys, err := s.GetGondolaSystemByNumber(cmd.Context(), number)
		if err != nil {
			return err
		}
		if err := s.DeleteGondolaSystem(cmd.Context(), sys.ID); err != nil {
			return err
		}
		fmt.Printf("Deleted gondola system %d (%s)\n", number, sys.Name)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteSystemCmd)
}
