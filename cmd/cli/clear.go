package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var clearYes bool

// clearCmd represents the clear command.
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the inventory and all import records",
	Long: `Remove every host and every import record from the store. This cannot
be undone; pass --yes to confirm.`,
	Example: `  scanfold clear --yes`,
	Args:    cobra.NoArgs,
	RunE:    runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)

	clearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "confirm deleting the inventory")
}

func runClear(cmd *cobra.Command, _ []string) error {
	if !clearYes {
		return fmt.Errorf("refusing to clear the inventory without --yes")
	}

	return withTracker(cmd.Context(), func(ctx context.Context, s *session) error {
		hosts := s.tracker.Snapshot().Len()
		sources := len(s.tracker.Sources())
		if err := s.tracker.Clear(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d host(s) from %d report(s)\n", hosts, sources)
		return nil
	})
}
