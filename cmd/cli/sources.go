package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/anstrom/scanfold/internal/inventory"
)

// sourcesCmd represents the sources command.
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List imported reports",
	Long: `List the reports that have been imported, with their format, size,
content checksum and the number of hosts each one contained.`,
	Example: `  scanfold sources
  scanfold sources remove office.xml`,
	Args: cobra.NoArgs,
	RunE: runSources,
}

// sourcesRemoveCmd represents the sources remove command.
var sourcesRemoveCmd = &cobra.Command{
	Use:   "remove [NAME]",
	Short: "Remove an imported report from the inventory",
	Long: `Forget an imported report. Hosts that only this report contained are
removed. Hosts that other reports also contained stay, with all of their
ports, since ports are not tracked per report.`,
	Example: `  scanfold sources remove office.xml`,
	Args:    cobra.ExactArgs(1),
	RunE:    runSourcesRemove,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
	sourcesCmd.AddCommand(sourcesRemoveCmd)
}

func runSources(cmd *cobra.Command, _ []string) error {
	return withTracker(cmd.Context(), func(_ context.Context, s *session) error {
		sources := s.tracker.Sources()
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), sources)
		}
		displaySources(cmd.OutOrStdout(), sources)
		return nil
	})
}

func displaySources(w io.Writer, sources []inventory.SourceFile) {
	if len(sources) == 0 {
		fmt.Fprintln(w, "No reports imported yet")
		return
	}

	table := newTable(w, "ID", "Name", "Format", "Size", "Hosts", "Checksum", "Imported")
	for i := range sources {
		src := &sources[i]

		checksum := src.Checksum
		if len(checksum) > 12 {
			checksum = checksum[:12] + "..."
		}

		_ = table.Append([]string{
			src.ID.String()[:8],
			src.Name,
			string(src.Format),
			strconv.FormatInt(src.Size, 10),
			strconv.Itoa(src.HostCount),
			checksum,
			src.ImportedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	_ = table.Render()
}

func runSourcesRemove(cmd *cobra.Command, args []string) error {
	name := args[0]

	return withTracker(cmd.Context(), func(ctx context.Context, s *session) error {
		summary, err := s.tracker.RemoveSource(ctx, name)
		if stderrors.Is(err, inventory.ErrUnknownSource) {
			return fmt.Errorf("no imported report named %q", name)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if jerr := printJSON(out, summary); jerr != nil {
				return jerr
			}
		} else {
			fmt.Fprintf(out, "Removed %s: %d host(s) dropped, %d host(s) kept from other reports\n",
				name, summary.HostsRemoved, summary.HostsDetached)
		}
		persistWarning(cmd.ErrOrStderr(), err)
		return nil
	})
}
