package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anstrom/scanfold/internal/export"
)

var (
	exportOutput string
	exportDir    string
)

// exportCmd represents the export command.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export per-port host lists",
	Long: `Write one text file per open port listing the IP addresses that have it
open, named <port>-<protocol>-hosts.txt. By default the files are bundled in a
zip archive; --dir writes them loose into a directory instead.`,
	Example: `  scanfold export
  scanfold export --output lab-ports.zip
  scanfold export --dir ./lists`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "archive path (default from export.archive_name)")
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "write the lists into this directory instead of an archive")
	exportCmd.MarkFlagsMutuallyExclusive("output", "dir")
}

func runExport(cmd *cobra.Command, _ []string) error {
	return withTracker(cmd.Context(), func(_ context.Context, s *session) error {
		lists := export.PortLists(s.tracker.Snapshot().Hosts)
		out := cmd.OutOrStdout()

		if len(lists) == 0 {
			fmt.Fprintln(out, "No open ports to export")
			return nil
		}

		if exportDir != "" {
			paths, err := export.WriteDir(exportDir, lists)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out, paths)
			}
			fmt.Fprintf(out, "Wrote %d port list(s) to %s\n", len(paths), exportDir)
			return nil
		}

		path := exportOutput
		if path == "" {
			path = s.config.Export.ArchiveName
		}
		if path == "" {
			path = export.DefaultArchiveName
		}
		if err := export.WriteZipFile(path, lists); err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(out, map[string]any{"archive": path, "lists": lists})
		}
		fmt.Fprintf(out, "Wrote %d port list(s) to %s\n", len(lists), path)
		return nil
	})
}
