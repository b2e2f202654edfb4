package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anstrom/scanfold/internal/scanning"
)

var dumpOutput string

// dumpCmd represents the dump command.
var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Write the merged inventory as an nmap XML report",
	Long: `Write the whole inventory as a single nmap XML document. The output can
be imported again, or fed to other tools that read nmap XML. With --json the
inventory is written in its stored JSON form instead.`,
	Example: `  scanfold dump > merged.xml
  scanfold dump --output merged.xml
  scanfold dump --json`,
	Args: cobra.NoArgs,
	RunE: runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().StringVarP(&dumpOutput, "output", "o", "", "write to this file instead of stdout")
}

func runDump(cmd *cobra.Command, _ []string) error {
	return withTracker(cmd.Context(), func(_ context.Context, s *session) error {
		snap := s.tracker.Snapshot()
		out := cmd.OutOrStdout()

		if jsonOutput {
			return printJSON(out, snap)
		}

		result := &scanning.ScanResult{Hosts: snap.Hosts, ScanInfo: snap.ScanInfo}
		if dumpOutput != "" {
			if err := scanning.SaveResults(result, dumpOutput); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d host(s) to %s\n", len(result.Hosts), dumpOutput)
			return nil
		}

		data, err := scanning.EncodeXML(result)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	})
}
