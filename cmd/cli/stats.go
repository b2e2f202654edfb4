package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/anstrom/scanfold/internal/inventory"
)

// statsCmd represents the stats command.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the inventory",
	Long:  `Show host, port and service counts for the merged inventory.`,
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

type statsReport struct {
	inventory.Stats
	Sources  int    `json:"sources"`
	Scanner  string `json:"scanner,omitempty"`
	Version  string `json:"version,omitempty"`
	LastScan string `json:"lastScan,omitempty"`
}

func runStats(cmd *cobra.Command, _ []string) error {
	return withTracker(cmd.Context(), func(_ context.Context, s *session) error {
		snap := s.tracker.Snapshot()
		report := statsReport{
			Stats:   inventory.ComputeStats(snap.Hosts),
			Sources: len(s.tracker.Sources()),
		}
		if snap.ScanInfo != nil {
			report.Scanner = snap.ScanInfo.Scanner
			report.Version = snap.ScanInfo.Version
			report.LastScan = snap.ScanInfo.StartTime
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), report)
		}
		displayStats(cmd.OutOrStdout(), report)
		return nil
	})
}

func displayStats(w io.Writer, r statsReport) {
	table := newTable(w, "Metric", "Value")
	rows := [][]string{
		{"Total hosts", strconv.Itoa(r.TotalHosts)},
		{"Hosts up", strconv.Itoa(r.HostsUp)},
		{"Hosts down", strconv.Itoa(r.HostsDown)},
		{"Open ports", strconv.Itoa(r.TotalOpenPorts)},
		{"Unique services", strconv.Itoa(r.UniqueServices)},
		{"Imported reports", strconv.Itoa(r.Sources)},
	}
	for _, row := range rows {
		_ = table.Append(row)
	}
	_ = table.Render()

	if r.Scanner != "" {
		fmt.Fprintf(w, "\nLast scan: %s %s %s\n", r.Scanner, r.Version, r.LastScan)
	}
}
