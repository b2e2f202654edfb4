package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anstrom/scanfold/internal/inventory"
	"github.com/anstrom/scanfold/internal/scanning"
)

var (
	hostsStatus string
	hostsPort   uint16
	hostsSource string
)

// hostsCmd represents the hosts command.
var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List hosts in the inventory",
	Long: `List the hosts in the merged inventory. Hosts can be filtered by
status, by an open port number, or by the report that contributed them.`,
	Example: `  scanfold hosts
  scanfold hosts --status up
  scanfold hosts --port 443
  scanfold hosts --source office.xml --json`,
	Args: cobra.NoArgs,
	RunE: runHosts,
}

func init() {
	rootCmd.AddCommand(hostsCmd)

	hostsCmd.Flags().StringVar(&hostsStatus, "status", "", "Filter by host status: up, down, unknown")
	hostsCmd.Flags().Uint16Var(&hostsPort, "port", 0, "Show only hosts with this port open")
	hostsCmd.Flags().StringVar(&hostsSource, "source", "", "Show only hosts reported by this source")
}

func buildHostFilter() (inventory.HostFilter, error) {
	filter := inventory.HostFilter{Port: hostsPort, Source: hostsSource}
	if hostsStatus != "" {
		status := scanning.NormalizeStatus(hostsStatus)
		if string(status) != strings.ToLower(strings.TrimSpace(hostsStatus)) {
			return filter, fmt.Errorf("invalid status '%s'. Valid statuses: up, down, unknown", hostsStatus)
		}
		filter.Status = status
	}
	return filter, nil
}

func runHosts(cmd *cobra.Command, _ []string) error {
	filter, err := buildHostFilter()
	if err != nil {
		return err
	}

	return withTracker(cmd.Context(), func(_ context.Context, s *session) error {
		hosts := inventory.FilterHosts(s.tracker.Snapshot().Hosts, filter)
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), hosts)
		}
		displayHosts(cmd.OutOrStdout(), hosts)
		return nil
	})
}

func displayHosts(w io.Writer, hosts []scanning.Host) {
	if len(hosts) == 0 {
		fmt.Fprintln(w, "No hosts found matching the specified criteria")
		return
	}

	fmt.Fprintf(w, "Found %d host(s):\n\n", len(hosts))
	table := newTable(w, "IP Address", "Hostname", "Status", "MAC", "Vendor", "Open Ports", "Sources")

	for i := range hosts {
		host := &hosts[i]
		_ = table.Append([]string{
			host.IP,
			orDash(host.Hostname),
			string(host.Status),
			orDash(host.MAC),
			orDash(host.MACVendor),
			strconv.Itoa(host.OpenPortCount()),
			strings.Join(host.Sources, ", "),
		})
	}
	_ = table.Render()

	upCount := 0
	for i := range hosts {
		if hosts[i].Status == scanning.StatusUp {
			upCount++
		}
	}
	fmt.Fprintf(w, "\nSummary: %d up, %d down\n", upCount, len(hosts)-upCount)
}
