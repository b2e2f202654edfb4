package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/anstrom/scanfold/internal/inventory"
)

var portsWebOnly bool

// portsCmd represents the ports command.
var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List open ports across all hosts",
	Long: `List every open port in the inventory with the host it was found on,
the service fingerprint, and whether it was classified as a web port.`,
	Example: `  scanfold ports
  scanfold ports --web
  scanfold ports --json`,
	Args: cobra.NoArgs,
	RunE: runPorts,
}

// urlsCmd represents the urls command.
var urlsCmd = &cobra.Command{
	Use:   "urls",
	Short: "List web service URLs",
	Long: `Print a URL for every open port classified as HTTP or HTTPS. The
hostname is used when known, and default ports are left out.`,
	Example: `  scanfold urls
  scanfold urls --json`,
	Args: cobra.NoArgs,
	RunE: runURLs,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(urlsCmd)

	portsCmd.Flags().BoolVar(&portsWebOnly, "web", false, "Show only ports classified as HTTP or HTTPS")
}

func runPorts(cmd *cobra.Command, _ []string) error {
	return withTracker(cmd.Context(), func(_ context.Context, s *session) error {
		ports := inventory.OpenPorts(s.tracker.Snapshot().Hosts)
		if portsWebOnly {
			web := ports[:0]
			for _, hp := range ports {
				if hp.Port.IsHTTP {
					web = append(web, hp)
				}
			}
			ports = web
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), ports)
		}
		displayPorts(cmd.OutOrStdout(), ports)
		return nil
	})
}

func displayPorts(w io.Writer, ports []inventory.HostPort) {
	if len(ports) == 0 {
		fmt.Fprintln(w, "No open ports found")
		return
	}

	table := newTable(w, "IP Address", "Hostname", "Port", "Service", "Web")
	for i := range ports {
		hp := &ports[i]
		_ = table.Append([]string{
			hp.Host.IP,
			orDash(hp.Host.Hostname),
			portLabel(&hp.Port),
			orDash(serviceLabel(&hp.Port)),
			orDash(webLabel(&hp.Port)),
		})
	}
	_ = table.Render()
}

func runURLs(cmd *cobra.Command, _ []string) error {
	return withTracker(cmd.Context(), func(_ context.Context, s *session) error {
		urls := inventory.WebURLs(s.tracker.Snapshot().Hosts)
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), urls)
		}
		for _, u := range urls {
			fmt.Fprintln(cmd.OutOrStdout(), u.URL)
		}
		return nil
	})
}
