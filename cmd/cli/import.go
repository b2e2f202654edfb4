package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/anstrom/scanfold/internal/errors"
	"github.com/anstrom/scanfold/internal/ingest"
	"github.com/anstrom/scanfold/internal/scanning"
)

var (
	importFormat    string
	importSkipKnown bool
)

// importCmd represents the import command.
var importCmd = &cobra.Command{
	Use:   "import [FILE...]",
	Short: "Import nmap reports into the inventory",
	Long: `Parse one or more nmap reports and merge them into the inventory.
The format is detected from the content and file extension unless --format
is given. A report that fails to parse is reported and skipped; the others
are still imported. Reports are merged in the order given.`,
	Example: `  scanfold import scan.xml
  scanfold import --format grepable office.txt lab.txt
  scanfold import --skip-known reports/*.gnmap`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&importFormat, "format", "f", "", "report format: auto, grepable, xml")
	importCmd.Flags().BoolVar(&importSkipKnown, "skip-known", false, "skip reports whose content was already imported")
}

func runImport(cmd *cobra.Command, args []string) error {
	return withTracker(cmd.Context(), func(ctx context.Context, s *session) error {
		cfg, err := ingest.ConfigFrom(s.config.Import)
		if err != nil {
			return err
		}
		if importFormat != "" {
			if cfg.DefaultFormat, err = scanning.ParseFormat(importFormat); err != nil {
				return err
			}
		}

		reqs := make([]ingest.Request, 0, len(args))
		for _, path := range args {
			reqs = append(reqs, ingest.Request{Path: path, SkipKnown: importSkipKnown})
		}

		ing := ingest.New(s.tracker, cfg, s.logger, s.recorder())
		outcomes := ing.IngestFiles(ctx, reqs)

		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := printJSON(out, importReport(outcomes)); err != nil {
				return err
			}
		} else {
			displayOutcomes(out, outcomes)
		}

		failed := 0
		for _, o := range outcomes {
			if o.Err != nil {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d reports could not be imported", failed, len(outcomes))
		}
		return nil
	})
}

type importResult struct {
	ingest.Outcome
	Error        string `json:"error,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	PersistError string `json:"persistError,omitempty"`
}

func importReport(outcomes []ingest.Outcome) []importResult {
	results := make([]importResult, 0, len(outcomes))
	for _, o := range outcomes {
		r := importResult{Outcome: o}
		if o.Err != nil {
			r.Error = o.Err.Error()
			r.ErrorCode = string(errors.GetCode(o.Err))
		}
		if o.PersistErr != nil {
			r.PersistError = o.PersistErr.Error()
		}
		results = append(results, r)
	}
	return results
}

func displayOutcomes(w io.Writer, outcomes []ingest.Outcome) {
	table := newTable(w, "Report", "Format", "Result", "Hosts Added", "Hosts Updated", "Ports Added")

	for i := range outcomes {
		o := &outcomes[i]
		result := "imported"
		switch {
		case o.Err != nil:
			result = "failed: " + string(errors.GetCode(o.Err))
		case o.Skipped:
			result = "skipped"
		case o.PersistErr != nil:
			result = "not saved"
		}

		_ = table.Append([]string{
			o.Name,
			orDash(string(o.Format)),
			result,
			strconv.Itoa(o.Summary.HostsAdded),
			strconv.Itoa(o.Summary.HostsUpdated),
			strconv.Itoa(o.Summary.PortsAdded),
		})
	}
	_ = table.Render()

	for i := range outcomes {
		if outcomes[i].Err != nil {
			fmt.Fprintf(w, "%s: %v\n", outcomes[i].Name, outcomes[i].Err)
		}
		persistWarning(w, outcomes[i].PersistErr)
	}
}
