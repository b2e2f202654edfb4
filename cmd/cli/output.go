package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/anstrom/scanfold/internal/errors"
	"github.com/anstrom/scanfold/internal/scanning"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTable creates a table on w with the given header.
func newTable(w io.Writer, header ...any) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.Header(header...)
	return table
}

// persistWarning prints a store failure that did not undo the change.
func persistWarning(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "Warning: changes are kept for this run but were not saved (%s): %v\n",
		errors.GetCode(err), err)
}

func portLabel(p *scanning.Port) string {
	return strconv.Itoa(int(p.Number)) + "/" + p.Protocol
}

func serviceLabel(p *scanning.Port) string {
	if p.Service == nil {
		return ""
	}
	if p.Service.Banner != "" {
		return strings.TrimSpace(p.Service.Name + " " + p.Service.Banner)
	}
	return p.Service.Name
}

func webLabel(p *scanning.Port) string {
	switch {
	case p.IsHTTPS:
		return "https"
	case p.IsHTTP:
		return "http"
	default:
		return ""
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
