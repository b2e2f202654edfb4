package scanning

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	scanerrors "github.com/anstrom/scanfold/internal/errors"
)

// Format names an nmap report format.
type Format string

const (
	FormatAuto     Format = "auto"
	FormatGrepable Format = "grepable"
	FormatXML      Format = "xml"
)

// sniffLines bounds how many non-blank lines DetectFormat inspects.
const sniffLines = 5

// ParseFormat maps a user-supplied format name onto a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return FormatAuto, nil
	case "grepable", "gnmap", "grep", "greppable":
		return FormatGrepable, nil
	case "xml":
		return FormatXML, nil
	default:
		return "", scanerrors.NewParseError(scanerrors.CodeUnsupportedFormat, name,
			fmt.Sprintf("Unknown report format %q", name))
	}
}

// DetectFormat picks a format from the content of a report, falling back to
// the file extension of name.
func DetectFormat(name string, data []byte) (Format, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	inspected := 0
	for scanner.Scan() && inspected < sniffLines {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		inspected++

		switch {
		case strings.HasPrefix(line, "<?xml"),
			strings.HasPrefix(line, "<!DOCTYPE"),
			strings.HasPrefix(line, "<nmaprun"):
			return FormatXML, nil
		case strings.HasPrefix(line, nmapCommentStart),
			strings.HasPrefix(line, "Host:"):
			return FormatGrepable, nil
		}
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".xml":
		return FormatXML, nil
	case ".gnmap", ".grep":
		return FormatGrepable, nil
	}

	return "", scanerrors.ErrUnsupportedFormat(name)
}

// Parser turns the raw bytes of a report into a ScanResult.
type Parser interface {
	Parse(data []byte) (*ScanResult, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(data []byte) (*ScanResult, error)

// Parse calls f(data).
func (f ParserFunc) Parse(data []byte) (*ScanResult, error) {
	return f(data)
}

// ParserFor returns the parser for a concrete format.
func ParserFor(format Format) (Parser, error) {
	switch format {
	case FormatGrepable:
		return ParserFunc(ParseGrepable), nil
	case FormatXML:
		return ParserFunc(ParseXML), nil
	default:
		return nil, scanerrors.NewParseError(scanerrors.CodeUnsupportedFormat, string(format),
			"No parser for report format")
	}
}

// Parse detects the format when format is FormatAuto and parses data.
func Parse(name string, format Format, data []byte) (*ScanResult, Format, error) {
	if format == FormatAuto || format == "" {
		detected, err := DetectFormat(name, data)
		if err != nil {
			return nil, "", err
		}
		format = detected
	}

	parser, err := ParserFor(format)
	if err != nil {
		return nil, "", err
	}

	result, err := parser.Parse(data)
	if err != nil {
		recordSource(err, name)
		return nil, format, err
	}
	return result, format, nil
}

// recordSource names the input on a parse error anywhere in err's chain,
// unless it already carries a source.
func recordSource(err error, name string) {
	var perr *scanerrors.ParseError
	if errors.As(err, &perr) && perr.Source == "" {
		perr.WithSource(name)
	}
}
