// Package scanning turns nmap reports into normalized scan results.
//
// Two report formats are understood: the grepable format written by
// `nmap -oG` and the XML format written by `nmap -oX`. Both parsers produce
// the same ScanResult model of hosts, ports, services and script output.
//
// # Parsing
//
// ParseGrepable is best-effort. Lines that do not match the host grammar and
// port entries with a non-numeric port are skipped, and repeated lines for
// the same IP are folded into one host.
//
// ParseXML is strict. A document that is not well-formed XML fails with a
// MALFORMED_INPUT parse error and yields no partial result.
//
// DetectFormat sniffs the leading lines of a report and falls back to the
// file extension. ParserFor returns the Parser for a concrete Format.
//
// # Classification
//
// Every parsed port is passed through Classify, which marks HTTP and HTTPS
// endpoints from service fingerprints and well-known port numbers. HTTPS
// always implies HTTP. WebURL builds the browsable URL for such a port.
//
// # Serialization
//
// EncodeXML and SaveResults write a result back out as nmap-compatible XML
// that ParseXML reads into an equal result.
package scanning
