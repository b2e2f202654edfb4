package scanning

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Ullaakut/nmap/v3"

	scanerrors "github.com/anstrom/scanfold/internal/errors"
)

const formatXML = "xml"

// ParseXML parses an nmap XML report. Input that is not a well-formed XML
// document fails with a MALFORMED_INPUT parse error and no partial result.
// Attribute values that do not fit their nmap types are not an error; the
// document is then read with string attributes and bad port numbers dropped.
func ParseXML(data []byte) (*ScanResult, error) {
	if err := checkWellFormed(data); err != nil {
		return nil, err
	}

	var run nmap.Run
	if err := xml.Unmarshal(data, &run); err != nil {
		return decodeLenient(data), nil
	}

	var elements serviceElements
	if err := xml.Unmarshal(data, &elements); err != nil {
		return decodeLenient(data), nil
	}
	return convertRun(&run, elements.index()), nil
}

// serviceElements records which port nodes carry a <service> child, which
// the value-typed nmap.Service cannot express.
type serviceElements struct {
	Hosts []struct {
		Ports []struct {
			Service *struct{} `xml:"service"`
		} `xml:"ports>port"`
	} `xml:"host"`
}

func (e *serviceElements) index() serviceIndex {
	idx := make(serviceIndex, len(e.Hosts))
	for i, h := range e.Hosts {
		idx[i] = make([]bool, len(h.Ports))
		for j, p := range h.Ports {
			idx[i][j] = p.Service != nil
		}
	}
	return idx
}

// serviceIndex reports, per host and port position, whether a <service>
// element was present.
type serviceIndex [][]bool

func (s serviceIndex) has(host, port int) bool {
	return host < len(s) && port < len(s[host]) && s[host][port]
}

// decodeLenient reads a well-formed document that nmap.Run rejects. A root
// element other than nmaprun yields an empty result.
func decodeLenient(data []byte) *ScanResult {
	var doc runXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return &ScanResult{Hosts: []Host{}}
	}
	return convertRun(doc.toRun())
}

func (doc *runXML) toRun() (*nmap.Run, serviceIndex) {
	run := &nmap.Run{
		Scanner:  doc.Scanner,
		Args:     doc.Args,
		StartStr: doc.StartStr,
		Version:  doc.Version,
		Hosts:    make([]nmap.Host, 0, len(doc.Hosts)),
	}
	services := make(serviceIndex, len(doc.Hosts))
	if doc.RunStats != nil {
		run.Stats.Finished.TimeStr = doc.RunStats.Finished.TimeStr
	}

	for i := range doc.Hosts {
		xh := &doc.Hosts[i]
		host := nmap.Host{Status: nmap.Status{State: xh.Status.State}}
		for _, a := range xh.Addresses {
			host.Addresses = append(host.Addresses, nmap.Address{Addr: a.Addr, AddrType: a.AddrType, Vendor: a.Vendor})
		}
		for _, h := range xh.Hostnames {
			host.Hostnames = append(host.Hostnames, nmap.Hostname{Name: h.Name})
		}

		for j := range xh.Ports {
			xp := &xh.Ports[j]
			id, err := strconv.ParseUint(strings.TrimSpace(xp.ID), 10, 16)
			if err != nil {
				continue
			}
			port := nmap.Port{
				ID:       uint16(id),
				Protocol: xp.Protocol,
				State:    nmap.State{State: xp.State.State, Reason: xp.State.Reason},
			}
			if xp.Service != nil {
				port.Service = nmap.Service{
					Name:      xp.Service.Name,
					Product:   xp.Service.Product,
					Version:   xp.Service.Version,
					ExtraInfo: xp.Service.ExtraInfo,
					Tunnel:    xp.Service.Tunnel,
					Method:    xp.Service.Method,
				}
			}
			for _, sc := range xp.Scripts {
				port.Scripts = append(port.Scripts, nmap.Script{ID: sc.ID, Output: sc.Output})
			}
			host.Ports = append(host.Ports, port)
			services[i] = append(services[i], xp.Service != nil)
		}
		run.Hosts = append(run.Hosts, host)
	}
	return run, services
}

// checkWellFormed walks every token so truncated documents are rejected
// even when the prefix decodes cleanly.
func checkWellFormed(data []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	sawElement := false
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			perr := scanerrors.ErrMalformedInput(formatXML, err)
			var syntaxErr *xml.SyntaxError
			if errors.As(err, &syntaxErr) {
				perr.Line = syntaxErr.Line
			}
			return perr
		}
		if _, ok := tok.(xml.StartElement); ok {
			sawElement = true
		}
	}
	if !sawElement {
		return scanerrors.ErrMalformedInput(formatXML, fmt.Errorf("document has no root element"))
	}
	return nil
}

func convertRun(run *nmap.Run, services serviceIndex) *ScanResult {
	result := &ScanResult{Hosts: make([]Host, 0, len(run.Hosts))}

	if run.Scanner != "" || run.Args != "" || run.StartStr != "" ||
		run.Version != "" || run.Stats.Finished.TimeStr != "" {
		scanner := run.Scanner
		if scanner == "" {
			scanner = scannerName
		}
		result.ScanInfo = &ScanInfo{
			Scanner:   scanner,
			Version:   run.Version,
			Args:      run.Args,
			StartTime: run.StartStr,
			EndTime:   run.Stats.Finished.TimeStr,
		}
	}

	for i := range run.Hosts {
		if host, ok := convertNmapHost(&run.Hosts[i], i, services); ok {
			result.Hosts = append(result.Hosts, host)
		}
	}
	return result
}

// convertNmapHost converts a host node, skipping nodes without an IP address.
func convertNmapHost(h *nmap.Host, pos int, services serviceIndex) (Host, bool) {
	host := Host{
		Status: NormalizeStatus(h.Status.State),
		Ports:  make([]Port, 0, len(h.Ports)),
	}

	for _, addr := range h.Addresses {
		switch strings.ToLower(addr.AddrType) {
		case "ipv4", "ipv6":
			if host.IP == "" {
				host.IP = addr.Addr
			}
		case "mac":
			if host.MAC == "" {
				host.MAC = addr.Addr
				host.MACVendor = addr.Vendor
			}
		}
	}
	if host.IP == "" {
		return Host{}, false
	}

	if len(h.Hostnames) > 0 {
		host.Hostname = h.Hostnames[0].Name
	}

	for j := range h.Ports {
		host.Ports = append(host.Ports, convertNmapPort(&h.Ports[j], services.has(pos, j)))
	}
	return host, true
}

func convertNmapPort(p *nmap.Port, hasService bool) Port {
	port := Port{
		Number:   p.ID,
		Protocol: normalizeProtocol(p.Protocol),
		State:    normalizeState(p.State.State),
		Reason:   p.State.Reason,
		Scripts:  make([]ScriptResult, 0, len(p.Scripts)),
	}

	if hasService {
		svc := p.Service
		port.Service = &Service{
			Name:      svc.Name,
			Product:   svc.Product,
			Version:   svc.Version,
			ExtraInfo: svc.ExtraInfo,
			Tunnel:    svc.Tunnel,
			Banner:    ComposeBanner(svc.Product, svc.Version, svc.ExtraInfo),
		}
	}

	for _, script := range p.Scripts {
		port.Scripts = append(port.Scripts, ScriptResult{ID: script.ID, Output: script.Output})
	}

	port.Classify()
	return port
}

// ComposeBanner joins the non-empty product and version and appends the
// extra info in parentheses, e.g. "nginx 1.18.0 (Ubuntu)".
func ComposeBanner(product, version, extra string) string {
	parts := make([]string, 0, 3)
	if product != "" {
		parts = append(parts, product)
	}
	if version != "" {
		parts = append(parts, version)
	}
	if extra != "" {
		parts = append(parts, "("+extra+")")
	}
	return strings.Join(parts, " ")
}

// runXML is the nmaprun document written by EncodeXML. Only the attributes
// ParseXML reads are emitted. Every attribute is a string so the same types
// can read documents with values nmap.Run cannot decode.
type runXML struct {
	XMLName  xml.Name     `xml:"nmaprun"`
	Scanner  string       `xml:"scanner,attr,omitempty"`
	Args     string       `xml:"args,attr,omitempty"`
	StartStr string       `xml:"startstr,attr,omitempty"`
	Version  string       `xml:"version,attr,omitempty"`
	Hosts    []hostXML    `xml:"host"`
	RunStats *runStatsXML `xml:"runstats,omitempty"`
}

type runStatsXML struct {
	Finished finishedXML `xml:"finished"`
}

type finishedXML struct {
	TimeStr string `xml:"timestr,attr,omitempty"`
}

// hostXML represents a scanned host for XML serialization.
type hostXML struct {
	Status    statusXML     `xml:"status"`
	Addresses []addressXML  `xml:"address"`
	Hostnames []hostnameXML `xml:"hostnames>hostname,omitempty"`
	Ports     []portXML     `xml:"ports>port,omitempty"`
}

type statusXML struct {
	State string `xml:"state,attr"`
}

type addressXML struct {
	Addr     string `xml:"addr,attr"`
	AddrType string `xml:"addrtype,attr"`
	Vendor   string `xml:"vendor,attr,omitempty"`
}

type hostnameXML struct {
	Name string `xml:"name,attr"`
}

// portXML represents a scanned port with its state, service and scripts.
type portXML struct {
	Protocol string      `xml:"protocol,attr"`
	ID       string      `xml:"portid,attr"`
	State    stateXML    `xml:"state"`
	Service  *serviceXML `xml:"service,omitempty"`
	Scripts  []scriptXML `xml:"script,omitempty"`
}

type stateXML struct {
	State  string `xml:"state,attr"`
	Reason string `xml:"reason,attr,omitempty"`
}

type serviceXML struct {
	Name      string `xml:"name,attr"`
	Product   string `xml:"product,attr,omitempty"`
	Version   string `xml:"version,attr,omitempty"`
	ExtraInfo string `xml:"extrainfo,attr,omitempty"`
	Tunnel    string `xml:"tunnel,attr,omitempty"`
	Method    string `xml:"method,attr,omitempty"`
}

type scriptXML struct {
	ID     string `xml:"id,attr"`
	Output string `xml:"output,attr"`
}

// EncodeXML serializes a result as an nmap-compatible XML document that
// ParseXML reads back into the same hosts, ports and scan info.
func EncodeXML(result *ScanResult) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("cannot encode nil result")
	}

	doc := runXML{Hosts: make([]hostXML, 0, len(result.Hosts))}
	if info := result.ScanInfo; info != nil {
		doc.Scanner = info.Scanner
		doc.Args = info.Args
		doc.StartStr = info.StartTime
		doc.Version = info.Version
		if info.EndTime != "" {
			doc.RunStats = &runStatsXML{Finished: finishedXML{TimeStr: info.EndTime}}
		}
	}

	for i := range result.Hosts {
		doc.Hosts = append(doc.Hosts, encodeHost(&result.Hosts[i]))
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	encoder := xml.NewEncoder(&buf)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode XML: %w", err)
	}
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

func encodeHost(host *Host) hostXML {
	xh := hostXML{
		Status:    statusXML{State: string(host.Status)},
		Addresses: []addressXML{{Addr: host.IP, AddrType: addrType(host.IP)}},
	}
	if host.MAC != "" {
		xh.Addresses = append(xh.Addresses, addressXML{Addr: host.MAC, AddrType: "mac", Vendor: host.MACVendor})
	}
	if host.Hostname != "" {
		xh.Hostnames = []hostnameXML{{Name: host.Hostname}}
	}

	for i := range host.Ports {
		p := &host.Ports[i]
		xp := portXML{
			Protocol: p.Protocol,
			ID:       strconv.Itoa(int(p.Number)),
			State:    stateXML{State: p.State, Reason: p.Reason},
		}
		if p.Service != nil {
			xp.Service = &serviceXML{
				Name:      p.Service.Name,
				Product:   p.Service.Product,
				Version:   p.Service.Version,
				ExtraInfo: p.Service.ExtraInfo,
				Tunnel:    p.Service.Tunnel,
			}
		}
		for _, s := range p.Scripts {
			xp.Scripts = append(xp.Scripts, scriptXML(s))
		}
		xh.Ports = append(xh.Ports, xp)
	}
	return xh
}

func addrType(ip string) string {
	if strings.Contains(ip, ":") {
		return "ipv6"
	}
	return "ipv4"
}

// SaveResults writes a result as nmap XML to filePath.
func SaveResults(result *ScanResult, filePath string) error {
	if err := validateFilePath(filePath); err != nil {
		return scanerrors.WrapFileError(scanerrors.CodeFilePermission, "Refusing to write results", filePath, err)
	}

	data, err := EncodeXML(result)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return scanerrors.WrapFileError(scanerrors.CodeFilePermission, "Failed to write results", filePath, err)
	}
	return nil
}

// LoadResults reads and parses an nmap XML report from filePath.
func LoadResults(filePath string) (*ScanResult, error) {
	if err := validateFilePath(filePath); err != nil {
		return nil, scanerrors.WrapFileError(scanerrors.CodeFilePermission, "Refusing to read results", filePath, err)
	}

	data, err := os.ReadFile(filePath) //nolint:gosec // path is validated by validateFilePath
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, scanerrors.WrapFileError(scanerrors.CodeFileNotFound, "Scan report not found", filePath, err)
		}
		return nil, scanerrors.WrapFileError(scanerrors.CodeFilePermission, "Failed to read results", filePath, err)
	}

	result, err := ParseXML(data)
	if err != nil {
		var perr *scanerrors.ParseError
		if errors.As(err, &perr) {
			perr.WithSource(filePath)
		}
		return nil, err
	}
	return result, nil
}

// validateFilePath rejects paths that escape through "..".
func validateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains directory traversal")
	}
	return nil
}
