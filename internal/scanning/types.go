package scanning

import (
	"strings"
)

// HostStatus is the reachability state reported for a host.
type HostStatus string

const (
	StatusUp      HostStatus = "up"
	StatusDown    HostStatus = "down"
	StatusUnknown HostStatus = "unknown"
)

// NormalizeStatus maps a raw status string onto the known host states.
func NormalizeStatus(raw string) HostStatus {
	switch HostStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusUp:
		return StatusUp
	case StatusDown:
		return StatusDown
	default:
		return StatusUnknown
	}
}

// Port states and protocols seen in scan reports.
const (
	StateOpen     = "open"
	StateClosed   = "closed"
	StateFiltered = "filtered"
	StateUnknown  = "unknown"

	ProtocolTCP = "tcp"
	ProtocolUDP = "udp"
)

// ScanResult is the normalized output of parsing one scan report.
type ScanResult struct {
	// Hosts in order of first appearance in the report
	Hosts []Host `json:"hosts"`
	// ScanInfo describes the scanner run, nil when the report carried none
	ScanInfo *ScanInfo `json:"scanInfo,omitempty"`
}

// ScanInfo is best-effort metadata about the scanner run. Empty fields are absent.
type ScanInfo struct {
	Scanner   string `json:"scanner"`
	Version   string `json:"version,omitempty"`
	Args      string `json:"args"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
}

// Host is one scanned endpoint, keyed by IP.
type Host struct {
	// IP is the IPv4 or IPv6 address of the host
	IP string `json:"ip"`
	// Hostname is the first reported name, empty when unknown
	Hostname  string     `json:"hostname,omitempty"`
	Status    HostStatus `json:"status"`
	MAC       string     `json:"mac,omitempty"`
	MACVendor string     `json:"macVendor,omitempty"`
	// Ports holds at most one entry per (number, protocol)
	Ports []Port `json:"ports"`
	// Sources lists the scan files that contributed this host
	Sources []string `json:"sources,omitempty"`
}

// Port is one observed service endpoint on a host.
type Port struct {
	Number   uint16         `json:"number"`
	Protocol string         `json:"protocol"`
	State    string         `json:"state"`
	Reason   string         `json:"reason"`
	Service  *Service       `json:"service,omitempty"`
	Scripts  []ScriptResult `json:"scripts"`
	// IsHTTP and IsHTTPS are derived by Classify and never read from input.
	IsHTTP  bool `json:"isHttp"`
	IsHTTPS bool `json:"isHttps"`
}

// Service is the fingerprint of whatever answered on a port.
type Service struct {
	Name      string `json:"name"`
	Product   string `json:"product"`
	Version   string `json:"version"`
	ExtraInfo string `json:"extrainfo"`
	Tunnel    string `json:"tunnel"`
	// Banner is a human-readable summary of product, version and extra info
	Banner string `json:"banner"`
}

// ScriptResult is opaque NSE script output.
type ScriptResult struct {
	ID     string `json:"id"`
	Output string `json:"output"`
}

// PortKey identifies a port within a host.
type PortKey struct {
	Number   uint16
	Protocol string
}

// Key returns the identity of the port within its host.
func (p *Port) Key() PortKey {
	return PortKey{Number: p.Number, Protocol: p.Protocol}
}

// IsOpen reports whether the port was seen open.
func (p *Port) IsOpen() bool {
	return p.State == StateOpen
}

// ServiceName returns the service name or an empty string.
func (p *Port) ServiceName() string {
	if p.Service == nil {
		return ""
	}
	return p.Service.Name
}

// Clone returns a deep copy of the port.
func (p Port) Clone() Port {
	if p.Service != nil {
		svc := *p.Service
		p.Service = &svc
	}
	if p.Scripts != nil {
		scripts := make([]ScriptResult, len(p.Scripts))
		copy(scripts, p.Scripts)
		p.Scripts = scripts
	}
	return p
}

// Clone returns a deep copy of the host.
func (h Host) Clone() Host {
	if h.Ports != nil {
		ports := make([]Port, len(h.Ports))
		for i := range h.Ports {
			ports[i] = h.Ports[i].Clone()
		}
		h.Ports = ports
	}
	if h.Sources != nil {
		sources := make([]string, len(h.Sources))
		copy(sources, h.Sources)
		h.Sources = sources
	}
	return h
}

// HasSource reports whether source contributed this host.
func (h *Host) HasSource(source string) bool {
	for _, s := range h.Sources {
		if s == source {
			return true
		}
	}
	return false
}

// FindPort returns the port with the given key, or nil.
func (h *Host) FindPort(key PortKey) *Port {
	for i := range h.Ports {
		if h.Ports[i].Key() == key {
			return &h.Ports[i]
		}
	}
	return nil
}

// OpenPortCount returns the number of ports in the open state.
func (h *Host) OpenPortCount() int {
	count := 0
	for i := range h.Ports {
		if h.Ports[i].IsOpen() {
			count++
		}
	}
	return count
}

// Clone returns a deep copy of the scan info, nil-safe.
func (s *ScanInfo) Clone() *ScanInfo {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func normalizeProtocol(raw string) string {
	p := strings.ToLower(strings.TrimSpace(raw))
	if p == "" {
		return ProtocolTCP
	}
	return p
}

func normalizeState(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return StateUnknown
	}
	return s
}
