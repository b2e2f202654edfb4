package scanning

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

const (
	scannerName      = "nmap"
	nmapCommentStart = "# Nmap"
	downMarker       = "Status: Down"
	minPortFields    = 3
)

var (
	hostPattern     = regexp.MustCompile(`Host:\s+([0-9A-Fa-f.:]+)\s+\(([^)]*)\)`)
	portsPattern    = regexp.MustCompile(`Ports:\s+([^\t]+)`)
	entrySeparator  = regexp.MustCompile(`,\s+\d`)
	versionPattern  = regexp.MustCompile(`^([^\d]*)([\d.]+)?(.*)$`)
	initiatedHeader = regexp.MustCompile(`^# Nmap (\S+) scan initiated (.+?) as: (.*)$`)
	doneHeader      = regexp.MustCompile(`^# Nmap done at (.+?) --`)
)

// ParseGrepable parses nmap grepable (-oG) output. Lines that do not match
// the host grammar are skipped, so the error is always nil.
func ParseGrepable(data []byte) (*ScanResult, error) {
	g := &grepableParser{index: make(map[string]int)}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), len(data)+1)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#"):
			g.comment(line)
		default:
			g.hostLine(line)
		}
	}

	return &ScanResult{Hosts: g.hosts, ScanInfo: g.info}, nil
}

type grepableParser struct {
	hosts []Host
	index map[string]int
	info  *ScanInfo
}

func (g *grepableParser) comment(line string) {
	if !strings.HasPrefix(line, nmapCommentStart) {
		return
	}

	if m := initiatedHeader.FindStringSubmatch(line); m != nil {
		g.info = &ScanInfo{
			Scanner:   scannerName,
			Version:   m[1],
			StartTime: m[2],
			Args:      m[3],
		}
		return
	}

	if m := doneHeader.FindStringSubmatch(line); m != nil {
		if g.info == nil {
			g.info = &ScanInfo{Scanner: scannerName}
		}
		g.info.EndTime = m[1]
		return
	}

	// Other nmap comments only describe the scan when no header was seen.
	if g.info != nil {
		return
	}
	g.info = &ScanInfo{
		Scanner: scannerName,
		Args:    strings.TrimSpace(strings.TrimLeft(line, "# ")),
	}
}

func (g *grepableParser) hostLine(line string) {
	m := hostPattern.FindStringSubmatch(line)
	if m == nil {
		return
	}

	host := Host{
		IP:       m[1],
		Hostname: strings.TrimSpace(m[2]),
		Status:   StatusUp,
		Ports:    []Port{},
	}
	if strings.Contains(line, downMarker) {
		host.Status = StatusDown
	}

	if pm := portsPattern.FindStringSubmatch(line); pm != nil {
		for _, entry := range splitPortEntries(pm[1]) {
			if port, ok := parsePortEntry(entry); ok {
				host.Ports = append(host.Ports, port)
			}
		}
	}

	g.add(host)
}

// add folds a host into the result, keeping first-seen ports.
func (g *grepableParser) add(host Host) {
	i, seen := g.index[host.IP]
	if !seen {
		g.index[host.IP] = len(g.hosts)
		g.hosts = append(g.hosts, host)
		return
	}

	existing := &g.hosts[i]
	for _, p := range host.Ports {
		if existing.FindPort(p.Key()) == nil {
			existing.Ports = append(existing.Ports, p)
		}
	}
	if existing.Hostname == "" {
		existing.Hostname = host.Hostname
	}
}

// splitPortEntries splits on a comma followed by whitespace and a digit,
// leaving commas inside version strings alone.
func splitPortEntries(list string) []string {
	var entries []string
	start := 0
	for _, loc := range entrySeparator.FindAllStringIndex(list, -1) {
		entries = append(entries, list[start:loc[0]])
		start = loc[1] - 1
	}
	entries = append(entries, list[start:])
	return entries
}

func parsePortEntry(entry string) (Port, bool) {
	fields := strings.Split(strings.TrimSpace(entry), "/")
	if len(fields) < minPortFields {
		return Port{}, false
	}
	field := func(i int) string {
		if i < len(fields) {
			return strings.TrimSpace(fields[i])
		}
		return ""
	}

	number, err := strconv.ParseUint(field(0), 10, 16)
	if err != nil {
		return Port{}, false
	}

	port := Port{
		Number:   uint16(number),
		State:    normalizeState(field(1)),
		Protocol: normalizeProtocol(field(2)),
		Scripts:  []ScriptResult{},
	}

	if name := field(4); name != "" {
		banner := field(6)
		product, version, extra := splitVersionField(banner)
		port.Service = &Service{
			Name:      name,
			Product:   product,
			Version:   version,
			ExtraInfo: extra,
			Banner:    banner,
		}
	}

	port.Classify()
	return port, true
}

// splitVersionField splits "OpenSSH 8.4p1 Debian" into product, dotted
// version and trailing text.
func splitVersionField(field string) (product, version, extra string) {
	if field == "" {
		return "", "", ""
	}
	m := versionPattern.FindStringSubmatch(field)
	if m == nil {
		return field, "", ""
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), strings.TrimSpace(m[3])
}
