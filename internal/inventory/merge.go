package inventory

import (
	"strings"

	"github.com/anstrom/scanfold/internal/scanning"
)

// MergeSummary counts what a merge changed.
type MergeSummary struct {
	HostsAdded   int `json:"hostsAdded"`
	HostsUpdated int `json:"hostsUpdated"`
	PortsAdded   int `json:"portsAdded"`
	PortsSkipped int `json:"portsSkipped"`
}

// RemoveSummary counts what removing a source changed.
type RemoveSummary struct {
	// HostsRemoved had no other source and were dropped
	HostsRemoved int `json:"hostsRemoved"`
	// HostsDetached kept their ports and lost only the source entry
	HostsDetached int `json:"hostsDetached"`
}

// Merge folds a scan result into the inventory under source.
//
// Hosts are matched by IP. New hosts are appended; for known hosts ports
// are unioned by (number, protocol) with the existing port winning, and
// hostname, MAC and vendor are filled only when empty. source is added to
// a host's sources at most once, so merging the same result twice changes
// nothing. ScanInfo is replaced only when the result carries one.
func (inv *Inventory) Merge(result *scanning.ScanResult, source string) MergeSummary {
	var summary MergeSummary
	if result == nil {
		return summary
	}

	index := make(map[string]int, len(inv.Hosts))
	for i := range inv.Hosts {
		index[inv.Hosts[i].IP] = i
	}

	for i := range result.Hosts {
		incoming := &result.Hosts[i]

		if pos, ok := index[incoming.IP]; ok {
			existing := &inv.Hosts[pos]
			added, skipped := mergePorts(existing, incoming.Ports)
			backfill(existing, incoming)
			addSource(existing, source)

			summary.HostsUpdated++
			summary.PortsAdded += added
			summary.PortsSkipped += skipped
			continue
		}

		host := incoming.Clone()
		host.Status = scanning.NormalizeStatus(string(host.Status))
		var skipped int
		host.Ports, skipped = uniquePorts(host.Ports)
		host.Sources = []string{source}

		index[host.IP] = len(inv.Hosts)
		inv.Hosts = append(inv.Hosts, host)

		summary.HostsAdded++
		summary.PortsAdded += len(host.Ports)
		summary.PortsSkipped += skipped
	}

	if result.ScanInfo != nil {
		inv.ScanInfo = result.ScanInfo.Clone()
	}

	return summary
}

// mergePorts appends incoming ports whose key is not already present.
func mergePorts(host *scanning.Host, incoming []scanning.Port) (added, skipped int) {
	seen := make(map[scanning.PortKey]bool, len(host.Ports)+len(incoming))
	for i := range host.Ports {
		seen[host.Ports[i].Key()] = true
	}

	for _, p := range incoming {
		p = normalizePort(p)
		if seen[p.Key()] {
			skipped++
			continue
		}
		seen[p.Key()] = true
		host.Ports = append(host.Ports, p)
		added++
	}
	return added, skipped
}

func backfill(existing, incoming *scanning.Host) {
	if existing.Hostname == "" {
		existing.Hostname = incoming.Hostname
	}
	if existing.MAC == "" {
		existing.MAC = incoming.MAC
	}
	if existing.MACVendor == "" {
		existing.MACVendor = incoming.MACVendor
	}
}

func addSource(host *scanning.Host, source string) {
	if !host.HasSource(source) {
		host.Sources = append(host.Sources, source)
	}
}

// RemoveSource forgets source. Hosts reported only by source are dropped.
// Hosts that other sources also reported keep all of their ports, since
// ports are not attributed to individual sources.
func (inv *Inventory) RemoveSource(source string) RemoveSummary {
	var summary RemoveSummary

	kept := inv.Hosts[:0]
	for _, h := range inv.Hosts {
		if len(h.Sources) == 1 && h.Sources[0] == source {
			summary.HostsRemoved++
			continue
		}
		if h.HasSource(source) {
			h.Sources = without(h.Sources, source)
			summary.HostsDetached++
		}
		kept = append(kept, h)
	}

	// Zero the tail so dropped hosts can be collected.
	for i := len(kept); i < len(inv.Hosts); i++ {
		inv.Hosts[i] = scanning.Host{}
	}
	inv.Hosts = kept

	return summary
}

// Clear drops every host and the scan info.
func (inv *Inventory) Clear() {
	inv.Hosts = []scanning.Host{}
	inv.ScanInfo = nil
}

func without(list []string, drop string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != drop {
			out = append(out, s)
		}
	}
	return out
}

func lowerOr(s, fallback string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return fallback
	}
	return s
}
