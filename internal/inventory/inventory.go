// Package inventory holds the merged, de-duplicated view of every imported
// scan report and the operations that fold reports into it.
package inventory

import (
	"github.com/anstrom/scanfold/internal/scanning"
)

// Inventory is the accumulated set of hosts keyed by IP.
type Inventory struct {
	// Hosts in order of first appearance, at most one per IP
	Hosts []scanning.Host `json:"hosts"`
	// ScanInfo of the most recent report that carried any
	ScanInfo *scanning.ScanInfo `json:"scanInfo,omitempty"`
}

// New returns an empty inventory.
func New() *Inventory {
	return &Inventory{Hosts: []scanning.Host{}}
}

// Clone returns a deep copy.
func (inv *Inventory) Clone() *Inventory {
	c := &Inventory{
		Hosts:    make([]scanning.Host, len(inv.Hosts)),
		ScanInfo: inv.ScanInfo.Clone(),
	}
	for i := range inv.Hosts {
		c.Hosts[i] = inv.Hosts[i].Clone()
	}
	return c
}

// Len returns the number of hosts.
func (inv *Inventory) Len() int {
	return len(inv.Hosts)
}

// Host returns the host with the given IP, or nil.
func (inv *Inventory) Host(ip string) *scanning.Host {
	for i := range inv.Hosts {
		if inv.Hosts[i].IP == ip {
			return &inv.Hosts[i]
		}
	}
	return nil
}

// Normalize repairs a loaded inventory: duplicate IPs are folded, duplicate
// ports and sources dropped, casing fixed and every port reclassified.
func (inv *Inventory) Normalize() {
	hosts := inv.Hosts
	inv.Hosts = make([]scanning.Host, 0, len(hosts))

	index := make(map[string]int, len(hosts))
	for _, h := range hosts {
		h.Status = scanning.NormalizeStatus(string(h.Status))
		if h.Sources == nil {
			h.Sources = []string{}
		}

		i, seen := index[h.IP]
		if !seen {
			index[h.IP] = len(inv.Hosts)
			h.Ports, _ = uniquePorts(h.Ports)
			h.Sources = uniqueStrings(h.Sources)
			inv.Hosts = append(inv.Hosts, h)
			continue
		}

		existing := &inv.Hosts[i]
		mergePorts(existing, h.Ports)
		backfill(existing, &h)
		for _, s := range h.Sources {
			addSource(existing, s)
		}
	}
}

func uniquePorts(ports []scanning.Port) ([]scanning.Port, int) {
	out := make([]scanning.Port, 0, len(ports))
	seen := make(map[scanning.PortKey]bool, len(ports))
	skipped := 0
	for _, p := range ports {
		p = normalizePort(p)
		if seen[p.Key()] {
			skipped++
			continue
		}
		seen[p.Key()] = true
		out = append(out, p)
	}
	return out, skipped
}

func normalizePort(p scanning.Port) scanning.Port {
	p = p.Clone()
	p.Protocol = lowerOr(p.Protocol, scanning.ProtocolTCP)
	p.State = lowerOr(p.State, scanning.StateUnknown)
	if p.Scripts == nil {
		p.Scripts = []scanning.ScriptResult{}
	}
	p.Classify()
	return p
}

func uniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
