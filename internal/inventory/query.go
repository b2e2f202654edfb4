package inventory

import (
	"github.com/anstrom/scanfold/internal/scanning"
)

// HostPort pairs an open port with the host it was found on.
type HostPort struct {
	Host scanning.Host `json:"host"`
	Port scanning.Port `json:"port"`
}

// WebURL is a browsable address derived from an HTTP-like port.
type WebURL struct {
	IP   string `json:"ip"`
	Port uint16 `json:"port"`
	URL  string `json:"url"`
}

// Stats summarizes an inventory.
type Stats struct {
	TotalHosts     int `json:"totalHosts"`
	HostsUp        int `json:"hostsUp"`
	HostsDown      int `json:"hostsDown"`
	TotalOpenPorts int `json:"totalOpenPorts"`
	UniqueServices int `json:"uniqueServices"`
}

// HostFilter selects hosts. Zero fields match everything.
type HostFilter struct {
	Status scanning.HostStatus
	// Port matches hosts with this port number open on any protocol
	Port   uint16
	Source string
}

// Matches reports whether h passes every set criterion.
func (f HostFilter) Matches(h *scanning.Host) bool {
	if f.Status != "" && h.Status != f.Status {
		return false
	}
	if f.Source != "" && !h.HasSource(f.Source) {
		return false
	}
	if f.Port != 0 {
		for i := range h.Ports {
			if h.Ports[i].Number == f.Port && h.Ports[i].IsOpen() {
				return true
			}
		}
		return false
	}
	return true
}

// HostsUp returns the hosts whose status is up.
func HostsUp(hosts []scanning.Host) []scanning.Host {
	return FilterHosts(hosts, HostFilter{Status: scanning.StatusUp})
}

// FilterHosts returns the hosts matching f, in inventory order.
func FilterHosts(hosts []scanning.Host, f HostFilter) []scanning.Host {
	out := []scanning.Host{}
	for i := range hosts {
		if f.Matches(&hosts[i]) {
			out = append(out, hosts[i])
		}
	}
	return out
}

// OpenPorts lists every open port with its owning host.
func OpenPorts(hosts []scanning.Host) []HostPort {
	out := []HostPort{}
	for _, h := range hosts {
		for _, p := range h.Ports {
			if p.IsOpen() {
				out = append(out, HostPort{Host: h, Port: p})
			}
		}
	}
	return out
}

// WebURLs derives a URL for every open HTTP-like port.
func WebURLs(hosts []scanning.Host) []WebURL {
	out := []WebURL{}
	for _, hp := range OpenPorts(hosts) {
		if !hp.Port.IsHTTP {
			continue
		}
		if u, ok := scanning.WebURL(hp.Host, hp.Port); ok {
			out = append(out, WebURL{IP: hp.Host.IP, Port: hp.Port.Number, URL: u})
		}
	}
	return out
}

// ComputeStats counts hosts, open ports and distinct service names.
func ComputeStats(hosts []scanning.Host) Stats {
	stats := Stats{TotalHosts: len(hosts)}
	services := make(map[string]struct{})

	for i := range hosts {
		h := &hosts[i]
		if h.Status == scanning.StatusUp {
			stats.HostsUp++
		}
		for j := range h.Ports {
			p := &h.Ports[j]
			if !p.IsOpen() {
				continue
			}
			stats.TotalOpenPorts++
			if name := p.ServiceName(); name != "" {
				services[name] = struct{}{}
			}
		}
	}

	stats.HostsDown = stats.TotalHosts - stats.HostsUp
	stats.UniqueServices = len(services)
	return stats
}
