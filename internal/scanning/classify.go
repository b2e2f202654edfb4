package scanning

import (
	"strings"
)

var (
	httpsIndicators = []string{"https", "ssl", "tls"}
	httpIndicators  = []string{"http", "www", "web", "apache", "nginx", "iis", "lighttpd", "tomcat"}

	wellKnownHTTPSPorts = map[uint16]bool{443: true, 8443: true, 4443: true, 9443: true}
	wellKnownHTTPPorts  = map[uint16]bool{
		80: true, 8080: true, 8000: true, 8008: true, 3000: true,
		5000: true, 8888: true, 9000: true, 9080: true,
	}
)

// Classification says whether a port speaks HTTP, HTTPS, both or neither.
// HTTPS always implies HTTP.
type Classification struct {
	HTTP  bool
	HTTPS bool
}

// Classify derives the web classification of a port from its service
// fingerprint and well-known port numbers.
func Classify(port Port) Classification {
	var name, product, extra, tunnel string
	if port.Service != nil {
		name = port.Service.Name
		product = port.Service.Product
		extra = port.Service.ExtraInfo
		tunnel = port.Service.Tunnel
	}
	text := strings.ToLower(name + " " + product + " " + extra)

	isHTTPS := containsAny(text, httpsIndicators) ||
		strings.ToLower(tunnel) == "ssl" ||
		wellKnownHTTPSPorts[port.Number]

	isHTTP := isHTTPS ||
		containsAny(text, httpIndicators) ||
		wellKnownHTTPPorts[port.Number]

	return Classification{HTTP: isHTTP, HTTPS: isHTTPS}
}

// Classify recomputes IsHTTP and IsHTTPS in place.
func (p *Port) Classify() {
	c := Classify(*p)
	p.IsHTTP = c.HTTP
	p.IsHTTPS = c.HTTPS
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
