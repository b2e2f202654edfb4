package scanning

import (
	"net"
	"strconv"
	"strings"
)

const (
	defaultHTTPPort  = 80
	defaultHTTPSPort = 443
)

// WebURL builds the URL for a web port on a host. It returns false when the
// port is not classified as HTTP. The hostname is preferred over the IP and
// the port is omitted when it matches the scheme default.
func WebURL(host Host, port Port) (string, bool) {
	if !port.IsHTTP {
		return "", false
	}

	scheme, defaultPort := "http", uint16(defaultHTTPPort)
	if port.IsHTTPS {
		scheme, defaultPort = "https", defaultHTTPSPort
	}

	address := host.Hostname
	if address == "" {
		address = host.IP
	}

	if port.Number == defaultPort {
		if strings.Contains(address, ":") {
			address = "[" + address + "]"
		}
		return scheme + "://" + address, true
	}
	return scheme + "://" + net.JoinHostPort(address, strconv.Itoa(int(port.Number))), true
}
