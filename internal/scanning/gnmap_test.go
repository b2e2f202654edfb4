package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGrepable = `# Nmap 7.94 scan initiated Mon Jan  1 10:00:00 2024 as: nmap -sV -oG scan.gnmap 10.0.0.0/24
Host: 10.0.0.1 (router.local)	Status: Up
Host: 10.0.0.1 (router.local)	Ports: 22/open/tcp//ssh//OpenSSH 8.4/, 80/open/tcp//http//nginx 1.18.0/	Ignored State: closed (998)
Host: 10.0.0.7 ()	Status: Down
# Nmap done at Mon Jan  1 10:05:00 2024 -- 256 IP addresses (2 hosts up) scanned in 300.00 seconds
`

func TestParseGrepable(t *testing.T) {
	result, err := ParseGrepable([]byte(sampleGrepable))
	require.NoError(t, err)
	require.Len(t, result.Hosts, 2)

	router := result.Hosts[0]
	assert.Equal(t, "10.0.0.1", router.IP)
	assert.Equal(t, "router.local", router.Hostname)
	assert.Equal(t, StatusUp, router.Status)
	require.Len(t, router.Ports, 2)

	ssh := router.Ports[0]
	assert.Equal(t, uint16(22), ssh.Number)
	assert.Equal(t, "tcp", ssh.Protocol)
	assert.Equal(t, "open", ssh.State)
	require.NotNil(t, ssh.Service)
	assert.Equal(t, "ssh", ssh.Service.Name)
	assert.Equal(t, "OpenSSH", ssh.Service.Product)
	assert.Equal(t, "8.4", ssh.Service.Version)
	assert.Equal(t, "OpenSSH 8.4", ssh.Service.Banner)
	assert.False(t, ssh.IsHTTP)

	web := router.Ports[1]
	assert.Equal(t, uint16(80), web.Number)
	require.NotNil(t, web.Service)
	assert.Equal(t, "http", web.Service.Name)
	assert.True(t, web.IsHTTP)
	assert.False(t, web.IsHTTPS)

	down := result.Hosts[1]
	assert.Equal(t, "10.0.0.7", down.IP)
	assert.Empty(t, down.Hostname)
	assert.Equal(t, StatusDown, down.Status)
	assert.Empty(t, down.Ports)

	require.NotNil(t, result.ScanInfo)
	assert.Equal(t, "nmap", result.ScanInfo.Scanner)
	assert.Equal(t, "7.94", result.ScanInfo.Version)
	assert.Equal(t, "Mon Jan  1 10:00:00 2024", result.ScanInfo.StartTime)
	assert.Equal(t, "nmap -sV -oG scan.gnmap 10.0.0.0/24", result.ScanInfo.Args)
	assert.Equal(t, "Mon Jan  1 10:05:00 2024", result.ScanInfo.EndTime)
}

func TestParseGrepableSingleLine(t *testing.T) {
	line := "Host: 10.0.0.1 (router.local)\tPorts: 22/open/tcp//ssh//OpenSSH 8.4/, 80/open/tcp//http//nginx 1.18.0/"

	result, err := ParseGrepable([]byte(line))
	require.NoError(t, err)
	require.Len(t, result.Hosts, 1)
	require.Len(t, result.Hosts[0].Ports, 2)
	assert.Nil(t, result.ScanInfo)

	assert.Equal(t, "nginx", result.Hosts[0].Ports[1].Service.Product)
	assert.Equal(t, "1.18.0", result.Hosts[0].Ports[1].Service.Version)
}

func TestParseGrepableVersionWithCommas(t *testing.T) {
	line := "Host: 192.168.1.5 ()\tPorts: 25/open/tcp//smtp//Postfix smtpd, ESMTP, PIPELINING/, 110/open/tcp//pop3///"

	result, err := ParseGrepable([]byte(line))
	require.NoError(t, err)
	require.Len(t, result.Hosts, 1)

	ports := result.Hosts[0].Ports
	require.Len(t, ports, 2, "commas not followed by a digit stay inside the entry")
	assert.Equal(t, uint16(25), ports[0].Number)
	assert.Equal(t, "Postfix smtpd, ESMTP, PIPELINING", ports[0].Service.Banner)
	assert.Equal(t, uint16(110), ports[1].Number)
	assert.Equal(t, "pop3", ports[1].Service.Name)
	assert.Empty(t, ports[1].Service.Banner)
}

func TestParseGrepableSkipsMalformed(t *testing.T) {
	input := `garbage line without host token
Host: 10.0.0.9 (box)	Ports: abc/open/tcp//http///, 70000/open/tcp//http///, 443/open/tcp//https///, 8/x
Host: not-an-ip
`
	result, err := ParseGrepable([]byte(input))
	require.NoError(t, err)
	require.Len(t, result.Hosts, 1)

	ports := result.Hosts[0].Ports
	require.Len(t, ports, 1)
	assert.Equal(t, uint16(443), ports[0].Number)
	assert.True(t, ports[0].IsHTTPS)
}

func TestParseGrepableDefaults(t *testing.T) {
	line := "Host: 10.0.0.2 ()\tPorts: 53//udp, 161/open//"

	result, err := ParseGrepable([]byte(line))
	require.NoError(t, err)
	require.Len(t, result.Hosts, 1)
	ports := result.Hosts[0].Ports
	require.Len(t, ports, 2)

	assert.Equal(t, "unknown", ports[0].State)
	assert.Equal(t, "udp", ports[0].Protocol)
	assert.Nil(t, ports[0].Service, "no service without a service name")
	assert.Equal(t, "tcp", ports[1].Protocol)
	assert.NotNil(t, ports[1].Scripts)
}

func TestParseGrepableIntraParseMerge(t *testing.T) {
	input := `Host: 10.0.0.3 ()	Ports: 22/open/tcp//ssh///
Host: 10.0.0.4 (other)	Ports: 21/open/tcp//ftp///
Host: 10.0.0.3 (late.name)	Ports: 22/closed/tcp//ssh///, 22/open/udp//ssh///
`
	result, err := ParseGrepable([]byte(input))
	require.NoError(t, err)
	require.Len(t, result.Hosts, 2)

	first := result.Hosts[0]
	assert.Equal(t, "10.0.0.3", first.IP)
	assert.Equal(t, "late.name", first.Hostname, "hostname backfilled when absent")
	require.Len(t, first.Ports, 2)
	assert.Equal(t, "open", first.Ports[0].State, "first-seen port wins")
	assert.Equal(t, "udp", first.Ports[1].Protocol)

	assert.Equal(t, "10.0.0.4", result.Hosts[1].IP)
}

func TestParseGrepableIPv6(t *testing.T) {
	line := "Host: fe80::1 (v6.local)\tPorts: 443/open/tcp//https///"

	result, err := ParseGrepable([]byte(line))
	require.NoError(t, err)
	require.Len(t, result.Hosts, 1)
	assert.Equal(t, "fe80::1", result.Hosts[0].IP)
}

func TestParseGrepableComments(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected *ScanInfo
	}{
		{
			name:     "non-nmap comment ignored",
			input:    "# just a note\n",
			expected: nil,
		},
		{
			name:     "unrecognized nmap comment falls back to args",
			input:    "# Nmap something unusual\n",
			expected: &ScanInfo{Scanner: "nmap", Args: "Nmap something unusual"},
		},
		{
			name: "unrecognized nmap comment keeps header",
			input: "# Nmap 7.94 scan initiated Mon Jan  1 10:00:00 2024 as: nmap -oG - 10.0.0.1\n" +
				"# Nmap something unusual\n" +
				"# Nmap done at Mon Jan  1 10:05:00 2024 -- 1 IP address (1 host up)\n",
			expected: &ScanInfo{
				Scanner:   "nmap",
				Version:   "7.94",
				StartTime: "Mon Jan  1 10:00:00 2024",
				Args:      "nmap -oG - 10.0.0.1",
				EndTime:   "Mon Jan  1 10:05:00 2024",
			},
		},
		{
			name:     "done line without header",
			input:    "# Nmap done at Tue Feb  2 11:00:00 2024 -- 1 IP address (1 host up)\n",
			expected: &ScanInfo{Scanner: "nmap", EndTime: "Tue Feb  2 11:00:00 2024"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseGrepable([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.ScanInfo)
			assert.Empty(t, result.Hosts)
		})
	}
}

func TestParseGrepableEmpty(t *testing.T) {
	result, err := ParseGrepable(nil)
	require.NoError(t, err)
	assert.Empty(t, result.Hosts)
	assert.Nil(t, result.ScanInfo)
}

func TestSplitVersionField(t *testing.T) {
	tests := []struct {
		field                   string
		product, version, extra string
	}{
		{"OpenSSH 8.4p1 Debian 5", "OpenSSH", "8.4", "p1 Debian 5"},
		{"nginx 1.18.0", "nginx", "1.18.0", ""},
		{"Microsoft IIS httpd", "Microsoft IIS httpd", "", ""},
		{"", "", "", ""},
		{"2.4.1 build", "", "2.4.1", "build"},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			product, version, extra := splitVersionField(tt.field)
			assert.Equal(t, tt.product, product)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, tt.extra, extra)
		})
	}
}
