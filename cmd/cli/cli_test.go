package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/scanfold/internal/config"
	"github.com/anstrom/scanfold/internal/inventory"
	"github.com/anstrom/scanfold/internal/scanning"
)

const testGrepable = "# Nmap 7.94 scan initiated Mon Jan  1 10:00:00 2024 as: nmap -sV -oG lab.gnmap 10.0.0.0/24\n" +
	"Host: 10.0.0.1 (router.local)\tPorts: 22/open/tcp//ssh//OpenSSH 8.4/, 80/open/tcp//http//nginx 1.18.0/\n" +
	"Host: 10.0.0.7 ()\tStatus: Down\n"

const testXML = `<?xml version="1.0"?>
<nmaprun scanner="nmap" args="nmap -sV 10.0.0.2" version="7.94">
  <host>
    <status state="up"/>
    <address addr="10.0.0.2" addrtype="ipv4"/>
    <ports>
      <port protocol="tcp" portid="443">
        <state state="open" reason="syn-ack"/>
        <service name="https" product="nginx" version="1.18.0"/>
      </port>
      <port protocol="tcp" portid="80">
        <state state="open" reason="syn-ack"/>
        <service name="http"/>
      </port>
    </ports>
  </host>
</nmaprun>
`

type testEnv struct {
	dir        string
	configPath string
	textfile   string
}

// newTestEnv writes a config pointing the file store at a temp directory.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		textfile:   filepath.Join(dir, "scanfold.prom"),
	}

	cfg := fmt.Sprintf(`store:
  backend: file
  path: %s
import:
  parallelism: 2
logging:
  level: error
metrics:
  enabled: true
  textfile_path: %s
`, filepath.Join(dir, "state"), env.textfile)
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0o600))
	return env
}

func (e *testEnv) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// run executes the root command with a fresh flag state.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func (e *testEnv) importSamples(t *testing.T) {
	t.Helper()
	gnmap := e.write(t, "lab.gnmap", testGrepable)
	xmlPath := e.write(t, "web.xml", testXML)
	_, err := e.run(t, "import", gnmap, xmlPath)
	require.NoError(t, err)
}

func TestImportAndListHosts(t *testing.T) {
	env := newTestEnv(t)
	gnmap := env.write(t, "lab.gnmap", testGrepable)
	xmlPath := env.write(t, "web.xml", testXML)

	out, err := env.run(t, "import", gnmap, xmlPath)
	require.NoError(t, err)
	assert.Contains(t, out, "lab.gnmap")
	assert.Contains(t, out, "imported")

	out, err = env.run(t, "hosts", "--json")
	require.NoError(t, err)

	var hosts []scanning.Host
	require.NoError(t, json.Unmarshal([]byte(out), &hosts))
	require.Len(t, hosts, 3)
	assert.Equal(t, "10.0.0.1", hosts[0].IP)
	assert.Equal(t, "router.local", hosts[0].Hostname)
	assert.Equal(t, []string{"lab.gnmap"}, hosts[0].Sources)
	assert.Equal(t, "10.0.0.2", hosts[2].IP)

	out, err = env.run(t, "hosts", "--status", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 2 host(s)")
	assert.NotContains(t, out, "10.0.0.7")
}

func TestImportReportsFailures(t *testing.T) {
	env := newTestEnv(t)
	broken := env.write(t, "broken.xml", "<nmaprun><host>")
	good := env.write(t, "lab.gnmap", testGrepable)

	out, err := env.run(t, "import", "--json", broken, good)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 reports")

	var results []importResult
	dec := json.NewDecoder(strings.NewReader(out))
	require.NoError(t, dec.Decode(&results))
	require.Len(t, results, 2)
	assert.Equal(t, "MALFORMED_INPUT", results[0].ErrorCode)
	assert.Empty(t, results[1].ErrorCode)
	assert.Equal(t, 2, results[1].Summary.HostsAdded)

	out, err = env.run(t, "sources", "--json")
	require.NoError(t, err)
	var sources []inventory.SourceFile
	require.NoError(t, json.Unmarshal([]byte(out), &sources))
	require.Len(t, sources, 1)
	assert.Equal(t, "lab.gnmap", sources[0].Name)
	assert.Equal(t, scanning.FormatGrepable, sources[0].Format)
}

func TestImportForcedFormat(t *testing.T) {
	env := newTestEnv(t)
	path := env.write(t, "report.txt", testXML)

	_, err := env.run(t, "import", "--format", "grepable", path)
	require.NoError(t, err, "grepable parsing skips unrecognized lines")

	out, err := env.run(t, "stats", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"totalHosts": 0`)

	_, err = env.run(t, "import", "--format", "csv", path)
	assert.Error(t, err)
}

func TestPortsAndURLs(t *testing.T) {
	env := newTestEnv(t)
	env.importSamples(t)

	out, err := env.run(t, "urls")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"http://router.local",
		"https://10.0.0.2",
		"http://10.0.0.2",
	}, strings.Split(strings.TrimSpace(out), "\n"))

	out, err = env.run(t, "ports", "--json", "--web")
	require.NoError(t, err)
	var ports []inventory.HostPort
	require.NoError(t, json.Unmarshal([]byte(out), &ports))
	assert.Len(t, ports, 3)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	env.importSamples(t)

	out, err := env.run(t, "stats", "--json")
	require.NoError(t, err)

	var report statsReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.TotalHosts)
	assert.Equal(t, 2, report.HostsUp)
	assert.Equal(t, 1, report.HostsDown)
	assert.Equal(t, 4, report.TotalOpenPorts)
	assert.Equal(t, 3, report.UniqueServices)
	assert.Equal(t, 2, report.Sources)
	assert.Equal(t, "7.94", report.Version)
}

func TestSourcesRemove(t *testing.T) {
	env := newTestEnv(t)
	env.importSamples(t)

	out, err := env.run(t, "sources", "remove", "lab.gnmap")
	require.NoError(t, err)
	assert.Contains(t, out, "2 host(s) dropped")

	out, err = env.run(t, "hosts", "--json")
	require.NoError(t, err)
	var hosts []scanning.Host
	require.NoError(t, json.Unmarshal([]byte(out), &hosts))
	require.Len(t, hosts, 1)
	assert.Equal(t, "10.0.0.2", hosts[0].IP)

	_, err = env.run(t, "sources", "remove", "lab.gnmap")
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)
	env.importSamples(t)

	dir := filepath.Join(env.dir, "lists")
	_, err := env.run(t, "export", "--dir", dir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "80-tcp-hosts.txt"))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1\n10.0.0.2", string(data))

	archive := filepath.Join(env.dir, "out.zip")
	_, err = env.run(t, "export", "--output", archive)
	require.NoError(t, err)
	assert.FileExists(t, archive)
}

func TestDumpRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.importSamples(t)

	out, err := env.run(t, "dump")
	require.NoError(t, err)

	result, err := scanning.ParseXML([]byte(out))
	require.NoError(t, err)
	assert.Len(t, result.Hosts, 3)

	dumped := filepath.Join(env.dir, "merged.xml")
	_, err = env.run(t, "dump", "--output", dumped)
	require.NoError(t, err)

	fresh := newTestEnv(t)
	_, err = fresh.run(t, "import", dumped)
	require.NoError(t, err)
	out, err = fresh.run(t, "stats", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"totalOpenPorts": 4`)
}

func TestClear(t *testing.T) {
	env := newTestEnv(t)
	env.importSamples(t)

	_, err := env.run(t, "clear")
	require.Error(t, err, "clear needs confirmation")

	out, err := env.run(t, "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 3 host(s) from 2 report(s)")

	out, err = env.run(t, "hosts")
	require.NoError(t, err)
	assert.Contains(t, out, "No hosts found")
}

func TestWatchOnce(t *testing.T) {
	env := newTestEnv(t)
	reports := filepath.Join(env.dir, "reports")
	require.NoError(t, os.Mkdir(reports, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(reports, "lab.gnmap"), []byte(testGrepable), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(reports, "notes.txt"), []byte("ignored"), 0o600))

	out, err := env.run(t, "watch", "--dir", reports, "--once")
	require.NoError(t, err)
	assert.Contains(t, out, "Scanned 1 file(s): 1 imported, 0 skipped, 0 failed")

	out, err = env.run(t, "watch", "--dir", reports, "--once", "--patterns", "*.gnmap, *.txt")
	require.NoError(t, err)
	assert.Contains(t, out, "Scanned 2 file(s): 0 imported, 1 skipped, 1 failed")
}

func TestStoreFlagOverridesConfig(t *testing.T) {
	env := newTestEnv(t)
	env.importSamples(t)

	out, err := env.run(t, "--store", "memory", "stats", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"totalHosts": 0`, "memory store starts empty")

	other := filepath.Join(env.dir, "other-state")
	out, err = env.run(t, "--store-path", other, "hosts")
	require.NoError(t, err)
	assert.Contains(t, out, "No hosts found")
}

func TestMetricsTextfile(t *testing.T) {
	env := newTestEnv(t)
	env.importSamples(t)

	data, err := os.ReadFile(env.textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `scanfold_ingest_files_total{format="xml",status="success"} 1`)
	assert.Contains(t, string(data), "scanfold_inventory_hosts 3")
}

func TestBuildHostFilter(t *testing.T) {
	defer func() { hostsStatus, hostsPort, hostsSource = "", 0, "" }()

	hostsStatus = "UP"
	hostsPort = 443
	filter, err := buildHostFilter()
	require.NoError(t, err)
	assert.Equal(t, inventory.HostFilter{Status: scanning.StatusUp, Port: 443}, filter)

	hostsStatus = "sleeping"
	_, err = buildHostFilter()
	assert.Error(t, err)
}

func TestServiceLabel(t *testing.T) {
	tests := []struct {
		name     string
		port     scanning.Port
		expected string
	}{
		{"no service", scanning.Port{}, ""},
		{"name only", scanning.Port{Service: &scanning.Service{Name: "ssh"}}, "ssh"},
		{"with banner", scanning.Port{Service: &scanning.Service{Name: "http", Banner: "nginx 1.18.0"}}, "http nginx 1.18.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, serviceLabel(&tt.port))
		})
	}
}

func TestWatchConfigPatterns(t *testing.T) {
	defer func() { watchPatterns, watchDir = "", "" }()

	cfg := config.Default()
	watchDir = "/srv/reports"
	watchPatterns = " *.xml ,, *.gnmap "
	wc := watchConfig(&session{config: cfg})
	assert.Equal(t, "/srv/reports", wc.Directory)
	assert.Equal(t, []string{"*.xml", "*.gnmap"}, wc.Patterns)
	assert.Equal(t, cfg.Watch.Schedule, wc.Schedule)
}

func TestSetVersion(t *testing.T) {
	defer SetVersion("dev", "none", "unknown")

	SetVersion("1.2.3", "abc123", "2024-01-01")
	assert.Equal(t, "1.2.3 (commit: abc123, built: 2024-01-01)", rootCmd.Version)
}
