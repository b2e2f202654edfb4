// Package export groups open ports into per-port host lists and writes
// them as text files, either loose in a directory or bundled in a zip.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/anstrom/scanfold/internal/errors"
	"github.com/anstrom/scanfold/internal/scanning"
)

// DefaultArchiveName is used when no archive name is configured.
const DefaultArchiveName = "ports-export.zip"

// archiveEpoch is the earliest time the zip format represents.
var archiveEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// PortList is the set of hosts that have one port open.
type PortList struct {
	Port     uint16   `json:"port"`
	Protocol string   `json:"protocol"`
	IPs      []string `json:"ips"`
}

// FileName returns the name of the text file holding this list.
func (l PortList) FileName() string {
	return fmt.Sprintf("%d-%s-hosts.txt", l.Port, l.Protocol)
}

// Content returns the IPs one per line.
func (l PortList) Content() string {
	return strings.Join(l.IPs, "\n")
}

// PortLists builds one list per distinct open (number, protocol), sorted by
// port number and then protocol. IPs keep their first-seen order.
func PortLists(hosts []scanning.Host) []PortList {
	byKey := make(map[scanning.PortKey]*PortList)
	seen := make(map[scanning.PortKey]map[string]bool)

	for i := range hosts {
		h := &hosts[i]
		for j := range h.Ports {
			p := &h.Ports[j]
			if !p.IsOpen() {
				continue
			}
			key := p.Key()
			list, ok := byKey[key]
			if !ok {
				list = &PortList{Port: key.Number, Protocol: key.Protocol}
				byKey[key] = list
				seen[key] = make(map[string]bool)
			}
			if !seen[key][h.IP] {
				seen[key][h.IP] = true
				list.IPs = append(list.IPs, h.IP)
			}
		}
	}

	lists := make([]PortList, 0, len(byKey))
	for _, l := range byKey {
		lists = append(lists, *l)
	}
	sort.Slice(lists, func(i, j int) bool {
		if lists[i].Port != lists[j].Port {
			return lists[i].Port < lists[j].Port
		}
		return lists[i].Protocol < lists[j].Protocol
	})
	return lists
}

// WriteZip writes every list into a zip archive on w. Entries carry a
// fixed timestamp so equal inventories produce identical archives.
func WriteZip(w io.Writer, lists []PortList) error {
	zw := zip.NewWriter(w)

	for _, l := range lists {
		h := &zip.FileHeader{
			Name:   l.FileName(),
			Method: zip.Deflate,
		}
		h.Modified = archiveEpoch

		fw, err := zw.CreateHeader(h)
		if err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", l.FileName(), err)
		}
		if _, err := io.WriteString(fw, l.Content()); err != nil {
			return fmt.Errorf("failed to write %s: %w", l.FileName(), err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

// WriteZipFile creates path and writes the archive into it.
func WriteZipFile(path string, lists []PortList) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.WrapFileError(errors.CodeFilePermission, "Failed to create archive", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.WrapFileError(errors.CodeFilePermission, "Failed to close archive", path, cerr)
		}
	}()

	return WriteZip(f, lists)
}

// WriteDir writes each list as its own file under dir, creating dir if
// needed. It returns the paths written.
func WriteDir(dir string, lists []PortList) ([]string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.WrapFileError(errors.CodeFilePermission, "Failed to create export directory", dir, err)
	}

	paths := make([]string, 0, len(lists))
	for _, l := range lists {
		path := filepath.Join(dir, l.FileName())
		if err := os.WriteFile(path, []byte(l.Content()), 0o600); err != nil {
			return paths, errors.WrapFileError(errors.CodeFilePermission, "Failed to write export file", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
