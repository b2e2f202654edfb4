package inventory

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/anstrom/scanfold/internal/scanning"
)

// SourceFile records one imported scan report.
type SourceFile struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	Format     scanning.Format `json:"format"`
	Size       int64           `json:"size"`
	Checksum   string          `json:"checksum"`
	HostCount  int             `json:"hostCount"`
	ImportedAt time.Time       `json:"importedAt"`
}

// NewSourceFile describes a report read from name.
func NewSourceFile(name string, format scanning.Format, data []byte) SourceFile {
	return SourceFile{
		ID:         uuid.New(),
		Name:       name,
		Format:     format,
		Size:       int64(len(data)),
		Checksum:   Checksum(data),
		ImportedAt: time.Now().UTC(),
	}
}

// Checksum returns the hex BLAKE2b-256 digest of data.
func Checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
