// Package store persists the inventory and its source-file records as
// opaque documents under fixed keys. Backends are interchangeable behind
// the Store interface.
package store

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/anstrom/scanfold/internal/config"
	"github.com/anstrom/scanfold/internal/errors"
	"github.com/anstrom/scanfold/internal/logging"
	"github.com/anstrom/scanfold/internal/metrics"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/anstrom/scanfold/internal/store Store

// Record keys.
const (
	// KeyInventory holds the merged inventory document.
	KeyInventory = "scanData"
	// KeySources holds the list of imported scan files.
	KeySources = "uploadedFiles"
)

// ErrNotFound is wrapped by every backend when a key has no value.
var ErrNotFound = stderrors.New("record not found")

// Store is a small key/value document store.
type Store interface {
	// Get returns the value stored under key, or an error wrapping
	// ErrNotFound when there is none.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases backend resources.
	Close() error
}

// IsNotFound reports whether err means the key had no value.
func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound)
}

func notFound(key string) error {
	err := errors.ErrRecordNotFound(key)
	err.Cause = ErrNotFound
	return err
}

func readError(key string, err error) error {
	return errors.WrapStoreError(errors.CodeStoreRead, "get", "Failed to read record", err).WithKey(key)
}

func writeError(op, key string, err error) error {
	return errors.WrapStoreError(errors.CodeStoreWrite, op, "Failed to write record", err).WithKey(key)
}

// Open builds the backend named by cfg and applies the size limit.
func Open(ctx context.Context, cfg config.StoreConfig, logger *logging.Logger, rec metrics.Recorder) (Store, error) {
	if logger == nil {
		logger = logging.Default()
	}

	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case config.BackendMemory:
		s = NewMemory()
	case config.BackendFile, "":
		s, err = NewFile(cfg.Path)
	case config.BackendPostgres:
		s, err = NewPostgres(ctx, cfg.Postgres)
	case config.BackendRedis:
		s, err = NewRedis(ctx, cfg.Redis)
	default:
		return nil, errors.ErrConfigInvalid("store.backend", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	logger.InfoStore("Store opened", "backend", backendName(cfg.Backend), "max_bytes", cfg.MaxBytes)

	if cfg.MaxBytes > 0 {
		s = WithQuota(s, cfg.MaxBytes)
	}
	if rec != nil {
		s = Instrument(s, rec)
	}
	return s, nil
}

func backendName(backend string) string {
	if backend == "" {
		return config.BackendFile
	}
	return backend
}

// validateKey rejects keys that cannot be used as file or row names.
func validateKey(key string) error {
	if key == "" {
		return errors.NewStoreError(errors.CodeValidation, "Empty record key")
	}
	for _, r := range key {
		if r == '/' || r == '\\' || r == 0 {
			return errors.NewStoreError(errors.CodeValidation,
				fmt.Sprintf("Invalid character %q in record key", r)).WithKey(key)
		}
	}
	if key == "." || key == ".." {
		return errors.NewStoreError(errors.CodeValidation, "Invalid record key").WithKey(key)
	}
	return nil
}
