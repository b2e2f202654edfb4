package store

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"

	"github.com/anstrom/scanfold/internal/errors"
)

const (
	storeDirPerm  = 0o750
	storeFilePerm = 0o600
	fileExt       = ".json"
)

// File stores each key as a JSON document in a directory. Writes go to a
// temporary file that is renamed into place.
type File struct {
	dir string
}

// NewFile creates the directory if needed and returns a file store over it.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.ErrConfigMissing("store.path")
	}
	if err := os.MkdirAll(dir, storeDirPerm); err != nil {
		return nil, errors.WrapStoreError(errors.CodeStoreConnection, "open", "Failed to create store directory", err)
	}
	return &File{dir: dir}, nil
}

// Dir returns the directory backing the store.
func (f *File) Dir() string {
	return f.dir
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, key+fileExt)
}

func (f *File) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, readError(key, err)
	}

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, notFound(key)
		}
		return nil, readError(key, err)
	}
	return data, nil
}

func (f *File) Set(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return writeError("set", key, err)
	}

	tmp, err := os.CreateTemp(f.dir, "."+key+"-*.tmp")
	if err != nil {
		return writeError("set", key, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		cleanup()
		return writeError("set", key, err)
	}
	if err := tmp.Chmod(storeFilePerm); err != nil {
		_ = tmp.Close()
		cleanup()
		return writeError("set", key, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return writeError("set", key, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		cleanup()
		return writeError("set", key, err)
	}
	return nil
}

func (f *File) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(f.path(key)); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return writeError("delete", key, err)
	}
	return nil
}

func (f *File) Close() error {
	return nil
}
