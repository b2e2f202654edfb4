package inventory

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/scanfold/internal/errors"
	"github.com/anstrom/scanfold/internal/logging"
	"github.com/anstrom/scanfold/internal/metrics"
	"github.com/anstrom/scanfold/internal/scanning"
	"github.com/anstrom/scanfold/internal/store"
)

// ErrUnknownSource is returned when removing a source that was never imported.
var ErrUnknownSource = stderrors.New("unknown source")

// Tracker owns the inventory and its source records. Every mutation runs
// under one lock and is persisted before the lock is released. Readers get
// deep copies.
type Tracker struct {
	mu      sync.RWMutex
	store   store.Store
	logger  *logging.Logger
	metrics metrics.Recorder

	inv     *Inventory
	sources []SourceFile
}

// NewTracker creates a tracker with an empty inventory. Call Load to
// restore persisted state.
func NewTracker(s store.Store, logger *logging.Logger, rec metrics.Recorder) *Tracker {
	if logger == nil {
		logger = logging.Default()
	}
	return &Tracker{
		store:   s,
		logger:  logger.WithComponent("tracker"),
		metrics: metrics.OrNoop(rec),
		inv:     New(),
		sources: []SourceFile{},
	}
}

// Load restores the inventory and source records from the store. A record
// that cannot be read or decoded is replaced by an empty default and the
// failure is returned; the tracker is usable either way.
func (t *Tracker) Load(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var failures []error

	inv := New()
	if err := t.loadRecord(ctx, store.KeyInventory, inv); err != nil {
		failures = append(failures, err)
		inv = New()
	}
	if inv.Hosts == nil {
		inv.Hosts = []scanning.Host{}
	}
	inv.Normalize()

	var sources []SourceFile
	if err := t.loadRecord(ctx, store.KeySources, &sources); err != nil {
		failures = append(failures, err)
		sources = nil
	}
	if sources == nil {
		sources = []SourceFile{}
	}

	t.inv = inv
	t.sources = sources
	t.publish()

	t.logger.Debug("Inventory loaded", "hosts", inv.Len(), "sources", len(sources))
	return stderrors.Join(failures...)
}

func (t *Tracker) loadRecord(ctx context.Context, key string, into any) error {
	data, err := t.store.Get(ctx, key)
	if err != nil {
		if store.IsNotFound(err) {
			return nil
		}
		t.logger.Warn("Failed to read stored record, using empty default", "key", key, "error", err)
		return err
	}

	if err := json.Unmarshal(data, into); err != nil {
		t.logger.Warn("Stored record is corrupt, using empty default", "key", key, "error", err)
		return errors.WrapStoreError(errors.CodeStoreRead, "get", "Failed to decode record", err).WithKey(key)
	}
	return nil
}

// Merge folds result into the inventory and records src. A source with the
// same name replaces its earlier record. The returned error, when non-nil,
// is a *errors.StoreError; the in-memory merge has happened regardless.
func (t *Tracker) Merge(ctx context.Context, result *scanning.ScanResult, src SourceFile) (MergeSummary, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	summary := t.inv.Merge(result, src.Name)

	if src.ID == uuid.Nil {
		src.ID = uuid.New()
	}
	if src.ImportedAt.IsZero() {
		src.ImportedAt = time.Now().UTC()
	}
	if result != nil {
		src.HostCount = len(result.Hosts)
	}
	t.putSource(src)

	t.publish()
	return summary, t.persist(ctx)
}

func (t *Tracker) putSource(src SourceFile) {
	for i := range t.sources {
		if t.sources[i].Name == src.Name {
			t.sources[i] = src
			return
		}
	}
	t.sources = append(t.sources, src)
}

// RemoveSource forgets the named source and the hosts only it reported.
func (t *Tracker) RemoveSource(ctx context.Context, name string) (RemoveSummary, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	known := false
	kept := make([]SourceFile, 0, len(t.sources))
	for _, s := range t.sources {
		if s.Name == name {
			known = true
			continue
		}
		kept = append(kept, s)
	}

	summary := t.inv.RemoveSource(name)
	if !known && summary.HostsRemoved == 0 && summary.HostsDetached == 0 {
		return summary, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	t.sources = kept

	t.publish()
	return summary, t.persist(ctx)
}

// Clear empties the inventory and removes both stored records.
func (t *Tracker) Clear(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.inv.Clear()
	t.sources = []SourceFile{}
	t.publish()

	for _, key := range []string{store.KeyInventory, store.KeySources} {
		if err := t.store.Delete(ctx, key); err != nil {
			se := asStoreError(err, "delete", key)
			t.logger.ErrorStore("Failed to delete record", se, "key", key)
			return se
		}
	}
	t.logger.InfoStore("Inventory cleared")
	return nil
}

// Snapshot returns a deep copy of the inventory.
func (t *Tracker) Snapshot() *Inventory {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.inv.Clone()
}

// Sources returns the imported source records in import order.
func (t *Tracker) Sources() []SourceFile {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]SourceFile, len(t.sources))
	copy(out, t.sources)
	return out
}

// HasChecksum reports whether a source with this content was imported.
func (t *Tracker) HasChecksum(sum string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := range t.sources {
		if t.sources[i].Checksum == sum {
			return true
		}
	}
	return false
}

// persist writes both records. Callers hold the lock.
func (t *Tracker) persist(ctx context.Context) error {
	if err := t.write(ctx, store.KeyInventory, t.inv); err != nil {
		return err
	}
	return t.write(ctx, store.KeySources, t.sources)
}

func (t *Tracker) write(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.WrapStoreError(errors.CodeStoreWrite, "set", "Failed to encode record", err).WithKey(key)
	}

	if err := t.store.Set(ctx, key, data); err != nil {
		se := asStoreError(err, "set", key)
		t.logger.ErrorStore("Failed to persist record", se, "key", key, "bytes", len(data))
		return se
	}
	return nil
}

// publish updates the inventory gauges. Callers hold the lock.
func (t *Tracker) publish() {
	open := 0
	for i := range t.inv.Hosts {
		open += t.inv.Hosts[i].OpenPortCount()
	}
	t.metrics.SetInventory(t.inv.Len(), open, len(t.sources))
}

func asStoreError(err error, op, key string) *errors.StoreError {
	var se *errors.StoreError
	if stderrors.As(err, &se) {
		return se
	}
	code := errors.CodeStoreWrite
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		code = errors.CodeCanceled
	}
	return errors.WrapStoreError(code, op, "Failed to write record", err).WithKey(key)
}
