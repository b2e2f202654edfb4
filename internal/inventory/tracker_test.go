package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/anstrom/scanfold/internal/errors"
	"github.com/anstrom/scanfold/internal/logging"
	"github.com/anstrom/scanfold/internal/scanning"
	"github.com/anstrom/scanfold/internal/store"
	"github.com/anstrom/scanfold/internal/store/mocks"
)

type gaugeRecorder struct {
	hosts, openPorts, sources int
}

func (g *gaugeRecorder) IncrementIngestFiles(string, string) {}
func (g *gaugeRecorder) RecordIngestDuration(string, time.Duration) {}
func (g *gaugeRecorder) AddIngestHosts(string, int) {}
func (g *gaugeRecorder) AddIngestPorts(string, int) {}
func (g *gaugeRecorder) RecordStoreOperation(string, time.Duration, error) {}
func (g *gaugeRecorder) SetInventory(hosts, openPorts, sources int) {
	g.hosts, g.openPorts, g.sources = hosts, openPorts, sources
}

func sampleResult() *scanning.ScanResult {
	return &scanning.ScanResult{Hosts: []scanning.Host{
		hostWith("10.0.0.1", openPort(22, "tcp", "ssh"), openPort(80, "tcp", "http")),
		hostWith("10.0.0.2", openPort(443, "tcp", "https")),
	}}
}

func TestTrackerMergePersists(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	rec := &gaugeRecorder{}
	tr := NewTracker(s, logging.NewDiscard(), rec)

	src := NewSourceFile("scan.xml", scanning.FormatXML, []byte("<nmaprun/>"))
	summary, err := tr.Merge(ctx, sampleResult(), src)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.HostsAdded)

	assert.Equal(t, gaugeRecorder{hosts: 2, openPorts: 3, sources: 1}, *rec)

	reloaded := NewTracker(s, logging.NewDiscard(), nil)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, tr.Snapshot(), reloaded.Snapshot())

	sources := reloaded.Sources()
	require.Len(t, sources, 1)
	assert.Equal(t, src.ID, sources[0].ID)
	assert.Equal(t, "scan.xml", sources[0].Name)
	assert.Equal(t, 2, sources[0].HostCount)
	assert.True(t, reloaded.HasChecksum(src.Checksum))
	assert.False(t, reloaded.HasChecksum(Checksum([]byte("other"))))
}

func TestTrackerReimportReplacesRecord(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(store.NewMemory(), logging.NewDiscard(), nil)

	_, err := tr.Merge(ctx, sampleResult(), NewSourceFile("scan.xml", scanning.FormatXML, []byte("v1")))
	require.NoError(t, err)
	_, err = tr.Merge(ctx, sampleResult(), NewSourceFile("other.gnmap", scanning.FormatGrepable, []byte("x")))
	require.NoError(t, err)
	second := NewSourceFile("scan.xml", scanning.FormatXML, []byte("v2"))
	_, err = tr.Merge(ctx, sampleResult(), second)
	require.NoError(t, err)

	sources := tr.Sources()
	require.Len(t, sources, 2)
	assert.Equal(t, second.ID, sources[0].ID, "record replaced in place")
	assert.Equal(t, "other.gnmap", sources[1].Name)
	assert.False(t, tr.HasChecksum(Checksum([]byte("v1"))))
}

func TestTrackerFillsMissingRecordFields(t *testing.T) {
	tr := NewTracker(store.NewMemory(), logging.NewDiscard(), nil)
	_, err := tr.Merge(context.Background(), sampleResult(), SourceFile{Name: "bare"})
	require.NoError(t, err)

	src := tr.Sources()[0]
	assert.NotEqual(t, uuid.Nil, src.ID)
	assert.False(t, src.ImportedAt.IsZero())
}

func TestTrackerSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(store.NewMemory(), logging.NewDiscard(), nil)
	_, err := tr.Merge(context.Background(), sampleResult(), SourceFile{Name: "a"})
	require.NoError(t, err)

	snap := tr.Snapshot()
	snap.Hosts[0].IP = "mutated"
	snap.Hosts[0].Ports[0].Service.Name = "mutated"

	again := tr.Snapshot()
	assert.Equal(t, "10.0.0.1", again.Hosts[0].IP)
	assert.Equal(t, "ssh", again.Hosts[0].Ports[0].Service.Name)
}

func TestTrackerRemoveSource(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	tr := NewTracker(s, logging.NewDiscard(), nil)

	_, err := tr.Merge(ctx, sampleResult(), SourceFile{Name: "a"})
	require.NoError(t, err)
	_, err = tr.Merge(ctx, &scanning.ScanResult{Hosts: []scanning.Host{hostWith("10.0.0.2")}}, SourceFile{Name: "b"})
	require.NoError(t, err)

	summary, err := tr.RemoveSource(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, RemoveSummary{HostsRemoved: 1, HostsDetached: 1}, summary)
	require.Len(t, tr.Sources(), 1)
	assert.Equal(t, "b", tr.Sources()[0].Name)

	reloaded := NewTracker(s, logging.NewDiscard(), nil)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, 1, reloaded.Snapshot().Len())

	_, err = tr.RemoveSource(ctx, "never-imported")
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestTrackerClear(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	tr := NewTracker(s, logging.NewDiscard(), nil)

	_, err := tr.Merge(ctx, sampleResult(), SourceFile{Name: "a"})
	require.NoError(t, err)
	require.NoError(t, tr.Clear(ctx))

	assert.Equal(t, 0, tr.Snapshot().Len())
	assert.Empty(t, tr.Sources())
	assert.Equal(t, 0, s.Keys())
}

func TestTrackerLoadMissingRecords(t *testing.T) {
	tr := NewTracker(store.NewMemory(), logging.NewDiscard(), nil)
	require.NoError(t, tr.Load(context.Background()))
	assert.Equal(t, 0, tr.Snapshot().Len())
	assert.NotNil(t, tr.Sources())
}

func TestTrackerLoadCorruptRecord(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.Set(ctx, store.KeyInventory, []byte("{not json")))
	require.NoError(t, s.Set(ctx, store.KeySources, []byte(`[{"name":"kept.xml"}]`)))

	tr := NewTracker(s, logging.NewDiscard(), nil)
	err := tr.Load(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeStoreRead))

	assert.Equal(t, 0, tr.Snapshot().Len(), "corrupt inventory is replaced by an empty one")
	require.Len(t, tr.Sources(), 1, "readable records still load")
	assert.Equal(t, "kept.xml", tr.Sources()[0].Name)
}

func TestTrackerLoadReadFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	s := mocks.NewMockStore(ctrl)
	readErr := errors.NewStoreError(errors.CodeStoreConnection, "connection refused")
	s.EXPECT().Get(gomock.Any(), store.KeyInventory).Return(nil, readErr)
	s.EXPECT().Get(gomock.Any(), store.KeySources).Return([]byte(`[]`), nil)

	tr := NewTracker(s, logging.NewDiscard(), nil)
	err := tr.Load(ctx)
	assert.ErrorIs(t, err, readErr)
	assert.Equal(t, 0, tr.Snapshot().Len())
}

func TestTrackerPersistFailureKeepsMemoryState(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	s := mocks.NewMockStore(ctrl)
	full := errors.ErrQuotaExceeded(store.KeyInventory, 10, 5)
	s.EXPECT().Set(gomock.Any(), store.KeyInventory, gomock.Any()).Return(full)

	tr := NewTracker(s, logging.NewDiscard(), nil)
	summary, err := tr.Merge(ctx, sampleResult(), SourceFile{Name: "a"})

	require.Error(t, err)
	var storeErr *errors.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, errors.CodeStoreQuotaExceeded, storeErr.Code)

	assert.Equal(t, 2, summary.HostsAdded)
	assert.Equal(t, 2, tr.Snapshot().Len(), "memory stays authoritative")
	assert.Len(t, tr.Sources(), 1)
}

func TestTrackerWrapsForeignStoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	s := mocks.NewMockStore(ctrl)
	s.EXPECT().Set(gomock.Any(), store.KeyInventory, gomock.Any()).Return(nil)
	s.EXPECT().Set(gomock.Any(), store.KeySources, gomock.Any()).Return(context.DeadlineExceeded)

	tr := NewTracker(s, logging.NewDiscard(), nil)
	_, err := tr.Merge(context.Background(), sampleResult(), SourceFile{Name: "a"})

	var storeErr *errors.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, errors.CodeCanceled, storeErr.Code)
	assert.Equal(t, store.KeySources, storeErr.Key)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTrackerClearFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	s := mocks.NewMockStore(ctrl)
	s.EXPECT().Delete(gomock.Any(), store.KeyInventory).
		Return(errors.NewStoreError(errors.CodeStoreWrite, "read-only"))

	tr := NewTracker(s, logging.NewDiscard(), nil)
	err := tr.Clear(context.Background())
	assert.True(t, errors.IsCode(err, errors.CodeStoreWrite))
}

func TestChecksum(t *testing.T) {
	sum := Checksum([]byte("abc"))
	assert.Len(t, sum, 64)
	assert.Equal(t, sum, Checksum([]byte("abc")))
	assert.NotEqual(t, sum, Checksum([]byte("abd")))
}
