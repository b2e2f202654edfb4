// Package ingest reads scan reports, parses them concurrently and merges
// the results into the inventory in a fixed order.
package ingest

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anstrom/scanfold/internal/config"
	"github.com/anstrom/scanfold/internal/errors"
	"github.com/anstrom/scanfold/internal/inventory"
	"github.com/anstrom/scanfold/internal/logging"
	"github.com/anstrom/scanfold/internal/metrics"
	"github.com/anstrom/scanfold/internal/scanning"
)

// Config holds ingestion limits.
type Config struct {
	// DefaultFormat applies to requests that do not name one.
	DefaultFormat scanning.Format
	// MaxFileSize is the largest report accepted, in bytes. Zero means no limit.
	MaxFileSize int64
	// Parallelism bounds how many reports are parsed at once.
	Parallelism int
}

// DefaultConfig returns the ingestion defaults.
func DefaultConfig() Config {
	return Config{
		DefaultFormat: scanning.FormatAuto,
		MaxFileSize:   64 << 20,
		Parallelism:   4,
	}
}

// ConfigFrom converts the import section of the application config.
func ConfigFrom(cfg config.ImportConfig) (Config, error) {
	format, err := scanning.ParseFormat(cfg.DefaultFormat)
	if err != nil {
		return Config{}, err
	}
	return Config{
		DefaultFormat: format,
		MaxFileSize:   cfg.MaxFileSize,
		Parallelism:   cfg.Parallelism,
	}, nil
}

// Request names one report to ingest. Data, when set, is used instead of
// reading Path.
type Request struct {
	Path string
	// Name recorded for the source; defaults to the base name of Path.
	Name   string
	Format scanning.Format
	Data   []byte
	// SkipKnown skips reports whose content was already imported.
	SkipKnown bool
}

func (r Request) sourceName() string {
	if r.Name != "" {
		return r.Name
	}
	return filepath.Base(r.Path)
}

// Outcome reports what happened to one request.
type Outcome struct {
	Name    string                 `json:"name"`
	Format  scanning.Format        `json:"format,omitempty"`
	Source  *inventory.SourceFile  `json:"source,omitempty"`
	Summary inventory.MergeSummary `json:"summary"`
	Skipped bool                   `json:"skipped,omitempty"`
	// Err is a read or parse failure; nothing was merged.
	Err error `json:"-"`
	// PersistErr is a store failure after a successful merge.
	PersistErr error         `json:"-"`
	Duration   time.Duration `json:"duration"`
}

// OK reports whether the report was merged and persisted.
func (o Outcome) OK() bool {
	return o.Err == nil && o.PersistErr == nil
}

// Ingester feeds scan reports into a Tracker.
type Ingester struct {
	tracker *inventory.Tracker
	config  Config
	logger  *logging.Logger
	metrics metrics.Recorder
}

// New creates an ingester.
func New(tracker *inventory.Tracker, cfg Config, logger *logging.Logger, rec metrics.Recorder) *Ingester {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = scanning.FormatAuto
	}
	return &Ingester{
		tracker: tracker,
		config:  cfg,
		logger:  logger.WithComponent("ingest"),
		metrics: metrics.OrNoop(rec),
	}
}

// parsed is the output of the concurrent stage.
type parsed struct {
	data    []byte
	result  *scanning.ScanResult
	format  scanning.Format
	skipped bool
	err     error
}

// IngestFiles parses the requests concurrently and merges them in argument
// order. A failing request does not affect the others. The returned slice
// has one outcome per request, in the same order.
func (i *Ingester) IngestFiles(ctx context.Context, reqs []Request) []Outcome {
	stage := make([]parsed, len(reqs))
	started := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.config.Parallelism)
	for idx := range reqs {
		g.Go(func() error {
			stage[idx] = i.parse(gctx, reqs[idx])
			return nil
		})
	}
	_ = g.Wait()

	outcomes := make([]Outcome, len(reqs))
	for idx, req := range reqs {
		outcomes[idx] = i.merge(ctx, req, stage[idx])
	}

	i.logger.Info("Import finished",
		"files", len(reqs),
		"failed", countFailed(outcomes),
		"duration", time.Since(started))
	return outcomes
}

// IngestBytes ingests a report already held in memory.
func (i *Ingester) IngestBytes(ctx context.Context, name string, format scanning.Format, data []byte) Outcome {
	if data == nil {
		data = []byte{}
	}
	return i.IngestFiles(ctx, []Request{{Name: name, Format: format, Data: data}})[0]
}

func (i *Ingester) parse(ctx context.Context, req Request) parsed {
	if err := ctx.Err(); err != nil {
		return parsed{err: err}
	}

	data := req.Data
	if data == nil {
		var err error
		if data, err = i.readFile(req.Path); err != nil {
			return parsed{err: err}
		}
	} else if i.config.MaxFileSize > 0 && int64(len(data)) > i.config.MaxFileSize {
		return parsed{err: tooLarge(req.sourceName(), i.config.MaxFileSize)}
	}

	// Checked again before merging, since an earlier request in the same
	// batch may carry the same content.
	if req.SkipKnown && i.tracker.HasChecksum(inventory.Checksum(data)) {
		return parsed{data: data, skipped: true}
	}

	format := req.Format
	if format == "" {
		format = i.config.DefaultFormat
	}

	start := time.Now()
	result, detected, err := scanning.Parse(req.sourceName(), format, data)
	label := string(detected)
	if label == "" {
		label = "unknown"
	}
	i.metrics.RecordIngestDuration(label, time.Since(start))

	return parsed{data: data, result: result, format: detected, err: err}
}

func (i *Ingester) merge(ctx context.Context, req Request, p parsed) (out Outcome) {
	name := req.sourceName()
	out = Outcome{Name: name, Format: p.format}
	start := time.Now()
	defer func() { out.Duration = time.Since(start) }()

	label := string(p.format)
	if label == "" {
		label = "unknown"
	}

	switch {
	case p.err != nil:
		out.Err = p.err
		i.metrics.IncrementIngestFiles(label, metrics.StatusError)
		i.logger.ErrorImport("Failed to import scan report", name, p.err)
		return out
	case p.skipped, req.SkipKnown && i.tracker.HasChecksum(inventory.Checksum(p.data)):
		out.Skipped = true
		i.metrics.IncrementIngestFiles(label, metrics.StatusSkipped)
		i.logger.Debug("Skipping already imported report", "source", name)
		return out
	}

	src := inventory.NewSourceFile(name, p.format, p.data)
	summary, err := i.tracker.Merge(ctx, p.result, src)
	out.Source = &src
	out.Summary = summary
	out.PersistErr = err

	i.metrics.AddIngestHosts(metrics.OutcomeAdded, summary.HostsAdded)
	i.metrics.AddIngestHosts(metrics.OutcomeUpdated, summary.HostsUpdated)
	i.metrics.AddIngestPorts(metrics.OutcomeAdded, summary.PortsAdded)
	i.metrics.AddIngestPorts(metrics.OutcomeSkipped, summary.PortsSkipped)

	if err != nil {
		i.metrics.IncrementIngestFiles(label, metrics.StatusError)
		i.logger.ErrorImport("Merged scan report but failed to persist", name, err)
		return out
	}

	i.metrics.IncrementIngestFiles(label, metrics.StatusSuccess)
	i.logger.InfoImport("Imported scan report", name,
		"format", p.format,
		"hosts", len(p.result.Hosts),
		"hosts_added", summary.HostsAdded,
		"ports_added", summary.PortsAdded)
	return out
}

func (i *Ingester) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fileError(path, err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if i.config.MaxFileSize > 0 {
		r = io.LimitReader(f, i.config.MaxFileSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fileError(path, err)
	}
	if i.config.MaxFileSize > 0 && int64(len(data)) > i.config.MaxFileSize {
		return nil, tooLarge(path, i.config.MaxFileSize)
	}
	return data, nil
}

func fileError(path string, err error) error {
	switch {
	case stderrors.Is(err, fs.ErrNotExist):
		return errors.WrapFileError(errors.CodeFileNotFound, "Scan report not found", path, err)
	case stderrors.Is(err, fs.ErrPermission):
		return errors.WrapFileError(errors.CodeFilePermission, "Scan report is not readable", path, err)
	default:
		return errors.WrapFileError(errors.CodeFilePermission, "Failed to read scan report", path, err)
	}
}

func tooLarge(path string, limit int64) error {
	return errors.WrapFileError(errors.CodeFileTooLarge,
		fmt.Sprintf("Scan report exceeds %d bytes", limit), path, nil)
}

func countFailed(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.OK() {
			n++
		}
	}
	return n
}
