// Package watch polls a directory on a cron schedule and imports scan
// reports it has not seen before.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/anstrom/scanfold/internal/config"
	"github.com/anstrom/scanfold/internal/errors"
	"github.com/anstrom/scanfold/internal/ingest"
	"github.com/anstrom/scanfold/internal/logging"
)

// Config selects what and when to poll.
type Config struct {
	Directory string
	// Schedule is a standard five-field cron expression.
	Schedule string
	// Patterns are globs matched against file base names.
	Patterns []string
}

// ConfigFrom converts the watch section of the application config.
func ConfigFrom(cfg config.WatchConfig) Config {
	return Config{
		Directory: cfg.Directory,
		Schedule:  cfg.Schedule,
		Patterns:  cfg.Patterns,
	}
}

// Report summarizes one poll.
type Report struct {
	Started  time.Time        `json:"started"`
	Scanned  int              `json:"scanned"`
	Imported int              `json:"imported"`
	Skipped  int              `json:"skipped"`
	Failed   int              `json:"failed"`
	Outcomes []ingest.Outcome `json:"outcomes"`
}

// Watcher runs polls on a schedule. A tick that fires while the previous
// poll is still running is skipped.
type Watcher struct {
	config   Config
	ingester *ingest.Ingester
	cron     *cron.Cron
	logger   *logging.Logger

	mu      sync.Mutex
	running bool
	polling bool
	lastRun time.Time
	ctx     context.Context
	cancel  context.CancelFunc
}

// New validates cfg and creates a stopped watcher.
func New(cfg Config, ing *ingest.Ingester, logger *logging.Logger) (*Watcher, error) {
	if cfg.Directory == "" {
		return nil, errors.ErrConfigMissing("watch.directory")
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, errors.ErrConfigInvalid("watch.schedule", cfg.Schedule)
	}
	for _, p := range cfg.Patterns {
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, errors.ErrConfigInvalid("watch.patterns", p)
		}
	}
	if logger == nil {
		logger = logging.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		config:   cfg,
		ingester: ing,
		cron:     cron.New(),
		logger:   logger.WithComponent("watch"),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start schedules the poll.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher is already running")
	}

	if _, err := w.cron.AddFunc(w.config.Schedule, w.tick); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	w.cron.Start()
	w.running = true

	w.logger.Info("Watching directory",
		"directory", w.config.Directory,
		"schedule", w.config.Schedule,
		"patterns", w.config.Patterns)
	return nil
}

// Stop cancels any poll in progress and waits for it to return.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	<-w.cron.Stop().Done()
	w.logger.Info("Watcher stopped")
}

// LastRun returns when the most recent poll started.
func (w *Watcher) LastRun() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastRun
}

func (w *Watcher) tick() {
	report, err := w.RunOnce(w.ctx)
	if err != nil {
		w.logger.Error("Poll failed", "directory", w.config.Directory, "error", err)
		return
	}
	if report.Imported > 0 || report.Failed > 0 {
		w.logger.Info("Poll finished",
			"scanned", report.Scanned,
			"imported", report.Imported,
			"skipped", report.Skipped,
			"failed", report.Failed)
	}
}

// RunOnce polls the directory and ingests every matching file whose
// content has not been imported yet.
func (w *Watcher) RunOnce(ctx context.Context) (*Report, error) {
	w.mu.Lock()
	if w.polling {
		w.mu.Unlock()
		w.logger.Warn("Previous poll still running, skipping")
		return &Report{Outcomes: []ingest.Outcome{}}, nil
	}
	w.polling = true
	w.lastRun = time.Now()
	started := w.lastRun
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.polling = false
		w.mu.Unlock()
	}()

	paths, err := w.Candidates()
	if err != nil {
		return nil, err
	}

	reqs := make([]ingest.Request, 0, len(paths))
	for _, p := range paths {
		reqs = append(reqs, ingest.Request{Path: p, SkipKnown: true})
	}

	report := &Report{Started: started, Scanned: len(paths), Outcomes: []ingest.Outcome{}}
	if len(reqs) > 0 {
		report.Outcomes = w.ingester.IngestFiles(ctx, reqs)
	}
	for _, o := range report.Outcomes {
		switch {
		case o.Skipped:
			report.Skipped++
		case o.Err != nil:
			report.Failed++
		default:
			report.Imported++
		}
	}
	return report, nil
}

// Candidates lists the regular files in the directory that match a
// pattern, sorted by name. No patterns matches every file.
func (w *Watcher) Candidates() ([]string, error) {
	entries, err := os.ReadDir(w.config.Directory)
	if err != nil {
		return nil, errors.WrapFileError(errors.CodeFileNotFound, "Failed to read watch directory", w.config.Directory, err)
	}

	var paths []string
	for _, e := range entries {
		if !e.Type().IsRegular() || !w.matches(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(w.config.Directory, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func (w *Watcher) matches(name string) bool {
	if len(w.config.Patterns) == 0 {
		return true
	}
	for _, p := range w.config.Patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}
