package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/anstrom/scanfold/internal/config"
	"github.com/anstrom/scanfold/internal/inventory"
	"github.com/anstrom/scanfold/internal/logging"
	"github.com/anstrom/scanfold/internal/metrics"
	"github.com/anstrom/scanfold/internal/store"
)

// session bundles what a command needs to work on the inventory.
type session struct {
	config  *config.Config
	store   store.Store
	tracker *inventory.Tracker
	logger  *logging.Logger
	// metrics is nil when metrics are disabled
	metrics *metrics.PrometheusMetrics
}

func (s *session) recorder() metrics.Recorder {
	if s.metrics == nil {
		return nil
	}
	return s.metrics
}

// TrackerOperation represents a function that operates on a loaded inventory.
type TrackerOperation func(ctx context.Context, s *session) error

// withTracker executes the given operation with a loaded tracker.
// It handles config loading, store setup and cleanup, and writes the
// metrics textfile when one is configured.
func withTracker(ctx context.Context, operation TrackerOperation) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	return withTrackerConfig(ctx, cfg, operation)
}

func withTrackerConfig(ctx context.Context, cfg *config.Config, operation TrackerOperation) error {
	s := &session{config: cfg, logger: logging.Default()}
	if cfg.Metrics.Enabled {
		s.metrics = metrics.NewPrometheusMetrics()
	}

	st, err := store.Open(ctx, cfg.Store, s.logger, s.recorder())
	if err != nil {
		return fmt.Errorf("error opening store: %w", err)
	}
	s.store = st
	if !cfg.IsPersistent() {
		s.logger.Warn("Using the memory store, the inventory is discarded on exit")
	}

	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close store: %v\n", closeErr)
		}
	}()

	s.tracker = inventory.NewTracker(st, s.logger, s.recorder())
	if err := s.tracker.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: stored inventory could not be read, starting empty: %v\n", err)
	}

	opErr := operation(ctx, s)

	if s.metrics != nil && cfg.Metrics.TextfilePath != "" {
		if err := s.metrics.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write metrics textfile: %v\n", err)
		}
	}

	return opErr
}
