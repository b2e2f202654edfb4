package metrics

import "time"

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Outcome label values for merged hosts and ports.
const (
	OutcomeAdded   = "added"
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
)

// Recorder defines the metrics the ingestion pipeline reports.
// This interface allows components to run with metrics disabled.
type Recorder interface {
	// IncrementIngestFiles counts one ingested report.
	IncrementIngestFiles(format, status string)

	// RecordIngestDuration records how long parsing a report took.
	RecordIngestDuration(format string, duration time.Duration)

	// AddIngestHosts adds merged hosts for an outcome.
	AddIngestHosts(outcome string, count int)

	// AddIngestPorts adds merged ports for an outcome.
	AddIngestPorts(outcome string, count int)

	// SetInventory publishes the current inventory size.
	SetInventory(hosts, openPorts, sources int)

	// RecordStoreOperation counts a store call and its duration.
	RecordStoreOperation(operation string, duration time.Duration, err error)
}

// Noop is a Recorder that discards everything.
type Noop struct{}

func (Noop) IncrementIngestFiles(string, string) {}
func (Noop) RecordIngestDuration(string, time.Duration) {}
func (Noop) AddIngestHosts(string, int) {}
func (Noop) AddIngestPorts(string, int) {}
func (Noop) SetInventory(int, int, int) {}
func (Noop) RecordStoreOperation(string, time.Duration, error) {}

var _ Recorder = Noop{}

// OrNoop returns r, or Noop when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return Noop{}
	}
	return r
}
