// Package metrics provides Prometheus-based metrics collection for scanfold.
// Metrics live in a private registry and are exported in the node-exporter
// textfile format, since scanfold runs as a short-lived CLI.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Namespace for all scanfold metrics
	namespace = "scanfold"

	// Subsystems
	subsystemIngest    = "ingest"
	subsystemInventory = "inventory"
	subsystemStore     = "store"
)

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	// Ingest metrics
	ingestFiles    *prometheus.CounterVec
	ingestDuration *prometheus.HistogramVec
	ingestHosts    *prometheus.CounterVec
	ingestPorts    *prometheus.CounterVec

	// Inventory metrics
	inventoryHosts     prometheus.Gauge
	inventoryOpenPorts prometheus.Gauge
	inventorySources   prometheus.Gauge

	// Store metrics
	storeOperations *prometheus.CounterVec
	storeDuration   *prometheus.HistogramVec

	startTime time.Time
	mu        sync.Mutex
	registry  *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	pm.initIngestMetrics()
	pm.initInventoryMetrics()
	pm.initStoreMetrics()

	pm.registerMetrics()

	// Register standard Go collector for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())

	return pm
}

// initIngestMetrics initializes ingest-related metrics
func (pm *PrometheusMetrics) initIngestMetrics() {
	pm.ingestFiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemIngest,
			Name:      "files_total",
			Help:      "Total number of scan reports ingested by format and status",
		},
		[]string{"format", "status"},
	)

	pm.ingestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemIngest,
			Name:      "duration_seconds",
			Help:      "Time spent parsing a scan report in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
		[]string{"format"},
	)

	pm.ingestHosts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemIngest,
			Name:      "hosts_total",
			Help:      "Hosts merged into the inventory by outcome",
		},
		[]string{"outcome"},
	)

	pm.ingestPorts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemIngest,
			Name:      "ports_total",
			Help:      "Ports merged into the inventory by outcome",
		},
		[]string{"outcome"},
	)
}

// initInventoryMetrics initializes inventory gauges
func (pm *PrometheusMetrics) initInventoryMetrics() {
	pm.inventoryHosts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemInventory,
			Name:      "hosts",
			Help:      "Number of hosts in the inventory",
		},
	)

	pm.inventoryOpenPorts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemInventory,
			Name:      "open_ports",
			Help:      "Number of open ports in the inventory",
		},
	)

	pm.inventorySources = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemInventory,
			Name:      "sources",
			Help:      "Number of scan reports recorded in the inventory",
		},
	)
}

// initStoreMetrics initializes persistence metrics
func (pm *PrometheusMetrics) initStoreMetrics() {
	pm.storeOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemStore,
			Name:      "operations_total",
			Help:      "Store operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	pm.storeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemStore,
			Name:      "operation_duration_seconds",
			Help:      "Duration of store operations in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"operation"},
	)
}

// registerMetrics registers all metrics with the Prometheus registry
func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(pm.ingestFiles)
	pm.registry.MustRegister(pm.ingestDuration)
	pm.registry.MustRegister(pm.ingestHosts)
	pm.registry.MustRegister(pm.ingestPorts)

	pm.registry.MustRegister(pm.inventoryHosts)
	pm.registry.MustRegister(pm.inventoryOpenPorts)
	pm.registry.MustRegister(pm.inventorySources)

	pm.registry.MustRegister(pm.storeOperations)
	pm.registry.MustRegister(pm.storeDuration)
}

// GetRegistry returns the Prometheus registry
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// Ingest Metrics Methods

// IncrementIngestFiles increments the ingested report counter
func (pm *PrometheusMetrics) IncrementIngestFiles(format, status string) {
	pm.ingestFiles.WithLabelValues(format, status).Inc()
}

// RecordIngestDuration records how long parsing a report took
func (pm *PrometheusMetrics) RecordIngestDuration(format string, duration time.Duration) {
	pm.ingestDuration.WithLabelValues(format).Observe(duration.Seconds())
}

// AddIngestHosts adds to the merged hosts counter
func (pm *PrometheusMetrics) AddIngestHosts(outcome string, count int) {
	pm.ingestHosts.WithLabelValues(outcome).Add(float64(count))
}

// AddIngestPorts adds to the merged ports counter
func (pm *PrometheusMetrics) AddIngestPorts(outcome string, count int) {
	pm.ingestPorts.WithLabelValues(outcome).Add(float64(count))
}

// Inventory Metrics Methods

// SetInventory sets the inventory gauges
func (pm *PrometheusMetrics) SetInventory(hosts, openPorts, sources int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.inventoryHosts.Set(float64(hosts))
	pm.inventoryOpenPorts.Set(float64(openPorts))
	pm.inventorySources.Set(float64(sources))
}

// Store Metrics Methods

// RecordStoreOperation counts a store operation and its duration
func (pm *PrometheusMetrics) RecordStoreOperation(operation string, duration time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	pm.storeOperations.WithLabelValues(operation, status).Inc()
	pm.storeDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// GetUptime returns the time since the metrics were created
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// WriteTextfile writes all metrics to path in the node-exporter textfile format
func (pm *PrometheusMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, pm.registry)
}

var _ Recorder = (*PrometheusMetrics)(nil)
