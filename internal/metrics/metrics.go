package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for Blastry
type Metrics struct {
	// Dispatch counters
	JobsDispatchedTotal     prometheus.Counter
	JobWriteFailuresTotal   prometheus.Counter
	CommandsIssuedTotal     *prometheus.CounterVec
	StoreWritesTotal        prometheus.Counter
	StoreWriteFailuresTotal prometheus.Counter

	// Fleet and campaign gauges
	Projects           prometheus.Gauge
	AgentsByStatus     *prometheus.GaugeVec
	WatchSubscriptions prometheus.Gauge

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		JobsDispatchedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "blastry_jobs_dispatched_total",
				Help: "Total number of delivery jobs written",
			},
		),
		JobWriteFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "blastry_job_write_failures_total",
				Help: "Total number of delivery job writes that failed",
			},
		),
		CommandsIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blastry_agent_commands_issued_total",
				Help: "Total number of agent commands written",
			},
			[]string{"action"},
		),
		StoreWritesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "blastry_store_writes_total",
				Help: "Total number of shared-store writes",
			},
		),
		StoreWriteFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "blastry_store_write_failures_total",
				Help: "Total number of shared-store writes that failed",
			},
		),

		Projects: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "blastry_projects",
				Help: "Number of campaign projects",
			},
		),
		AgentsByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "blastry_agents",
				Help: "Number of agents by reported status",
			},
			[]string{"status"},
		),
		WatchSubscriptions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "blastry_watch_subscriptions",
				Help: "Number of active store subscriptions",
			},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blastry_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blastry_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blastry_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "blastry_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "blastry_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "blastry_storage_used_bytes",
				Help: "BoltDB file size in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.JobsDispatchedTotal,
		m.JobWriteFailuresTotal,
		m.CommandsIssuedTotal,
		m.StoreWritesTotal,
		m.StoreWriteFailuresTotal,
		m.Projects,
		m.AgentsByStatus,
		m.WatchSubscriptions,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// JobsDispatched records successfully written delivery jobs.
func (m *Metrics) JobsDispatched(n int) {
	m.JobsDispatchedTotal.Add(float64(n))
}

// JobWriteFailed records one failed delivery job write.
func (m *Metrics) JobWriteFailed() {
	m.JobWriteFailuresTotal.Inc()
}

// CommandIssued records one agent command write.
func (m *Metrics) CommandIssued(action string) {
	m.CommandsIssuedTotal.WithLabelValues(action).Inc()
}

// StoreWrite records one shared-store write.
func (m *Metrics) StoreWrite() {
	m.StoreWritesTotal.Inc()
}

// StoreWriteFailed records one failed shared-store write.
func (m *Metrics) StoreWriteFailed() {
	m.StoreWriteFailuresTotal.Inc()
}
