package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "flare_splunk"
)

var (
	ingestDurationBuckets = []float64{1, 2, 5, 10, 30, 60, 120, 300, 600}

	// Ingest Metrics
	IngestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingest_duration_seconds",
		Help:      "Time taken for an ingest run over all tenants.",
		Buckets:   ingestDurationBuckets,
	}, []string{"status"})

	IngestRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_runs_total",
		Help:      "Count of ingest runs.",
	}, []string{"status"})

	IngestEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_events_total",
		Help:      "Number of Flare events written to the output stream.",
	}, []string{"tenant_id"})

	IngestLastSuccessTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ingest_last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful ingest run.",
	})

	// Settings Metrics
	SettingsWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settings_writes_total",
		Help:      "Count of credential and configuration property writes.",
	}, []string{"kind", "status"})

	// Remote API Metrics
	RemoteRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "remote_requests_total",
		Help:      "Count of requests sent to Splunk and Flare APIs.",
	}, []string{"api", "status"})
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveSettingsWrite counts one settings write of the given kind.
func ObserveSettingsWrite(kind string, err error) {
	SettingsWritesTotal.WithLabelValues(kind, status(err)).Inc()
}

// ObserveRemoteRequest counts one request against api.
func ObserveRemoteRequest(api string, err error) {
	RemoteRequestsTotal.WithLabelValues(api, status(err)).Inc()
}

// ObserveIngestRun records the outcome of one ingest run that started at
// started.
func ObserveIngestRun(started time.Time, err error) {
	s := status(err)
	IngestRunsTotal.WithLabelValues(s).Inc()
	IngestDuration.WithLabelValues(s).Observe(time.Since(started).Seconds())
	if err == nil {
		IngestLastSuccessTimestamp.SetToCurrentTime()
	}
}
