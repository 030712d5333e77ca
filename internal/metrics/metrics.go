package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for the audience service
type Metrics struct {
	// Segmentation
	SegmentRunsTotal   *prometheus.CounterVec
	SegmentRecipients  *prometheus.HistogramVec
	SegmentRosterSize  prometheus.Histogram
	SegmentDurationSec prometheus.Histogram

	// Campaigns
	CampaignsCreatedTotal  *prometheus.CounterVec
	CampaignsRejectedTotal *prometheus.CounterVec

	// Rosters
	RosterSyncTotal     *prometheus.CounterVec
	RosterFallbackTotal prometheus.Counter
	RosterContacts      *prometheus.GaugeVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds prometheus.GaugeFunc

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()
	start := time.Now()

	m := &Metrics{
		SegmentRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audience_segment_runs_total",
				Help: "Total number of audience segmentations",
			},
			[]string{"channel", "purpose"},
		),
		SegmentRecipients: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "audience_segment_recipients",
				Help:    "Number of recipients selected per segmentation",
				Buckets: []float64{0, 1, 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
			},
			[]string{"channel"},
		),
		SegmentRosterSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "audience_segment_roster_size",
				Help:    "Number of contacts in the roster being segmented",
				Buckets: []float64{0, 10, 100, 500, 1000, 2500, 5000, 10000, 50000},
			},
		),
		SegmentDurationSec: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "audience_segment_duration_seconds",
				Help:    "Time spent segmenting a roster",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
		),

		CampaignsCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audience_campaigns_created_total",
				Help: "Total number of campaigns created through the service",
			},
			[]string{"channel"},
		),
		CampaignsRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audience_campaigns_rejected_total",
				Help: "Total number of campaign drafts rejected before reaching the backend",
			},
			[]string{"reason"},
		),

		RosterSyncTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audience_roster_sync_total",
				Help: "Total number of roster fetches from the backend",
			},
			[]string{"result"},
		),
		RosterFallbackTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "audience_roster_fallback_total",
				Help: "Total number of rosters served from a snapshot because the backend failed",
			},
		),
		RosterContacts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "audience_roster_contacts",
				Help: "Number of contacts in the last fetched roster",
			},
			[]string{"workspace"},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audience_api_requests_total",
				Help: "Total number of HTTP API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "audience_api_request_duration_seconds",
				Help:    "HTTP API request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audience_api_errors_total",
				Help: "Total number of HTTP API errors",
			},
			[]string{"type"},
		),

		UptimeSeconds: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "audience_uptime_seconds",
				Help: "Service uptime in seconds",
			},
			func() float64 { return time.Since(start).Seconds() },
		),

		registry: reg,
	}

	// Register all metrics
	reg.MustRegister(
		m.SegmentRunsTotal,
		m.SegmentRecipients,
		m.SegmentRosterSize,
		m.SegmentDurationSec,
		m.CampaignsCreatedTotal,
		m.CampaignsRejectedTotal,
		m.RosterSyncTotal,
		m.RosterFallbackTotal,
		m.RosterContacts,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// ObserveSegment records one segmentation run
func ObserveSegment(channel, purpose string, rosterSize, recipients int, d time.Duration) {
	m := Global()
	if m != nil {
		m.SegmentRunsTotal.WithLabelValues(channel, purpose).Inc()
		m.SegmentRecipients.WithLabelValues(channel).Observe(float64(recipients))
		m.SegmentRosterSize.Observe(float64(rosterSize))
		m.SegmentDurationSec.Observe(d.Seconds())
	}
}

// IncCampaignsCreated increments the created campaign counter
func IncCampaignsCreated(channel string) {
	m := Global()
	if m != nil {
		m.CampaignsCreatedTotal.WithLabelValues(channel).Inc()
	}
}

// IncCampaignsRejected increments the rejected draft counter
func IncCampaignsRejected(reason string) {
	m := Global()
	if m != nil {
		m.CampaignsRejectedTotal.WithLabelValues(reason).Inc()
	}
}

// ObserveRosterSync records a roster fetch. contacts is ignored on failure.
func ObserveRosterSync(workspace string, contacts int, err error) {
	m := Global()
	if m == nil {
		return
	}
	if err != nil {
		m.RosterSyncTotal.WithLabelValues("error").Inc()
		return
	}
	m.RosterSyncTotal.WithLabelValues("ok").Inc()
	m.RosterContacts.WithLabelValues(workspace).Set(float64(contacts))
}

// IncRosterFallback increments the snapshot fallback counter
func IncRosterFallback() {
	m := Global()
	if m != nil {
		m.RosterFallbackTotal.Inc()
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	m := Global()
	if m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
