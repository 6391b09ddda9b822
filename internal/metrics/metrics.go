// Package metrics exposes scan and execution counters for Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

const namespace = "liquidbot"

// Metrics implements domain.EngineObserver by updating Prometheus
// collectors registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	scans         prometheus.Counter
	scanDuration  prometheus.Histogram
	borrowers     prometheus.Gauge
	underwater    prometheus.Gauge
	readErrors    prometheus.Counter
	opportunities prometheus.Counter
	results       *prometheus.CounterVec
	profitUSD     prometheus.Counter
	volumeUSD     prometheus.Counter
	lastSuccess   prometheus.Gauge
}

var _ domain.EngineObserver = (*Metrics)(nil)

// New builds the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "scans_total",
			Help: "Completed borrower scans.",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "scan_duration_seconds",
			Help:    "Wall time of one scan including execution.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		borrowers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "borrowers",
			Help: "Borrowers evaluated in the last scan.",
		}),
		underwater: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "underwater_borrowers",
			Help: "Borrowers with a shortfall in the last scan.",
		}),
		readErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scheduler", Name: "read_errors_total",
			Help: "Borrowers skipped because chain reads failed.",
		}),
		opportunities: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "evaluator", Name: "opportunities_total",
			Help: "Admissible liquidation opportunities found.",
		}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "executor", Name: "results_total",
			Help: "Execution attempts by outcome and failure reason.",
		}, []string{"outcome", "reason"}),
		profitUSD: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "executor", Name: "profit_usd_total",
			Help: "Expected profit of confirmed liquidations in USD.",
		}),
		volumeUSD: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "executor", Name: "volume_usd_total",
			Help: "Repaid debt of confirmed liquidations in USD.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "executor", Name: "last_success_timestamp_seconds",
			Help: "Unix time of the last confirmed liquidation.",
		}),
	}
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		m.scans, m.scanDuration, m.borrowers, m.underwater, m.readErrors,
		m.opportunities, m.results, m.profitUSD, m.volumeUSD, m.lastSuccess,
	)
	return m
}

// OnScan records one completed scan.
func (m *Metrics) OnScan(_ context.Context, r domain.ScanReport) {
	m.scans.Inc()
	m.scanDuration.Observe(r.Duration.Seconds())
	m.borrowers.Set(float64(r.Borrowers))
	m.underwater.Set(float64(r.Underwater))
	m.readErrors.Add(float64(r.ReadErrors))
}

// OnOpportunity counts an admissible opportunity.
func (m *Metrics) OnOpportunity(context.Context, domain.LiquidationOpportunity) {
	m.opportunities.Inc()
}

// OnResult counts an execution outcome.
func (m *Metrics) OnResult(_ context.Context, opp domain.LiquidationOpportunity, res domain.ExecutionResult) {
	if !res.Success {
		m.results.WithLabelValues("failed", res.Reason).Inc()
		return
	}
	m.results.WithLabelValues("success", "").Inc()
	m.profitUSD.Add(opp.ExpectedProfitUSD)
	m.volumeUSD.Add(opp.RepayUSD)
	if res.Record != nil {
		m.lastSuccess.Set(float64(res.Record.Timestamp.Unix()))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
