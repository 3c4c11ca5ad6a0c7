package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector exposes Prometheus metrics for the scoring and
// learning paths.
type MetricsCollector struct {
	recommendationRequests *prometheus.CounterVec
	fusionLatency          prometheus.Histogram
	adapterFailures        *prometheus.CounterVec
	cacheHits              *prometheus.CounterVec

	bufferSize     prometheus.Gauge
	updateCount    prometheus.Counter
	updateDuration prometheus.Histogram
	updateEvents   prometheus.Counter
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		recommendationRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendation_requests_total",
			Help: "Total number of recommendation requests",
		}, []string{"experiment_group"}),

		fusionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "fusion_scoring_latency_seconds",
			Help:    "Hybrid fusion scoring latency in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		}),

		adapterFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "model_adapter_failures_total",
			Help: "Adapter scoring and update failures by model",
		}, []string{"model"}),

		cacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "recommendation_cache_events_total",
			Help: "Recommendation cache hits and misses",
		}, []string{"outcome"}),

		bufferSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "learning_buffer_pending_events",
			Help: "Feedback events pending in the learning buffer",
		}),

		updateCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "incremental_updates_total",
			Help: "Total number of incremental model updates",
		}),

		updateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "incremental_update_duration_seconds",
			Help:    "Incremental model update duration in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 5.0, 15.0, 30.0},
		}),

		updateEvents: promauto.NewCounter(prometheus.CounterOpts{
			Name: "incremental_update_events_total",
			Help: "Total feedback events consumed by incremental updates",
		}),
	}
}

// RecordRequest counts one recommendation request for the given
// experiment group.
func (mc *MetricsCollector) RecordRequest(group string) {
	mc.recommendationRequests.WithLabelValues(group).Inc()
}

// ObserveFusionLatency records one end-to-end fusion scoring pass.
func (mc *MetricsCollector) ObserveFusionLatency(duration time.Duration) {
	mc.fusionLatency.Observe(duration.Seconds())
}

// IncAdapterFailure counts a scoring or update failure for one model.
func (mc *MetricsCollector) IncAdapterFailure(model string) {
	mc.adapterFailures.WithLabelValues(model).Inc()
}

// RecordCacheHit counts a recommendation cache lookup outcome.
func (mc *MetricsCollector) RecordCacheHit(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	mc.cacheHits.WithLabelValues(outcome).Inc()
}

// SetBufferSize publishes the learning buffer's pending event count.
func (mc *MetricsCollector) SetBufferSize(pending int) {
	mc.bufferSize.Set(float64(pending))
}

// ObserveUpdate records one completed incremental update cycle.
func (mc *MetricsCollector) ObserveUpdate(duration time.Duration, events int) {
	mc.updateCount.Inc()
	mc.updateDuration.Observe(duration.Seconds())
	mc.updateEvents.Add(float64(events))
}
