package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgateway_requests_total",
			Help: "Total number of gateway invocations",
		},
		[]string{"provider", "vendor", "model", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelgateway_request_duration_seconds",
			Help:    "Model invocation duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "vendor", "model"},
	)

	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgateway_tokens_total",
			Help: "Total number of tokens processed",
		},
		[]string{"provider", "vendor", "model", "type"},
	)

	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgateway_provider_errors_total",
			Help: "Total number of provider errors by kind",
		},
		[]string{"provider", "vendor", "kind"},
	)

	ThrottleEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgateway_throttle_events_total",
			Help: "Total number of throttling responses from providers",
		},
		[]string{"provider", "model"},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelgateway_active_streams",
			Help: "Number of active streaming invocations",
		},
	)

	UsageQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelgateway_usage_queue_depth",
			Help: "Usage records waiting for dispatch to the telemetry sink",
		},
	)

	UsageRecordsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modelgateway_usage_records_dropped_total",
			Help: "Usage records dropped because the dispatch queue was full",
		},
	)

	UsageSinkErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modelgateway_usage_sink_errors_total",
			Help: "Failed deliveries to the telemetry sink",
		},
	)
)

func RecordRequest(provider, vendor, model, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(provider, vendor, model, status).Inc()
	RequestDuration.WithLabelValues(provider, vendor, model).Observe(durationSec)
}

func RecordTokens(provider, vendor, model string, tokensIn, tokensOut int) {
	TokensTotal.WithLabelValues(provider, vendor, model, "input").Add(float64(tokensIn))
	TokensTotal.WithLabelValues(provider, vendor, model, "output").Add(float64(tokensOut))
}

func RecordProviderError(provider, vendor, kind string) {
	ProviderErrors.WithLabelValues(provider, vendor, kind).Inc()
}

func RecordThrottle(provider, model string) {
	ThrottleEvents.WithLabelValues(provider, model).Inc()
}

func IncrementActiveStreams() {
	ActiveStreams.Inc()
}

func DecrementActiveStreams() {
	ActiveStreams.Dec()
}
