package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream", "outcome"},
	)

	storeOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Duration of document store operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"driver", "op", "result"},
	)

	ingestRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_rows_total",
			Help: "Result rows seen by ingestion runs, by outcome.",
		},
		[]string{"outcome"},
	)

	geometryDecodeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geometry_decode_failures_total",
			Help: "Geometry literals that could not be decoded, by reason.",
		},
		[]string{"reason"},
	)

	layerFeatures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "map_layer_features",
			Help: "Features placed in each layer by the last map build.",
		},
		[]string{"layer"},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_events_published_total",
			Help: "Ingest events handed to the broker, by result.",
		},
		[]string{"result"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "geodata_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

// Collectors returns every collector owned by this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		upstreamLatencySeconds,
		storeOpDurationSeconds,
		ingestRowsTotal,
		geometryDecodeFailures,
		layerFeatures,
		eventsPublished,
		buildInfo,
	}
}

// Init registers the package collectors on reg in addition to the default
// registry. Registering twice is a no-op.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled || reg == nil {
		return
	}
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstream(upstream, outcome string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream, outcome).Observe(durationSeconds)
}

func ObserveStoreOp(driver, op string, err error, durationSeconds float64) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	storeOpDurationSeconds.WithLabelValues(driver, op, res).Observe(durationSeconds)
}

// AddIngestRows counts rows by outcome: written, rejected, invalid_geometry.
func AddIngestRows(outcome string, n int) {
	if n <= 0 {
		return
	}
	ingestRowsTotal.WithLabelValues(outcome).Add(float64(n))
}

func IncGeometryDecodeFailure(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	geometryDecodeFailures.WithLabelValues(reason).Inc()
}

func SetLayerFeatures(layer string, n int) {
	layerFeatures.WithLabelValues(layer).Set(float64(n))
}

func IncEventPublished(err error) {
	if err != nil {
		eventsPublished.WithLabelValues("error").Inc()
		return
	}
	eventsPublished.WithLabelValues("ok").Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
