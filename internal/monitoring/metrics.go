package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Streaming engine metrics. Registered on the default registry so a caller
// embedding the client can expose them next to its own collectors.
var (
	BytesRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radarlink_transport_bytes_read_total",
		Help: "Bytes read from the sensor transport.",
	})

	FramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radarlink_frames_received_total",
		Help: "Checksum-valid frames extracted from the byte stream.",
	})

	ChecksumErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radarlink_frame_checksum_errors_total",
		Help: "Frame candidates rejected during resynchronisation.",
	})

	ResultsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radarlink_results_delivered_total",
		Help: "Decoded results handed to a consumer.",
	})

	ResultsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radarlink_results_dropped_total",
		Help: "Results discarded by the oldest-drop backpressure policy.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "radarlink_result_queue_depth",
		Help: "Results currently buffered between reader and consumer.",
	})
)

// MetricsHandler returns the HTTP handler serving the collector registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
