package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// IdentifyRequestsTotal counts identification attempts by outcome
	// ("ok" or the failure kind).
	IdentifyRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "comicvault",
		Subsystem: "identify",
		Name:      "requests_total",
		Help:      "Total number of comic identification attempts, labeled by result.",
	}, []string{"result"})

	// VisionRequestDurationSeconds is the latency of the single outbound model call.
	VisionRequestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "comicvault",
		Subsystem: "vision",
		Name:      "request_duration_seconds",
		Help:      "Time spent waiting for the vision model, labeled by engine and result.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"engine", "result"})

	// ImageBytes is the size of uploaded images before normalization.
	ImageBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "comicvault",
		Subsystem: "identify",
		Name:      "image_bytes",
		Help:      "Size of uploaded cover images in bytes.",
		Buckets:   prometheus.ExponentialBuckets(16<<10, 2, 10),
	})
)

// Register registers collectors with the default registry. Safe to call
// multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			IdentifyRequestsTotal,
			VisionRequestDurationSeconds,
			ImageBytes,
		)
	})
}

func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
