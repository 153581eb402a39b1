package embedding

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	extractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "embedding_extraction_seconds",
		Help:      "Time spent extracting one face embedding.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
	extractionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "embedding_extraction_failures_total",
		Help:      "Failed face embedding extractions by reason.",
	}, []string{"reason"})
)
