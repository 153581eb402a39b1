package attendance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scanOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "scan_outcomes_total",
		Help:      "Attendance scans by outcome.",
	}, []string{"outcome"})
	manualMarks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "manual_marks_total",
		Help:      "Manual attendance changes by status.",
	}, []string{"status"})
)
