package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linocr_operations_total",
			Help: "Total number of engine operations",
		},
		[]string{"op", "status"}, // status: ok, error
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linocr_stage_duration_seconds",
			Help:    "Duration of pipeline stages in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"stage"}, // stage: detect, layout, recognize
	)

	wordsDetected = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "linocr_words_detected",
			Help:    "Number of word regions detected per image",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	linesFound = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "linocr_lines_found",
			Help:    "Number of text lines found per image",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	linesRecognized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linocr_lines_recognized_total",
			Help: "Total number of lines that produced text",
		},
	)

	emptyLines = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "linocr_empty_lines_total",
			Help: "Total number of lines without recognised characters",
		},
	)
)

func observeStage(stage string, start time.Time) {
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func countOperation(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	operationsTotal.WithLabelValues(op, status).Inc()
}
