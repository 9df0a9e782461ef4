package document

import "github.com/prometheus/client_golang/prometheus"

var (
	runOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docscan",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "The total number of finished extraction runs.",
		},
		[]string{"kind", "status"},
	)

	ocrDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docscan",
			Subsystem: "pipeline",
			Name:      "ocr_duration_seconds",
			Help:      "Time spent waiting for the OCR engine.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"engine"},
	)

	billOps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docscan",
			Subsystem: "ledger",
			Name:      "bills_created_total",
			Help:      "The total number of ledger bills created from documents.",
		},
	)
)

func init() {
	prometheus.MustRegister(runOps)
	prometheus.MustRegister(ocrDuration)
	prometheus.MustRegister(billOps)
}

// RecordRun counts a finished run
func RecordRun(kind Kind, status Status) {
	runOps.WithLabelValues(string(kind), string(status)).Inc()
}

// RecordOCRDuration records how long the engine took
func RecordOCRDuration(engine string, seconds float64) {
	ocrDuration.WithLabelValues(engine).Observe(seconds)
}

// RecordBillCreated counts a created ledger bill
func RecordBillCreated() {
	billOps.Inc()
}
