package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder groups the service collectors. Build one per registry.
type Recorder struct {
	scans       *prometheus.CounterVec
	scanErrors  *prometheus.CounterVec
	scanLatency prometheus.Histogram
	enqueued    prometheus.Counter
	replayed    *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg uses the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		scans: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "scans_total",
			Help:      "Scans applied, by outcome and credential kind.",
		}, []string{"outcome", "credential"}),
		scanErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "scan_errors_total",
			Help:      "Scans rejected or failed, by reason.",
		}, []string{"reason"}),
		scanLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "attendance",
			Name:      "scan_duration_seconds",
			Help:      "Time spent applying one scan.",
			Buckets:   prometheus.DefBuckets,
		}),
		enqueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "scans_enqueued_total",
			Help:      "Buffered scans accepted for replay.",
		}),
		replayed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "scans_replayed_total",
			Help:      "Buffered scans replayed by the worker, by result.",
		}, []string{"result"}),
	}
}

// Scan records an applied scan.
func (r *Recorder) Scan(outcome, credential string, took time.Duration) {
	if r == nil {
		return
	}
	r.scans.WithLabelValues(outcome, credential).Inc()
	r.scanLatency.Observe(took.Seconds())
}

// ScanError records a scan that did not apply.
func (r *Recorder) ScanError(reason string) {
	if r == nil {
		return
	}
	r.scanErrors.WithLabelValues(reason).Inc()
}

// Enqueued counts buffered scans handed to the queue.
func (r *Recorder) Enqueued(n int) {
	if r == nil {
		return
	}
	r.enqueued.Add(float64(n))
}

// Replayed counts one worker replay with result "ok", "rejected" or "failed".
func (r *Recorder) Replayed(result string) {
	if r == nil {
		return
	}
	r.replayed.WithLabelValues(result).Inc()
}
