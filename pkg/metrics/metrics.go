// Package metrics provides Prometheus metrics for report synchronization.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// statusCacheLookups counts status cache lookups.
	// Labels:
	//   - result: "hit" or "miss"
	statusCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_status_cache_lookups_total",
			Help: "Status cache lookups by result",
		},
		[]string{"result"},
	)

	// localStoreOps counts local draft store operations.
	// Labels:
	//   - op: "save", "load", "remove"
	//   - outcome: "ok", "not_found", "corrupt", "error"
	localStoreOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_local_store_operations_total",
			Help: "Local draft store operations by outcome",
		},
		[]string{"op", "outcome"},
	)

	// submissions counts report submission results.
	// Labels:
	//   - outcome: SubmissionSubmitted, SubmissionFailed, SubmissionDraftKept
	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_submissions_total",
			Help: "Weekly report submissions by outcome",
		},
		[]string{"outcome"},
	)

	// remoteDuration records portal call latency.
	// Labels:
	//   - operation: "submit_report", "fetch_report", "fetch_release"
	//   - status: "ok" or "error"
	remoteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "report_remote_request_duration_seconds",
			Help:    "Duration of student portal requests in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation", "status"},
	)

	// releaseCacheLookups counts curriculum release cache lookups.
	// Labels:
	//   - result: "hit", "miss", "forced"
	releaseCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "curriculum_release_cache_lookups_total",
			Help: "Curriculum release cache lookups by result",
		},
		[]string{"result"},
	)
)

// Submission outcomes.
const (
	SubmissionSubmitted = "submitted"
	SubmissionFailed    = "failed"
	SubmissionDraftKept = "draft_kept"
)

func init() {
	prometheus.MustRegister(statusCacheLookups)
	prometheus.MustRegister(localStoreOps)
	prometheus.MustRegister(submissions)
	prometheus.MustRegister(remoteDuration)
	prometheus.MustRegister(releaseCacheLookups)
}

// RecordStatusCacheLookup records a status cache hit or miss.
func RecordStatusCacheLookup(hit bool) {
	if hit {
		statusCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	statusCacheLookups.WithLabelValues("miss").Inc()
}

// RecordLocalStore records a local store operation outcome.
func RecordLocalStore(op, outcome string) {
	localStoreOps.WithLabelValues(op, outcome).Inc()
}

// RecordSubmission records a submission outcome.
func RecordSubmission(outcome string) {
	submissions.WithLabelValues(outcome).Inc()
}

// ObserveRemote records the duration of a portal call.
func ObserveRemote(operation string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	remoteDuration.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}

// RecordReleaseCacheLookup records a release cache lookup.
func RecordReleaseCacheLookup(result string) {
	releaseCacheLookups.WithLabelValues(result).Inc()
}
