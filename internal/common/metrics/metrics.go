// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	TransportAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medkit_transport_attempts_total",
			Help: "Outbound HTTP attempts by host and outcome",
		},
		[]string{"host", "outcome"},
	)

	FetcherResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medkit_fetcher_results_total",
			Help: "Knowledge source results by source and status",
		},
		[]string{"source", "status"},
	)

	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medkit_llm_requests_total",
			Help: "Language model requests by outcome",
		},
		[]string{"outcome"},
	)

	DescriptionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medkit_descriptions_total",
			Help: "Medicine descriptions by how they were produced (summary, raw, canned)",
		},
		[]string{"kind"},
	)
)

// JobTimer observes a job's duration and outcome. Call Done exactly once.
type JobTimer struct {
	taskType string
	timer    *prometheus.Timer
}

func StartJob(taskType string) *JobTimer {
	WorkerJobsActive.WithLabelValues(taskType).Inc()
	return &JobTimer{
		taskType: taskType,
		timer:    prometheus.NewTimer(WorkerJobDuration.WithLabelValues(taskType)),
	}
}

// Done records completion when errorCode is empty and failure otherwise.
func (j *JobTimer) Done(errorCode string) {
	j.timer.ObserveDuration()
	WorkerJobsActive.WithLabelValues(j.taskType).Dec()
	if errorCode == "" {
		WorkerJobsCompleted.WithLabelValues(j.taskType).Inc()
		return
	}
	WorkerJobsFailed.WithLabelValues(j.taskType, errorCode).Inc()
}
