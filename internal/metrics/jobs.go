package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsLive, jobsCreated, jobsResolved, jobsEvicted, jobUpdateMisses)
}

var (
	jobsLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "onboard_jobs_live",
		Help: "Enrichment jobs currently held in the job status store.",
	})

	jobsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "onboard_jobs_created_total",
		Help: "Enrichment jobs created.",
	})

	jobsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onboard_jobs_resolved_total",
			Help: "Terminal job updates by status (success/error).",
		},
		[]string{"status"},
	)

	jobsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "onboard_jobs_evicted_total",
		Help: "Jobs removed by the TTL sweep.",
	})

	jobUpdateMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "onboard_job_update_misses_total",
		Help: "Updates addressed to a job id not present in the store.",
	})
)

// SetJobsLive records the current job store size.
func SetJobsLive(n int) { jobsLive.Set(float64(n)) }

// JobCreated counts a new job.
func JobCreated() { jobsCreated.Inc() }

// JobResolved counts a terminal job update.
func JobResolved(status string) { jobsResolved.WithLabelValues(status).Inc() }

// JobsEvicted counts jobs removed by a sweep.
func JobsEvicted(n int) { jobsEvicted.Add(float64(n)) }

// JobUpdateMiss counts an update for an unknown job id.
func JobUpdateMiss() { jobUpdateMisses.Inc() }
