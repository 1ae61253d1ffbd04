package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	mist = "mist"

	jobsSubmittedTotal   = "jobs_submitted_total"
	jobsRejectedTotal    = "jobs_rejected_total"
	jobTransitionsTotal  = "job_transitions_total"
	jobsRunning          = "jobs_running"
	jobExecutionDuration = "job_execution_duration_seconds"
	jobRetriesTotal      = "job_retries_total"
	jobsReapedTotal      = "jobs_reaped_total"
	dispatcherFreeSlots  = "dispatcher_free_slots"
	authFailuresTotal    = "auth_failures_total"

	// Labels
	fromStateLabel = "from"
	toStateLabel   = "to"
	outcomeLabel   = "outcome"
	reasonLabel    = "reason"
	schemeLabel    = "scheme"
)

var jobsSubmittedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: mist,
		Name:      jobsSubmittedTotal,
		Help:      "number of jobs accepted by the gateway",
	},
)

var jobsRejectedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: mist,
		Name:      jobsRejectedTotal,
		Help:      "number of submissions rejected before a job was recorded",
	},
	[]string{reasonLabel},
)

var jobTransitionsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: mist,
		Name:      jobTransitionsTotal,
		Help:      "number of successful job state transitions",
	},
	[]string{fromStateLabel, toStateLabel},
)

var jobsRunningMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: mist,
		Name:      jobsRunning,
		Help:      "number of jobs currently executing on the dispatcher pool",
	},
)

var jobExecutionDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: mist,
		Name:      jobExecutionDuration,
		Help:      "time spent executing a job, retries included",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 30, 120, 600},
	},
	[]string{outcomeLabel},
)

var jobRetriesTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: mist,
		Name:      jobRetriesTotal,
		Help:      "number of execution retries after a transient failure",
	},
)

var jobsReapedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: mist,
		Name:      jobsReapedTotal,
		Help:      "number of running jobs failed by the reaper",
	},
)

var dispatcherFreeSlotsMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: mist,
		Name:      dispatcherFreeSlots,
		Help:      "number of idle executor slots",
	},
)

var authFailuresTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: mist,
		Name:      authFailuresTotal,
		Help:      "number of rejected credentials",
	},
	[]string{schemeLabel},
)

func IncreaseJobsSubmittedMetric() {
	jobsSubmittedTotalMetric.Inc()
}

func IncreaseJobsRejectedMetric(reason string) {
	jobsRejectedTotalMetric.With(prometheus.Labels{reasonLabel: reason}).Inc()
}

func IncreaseJobTransitionMetric(from, to string) {
	labels := prometheus.Labels{
		fromStateLabel: from,
		toStateLabel:   to,
	}
	jobTransitionsTotalMetric.With(labels).Inc()
}

func IncreaseRunningJobsMetric() {
	jobsRunningMetric.Inc()
}

func DecreaseRunningJobsMetric() {
	jobsRunningMetric.Dec()
}

func ObserveJobExecutionMetric(outcome string, d time.Duration) {
	jobExecutionDurationMetric.With(prometheus.Labels{outcomeLabel: outcome}).Observe(d.Seconds())
}

func IncreaseJobRetriesMetric() {
	jobRetriesTotalMetric.Inc()
}

func IncreaseJobsReapedMetric() {
	jobsReapedTotalMetric.Inc()
}

func UpdateFreeSlotsMetric(free int) {
	dispatcherFreeSlotsMetric.Set(float64(free))
}

func IncreaseAuthFailuresMetric(scheme string) {
	authFailuresTotalMetric.With(prometheus.Labels{schemeLabel: scheme}).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsSubmittedTotalMetric)
	prometheus.MustRegister(jobsRejectedTotalMetric)
	prometheus.MustRegister(jobTransitionsTotalMetric)
	prometheus.MustRegister(jobsRunningMetric)
	prometheus.MustRegister(jobExecutionDurationMetric)
	prometheus.MustRegister(jobRetriesTotalMetric)
	prometheus.MustRegister(jobsReapedTotalMetric)
	prometheus.MustRegister(dispatcherFreeSlotsMetric)
	prometheus.MustRegister(authFailuresTotalMetric)
}
