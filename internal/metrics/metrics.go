package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "browsercluster"

var (
	// QueueDepthGauge tracks the current depth of the scheduler's delay
	// queue (cluster.Cluster.QueueDepth).
	QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current number of jobs queued, delayed ones included",
	})

	// ActiveWorkersGauge tracks the number of workers currently holding at
	// least one active job (cluster.Cluster.BusyWorkers).
	ActiveWorkersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_workers",
		Help:      "Current number of workers with at least one active job",
	})

	// WorkerPoolSizeGauge tracks the current spawned worker population.
	WorkerPoolSizeGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_pool_size",
		Help:      "Current number of spawned workers",
	})

	// JobsProcessedCounter tracks jobs that reached a successful terminal
	// outcome.
	JobsProcessedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_processed_total",
		Help:      "Total number of jobs successfully processed",
	})

	// JobsFailedCounter tracks jobs that reached a terminal (non-retried)
	// error.
	JobsFailedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_failed_total",
		Help:      "Total number of jobs that failed without being retried further",
	})

	// JobsRetriedCounter tracks every retry-eligible task error, regardless
	// of whether the retry itself later succeeds.
	JobsRetriedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_retried_total",
		Help:      "Total number of task errors that resulted in a retry",
	})

	// DuplicateURLsDroppedCounter tracks jobs dropped by the
	// skip-duplicate-urls filter.
	DuplicateURLsDroppedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "duplicate_urls_dropped_total",
		Help:      "Total number of jobs dropped because their URL was already seen",
	})

	// DomainDelayWaitsCounter tracks jobs deferred by the same-domain-delay
	// admission filter.
	DomainDelayWaitsCounter = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "domain_delay_waits_total",
		Help:      "Total number of dispatch attempts deferred by the same-domain delay filter",
	})
)
