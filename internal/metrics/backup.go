package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tenant_backup"

var (
	// JobsTotal counts jobs that reached a terminal status.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Backup jobs by terminal status",
		},
		[]string{"status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time from processing to a terminal status",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"status"},
	)

	RecordsExported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_exported_total",
			Help:      "Records written to archives, by module",
		},
		[]string{"module"},
	)

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Jobs waiting for a worker",
	})

	RunningJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "running_jobs",
		Help:      "Jobs currently being exported",
	})

	QueueRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_rejections_total",
		Help:      "Jobs rejected because the queue was full",
	})
)
