package translate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatbridge_chunks_total",
		Help: "Chunk submissions by terminal status.",
	}, []string{"status"})

	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatbridge_jobs_total",
		Help: "Translation jobs by terminal status.",
	}, []string{"status"})

	chunkSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatbridge_chunk_seconds",
		Help:    "Wall time of one chunk submission including recovery.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)
