//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2025 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

// Package monitoring defines the prometheus metrics the statement store
// reports about itself.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Entries           prometheus.Gauge
	TextBytesReserved prometheus.Gauge
	Deallocations     prometheus.Counter
	EvictedEntries    prometheus.Counter
	TextGCRuns        prometheus.Counter
	TextGCFailures    prometheus.Counter
	IngestDurations   prometheus.Histogram
	SnapshotDurations prometheus.Histogram
}

// NewMetrics registers the store metrics with reg. A nil reg yields working
// but unregistered collectors, which is what tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Entries: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "querystats_entries",
			Help: "Number of statement entries currently held in the table",
		}),
		TextBytesReserved: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "querystats_text_bytes_reserved",
			Help: "Bytes reserved in the external query text file",
		}),
		Deallocations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "querystats_deallocations_total",
			Help: "Number of eviction passes run because the table was full",
		}),
		EvictedEntries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "querystats_evicted_entries_total",
			Help: "Number of entries removed by eviction passes",
		}),
		TextGCRuns: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "querystats_text_gc_total",
			Help: "Number of query text file garbage collections",
		}),
		TextGCFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "querystats_text_gc_failures_total",
			Help: "Number of garbage collections that had to invalidate query texts",
		}),
		IngestDurations: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "querystats_ingest_duration_seconds",
			Help:    "Time spent recording a single statement sample",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
		SnapshotDurations: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "querystats_snapshot_duration_seconds",
			Help:    "Time spent producing a full statistics snapshot",
			Buckets: prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
	}
}
