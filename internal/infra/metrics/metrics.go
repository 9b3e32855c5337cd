// Package metrics provides Prometheus metrics for chunkmesh — counters,
// gauges, and histograms for chunk transfer, reputation, downloads, and
// the tracker index.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Chunk Transfer ─────────────────────────────────────────────────────────

// ChunksFetched tracks chunk fetch attempts by outcome
// (verified, corrupt, refused, failed).
var ChunksFetched = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chunkmesh",
	Name:      "chunks_fetched_total",
	Help:      "Total chunk fetch attempts by outcome.",
}, []string{"outcome"})

// ChunkFetchLatency tracks the duration of successful chunk fetches.
var ChunkFetchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "chunkmesh",
	Name:      "chunk_fetch_latency_seconds",
	Help:      "Duration of successful chunk fetches.",
	Buckets:   prometheus.DefBuckets,
})

// ChunksServed tracks chunks served to other peers.
var ChunksServed = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "chunkmesh",
	Name:      "chunks_served_total",
	Help:      "Total chunks served to other peers.",
})

// ─── Downloads ──────────────────────────────────────────────────────────────

// DownloadsActive tracks currently running download jobs.
var DownloadsActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "chunkmesh",
	Name:      "downloads_active",
	Help:      "Number of currently running download jobs.",
})

// DownloadsFinished tracks finished download jobs by final status.
var DownloadsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chunkmesh",
	Name:      "downloads_finished_total",
	Help:      "Total finished download jobs by final status.",
}, []string{"status"})

// ─── Reputation ─────────────────────────────────────────────────────────────

// ReputationEvents tracks recorded reputation events by type.
var ReputationEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "chunkmesh",
	Name:      "reputation_events_total",
	Help:      "Total reputation events recorded, by event type.",
}, []string{"event"})

// ─── Tracker ────────────────────────────────────────────────────────────────

// TrackerFilesIndexed tracks files currently in the tracker index.
var TrackerFilesIndexed = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "chunkmesh",
	Name:      "tracker_files_indexed",
	Help:      "Files currently present in the tracker index.",
})

// TrackerPeersRegistered tracks peers currently registered with the tracker.
var TrackerPeersRegistered = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "chunkmesh",
	Name:      "tracker_peers_registered",
	Help:      "Peers currently registered with the tracker.",
})
