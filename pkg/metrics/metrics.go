// Package metrics exposes Prometheus collectors for the overlay hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive tracks live WebSocket connections by role.
	ConnectionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "overlay",
		Name:      "connections_active",
		Help:      "Number of live WebSocket connections by role.",
	}, []string{"role"})

	// MessagesPublished counts hub publishes by topic.
	MessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overlay",
		Name:      "messages_published_total",
		Help:      "Messages published to session members, by topic.",
	}, []string{"topic"})

	// MessagesDropped counts per-member deliveries skipped due to a full send buffer.
	MessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "overlay",
		Name:      "messages_dropped_total",
		Help:      "Deliveries skipped because a member send buffer was full.",
	})

	// AdaptersActive tracks live external event adapters by kind.
	AdaptersActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "overlay",
		Name:      "adapters_active",
		Help:      "Number of active external event adapters by kind.",
	}, []string{"kind"})

	// SnapshotSaves counts snapshot write attempts by outcome.
	SnapshotSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overlay",
		Name:      "snapshot_saves_total",
		Help:      "Debounced snapshot writes, by outcome.",
	}, []string{"outcome"})

	// TTSQueueDepth tracks queued announcements across sessions.
	TTSQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "overlay",
		Name:      "tts_queue_depth",
		Help:      "Announcements waiting for playback across all sessions.",
	})
)
