package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Gateway metrics
var (
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connected_clients",
		Help: "Number of WebSocket clients currently registered.",
	})

	MessagesRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_routed_total",
		Help: "Chat messages accepted by the gateway, by outcome.",
	}, []string{"result"})

	FramesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_frames_delivered_total",
		Help: "Real-time frames pushed to connected sockets, by target.",
	}, []string{"target"})

	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_stream_publish_failures_total",
		Help: "Failed publishes to the message event stream. Each one is a potential durability loss.",
	})
)

// Persistence consumer metrics
var (
	BatchFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_batch_flush_total",
		Help: "Flush attempts of the batch persistence consumer, by outcome.",
	}, []string{"result"})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chat_batch_size",
		Help:    "Messages per persisted batch.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	DeadLettered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_dead_letter_total",
		Help: "Messages routed to the dead-letter topic after exhausting retries.",
	})
)
