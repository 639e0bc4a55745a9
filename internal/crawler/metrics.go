package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesTotal counts listing pages by outcome (ok, failed, disallowed).
	PagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_pages_total",
		Help: "Listing pages processed, by outcome.",
	}, []string{"outcome"})
	// RecordsSkipped counts records dropped from delivery, by reason.
	RecordsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_records_skipped_total",
		Help: "Records skipped, by reason.",
	}, []string{"reason"})
	// RecordsDelivered counts records accepted by the collector.
	RecordsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_records_delivered_total",
		Help: "Records accepted by the downstream collector.",
	})
	// DeliveryAttempts counts delivery calls by mode (batch, single).
	DeliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_delivery_attempts_total",
		Help: "Delivery calls issued, by mode.",
	}, []string{"mode"})
	// RenderDuration observes listing render latency.
	RenderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvester_render_duration_seconds",
		Help:    "Latency of listing page renders.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
	})

	detailAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_detail_attempts_total",
		Help: "Detail page render attempts.",
	})
)

const (
	outcomeOK         = "ok"
	outcomeFailed     = "failed"
	outcomeDisallowed = "disallowed"
)
