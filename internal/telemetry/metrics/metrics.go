// Package metrics holds the Prometheus collectors for the hub and ledger, registered on the default
// registry and served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HubConnections is the number of endpoints currently registered across all projects.
	HubConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "canvas_hub_connections",
		Help: "Endpoints currently registered in the hub.",
	})

	// HubProjects is the number of projects with at least one registered endpoint.
	HubProjects = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "canvas_hub_projects",
		Help: "Projects with at least one registered endpoint.",
	})

	// HubDeliveries counts per-endpoint broadcast deliveries by result (delivered, dropped).
	HubDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvas_hub_deliveries_total",
		Help: "Per-endpoint broadcast deliveries by result.",
	}, []string{"result"})

	// HubBroadcastDuration observes how long a broadcast fan-out takes end to end.
	HubBroadcastDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "canvas_hub_broadcast_duration_seconds",
		Help:    "Wall time of one broadcast fan-out.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	// HubRejections counts handshakes refused before registration, by reason.
	HubRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvas_hub_rejections_total",
		Help: "Connection attempts rejected before registration.",
	}, []string{"reason"})

	// LedgerAppends counts Append outcomes (ok, conflict, error).
	LedgerAppends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvas_ledger_appends_total",
		Help: "History ledger appends by outcome.",
	}, []string{"result"})

	// LedgerRetries counts sequence-number races lost to another writer.
	LedgerRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canvas_ledger_retries_total",
		Help: "Append attempts retried after a sequence conflict.",
	})

	// CanvasSaves counts Save calls by transport (http, grpc, ws) and result.
	CanvasSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canvas_saves_total",
		Help: "Canvas save requests by transport and result.",
	}, []string{"transport", "result"})
)
