// internal/observability/metrics.go

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SnapshotsReceived counts live query snapshots by view kind.
	SnapshotsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wimbli_sync_snapshots_received_total",
		Help: "Total number of live query snapshots received",
	}, []string{"view"})

	// ViewsPublished counts published view states by view kind.
	ViewsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wimbli_sync_views_published_total",
		Help: "Total number of view states published",
	}, []string{"view"})

	// StaleResolutions counts resolutions discarded because a newer snapshot arrived.
	StaleResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wimbli_sync_stale_resolutions_total",
		Help: "Total number of resolution passes discarded as stale",
	}, []string{"view"})

	// ListenerErrors counts live query failures by view kind.
	ListenerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wimbli_sync_listener_errors_total",
		Help: "Total number of live query listener errors",
	}, []string{"view"})

	// ResolverReads counts owner profile point reads issued by the display resolver.
	ResolverReads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wimbli_resolver_reads_total",
		Help: "Total number of owner profile reads issued by the resolver",
	})

	// ResolverFallbacks counts items that fell back to the unknown display.
	ResolverFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wimbli_resolver_fallbacks_total",
		Help: "Total number of items resolved to the unknown display",
	})

	// OptimisticRollbacks counts compensated optimistic mutations by kind.
	OptimisticRollbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wimbli_optimistic_rollbacks_total",
		Help: "Total number of optimistic mutations rolled back",
	}, []string{"mutation"})

	// ExpiredPostsDeleted counts posts removed by the expiry sweeper.
	ExpiredPostsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wimbli_expiry_posts_deleted_total",
		Help: "Total number of expired posts deleted",
	})

	// ExpiryFailedBatches counts delete batches that failed during a sweep.
	ExpiryFailedBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wimbli_expiry_failed_batches_total",
		Help: "Total number of expiry delete batches that failed",
	})

	// WebSocketConnections is the gauge of open view streams by view kind.
	WebSocketConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wimbli_websocket_connections",
		Help: "Number of open WebSocket view streams",
	}, []string{"view"})

	// HTTPRequestDuration records request latency by route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wimbli_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
