package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PushRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsync_processed_push_ops_total",
		Help: "The total number of processed push requests",
	})
	VerificationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_processed_verification_ops_total",
		Help: "The total number of processed hub verification requests by mode.",
	}, []string{"mode"})
	PushDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_push_deliveries_total",
		Help: "Number of push deliveries routed to a feed.",
	}, []string{"kind"})
	IncompleteDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_incomplete_deliveries_total",
		Help: "Number of push deliveries which filled a whole page and triggered a crawl.",
	}, []string{"kind"})
	CrawledPages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_crawled_pages_total",
		Help: "Number of feed pages fetched while crawling.",
	}, []string{"kind"})
	CursorAdvances = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_cursor_advances_total",
		Help: "Number of times a feed cursor moved to a newer entity.",
	}, []string{"kind"})
	DispatchedNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_dispatched_notifications_total",
		Help: "Number of listener invocations which completed successfully.",
	}, []string{"kind"})
	ListenerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_listener_failures_total",
		Help: "Number of listener invocations which returned an error or panicked.",
	}, []string{"kind"})
	DispatchQueueLength = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "feedsync_dispatch_queue_length",
		Help: "Current number of listener invocations waiting for a worker.",
	}, []string{"kind"})
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsync_processed_cache_hits_ops_total",
		Help: "The total number of cache hits",
	})
	CacheMiss = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedsync_processed_cache_miss_ops_total",
		Help: "The total number of cache misses",
	})
	AppErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedsync_errors_total",
		Help: "Number of errors for the app.",
	}, []string{"type"})
	SubscriptionResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "feedsync_subscription_results",
		Help: "Results of the last subscribe or unsubscribe run.",
	}, []string{"action", "result"})
)
