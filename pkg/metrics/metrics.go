package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ingestion metrics
	EventsReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_events_received_total",
			Help: "Total number of events accepted by the submit API",
		},
	)

	EventsPersisted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_events_persisted_total",
			Help: "Total number of events inserted into the store",
		},
	)

	DuplicatesSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_duplicates_suppressed_total",
			Help: "Total number of duplicate submissions suppressed",
		},
	)

	DLQMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_dlq_messages_total",
			Help: "Total number of messages routed to the ingestion DLQ",
		},
	)

	IngestBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_ingest_batch_duration_seconds",
			Help:    "Time taken to persist one consumed batch in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Scheduler metrics
	EventsClaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_events_claimed_total",
			Help: "Total number of events claimed by the poller",
		},
	)

	EventsExecuted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_events_executed_total",
			Help: "Total number of events delivered successfully",
		},
	)

	EventsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_events_failed_total",
			Help: "Total number of failed delivery attempts",
		},
	)

	EventsDeadLettered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_events_dead_lettered_total",
			Help: "Total number of events parked in DEAD_LETTER",
		},
	)

	// Delivery metrics
	HTTPDeliveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_http_deliveries_total",
			Help: "Total number of HTTP delivery attempts",
		},
	)

	KafkaDeliveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_kafka_deliveries_total",
			Help: "Total number of Kafka delivery attempts",
		},
	)

	DeliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_delivery_duration_seconds",
			Help:    "Delivery attempt duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Maintenance metrics
	LeasesReleased = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_leases_released_total",
			Help: "Total number of expired leases returned to PENDING",
		},
	)

	EventsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_events_deleted_total",
			Help: "Total number of terminal events removed by retention",
		},
	)

	// Store state metrics
	EventsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatch_events_total",
			Help: "Number of events in the store by status",
		},
		[]string{"status"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(EventsReceived)
	prometheus.MustRegister(EventsPersisted)
	prometheus.MustRegister(DuplicatesSuppressed)
	prometheus.MustRegister(DLQMessages)
	prometheus.MustRegister(IngestBatchDuration)
	prometheus.MustRegister(EventsClaimed)
	prometheus.MustRegister(EventsExecuted)
	prometheus.MustRegister(EventsFailed)
	prometheus.MustRegister(EventsDeadLettered)
	prometheus.MustRegister(HTTPDeliveries)
	prometheus.MustRegister(KafkaDeliveries)
	prometheus.MustRegister(DeliveryDuration)
	prometheus.MustRegister(LeasesReleased)
	prometheus.MustRegister(EventsDeleted)
	prometheus.MustRegister(EventsByStatus)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
