package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/softwarestrategies/dispatch/pkg/config"
	"github.com/softwarestrategies/dispatch/pkg/log"
	"github.com/softwarestrategies/dispatch/pkg/metrics"
	"github.com/softwarestrategies/dispatch/pkg/types"
)

// retriableStatus holds the HTTP status codes worth another attempt. Every
// other non-2xx status is terminal.
var retriableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Result classifies one delivery attempt
type Result struct {
	Success   bool
	Retriable bool
	Err       error
}

func success() Result {
	return Result{Success: true}
}

func retriable(err error) Result {
	return Result{Retriable: true, Err: err}
}

func terminal(err error) Result {
	return Result{Err: err}
}

// TopicProducer publishes KAFKA-type deliveries
type TopicProducer interface {
	Deliver(ctx context.Context, topic, key string, payload []byte) error
}

// Engine executes delivery attempts. It never mutates store state; the
// caller applies the Result through the outcome writer.
type Engine struct {
	httpClient *http.Client
	producer   TopicProducer
	logger     zerolog.Logger
}

// NewEngine creates a delivery engine with the configured HTTP timeouts
func NewEngine(cfg *config.Config, producer TopicProducer) *Engine {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.HTTPConnectTimeout(),
		}).DialContext,
		MaxIdleConnsPerHost: 10,
	}
	return &Engine{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.HTTPReadTimeout(),
		},
		producer: producer,
		logger:   log.WithComponent("delivery"),
	}
}

// Deliver executes one attempt for the event. A panic in the attempt is
// contained and classified as retriable.
func (e *Engine) Deliver(ctx context.Context, event *types.Event) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("event_id", event.ID).
				Interface("panic", r).
				Msg("Delivery attempt panicked")
			result = retriable(fmt.Errorf("delivery panicked: %v", r))
		}
	}()

	timer := metrics.NewTimer()
	defer func() { timer.ObserveDuration(metrics.DeliveryDuration) }()

	switch event.DeliveryType {
	case types.DeliveryHTTP:
		metrics.HTTPDeliveries.Inc()
		return e.deliverHTTP(ctx, event)
	case types.DeliveryKafka:
		metrics.KafkaDeliveries.Inc()
		return e.deliverKafka(ctx, event)
	default:
		return terminal(fmt.Errorf("unknown delivery type %q", event.DeliveryType))
	}
}

func (e *Engine) deliverHTTP(ctx context.Context, event *types.Event) Result {
	u, err := url.Parse(event.Destination)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return terminal(fmt.Errorf("invalid destination url %q", event.Destination))
	}

	body := event.Payload
	if len(body) == 0 {
		body = []byte("{}")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, event.Destination, bytes.NewReader(body))
	if err != nil {
		return terminal(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Dispatch-Event-Id", event.ID)
	req.Header.Set("X-Dispatch-External-Job-Id", event.ExternalJobID)
	req.Header.Set("X-Dispatch-Source", event.Source)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		// Connection and timeout failures may clear up on a later attempt
		return retriable(fmt.Errorf("http delivery failed: %w", err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return success()
	}
	statusErr := fmt.Errorf("HTTP %d from %s", resp.StatusCode, u.Host)
	if retriableStatus[resp.StatusCode] {
		return retriable(statusErr)
	}
	return terminal(statusErr)
}

func (e *Engine) deliverKafka(ctx context.Context, event *types.Event) Result {
	if err := e.producer.Deliver(ctx, event.Destination, event.ExternalJobID, event.Payload); err != nil {
		// Broker errors are transient from the scheduler's point of view
		return retriable(fmt.Errorf("kafka delivery failed: %w", err))
	}
	return success()
}
