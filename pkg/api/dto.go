package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/softwarestrategies/dispatch/pkg/types"
)

// SubmitRequest is the body of a single event submission
type SubmitRequest struct {
	ExternalJobID string          `json:"external_job_id" validate:"required,max=255"`
	Source        string          `json:"source" validate:"required,max=100"`
	ScheduledAt   time.Time       `json:"scheduled_at" validate:"required"`
	DeliveryType  string          `json:"delivery_type" validate:"required,oneof=HTTP KAFKA"`
	Destination   string          `json:"destination" validate:"required,max=2048"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	MaxRetries    *int            `json:"max_retries,omitempty" validate:"omitempty,min=0,max=10"`
}

// checkSemantics covers the rules struct tags cannot express
func (r *SubmitRequest) checkSemantics(now time.Time) error {
	if !r.ScheduledAt.After(now) {
		return fmt.Errorf("scheduled_at must be in the future")
	}
	switch types.DeliveryType(r.DeliveryType) {
	case types.DeliveryHTTP:
		if !strings.HasPrefix(r.Destination, "http://") && !strings.HasPrefix(r.Destination, "https://") {
			return fmt.Errorf("destination must be an http or https url for HTTP delivery")
		}
	case types.DeliveryKafka:
		if strings.ContainsAny(r.Destination, " \t") {
			return fmt.Errorf("destination must be a topic name without whitespace for KAFKA delivery")
		}
	}
	return nil
}

// SubmitResponse acknowledges an accepted submission
type SubmitResponse struct {
	MessageID string `json:"message_id"`
	Message   string `json:"message"`
}

// BatchRequest wraps the entries of a batch submission
type BatchRequest struct {
	Events []SubmitRequest `json:"events"`
}

// BatchRejection describes one rejected entry of a batch submission
type BatchRejection struct {
	Index         int    `json:"index"`
	ExternalJobID string `json:"external_job_id"`
	Reason        string `json:"reason"`
}

// BatchResponse summarizes a batch submission
type BatchResponse struct {
	Total         int              `json:"total"`
	AcceptedCount int              `json:"accepted_count"`
	RejectedCount int              `json:"rejected_count"`
	Accepted      []string         `json:"accepted"`
	Rejected      []BatchRejection `json:"rejected"`
}

// CancelResponse reports a bulk cancellation
type CancelResponse struct {
	Cancelled int64 `json:"cancelled"`
}

// CleanupResponse reports a manual cleanup run
type CleanupResponse struct {
	Deleted int64 `json:"deleted"`
}

// StatisticsResponse reports aggregate counts
type StatisticsResponse struct {
	Pending      int64 `json:"pending"`
	Processing   int64 `json:"processing"`
	Completed    int64 `json:"completed"`
	DeadLetter   int64 `json:"dead_letter"`
	Cancelled    int64 `json:"cancelled"`
	Total        int64 `json:"total"`
	UpcomingHour int64 `json:"upcoming_hour"`
}

// ErrorBody is the error envelope carried by every non-2xx response
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail names the failure
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
