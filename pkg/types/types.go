package types

import (
	"time"
	"unicode/utf8"
)

// EventStatus represents the lifecycle state of a scheduled event
type EventStatus string

const (
	StatusPending    EventStatus = "PENDING"
	StatusProcessing EventStatus = "PROCESSING"
	StatusCompleted  EventStatus = "COMPLETED"
	StatusDeadLetter EventStatus = "DEAD_LETTER"
	StatusCancelled  EventStatus = "CANCELLED"
)

// Terminal reports whether the status is final. Terminal events carry an
// executed_at timestamp and are eligible for retention cleanup.
func (s EventStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusDeadLetter, StatusCancelled:
		return true
	}
	return false
}

// DeliveryType selects the channel an event is delivered on
type DeliveryType string

const (
	DeliveryHTTP  DeliveryType = "HTTP"
	DeliveryKafka DeliveryType = "KAFKA"
)

// MaxErrorLength bounds the persisted last_error column.
const MaxErrorLength = 4000

// Event is a scheduled delivery unit, the central data entity.
//
// Workers never own an event; they hold a time-bounded lease recorded in
// LockedBy/LockExpiresAt while the event is PROCESSING.
type Event struct {
	ID            string       `json:"id"`
	ExternalJobID string       `json:"external_job_id"`
	Source        string       `json:"source"`
	ScheduledAt   time.Time    `json:"scheduled_at"`
	DeliveryType  DeliveryType `json:"delivery_type"`
	Destination   string       `json:"destination"`
	Payload       []byte       `json:"payload"`
	Status        EventStatus  `json:"status"`
	RetryCount    int          `json:"retry_count"`
	MaxRetries    int          `json:"max_retries"`
	LastError     string       `json:"last_error,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	ExecutedAt    *time.Time   `json:"executed_at,omitempty"`
	LockedBy      string       `json:"locked_by,omitempty"`
	LockExpiresAt *time.Time   `json:"lock_expires_at,omitempty"`
	PartitionKey  int          `json:"partition_key"`
}

// CanRetry reports whether another delivery attempt is allowed
func (e *Event) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// PartitionKey derives the table partition discriminator from the scheduled
// time: year*1000 + day-of-year, in UTC. Immutable once the row is inserted
// because scheduled_at is immutable.
func PartitionKey(t time.Time) int {
	u := t.UTC()
	return u.Year()*1000 + u.YearDay()
}

// TruncateError bounds an error message to the persisted column size. The
// cut lands on a rune boundary so the result is always valid UTF-8.
func TruncateError(msg string) string {
	if len(msg) <= MaxErrorLength {
		return msg
	}
	cut := MaxErrorLength
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

// EventStatistics holds aggregate counts per status
type EventStatistics struct {
	Pending      int64 `json:"pending"`
	Processing   int64 `json:"processing"`
	Completed    int64 `json:"completed"`
	DeadLetter   int64 `json:"dead_letter"`
	Cancelled    int64 `json:"cancelled"`
	UpcomingHour int64 `json:"upcoming_hour"`
}

// Total returns the sum across all statuses
func (s EventStatistics) Total() int64 {
	return s.Pending + s.Processing + s.Completed + s.DeadLetter + s.Cancelled
}
