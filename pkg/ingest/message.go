package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/softwarestrategies/dispatch/pkg/types"
)

// Message is the wire form of a submission on the ingestion topic
type Message struct {
	MessageID     string             `json:"message_id"`
	ExternalJobID string             `json:"external_job_id"`
	Source        string             `json:"source"`
	ScheduledAt   time.Time          `json:"scheduled_at"`
	DeliveryType  types.DeliveryType `json:"delivery_type"`
	Destination   string             `json:"destination"`
	Payload       json.RawMessage    `json:"payload,omitempty"`
	MaxRetries    int                `json:"max_retries"`
	ReceivedAt    time.Time          `json:"received_at"`
}

// PartitionKey returns the Kafka record key. Keying on (source, external job
// id) lands all submissions of one logical job on one partition, so
// re-submissions arrive in order at the persister.
func (m *Message) PartitionKey() string {
	return m.Source + ":" + m.ExternalJobID
}

// Encode serializes the message for the wire
func (m *Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ingestion message: %w", err)
	}
	return data, nil
}

// DecodeMessage parses a consumed record value
func DecodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode ingestion message: %w", err)
	}
	return &m, nil
}

// ToEvent builds the store row for this submission
func (m *Message) ToEvent() *types.Event {
	return &types.Event{
		ExternalJobID: m.ExternalJobID,
		Source:        m.Source,
		ScheduledAt:   m.ScheduledAt,
		DeliveryType:  m.DeliveryType,
		Destination:   m.Destination,
		Payload:       []byte(m.Payload),
		Status:        types.StatusPending,
		MaxRetries:    m.MaxRetries,
	}
}

// DLQMessage wraps a message that could not be persisted, together with the
// reason, for the dead-letter topic
type DLQMessage struct {
	OriginalMessage json.RawMessage `json:"original_message"`
	Error           string          `json:"error"`
	FailedAt        time.Time       `json:"failed_at"`
}
