package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softwarestrategies/dispatch/pkg/store"
	"github.com/softwarestrategies/dispatch/pkg/types"
)

type fakeInserter struct {
	err      error
	inserted []*types.Event
}

func (f *fakeInserter) Insert(_ context.Context, event *types.Event) error {
	if f.err != nil {
		return f.err
	}
	event.ID = "generated-id"
	f.inserted = append(f.inserted, event)
	return nil
}

type fakeDeduper struct {
	seen       bool
	err        error
	remembered []string
}

func (f *fakeDeduper) Seen(_ context.Context, _, _, _ string, _ time.Time) (bool, error) {
	return f.seen, f.err
}

func (f *fakeDeduper) Remember(messageID string) {
	f.remembered = append(f.remembered, messageID)
}

type fakeDLQ struct {
	err     error
	reasons []string
	values  [][]byte
}

func (f *fakeDLQ) SendToDLQ(_ context.Context, original []byte, reason string) error {
	if f.err != nil {
		return f.err
	}
	f.values = append(f.values, original)
	f.reasons = append(f.reasons, reason)
	return nil
}

func validMessage(t *testing.T) []byte {
	t.Helper()
	msg := &Message{
		MessageID:     "msg-1",
		ExternalJobID: "job-1",
		Source:        "billing",
		ScheduledAt:   time.Now().Add(time.Hour).UTC(),
		DeliveryType:  types.DeliveryHTTP,
		Destination:   "https://callback.example.com/hook",
		Payload:       json.RawMessage(`{"invoice":42}`),
		MaxRetries:    3,
		ReceivedAt:    time.Now().UTC(),
	}
	data, err := msg.Encode()
	require.NoError(t, err)
	return data
}

func TestProcessPersists(t *testing.T) {
	inserter := &fakeInserter{}
	dedup := &fakeDeduper{}
	dlq := &fakeDLQ{}
	p := NewPersister(inserter, dedup, dlq)

	err := p.Process(context.Background(), validMessage(t))
	require.NoError(t, err)

	require.Len(t, inserter.inserted, 1)
	event := inserter.inserted[0]
	assert.Equal(t, "job-1", event.ExternalJobID)
	assert.Equal(t, types.StatusPending, event.Status)
	assert.Equal(t, []string{"msg-1"}, dedup.remembered)
	assert.Empty(t, dlq.reasons)
}

func TestProcessSuppressesDuplicateFromFilter(t *testing.T) {
	inserter := &fakeInserter{}
	dedup := &fakeDeduper{seen: true}
	p := NewPersister(inserter, dedup, &fakeDLQ{})

	err := p.Process(context.Background(), validMessage(t))
	require.NoError(t, err)

	assert.Empty(t, inserter.inserted)
	assert.Equal(t, []string{"msg-1"}, dedup.remembered)
}

func TestProcessSuppressesDuplicateFromStore(t *testing.T) {
	inserter := &fakeInserter{err: store.ErrDuplicate}
	dedup := &fakeDeduper{}
	p := NewPersister(inserter, dedup, &fakeDLQ{})

	err := p.Process(context.Background(), validMessage(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"msg-1"}, dedup.remembered)
}

func TestProcessDeadLettersUndecodable(t *testing.T) {
	inserter := &fakeInserter{}
	dlq := &fakeDLQ{}
	p := NewPersister(inserter, &fakeDeduper{}, dlq)

	err := p.Process(context.Background(), []byte("not json"))
	require.NoError(t, err)

	assert.Empty(t, inserter.inserted)
	require.Len(t, dlq.reasons, 1)
	assert.Contains(t, dlq.reasons[0], "undecodable")
	assert.Equal(t, []byte("not json"), dlq.values[0])
}

func TestProcessDeadLettersRejectedInsert(t *testing.T) {
	inserter := &fakeInserter{err: fmt.Errorf("%w: null value in column", store.ErrRejected)}
	dlq := &fakeDLQ{}
	p := NewPersister(inserter, &fakeDeduper{}, dlq)

	err := p.Process(context.Background(), validMessage(t))
	require.NoError(t, err)

	require.Len(t, dlq.reasons, 1)
	assert.Contains(t, dlq.reasons[0], "insert rejected")
}

func TestProcessPropagatesTransientInsertError(t *testing.T) {
	inserter := &fakeInserter{err: errors.New("connection refused")}
	dlq := &fakeDLQ{}
	p := NewPersister(inserter, &fakeDeduper{}, dlq)

	err := p.Process(context.Background(), validMessage(t))
	assert.Error(t, err)
	assert.Empty(t, dlq.reasons, "transient failures must not dead-letter")
}

func TestProcessPropagatesDedupError(t *testing.T) {
	dedup := &fakeDeduper{err: errors.New("store down")}
	p := NewPersister(&fakeInserter{}, dedup, &fakeDLQ{})

	err := p.Process(context.Background(), validMessage(t))
	assert.Error(t, err)
}

func TestProcessPropagatesDLQFailure(t *testing.T) {
	dlq := &fakeDLQ{err: errors.New("broker unavailable")}
	p := NewPersister(&fakeInserter{}, &fakeDeduper{}, dlq)

	err := p.Process(context.Background(), []byte("not json"))
	assert.Error(t, err, "a failed DLQ publish must block the offset commit")
}
