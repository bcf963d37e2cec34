package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/softwarestrategies/dispatch/pkg/types"
)

// flakyInserter fails a fixed number of inserts before succeeding
type flakyInserter struct {
	mu       sync.Mutex
	failures int
	attempts int
	inserted []*types.Event
}

func (f *flakyInserter) Insert(_ context.Context, event *types.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.failures {
		return errors.New("connection refused")
	}
	event.ID = "generated-id"
	f.inserted = append(f.inserted, event)
	return nil
}

func fetchesWith(values ...[]byte) kgo.Fetches {
	records := make([]*kgo.Record, len(values))
	for i, v := range values {
		records[i] = &kgo.Record{Value: v}
	}
	return kgo.Fetches{{
		Topics: []kgo.FetchTopic{{
			Topic:      "dispatch.events.ingestion",
			Partitions: []kgo.FetchPartition{{Partition: 0, Records: records}},
		}},
	}}
}

func testConsumer(inserter EventInserter) *Consumer {
	return &Consumer{
		persister:     NewPersister(inserter, &fakeDeduper{}, &fakeDLQ{}),
		concurrency:   2,
		retryInterval: time.Millisecond,
		logger:        zerolog.Nop(),
		done:          make(chan struct{}),
	}
}

func TestPersistBatchRetriesUntilSuccess(t *testing.T) {
	inserter := &flakyInserter{failures: 2}
	c := testConsumer(inserter)

	err := c.persistBatch(context.Background(), fetchesWith(validMessage(t)))
	require.NoError(t, err)

	assert.Equal(t, 3, inserter.attempts, "two failed rounds then success")
	assert.Len(t, inserter.inserted, 1, "the record must land, not be skipped")
}

func TestPersistBatchStopsOnShutdown(t *testing.T) {
	inserter := &flakyInserter{failures: int(^uint(0) >> 1)}
	c := testConsumer(inserter)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.persistBatch(ctx, fetchesWith(validMessage(t)))
	assert.Error(t, err, "cancellation leaves the batch uncommitted")
	assert.Empty(t, inserter.inserted)
}

func TestProcessBatchPersistsAllRecords(t *testing.T) {
	inserter := &flakyInserter{}
	c := testConsumer(inserter)

	err := c.processBatch(context.Background(), fetchesWith(validMessage(t), validMessage(t)))
	require.NoError(t, err)
	assert.Len(t, inserter.inserted, 2)
}
