package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softwarestrategies/dispatch/pkg/config"
)

type fakeDeleter struct {
	remaining int64
	err       error
	calls     int
	cutoffs   []time.Time
}

func (f *fakeDeleter) DeleteTerminalBatch(_ context.Context, cutoff time.Time, batchSize int) (int64, error) {
	f.calls++
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.err != nil {
		return 0, f.err
	}
	n := int64(batchSize)
	if f.remaining < n {
		n = f.remaining
	}
	f.remaining -= n
	return n, nil
}

func cleanerConfig(batchSize int) *config.Config {
	cfg := config.Default()
	cfg.Cleanup.BatchSize = batchSize
	return cfg
}

func TestRunDeletesUntilShortBatch(t *testing.T) {
	st := &fakeDeleter{remaining: 25}
	c := NewCleaner(cleanerConfig(10), st)

	total, err := c.Run(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, int64(25), total)
	// Batches of 10, 10, 5; the short batch ends the run
	assert.Equal(t, 3, st.calls)
}

func TestRunStopsOnEmptyStore(t *testing.T) {
	st := &fakeDeleter{remaining: 0}
	c := NewCleaner(cleanerConfig(10), st)

	total, err := c.Run(context.Background(), 7)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Equal(t, 1, st.calls)
}

func TestRunPropagatesStoreError(t *testing.T) {
	st := &fakeDeleter{err: errors.New("deadlock detected")}
	c := NewCleaner(cleanerConfig(10), st)

	_, err := c.Run(context.Background(), 7)
	assert.Error(t, err)
}

func TestRunUsesRequestedWindow(t *testing.T) {
	st := &fakeDeleter{remaining: 1}
	c := NewCleaner(cleanerConfig(10), st)

	before := time.Now().UTC().AddDate(0, 0, -30)
	_, err := c.Run(context.Background(), 30)
	require.NoError(t, err)
	after := time.Now().UTC().AddDate(0, 0, -30)

	require.Len(t, st.cutoffs, 1)
	cutoff := st.cutoffs[0]
	assert.False(t, cutoff.Before(before))
	assert.False(t, cutoff.After(after))
}

func TestStartRejectsBadSchedule(t *testing.T) {
	cfg := cleanerConfig(10)
	cfg.Cleanup.Cron = "not a schedule"
	c := NewCleaner(cfg, &fakeDeleter{})

	assert.Error(t, c.Start())
}

func TestStartAcceptsSixFieldSchedule(t *testing.T) {
	c := NewCleaner(cleanerConfig(10), &fakeDeleter{})

	require.NoError(t, c.Start())
	c.Stop()
}
