package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReleaser struct {
	mu       sync.Mutex
	released int64
	err      error
	calls    int
}

func (f *fakeReleaser) ReleaseExpired(_ context.Context, _ time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.released, f.err
}

func TestSweepReleasesExpired(t *testing.T) {
	st := &fakeReleaser{released: 3}
	l := NewLoop(st, time.Minute)

	l.sweep()

	assert.Equal(t, 1, st.calls)
}

func TestSweepSurvivesStoreError(t *testing.T) {
	st := &fakeReleaser{err: errors.New("connection refused")}
	l := NewLoop(st, time.Minute)

	l.sweep()
	l.sweep()

	assert.Equal(t, 2, st.calls, "errors must not stop subsequent sweeps")
}

func TestStartStop(t *testing.T) {
	st := &fakeReleaser{}
	l := NewLoop(st, 5*time.Millisecond)

	l.Start()
	require.Eventually(t, func() bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.calls >= 2
	}, time.Second, time.Millisecond)
	l.Stop()
}

func TestZeroIntervalFallsBackToDefault(t *testing.T) {
	l := NewLoop(&fakeReleaser{}, 0)
	assert.Equal(t, DefaultInterval, l.interval)
}
