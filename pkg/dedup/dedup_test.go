package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	exists bool
	err    error
	calls  int
}

func (f *fakeChecker) ExistsByDedupKey(_ context.Context, _, _ string, _ time.Time) (bool, error) {
	f.calls++
	return f.exists, f.err
}

func TestSeenTier1Hit(t *testing.T) {
	checker := &fakeChecker{}
	f, err := NewFilter(10, checker)
	require.NoError(t, err)

	f.Remember("msg-1")

	seen, err := f.Seen(context.Background(), "msg-1", "job-1", "src", time.Now())
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Zero(t, checker.calls, "tier-1 hit must not query the store")
}

func TestSeenTier2Hit(t *testing.T) {
	checker := &fakeChecker{exists: true}
	f, err := NewFilter(10, checker)
	require.NoError(t, err)

	seen, err := f.Seen(context.Background(), "msg-2", "job-1", "src", time.Now())
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, 1, checker.calls)
}

func TestSeenMiss(t *testing.T) {
	checker := &fakeChecker{}
	f, err := NewFilter(10, checker)
	require.NoError(t, err)

	seen, err := f.Seen(context.Background(), "msg-3", "job-1", "src", time.Now())
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestSeenStoreError(t *testing.T) {
	checker := &fakeChecker{err: errors.New("connection reset")}
	f, err := NewFilter(10, checker)
	require.NoError(t, err)

	_, err = f.Seen(context.Background(), "msg-4", "job-1", "src", time.Now())
	assert.Error(t, err)
}

func TestLRUEviction(t *testing.T) {
	checker := &fakeChecker{}
	f, err := NewFilter(2, checker)
	require.NoError(t, err)

	f.Remember("a")
	f.Remember("b")
	f.Remember("c") // evicts a

	assert.Equal(t, 2, f.Len())

	seen, err := f.Seen(context.Background(), "a", "job", "src", time.Now())
	require.NoError(t, err)
	assert.False(t, seen, "evicted id should fall through to tier 2")
	assert.Equal(t, 1, checker.calls)
}
