package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/softwarestrategies/dispatch/pkg/store"
	"github.com/softwarestrategies/dispatch/pkg/types"
)

type fakeOutcomeStore struct {
	err       error
	completed []string
	retried   []string
	parked    []string
	errMsgs   []string
	workerIDs []string
}

func (f *fakeOutcomeStore) Complete(_ context.Context, id, workerID string) error {
	f.workerIDs = append(f.workerIDs, workerID)
	if f.err != nil {
		return f.err
	}
	f.completed = append(f.completed, id)
	return nil
}

func (f *fakeOutcomeStore) FailRetriable(_ context.Context, id, workerID, errMsg string) error {
	f.workerIDs = append(f.workerIDs, workerID)
	if f.err != nil {
		return f.err
	}
	f.retried = append(f.retried, id)
	f.errMsgs = append(f.errMsgs, errMsg)
	return nil
}

func (f *fakeOutcomeStore) FailTerminal(_ context.Context, id, workerID, errMsg string) error {
	f.workerIDs = append(f.workerIDs, workerID)
	if f.err != nil {
		return f.err
	}
	f.parked = append(f.parked, id)
	f.errMsgs = append(f.errMsgs, errMsg)
	return nil
}

func outcomeEvent(retryCount, maxRetries int) *types.Event {
	return &types.Event{
		ID:            "evt-1",
		ExternalJobID: "job-1",
		RetryCount:    retryCount,
		MaxRetries:    maxRetries,
	}
}

func TestApplySuccessCompletes(t *testing.T) {
	st := &fakeOutcomeStore{}
	w := NewOutcomeWriter(st)

	w.Apply(context.Background(), outcomeEvent(0, 3), "worker-a", success())

	assert.Equal(t, []string{"evt-1"}, st.completed)
	assert.Equal(t, []string{"worker-a"}, st.workerIDs)
}

func TestApplyRetriableWithBudgetReturnsToPending(t *testing.T) {
	st := &fakeOutcomeStore{}
	w := NewOutcomeWriter(st)

	w.Apply(context.Background(), outcomeEvent(0, 3), "worker-a", retriable(errors.New("HTTP 503")))

	assert.Equal(t, []string{"evt-1"}, st.retried)
	assert.Empty(t, st.parked)
	assert.Equal(t, []string{"HTTP 503"}, st.errMsgs)
}

func TestApplyRetriableBudgetExhaustedParks(t *testing.T) {
	st := &fakeOutcomeStore{}
	w := NewOutcomeWriter(st)

	// max_retries=2 allows the initial attempt plus two retries; the fourth
	// failure has no budget left
	w.Apply(context.Background(), outcomeEvent(2, 2), "worker-a", retriable(errors.New("HTTP 503")))

	assert.Empty(t, st.retried)
	assert.Equal(t, []string{"evt-1"}, st.parked)
}

func TestApplyRetriableKeepsLastRetry(t *testing.T) {
	st := &fakeOutcomeStore{}
	w := NewOutcomeWriter(st)

	// retry_count=1 with max_retries=2 still has one retry left
	w.Apply(context.Background(), outcomeEvent(1, 2), "worker-a", retriable(errors.New("HTTP 503")))

	assert.Equal(t, []string{"evt-1"}, st.retried)
	assert.Empty(t, st.parked)
}

func TestApplyTerminalParksRegardlessOfBudget(t *testing.T) {
	st := &fakeOutcomeStore{}
	w := NewOutcomeWriter(st)

	w.Apply(context.Background(), outcomeEvent(0, 3), "worker-a", terminal(errors.New("HTTP 404")))

	assert.Empty(t, st.retried)
	assert.Equal(t, []string{"evt-1"}, st.parked)
}

func TestApplyZeroMaxRetriesParksOnFirstFailure(t *testing.T) {
	st := &fakeOutcomeStore{}
	w := NewOutcomeWriter(st)

	w.Apply(context.Background(), outcomeEvent(0, 0), "worker-a", retriable(errors.New("timeout")))

	assert.Empty(t, st.retried)
	assert.Equal(t, []string{"evt-1"}, st.parked)
}

func TestApplyLeaseLostIsSwallowed(t *testing.T) {
	st := &fakeOutcomeStore{err: store.ErrLeaseLost}
	w := NewOutcomeWriter(st)

	// Must not panic or retry; the reclaiming worker owns the event now
	w.Apply(context.Background(), outcomeEvent(0, 3), "worker-a", success())

	assert.Empty(t, st.completed)
}

func TestApplyTruncatesLongErrors(t *testing.T) {
	st := &fakeOutcomeStore{}
	w := NewOutcomeWriter(st)

	long := make([]byte, types.MaxErrorLength+500)
	for i := range long {
		long[i] = 'x'
	}
	w.Apply(context.Background(), outcomeEvent(0, 3), "worker-a", retriable(errors.New(string(long))))

	assert.Len(t, st.errMsgs[0], types.MaxErrorLength)
}
