package poller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softwarestrategies/dispatch/pkg/config"
	"github.com/softwarestrategies/dispatch/pkg/delivery"
	"github.com/softwarestrategies/dispatch/pkg/types"
)

type fakeClaimStore struct {
	mu        sync.Mutex
	batches   [][]*types.Event
	err       error
	unclaimed []string
	claims    int
}

func (f *fakeClaimStore) ClaimDue(_ context.Context, _ string, _, _ time.Time, _ int) ([]*types.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeClaimStore) Unclaim(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unclaimed = append(f.unclaimed, id)
	return nil
}

type fakeEngine struct {
	mu        sync.Mutex
	result    delivery.Result
	delivered []string
}

func (f *fakeEngine) Deliver(_ context.Context, event *types.Event) delivery.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, event.ID)
	return f.result
}

type fakeOutcome struct {
	mu      sync.Mutex
	applied []string
	workers []string
}

func (f *fakeOutcome) Apply(_ context.Context, event *types.Event, workerID string, _ delivery.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, event.ID)
	f.workers = append(f.workers, workerID)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Scheduler.PollIntervalMs = 10
	return cfg
}

func dueEvent(id string) *types.Event {
	return &types.Event{
		ID:          id,
		ScheduledAt: time.Now().Add(-time.Minute).UTC(),
		Status:      types.StatusProcessing,
	}
}

func TestWorkerIDFormat(t *testing.T) {
	a := WorkerID()
	b := WorkerID()

	assert.NotEqual(t, a, b, "two worker ids must not collide")
	parts := strings.Split(a, "-")
	require.GreaterOrEqual(t, len(parts), 2)
	assert.Len(t, parts[len(parts)-1], 8, "random suffix is 8 hex characters")
}

func TestTickDispatchesClaimedEvents(t *testing.T) {
	st := &fakeClaimStore{batches: [][]*types.Event{{dueEvent("evt-1"), dueEvent("evt-2")}}}
	engine := &fakeEngine{result: delivery.Result{Success: true}}
	outcome := &fakeOutcome{}

	p := NewPoller(testConfig(), st, engine, outcome)
	p.tick()
	p.wg.Wait()

	assert.ElementsMatch(t, []string{"evt-1", "evt-2"}, engine.delivered)
	assert.ElementsMatch(t, []string{"evt-1", "evt-2"}, outcome.applied)
	assert.Equal(t, p.workerID, outcome.workers[0])
}

func TestTickUnclaimsNotYetDue(t *testing.T) {
	future := dueEvent("evt-future")
	future.ScheduledAt = time.Now().Add(time.Hour).UTC()
	st := &fakeClaimStore{batches: [][]*types.Event{{future}}}
	engine := &fakeEngine{}

	p := NewPoller(testConfig(), st, engine, &fakeOutcome{})
	p.tick()
	p.wg.Wait()

	assert.Equal(t, []string{"evt-future"}, st.unclaimed)
	assert.Empty(t, engine.delivered)
}

func TestTickSkipsOnClaimError(t *testing.T) {
	st := &fakeClaimStore{err: errors.New("connection refused")}
	engine := &fakeEngine{}

	p := NewPoller(testConfig(), st, engine, &fakeOutcome{})
	p.tick()

	assert.Empty(t, engine.delivered)
}

func TestStartStopDrainsInFlight(t *testing.T) {
	st := &fakeClaimStore{batches: [][]*types.Event{{dueEvent("evt-1")}}}
	engine := &fakeEngine{result: delivery.Result{Success: true}}
	outcome := &fakeOutcome{}

	p := NewPoller(testConfig(), st, engine, outcome)
	p.Start()

	require.Eventually(t, func() bool {
		engine.mu.Lock()
		defer engine.mu.Unlock()
		return len(engine.delivered) == 1
	}, time.Second, 5*time.Millisecond)

	p.Stop()
	assert.Equal(t, []string{"evt-1"}, outcome.applied)
}
