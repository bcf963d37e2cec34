package dedup

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// KeyChecker is the store-side authoritative existence check
type KeyChecker interface {
	ExistsByDedupKey(ctx context.Context, externalJobID, source string, scheduledAt time.Time) (bool, error)
}

// Filter is a two-tier duplicate-submission filter.
//
// Tier 1 is a bounded in-process LRU of recently-seen message ids; it is a
// cache only and never authoritative. Tier 2 is an existence query on the
// store's dedup key. The store's unique constraint remains the final
// backstop for races between processes.
type Filter struct {
	recent  *lru.Cache[string, struct{}]
	checker KeyChecker
}

// NewFilter creates a filter with the given tier-1 capacity
func NewFilter(capacity int, checker KeyChecker) (*Filter, error) {
	cache, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create dedup cache: %w", err)
	}
	return &Filter{recent: cache, checker: checker}, nil
}

// Seen reports whether the submission is a duplicate. The tier-1 hit path
// never touches the store.
func (f *Filter) Seen(ctx context.Context, messageID, externalJobID, source string, scheduledAt time.Time) (bool, error) {
	if f.recent.Contains(messageID) {
		return true, nil
	}
	exists, err := f.checker.ExistsByDedupKey(ctx, externalJobID, source, scheduledAt)
	if err != nil {
		return false, fmt.Errorf("dedup store check failed: %w", err)
	}
	return exists, nil
}

// Remember records a message id in tier 1 after the submission reached a
// terminal ingestion outcome
func (f *Filter) Remember(messageID string) {
	f.recent.Add(messageID, struct{}{})
}

// Len returns the current tier-1 cache size
func (f *Filter) Len() int {
	return f.recent.Len()
}
