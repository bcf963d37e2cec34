package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPartitionStarts(t *testing.T) {
	// Jan 1st: day 1 lives in the partition starting at day-key 1.
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	starts := partitionStarts(from, 0)
	assert.Equal(t, []int{2026001}, starts)

	// A 25-day horizon from Jan 1 needs partitions for days 1-10, 11-20, 21-30.
	starts = partitionStarts(from, 25)
	assert.Equal(t, []int{2026001, 2026011, 2026021}, starts)
}

func TestPartitionStartsAlignment(t *testing.T) {
	// Day 15 belongs to the partition starting at day 11.
	from := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	starts := partitionStarts(from, 0)
	assert.Equal(t, []int{2026011}, starts)

	// Day 10 is the last day of the first partition.
	from = time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	starts = partitionStarts(from, 0)
	assert.Equal(t, []int{2026001}, starts)
}

func TestPartitionStartsYearBoundary(t *testing.T) {
	// A horizon spanning new year must produce partitions in both years
	// without any range straddling the boundary.
	from := time.Date(2026, 12, 28, 0, 0, 0, 0, time.UTC)
	starts := partitionStarts(from, 7)

	assert.Contains(t, starts, 2026361)
	assert.Contains(t, starts, 2027001)
	for _, s := range starts {
		day := s % 1000
		assert.Equal(t, 1, day%partitionWidth, "start %d not aligned", s)
	}
}

func TestPartitionStartsLeapYear(t *testing.T) {
	// Day 366 of a leap year falls in the partition starting at day 361.
	from := time.Date(2028, 12, 31, 0, 0, 0, 0, time.UTC)
	starts := partitionStarts(from, 0)
	assert.Equal(t, []int{2028361}, starts)
}
