package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDLQPartitions(t *testing.T) {
	tests := []struct {
		name      string
		ingestion int32
		expected  int32
	}{
		{"default sizing halves the ingestion topic", 24, 12},
		{"odd counts round down", 7, 3},
		{"small topics keep one partition", 2, 1},
		{"single partition", 1, 1},
		{"misconfigured zero still yields a partition", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, dlqPartitions(tt.ingestion))
		})
	}
}
