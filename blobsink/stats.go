package blobsink

import (
	"sync"
	"time"
)

// Stats tracks staging performance metrics for reporting.
type Stats struct {
	stagedBytes  int64
	stagedBlocks int64
	sum          time.Duration
	mu           sync.Mutex
}

// NewStats creates a new Stats instance.
func NewStats() *Stats {
	return &Stats{}
}

// Update records a successful block staging.
func (s *Stats) Update(size int64, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stagedBytes += size
	s.stagedBlocks++
	s.sum += d
}

// StagedBlocks returns the number of successfully staged blocks.
func (s *Stats) StagedBlocks() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stagedBlocks
}

// StagedBytes returns the total number of bytes staged.
func (s *Stats) StagedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stagedBytes
}

// Average returns the average staging duration for completed blocks.
func (s *Stats) Average() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stagedBlocks == 0 {
		return 0
	}
	return s.sum / time.Duration(s.stagedBlocks)
}

// TotalDuration returns the cumulative staging time.
func (s *Stats) TotalDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sum
}
