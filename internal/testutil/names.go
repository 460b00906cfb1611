package testutil

import (
	"fmt"
	"sync"
)

// NameSequence generates temp object names prefix_1, prefix_2, ... so that
// every SQL statement a session emits is reproducible across runs.
//
// Thread-safety: all methods are safe for concurrent use.
type NameSequence struct {
	mu sync.Mutex
	n  int
}

// NewNameSequence creates a sequence whose first name ends in _1.
func NewNameSequence() *NameSequence {
	return &NameSequence{}
}

// Next returns the next name for prefix. The counter is shared by all
// prefixes.
func (s *NameSequence) Next(prefix string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s_%d", prefix, s.n)
}

// Current returns the number of names generated so far.
func (s *NameSequence) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Reset restarts the sequence at 1.
func (s *NameSequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = 0
}
