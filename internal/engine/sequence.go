package engine

import "sync/atomic"

// Sequence hands out the seq stamped on every row the engine writes.
// List queries order by seq, so creation order survives equal timestamps
// and engine restarts. Safe for concurrent use.
type Sequence struct {
	last atomic.Int64
}

// newSequence resumes after last, the highest seq already stored.
func newSequence(last int64) *Sequence {
	s := new(Sequence)
	s.last.Store(last)
	return s
}

// Next reserves the following seq.
func (s *Sequence) Next() int64 { return s.last.Add(1) }

// Last is the most recently reserved seq.
func (s *Sequence) Last() int64 { return s.last.Load() }
