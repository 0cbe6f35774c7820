package types

import "sync/atomic"

// Sequencer hands out a monotonically increasing instance-owned counter. It
// replaces the source's process-wide singleton id generator: every bus or
// admission queue is constructed with its own Sequencer, so there is no
// global mutable state anywhere in the core (per spec.md §9).
type Sequencer struct {
	n atomic.Uint64
}

// NewSequencer creates a Sequencer starting at zero.
func NewSequencer() *Sequencer {
	return &Sequencer{}
}

// Next returns the next value in the sequence, starting at 1.
func (s *Sequencer) Next() uint64 {
	return s.n.Add(1)
}
