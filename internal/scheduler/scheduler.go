// Package scheduler implements the round-robin time-slice queue:
// creatures are appended at the tail and the cursor walks forward,
// wrapping to the start once it reaches the end.
package scheduler

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/tierra-vm/tierra/internal/creature"
)

// SliceStyle selects how compute_slice derives the per-slice
// instruction budget from the base size.
type SliceStyle int

const (
	// SliceStyleFixed uses the base size directly (clamped to >=1).
	SliceStyleFixed SliceStyle = iota
	// SliceStyleBlended mixes a fixed fraction of the base with a
	// uniformly random fraction, per §4.3.
	SliceStyleBlended
)

// Config carries the slice-size policy knobs read from the si0 file.
type Config struct {
	SizeDependentSlice bool
	SliceSize          int
	SlicePow           float64
	Style              SliceStyle
	FixedFraction      float64
	RandomFraction     float64
}

// Scheduler is an ordered queue of living creature IDs with a cursor.
type Scheduler struct {
	queue   []creature.ID
	cursor  int
	arena   *creature.Arena
	config  Config
}

// New returns an empty scheduler bound to arena for slice-size
// lookups (mother size) and config for the slicing policy.
func New(arena *creature.Arena, config Config) *Scheduler {
	return &Scheduler{arena: arena, config: config}
}

// Add appends id to the tail of the queue.
func (s *Scheduler) Add(id creature.ID) {
	s.queue = append(s.queue, id)
}

// Remove deletes id by identity. If the removed entry sat at or
// before the cursor, the cursor is adjusted so the same logical
// successor still runs next. Panics if the cursor ends up outside the
// queue — an implementation bug per spec.md's invariant-violation
// list, not a creature-level error.
func (s *Scheduler) Remove(id creature.ID) {
	idx := -1
	for i, q := range s.queue {
		if q == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
	switch {
	case idx < s.cursor:
		s.cursor--
	case idx == s.cursor && s.cursor >= len(s.queue):
		s.cursor = 0
	}
	if len(s.queue) > 0 && (s.cursor < 0 || s.cursor >= len(s.queue)) {
		panic(fmt.Sprintf("scheduler: cursor %d out of queue bounds [0,%d) after removing id %d", s.cursor, len(s.queue), id))
	}
}

// Current returns the creature ID at the cursor, or 0 if the queue is
// empty.
func (s *Scheduler) Current() creature.ID {
	if len(s.queue) == 0 {
		return 0
	}
	if s.cursor >= len(s.queue) {
		s.cursor = 0
	}
	return s.queue[s.cursor]
}

// Advance moves the cursor forward modulo the queue length.
func (s *Scheduler) Advance() {
	if len(s.queue) > 0 {
		s.cursor = (s.cursor + 1) % len(s.queue)
	}
}

// NumCreatures returns the current queue length.
func (s *Scheduler) NumCreatures() int { return len(s.queue) }

// Queue returns the live queue in cursor order, starting at index 0
// (not at the cursor). Callers must not retain or mutate the slice.
func (s *Scheduler) Queue() []creature.ID { return s.queue }

// AverageMotherSize returns the mean mother-interval size across the
// queue, or defaultSize if the queue is empty.
func (s *Scheduler) AverageMotherSize(defaultSize int) int {
	if len(s.queue) == 0 {
		return defaultSize
	}
	total := 0
	for _, id := range s.queue {
		if c := s.arena.Get(id); c != nil {
			total += c.Mother.Size
		}
	}
	return total / len(s.queue)
}

// ComputeSlice returns the instruction budget for one time slice of
// id, per the policy in Config. rng supplies the single draw consumed
// by the blended style, preserving the simulation-wide draw order.
func (s *Scheduler) ComputeSlice(id creature.ID, rng *rand.Rand) int {
	c := s.arena.Get(id)
	if c == nil {
		return 1
	}

	var base float64
	if !s.config.SizeDependentSlice {
		base = float64(s.config.SliceSize)
	} else {
		base = math.Pow(float64(c.Mother.Size), s.config.SlicePow)
	}

	if s.config.Style == SliceStyleBlended {
		fixed := s.config.FixedFraction * base
		randPart := rng.Float64() * s.config.RandomFraction * base
		slice := int(fixed + randPart)
		if slice < 1 {
			slice = 1
		}
		return slice
	}

	slice := int(base)
	if slice < 1 {
		slice = 1
	}
	return slice
}
