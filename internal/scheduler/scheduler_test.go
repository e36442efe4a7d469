package scheduler

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierra-vm/tierra/internal/creature"
)

func newTestArena(sizes ...int) (*creature.Arena, []creature.ID) {
	a := creature.NewArena(len(sizes))
	ids := make([]creature.ID, len(sizes))
	for i, sz := range sizes {
		ids[i] = a.New(creature.MemRegion{Pos: i * 100, Size: sz})
	}
	return a, ids
}

func TestRoundRobinAdvance(t *testing.T) {
	arena, ids := newTestArena(10, 10, 10)
	sched := New(arena, Config{SliceSize: 25})
	for _, id := range ids {
		sched.Add(id)
	}

	require.Equal(t, ids[0], sched.Current())
	sched.Advance()
	assert.Equal(t, ids[1], sched.Current())
	sched.Advance()
	sched.Advance()
	assert.Equal(t, ids[0], sched.Current(), "cursor wraps to the start")
}

func TestRemoveBeforeCursorAdjusts(t *testing.T) {
	arena, ids := newTestArena(10, 10, 10)
	sched := New(arena, Config{SliceSize: 25})
	for _, id := range ids {
		sched.Add(id)
	}
	sched.Advance() // cursor now at ids[1]
	sched.Remove(ids[0])
	assert.Equal(t, ids[1], sched.Current(), "removing an earlier entry keeps the same logical current")
}

func TestComputeSliceFixed(t *testing.T) {
	arena, ids := newTestArena(80)
	sched := New(arena, Config{SliceSize: 25, Style: SliceStyleFixed})
	rng := rand.New(rand.NewSource(1))
	assert.Equal(t, 25, sched.ComputeSlice(ids[0], rng))
}

func TestComputeSliceBlendedClampsToOne(t *testing.T) {
	arena, ids := newTestArena(80)
	sched := New(arena, Config{SliceSize: 0, Style: SliceStyleBlended, FixedFraction: 0, RandomFraction: 0})
	rng := rand.New(rand.NewSource(1))
	assert.Equal(t, 1, sched.ComputeSlice(ids[0], rng))
}
