package mutation

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierra-vm/tierra/internal/creature"
	"github.com/tierra-vm/tierra/internal/soup"
)

type fakePop struct{ ids []creature.ID }

func (p fakePop) Queue() []creature.ID { return p.ids }

func TestUpdateRatesZeroDenominatorGivesZeroRate(t *testing.T) {
	s := soup.New(100)
	arena := creature.NewArena(1)
	e := New(s, arena, Config{GenPerBkgMut: 0})
	e.UpdateRates(80)
	assert.Equal(t, 0.0, e.Rates.Mut)
}

func TestUpdateRatesPositiveDenominator(t *testing.T) {
	s := soup.New(100)
	arena := creature.NewArena(1)
	e := New(s, arena, Config{GenPerBkgMut: 32})
	e.UpdateRates(80)
	assert.InDelta(t, 1.0/(32*80), e.Rates.Mut, 1e-12)
}

func TestPointMutationIncrementsCounterWhenTriggered(t *testing.T) {
	s := soup.New(200)
	arena := creature.NewArena(1)
	id := arena.New(creature.MemRegion{Pos: 0, Size: 20})
	c := arena.Get(id)
	d := creature.MemRegion{Pos: 50, Size: 10}
	c.Daughter = &d

	e := New(s, arena, Config{GenPerDivMut: 1, MutBitProp: 1.0, MinCellSize: 4})
	rng := rand.New(rand.NewSource(3))
	e.GeneticOps(rng, id, fakePop{ids: []creature.ID{id}}, 200)
	require.Equal(t, 1, c.Demo.Mutations)
}

func TestFindSegments(t *testing.T) {
	s := soup.New(20)
	arena := creature.NewArena(1)
	e := New(s, arena, Config{})
	// nop0 nop0 X X X nop1 nop0 Y Y
	s.WriteBlock(0, []byte{0, 0, 5, 5, 5, 1, 0, 7, 7})
	segs := e.findSegments(0, 9, 20)
	require.Len(t, segs, 2)
	assert.Equal(t, 2, segs[0].start)
	assert.Equal(t, 3, segs[0].size)
	assert.Equal(t, 7, segs[1].start)
	assert.Equal(t, 2, segs[1].size)
}

func TestFlawZeroRateReturnsZero(t *testing.T) {
	s := soup.New(10)
	arena := creature.NewArena(1)
	e := New(s, arena, Config{})
	rng := rand.New(rand.NewSource(1))
	assert.Equal(t, int32(0), e.Flaw(rng))
}
