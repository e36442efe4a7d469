package reaper

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierra-vm/tierra/internal/creature"
	"github.com/tierra-vm/tierra/internal/soup"
)

type fakeSched struct {
	ids    []creature.ID
	cursor int
}

func (f *fakeSched) Current() creature.ID {
	if len(f.ids) == 0 {
		return 0
	}
	return f.ids[f.cursor%len(f.ids)]
}

func (f *fakeSched) Remove(id creature.ID) {
	for i, q := range f.ids {
		if q == id {
			f.ids = append(f.ids[:i], f.ids[i+1:]...)
			return
		}
	}
}

func (f *fakeSched) NumCreatures() int { return len(f.ids) }

type fakeGB struct{ unregistered []creature.ID }

func (g *fakeGB) Unregister(id creature.ID) { g.unregistered = append(g.unregistered, id) }

type fakeEvents struct {
	causes map[creature.ID]string
}

func (e *fakeEvents) CellDied(id creature.ID, cause string) {
	if e.causes == nil {
		e.causes = make(map[creature.ID]string)
	}
	e.causes[id] = cause
}

func setupReaper(t *testing.T, n int) (*Reaper, *creature.Arena, *soup.Soup, *fakeSched) {
	t.Helper()
	s := soup.New(1000)
	arena := creature.NewArena(n)
	sched := &fakeSched{}
	r := New(arena, s, Config{ReapRandomProp: 1.0})

	pos := 0
	for i := 0; i < n; i++ {
		id := arena.New(creature.MemRegion{Pos: pos, Size: 50})
		require.True(t, s.AllocateAt(pos, 50))
		s.AddOwner(id, pos, 50)
		r.Add(id)
		sched.ids = append(sched.ids, id)
		pos += 50
	}
	return r, arena, s, sched
}

func TestReapRemovesFromBothQueuesAndRandomizesMother(t *testing.T) {
	r, arena, s, sched := setupReaper(t, 3)
	gb := &fakeGB{}
	ev := &fakeEvents{}
	rng := rand.New(rand.NewSource(1))

	victim, ok := r.Reap(sched, gb, ev, rng, 50, 1000, -1)
	require.True(t, ok)
	assert.Equal(t, "reaper", ev.causes[victim])
	assert.Equal(t, 2, r.NumQueued())
	assert.Equal(t, 2, sched.NumCreatures())
	assert.Nil(t, arena.Get(victim))
	assert.Contains(t, gb.unregistered, victim)
}

func TestReapSkipsCurrentCellWhenPossible(t *testing.T) {
	r, _, _, sched := setupReaper(t, 2)
	gb := &fakeGB{}
	ev := &fakeEvents{}
	rng := rand.New(rand.NewSource(7))
	current := sched.Current()

	victim, ok := r.Reap(sched, gb, ev, rng, 50, 1000, -1)
	require.True(t, ok)
	assert.NotEqual(t, current, victim)
}

func TestCheckLazyReapsAfterThreshold(t *testing.T) {
	r, arena, s, sched := setupReaper(t, 1)
	gb := &fakeGB{}
	ev := &fakeEvents{}
	rng := rand.New(rand.NewSource(2))
	id := sched.ids[0]
	c := arena.Get(id)
	c.Demo.Fecundity = 1
	c.Demo.RepInst = c.Mother.Size*10 + 1

	r2 := New(arena, s, Config{LazyTol: 10})
	_ = r
	killed := r2.CheckLazy(id, sched, gb, ev, rng)
	require.True(t, killed)
	assert.Equal(t, "lazy", ev.causes[id])
}

func TestDisturbanceKillsExpectedCountExcludingCurrent(t *testing.T) {
	r, _, _, sched := setupReaper(t, 10)
	gb := &fakeGB{}
	ev := &fakeEvents{}
	rng := rand.New(rand.NewSource(5))
	r.config.DistProp = 0.2

	current := sched.Current()
	killed := r.Disturbance(sched, gb, ev, rng)
	assert.Equal(t, 2, killed)
	assert.NotContains(t, ev.causes, current)
}
