// Package creature holds the Arena object pool: every living creature
// is a slot in a preallocated slice addressed by a stable integer ID,
// never by pointer. The soup's owner index, the scheduler queue, and
// the reaper queue all hold IDs — this is what lets those collections
// avoid cyclic references while still resolving in O(1).
package creature

import (
	"fmt"
	"sync"

	"github.com/tierra-vm/tierra/internal/cpu"
)

// ID identifies a creature slot in an Arena. The zero value is never
// issued by New; callers use it as a "no creature" sentinel.
type ID uint32

// MemRegion is a contiguous, possibly wrapping, interval of the soup.
type MemRegion struct {
	Pos  int
	Size int
}

// End returns the (unwrapped) exclusive end of the region.
func (m MemRegion) End() int { return m.Pos + m.Size }

// Contains reports whether addr (already reduced mod soupSize) falls
// within the region, honoring wraparound.
func (m MemRegion) Contains(addr, soupSize int) bool {
	start := m.Pos % soupSize
	end := (m.Pos + m.Size) % soupSize
	addr = addr % soupSize
	if start < end {
		return addr >= start && addr < end
	}
	if start == end {
		return m.Size != 0 // zero size contains nothing; a full-soup region contains everything
	}
	return addr >= start || addr < end
}

// Demographics carries the bookkeeping fields the mutation engine,
// reaper and genebank consult; it has no behavior of its own.
type Demographics struct {
	Genotype       string
	ParentGenotype string
	Fecundity      int
	InstExecuted   int
	RepInst        int // instructions since last division
	Mutations      int
	MovDaught      int // bytes written into the daughter so far via movii
	MovOffMin      int
	MovOffMax      int
	BirthTime      int
}

// Creature is one living organism: a CPU bound to a mother interval,
// an optional daughter interval under construction, and demographics.
type Creature struct {
	ID       ID
	CPU      cpu.CPU
	Mother   MemRegion
	Daughter *MemRegion
	Demo     Demographics
	Alive    bool
}

// OwnsMother reports whether addr lies within the creature's mother
// interval, modulo soupSize.
func (c *Creature) OwnsMother(addr, soupSize int) bool {
	return c.Mother.Contains(addr, soupSize)
}

// OwnsDaughter reports whether addr lies within the creature's
// daughter interval, if it has one.
func (c *Creature) OwnsDaughter(addr, soupSize int) bool {
	if c.Daughter == nil {
		return false
	}
	return c.Daughter.Contains(addr, soupSize)
}

// Arena is the sole owner of Creature values. It hands out stable IDs
// on New and recycles slots on Release, mirroring the free-list
// discipline the soup allocator uses for memory.
type Arena struct {
	mu        sync.RWMutex
	creatures []*Creature
	freeIDs   []ID
	live      int
}

// NewArena returns an empty arena with room for capacityHint slots
// before it must grow.
func NewArena(capacityHint int) *Arena {
	return &Arena{creatures: make([]*Creature, 0, capacityHint)}
}

// New allocates a fresh creature bound to the given mother interval
// and returns its stable ID.
func (a *Arena) New(mother MemRegion) ID {
	a.mu.Lock()
	defer a.mu.Unlock()

	c := &Creature{Mother: mother, Alive: true}
	if n := len(a.freeIDs); n > 0 {
		id := a.freeIDs[n-1]
		a.freeIDs = a.freeIDs[:n-1]
		c.ID = id
		a.creatures[id-1] = c
	} else {
		id := ID(len(a.creatures) + 1)
		c.ID = id
		a.creatures = append(a.creatures, c)
	}
	a.live++
	return c.ID
}

// Get resolves an ID to its Creature. It returns nil for a released
// or out-of-range ID.
func (a *Arena) Get(id ID) *Creature {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if id == 0 || int(id) > len(a.creatures) {
		return nil
	}
	return a.creatures[id-1]
}

// Release frees a creature's slot for reuse. The slot is not zeroed
// eagerly; New overwrites it on reuse.
func (a *Arena) Release(id ID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id == 0 || int(id) > len(a.creatures) {
		return
	}
	if a.creatures[id-1] == nil {
		return
	}
	a.creatures[id-1] = nil
	a.freeIDs = append(a.freeIDs, id)
	a.live--
}

// Live returns the number of currently allocated (non-released) slots.
func (a *Arena) Live() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.live
}

// String renders a diagnostic summary, useful in panics and logs when
// an invariant check fails.
func (a *Arena) String() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return fmt.Sprintf("creature.Arena{slots:%d live:%d free:%d}", len(a.creatures), a.live, len(a.freeIDs))
}
