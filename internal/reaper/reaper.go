// Package reaper implements the selective-death queue: near-address
// reaping for allocation pressure, a random-window global policy,
// lazy-tolerance kills for creatures that stopped reproducing, and
// population-wide disturbance events.
package reaper

import (
	"math/rand"
	"time"

	"github.com/sony/gobreaker"

	"github.com/tierra-vm/tierra/internal/creature"
	"github.com/tierra-vm/tierra/internal/soup"
)

// Genebank is the subset of genebank.GeneBank the reaper needs;
// defined locally to avoid an import cycle between the two packages.
type Genebank interface {
	Unregister(id creature.ID)
}

// Scheduler is the subset of scheduler.Scheduler the reaper needs.
type Scheduler interface {
	Current() creature.ID
	Remove(id creature.ID)
	NumCreatures() int
}

// EventSink receives reap notifications. Cause is one of "reaper",
// "lazy", or "disturbance".
type EventSink interface {
	CellDied(id creature.ID, cause string)
}

// Config carries the reaper policy knobs read from the si0 file.
type Config struct {
	NearAddressReap   bool
	MalTol            int
	ReapRandomProp    float64
	LazyTol           int
	DistProp          float64
}

// Reaper is an ordered queue of living creature IDs with the oldest
// (most reapable) at the front.
type Reaper struct {
	queue  []creature.ID
	arena  *creature.Arena
	soup   *soup.Soup
	config Config

	// breaker guards the near-address / retry path used by mal's
	// allocate-fails-then-reap-once escalation (see sim/exec.go): after
	// repeated reap attempts find no victim, it opens briefly so a
	// population too small to reap from doesn't get hammered every
	// failing mal on every creature's slice.
	breaker *gobreaker.CircuitBreaker[creature.ID]
}

// New returns an empty reaper bound to arena and soup for interval
// cleanup, configured per cfg.
func New(arena *creature.Arena, s *soup.Soup, cfg Config) *Reaper {
	r := &Reaper{arena: arena, soup: s, config: cfg}
	r.breaker = gobreaker.NewCircuitBreaker[creature.ID](gobreaker.Settings{
		Name:        "reaper.reap",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     50 * time.Millisecond,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 8
		},
	})
	return r
}

// Add appends id to the tail of the queue.
func (r *Reaper) Add(id creature.ID) {
	r.queue = append(r.queue, id)
}

// remove deletes id by identity, wherever it sits in the queue.
func (r *Reaper) remove(id creature.ID) {
	for i, q := range r.queue {
		if q == id {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return
		}
	}
}

// Reap selects and destroys one creature. If nearAddr >= 0 and
// near-address reaping is enabled, the oldest queued creature within
// MalTol*avgSize of nearAddr is preferred; otherwise a uniform random
// index within the configured top fraction of the queue is used.
// rng supplies every draw this call consumes, in that fixed order.
func (r *Reaper) Reap(sched Scheduler, gb Genebank, events EventSink, rng *rand.Rand, avgMotherSize, soupSize, nearAddr int) (creature.ID, bool) {
	if len(r.queue) == 0 {
		return 0, false
	}
	current := sched.Current()

	if r.config.NearAddressReap && nearAddr >= 0 {
		if victim, ok := r.reapNearAddress(sched, gb, events, rng, avgMotherSize, soupSize, nearAddr, current); ok {
			return victim, true
		}
	}

	reapRange := int(float64(len(r.queue)) * r.config.ReapRandomProp)
	if reapRange < 1 {
		reapRange = 1
	}
	idx := 0
	if reapRange >= 2 {
		idx = rng.Intn(reapRange)
	}
	if idx >= len(r.queue) {
		idx = len(r.queue) - 1
	}
	victim := r.queue[idx]

	if victim == current && len(r.queue) > 1 {
		idx = (idx + 1) % minInt(reapRange, len(r.queue))
		victim = r.queue[idx]
		if victim == current {
			return 0, false
		}
	}

	r.reapCell(victim, sched, gb, events, rng)
	return victim, true
}

func (r *Reaper) reapNearAddress(sched Scheduler, gb Genebank, events EventSink, rng *rand.Rand, avgMotherSize, soupSize, addr int, current creature.ID) (creature.ID, bool) {
	maxDist := r.config.MalTol * avgMotherSize
	for _, id := range r.queue {
		if id == current {
			continue
		}
		c := r.arena.Get(id)
		if c == nil {
			continue
		}
		d := wrapDistance(c.Mother.Pos, addr, soupSize)
		if d <= maxDist {
			r.reapCell(id, sched, gb, events, rng)
			return id, true
		}
	}
	return 0, false
}

// reapCell is the shared destruction sequence: emit the death event
// before any cleanup, return mother (and daughter, if any) to the
// free list and randomize the mother bytes, deregister ownership and
// genotype, then drop the creature from both queues. rng supplies the
// post-reap randomization draws, in the simulation's shared order.
func (r *Reaper) reapCell(id creature.ID, sched Scheduler, gb Genebank, events EventSink, rng *rand.Rand) {
	c := r.arena.Get(id)
	if c == nil {
		return
	}
	c.Alive = false

	if events != nil {
		events.CellDied(id, "reaper")
	}

	r.soup.Deallocate(c.Mother.Pos, c.Mother.Size)
	r.soup.RandomizeBlock(rng, c.Mother.Pos, c.Mother.Size)
	r.soup.RemoveOwner(id)
	if c.Daughter != nil {
		r.soup.Deallocate(c.Daughter.Pos, c.Daughter.Size)
		c.Daughter = nil
	}

	if gb != nil {
		gb.Unregister(id)
	}

	r.remove(id)
	sched.Remove(id)
	r.arena.Release(id)
}

// CheckLazy reaps id with cause "lazy" if it has divided at least
// once and has run more than LazyTol*mother.Size instructions since
// its last division. Returns true if reaped.
func (r *Reaper) CheckLazy(id creature.ID, sched Scheduler, gb Genebank, events EventSink, rng *rand.Rand) bool {
	if r.config.LazyTol <= 0 {
		return false
	}
	c := r.arena.Get(id)
	if c == nil || c.Demo.Fecundity <= 0 {
		return false
	}
	threshold := c.Mother.Size * r.config.LazyTol
	if c.Demo.RepInst <= threshold {
		return false
	}
	c.Alive = false
	if events != nil {
		events.CellDied(id, "lazy")
	}
	r.soup.Deallocate(c.Mother.Pos, c.Mother.Size)
	r.soup.RandomizeBlock(rng, c.Mother.Pos, c.Mother.Size)
	r.soup.RemoveOwner(id)
	if c.Daughter != nil {
		r.soup.Deallocate(c.Daughter.Pos, c.Daughter.Size)
		c.Daughter = nil
	}
	if gb != nil {
		gb.Unregister(id)
	}
	r.remove(id)
	sched.Remove(id)
	r.arena.Release(id)
	return true
}

// Disturbance kills max(1, floor(len*DistProp)) random creatures,
// never the currently-executing one (a draw that lands on it is
// redrawn), and returns the count killed. It stops early only when a
// single creature is left in the queue.
func (r *Reaper) Disturbance(sched Scheduler, gb Genebank, events EventSink, rng *rand.Rand) int {
	if len(r.queue) == 0 {
		return 0
	}
	toKill := int(float64(len(r.queue)) * r.config.DistProp)
	if toKill < 1 {
		toKill = 1
	}
	current := sched.Current()
	killed := 0
	for killed < toKill {
		if len(r.queue) <= 1 {
			break
		}
		idx := rng.Intn(len(r.queue))
		victim := r.queue[idx]
		if victim == current {
			continue
		}
		if events != nil {
			events.CellDied(victim, "disturbance")
		}
		r.reapCellNoEvent(victim, sched, gb, rng)
		killed++
	}
	return killed
}

// reapCellNoEvent performs the same cleanup as reapCell without
// re-emitting CELL_DIED, since Disturbance already emitted it with
// the "disturbance" cause before calling in.
func (r *Reaper) reapCellNoEvent(id creature.ID, sched Scheduler, gb Genebank, rng *rand.Rand) {
	c := r.arena.Get(id)
	if c == nil {
		return
	}
	c.Alive = false
	r.soup.Deallocate(c.Mother.Pos, c.Mother.Size)
	r.soup.RandomizeBlock(rng, c.Mother.Pos, c.Mother.Size)
	r.soup.RemoveOwner(id)
	if c.Daughter != nil {
		r.soup.Deallocate(c.Daughter.Pos, c.Daughter.Size)
		c.Daughter = nil
	}
	if gb != nil {
		gb.Unregister(id)
	}
	r.remove(id)
	sched.Remove(id)
	r.arena.Release(id)
}

// NumQueued returns the current reaper queue length.
func (r *Reaper) NumQueued() int { return len(r.queue) }

// ReapViaBreaker wraps Reap with the circuit breaker described on
// Reaper: used by mal's allocation-failure escalation path so that a
// population too small to ever yield a victim stops retrying on
// every creature's every failing allocation for a cooldown window.
func (r *Reaper) ReapViaBreaker(sched Scheduler, gb Genebank, events EventSink, rng *rand.Rand, avgMotherSize, soupSize, nearAddr int) (creature.ID, bool) {
	id, err := r.breaker.Execute(func() (creature.ID, error) {
		victim, ok := r.Reap(sched, gb, events, rng, avgMotherSize, soupSize, nearAddr)
		if !ok {
			return 0, errNoVictim
		}
		return victim, nil
	})
	if err != nil {
		return 0, false
	}
	return id, true
}

var errNoVictim = noVictimError{}

type noVictimError struct{}

func (noVictimError) Error() string { return "reaper: no eligible victim" }

func wrapDistance(a, b, soupSize int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if alt := soupSize - d; alt < d {
		return alt
	}
	return d
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
