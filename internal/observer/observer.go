// Package observer is the thread-safe control surface external callers
// (a GUI, a REPL, a test harness) use to drive a simulation running on
// its own goroutine: start/pause/stop, single-step, snapshot reads of
// cells and genotypes, genome injection, and live configuration edits.
// Every read and write takes the same mutex the background loop holds
// for the duration of each slice batch, so a snapshot is always
// consistent at a batch boundary per the core's concurrency contract.
package observer

import (
	"context"
	"sync"

	"github.com/tierra-vm/tierra/internal/config"
	"github.com/tierra-vm/tierra/internal/creature"
	"github.com/tierra-vm/tierra/internal/genebank"
	"github.com/tierra-vm/tierra/internal/sim"
)

// CellSnapshot is an immutable, copied-out view of one creature.
type CellSnapshot struct {
	CellID         creature.ID
	Pos            int
	Size           int
	IP             int
	A, B, C, D     int32
	SP             int
	Stack          [10]int32
	FlagE          bool
	FlagS          bool
	FlagZ          bool
	Genotype       string
	ParentGenotype string
	Fecundity      int
	InstExecuted   int
	Mutations      int
	Alive          bool
	DaughterPos    int
	DaughterSize   int
	HasDaughter    bool
}

// GenotypeSnapshot is an immutable, copied-out view of one genotype.
type GenotypeSnapshot struct {
	Name       string
	Genome     []byte
	Population int
	MaxPop     int
	Parent     string
	OriginTime int
}

func snapshotCell(id creature.ID, c *creature.Creature) CellSnapshot {
	snap := CellSnapshot{
		CellID:         id,
		Pos:            c.Mother.Pos,
		Size:           c.Mother.Size,
		IP:             c.CPU.IP,
		A:              c.CPU.A,
		B:              c.CPU.B,
		C:              c.CPU.C,
		D:              c.CPU.D,
		SP:             c.CPU.SP,
		Stack:          c.CPU.Stack,
		FlagE:          c.CPU.FlagE,
		FlagS:          c.CPU.FlagS,
		FlagZ:          c.CPU.FlagZ,
		Genotype:       c.Demo.Genotype,
		ParentGenotype: c.Demo.ParentGenotype,
		Fecundity:      c.Demo.Fecundity,
		InstExecuted:   c.Demo.InstExecuted,
		Mutations:      c.Demo.Mutations,
		Alive:          c.Alive,
	}
	if c.Daughter != nil {
		snap.HasDaughter = true
		snap.DaughterPos = c.Daughter.Pos
		snap.DaughterSize = c.Daughter.Size
	}
	return snap
}

func snapshotGenotype(gt *genebank.Genotype) GenotypeSnapshot {
	genome := make([]byte, len(gt.Genome))
	copy(genome, gt.Genome)
	return GenotypeSnapshot{
		Name:       gt.Name,
		Genome:     genome,
		Population: gt.Population,
		MaxPop:     gt.MaxPop,
		Parent:     gt.Parent,
		OriginTime: gt.OriginTime,
	}
}

// Controller wraps a *sim.Simulation with a background run loop and a
// snapshot-safe query API.
type Controller struct {
	mu  sync.Mutex
	sim *sim.Simulation

	slicesPerTick int
	running       bool
	cancel        context.CancelFunc
	done          chan struct{}

	tickMu    sync.Mutex
	callbacks []func()
}

// New wraps sim with a default tick size of 100 slices per batch.
func New(s *sim.Simulation) *Controller {
	return &Controller{sim: s, slicesPerTick: 100}
}

// SetSimulation swaps the wrapped simulation, pausing and resuming the
// background loop around the swap if it was running.
func (ctl *Controller) SetSimulation(s *sim.Simulation) {
	wasRunning := ctl.IsRunning()
	if wasRunning {
		ctl.Stop()
	}
	ctl.mu.Lock()
	ctl.sim = s
	ctl.mu.Unlock()
	if wasRunning {
		ctl.Start()
	}
}

// SetSpeed sets how many slices run per background-loop batch.
func (ctl *Controller) SetSpeed(slicesPerTick int) {
	if slicesPerTick < 1 {
		slicesPerTick = 1
	}
	ctl.mu.Lock()
	ctl.slicesPerTick = slicesPerTick
	ctl.mu.Unlock()
}

// OnTick registers cb to run after every background-loop batch.
func (ctl *Controller) OnTick(cb func()) {
	ctl.tickMu.Lock()
	defer ctl.tickMu.Unlock()
	ctl.callbacks = append(ctl.callbacks, cb)
}

// Start runs the simulation on a background goroutine until Stop is
// called. Calling Start while already running is a no-op.
func (ctl *Controller) Start() {
	ctl.mu.Lock()
	if ctl.sim == nil || ctl.running {
		ctl.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	ctl.cancel = cancel
	ctl.running = true
	done := make(chan struct{})
	ctl.done = done
	ctl.mu.Unlock()

	go ctl.runLoop(ctx, done)
}

// Stop halts the background loop and waits for it to exit.
func (ctl *Controller) Stop() {
	ctl.mu.Lock()
	if !ctl.running {
		ctl.mu.Unlock()
		return
	}
	cancel := ctl.cancel
	done := ctl.done
	ctl.running = false
	ctl.mu.Unlock()

	cancel()
	<-done
}

// Pause is equivalent to Stop here: the background goroutine exits and
// Start resumes it from the current simulation state, matching the
// lineage controller's "thread stays idle" intent without keeping an
// idle goroutine parked.
func (ctl *Controller) Pause() { ctl.Stop() }

// IsRunning reports whether the background loop is active.
func (ctl *Controller) IsRunning() bool {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	return ctl.running
}

func (ctl *Controller) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ctl.mu.Lock()
		s := ctl.sim
		n := ctl.slicesPerTick
		ctl.mu.Unlock()
		if s == nil {
			return
		}

		stop := false
		ctl.mu.Lock()
		for i := 0; i < n; i++ {
			id := s.Scheduler.Current()
			if id == 0 {
				stop = true
				break
			}
			s.RunSlice(id)
			s.Scheduler.Advance()
		}
		ctl.mu.Unlock()

		ctl.tickMu.Lock()
		cbs := append([]func(){}, ctl.callbacks...)
		ctl.tickMu.Unlock()
		for _, cb := range cbs {
			cb()
		}

		if stop {
			ctl.mu.Lock()
			ctl.running = false
			ctl.mu.Unlock()
			return
		}
	}
}

// Step synchronously executes n slices without starting the
// background loop; useful for deterministic single-stepping in tests.
func (ctl *Controller) Step(n int) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.sim == nil {
		return
	}
	for i := 0; i < n; i++ {
		id := ctl.sim.Scheduler.Current()
		if id == 0 {
			return
		}
		ctl.sim.RunSlice(id)
		ctl.sim.Scheduler.Advance()
	}
}

// GetCell returns a snapshot of the creature with the given ID, if it
// is currently scheduled.
func (ctl *Controller) GetCell(id creature.ID) (CellSnapshot, bool) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.sim == nil {
		return CellSnapshot{}, false
	}
	for _, qid := range ctl.sim.Scheduler.Queue() {
		if qid == id {
			c := ctl.sim.Arena.Get(qid)
			if c == nil {
				return CellSnapshot{}, false
			}
			return snapshotCell(qid, c), true
		}
	}
	return CellSnapshot{}, false
}

// GetCellAt returns a snapshot of whichever creature owns addr.
func (ctl *Controller) GetCellAt(addr int) (CellSnapshot, bool) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.sim == nil {
		return CellSnapshot{}, false
	}
	id, ok := ctl.sim.Soup.OwnerAt(addr)
	if !ok {
		return CellSnapshot{}, false
	}
	c := ctl.sim.Arena.Get(id)
	if c == nil {
		return CellSnapshot{}, false
	}
	return snapshotCell(id, c), true
}

// GetAllCells returns snapshots of every currently scheduled creature.
func (ctl *Controller) GetAllCells() []CellSnapshot {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.sim == nil {
		return nil
	}
	queue := ctl.sim.Scheduler.Queue()
	out := make([]CellSnapshot, 0, len(queue))
	for _, id := range queue {
		if c := ctl.sim.Arena.Get(id); c != nil {
			out = append(out, snapshotCell(id, c))
		}
	}
	return out
}

// GetGenotype returns a snapshot of the named genotype, regardless of
// its current population.
func (ctl *Controller) GetGenotype(name string) (GenotypeSnapshot, bool) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.sim == nil {
		return GenotypeSnapshot{}, false
	}
	gt, ok := ctl.sim.Genebank.Lookup(name)
	if !ok {
		return GenotypeSnapshot{}, false
	}
	return snapshotGenotype(gt), true
}

// GetAllGenotypes returns snapshots of every genotype with nonzero
// population.
func (ctl *Controller) GetAllGenotypes() []GenotypeSnapshot {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.sim == nil {
		return nil
	}
	all := ctl.sim.Genebank.All()
	out := make([]GenotypeSnapshot, 0, len(all))
	for _, gt := range all {
		if gt.Population > 0 {
			out = append(out, snapshotGenotype(gt))
		}
	}
	return out
}

// ReadSoup returns a copy of count raw soup bytes starting at addr.
func (ctl *Controller) ReadSoup(addr, count int) []byte {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.sim == nil {
		return nil
	}
	return ctl.sim.Soup.ReadBlock(addr, count)
}

// InjectGenome places code at position as a new creature, registering
// it with the scheduler, owner index, reaper and genebank as a boot
// cell is. Unlike a boot cell, it emits no events and its parent
// genotype is "injected". Reports false if the requested interval is
// not free.
func (ctl *Controller) InjectGenome(code []byte, position int) bool {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.sim == nil {
		return false
	}
	if !ctl.sim.Soup.AllocateAt(position, len(code)) {
		return false
	}
	ctl.sim.Soup.WriteBlock(position, code)

	id := ctl.sim.Arena.New(creature.MemRegion{Pos: position, Size: len(code)})
	c := ctl.sim.Arena.Get(id)
	c.CPU.IP = position
	c.Demo.ParentGenotype = "injected"
	c.Demo.BirthTime = int(ctl.sim.InstExecuted)

	ctl.sim.Scheduler.Add(id)
	ctl.sim.Soup.AddOwner(id, position, len(code))
	ctl.sim.Reaper.Add(id)
	ctl.sim.Genebank.Register(id, int(ctl.sim.InstExecuted))
	return true
}

// UpdateConfig applies a partial config edit between batches. Only
// called while the background loop is paused/stopped, or racily but
// harmlessly between its own lock acquisitions otherwise.
func (ctl *Controller) UpdateConfig(apply func(*config.Config)) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.sim == nil {
		return
	}
	apply(&ctl.sim.Config)
}

// InstExecuted returns the running total of instructions executed.
func (ctl *Controller) InstExecuted() int64 {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if ctl.sim == nil {
		return 0
	}
	return ctl.sim.InstExecuted
}
