// Package sim wires soup, scheduler, reaper, genebank, and the
// mutation engine into the executable loop: boot an ancestor, run
// instructions slice by slice, and keep the population's statistics
// current for the policies that depend on them.
package sim

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/tierra-vm/tierra/internal/config"
	"github.com/tierra-vm/tierra/internal/creature"
	"github.com/tierra-vm/tierra/internal/eventbus"
	"github.com/tierra-vm/tierra/internal/genebank"
	"github.com/tierra-vm/tierra/internal/genome"
	"github.com/tierra-vm/tierra/internal/isa"
	"github.com/tierra-vm/tierra/internal/mutation"
	"github.com/tierra-vm/tierra/internal/reaper"
	"github.com/tierra-vm/tierra/internal/scheduler"
	"github.com/tierra-vm/tierra/internal/soup"
)

// ancestorParentGenotype is the fixed parent name every hand-booted
// ancestor is tagged with, matching the lineage's "0666god" marker
// for organisms with no real parent.
const ancestorParentGenotype = "0666god"

// Simulation owns every subsystem for one run and the single seeded
// generator every randomness draw shares, per the fixed call order
// §4.8 requires.
type Simulation struct {
	Config config.Config

	Soup      *soup.Soup
	Arena     *creature.Arena
	Scheduler *scheduler.Scheduler
	Reaper    *reaper.Reaper
	Genebank  *genebank.GeneBank
	Mutation  *mutation.Engine
	Events    *eventbus.Bus

	rng *rand.Rand

	InstExecuted     int64
	lastReproInst    int64
	nextDisturbInst  int64
	lastSaveInst     int64
	lastReportInst   int64
	startTime        time.Time

	// Stop is polled at slice boundaries by Run; setting it true ends
	// the loop after the current creature's slice completes.
	Stop bool
	// Pause halts Run between slices until cleared, without ending it.
	Pause bool

	// OnReport, if set, runs at the end of every periodic bookkeeping
	// pass (report-interval boundary), after rates are recomputed and
	// genotypes are saved. External callers (data collection, an event
	// log flush) hook in here rather than duplicating Run's loop.
	OnReport func(*Simulation)
}

// New builds every subsystem from cfg and returns a ready Simulation.
// No cells exist yet; call Boot or BootFromConfig next.
func New(cfg config.Config) *Simulation {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	s := soup.New(cfg.SoupSize)
	s.ModeFree = cfg.MemModeFree
	s.ModeMine = cfg.MemModeMine
	s.ModeOther = cfg.MemModeProt

	arena := creature.NewArena(256)

	sched := scheduler.New(arena, scheduler.Config{
		SizeDependentSlice: cfg.SizDepSlice != 0,
		SliceSize:          cfg.SliceSize,
		SlicePow:           cfg.SlicePow,
		Style:              sliceStyle(cfg.SliceStyle),
		FixedFraction:      cfg.SlicFixFrac,
		RandomFraction:     cfg.SlicRanFrac,
	})

	rp := reaper.New(arena, s, reaper.Config{
		NearAddressReap: cfg.MalReapTol != 0,
		MalTol:          cfg.MalTol,
		ReapRandomProp:  cfg.ReapRndProp,
		LazyTol:         cfg.LazyTol,
		DistProp:        cfg.DistProp,
	})

	gb := genebank.New(arena, s, 4096, 0.01)

	mu := mutation.New(s, arena, mutation.Config{
		GenPerBkgMut:         cfg.GenPerBkgMut,
		GenPerFlaw:           cfg.GenPerFlaw,
		GenPerMovMut:         cfg.GenPerMovMut,
		GenPerDivMut:         cfg.GenPerDivMut,
		GenPerCroInsSameSize: cfg.GenPerCroInsSamSiz,
		GenPerCroIns:         cfg.GenPerCroIns,
		GenPerInsIns:         cfg.GenPerInsIns,
		GenPerDelIns:         cfg.GenPerDelIns,
		GenPerCroSeg:         cfg.GenPerCroSeg,
		GenPerInsSeg:         cfg.GenPerInsSeg,
		GenPerDelSeg:         cfg.GenPerDelSeg,
		MutBitProp:           cfg.MutBitProp,
		MinCellSize:          cfg.MinCellSize,
	})

	// Rate limiting is off (0, 0): the core's event stream must stay
	// bit-identical across runs under a fixed seed (spec.md §4.8), and
	// the bus's token bucket is keyed on wall-clock time, not anything
	// seeded or instruction-counted. Callers who want throttling for a
	// downstream observer can still construct a rate-limited
	// eventbus.Bus directly and subscribe it independently.
	return &Simulation{
		Config:    cfg,
		Soup:      s,
		Arena:     arena,
		Scheduler: sched,
		Reaper:    rp,
		Genebank:  gb,
		Mutation:  mu,
		Events:    eventbus.New(0, 0),
		rng:       rng,
	}
}

func sliceStyle(v int) scheduler.SliceStyle {
	if v == 2 {
		return scheduler.SliceStyleBlended
	}
	return scheduler.SliceStyleFixed
}

// bootCell is the shared sequence Boot and BootFromConfig use to
// install one hand-placed ancestor at pos.
func (s *Simulation) bootCell(pos int, code []byte) creature.ID {
	s.Soup.WriteBlock(pos, code)
	s.Soup.AllocateAt(pos, len(code))

	id := s.Arena.New(creature.MemRegion{Pos: pos, Size: len(code)})
	c := s.Arena.Get(id)
	c.CPU.IP = pos
	c.Demo.ParentGenotype = ancestorParentGenotype
	c.Demo.BirthTime = 0

	s.Scheduler.Add(id)
	s.Soup.AddOwner(id, pos, len(code))
	s.Reaper.Add(id)
	if gt, isNew := s.Genebank.Register(id, int(s.InstExecuted)); gt != nil && isNew {
		s.Events.Emit(eventbus.Event{Type: eventbus.NewGenotype, Genotype: gt.Name, Parent: gt.Parent})
	}
	s.Events.Emit(eventbus.Event{Type: eventbus.CellBorn, CellID: id, Parent: ancestorParentGenotype})
	return id
}

// Boot loads the ancestor genome at ancestorPath into the center of
// the soup and creates its first cell.
func (s *Simulation) Boot(ancestorPath string) error {
	code, err := genome.Load(ancestorPath)
	if err != nil {
		return fmt.Errorf("sim: boot: %w", err)
	}
	pos := s.Config.SoupSize/2 - len(code)/2
	s.bootCell(pos, code)

	s.Mutation.UpdateRates(len(code))
	s.scheduleNextDisturbance(len(code))
	return nil
}

// BootFromConfig installs every genome named in the config's
// inoculation list, resolving bare names against genebankDir.
func (s *Simulation) BootFromConfig(genebankDir string) error {
	if len(s.Config.Inoculations) == 0 {
		return nil
	}

	positionMode := "center"
	for _, entry := range s.Config.Inoculations {
		if entry == "center" || entry == "random" {
			positionMode = entry
			continue
		}
		path := filepath.Join(genebankDir, entry+".tie")
		code, err := genome.Load(path)
		if err != nil {
			continue
		}

		var pos int
		if positionMode == "center" {
			pos = s.Config.SoupSize/2 - len(code)/2
		} else {
			pos = s.rng.Intn(s.Config.SoupSize - len(code) + 1)
		}
		s.bootCell(pos, code)
	}

	if s.Scheduler.NumCreatures() > 0 {
		avg := s.Scheduler.AverageMotherSize(80)
		s.Mutation.UpdateRates(avg)
		s.scheduleNextDisturbance(avg)
	}
	return nil
}

// Run executes slices until max instructions have run (0 means
// unbounded), Stop is set, or no cell remains. reportInterval governs
// how often periodic bookkeeping runs.
func (s *Simulation) Run(maxInstructions int64, reportInterval int64) {
	s.startTime = time.Now()
	s.lastReportInst = 0

	for !s.Stop && (maxInstructions == 0 || s.InstExecuted < maxInstructions) {
		for s.Pause && !s.Stop {
			time.Sleep(time.Millisecond)
		}
		if s.Stop {
			break
		}
		id := s.Scheduler.Current()
		if id == 0 {
			break
		}
		s.RunSlice(id)
		s.Scheduler.Advance()

		if s.InstExecuted-s.lastReportInst >= reportInterval {
			s.periodicBookkeeping()
			s.lastReportInst = s.InstExecuted

			if s.Config.DropDead > 0 {
				deadThreshold := int64(s.Config.DropDead) * 1_000_000
				if s.InstExecuted-s.lastReproInst > deadThreshold {
					break
				}
			}
		}
	}
}

// RunSlice executes one time slice for id: up to the computed
// instruction budget, honoring the execute-protection check, the
// opcode dispatch table, background mutation, and disturbance
// scheduling, then the end-of-slice lazy-kill check.
func (s *Simulation) RunSlice(id creature.ID) {
	c := s.Arena.Get(id)
	if c == nil {
		return
	}
	sliceSize := s.Scheduler.ComputeSlice(id, s.rng)
	soupSize := s.Config.SoupSize

	for i := 0; i < sliceSize; i++ {
		if !c.Alive {
			break
		}

		if !s.Soup.Check(c.CPU.IP, id, soup.AccessExecute) {
			c.CPU.FlagE = true
			c.CPU.IP = (c.CPU.IP + 1) % soupSize
			c.Demo.InstExecuted++
			c.Demo.RepInst++
			s.InstExecuted++
			continue
		}

		opcode := isa.Opcode(int(s.Soup.Read(c.CPU.IP)) % isa.NumOpcodes)
		c.CPU.IPModified = false

		s.dispatch(opcode, id, c)

		if !c.CPU.IPModified {
			c.CPU.IP = (c.CPU.IP + 1) % soupSize
		}

		c.Demo.InstExecuted++
		c.Demo.RepInst++
		s.InstExecuted++

		if s.Mutation.Rates.Mut > 0 && s.rng.Float64() < s.Mutation.Rates.Mut {
			s.Mutation.Background(s.rng, soupSize, s.Events)
		}

		if s.nextDisturbInst > 0 && s.InstExecuted >= s.nextDisturbInst {
			s.doDisturbance()
		}
	}

	s.Reaper.CheckLazy(id, s.Scheduler, s.Genebank, s.Events, s.rng)
}

func (s *Simulation) doDisturbance() {
	if s.Config.DistFreq == 0 {
		return
	}
	s.Reaper.Disturbance(s.Scheduler, s.Genebank, s.Events, s.rng)
	avg := s.Scheduler.AverageMotherSize(80)
	s.scheduleNextDisturbance(avg)
}

// scheduleNextDisturbance follows §6: a negative DistFreq is a
// fraction of soup-wide recovery time; a positive one is a fraction
// of average creature lifetime (approximated by mean mother size).
func (s *Simulation) scheduleNextDisturbance(avgSize int) {
	if s.Config.DistFreq == 0 || avgSize <= 0 {
		s.nextDisturbInst = 0
		return
	}

	freq := s.Config.DistFreq
	var interval int64
	if freq < 0 {
		interval = int64(-freq * float64(s.Config.SoupSize))
	} else {
		interval = int64(freq * float64(avgSize))
	}

	if interval <= 0 {
		s.nextDisturbInst = 0
	} else {
		s.nextDisturbInst = s.InstExecuted + interval
	}
}

func (s *Simulation) periodicBookkeeping() {
	if s.Scheduler.NumCreatures() > 0 {
		s.Mutation.UpdateRates(s.Scheduler.AverageMotherSize(80))
	}
	s.Events.Emit(eventbus.Event{Type: eventbus.Milestone, InstCount: s.InstExecuted})
	s.saveGenotypesToDisk()
	if s.OnReport != nil {
		s.OnReport(s)
	}
}

func (s *Simulation) saveGenotypesToDisk() {
	if s.Config.DiskBank == 0 || s.Config.SaveFreq <= 0 {
		return
	}
	threshold := int64(s.Config.SaveFreq) * 1_000_000
	if s.InstExecuted-s.lastSaveInst < threshold {
		return
	}
	s.lastSaveInst = s.InstExecuted

	numCells := s.Scheduler.NumCreatures()
	if numCells == 0 {
		return
	}

	for _, gt := range s.Genebank.All() {
		if gt.Population <= 0 {
			continue
		}
		meetsNum := gt.Population >= s.Config.SavMinNum
		meetsMem := float64(gt.Population*len(gt.Genome))/float64(s.Config.SoupSize) >= s.Config.SavThrMem
		meetsPop := float64(gt.Population)/float64(numCells) >= s.Config.SavThrPop
		if !meetsNum && !meetsMem && !meetsPop {
			continue
		}
		path := filepath.Join(s.Config.GenebankPath, gt.Name+".tie")
		_ = genome.Save(path, gt.Genome, gt.Name, gt.Parent)
	}
}

// Report renders a one-line human-readable status summary.
func (s *Simulation) Report() string {
	elapsed := time.Since(s.startTime).Seconds()
	speed := 0.0
	if elapsed > 0 {
		speed = float64(s.InstExecuted) / elapsed
	}
	avg := 0
	if s.Scheduler.NumCreatures() > 0 {
		avg = s.Scheduler.AverageMotherSize(80)
	}
	freePct := float64(s.Soup.TotalFree()) / float64(s.Soup.Size) * 100

	return fmt.Sprintf(
		"InstExe: %d  Cells: %d  Genotypes: %d  AvgSize: %d  Free: %.1f%%  Speed: %.0f inst/s",
		s.InstExecuted, s.Scheduler.NumCreatures(), s.Genebank.NumGenotypes(), avg, freePct, speed,
	)
}
