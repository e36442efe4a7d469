package sim

import (
	"github.com/tierra-vm/tierra/internal/creature"
	"github.com/tierra-vm/tierra/internal/eventbus"
	"github.com/tierra-vm/tierra/internal/isa"
	"github.com/tierra-vm/tierra/internal/soup"
)

// dispatch executes one decoded opcode against c, the currently
// scheduled creature identified by id.
func (s *Simulation) dispatch(op isa.Opcode, id creature.ID, c *creature.Creature) {
	switch op {
	case isa.Nop0, isa.Nop1:
		// no-op; only meaningful as template bytes for neighboring
		// search instructions.
	case isa.Not0:
		c.CPU.C ^= 1
		c.CPU.SetFlags(c.CPU.C)
	case isa.Shl:
		c.CPU.C <<= 1
		c.CPU.SetFlags(c.CPU.C)
	case isa.Zero:
		c.CPU.C = 0
		c.CPU.SetFlags(c.CPU.C)
	case isa.Ifz:
		s.execIfz(c)
	case isa.SubCAB:
		c.CPU.C = c.CPU.A - c.CPU.B + s.Mutation.Flaw(s.rng)
		c.CPU.SetFlags(c.CPU.C)
	case isa.SubAAC:
		c.CPU.A = c.CPU.A - c.CPU.C + s.Mutation.Flaw(s.rng)
		c.CPU.SetFlags(c.CPU.A)
	case isa.IncA:
		c.CPU.A = c.CPU.A + 1 + s.Mutation.Flaw(s.rng)
		c.CPU.SetFlags(c.CPU.A)
	case isa.IncB:
		c.CPU.B = c.CPU.B + 1 + s.Mutation.Flaw(s.rng)
		c.CPU.SetFlags(c.CPU.B)
	case isa.DecC:
		c.CPU.C = c.CPU.C - 1 + s.Mutation.Flaw(s.rng)
		c.CPU.SetFlags(c.CPU.C)
	case isa.IncC:
		c.CPU.C = c.CPU.C + 1 + s.Mutation.Flaw(s.rng)
		c.CPU.SetFlags(c.CPU.C)
	case isa.PushA:
		c.CPU.Push(c.CPU.A + s.Mutation.Flaw(s.rng))
	case isa.PushB:
		c.CPU.Push(c.CPU.B + s.Mutation.Flaw(s.rng))
	case isa.PushC:
		c.CPU.Push(c.CPU.C + s.Mutation.Flaw(s.rng))
	case isa.PushD:
		c.CPU.Push(c.CPU.D + s.Mutation.Flaw(s.rng))
	case isa.PopA:
		c.CPU.A = c.CPU.Pop()
	case isa.PopB:
		c.CPU.B = c.CPU.Pop()
	case isa.PopC:
		c.CPU.C = c.CPU.Pop()
	case isa.PopD:
		c.CPU.D = c.CPU.Pop()
	case isa.Jmpo:
		s.execJump(c, 'o')
	case isa.Jmpb:
		s.execJump(c, 'b')
	case isa.Call:
		s.execCall(c)
	case isa.Ret:
		c.CPU.IP = int(c.CPU.Pop())
		c.CPU.IPModified = true
	case isa.MovDC:
		c.CPU.D = c.CPU.C + s.Mutation.Flaw(s.rng)
	case isa.MovBA:
		c.CPU.B = c.CPU.A + s.Mutation.Flaw(s.rng)
	case isa.Movii:
		s.execMovii(id, c)
	case isa.Adro:
		s.execAddress(c, 'o')
	case isa.Adrb:
		s.execAddress(c, 'b')
	case isa.Adrf:
		s.execAddress(c, 'f')
	case isa.Mal:
		s.execMal(id, c)
	case isa.Divide:
		s.execDivide(id, c)
	}
}

func (s *Simulation) execIfz(c *creature.Creature) {
	if c.CPU.C != 0 {
		c.CPU.IP = (c.CPU.IP + 2) % s.Config.SoupSize
		c.CPU.IPModified = true
	}
}

// execJump runs a template search and jumps to the match on success,
// or skips past the source template and sets the error flag on
// failure.
func (s *Simulation) execJump(c *creature.Creature, direction byte) {
	addr, tlen, ok := s.findTemplate(c.CPU.IP, direction)
	if ok {
		c.CPU.IP = addr
		c.CPU.IPModified = true
		c.CPU.FlagE = false
		return
	}
	c.CPU.FlagE = true
	s.skipTemplate(c, tlen)
}

// execCall behaves like execJump but additionally pushes the return
// address (one past the source template) before jumping. Outward
// search, matching the direction real Tierra's call/o uses.
func (s *Simulation) execCall(c *creature.Creature) {
	returnAddr := s.templateEnd(c.CPU.IP)
	addr, tlen, ok := s.findTemplate(c.CPU.IP, 'o')
	if ok {
		c.CPU.Push(int32(returnAddr))
		c.CPU.IP = addr
		c.CPU.IPModified = true
		c.CPU.FlagE = false
		return
	}
	c.CPU.FlagE = true
	s.skipTemplate(c, tlen)
}

// execAddress runs a template search for adro/adrb/adrf: the match
// address lands in A and the template length in C, but execution
// never jumps — it always continues past the source template.
func (s *Simulation) execAddress(c *creature.Creature, direction byte) {
	addr, tlen, ok := s.findTemplate(c.CPU.IP, direction)
	if ok {
		c.CPU.A = int32(addr)
		c.CPU.C = int32(tlen)
		c.CPU.FlagE = false
	} else {
		c.CPU.FlagE = true
	}
	s.skipTemplate(c, tlen)
}

func (s *Simulation) execMovii(id creature.ID, c *creature.Creature) {
	soupSize := s.Config.SoupSize
	addrA := wrapAddr(int(c.CPU.A), soupSize)
	addrB := wrapAddr(int(c.CPU.B), soupSize)

	if !c.OwnsDaughter(addrA, soupSize) || !s.Soup.Check(addrA, id, soup.AccessWrite) {
		c.CPU.FlagE = true
		return
	}

	value := s.Soup.Read(addrB)
	value = s.Mutation.CopyMutate(s.rng, value)
	s.Soup.Write(addrA, value)
	c.CPU.FlagE = false

	offset := (addrA - c.Daughter.Pos + soupSize) % soupSize
	c.Demo.MovDaught++
	if offset < c.Demo.MovOffMin {
		c.Demo.MovOffMin = offset
	}
	if offset > c.Demo.MovOffMax {
		c.Demo.MovOffMax = offset
	}
}

func (s *Simulation) execMal(id creature.ID, c *creature.Creature) {
	requested := int(c.CPU.C)
	if requested < s.Config.MinCellSize || requested > 2*c.Mother.Size {
		c.CPU.FlagE = true
		return
	}

	if c.Daughter != nil {
		s.Soup.Deallocate(c.Daughter.Pos, c.Daughter.Size)
		c.Daughter = nil
	}

	mode := allocModeFromConfig(s.Config.MalMode)
	pos, ok := s.Soup.Allocate(requested, mode, s.rng, c.Mother.Pos, -1)
	if !ok {
		if _, reaped := s.Reaper.ReapViaBreaker(s.Scheduler, s.Genebank, s.Events, s.rng,
			s.Scheduler.AverageMotherSize(80), s.Config.SoupSize, -1); reaped {
			pos, ok = s.Soup.Allocate(requested, mode, s.rng, c.Mother.Pos, -1)
		}
	}
	if !ok {
		c.CPU.FlagE = true
		return
	}

	region := creature.MemRegion{Pos: pos, Size: requested}
	c.Daughter = &region
	c.CPU.A = int32(pos)
	c.Demo.MovDaught = 0
	c.Demo.MovOffMin = requested
	c.Demo.MovOffMax = 0
	c.CPU.FlagE = false
}

func (s *Simulation) execDivide(id creature.ID, c *creature.Creature) {
	if c.Daughter == nil || c.Daughter.Size < s.Config.MinCellSize {
		c.CPU.FlagE = true
		return
	}
	threshold := int(float64(c.Daughter.Size) * s.Config.MovPropThrDiv)
	if c.Demo.MovDaught < threshold {
		c.CPU.FlagE = true
		return
	}
	if s.Config.DivSameSiz != 0 && c.Daughter.Size != c.Mother.Size {
		c.CPU.FlagE = true
		return
	}

	s.Mutation.GeneticOps(s.rng, id, s.Scheduler, s.Config.SoupSize)

	daughter := *c.Daughter
	newID := s.Arena.New(daughter)
	newC := s.Arena.Get(newID)
	newC.CPU.IP = daughter.Pos
	newC.Demo.ParentGenotype = c.Demo.Genotype
	newC.Demo.BirthTime = int(s.InstExecuted)

	s.Soup.AddOwner(newID, daughter.Pos, daughter.Size)
	gt, isNew := s.Genebank.Register(newID, int(s.InstExecuted))
	s.Scheduler.Add(newID)
	s.Reaper.Add(newID)

	if isNew && gt != nil {
		s.Events.Emit(eventbus.Event{Type: eventbus.NewGenotype, Genotype: gt.Name, Parent: gt.Parent})
	}
	s.Events.Emit(eventbus.Event{Type: eventbus.CellBorn, CellID: newID, Parent: c.Demo.Genotype})

	c.Daughter = nil
	c.Demo.MovDaught = 0
	c.Demo.MovOffMin = 0
	c.Demo.MovOffMax = 0
	c.Demo.Fecundity++
	c.Demo.RepInst = 0
	s.lastReproInst = s.InstExecuted
	c.CPU.FlagE = false
}

func wrapAddr(a, size int) int {
	a %= size
	if a < 0 {
		a += size
	}
	return a
}
