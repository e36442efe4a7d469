// Package mutation implements the flaw perturbation, background cosmic
// rays, copy mutation, and the eight division-time genetic operators,
// run in the fixed order the simulation loop requires for
// determinism.
package mutation

import (
	"math/rand"

	"github.com/tierra-vm/tierra/internal/creature"
	"github.com/tierra-vm/tierra/internal/isa"
	"github.com/tierra-vm/tierra/internal/soup"
)

// Rates are the live, population-derived probabilities recomputed
// periodically by UpdateRates.
type Rates struct {
	Mut    float64 // background mutation, per instruction
	Flaw   float64 // arithmetic/copy flaw, per instruction
	MovMut float64 // copy mutation inside movii, per byte copied
}

// Config carries the gen_per_* denominators and the bit/value mutation
// blend, read verbatim from the si0 file.
type Config struct {
	GenPerBkgMut      int
	GenPerFlaw        int
	GenPerMovMut      int
	GenPerDivMut      int
	GenPerCroInsSameSize int
	GenPerCroIns      int
	GenPerInsIns      int
	GenPerDelIns      int
	GenPerCroSeg      int
	GenPerInsSeg      int
	GenPerDelSeg      int
	MutBitProp        float64
	MinCellSize       int
}

// Population is the subset of scheduler.Scheduler the genetic
// operators need for mate selection, defined locally to avoid an
// import cycle.
type Population interface {
	Queue() []creature.ID
}

// Events receives MUTATION notifications.
type Events interface {
	Mutation(addr int, kind string)
}

// Engine owns the mutation configuration and the soup/arena it
// operates on. Rates is recomputed in place by UpdateRates as the
// simulation's population statistics change.
type Engine struct {
	Config Config
	Rates  Rates

	soup  *soup.Soup
	arena *creature.Arena
}

// New returns an Engine bound to s and arena, configured per cfg.
func New(s *soup.Soup, arena *creature.Arena, cfg Config) *Engine {
	return &Engine{Config: cfg, soup: s, arena: arena}
}

// UpdateRates recomputes Rates from the current average mother size,
// per rate := 1/(gen_per_X * avgSize) when the denominator is
// positive, else zero.
func (e *Engine) UpdateRates(avgSize int) {
	if avgSize <= 0 {
		avgSize = 80
	}
	e.Rates.Mut = rateOf(e.Config.GenPerBkgMut, avgSize)
	e.Rates.Flaw = rateOf(e.Config.GenPerFlaw, avgSize)
	e.Rates.MovMut = rateOf(e.Config.GenPerMovMut, avgSize)
}

func rateOf(genPer, avgSize int) float64 {
	if genPer <= 0 {
		return 0
	}
	return 1.0 / (float64(genPer) * float64(avgSize))
}

// Flaw returns the ±1 perturbation a flaw-subject operand receives
// this call: 0 most of the time, otherwise -1 or +1. rng supplies the
// (up to two) draws this consumes.
func (e *Engine) Flaw(rng *rand.Rand) int32 {
	if e.Rates.Flaw <= 0 {
		return 0
	}
	if rng.Float64() < e.Rates.Flaw {
		if rng.Intn(2) == 0 {
			return -1
		}
		return 1
	}
	return 0
}

// mutateValue applies the bit-flip/replace blend used by both
// background and division-time point mutations.
func (e *Engine) mutateValue(rng *rand.Rand, value byte) byte {
	if rng.Float64() < e.Config.MutBitProp {
		return value ^ (1 << uint(rng.Intn(5)))
	}
	return byte(rng.Intn(32))
}

// Background applies one background mutation at a uniformly random
// soup address and reports it through events.
func (e *Engine) Background(rng *rand.Rand, soupSize int, events Events) {
	addr := rng.Intn(soupSize)
	v := e.mutateValue(rng, e.soup.Read(addr))
	e.soup.Write(addr, v)
	if events != nil {
		events.Mutation(addr, "background")
	}
}

// CopyMutate is consulted by movii for every byte it copies into
// daughter memory: with probability Rates.MovMut the byte is mutated
// before it lands.
func (e *Engine) CopyMutate(rng *rand.Rand, value byte) byte {
	if e.Rates.MovMut <= 0 || rng.Float64() >= e.Rates.MovMut {
		return value
	}
	return e.mutateValue(rng, value)
}

// GeneticOps runs the eight division-time operators against id's
// daughter interval, in the fixed order the simulation requires:
// point mutation, same-size crossover, variable-size crossover,
// instruction insertion, instruction deletion, segment crossover,
// segment insertion, segment deletion. pop supplies mate candidates.
func (e *Engine) GeneticOps(rng *rand.Rand, id creature.ID, pop Population, soupSize int) {
	c := e.arena.Get(id)
	if c == nil || c.Daughter == nil {
		return
	}
	e.pointMutation(rng, c, soupSize)
	e.crossoverSameSize(rng, c, id, pop, soupSize)
	e.crossoverVariableSize(rng, c, id, pop, soupSize)
	e.insertionInst(rng, c, soupSize)
	e.deletionInst(rng, c, soupSize)
	e.crossoverSeg(rng, c, id, pop, soupSize)
	e.insertionSeg(rng, c, soupSize)
	e.deletionSeg(rng, c, soupSize)
}

func triggered(rng *rand.Rand, genPer int) bool {
	if genPer <= 0 {
		return false
	}
	return rng.Float64() < 1.0/float64(genPer)
}

// 1. Point mutation: one random byte of the daughter is value-mutated.
func (e *Engine) pointMutation(rng *rand.Rand, c *creature.Creature, soupSize int) {
	if !triggered(rng, e.Config.GenPerDivMut) {
		return
	}
	offset := rng.Intn(c.Daughter.Size)
	addr := (c.Daughter.Pos + offset) % soupSize
	e.soup.Write(addr, e.mutateValue(rng, e.soup.Read(addr)))
	c.Demo.Mutations++
}

// 2. Same-size crossover: overwrite the daughter's tail from a
// same-mother-size mate's tail, at a random split point.
func (e *Engine) crossoverSameSize(rng *rand.Rand, c *creature.Creature, id creature.ID, pop Population, soupSize int) {
	if !triggered(rng, e.Config.GenPerCroInsSameSize) {
		return
	}
	var candidates []creature.ID
	for _, other := range pop.Queue() {
		if other == id {
			continue
		}
		if oc := e.arena.Get(other); oc != nil && oc.Mother.Size == c.Daughter.Size {
			candidates = append(candidates, other)
		}
	}
	if len(candidates) == 0 {
		return
	}
	mate := e.arena.Get(candidates[rng.Intn(len(candidates))])
	if mate == nil {
		return
	}
	crossPoint := 1 + rng.Intn(c.Daughter.Size-1)
	for i := crossPoint; i < c.Daughter.Size; i++ {
		dAddr := (c.Daughter.Pos + i) % soupSize
		mAddr := (mate.Mother.Pos + i) % soupSize
		e.soup.Write(dAddr, e.soup.Read(mAddr))
	}
	c.Demo.Mutations++
}

// 3. Variable-size crossover: splice a random mate's tail into the
// daughter at independent split points, truncated to daughter bounds.
func (e *Engine) crossoverVariableSize(rng *rand.Rand, c *creature.Creature, id creature.ID, pop Population, soupSize int) {
	if !triggered(rng, e.Config.GenPerCroIns) {
		return
	}
	queue := pop.Queue()
	var candidates []creature.ID
	for _, other := range queue {
		if other != id {
			candidates = append(candidates, other)
		}
	}
	if len(candidates) == 0 {
		return
	}
	mate := e.arena.Get(candidates[rng.Intn(len(candidates))])
	if mate == nil || mate.Mother.Size < 2 || c.Daughter.Size < 2 {
		return
	}
	crossD := 1 + rng.Intn(c.Daughter.Size-1)
	crossM := 1 + rng.Intn(mate.Mother.Size-1)

	tailLen := mate.Mother.Size - crossM
	newSize := crossD + tailLen
	if newSize < e.Config.MinCellSize || newSize > c.Daughter.Size {
		return
	}
	writeLen := tailLen
	if c.Daughter.Size-crossD < writeLen {
		writeLen = c.Daughter.Size - crossD
	}
	for i := 0; i < writeLen; i++ {
		dAddr := (c.Daughter.Pos + crossD + i) % soupSize
		mAddr := (mate.Mother.Pos + crossM + i) % soupSize
		e.soup.Write(dAddr, e.soup.Read(mAddr))
	}
	c.Demo.Mutations++
}

// 4. Instruction insertion: shift the daughter one byte right at a
// random position and write a random opcode into the gap.
func (e *Engine) insertionInst(rng *rand.Rand, c *creature.Creature, soupSize int) {
	if !triggered(rng, e.Config.GenPerInsIns) {
		return
	}
	if c.Daughter.Size < 2 {
		return
	}
	pos := rng.Intn(c.Daughter.Size)
	addr := (c.Daughter.Pos + pos) % soupSize
	for i := c.Daughter.Size - 1; i > pos; i-- {
		src := (c.Daughter.Pos + i - 1) % soupSize
		dst := (c.Daughter.Pos + i) % soupSize
		e.soup.Write(dst, e.soup.Read(src))
	}
	e.soup.Write(addr, byte(rng.Intn(32)))
	c.Demo.Mutations++
}

// 5. Instruction deletion: shift left at a random position, filling
// the freed trailing byte with nop0.
func (e *Engine) deletionInst(rng *rand.Rand, c *creature.Creature, soupSize int) {
	if !triggered(rng, e.Config.GenPerDelIns) {
		return
	}
	if c.Daughter.Size < e.Config.MinCellSize+1 {
		return
	}
	pos := rng.Intn(c.Daughter.Size)
	for i := pos; i < c.Daughter.Size-1; i++ {
		src := (c.Daughter.Pos + i + 1) % soupSize
		dst := (c.Daughter.Pos + i) % soupSize
		e.soup.Write(dst, e.soup.Read(src))
	}
	e.soup.Write((c.Daughter.Pos+c.Daughter.Size-1)%soupSize, byte(isa.Nop0))
	c.Demo.Mutations++
}

// segment is a NOP-bounded maximal run of non-NOP instructions.
type segment struct {
	start int
	size  int
}

// findSegments returns every maximal non-NOP run within [pos, pos+size).
func (e *Engine) findSegments(pos, size, soupSize int) []segment {
	var segs []segment
	i := 0
	for i < size {
		addr := (pos + i) % soupSize
		if isa.IsNop(isa.Opcode(e.soup.Read(addr) % isa.NumOpcodes)) {
			i++
			continue
		}
		start := addr
		segLen := 0
		for i < size {
			a := (pos + i) % soupSize
			if isa.IsNop(isa.Opcode(e.soup.Read(a) % isa.NumOpcodes)) {
				break
			}
			segLen++
			i++
		}
		if segLen > 0 {
			segs = append(segs, segment{start: start, size: segLen})
		}
	}
	return segs
}

// 6. Segment crossover: copy a random mate segment into a random
// daughter segment, truncated to the daughter segment's length.
func (e *Engine) crossoverSeg(rng *rand.Rand, c *creature.Creature, id creature.ID, pop Population, soupSize int) {
	if !triggered(rng, e.Config.GenPerCroSeg) {
		return
	}
	var candidates []creature.ID
	for _, other := range pop.Queue() {
		if other != id {
			candidates = append(candidates, other)
		}
	}
	if len(candidates) == 0 {
		return
	}
	mate := e.arena.Get(candidates[rng.Intn(len(candidates))])
	if mate == nil {
		return
	}
	dSegs := e.findSegments(c.Daughter.Pos, c.Daughter.Size, soupSize)
	mSegs := e.findSegments(mate.Mother.Pos, mate.Mother.Size, soupSize)
	if len(dSegs) == 0 || len(mSegs) == 0 {
		return
	}
	dSeg := dSegs[rng.Intn(len(dSegs))]
	mSeg := mSegs[rng.Intn(len(mSegs))]
	copyLen := dSeg.size
	if mSeg.size < copyLen {
		copyLen = mSeg.size
	}
	for i := 0; i < copyLen; i++ {
		dAddr := (dSeg.start + i) % soupSize
		mAddr := (mSeg.start + i) % soupSize
		e.soup.Write(dAddr, e.soup.Read(mAddr))
	}
	c.Demo.Mutations++
}

// 7. Segment insertion: duplicate a random daughter segment into the
// daughter, shifting the tail right, truncated to fit.
func (e *Engine) insertionSeg(rng *rand.Rand, c *creature.Creature, soupSize int) {
	if !triggered(rng, e.Config.GenPerInsSeg) {
		return
	}
	segs := e.findSegments(c.Daughter.Pos, c.Daughter.Size, soupSize)
	if len(segs) == 0 {
		return
	}
	seg := segs[rng.Intn(len(segs))]
	insertAt := rng.Intn(c.Daughter.Size)
	shiftLen := seg.size
	if c.Daughter.Size-insertAt-1 < shiftLen {
		shiftLen = c.Daughter.Size - insertAt - 1
	}
	if shiftLen <= 0 {
		return
	}
	for i := c.Daughter.Size - 1; i >= insertAt+shiftLen; i-- {
		src := (c.Daughter.Pos + i - shiftLen) % soupSize
		dst := (c.Daughter.Pos + i) % soupSize
		e.soup.Write(dst, e.soup.Read(src))
	}
	for i := 0; i < shiftLen; i++ {
		src := (seg.start + i) % soupSize
		dst := (c.Daughter.Pos + insertAt + i) % soupSize
		e.soup.Write(dst, e.soup.Read(src))
	}
	c.Demo.Mutations++
}

// 8. Segment deletion: remove a random daughter segment by
// left-shifting and zeroing the tail, guarded by MinCellSize.
func (e *Engine) deletionSeg(rng *rand.Rand, c *creature.Creature, soupSize int) {
	if !triggered(rng, e.Config.GenPerDelSeg) {
		return
	}
	segs := e.findSegments(c.Daughter.Pos, c.Daughter.Size, soupSize)
	if len(segs) == 0 {
		return
	}
	seg := segs[rng.Intn(len(segs))]
	segStartOffset := (seg.start - c.Daughter.Pos + soupSize) % soupSize
	remaining := c.Daughter.Size - segStartOffset - seg.size
	if remaining <= 0 || c.Daughter.Size-seg.size < e.Config.MinCellSize {
		return
	}
	for i := 0; i < remaining; i++ {
		src := (c.Daughter.Pos + segStartOffset + seg.size + i) % soupSize
		dst := (c.Daughter.Pos + segStartOffset + i) % soupSize
		e.soup.Write(dst, e.soup.Read(src))
	}
	for i := 0; i < seg.size; i++ {
		addr := (c.Daughter.Pos + c.Daughter.Size - seg.size + i) % soupSize
		e.soup.Write(addr, byte(isa.Nop0))
	}
	c.Demo.Mutations++
}
