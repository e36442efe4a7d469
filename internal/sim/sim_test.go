package sim

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierra-vm/tierra/internal/config"
	"github.com/tierra-vm/tierra/internal/creature"
	"github.com/tierra-vm/tierra/internal/genome"
	"github.com/tierra-vm/tierra/internal/isa"
)

func newTestSim(t *testing.T, soupSize int) *Simulation {
	t.Helper()
	cfg := config.Default()
	cfg.SoupSize = soupSize
	cfg.Seed = 1
	cfg.MinCellSize = 4
	cfg.MovPropThrDiv = 0.5
	return New(cfg)
}

func writeAncestor(t *testing.T, dir string, code []byte) string {
	t.Helper()
	path := filepath.Join(dir, "ancestor.tie")
	require.NoError(t, genome.Save(path, code, "0080aaa", "0666god"))
	return path
}

func TestBootPlacesAncestorAtCenterAndRegisters(t *testing.T) {
	s := newTestSim(t, 1000)
	dir := t.TempDir()
	code := make([]byte, 80)
	path := writeAncestor(t, dir, code)

	require.NoError(t, s.Boot(path))

	assert.Equal(t, 1, s.Scheduler.NumCreatures())
	assert.Equal(t, 1, s.Genebank.NumGenotypes())
	id := s.Scheduler.Current()
	c := s.Arena.Get(id)
	require.NotNil(t, c)
	wantPos := 1000/2 - 80/2
	assert.Equal(t, wantPos, c.Mother.Pos)
	assert.Equal(t, wantPos, c.CPU.IP)
	assert.Equal(t, "0666god", c.Demo.ParentGenotype)
}

func TestProtectionDenialSetsErrorAndAdvancesIP(t *testing.T) {
	s := newTestSim(t, 200)
	id := s.Arena.New(creature.MemRegion{Pos: 0, Size: 20})
	c := s.Arena.Get(id)
	c.CPU.IP = 0
	s.Scheduler.Add(id)
	s.Soup.ModeOther = 1 // execute bit denied for non-owners
	s.Soup.AddOwner(creature.ID(99), 0, 20)

	s.RunSlice(id)

	assert.True(t, c.CPU.FlagE)
	assert.Greater(t, c.CPU.IP, 0)
}

func TestArithmeticOpcodeIncA(t *testing.T) {
	s := newTestSim(t, 200)
	id := s.Arena.New(creature.MemRegion{Pos: 0, Size: 20})
	c := s.Arena.Get(id)
	c.CPU.IP = 0
	c.CPU.A = 5
	s.Soup.Write(0, byte(isa.IncA))
	s.Scheduler.Add(id)

	s.dispatch(isa.IncA, id, c)

	assert.Equal(t, int32(6), c.CPU.A)
	assert.False(t, c.CPU.FlagZ)
}

func TestIfzSkipsNextWhenCNonZero(t *testing.T) {
	s := newTestSim(t, 200)
	id := s.Arena.New(creature.MemRegion{Pos: 0, Size: 20})
	c := s.Arena.Get(id)
	c.CPU.IP = 10
	c.CPU.C = 1

	s.dispatch(isa.Ifz, id, c)

	assert.True(t, c.CPU.IPModified)
	assert.Equal(t, 12, c.CPU.IP)
}

func TestAdrfFindsComplementForward(t *testing.T) {
	s := newTestSim(t, 200)
	id := s.Arena.New(creature.MemRegion{Pos: 0, Size: 50})
	c := s.Arena.Get(id)
	c.CPU.IP = 10

	// template nop0 nop1 at 11,12 (ended by a non-nop at 13, since the
	// zeroed soup is nop0 everywhere); complement nop1 nop0 at 20,21
	s.Soup.Write(11, byte(isa.Nop0))
	s.Soup.Write(12, byte(isa.Nop1))
	s.Soup.Write(13, byte(isa.IncA))
	s.Soup.Write(20, byte(isa.Nop1))
	s.Soup.Write(21, byte(isa.Nop0))

	s.dispatch(isa.Adrf, id, c)

	assert.False(t, c.CPU.FlagE)
	assert.Equal(t, int32(22), c.CPU.A)
	assert.Equal(t, int32(2), c.CPU.C)
}

func TestMalAllocatesDaughterAndDivideCreatesOffspring(t *testing.T) {
	s := newTestSim(t, 1000)
	id := s.Arena.New(creature.MemRegion{Pos: 0, Size: 40})
	c := s.Arena.Get(id)
	require.True(t, s.Soup.AllocateAt(0, 40))
	s.Soup.AddOwner(id, 0, 40)
	s.Scheduler.Add(id)
	s.Reaper.Add(id)
	s.Genebank.Register(id, 0)

	c.CPU.C = 40
	s.dispatch(isa.Mal, id, c)
	require.False(t, c.CPU.FlagE)
	require.NotNil(t, c.Daughter)
	assert.Equal(t, 40, c.Daughter.Size)

	c.Demo.MovDaught = 40 // satisfy mov_prop_thr_div precondition
	s.dispatch(isa.Divide, id, c)

	require.False(t, c.CPU.FlagE)
	assert.Nil(t, c.Daughter)
	assert.Equal(t, 1, c.Demo.Fecundity)
	assert.Equal(t, 2, s.Scheduler.NumCreatures())
	// The daughter's bytes are the same as the mother's, so both belong
	// to one genotype.
	assert.Equal(t, 1, s.Genebank.NumGenotypes())
}

func TestMoviiCopiesIntoDaughterWithinProtection(t *testing.T) {
	s := newTestSim(t, 1000)
	id := s.Arena.New(creature.MemRegion{Pos: 0, Size: 40})
	c := s.Arena.Get(id)
	require.True(t, s.Soup.AllocateAt(0, 40))
	s.Soup.AddOwner(id, 0, 40)

	c.CPU.C = 40
	s.dispatch(isa.Mal, id, c)
	require.NotNil(t, c.Daughter)

	s.Soup.Write(0, byte(isa.IncA))
	c.CPU.A = int32(c.Daughter.Pos)
	c.CPU.B = 0

	s.dispatch(isa.Movii, id, c)

	assert.False(t, c.CPU.FlagE)
	assert.Equal(t, byte(isa.IncA), s.Soup.Read(c.Daughter.Pos))
	assert.Equal(t, 1, c.Demo.MovDaught)
}
