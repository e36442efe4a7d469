package soup

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierra-vm/tierra/internal/creature"
)

func TestAllocatorBetterFitScenario(t *testing.T) {
	s := New(1000)
	require.True(t, s.AllocateAt(100, 80))
	require.True(t, s.AllocateAt(200, 700))

	rng := rand.New(rand.NewSource(1))
	pos, ok := s.Allocate(15, BetterFit, rng, 0, -1)
	require.True(t, ok)
	assert.Equal(t, 180, pos)
}

func TestDeallocateMergingScenario(t *testing.T) {
	s := New(1000)
	require.True(t, s.AllocateAt(100, 80))
	require.True(t, s.AllocateAt(200, 80))

	s.Deallocate(100, 80)
	assert.Equal(t, 1000-80, s.TotalFree())

	rng := rand.New(rand.NewSource(1))
	pos, ok := s.Allocate(200, FirstFit, rng, 0, -1)
	require.True(t, ok)
	assert.LessOrEqual(t, pos, 100)
}

func TestProtectionScenario(t *testing.T) {
	s := New(1000)
	s.ModeOther = ProtWrite

	selfID := creature.ID(1)
	otherID := creature.ID(2)
	s.AddOwner(selfID, 100, 80)
	s.AddOwner(otherID, 200, 10)

	assert.False(t, s.Check(200, selfID, AccessWrite), "must not write another creature's memory")
	assert.True(t, s.Check(150, selfID, AccessWrite), "must write its own memory")
	assert.True(t, s.Check(200, selfID, AccessRead), "read is unaffected by write protection")
}

func TestAllocateDeallocateRoundTrip(t *testing.T) {
	s := New(500)
	before := s.TotalFree()
	rng := rand.New(rand.NewSource(7))
	pos, ok := s.Allocate(40, FirstFit, rng, 0, -1)
	require.True(t, ok)
	s.Deallocate(pos, 40)
	assert.Equal(t, before, s.TotalFree())
	assert.Equal(t, 1, s.FreeBlockCount())
}

func TestReadWriteBlockWrap(t *testing.T) {
	s := New(10)
	data := []byte{1, 2, 3, 4, 5}
	s.WriteBlock(8, data)
	got := s.ReadBlock(8, 5)
	assert.Equal(t, data, got)
}

func TestOwnerAtBinarySearch(t *testing.T) {
	s := New(1000)
	idA := creature.ID(1)
	idB := creature.ID(2)
	s.AddOwner(idA, 10, 20)
	s.AddOwner(idB, 100, 5)

	owner, ok := s.OwnerAt(15)
	require.True(t, ok)
	assert.Equal(t, idA, owner)

	_, ok = s.OwnerAt(50)
	assert.False(t, ok)
}

func TestNoProtectionFastPath(t *testing.T) {
	s := New(100)
	assert.True(t, s.Check(0, creature.ID(1), AccessWrite))
}
