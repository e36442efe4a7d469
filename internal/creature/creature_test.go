package creature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaAllocateAndRelease(t *testing.T) {
	a := NewArena(4)
	id1 := a.New(MemRegion{Pos: 0, Size: 10})
	id2 := a.New(MemRegion{Pos: 10, Size: 20})
	require.NotEqual(t, id1, id2)
	assert.Equal(t, 2, a.Live())

	a.Release(id1)
	assert.Equal(t, 1, a.Live())
	assert.Nil(t, a.Get(id1))

	id3 := a.New(MemRegion{Pos: 99, Size: 1})
	assert.Equal(t, id1, id3, "released slot should be recycled")
	assert.Equal(t, 2, a.Live())
}

func TestMemRegionContainsWrap(t *testing.T) {
	m := MemRegion{Pos: 95, Size: 10} // wraps at soupSize=100: [95,100) + [0,5)
	assert.True(t, m.Contains(98, 100))
	assert.True(t, m.Contains(3, 100))
	assert.False(t, m.Contains(50, 100))
}

func TestOwnsMotherAndDaughter(t *testing.T) {
	c := &Creature{Mother: MemRegion{Pos: 10, Size: 5}}
	assert.True(t, c.OwnsMother(12, 100))
	assert.False(t, c.OwnsDaughter(12, 100))

	d := MemRegion{Pos: 50, Size: 5}
	c.Daughter = &d
	assert.True(t, c.OwnsDaughter(52, 100))
	assert.False(t, c.OwnsDaughter(12, 100))
}
