package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPushPopRing(t *testing.T) {
	var c CPU
	for i := int32(0); i < StackSize; i++ {
		c.Push(i)
	}
	// Stack is full; one more push overwrites the oldest (value 0, in slot 1).
	c.Push(99)
	assert.Equal(t, int32(99), c.Pop())
	assert.Equal(t, int32(9), c.Pop())
}

func TestPopWrapsBackward(t *testing.T) {
	var c CPU
	c.Push(1)
	c.Push(2)
	assert.Equal(t, int32(2), c.Pop())
	assert.Equal(t, int32(1), c.Pop())
	// A third pop from SP=0 wraps below zero back to StackSize-1.
	c.Pop()
	assert.Equal(t, StackSize-1, c.SP)
}

func TestSetFlags(t *testing.T) {
	var c CPU
	c.FlagE = true
	c.SetFlags(0)
	assert.True(t, c.FlagZ)
	assert.False(t, c.FlagS)
	assert.False(t, c.FlagE)

	c.SetFlags(-5)
	assert.False(t, c.FlagZ)
	assert.True(t, c.FlagS)
}

func TestRegAccessors(t *testing.T) {
	var c CPU
	c.SetReg('A', 7)
	c.SetReg('C', -3)
	assert.Equal(t, int32(7), c.Reg('A'))
	assert.Equal(t, int32(-3), c.Reg('C'))
	assert.Equal(t, int32(0), c.Reg('D'))
}

func TestCopyFrom(t *testing.T) {
	var src CPU
	src.A, src.B, src.C, src.D = 1, 2, 3, 4
	src.Push(42)
	src.FlagS = true

	var dst CPU
	dst.IP = 100
	dst.CopyFrom(&src)

	assert.Equal(t, int32(1), dst.A)
	assert.Equal(t, int32(42), dst.Pop())
	assert.True(t, dst.FlagS)
	assert.Equal(t, 100, dst.IP, "IP must not be copied")
}
