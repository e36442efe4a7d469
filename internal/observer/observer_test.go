package observer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierra-vm/tierra/internal/config"
	"github.com/tierra-vm/tierra/internal/sim"
)

func newTestController(t *testing.T) (*Controller, *sim.Simulation, string) {
	t.Helper()
	cfg := config.Default()
	cfg.SoupSize = 1000
	cfg.Seed = 1
	s := sim.New(cfg)
	dir := t.TempDir()
	return New(s), s, dir
}

func TestInjectGenomeAndGetCell(t *testing.T) {
	ctl, _, _ := newTestController(t)
	code := make([]byte, 40)

	ok := ctl.InjectGenome(code, 100)
	require.True(t, ok)

	cells := ctl.GetAllCells()
	require.Len(t, cells, 1)
	assert.Equal(t, 100, cells[0].Pos)
	assert.Equal(t, 40, cells[0].Size)
	assert.Equal(t, "injected", cells[0].ParentGenotype)

	snap, found := ctl.GetCell(cells[0].CellID)
	require.True(t, found)
	assert.Equal(t, cells[0].Pos, snap.Pos)
}

func TestGetCellAtResolvesOwner(t *testing.T) {
	ctl, _, _ := newTestController(t)
	code := make([]byte, 40)
	require.True(t, ctl.InjectGenome(code, 100))

	snap, found := ctl.GetCellAt(120)
	require.True(t, found)
	assert.Equal(t, 100, snap.Pos)

	_, found = ctl.GetCellAt(500)
	assert.False(t, found)
}

func TestReadSoupReturnsWrittenBytes(t *testing.T) {
	ctl, _, _ := newTestController(t)
	code := []byte{1, 2, 3, 4, 5}
	require.True(t, ctl.InjectGenome(code, 0))

	got := ctl.ReadSoup(0, len(code))
	assert.Equal(t, code, got)
}

func TestGetAllGenotypesOnlyIncludesLivingPopulation(t *testing.T) {
	ctl, _, _ := newTestController(t)
	require.True(t, ctl.InjectGenome(make([]byte, 20), 0))

	gts := ctl.GetAllGenotypes()
	require.Len(t, gts, 1)
	assert.Equal(t, 1, gts[0].Population)
}

func TestStepAdvancesInstructionCount(t *testing.T) {
	ctl, s, _ := newTestController(t)
	require.True(t, ctl.InjectGenome(make([]byte, 20), 0))

	before := s.InstExecuted
	ctl.Step(3)
	assert.Greater(t, ctl.InstExecuted(), before)
}

func TestStartStopRunsInBackground(t *testing.T) {
	ctl, _, _ := newTestController(t)
	require.True(t, ctl.InjectGenome(make([]byte, 20), 0))
	ctl.SetSpeed(5)

	var ticks int
	ctl.OnTick(func() { ticks++ })

	ctl.Start()
	assert.True(t, ctl.IsRunning())
	time.Sleep(20 * time.Millisecond)
	ctl.Stop()

	assert.False(t, ctl.IsRunning())
	assert.Greater(t, ticks, 0)
}

func TestUpdateConfigAppliesBetweenBatches(t *testing.T) {
	ctl, s, _ := newTestController(t)
	ctl.UpdateConfig(func(c *config.Config) { c.DistProp = 0.5 })
	assert.Equal(t, 0.5, s.Config.DistProp)
}
