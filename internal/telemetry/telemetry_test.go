package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tierra-vm/tierra/internal/config"
	"github.com/tierra-vm/tierra/internal/creature"
	"github.com/tierra-vm/tierra/internal/sim"
)

func TestTimeSeriesLogEvictsOldestPastCapacity(t *testing.T) {
	l := NewTimeSeriesLog(3)
	l.Record(1, 10)
	l.Record(2, 20)
	l.Record(3, 30)
	l.Record(4, 40)

	assert.Equal(t, []float64{20, 30, 40}, l.Values())
	assert.Equal(t, []int64{2, 3, 4}, l.Times())

	last, ok := l.Last()
	require.True(t, ok)
	assert.Equal(t, int64(4), last.Inst)
}

func TestTimeSeriesLogLastOnEmpty(t *testing.T) {
	l := NewTimeSeriesLog(5)
	_, ok := l.Last()
	assert.False(t, ok)
}

func TestTimeSeriesLogClear(t *testing.T) {
	l := NewTimeSeriesLog(5)
	l.Record(1, 1)
	l.Clear()
	assert.Equal(t, 0, l.Len())
}

func newTestSim(t *testing.T) *sim.Simulation {
	t.Helper()
	cfg := config.Default()
	cfg.SoupSize = 1000
	cfg.Seed = 1
	return sim.New(cfg)
}

func TestSamplePopulatesSeriesAndSnapshots(t *testing.T) {
	s := newTestSim(t)
	require.True(t, s.Soup.AllocateAt(0, 40))
	id := s.Arena.New(creature.MemRegion{Pos: 0, Size: 40})
	s.Scheduler.Add(id)
	s.Soup.AddOwner(id, 0, 40)
	s.Reaper.Add(id)
	s.Genebank.Register(id, 0)

	c := NewCollector(100, 50)
	require.True(t, c.ShouldSample(0))
	c.Sample(s)

	pv := c.PopulationSize.Values()
	require.Len(t, pv, 1)
	assert.Equal(t, 1.0, pv[0])

	msv := c.MeanCreatureSize.Values()
	require.Len(t, msv, 1)
	assert.Equal(t, 40.0, msv[0])

	assert.Equal(t, 1, c.SizeHistogram[40])
	assert.Len(t, c.GenotypeFrequency, 1)
}

func TestSampleEmptyPopulationRecordsZeros(t *testing.T) {
	s := newTestSim(t)
	c := NewCollector(100, 50)
	c.Sample(s)

	assert.Equal(t, []float64{0}, c.PopulationSize.Values())
	assert.Equal(t, []float64{0}, c.MeanCreatureSize.Values())
	assert.Equal(t, []float64{0}, c.MaxFitness.Values())
}
