// Package telemetry implements the time-series data collection spec.md
// describes only as an observer interface: population size, mean
// creature size, max fitness, genotype count, soup fullness, and
// instructions/second, each as a ring-buffered series, plus
// point-in-time size-histogram and genotype-frequency snapshots. It
// consumes a running simulation exclusively through the same
// snapshot-safe boundary the observer controller uses.
package telemetry

import (
	"time"

	"github.com/tierra-vm/tierra/internal/sim"
)

// DataPoint is one (instruction count, value) sample.
type DataPoint struct {
	Inst  int64
	Value float64
}

// TimeSeriesLog is a fixed-capacity ring buffer of DataPoints; once
// full, each Record evicts the oldest entry.
type TimeSeriesLog struct {
	capacity int
	data     []DataPoint
	start    int
}

// NewTimeSeriesLog returns an empty log holding up to capacity points.
func NewTimeSeriesLog(capacity int) *TimeSeriesLog {
	if capacity < 1 {
		capacity = 1
	}
	return &TimeSeriesLog{capacity: capacity, data: make([]DataPoint, 0, capacity)}
}

// Record appends a sample, evicting the oldest entry if at capacity.
func (l *TimeSeriesLog) Record(inst int64, value float64) {
	if len(l.data) < l.capacity {
		l.data = append(l.data, DataPoint{Inst: inst, Value: value})
		return
	}
	l.data[l.start] = DataPoint{Inst: inst, Value: value}
	l.start = (l.start + 1) % l.capacity
}

// Values returns the recorded values in chronological order.
func (l *TimeSeriesLog) Values() []float64 {
	out := make([]float64, 0, len(l.data))
	for _, p := range l.ordered() {
		out = append(out, p.Value)
	}
	return out
}

// Times returns the recorded instruction counts in chronological order.
func (l *TimeSeriesLog) Times() []int64 {
	out := make([]int64, 0, len(l.data))
	for _, p := range l.ordered() {
		out = append(out, p.Inst)
	}
	return out
}

// Last returns the most recently recorded point, if any.
func (l *TimeSeriesLog) Last() (DataPoint, bool) {
	if len(l.data) == 0 {
		return DataPoint{}, false
	}
	idx := (l.start - 1 + len(l.data)) % len(l.data)
	if len(l.data) < l.capacity {
		idx = len(l.data) - 1
	}
	return l.data[idx], true
}

// Clear empties the log.
func (l *TimeSeriesLog) Clear() {
	l.data = l.data[:0]
	l.start = 0
}

// Len returns the number of points currently stored.
func (l *TimeSeriesLog) Len() int { return len(l.data) }

func (l *TimeSeriesLog) ordered() []DataPoint {
	if len(l.data) < l.capacity {
		return l.data
	}
	out := make([]DataPoint, 0, len(l.data))
	out = append(out, l.data[l.start:]...)
	out = append(out, l.data[:l.start]...)
	return out
}

// Collector samples a simulation's live statistics into the six
// built-in series on a fixed instruction cadence, and keeps the two
// point-in-time snapshot maps current as of the last sample.
type Collector struct {
	SampleInterval int64

	PopulationSize         *TimeSeriesLog
	MeanCreatureSize       *TimeSeriesLog
	MaxFitness             *TimeSeriesLog
	NumGenotypes           *TimeSeriesLog
	SoupFullness           *TimeSeriesLog
	InstructionsPerSecond  *TimeSeriesLog

	SizeHistogram     map[int]int
	GenotypeFrequency map[string]int

	lastSampleInst int64
	lastSpeedInst  int64
	lastSpeedTime  time.Time
}

// NewCollector returns a Collector sampling every sampleInterval
// instructions, with each series holding up to capacity points.
func NewCollector(sampleInterval int64, capacity int) *Collector {
	return &Collector{
		SampleInterval:        sampleInterval,
		PopulationSize:        NewTimeSeriesLog(capacity),
		MeanCreatureSize:      NewTimeSeriesLog(capacity),
		MaxFitness:            NewTimeSeriesLog(capacity),
		NumGenotypes:          NewTimeSeriesLog(capacity),
		SoupFullness:          NewTimeSeriesLog(capacity),
		InstructionsPerSecond: NewTimeSeriesLog(capacity),
		SizeHistogram:         make(map[int]int),
		GenotypeFrequency:     make(map[string]int),
	}
}

// ShouldSample reports whether enough instructions have elapsed since
// the last sample to warrant another one.
func (c *Collector) ShouldSample(instExecuted int64) bool {
	return instExecuted-c.lastSampleInst >= c.SampleInterval
}

// Sample collects every series and snapshot from s's current state.
func (c *Collector) Sample(s *sim.Simulation) {
	t := s.InstExecuted
	c.lastSampleInst = t

	numCells := s.Scheduler.NumCreatures()
	c.PopulationSize.Record(t, float64(numCells))

	queue := s.Scheduler.Queue()
	if numCells > 0 {
		total := 0
		maxFec := 0
		hist := make(map[int]int, numCells)
		for _, id := range queue {
			cell := s.Arena.Get(id)
			if cell == nil {
				continue
			}
			total += cell.Mother.Size
			if cell.Demo.Fecundity > maxFec {
				maxFec = cell.Demo.Fecundity
			}
			hist[cell.Mother.Size]++
		}
		c.MeanCreatureSize.Record(t, float64(total)/float64(numCells))
		c.MaxFitness.Record(t, float64(maxFec))
		c.SizeHistogram = hist
	} else {
		c.MeanCreatureSize.Record(t, 0)
		c.MaxFitness.Record(t, 0)
		c.SizeHistogram = map[int]int{}
	}

	c.NumGenotypes.Record(t, float64(s.Genebank.NumGenotypes()))

	fullness := 100.0 * (1.0 - float64(s.Soup.TotalFree())/float64(s.Soup.Size))
	c.SoupFullness.Record(t, fullness)

	now := time.Now()
	if !c.lastSpeedTime.IsZero() {
		dt := now.Sub(c.lastSpeedTime).Seconds()
		if dt > 0 {
			speed := float64(t-c.lastSpeedInst) / dt
			c.InstructionsPerSecond.Record(t, speed)
		}
	}
	c.lastSpeedInst = t
	c.lastSpeedTime = now

	c.GenotypeFrequency = s.Genebank.Summary()
}

// AllSeries returns every built-in series keyed by name, for callers
// that want to iterate without naming each field.
func (c *Collector) AllSeries() map[string]*TimeSeriesLog {
	return map[string]*TimeSeriesLog{
		"population_size":          c.PopulationSize,
		"mean_creature_size":       c.MeanCreatureSize,
		"max_fitness":              c.MaxFitness,
		"num_genotypes":            c.NumGenotypes,
		"soup_fullness":            c.SoupFullness,
		"instructions_per_second":  c.InstructionsPerSecond,
	}
}
