package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tierra-vm/tierra/internal/creature"
)

func TestSubscribeAndEmit(t *testing.T) {
	b := New(0, 0)
	var got []Event
	b.Subscribe(CellBorn, func(e Event) { got = append(got, e) })
	b.Emit(Event{Type: CellBorn, CellID: creature.ID(7)})
	assert.Len(t, got, 1)
	assert.Equal(t, creature.ID(7), got[0].CellID)
}

func TestDisableSuppressesDispatch(t *testing.T) {
	b := New(0, 0)
	calls := 0
	b.Subscribe(Milestone, func(e Event) { calls++ })
	b.Disable()
	b.Emit(Event{Type: Milestone})
	assert.Equal(t, 0, calls)
	b.Enable()
	b.Emit(Event{Type: Milestone})
	assert.Equal(t, 1, calls)
}

func TestClearRemovesSubscribers(t *testing.T) {
	b := New(0, 0)
	calls := 0
	b.Subscribe(NewGenotype, func(e Event) { calls++ })
	b.Clear()
	b.Emit(Event{Type: NewGenotype})
	assert.Equal(t, 0, calls)
}

func TestCellDiedAndMutationHelpers(t *testing.T) {
	b := New(0, 0)
	var causes []string
	var kinds []string
	b.Subscribe(CellDied, func(e Event) { causes = append(causes, e.Cause) })
	b.Subscribe(Mutation, func(e Event) { kinds = append(kinds, e.Kind) })

	b.CellDied(creature.ID(1), "lazy")
	b.Mutation(42, "background")

	assert.Equal(t, []string{"lazy"}, causes)
	assert.Equal(t, []string{"background"}, kinds)
}

func TestRateLimitingDropsExcessEmits(t *testing.T) {
	b := New(1, 1)
	calls := 0
	b.Subscribe(Milestone, func(e Event) { calls++ })
	for i := 0; i < 10; i++ {
		b.Emit(Event{Type: Milestone})
	}
	assert.Less(t, calls, 10)
}
