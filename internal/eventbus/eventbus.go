// Package eventbus is a synchronous observer-pattern dispatcher for
// simulation events. A Bus can optionally be rate limited so a runaway
// burst of callbacks (e.g. a MUTATION storm) cannot stall the run loop
// that emits them; a Bus built with a rate of 0 does no limiting.
package eventbus

import (
	"sync"
	"time"

	"github.com/yasserelgammal/rate-limiter/limiter"
	"github.com/yasserelgammal/rate-limiter/store"

	"github.com/tierra-vm/tierra/internal/creature"
)

// Event type names. Handlers switch on these; the bus itself never
// interprets them.
const (
	CellBorn        = "CELL_BORN"
	CellDied        = "CELL_DIED"
	NewGenotype     = "NEW_GENOTYPE"
	GenotypeExtinct = "GENOTYPE_EXTINCT"
	Mutation        = "MUTATION"
	Milestone       = "MILESTONE"
)

// Event carries whatever fields are relevant for its Type; unused
// fields are zero.
type Event struct {
	Type      string
	CellID    creature.ID
	Cause     string
	Genotype  string
	Parent    string
	Addr      int
	Kind      string
	InstCount int64
}

// Callback receives an emitted Event.
type Callback func(Event)

// Bus is a synchronous pub-sub dispatcher. Subscribers run inline on
// the emitting goroutine in subscription order.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Callback
	enabled     bool

	rlMu    sync.Mutex
	limiter *limiter.TokenBucket
	store   store.Store
}

// New builds a Bus whose emit rate is capped at ratePerSecond events
// per second with the given burst allowance. A ratePerSecond of 0
// disables rate limiting entirely.
func New(ratePerSecond, burst int) *Bus {
	b := &Bus{
		subscribers: make(map[string][]Callback),
		enabled:     true,
	}
	if ratePerSecond <= 0 {
		return b
	}
	b.store = store.NewMemoryStore(time.Minute)
	b.limiter, _ = limiter.NewTokenBucket(
		limiter.Config{
			Rate:     int64(ratePerSecond),
			Duration: time.Second,
			Burst:    int64(burst),
		},
		b.store,
	)
	return b
}

// Subscribe registers cb for eventType.
func (b *Bus) Subscribe(eventType string, cb Callback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], cb)
}

// Emit fires ev to every subscriber of ev.Type, in registration
// order, unless the bus is disabled or the rate limiter rejects it.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	enabled := b.enabled
	cbs := b.subscribers[ev.Type]
	b.mu.RUnlock()
	if !enabled {
		return
	}
	if !b.allow(ev.Type) {
		return
	}
	for _, cb := range cbs {
		cb(ev)
	}
}

func (b *Bus) allow(key string) bool {
	if b.limiter == nil {
		return true
	}
	b.rlMu.Lock()
	defer b.rlMu.Unlock()
	return b.limiter.Allow(key)
}

// Enable turns dispatch back on.
func (b *Bus) Enable() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = true
}

// Disable suppresses all dispatch until Enable is called.
func (b *Bus) Disable() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = false
}

// Clear removes every subscriber.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[string][]Callback)
}

// Enabled reports whether dispatch is currently active.
func (b *Bus) Enabled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.enabled
}

// CellDied satisfies the reaper.EventSink interface.
func (b *Bus) CellDied(id creature.ID, cause string) {
	b.Emit(Event{Type: CellDied, CellID: id, Cause: cause})
}

// Mutation satisfies the mutation.Events interface.
func (b *Bus) Mutation(addr int, kind string) {
	b.Emit(Event{Type: Mutation, Addr: addr, Kind: kind})
}
