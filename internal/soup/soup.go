// Package soup implements the shared byte-addressable memory all
// creatures live in: wraparound addressing, a free-list allocator with
// several placement policies, an owner index resolved by binary
// search, and the memory-protection predicate used by every opcode
// that touches memory.
package soup

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/tierra-vm/tierra/internal/creature"
)

// Protection bit flags, combined into the three configured masks.
const (
	ProtExecute = 1
	ProtWrite   = 2
	ProtRead    = 4
)

// AllocMode selects the free-block placement policy for Allocate.
type AllocMode int

const (
	FirstFit AllocMode = iota
	BetterFit
	Random
	Near
)

// block is a free or owned interval, stored as [Pos, Pos+Size).
type block struct {
	Pos  int
	Size int
}

type ownerEntry struct {
	Pos   int
	Size  int
	Owner creature.ID
}

// Soup is the fixed-size, wraparound byte array. All positional
// arithmetic is modulo Size; Soup never reasons about what the bytes
// mean beyond the low 5 bits used as an opcode.
type Soup struct {
	Size int
	data []byte

	free   []block
	owners []ownerEntry

	// ModeFree/ModeMine/ModeOther are the three configured protection
	// masks (§4.2). All-zero disables protection checks entirely.
	ModeFree  int
	ModeMine  int
	ModeOther int
}

// New allocates a soup of the given size, all bytes zero (nop0).
func New(size int) *Soup {
	return &Soup{
		Size: size,
		data: make([]byte, size),
		free: []block{{Pos: 0, Size: size}},
	}
}

func (s *Soup) wrap(a int) int {
	a %= s.Size
	if a < 0 {
		a += s.Size
	}
	return a
}

// Read returns the byte at addr mod Size.
func (s *Soup) Read(addr int) byte {
	return s.data[s.wrap(addr)]
}

// Write stores value at addr mod Size.
func (s *Soup) Write(addr int, value byte) {
	s.data[s.wrap(addr)] = value
}

// ReadBlock copies count bytes starting at addr, splitting at the
// wrap seam when the run crosses the end of the array.
func (s *Soup) ReadBlock(addr, count int) []byte {
	addr = s.wrap(addr)
	out := make([]byte, count)
	if addr+count <= s.Size {
		copy(out, s.data[addr:addr+count])
		return out
	}
	first := s.Size - addr
	copy(out, s.data[addr:])
	copy(out[first:], s.data[:count-first])
	return out
}

// WriteBlock writes data starting at addr, splitting at the wrap seam
// as ReadBlock does. It is the bit-exact inverse of ReadBlock.
func (s *Soup) WriteBlock(addr int, data []byte) {
	addr = s.wrap(addr)
	if addr+len(data) <= s.Size {
		copy(s.data[addr:], data)
		return
	}
	first := s.Size - addr
	copy(s.data[addr:], data[:first])
	copy(s.data[:len(data)-first], data[first:])
}

// AccessKind distinguishes which of the three protection masks
// governs a given touch.
type AccessKind int

const (
	AccessRead AccessKind = ProtRead
	AccessWrite AccessKind = ProtWrite
	AccessExecute AccessKind = ProtExecute
)

// Check reports whether owner `by` may perform `kind` access at addr.
// If all three masks are zero the check is bypassed as a fast path.
func (s *Soup) Check(addr int, by creature.ID, kind AccessKind) bool {
	if s.ModeFree == 0 && s.ModeMine == 0 && s.ModeOther == 0 {
		return true
	}
	owner, ok := s.OwnerAt(addr)
	var mask int
	switch {
	case !ok:
		mask = s.ModeFree
	case owner == by:
		mask = s.ModeMine
	default:
		mask = s.ModeOther
	}
	return mask&int(kind) == 0
}

// distance returns the wrap-aware distance between two addresses.
func (s *Soup) distance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if alt := s.Size - d; alt < d {
		return alt
	}
	return d
}

// Allocate finds a free interval of at least size bytes per mode,
// splits it, and returns the allocated position. ok is false if no
// interval satisfies the request (including a Near search that
// exceeds tolerance, when tolerance >= 0).
//
// rng supplies the single draw consumed by Random mode, preserving
// the simulation-wide deterministic draw order.
func (s *Soup) Allocate(size int, mode AllocMode, rng *rand.Rand, hint, tolerance int) (pos int, ok bool) {
	if len(s.free) == 0 {
		return 0, false
	}

	idx := -1
	switch mode {
	case FirstFit:
		for i, b := range s.free {
			if b.Size >= size {
				idx = i
				break
			}
		}
	case BetterFit:
		bestSize := -1
		for i, b := range s.free {
			if b.Size >= size && (bestSize == -1 || b.Size < bestSize) {
				bestSize = b.Size
				idx = i
			}
		}
	case Random:
		var adequate []int
		for i, b := range s.free {
			if b.Size >= size {
				adequate = append(adequate, i)
			}
		}
		if len(adequate) > 0 {
			idx = adequate[rng.Intn(len(adequate))]
		}
	case Near:
		bestDist := -1
		for i, b := range s.free {
			if b.Size < size {
				continue
			}
			d := s.distance(b.Pos, hint)
			if bestDist == -1 || d < bestDist {
				bestDist = d
				idx = i
			}
		}
		if idx != -1 && tolerance >= 0 && bestDist > tolerance {
			idx = -1
		}
	default:
		return s.Allocate(size, BetterFit, rng, hint, tolerance)
	}

	if idx == -1 {
		return 0, false
	}

	b := s.free[idx]
	if b.Size == size {
		s.free = append(s.free[:idx], s.free[idx+1:]...)
	} else {
		s.free[idx] = block{Pos: b.Pos + size, Size: b.Size - size}
	}
	return b.Pos, true
}

// AllocateAt carves out exactly [pos, pos+size) from whichever free
// interval covers it, splitting off up to two remainder blocks. Used
// only at boot/injection time; fails if no single free interval
// covers the whole request.
func (s *Soup) AllocateAt(pos, size int) bool {
	pos = s.wrap(pos)
	for i, b := range s.free {
		if b.Pos <= pos && b.Pos+b.Size >= pos+size {
			rest := s.free[:i:i]
			if b.Pos < pos {
				rest = append(rest, block{Pos: b.Pos, Size: pos - b.Pos})
			}
			remStart := pos + size
			remSize := (b.Pos + b.Size) - remStart
			if remSize > 0 {
				rest = append(rest, block{Pos: remStart, Size: remSize})
			}
			rest = append(rest, s.free[i+1:]...)
			s.free = rest
			return true
		}
	}
	return false
}

// Deallocate returns [pos, pos+size) to the free list at its sorted
// position, merging with an adjacent predecessor and/or successor.
// Panics if the returned interval overlaps an existing free interval
// (free-list overlap / double-free), an implementation bug per
// spec.md's invariant-violation list, not a creature-level error.
func (s *Soup) Deallocate(pos, size int) {
	pos = s.wrap(pos)
	insertAt := sort.Search(len(s.free), func(i int) bool { return s.free[i].Pos >= pos })

	if insertAt > 0 {
		if prev := s.free[insertAt-1]; prev.Pos+prev.Size > pos {
			panic(fmt.Sprintf("soup: free-list overlap deallocating [%d,%d) over existing free block [%d,%d)", pos, pos+size, prev.Pos, prev.Pos+prev.Size))
		}
	}
	if insertAt < len(s.free) {
		if next := s.free[insertAt]; pos+size > next.Pos {
			panic(fmt.Sprintf("soup: free-list overlap deallocating [%d,%d) over existing free block [%d,%d)", pos, pos+size, next.Pos, next.Pos+next.Size))
		}
	}

	merged := block{Pos: pos, Size: size}
	s.free = append(s.free, block{})
	copy(s.free[insertAt+1:], s.free[insertAt:])
	s.free[insertAt] = merged

	if insertAt+1 < len(s.free) {
		nxt := s.free[insertAt+1]
		if s.free[insertAt].Pos+s.free[insertAt].Size == nxt.Pos {
			s.free[insertAt].Size += nxt.Size
			s.free = append(s.free[:insertAt+1], s.free[insertAt+2:]...)
		}
	}
	if insertAt > 0 {
		prev := s.free[insertAt-1]
		if prev.Pos+prev.Size == s.free[insertAt].Pos {
			s.free[insertAt-1].Size += s.free[insertAt].Size
			s.free = append(s.free[:insertAt], s.free[insertAt+1:]...)
		}
	}
}

// RandomizeBlock overwrites size bytes starting at pos with uniform
// random opcodes in [0,31], as required after a mother interval is
// reaped. rng is the shared simulation generator.
func (s *Soup) RandomizeBlock(rng *rand.Rand, pos, size int) {
	for i := 0; i < size; i++ {
		s.Write(pos+i, byte(rng.Intn(32)))
	}
}

// IsFree reports whether addr falls within any free interval.
func (s *Soup) IsFree(addr int) bool {
	addr = s.wrap(addr)
	for _, b := range s.free {
		if b.Pos <= addr && addr < b.Pos+b.Size {
			return true
		}
	}
	return false
}

// TotalFree returns the sum of all free interval sizes.
func (s *Soup) TotalFree() int {
	total := 0
	for _, b := range s.free {
		total += b.Size
	}
	return total
}

// FreeBlockCount reports how many distinct free intervals exist,
// used by callers enforcing a max-free-blocks ceiling.
func (s *Soup) FreeBlockCount() int { return len(s.free) }

// AddOwner registers a creature as owner of its mother interval.
// Daughter intervals are deliberately never registered here — they
// are private to the owning creature per the design notes. Panics on
// a double-owned address — two creatures registered over the same
// byte is an implementation bug per spec.md's invariant-violation
// list, not a creature-level error.
func (s *Soup) AddOwner(id creature.ID, pos, size int) {
	idx := sort.Search(len(s.owners), func(i int) bool { return s.owners[i].Pos >= pos })
	if idx > 0 {
		if prev := s.owners[idx-1]; prev.Pos+prev.Size > pos {
			panic(fmt.Sprintf("soup: double-owned address: owner %d at [%d,%d) overlaps existing owner %d at [%d,%d)", id, pos, pos+size, prev.Owner, prev.Pos, prev.Pos+prev.Size))
		}
	}
	if idx < len(s.owners) {
		if next := s.owners[idx]; pos+size > next.Pos {
			panic(fmt.Sprintf("soup: double-owned address: owner %d at [%d,%d) overlaps existing owner %d at [%d,%d)", id, pos, pos+size, next.Owner, next.Pos, next.Pos+next.Size))
		}
	}
	s.owners = append(s.owners, ownerEntry{})
	copy(s.owners[idx+1:], s.owners[idx:])
	s.owners[idx] = ownerEntry{Pos: pos, Size: size, Owner: id}
}

// RemoveOwner deregisters a creature by identity.
func (s *Soup) RemoveOwner(id creature.ID) {
	for i, o := range s.owners {
		if o.Owner == id {
			s.owners = append(s.owners[:i], s.owners[i+1:]...)
			return
		}
	}
}

// OwnerAt resolves the owner of addr via binary search over the
// sorted owner intervals. Intervals are compared unwrapped: an interval
// that runs past the end of the soup matches only its part before the
// seam.
func (s *Soup) OwnerAt(addr int) (creature.ID, bool) {
	addr = s.wrap(addr)
	lo, hi := 0, len(s.owners)
	for lo < hi {
		mid := (lo + hi) / 2
		o := s.owners[mid]
		if addr < o.Pos {
			hi = mid
			continue
		}
		if addr >= o.Pos+o.Size {
			lo = mid + 1
			continue
		}
		return o.Owner, true
	}
	return 0, false
}

// String reports a diagnostic summary for invariant-violation panics.
func (s *Soup) String() string {
	return fmt.Sprintf("soup.Soup{size:%d free_blocks:%d owners:%d free_total:%d}",
		s.Size, len(s.free), len(s.owners), s.TotalFree())
}
