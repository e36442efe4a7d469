// Package genebank assigns stable, size-classed names to distinct
// genomes and tracks their population. A Bloom filter gives a cheap
// "definitely not seen before" fast path ahead of the authoritative
// hash-keyed lookup, since the soup can mint many short-lived
// genotypes during a disturbance-heavy run.
package genebank

import (
	"hash/fnv"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/tierra-vm/tierra/internal/creature"
	"github.com/tierra-vm/tierra/internal/soup"
)

// Genotype is the equivalence class of creatures sharing byte-identical
// mother content, identified by a size-classed name.
type Genotype struct {
	Name       string
	Genome     []byte
	Population int
	MaxPop     int
	OriginTime int
	Parent     string
}

// sizeClass mints 3-letter base-26 suffixes for one mother-length
// bucket and indexes its genotypes by content hash.
type sizeClass struct {
	byHash    map[uint64]*Genotype
	nextLabel int
}

func (sc *sizeClass) nextName(size int) string {
	label := intToLabel(sc.nextLabel)
	sc.nextLabel++
	return fmtName(size, label)
}

// intToLabel converts n to a 3-letter label: 0->aaa, 1->aab, ...,
// 25->aaz, 26->aba, matching the original naming scheme exactly.
func intToLabel(n int) string {
	c3 := byte('a' + n%26)
	n /= 26
	c2 := byte('a' + n%26)
	n /= 26
	c1 := byte('a' + n%26)
	return string([]byte{c1, c2, c3})
}

func fmtName(size int, label string) string {
	digits := [4]byte{'0', '0', '0', '0'}
	s := size
	for i := 3; i >= 0 && s > 0; i-- {
		digits[i] = byte('0' + s%10)
		s /= 10
	}
	return string(digits[:]) + label
}

// GeneBank is the live genotype registry for one simulation run.
type GeneBank struct {
	mu          sync.RWMutex
	sizeClasses map[int]*sizeClass
	byName      map[string]*Genotype
	seen        *bloom.BloomFilter
	arena       *creature.Arena
	soup        *soup.Soup
}

// New returns an empty registry. expectedGenotypes and falsePositive
// size the Bloom filter; a generous overestimate is cheap relative to
// the hash-map fallback it guards.
func New(arena *creature.Arena, s *soup.Soup, expectedGenotypes uint, falsePositive float64) *GeneBank {
	return &GeneBank{
		sizeClasses: make(map[int]*sizeClass),
		byName:      make(map[string]*Genotype),
		seen:        bloom.NewWithEstimates(expectedGenotypes, falsePositive),
		arena:       arena,
		soup:        s,
	}
}

// genomeHash is a 64-bit FNV-1a hash of the genome bytes. Unlike the
// lineage's additive checksum (position-weighted sum folded with
// length), FNV-1a's avalanche properties make accidental collisions
// between distinct genomes negligible at any soup size this
// simulator targets; the stored genome bytes remain the ultimate
// identity check on a hash hit.
func genomeHash(data []byte) uint64 {
	h := fnv.New64a()
	h.Write(data)
	return h.Sum64()
}

// bloomKey renders a hash as the byte key the Bloom filter indexes.
func bloomKey(h uint64) []byte {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(h >> (8 * i))
	}
	return b[:]
}

// Register computes the hash of id's mother bytes, finds or mints its
// genotype, increments population, and tags the creature with the
// genotype name. isNew reports whether this call minted a fresh
// genotype (the caller emits NEW_GENOTYPE accordingly).
func (g *GeneBank) Register(id creature.ID, now int) (gt *Genotype, isNew bool) {
	c := g.arena.Get(id)
	if c == nil {
		return nil, false
	}
	genome := g.soup.ReadBlock(c.Mother.Pos, c.Mother.Size)
	size := c.Mother.Size
	h := genomeHash(genome)

	g.mu.Lock()
	defer g.mu.Unlock()

	sc, ok := g.sizeClasses[size]
	if !ok {
		sc = &sizeClass{byHash: make(map[uint64]*Genotype)}
		g.sizeClasses[size] = sc
	}

	key := bloomKey(h)
	maybeSeen := g.seen.Test(key)
	if maybeSeen {
		if existing, ok := sc.byHash[h]; ok && bytesEqual(existing.Genome, genome) {
			existing.Population++
			if existing.Population > existing.MaxPop {
				existing.MaxPop = existing.Population
			}
			c.Demo.Genotype = existing.Name
			return existing, false
		}
	}

	name := sc.nextName(size)
	gt = &Genotype{
		Name:       name,
		Genome:     genome,
		Population: 1,
		MaxPop:     1,
		OriginTime: now,
		Parent:     c.Demo.ParentGenotype,
	}
	sc.byHash[h] = gt
	g.byName[name] = gt
	g.seen.Add(key)
	c.Demo.Genotype = name
	return gt, true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Unregister decrements the population of id's tagged genotype,
// clamped at zero. The genotype record is kept for historical naming
// even once its population reaches zero.
func (g *GeneBank) Unregister(id creature.ID) {
	c := g.arena.Get(id)
	if c == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if gt, ok := g.byName[c.Demo.Genotype]; ok && gt.Population > 0 {
		gt.Population--
	}
}

// NumGenotypes returns the number of genotypes with nonzero population.
func (g *GeneBank) NumGenotypes() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, gt := range g.byName {
		if gt.Population > 0 {
			n++
		}
	}
	return n
}

// Summary returns {genotype_name: population} for every living
// genotype, as an immutable snapshot copy.
func (g *GeneBank) Summary() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]int, len(g.byName))
	for name, gt := range g.byName {
		if gt.Population > 0 {
			out[name] = gt.Population
		}
	}
	return out
}

// Lookup returns the genotype with the given name, if it exists
// (regardless of current population).
func (g *GeneBank) Lookup(name string) (*Genotype, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	gt, ok := g.byName[name]
	return gt, ok
}

// All returns a snapshot slice of every genotype record ever minted.
func (g *GeneBank) All() []*Genotype {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Genotype, 0, len(g.byName))
	for _, gt := range g.byName {
		out = append(out, gt)
	}
	return out
}
