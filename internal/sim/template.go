package sim

import (
	"github.com/tierra-vm/tierra/internal/creature"
	"github.com/tierra-vm/tierra/internal/isa"
	"github.com/tierra-vm/tierra/internal/soup"
)

// findTemplate reads the maximal run of nop0/nop1 bytes starting at
// ip+1, builds its bitwise complement, and searches for an exact
// complement match within search_limit * avg_mother_size of ip.
// direction is 'f' (forward), 'b' (backward), or 'o' (outward:
// forward then backward at each increasing distance). On success addr
// is the byte immediately past the matched complement; tlen is the
// source template's length either way.
func (s *Simulation) findTemplate(ip int, direction byte) (addr int, tlen int, ok bool) {
	soupSize := s.Config.SoupSize

	var template []int
	pos := (ip + 1) % soupSize
	for {
		v := int(s.Soup.Read(pos)) % isa.NumOpcodes
		if v != int(isa.Nop0) && v != int(isa.Nop1) {
			break
		}
		template = append(template, v)
		pos = (pos + 1) % soupSize
		if len(template) >= soupSize {
			break
		}
	}
	if len(template) == 0 {
		return -1, 0, false
	}
	tlen = len(template)

	complement := make([]int, tlen)
	for i, b := range template {
		complement[i] = 1 - b
	}

	avgSize := s.Scheduler.AverageMotherSize(80)
	maxDist := soupSize
	if avgSize > 0 {
		maxDist = int(float64(s.Config.SearchLimit) * float64(avgSize))
	}

	matchAt := func(start int) bool {
		for j := 0; j < tlen; j++ {
			if int(s.Soup.Read((start+j)%soupSize))%isa.NumOpcodes != complement[j] {
				return false
			}
		}
		return true
	}

	switch direction {
	case 'f':
		searchStart := (ip + 1 + tlen) % soupSize
		for dist := 1; dist <= maxDist; dist++ {
			check := (searchStart + dist) % soupSize
			if matchAt(check) {
				return (check + tlen) % soupSize, tlen, true
			}
		}
	case 'b':
		for dist := 1; dist <= maxDist; dist++ {
			check := wrapSub(ip, dist, soupSize)
			if matchAt(check) {
				return (check + tlen) % soupSize, tlen, true
			}
		}
	case 'o':
		searchStart := (ip + 1 + tlen) % soupSize
		for dist := 1; dist <= maxDist; dist++ {
			checkF := (searchStart + dist) % soupSize
			if matchAt(checkF) {
				return (checkF + tlen) % soupSize, tlen, true
			}
			checkB := wrapSub(ip, dist, soupSize)
			if matchAt(checkB) {
				return (checkB + tlen) % soupSize, tlen, true
			}
		}
	}
	return -1, tlen, false
}

func wrapSub(ip, dist, soupSize int) int {
	return ((ip-dist)%soupSize + soupSize) % soupSize
}

// templateEnd returns the address one past the template following ip,
// used by call to compute its pushed return address regardless of
// whether the search itself succeeds.
func (s *Simulation) templateEnd(ip int) int {
	soupSize := s.Config.SoupSize
	pos := (ip + 1) % soupSize
	for {
		v := int(s.Soup.Read(pos)) % isa.NumOpcodes
		if v != int(isa.Nop0) && v != int(isa.Nop1) {
			break
		}
		pos = (pos + 1) % soupSize
	}
	return pos
}

// skipTemplate advances c.IP to the last byte of the tlen-length
// template following it, leaving IPModified false so the main loop's
// ordinary +1 step lands just past the template rather than
// re-executing it.
func (s *Simulation) skipTemplate(c *creature.Creature, tlen int) {
	soupSize := s.Config.SoupSize
	if tlen == 0 {
		return
	}
	c.CPU.IP = (c.CPU.IP + tlen) % soupSize
}

func allocModeFromConfig(malMode int) soup.AllocMode {
	switch malMode {
	case 0:
		return soup.FirstFit
	case 1:
		return soup.BetterFit
	case 2:
		return soup.Random
	case 3:
		return soup.Near
	default:
		return soup.BetterFit
	}
}
