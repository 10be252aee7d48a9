// Package fragment implements the chaos-driven ClientHello fragmentation
// planner (spec.md §4.3). It turns a buffer length and a fragment count
// into an ordered list of (offset, delay) cut points.
package fragment

import (
	"time"

	"chaosproxy/internal/chaos"
)

// Cut is one planned cut point: write up to Offset, then wait Delay before
// writing the rest. The terminal cut has Offset == total length.
type Cut struct {
	Offset int
	Delay  time.Duration
}

// Plan computes the fragmentation plan for a buffer of totalLen bytes split
// into numFragments pieces, per spec.md §4.3. Returns an empty plan if the
// buffer is too short to safely fragment (caller should send it whole).
func Plan(e *chaos.Engine, totalLen, numFragments int) []Cut {
	const safeStart = 10
	safeEnd := totalLen - 10
	if safeEnd <= safeStart {
		return nil
	}
	safeRange := safeEnd - safeStart
	if numFragments < 1 || safeRange < numFragments-1 {
		return nil
	}

	positions := make([]int, 0, numFragments-1)
	for i := 0; i < numFragments-1; i++ {
		segment := float64(safeRange) / float64(numFragments)
		base := float64(safeStart) + (float64(i)+0.3)*segment
		variance := segment * 0.4
		pos := round(base + (e.Mix()-0.5)*variance)
		if pos < safeStart {
			pos = safeStart
		}
		if pos > safeEnd {
			pos = safeEnd
		}
		positions = append(positions, pos)
	}

	sortInts(positions)

	kept := make([]int, 0, len(positions))
	prev := safeStart
	for _, p := range positions {
		if p-prev >= 5 {
			kept = append(kept, p)
			prev = p
		}
	}

	plan := make([]Cut, 0, len(kept)+1)
	for _, p := range kept {
		plan = append(plan, Cut{Offset: p, Delay: e.JitterDelay(0.5, 2.5)})
	}
	plan = append(plan, Cut{Offset: totalLen, Delay: e.JitterDelay(0.3, 1.5)})

	return plan
}

func round(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		v := s[i]
		j := i - 1
		for j >= 0 && s[j] > v {
			s[j+1] = s[j]
			j--
		}
		s[j+1] = v
	}
}
