package feature

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// assembleRings joins the given lines at their end points until they form closed rings. Lines which can't be closed
// are dropped.
func assembleRings(lines []orb.LineString) []orb.Ring {
	var rings []orb.Ring

	remaining := make([]orb.LineString, len(lines))
	copy(remaining, lines)

	for len(remaining) > 0 {
		current := append(orb.LineString{}, remaining[0]...)
		remaining = remaining[1:]

		for !isClosed(current) {
			index, joined := joinNext(current, remaining)
			if index == -1 {
				break
			}
			current = joined
			remaining = append(remaining[:index], remaining[index+1:]...)
		}

		if isClosed(current) && len(current) >= 4 {
			rings = append(rings, orb.Ring(current))
		}
	}

	return rings
}

// joinNext searches a line starting or ending at one of the end points of current and returns its index and the
// joined line. The index is -1 when no line fits.
func joinNext(current orb.LineString, candidates []orb.LineString) (int, orb.LineString) {
	first := current[0]
	last := current[len(current)-1]

	for i, candidate := range candidates {
		candidateFirst := candidate[0]
		candidateLast := candidate[len(candidate)-1]

		switch {
		case last == candidateFirst:
			return i, append(current, candidate[1:]...)
		case last == candidateLast:
			return i, append(current, reversed(candidate)[1:]...)
		case first == candidateLast:
			return i, append(append(orb.LineString{}, candidate...), current[1:]...)
		case first == candidateFirst:
			return i, append(reversed(candidate), current[1:]...)
		}
	}

	return -1, nil
}

func reversed(lineString orb.LineString) orb.LineString {
	result := make(orb.LineString, len(lineString))
	for i, p := range lineString {
		result[len(lineString)-1-i] = p
	}
	return result
}

// ringContainsRing only checks the vertices of the inner ring, which is sufficient for valid (non-overlapping)
// multipolygons.
func ringContainsRing(outer orb.Ring, inner orb.Ring) bool {
	for _, p := range inner {
		if !planar.RingContains(outer, p) {
			return false
		}
	}
	return true
}
