package binstats

import "math"

// Spec describes one axis's binning scheme. Width must be positive and Max
// must exceed Min; both are enforced by config validation before a Spec is
// ever constructed, so methods assume a well-formed receiver.
type Spec struct {
	Min   float64
	Max   float64
	Width float64
}

// NBins returns the number of bin edges, floor((Max-Min)/Width) + 1.
func (s Spec) NBins() int {
	return int(math.Floor((s.Max-s.Min)/s.Width)) + 1
}

// Edges derives the ascending edge sequence Min, Min+Width, ... of length
// NBins. Edges are computed as Min + i*Width rather than by cumulative
// addition, so the step stays exact and repeated derivations are
// bit-identical.
func (s Spec) Edges() []float64 {
	edges := make([]float64, s.NBins())
	for i := range edges {
		edges[i] = s.Min + float64(i)*s.Width
	}
	return edges
}

// IndexNearest maps a value to its bin under the round-to-nearest policy,
// floor((v-Min)/Width + 0.5). Used for the marginal BL axis. The result may
// be negative or >= NBins; callers decide inclusion by bounds check.
func (s Spec) IndexNearest(v float64) int {
	return safeIndex(math.Floor((v-s.Min)/s.Width + 0.5))
}

// IndexHalfDown maps a value to its bin under the half-bin-down policy,
// floor((v-Min)/Width - 0.5). Used for both joint axes. At v == Min it
// returns -1 where IndexNearest returns 0; the two policies are distinct on
// purpose and must not be unified.
func (s Spec) IndexHalfDown(v float64) int {
	return safeIndex(math.Floor((v-s.Min)/s.Width - 0.5))
}

// outOfRangeIndex is the sentinel for values whose bin index cannot be
// represented: NaN diagnostics and magnitudes beyond int32 range. It fails
// every bounds check, so such points are excluded like any other
// out-of-range value.
const outOfRangeIndex = math.MinInt32

// safeIndex converts a floored float index to int. Conversion of NaN or an
// out-of-range float to int is implementation-defined in Go, so anything
// outside int32 range collapses to outOfRangeIndex first. The negated
// comparison is what catches NaN.
func safeIndex(f float64) int {
	if !(f >= math.MinInt32 && f <= math.MaxInt32) {
		return outOfRangeIndex
	}
	return int(f)
}
