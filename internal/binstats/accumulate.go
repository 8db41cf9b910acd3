package binstats

import (
	"fmt"
	"math"
)

// Tally counts how the points offered to an accumulator set were used.
// Points may contribute to one, both, or neither axis scheme, so InRange1D
// and InRangeJoint overlap and neither needs to sum to Points.
type Tally struct {
	Points       int64 // points offered
	NonFinite    int64 // excluded outright: NaN or infinite precipitation
	InRange1D    int64 // contributed to the Q arrays
	InRangeJoint int64 // contributed to the P arrays
}

// Add folds another tally into t.
func (t *Tally) Add(other Tally) {
	t.Points += other.Points
	t.NonFinite += other.NonFinite
	t.InRange1D += other.InRange1D
	t.InRangeJoint += other.InRangeJoint
}

// Accumulators is one owner's set of binned moment arrays: Q* over the
// marginal axis (length n1) and P* over the flattened joint axes (na rows
// by nb columns, row-major). Counts are kept in float64; they stay exact
// far past any realistic point count and merge and serialize uniformly
// with the sums.
type Accumulators struct {
	q0, qe, q1, q2 []float64
	p0, pe, p1, p2 []float64
	n1, na, nb     int
	threshold      float64
	tally          Tally
}

// NewAccumulators returns a zeroed accumulator set for n1 marginal bins and
// na-by-nb joint bins, counting exceedances of threshold.
func NewAccumulators(n1, na, nb int, threshold float64) *Accumulators {
	return &Accumulators{
		q0: make([]float64, n1),
		qe: make([]float64, n1),
		q1: make([]float64, n1),
		q2: make([]float64, n1),
		p0: make([]float64, na*nb),
		pe: make([]float64, na*nb),
		p1: make([]float64, na*nb),
		p2: make([]float64, na*nb),
		n1: n1, na: na, nb: nb,
		threshold: threshold,
	}
}

// Accumulate folds one batch of points into the set in a single pass.
// idx1 holds each point's marginal bin, idxA/idxB its joint row and column
// bins, values its precipitation. Out-of-range indices and non-finite
// values are normal, silently excluded cases. Mismatched slice lengths are
// a programming error and panic.
func (c *Accumulators) Accumulate(idx1, idxA, idxB []int32, values []float64) {
	if len(idx1) != len(values) || len(idxA) != len(values) || len(idxB) != len(values) {
		panic(fmt.Sprintf("binstats: batch length mismatch: idx1=%d idxA=%d idxB=%d values=%d",
			len(idx1), len(idxA), len(idxB), len(values)))
	}

	n1, na, nb := int32(c.n1), int32(c.na), int32(c.nb)
	for k, v := range values {
		c.tally.Points++
		if math.IsNaN(v) || math.IsInf(v, 0) {
			c.tally.NonFinite++
			continue
		}
		exceeds := v > c.threshold

		if i := idx1[k]; i >= 0 && i < n1 {
			c.q0[i]++
			c.q1[i] += v
			c.q2[i] += v * v
			if exceeds {
				c.qe[i]++
			}
			c.tally.InRange1D++
		}

		if a, b := idxA[k], idxB[k]; a >= 0 && a < na && b >= 0 && b < nb {
			j := int(a)*c.nb + int(b)
			c.p0[j]++
			c.p1[j] += v
			c.p2[j] += v * v
			if exceeds {
				c.pe[j]++
			}
			c.tally.InRangeJoint++
		}
	}
}

// Merge adds another set's arrays and tally into c elementwise. This is the
// reduction step for partitioned accumulation; per-point updates commute,
// so merging partitions is equivalent to one sequential pass. Sets must
// share dimensions and threshold or the merge panics.
func (c *Accumulators) Merge(other *Accumulators) {
	if c.n1 != other.n1 || c.na != other.na || c.nb != other.nb || c.threshold != other.threshold {
		panic(fmt.Sprintf("binstats: merging incompatible accumulators: (%d,%dx%d,%g) vs (%d,%dx%d,%g)",
			c.n1, c.na, c.nb, c.threshold, other.n1, other.na, other.nb, other.threshold))
	}
	addInto(c.q0, other.q0)
	addInto(c.qe, other.qe)
	addInto(c.q1, other.q1)
	addInto(c.q2, other.q2)
	addInto(c.p0, other.p0)
	addInto(c.pe, other.pe)
	addInto(c.p1, other.p1)
	addInto(c.p2, other.p2)
	c.tally.Add(other.tally)
}

// Tally reports how the points seen so far were used.
func (c *Accumulators) Tally() Tally {
	return c.tally
}

func addInto(dst, src []float64) {
	for i, v := range src {
		dst[i] += v
	}
}
