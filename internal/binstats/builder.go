package binstats

import (
	"context"
	"fmt"
	"runtime"

	"github.com/ctessum/sparse"
	"golang.org/x/sync/errgroup"
)

// chunkSize is the number of points indexed and accumulated per batch.
// Index buffers are reused across batches, so per-worker memory stays at
// three int32 buffers regardless of subset size.
const chunkSize = 64 * 1024

// Record is the immutable result of one (region, month) build: the eight
// accumulator arrays, the edge coordinates they are binned on, the
// exceedance threshold in effect, and the point tally. Records are never
// mutated after construction.
type Record struct {
	BLEdges     []float64
	SubsatEdges []float64
	CapeEdges   []float64
	Threshold   float64

	// Marginal moments over the BL bins, shape (len(BLEdges)).
	Q0, QE, Q1, Q2 *sparse.DenseArray
	// Joint moments over the (subsat, cape) bins, shape
	// (len(SubsatEdges), len(CapeEdges)).
	P0, PE, P1, P2 *sparse.DenseArray

	Tally Tally
}

// Builder turns parallel per-point field slices into Records. It owns the
// three axis Specs and the exceedance threshold for a whole run, so every
// Record it produces shares identical edges.
type Builder struct {
	bl, subsat, cape Spec
	threshold        float64
	workers          int
}

// NewBuilder creates a Builder binning bl under round-to-nearest and
// subsat/cape under half-bin-down. workers < 1 means one worker per
// available CPU.
func NewBuilder(bl, subsat, cape Spec, threshold float64, workers int) *Builder {
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Builder{bl: bl, subsat: subsat, cape: cape, threshold: threshold, workers: workers}
}

// Build computes indices and accumulates all points in one logical pass.
// The slices must be parallel (same length, same point order); a length
// mismatch is an error and aborts the run. Points are split into fixed
// contiguous partitions, one per worker, each filling its own accumulator
// set; partitions merge in worker order, so a run is reproducible for a
// given worker count. Counts are exact regardless of partitioning; sums
// agree up to float64 rounding.
func (b *Builder) Build(ctx context.Context, bl, subsat, cape, precip []float64) (*Record, error) {
	n := len(precip)
	if len(bl) != n || len(subsat) != n || len(cape) != n {
		return nil, fmt.Errorf("binstats: field length mismatch: bl=%d subsat=%d cape=%d precip=%d",
			len(bl), len(subsat), len(cape), n)
	}

	n1 := b.bl.NBins()
	na := b.subsat.NBins()
	nb := b.cape.NBins()

	accs := make([]*Accumulators, b.workers)
	span := (n + b.workers - 1) / b.workers

	var eg errgroup.Group
	for w := 0; w < b.workers; w++ {
		w := w // shadow for the closure: toolchain predates Go 1.22 per-iteration loop variables
		lo := w * span
		hi := min(lo+span, n)
		if lo >= hi {
			continue
		}
		eg.Go(func() error {
			acc := NewAccumulators(n1, na, nb, b.threshold)
			idx1 := make([]int32, chunkSize)
			idxA := make([]int32, chunkSize)
			idxB := make([]int32, chunkSize)
			for start := lo; start < hi; start += chunkSize {
				if err := ctx.Err(); err != nil {
					return err
				}
				m := min(chunkSize, hi-start)
				for k := 0; k < m; k++ {
					idx1[k] = int32(b.bl.IndexNearest(bl[start+k]))
					idxA[k] = int32(b.subsat.IndexHalfDown(subsat[start+k]))
					idxB[k] = int32(b.cape.IndexHalfDown(cape[start+k]))
				}
				acc.Accumulate(idx1[:m], idxA[:m], idxB[:m], precip[start:start+m])
			}
			accs[w] = acc
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	total := NewAccumulators(n1, na, nb, b.threshold)
	for _, acc := range accs {
		if acc != nil {
			total.Merge(acc)
		}
	}
	return b.freeze(total), nil
}

// freeze packages a merged accumulator set into an immutable Record.
func (b *Builder) freeze(acc *Accumulators) *Record {
	return &Record{
		BLEdges:     b.bl.Edges(),
		SubsatEdges: b.subsat.Edges(),
		CapeEdges:   b.cape.Edges(),
		Threshold:   b.threshold,
		Q0:          denseVector(acc.q0),
		QE:          denseVector(acc.qe),
		Q1:          denseVector(acc.q1),
		Q2:          denseVector(acc.q2),
		P0:          denseMatrix(acc.p0, acc.na, acc.nb),
		PE:          denseMatrix(acc.pe, acc.na, acc.nb),
		P1:          denseMatrix(acc.p1, acc.na, acc.nb),
		P2:          denseMatrix(acc.p2, acc.na, acc.nb),
		Tally:       acc.tally,
	}
}

func denseVector(v []float64) *sparse.DenseArray {
	a := sparse.ZerosDense(len(v))
	copy(a.Elements, v)
	return a
}

func denseMatrix(v []float64, rows, cols int) *sparse.DenseArray {
	a := sparse.ZerosDense(rows, cols)
	copy(a.Elements, v)
	return a
}
