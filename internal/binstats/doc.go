// Package binstats computes binned precipitation-buoyancy statistics.
//
// # Binning Scheme
//
// Each axis is described by a Spec {Min, Max, Width}. Bin edges are the
// ascending sequence Min, Min+Width, Min+2*Width, ... of length
// floor((Max-Min)/Width) + 1: the final edge equals Max exactly when
// (Max-Min) is an integer multiple of Width and falls just short of it
// otherwise. The canonical BL axis {-0.6, 0.1, 0.0025} carries 281 edges.
//
// # Index Policies
//
// Two distinct value-to-bin mappings are in use and are deliberately kept
// separate:
//
//	round-to-nearest:  index = floor((v - Min)/Width + 0.5)
//	half-bin-down:     index = floor((v - Min)/Width - 0.5)
//
// The marginal BL axis uses round-to-nearest; both joint axes (subsat and
// cape) use half-bin-down. At v == Min the first maps to bin 0 while the
// second maps to -1, i.e. out of range. Indices are returned raw, including
// negatives; inclusion is decided downstream by the bounds check
// 0 <= index < nbins. There is no clipping.
//
// # Accumulators
//
// A single pass over the points fills four moments per axis scheme:
//
//	Q0 / P0  count of points landing in the bin
//	QE / PE  count of those whose precipitation strictly exceeds the threshold
//	Q1 / P1  sum of precipitation (precipitation units)
//	Q2 / P2  sum of squared precipitation (squared precipitation units)
//
// Q* arrays are indexed by the BL bin; P* arrays by the (subsat, cape) bin
// pair. A point with non-finite precipitation contributes to nothing. A
// point whose BL index is out of range still contributes to the joint
// arrays when both joint indices are in range, and vice versa.
//
// Per-point updates commute, so accumulation order never changes counts and
// affects sums only through float64 rounding. The Builder exploits this by
// accumulating fixed contiguous point partitions on parallel workers and
// merging the partial accumulator sets by elementwise addition.
//
// # Products
//
// One Record holds the statistics of a single (region, month) subset.
// NewProduct stacks Records along new leading month and region axes into
// the final product, stamped with a creation time from the package clock.
package binstats
