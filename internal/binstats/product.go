package binstats

import (
	"fmt"
	"time"

	"github.com/ctessum/sparse"
)

// Product is the run-level result: every subset Record stacked along new
// leading region and month axes. Q* arrays have shape (region, month, bl);
// P* arrays have shape (region, month, subsat, cape). Region and month
// order follow the configured lists.
type Product struct {
	Regions []string
	Months  []int

	BLEdges     []float64
	SubsatEdges []float64
	CapeEdges   []float64
	Threshold   float64
	PrecipUnits string

	Q0, QE, Q1, Q2 *sparse.DenseArray
	P0, PE, P1, P2 *sparse.DenseArray

	Author    string
	CreatedAt time.Time
}

// NewProduct concatenates the [region][month] grid of Records into one
// Product. Records must form a full rectangle in configured order; every
// Record comes from the same Builder, so edges are identical by
// construction, but array shapes are still checked against the first
// Record to catch wiring mistakes early. The creation time comes from the
// package clock.
func NewProduct(regions []string, months []int, records [][]*Record, author, precipUnits string) (*Product, error) {
	if len(records) != len(regions) {
		return nil, fmt.Errorf("binstats: %d record rows for %d regions", len(records), len(regions))
	}
	if len(regions) == 0 || len(months) == 0 {
		return nil, fmt.Errorf("binstats: empty region or month axis")
	}
	for r, row := range records {
		if len(row) != len(months) {
			return nil, fmt.Errorf("binstats: region %q has %d records for %d months", regions[r], len(row), len(months))
		}
	}

	first := records[0][0]
	nbl := len(first.BLEdges)
	nsub := len(first.SubsatEdges)
	ncape := len(first.CapeEdges)
	nR, nM := len(regions), len(months)

	p := &Product{
		Regions:     append([]string(nil), regions...),
		Months:      append([]int(nil), months...),
		BLEdges:     first.BLEdges,
		SubsatEdges: first.SubsatEdges,
		CapeEdges:   first.CapeEdges,
		Threshold:   first.Threshold,
		PrecipUnits: precipUnits,
		Q0:          sparse.ZerosDense(nR, nM, nbl),
		QE:          sparse.ZerosDense(nR, nM, nbl),
		Q1:          sparse.ZerosDense(nR, nM, nbl),
		Q2:          sparse.ZerosDense(nR, nM, nbl),
		P0:          sparse.ZerosDense(nR, nM, nsub, ncape),
		PE:          sparse.ZerosDense(nR, nM, nsub, ncape),
		P1:          sparse.ZerosDense(nR, nM, nsub, ncape),
		P2:          sparse.ZerosDense(nR, nM, nsub, ncape),
		Author:      author,
		CreatedAt:   clock.Now().UTC(),
	}

	for r, row := range records {
		for m, rec := range row {
			if rec == nil {
				return nil, fmt.Errorf("binstats: missing record for region %q month %d", regions[r], months[m])
			}
			if len(rec.Q0.Elements) != nbl || len(rec.P0.Elements) != nsub*ncape {
				return nil, fmt.Errorf("binstats: record for region %q month %d has mismatched bins", regions[r], months[m])
			}
			qoff := (r*nM + m) * nbl
			copy(p.Q0.Elements[qoff:qoff+nbl], rec.Q0.Elements)
			copy(p.QE.Elements[qoff:qoff+nbl], rec.QE.Elements)
			copy(p.Q1.Elements[qoff:qoff+nbl], rec.Q1.Elements)
			copy(p.Q2.Elements[qoff:qoff+nbl], rec.Q2.Elements)
			poff := (r*nM + m) * nsub * ncape
			copy(p.P0.Elements[poff:poff+nsub*ncape], rec.P0.Elements)
			copy(p.PE.Elements[poff:poff+nsub*ncape], rec.PE.Elements)
			copy(p.P1.Elements[poff:poff+nsub*ncape], rec.P1.Elements)
			copy(p.P2.Elements[poff:poff+nsub*ncape], rec.P2.Elements)
		}
	}
	return p, nil
}

// Var returns the named accumulator array, or nil for an unknown name.
// Names follow the serialized variable names (Q0, QE, Q1, Q2, P0, PE, P1, P2).
func (p *Product) Var(name string) *sparse.DenseArray {
	switch name {
	case "Q0":
		return p.Q0
	case "QE":
		return p.QE
	case "Q1":
		return p.Q1
	case "Q2":
		return p.Q2
	case "P0":
		return p.P0
	case "PE":
		return p.PE
	case "P1":
		return p.P1
	case "P2":
		return p.P2
	}
	return nil
}

// VarMeta carries the serialized name, descriptive long name, and physical
// unit string for one accumulator variable.
type VarMeta struct {
	Name     string
	LongName string
	Units    string
}

// MarginalVars describes the four marginal accumulator variables binned on
// the BL axis, in serialization order.
func MarginalVars(precipUnits string) []VarMeta {
	return []VarMeta{
		{Name: "Q0", LongName: "count of points per bl bin", Units: "1"},
		{Name: "QE", LongName: "count of points with precipitation exceeding the threshold per bl bin", Units: "1"},
		{Name: "Q1", LongName: "sum of precipitation per bl bin", Units: precipUnits},
		{Name: "Q2", LongName: "sum of squared precipitation per bl bin", Units: squaredUnits(precipUnits)},
	}
}

// JointVars describes the four joint accumulator variables binned on the
// (subsat, cape) axes, in serialization order.
func JointVars(precipUnits string) []VarMeta {
	return []VarMeta{
		{Name: "P0", LongName: "count of points per subsat-cape bin", Units: "1"},
		{Name: "PE", LongName: "count of points with precipitation exceeding the threshold per subsat-cape bin", Units: "1"},
		{Name: "P1", LongName: "sum of precipitation per subsat-cape bin", Units: precipUnits},
		{Name: "P2", LongName: "sum of squared precipitation per subsat-cape bin", Units: squaredUnits(precipUnits)},
	}
}

func squaredUnits(u string) string {
	return "(" + u + ")^2"
}
