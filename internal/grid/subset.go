package grid

import (
	"time"

	"github.com/ctessum/sparse"
)

// SubsetRegion copies the grid columns falling inside b into a new
// Dataset. Coordinate order is preserved, ascending or descending, and an
// empty selection is legal: histogramming zero points just yields zero
// counts downstream.
func (d *Dataset) SubsetRegion(b Bounds) *Dataset {
	latIdx := indicesWithin(d.Lat, b.LatMin, b.LatMax)
	lonIdx := indicesWithin(d.Lon, b.LonMin, b.LonMax)

	nt, ny, nx := len(d.Time), len(d.Lat), len(d.Lon)
	sy, sx := len(latIdx), len(lonIdx)

	out := &Dataset{
		Time:        d.Time,
		Lat:         pick(d.Lat, latIdx),
		Lon:         pick(d.Lon, lonIdx),
		PrecipUnits: d.PrecipUnits,
	}

	copyBox := func(src *sparse.DenseArray) *sparse.DenseArray {
		dst := sparse.ZerosDense(nt, sy, sx)
		o := 0
		for it := 0; it < nt; it++ {
			for _, iy := range latIdx {
				row := (it*ny + iy) * nx
				for _, ix := range lonIdx {
					dst.Elements[o] = src.Elements[row+ix]
					o++
				}
			}
		}
		return dst
	}
	out.BL = copyBox(d.BL)
	out.Subsat = copyBox(d.Subsat)
	out.Cape = copyBox(d.Cape)
	out.Precip = copyBox(d.Precip)
	return out
}

// SubsetMonth copies the time steps whose calendar month equals m. Each
// time step is one contiguous lat-lon plane in the flat layout, so slabs
// copy directly.
func (d *Dataset) SubsetMonth(m time.Month) *Dataset {
	var tIdx []int
	for i, ts := range d.Time {
		if ts.Month() == m {
			tIdx = append(tIdx, i)
		}
	}

	ny, nx := len(d.Lat), len(d.Lon)
	plane := ny * nx

	out := &Dataset{
		Time:        make([]time.Time, len(tIdx)),
		Lat:         d.Lat,
		Lon:         d.Lon,
		PrecipUnits: d.PrecipUnits,
	}
	for o, i := range tIdx {
		out.Time[o] = d.Time[i]
	}

	copySteps := func(src *sparse.DenseArray) *sparse.DenseArray {
		dst := sparse.ZerosDense(len(tIdx), ny, nx)
		for o, i := range tIdx {
			copy(dst.Elements[o*plane:(o+1)*plane], src.Elements[i*plane:(i+1)*plane])
		}
		return dst
	}
	out.BL = copySteps(d.BL)
	out.Subsat = copySteps(d.Subsat)
	out.Cape = copySteps(d.Cape)
	out.Precip = copySteps(d.Precip)
	return out
}

// indicesWithin returns the indices of coords lying in [lo, hi], in their
// original order.
func indicesWithin(coords []float64, lo, hi float64) []int {
	var idx []int
	for i, v := range coords {
		if v >= lo && v <= hi {
			idx = append(idx, i)
		}
	}
	return idx
}

func pick(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for o, i := range idx {
		out[o] = v[i]
	}
	return out
}
