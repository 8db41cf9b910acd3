// Package grid models the aligned gridded inputs of one analysis run: the
// three diagnostic fields and precipitation on a shared (time, lat, lon)
// coordinate system, with spatial and calendar-month subsetting.
package grid

import (
	"fmt"
	"time"

	"github.com/ctessum/sparse"
)

// Bounds is a latitude/longitude bounding box, inclusive on all four
// sides. Longitudes follow the convention of the input grid (reanalysis
// files commonly use 0..360); wraparound boxes are not supported.
type Bounds struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
}

// Dataset holds the four input fields on one grid. Every array has shape
// (len(Time), len(Lat), len(Lon)); the flat Elements order is row-major
// time, lat, lon, so the four Elements slices are parallel per-point
// arrays ready for accumulation.
type Dataset struct {
	Time []time.Time
	Lat  []float64
	Lon  []float64

	BL     *sparse.DenseArray
	Subsat *sparse.DenseArray
	Cape   *sparse.DenseArray
	Precip *sparse.DenseArray

	// PrecipUnits is carried from the input file through to product
	// metadata.
	PrecipUnits string
}

// New assembles a Dataset and validates that every field matches the
// coordinate shape. Misaligned inputs surface here, immediately and
// whole-array, never per point.
func New(times []time.Time, lat, lon []float64, bl, subsat, cape, precip *sparse.DenseArray, precipUnits string) (*Dataset, error) {
	want := []int{len(times), len(lat), len(lon)}
	fields := []struct {
		name string
		arr  *sparse.DenseArray
	}{
		{"bl", bl}, {"subsat", subsat}, {"cape", cape}, {"precip", precip},
	}
	for _, f := range fields {
		if f.arr == nil {
			return nil, fmt.Errorf("grid: missing %s field", f.name)
		}
		if !sameShape(f.arr.Shape, want) {
			return nil, fmt.Errorf("grid: %s shape %v does not match coordinate shape %v", f.name, f.arr.Shape, want)
		}
	}
	return &Dataset{
		Time:        times,
		Lat:         lat,
		Lon:         lon,
		BL:          bl,
		Subsat:      subsat,
		Cape:        cape,
		Precip:      precip,
		PrecipUnits: precipUnits,
	}, nil
}

// NumPoints is the number of space-time points in the dataset.
func (d *Dataset) NumPoints() int {
	return len(d.Time) * len(d.Lat) * len(d.Lon)
}

func sameShape(got, want []int) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
