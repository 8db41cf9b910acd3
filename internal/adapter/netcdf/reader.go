// Package netcdf reads gridded input fields and reads and writes binned
// statistics products as netCDF version 3 (classic) files. Version 4
// inputs must be converted before use, for example with
//
//	nccopy -k classic input4.nc input3.nc
package netcdf

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"

	"github.com/tropmet/convstats/internal/grid"
)

// Input variable names follow the preprocessed reanalysis convention.
const (
	timeVar   = "time"
	latVar    = "lat"
	lonVar    = "lon"
	blVar     = "bl"
	subsatVar = "subsat"
	capeVar   = "cape"
	precipVar = "pr"

	timeUnits          = "hours since 1900-01-01 00:00:00.0"
	defaultPrecipUnits = "mm/hr"
)

// ReadDataset loads the four input fields and their coordinates from a
// netCDF file. Fields may be stored as any numeric type; packed variables
// with scale_factor and add_offset attributes are unpacked, and values
// equal to _FillValue become NaN.
func ReadDataset(path string) (*grid.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("netcdf: opening %s: %w", path, err)
	}
	defer f.Close()

	ff, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("netcdf: reading %s: %w", path, err)
	}

	times, err := readTimes(ff)
	if err != nil {
		return nil, err
	}
	lat, err := readCoord(ff, latVar)
	if err != nil {
		return nil, err
	}
	lon, err := readCoord(ff, lonVar)
	if err != nil {
		return nil, err
	}

	bl, err := readField(ff, blVar)
	if err != nil {
		return nil, err
	}
	subsat, err := readField(ff, subsatVar)
	if err != nil {
		return nil, err
	}
	cape, err := readField(ff, capeVar)
	if err != nil {
		return nil, err
	}
	pr, err := readField(ff, precipVar)
	if err != nil {
		return nil, err
	}

	units, ok := attrString(ff.Header, precipVar, "units")
	if !ok {
		units = defaultPrecipUnits
	}

	return grid.New(times, lat, lon, bl, subsat, cape, pr, units)
}

// readVar reads the full extent of a variable and converts it to float64.
func readVar(ff *cdf.File, name string) ([]float64, []int, error) {
	dims := ff.Header.Lengths(name)
	if len(dims) == 0 {
		return nil, nil, fmt.Errorf("netcdf: missing variable %s", name)
	}
	r := ff.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, nil, fmt.Errorf("netcdf: reading %s: %w", name, err)
	}
	data, err := toFloat64(buf)
	if err != nil {
		return nil, nil, fmt.Errorf("netcdf: %s: %w", name, err)
	}
	return data, dims, nil
}

func readCoord(ff *cdf.File, name string) ([]float64, error) {
	data, dims, err := readVar(ff, name)
	if err != nil {
		return nil, err
	}
	if len(dims) != 1 {
		return nil, fmt.Errorf("netcdf: coordinate %s has %d dimensions, want 1", name, len(dims))
	}
	return data, nil
}

func readField(ff *cdf.File, name string) (*sparse.DenseArray, error) {
	data, dims, err := readVar(ff, name)
	if err != nil {
		return nil, err
	}
	if len(dims) != 3 {
		return nil, fmt.Errorf("netcdf: field %s has %d dimensions, want 3", name, len(dims))
	}

	// CF packing: _FillValue applies to the stored values, scaling to
	// everything else.
	fill, hasFill := attrFloat(ff.Header, name, "_FillValue")
	scale, hasScale := attrFloat(ff.Header, name, "scale_factor")
	offset, hasOffset := attrFloat(ff.Header, name, "add_offset")
	if hasFill || hasScale || hasOffset {
		for i, v := range data {
			if hasFill && v == fill {
				data[i] = math.NaN()
				continue
			}
			if hasScale {
				v *= scale
			}
			if hasOffset {
				v += offset
			}
			data[i] = v
		}
	}

	a := sparse.ZerosDense(dims...)
	copy(a.Elements, data)
	return a, nil
}

func readTimes(ff *cdf.File) ([]time.Time, error) {
	data, dims, err := readVar(ff, timeVar)
	if err != nil {
		return nil, err
	}
	if len(dims) != 1 {
		return nil, fmt.Errorf("netcdf: coordinate %s has %d dimensions, want 1", timeVar, len(dims))
	}
	units, ok := attrString(ff.Header, timeVar, "units")
	if !ok {
		units = timeUnits
	}
	epoch, err := parseTimeEpoch(units)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(data))
	for i, h := range data {
		out[i] = epoch.Add(time.Duration(math.Round(h*3600)) * time.Second)
	}
	return out, nil
}

// parseTimeEpoch extracts the reference instant from a CF-style
// "hours since ..." units string.
func parseTimeEpoch(units string) (time.Time, error) {
	const prefix = "hours since "
	if !strings.HasPrefix(units, prefix) {
		return time.Time{}, fmt.Errorf("netcdf: unsupported time units %q", units)
	}
	s := strings.TrimSpace(strings.TrimPrefix(units, prefix))
	for _, layout := range []string{"2006-01-02 15:04:05.0", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("netcdf: unsupported time units %q", units)
}

func attrString(h *cdf.Header, v, a string) (string, bool) {
	s, ok := h.GetAttribute(v, a).(string)
	return s, ok
}

func attrFloat(h *cdf.Header, v, a string) (float64, bool) {
	switch x := h.GetAttribute(v, a).(type) {
	case []float64:
		if len(x) > 0 {
			return x[0], true
		}
	case []float32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int32:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	case []int16:
		if len(x) > 0 {
			return float64(x[0]), true
		}
	}
	return 0, false
}

func toFloat64(buf interface{}) ([]float64, error) {
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	case []int16:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	case []int8:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported variable type %T", buf)
	}
}
