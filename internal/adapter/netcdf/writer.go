package netcdf

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"

	"github.com/tropmet/convstats/internal/binstats"
	"github.com/tropmet/convstats/internal/grid"
)

// Product dimension names. The region axis has no coordinate variable;
// the region names live in the global "regions" attribute.
const (
	regionDim = "region"
	monthDim  = "month"
	blDim     = "bl"
	subsatDim = "subsat"
	capeDim   = "cape"
)

// WriteProduct writes a stacked statistics product to path as a netCDF
// classic file, with bin-edge coordinates and run provenance attached.
func WriteProduct(path string, p *binstats.Product) error {
	h := cdf.NewHeader(
		[]string{regionDim, monthDim, blDim, subsatDim, capeDim},
		[]int{len(p.Regions), len(p.Months), len(p.BLEdges), len(p.SubsatEdges), len(p.CapeEdges)},
	)

	h.AddVariable(monthDim, []string{monthDim}, []int32{0})
	h.AddAttribute(monthDim, "long_name", "calendar month")
	h.AddVariable(blDim, []string{blDim}, []float64{0})
	h.AddAttribute(blDim, "long_name", "average buoyancy bin edge")
	h.AddAttribute(blDim, "units", "m/s^2")
	h.AddVariable(subsatDim, []string{subsatDim}, []float64{0})
	h.AddAttribute(subsatDim, "long_name", "subsaturation bin edge")
	h.AddAttribute(subsatDim, "units", "K")
	h.AddVariable(capeDim, []string{capeDim}, []float64{0})
	h.AddAttribute(capeDim, "long_name", "undilute buoyancy bin edge")
	h.AddAttribute(capeDim, "units", "K")

	for _, v := range binstats.MarginalVars(p.PrecipUnits) {
		h.AddVariable(v.Name, []string{regionDim, monthDim, blDim}, []float64{0})
		h.AddAttribute(v.Name, "long_name", v.LongName)
		h.AddAttribute(v.Name, "units", v.Units)
	}
	for _, v := range binstats.JointVars(p.PrecipUnits) {
		h.AddVariable(v.Name, []string{regionDim, monthDim, subsatDim, capeDim}, []float64{0})
		h.AddAttribute(v.Name, "long_name", v.LongName)
		h.AddAttribute(v.Name, "units", v.Units)
	}

	h.AddAttribute("", "title", "binned convective onset statistics")
	h.AddAttribute("", "regions", strings.Join(p.Regions, ","))
	h.AddAttribute("", "exceedance_threshold", []float64{p.Threshold})
	h.AddAttribute("", "threshold_units", p.PrecipUnits)
	h.AddAttribute("", "author", p.Author)
	h.AddAttribute("", "created", p.CreatedAt.UTC().Format(time.RFC3339))
	h.AddAttribute("", "history", "written by convstats")
	h.Define()

	months := make([]int32, len(p.Months))
	for i, m := range p.Months {
		months[i] = int32(m)
	}
	vars := []struct {
		name string
		data interface{}
	}{
		{monthDim, months},
		{blDim, p.BLEdges},
		{subsatDim, p.SubsatEdges},
		{capeDim, p.CapeEdges},
	}
	for _, v := range binstats.MarginalVars(p.PrecipUnits) {
		vars = append(vars, struct {
			name string
			data interface{}
		}{v.Name, p.Var(v.Name).Elements})
	}
	for _, v := range binstats.JointVars(p.PrecipUnits) {
		vars = append(vars, struct {
			name string
			data interface{}
		}{v.Name, p.Var(v.Name).Elements})
	}

	return writeFile(path, h, vars)
}

// WriteDataset writes gridded input fields to path as a netCDF classic
// file readable by ReadDataset. The fields are stored as float32, the
// convention of the reanalysis-derived inputs.
func WriteDataset(path string, d *grid.Dataset) error {
	epoch := time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)
	hours := make([]float64, len(d.Time))
	for i, t := range d.Time {
		hours[i] = t.Sub(epoch).Hours()
	}

	h := cdf.NewHeader(
		[]string{timeVar, latVar, lonVar},
		[]int{len(d.Time), len(d.Lat), len(d.Lon)},
	)
	h.AddVariable(timeVar, []string{timeVar}, []float64{0})
	h.AddAttribute(timeVar, "units", timeUnits)
	h.AddVariable(latVar, []string{latVar}, []float64{0})
	h.AddAttribute(latVar, "units", "degrees_north")
	h.AddVariable(lonVar, []string{lonVar}, []float64{0})
	h.AddAttribute(lonVar, "units", "degrees_east")

	fields := []struct {
		name  string
		units string
		data  *sparse.DenseArray
	}{
		{blVar, "m/s^2", d.BL},
		{subsatVar, "K", d.Subsat},
		{capeVar, "K", d.Cape},
		{precipVar, d.PrecipUnits, d.Precip},
	}
	for _, fv := range fields {
		h.AddVariable(fv.name, []string{timeVar, latVar, lonVar}, []float32{0})
		h.AddAttribute(fv.name, "units", fv.units)
	}
	h.AddAttribute("", "title", "convective instability input fields")
	h.Define()

	vars := []struct {
		name string
		data interface{}
	}{
		{timeVar, hours},
		{latVar, d.Lat},
		{lonVar, d.Lon},
	}
	for _, fv := range fields {
		vars = append(vars, struct {
			name string
			data interface{}
		}{fv.name, f32(fv.data.Elements)})
	}

	return writeFile(path, h, vars)
}

// ReadProduct loads a product previously written by WriteProduct.
// Provenance attributes are optional; structural problems are errors.
func ReadProduct(path string) (*binstats.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("netcdf: opening %s: %w", path, err)
	}
	defer f.Close()

	ff, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("netcdf: reading %s: %w", path, err)
	}

	p := &binstats.Product{}

	regions, ok := attrString(ff.Header, "", "regions")
	if !ok || regions == "" {
		return nil, fmt.Errorf("netcdf: %s has no regions attribute", path)
	}
	p.Regions = strings.Split(regions, ",")

	monthData, dims, err := readVar(ff, monthDim)
	if err != nil {
		return nil, err
	}
	if len(dims) != 1 {
		return nil, fmt.Errorf("netcdf: coordinate %s has %d dimensions, want 1", monthDim, len(dims))
	}
	p.Months = make([]int, len(monthData))
	for i, m := range monthData {
		p.Months[i] = int(m)
	}

	if p.BLEdges, err = readCoord(ff, blDim); err != nil {
		return nil, err
	}
	if p.SubsatEdges, err = readCoord(ff, subsatDim); err != nil {
		return nil, err
	}
	if p.CapeEdges, err = readCoord(ff, capeDim); err != nil {
		return nil, err
	}

	if th, ok := attrFloat(ff.Header, "", "exceedance_threshold"); ok {
		p.Threshold = th
	}
	if u, ok := attrString(ff.Header, "", "threshold_units"); ok {
		p.PrecipUnits = u
	} else {
		p.PrecipUnits = defaultPrecipUnits
	}
	if a, ok := attrString(ff.Header, "", "author"); ok {
		p.Author = a
	}
	if c, ok := attrString(ff.Header, "", "created"); ok {
		if t, err := time.Parse(time.RFC3339, c); err == nil {
			p.CreatedAt = t
		}
	}

	marginalShape := []int{len(p.Regions), len(p.Months), len(p.BLEdges)}
	jointShape := []int{len(p.Regions), len(p.Months), len(p.SubsatEdges), len(p.CapeEdges)}
	read := func(name string, shape []int) (*sparse.DenseArray, error) {
		data, dims, err := readVar(ff, name)
		if err != nil {
			return nil, err
		}
		if !sameDims(dims, shape) {
			return nil, fmt.Errorf("netcdf: %s has shape %v, want %v", name, dims, shape)
		}
		a := sparse.ZerosDense(dims...)
		copy(a.Elements, data)
		return a, nil
	}
	if p.Q0, err = read("Q0", marginalShape); err != nil {
		return nil, err
	}
	if p.QE, err = read("QE", marginalShape); err != nil {
		return nil, err
	}
	if p.Q1, err = read("Q1", marginalShape); err != nil {
		return nil, err
	}
	if p.Q2, err = read("Q2", marginalShape); err != nil {
		return nil, err
	}
	if p.P0, err = read("P0", jointShape); err != nil {
		return nil, err
	}
	if p.PE, err = read("PE", jointShape); err != nil {
		return nil, err
	}
	if p.P1, err = read("P1", jointShape); err != nil {
		return nil, err
	}
	if p.P2, err = read("P2", jointShape); err != nil {
		return nil, err
	}
	return p, nil
}

// writeFile creates path, writes the defined header, then every variable
// in order.
func writeFile(path string, h *cdf.Header, vars []struct {
	name string
	data interface{}
}) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("netcdf: creating %s: %w", path, err)
	}
	ff, err := cdf.Create(f, h)
	if err != nil {
		f.Close()
		return fmt.Errorf("netcdf: writing header for %s: %w", path, err)
	}
	for _, v := range vars {
		if _, err := ff.Writer(v.name, nil, nil).Write(v.data); err != nil {
			f.Close()
			return fmt.Errorf("netcdf: writing %s: %w", v.name, err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("netcdf: closing %s: %w", path, err)
	}
	return nil
}

func sameDims(got, want []int) bool {
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

func f32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
