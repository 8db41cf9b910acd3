package netcdf

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tropmet/convstats/internal/binstats"
	"github.com/tropmet/convstats/internal/grid"
)

// Field values are dyadic rationals small enough to survive the float32
// storage type exactly, so round trips can assert bitwise equality.
func makeDataset(t *testing.T) *grid.Dataset {
	t.Helper()

	times := []time.Time{
		time.Date(2020, time.June, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, time.July, 1, 6, 0, 0, 0, time.UTC),
	}
	lat := []float64{10, 0, -10}
	lon := []float64{100, 110}

	bl := sparse.ZerosDense(2, 3, 2)
	subsat := sparse.ZerosDense(2, 3, 2)
	cape := sparse.ZerosDense(2, 3, 2)
	pr := sparse.ZerosDense(2, 3, 2)
	for i := range bl.Elements {
		v := float64(i)
		bl.Elements[i] = v / 1024
		subsat.Elements[i] = v / 64
		cape.Elements[i] = v / 32
		pr.Elements[i] = v / 256
	}
	pr.Elements[5] = math.NaN()

	d, err := grid.New(times, lat, lon, bl, subsat, cape, pr, "mm/hr")
	require.NoError(t, err)
	return d
}

func TestDatasetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.nc")
	d := makeDataset(t)

	require.NoError(t, WriteDataset(path, d))

	got, err := ReadDataset(path)
	require.NoError(t, err)

	require.Len(t, got.Time, len(d.Time))
	for i, want := range d.Time {
		assert.True(t, got.Time[i].Equal(want), "time %d is %v, want %v", i, got.Time[i], want)
	}
	assert.Equal(t, d.Lat, got.Lat)
	assert.Equal(t, d.Lon, got.Lon)
	assert.Equal(t, "mm/hr", got.PrecipUnits)

	assert.Equal(t, []int{2, 3, 2}, got.BL.Shape)
	assert.Equal(t, d.BL.Elements, got.BL.Elements)
	assert.Equal(t, d.Subsat.Elements, got.Subsat.Elements)
	assert.Equal(t, d.Cape.Elements, got.Cape.Elements)
	for i, want := range d.Precip.Elements {
		if math.IsNaN(want) {
			assert.True(t, math.IsNaN(got.Precip.Elements[i]), "precip %d should be NaN", i)
			continue
		}
		assert.Equal(t, want, got.Precip.Elements[i], "precip %d", i)
	}
}

func TestProductRoundTrip(t *testing.T) {
	frozen := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	binstats.SetClock(clockwork.NewFakeClockAt(frozen))
	defer binstats.SetClock(nil)

	axis := binstats.Spec{Min: 0, Max: 10, Width: 1}
	b := binstats.NewBuilder(axis, axis, axis, 0.25, 1)
	rec := func(precip float64) *binstats.Record {
		r, err := b.Build(context.Background(), []float64{5}, []float64{5}, []float64{5}, []float64{precip})
		require.NoError(t, err)
		return r
	}
	records := [][]*binstats.Record{
		{rec(1), rec(2)},
		{rec(4), rec(8)},
	}
	p, err := binstats.NewProduct([]string{"wpac", "epac"}, []int{6, 7}, records, "tester", "mm/hr")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "product.nc")
	require.NoError(t, WriteProduct(path, p))

	got, err := ReadProduct(path)
	require.NoError(t, err)

	assert.Equal(t, p.Regions, got.Regions)
	assert.Equal(t, p.Months, got.Months)
	assert.Equal(t, p.BLEdges, got.BLEdges)
	assert.Equal(t, p.SubsatEdges, got.SubsatEdges)
	assert.Equal(t, p.CapeEdges, got.CapeEdges)
	assert.Equal(t, p.Threshold, got.Threshold)
	assert.Equal(t, "mm/hr", got.PrecipUnits)
	assert.Equal(t, "tester", got.Author)
	assert.True(t, got.CreatedAt.Equal(frozen), "created %v, want %v", got.CreatedAt, frozen)

	for _, name := range []string{"Q0", "QE", "Q1", "Q2", "P0", "PE", "P1", "P2"} {
		want := p.Var(name)
		g := got.Var(name)
		require.NotNil(t, g, name)
		assert.Equal(t, want.Shape, g.Shape, name)
		assert.Equal(t, want.Elements, g.Elements, name)
	}
}

func TestReadDatasetPacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packed.nc")

	h := cdf.NewHeader([]string{"time", "lat", "lon"}, []int{1, 1, 2})
	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", "hours since 2000-01-01")
	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	for _, name := range []string{"bl", "subsat", "cape"} {
		h.AddVariable(name, []string{"time", "lat", "lon"}, []float32{0})
	}
	h.AddVariable("pr", []string{"time", "lat", "lon"}, []int16{0})
	h.AddAttribute("pr", "scale_factor", []float64{0.01})
	h.AddAttribute("pr", "add_offset", []float64{5})
	h.AddAttribute("pr", "_FillValue", []int16{-999})
	h.Define()

	f, err := os.Create(path)
	require.NoError(t, err)
	ff, err := cdf.Create(f, h)
	require.NoError(t, err)
	write := func(name string, data interface{}) {
		t.Helper()
		_, err := ff.Writer(name, nil, nil).Write(data)
		require.NoError(t, err)
	}
	write("time", []float64{12})
	write("lat", []float64{0})
	write("lon", []float64{100, 110})
	write("bl", []float32{0, 0})
	write("subsat", []float32{0, 0})
	write("cape", []float32{0, 0})
	write("pr", []int16{100, -999})
	require.NoError(t, f.Close())

	d, err := ReadDataset(path)
	require.NoError(t, err)

	require.Len(t, d.Time, 1)
	assert.True(t, d.Time[0].Equal(time.Date(2000, time.January, 1, 12, 0, 0, 0, time.UTC)))
	assert.InDelta(t, 6.0, d.Precip.Get(0, 0, 0), 1e-12)
	assert.True(t, math.IsNaN(d.Precip.Get(0, 0, 1)), "fill value should read as NaN")
	assert.Equal(t, "mm/hr", d.PrecipUnits)
}

func TestReadDatasetMissingVariable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nopr.nc")

	h := cdf.NewHeader([]string{"time", "lat", "lon"}, []int{1, 1, 2})
	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", timeUnits)
	h.AddVariable("lat", []string{"lat"}, []float64{0})
	h.AddVariable("lon", []string{"lon"}, []float64{0})
	for _, name := range []string{"bl", "subsat", "cape"} {
		h.AddVariable(name, []string{"time", "lat", "lon"}, []float32{0})
	}
	h.Define()

	f, err := os.Create(path)
	require.NoError(t, err)
	ff, err := cdf.Create(f, h)
	require.NoError(t, err)
	write := func(name string, data interface{}) {
		t.Helper()
		_, err := ff.Writer(name, nil, nil).Write(data)
		require.NoError(t, err)
	}
	write("time", []float64{0})
	write("lat", []float64{0})
	write("lon", []float64{100, 110})
	write("bl", []float32{0, 0})
	write("subsat", []float32{0, 0})
	write("cape", []float32{0, 0})
	require.NoError(t, f.Close())

	_, err = ReadDataset(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing variable pr")
}

func TestParseTimeEpoch(t *testing.T) {
	cases := []struct {
		name    string
		units   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "canonical reanalysis units",
			units: "hours since 1900-01-01 00:00:00.0",
			want:  time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:  "date only",
			units: "hours since 2000-01-01",
			want:  time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "unsupported base unit",
			units:   "days since 1900-01-01",
			wantErr: true,
		},
		{
			name:    "unparseable instant",
			units:   "hours since the dawn of time",
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseTimeEpoch(tc.units)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tc.want), "epoch %v, want %v", got, tc.want)
		})
	}
}
