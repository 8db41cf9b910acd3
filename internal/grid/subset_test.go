package grid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubsetRegion(t *testing.T) {
	d := makeDataset(t)

	t.Run("inclusive interior box", func(t *testing.T) {
		s := d.SubsetRegion(Bounds{LatMin: -5, LatMax: 5, LonMin: 110, LonMax: 130})

		assert.Equal(t, []float64{5, -5}, s.Lat)
		assert.Equal(t, []float64{110, 120, 130}, s.Lon)
		assert.Equal(t, []int{2, 2, 3}, s.BL.Shape)
		// Lat rows 1 and 2, lon columns 1..3 of the encoded positions.
		assert.Equal(t, 11.0, s.BL.Get(0, 0, 0))
		assert.Equal(t, 23.0, s.BL.Get(0, 1, 2))
		assert.Equal(t, 123.0, s.BL.Get(1, 1, 2))
		// Companion fields ride along with their own scale.
		assert.Equal(t, 2*11.0, s.Subsat.Get(0, 0, 0))
		assert.Equal(t, 4*123.0, s.Precip.Get(1, 1, 2))
		assert.Equal(t, "mm/hr", s.PrecipUnits)
	})

	t.Run("descending latitude order is preserved", func(t *testing.T) {
		s := d.SubsetRegion(Bounds{LatMin: -20, LatMax: 20, LonMin: 100, LonMax: 140})

		assert.Equal(t, []float64{15, 5, -5, -15}, s.Lat)
		assert.Equal(t, d.BL.Elements, s.BL.Elements)
	})

	t.Run("empty selection", func(t *testing.T) {
		s := d.SubsetRegion(Bounds{LatMin: 50, LatMax: 60, LonMin: 100, LonMax: 140})

		assert.Empty(t, s.Lat)
		assert.Equal(t, 0, s.NumPoints())
		assert.Empty(t, s.BL.Elements)
	})
}

func TestSubsetMonth(t *testing.T) {
	d := makeDataset(t)

	t.Run("single matching step", func(t *testing.T) {
		s := d.SubsetMonth(time.June)

		require.Len(t, s.Time, 1)
		assert.Equal(t, time.June, s.Time[0].Month())
		assert.Equal(t, []int{1, 4, 5}, s.BL.Shape)
		assert.Equal(t, d.BL.Elements[:20], s.BL.Elements)
		assert.Equal(t, d.Precip.Elements[:20], s.Precip.Elements)
	})

	t.Run("other month picks the second step", func(t *testing.T) {
		s := d.SubsetMonth(time.July)

		require.Len(t, s.Time, 1)
		assert.Equal(t, d.BL.Elements[20:], s.BL.Elements)
	})

	t.Run("absent month yields zero points", func(t *testing.T) {
		s := d.SubsetMonth(time.December)

		assert.Empty(t, s.Time)
		assert.Equal(t, 0, s.NumPoints())
		assert.Empty(t, s.BL.Elements)
	})
}

func TestSubsetComposition(t *testing.T) {
	d := makeDataset(t)

	s := d.SubsetRegion(Bounds{LatMin: -5, LatMax: 5, LonMin: 110, LonMax: 130}).SubsetMonth(time.July)

	require.Equal(t, []int{1, 2, 3}, s.BL.Shape)
	assert.Equal(t, 111.0, s.BL.Get(0, 0, 0))
	assert.Equal(t, 123.0, s.BL.Get(0, 1, 2))
}
