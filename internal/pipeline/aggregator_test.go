package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ctessum/sparse"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tropmet/convstats/internal/binstats"
	"github.com/tropmet/convstats/internal/grid"
	"github.com/tropmet/convstats/internal/observability"
	"github.com/tropmet/convstats/internal/pipeline"
)

// --- fixtures ---

var testRegions = []pipeline.Region{
	{Name: "west", Bounds: grid.Bounds{LatMin: -10, LatMax: 10, LonMin: 95, LonMax: 105}},
	{Name: "east", Bounds: grid.Bounds{LatMin: -10, LatMax: 10, LonMin: 105, LonMax: 115}},
}

func testAxis() binstats.Spec {
	return binstats.Spec{Min: 0, Max: 10, Width: 1}
}

func newTestBuilder() *binstats.Builder {
	return binstats.NewBuilder(testAxis(), testAxis(), testAxis(), 0.25, 1)
}

func newTestMetrics() *observability.Metrics {
	// Fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

// makeDataset builds a 2x2x2 dataset where every field value is 5 and the
// precipitation at each point is a distinct power of two, so each
// region-month cell of the product sums to a recognizable value.
func makeDataset(t *testing.T) *grid.Dataset {
	t.Helper()

	times := []time.Time{
		time.Date(2020, time.June, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, time.July, 1, 0, 0, 0, 0, time.UTC),
	}
	lat := []float64{5, -5}
	lon := []float64{100, 110}

	bl := sparse.ZerosDense(2, 2, 2)
	subsat := sparse.ZerosDense(2, 2, 2)
	cape := sparse.ZerosDense(2, 2, 2)
	pr := sparse.ZerosDense(2, 2, 2)
	for it := 0; it < 2; it++ {
		for iy := 0; iy < 2; iy++ {
			for ix := 0; ix < 2; ix++ {
				k := (it*2+iy)*2 + ix
				bl.Elements[k] = 5
				subsat.Elements[k] = 5
				cape.Elements[k] = 5
				pr.Elements[k] = float64(int64(1) << uint(4*ix+2*it+iy))
			}
		}
	}

	d, err := grid.New(times, lat, lon, bl, subsat, cape, pr, "mm/hr")
	require.NoError(t, err)
	return d
}

// --- mocks ---

type failingBuilder struct {
	real   pipeline.RecordBuilder
	failOn int
	calls  int
	err    error
}

func (b *failingBuilder) Build(ctx context.Context, bl, subsat, cape, precip []float64) (*binstats.Record, error) {
	b.calls++
	if b.calls == b.failOn {
		return nil, b.err
	}
	return b.real.Build(ctx, bl, subsat, cape, precip)
}

// --- tests ---

func TestAggregator_Run_HappyPath(t *testing.T) {
	frozen := time.Date(2024, time.April, 26, 15, 0, 0, 0, time.UTC)
	binstats.SetClock(clockwork.NewFakeClockAt(frozen))
	t.Cleanup(func() { binstats.SetClock(nil) })

	d := makeDataset(t)
	agg := pipeline.New(newTestBuilder(), testRegions, []int{6, 7}, "tester", zap.NewNop(), newTestMetrics())

	done, total := agg.Progress()
	assert.Equal(t, 0, done)
	assert.Equal(t, 4, total)

	product, err := agg.Run(context.Background(), d)
	require.NoError(t, err)

	done, total = agg.Progress()
	assert.Equal(t, 4, done)
	assert.Equal(t, 4, total)

	assert.Equal(t, []string{"west", "east"}, product.Regions)
	assert.Equal(t, []int{6, 7}, product.Months)
	assert.Equal(t, "tester", product.Author)
	assert.Equal(t, "mm/hr", product.PrecipUnits)
	assert.True(t, product.CreatedAt.Equal(frozen))

	// Every subset holds two points, all landing in BL bin 5 and joint
	// bin (4,4). The precipitation sums identify the subset.
	cases := []struct {
		region, month int
		sum           float64
	}{
		{region: 0, month: 0, sum: 3},
		{region: 0, month: 1, sum: 12},
		{region: 1, month: 0, sum: 48},
		{region: 1, month: 1, sum: 192},
	}
	for _, tc := range cases {
		assert.Equal(t, 2.0, product.Q0.Get(tc.region, tc.month, 5))
		assert.Equal(t, 2.0, product.QE.Get(tc.region, tc.month, 5))
		assert.Equal(t, tc.sum, product.Q1.Get(tc.region, tc.month, 5))
		assert.Equal(t, 2.0, product.P0.Get(tc.region, tc.month, 4, 4))
		assert.Equal(t, tc.sum, product.P1.Get(tc.region, tc.month, 4, 4))
	}
}

func TestAggregator_Run_MatchesIsolatedBuilds(t *testing.T) {
	frozen := time.Date(2024, time.April, 26, 15, 0, 0, 0, time.UTC)
	binstats.SetClock(clockwork.NewFakeClockAt(frozen))
	t.Cleanup(func() { binstats.SetClock(nil) })

	d := makeDataset(t)
	builder := newTestBuilder()

	agg := pipeline.New(builder, testRegions, []int{6, 7}, "tester", zap.NewNop(), newTestMetrics())
	got, err := agg.Run(context.Background(), d)
	require.NoError(t, err)

	records := make([][]*binstats.Record, len(testRegions))
	for i, region := range testRegions {
		regional := d.SubsetRegion(region.Bounds)
		records[i] = make([]*binstats.Record, 2)
		for j, month := range []time.Month{time.June, time.July} {
			sub := regional.SubsetMonth(month)
			rec, err := builder.Build(context.Background(), sub.BL.Elements, sub.Subsat.Elements, sub.Cape.Elements, sub.Precip.Elements)
			require.NoError(t, err)
			records[i][j] = rec
		}
	}
	want, err := binstats.NewProduct([]string{"west", "east"}, []int{6, 7}, records, "tester", "mm/hr")
	require.NoError(t, err)

	for _, name := range []string{"Q0", "QE", "Q1", "Q2", "P0", "PE", "P1", "P2"} {
		if diff := cmp.Diff(want.Var(name).Elements, got.Var(name).Elements); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestAggregator_Run_EmptyMonthYieldsZeroRecord(t *testing.T) {
	d := makeDataset(t)
	agg := pipeline.New(newTestBuilder(), testRegions, []int{6, 12}, "tester", zap.NewNop(), newTestMetrics())

	product, err := agg.Run(context.Background(), d)
	require.NoError(t, err)

	// December selects nothing; June keeps its points.
	assert.Equal(t, 2.0, product.Q0.Get(0, 0, 5))
	for i := 0; i < 11; i++ {
		assert.Zero(t, product.Q0.Get(0, 1, i))
		assert.Zero(t, product.Q0.Get(1, 1, i))
	}
}

func TestAggregator_Run_BuilderErrorAborts(t *testing.T) {
	d := makeDataset(t)
	boom := errors.New("accumulator exploded")
	fb := &failingBuilder{real: newTestBuilder(), failOn: 3, err: boom}
	agg := pipeline.New(fb, testRegions, []int{6, 7}, "tester", zap.NewNop(), newTestMetrics())

	_, err := agg.Run(context.Background(), d)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "east month 6")

	done, _ := agg.Progress()
	assert.Equal(t, 2, done)
}

func TestAggregator_Run_ContextCancelled(t *testing.T) {
	d := makeDataset(t)
	agg := pipeline.New(newTestBuilder(), testRegions, []int{6, 7}, "tester", zap.NewNop(), newTestMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := agg.Run(ctx, d)
	assert.ErrorIs(t, err, context.Canceled)
}
