// Package pipeline orchestrates the aggregation run: cut the gridded
// fields into region-month subsets, accumulate binned statistics for each
// subset, and stack the records into a single product.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tropmet/convstats/internal/binstats"
	"github.com/tropmet/convstats/internal/grid"
	"github.com/tropmet/convstats/internal/observability"
)

// RecordBuilder accumulates one subset of points into a statistics record.
type RecordBuilder interface {
	Build(ctx context.Context, bl, subsat, cape, precip []float64) (*binstats.Record, error)
}

// Region pairs a name with its bounding box.
type Region struct {
	Name   string
	Bounds grid.Bounds
}

// Aggregator runs the builder over every region-month subset in the
// configured order. Subsets that select no points contribute zero-valued
// records; any subset failure aborts the whole run.
type Aggregator struct {
	builder RecordBuilder
	regions []Region
	months  []int
	author  string
	logger  *zap.Logger
	metrics *observability.Metrics
	done    atomic.Int64
}

// New creates an Aggregator with the given builder and observability.
func New(builder RecordBuilder, regions []Region, months []int, author string, logger *zap.Logger, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{
		builder: builder,
		regions: regions,
		months:  months,
		author:  author,
		logger:  logger.Named("pipeline"),
		metrics: metrics,
	}
}

// Progress reports completed and total region-month subsets.
func (a *Aggregator) Progress() (done, total int) {
	return int(a.done.Load()), len(a.regions) * len(a.months)
}

// Run aggregates the dataset into a stacked product, visiting regions and
// months in configured order.
func (a *Aggregator) Run(ctx context.Context, d *grid.Dataset) (*binstats.Product, error) {
	a.logger.Info("aggregation started",
		zap.Int("regions", len(a.regions)),
		zap.Int("months", len(a.months)),
		zap.Int("grid_points", d.NumPoints()),
	)
	a.metrics.RunRunning.Set(1)
	defer a.metrics.RunRunning.Set(0)
	start := time.Now()

	names := make([]string, len(a.regions))
	records := make([][]*binstats.Record, len(a.regions))
	for i, region := range a.regions {
		names[i] = region.Name
		regional := d.SubsetRegion(region.Bounds)
		if regional.NumPoints() == 0 {
			a.logger.Warn("region selects no grid points", zap.String("region", region.Name))
		}
		records[i] = make([]*binstats.Record, len(a.months))
		for j, month := range a.months {
			rec, err := a.buildSubset(ctx, regional, region.Name, month)
			if err != nil {
				return nil, fmt.Errorf("aggregating %s month %d: %w", region.Name, month, err)
			}
			records[i][j] = rec
			a.done.Add(1)
			a.metrics.SubsetsCompleted.Inc()
		}
	}

	product, err := binstats.NewProduct(names, a.months, records, a.author, d.PrecipUnits)
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	a.metrics.RunDuration.Observe(elapsed.Seconds())
	a.logger.Info("aggregation finished",
		zap.Duration("elapsed", elapsed),
		zap.Int("subsets", len(a.regions)*len(a.months)),
	)
	return product, nil
}

// buildSubset cuts one month out of a regional subset and accumulates it.
func (a *Aggregator) buildSubset(ctx context.Context, regional *grid.Dataset, region string, month int) (*binstats.Record, error) {
	start := time.Now()
	sub := regional.SubsetMonth(time.Month(month))
	points := sub.NumPoints()
	if points == 0 {
		a.logger.Warn("subset selects no points, its bins stay zero",
			zap.String("region", region),
			zap.Int("month", month),
		)
	}

	rec, err := a.builder.Build(ctx, sub.BL.Elements, sub.Subsat.Elements, sub.Cape.Elements, sub.Precip.Elements)
	if err != nil {
		return nil, err
	}

	tally := rec.Tally
	a.metrics.SubsetPoints.Observe(float64(points))
	a.metrics.SubsetDuration.Observe(time.Since(start).Seconds())
	a.metrics.PointsProcessed.Add(float64(tally.Points))
	a.metrics.PointsExcluded.WithLabelValues("nonfinite_precip").Add(float64(tally.NonFinite))
	a.metrics.PointsExcluded.WithLabelValues("bl_range").Add(float64(tally.Points - tally.NonFinite - tally.InRange1D))
	a.metrics.PointsExcluded.WithLabelValues("joint_range").Add(float64(tally.Points - tally.NonFinite - tally.InRangeJoint))

	a.logger.Debug("subset accumulated",
		zap.String("region", region),
		zap.Int("month", month),
		zap.Int("points", points),
		zap.Int64("in_range_bl", tally.InRange1D),
		zap.Int64("in_range_joint", tally.InRangeJoint),
	)
	return rec, nil
}
