// Command gensynth generates a synthetic gridded input file for exercising
// the aggregation without reanalysis data. The fields follow the expected
// physical relationships: average buoyancy is a weighted combination of the
// two instability measures, and precipitation picks up sharply once the
// buoyancy crosses a notional onset, with a sprinkling of missing values.
//
// Usage:
//
//	go run ./cmd/gensynth -out testdata/synth.nc -months 2 -steps 8 -seed 7
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/ctessum/sparse"

	"github.com/tropmet/convstats/internal/adapter/netcdf"
	"github.com/tropmet/convstats/internal/grid"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the synthetic netCDF file")
	start := flag.String("start", "2020-01", "first month, formatted YYYY-MM")
	months := flag.Int("months", 2, "number of consecutive months")
	steps := flag.Int("steps", 8, "six-hourly time steps per month")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	first, err := time.Parse("2006-01", *start)
	if err != nil {
		return fmt.Errorf("parsing -start: %w", err)
	}

	d, err := synthesize(first, *months, *steps, rand.New(rand.NewSource(*seed)))
	if err != nil {
		return err
	}

	if err := netcdf.WriteDataset(*out, d); err != nil {
		return err
	}
	log.Printf("wrote %s: %d times x %d lat x %d lon", *out, len(d.Time), len(d.Lat), len(d.Lon))

	printStats(d)
	return nil
}

// synthesize builds the tropical-band grid and fills the four fields.
func synthesize(first time.Time, months, steps int, rng *rand.Rand) (*grid.Dataset, error) {
	var times []time.Time
	for m := 0; m < months; m++ {
		monthStart := first.AddDate(0, m, 0)
		for s := 0; s < steps; s++ {
			times = append(times, monthStart.Add(time.Duration(s)*6*time.Hour))
		}
	}

	// 2.5-degree warm-pool band, latitudes descending as in the
	// reanalysis files.
	var lat []float64
	for v := 20.0; v >= -20.0; v -= 2.5 {
		lat = append(lat, v)
	}
	var lon []float64
	for v := 60.0; v <= 180.0; v += 2.5 {
		lon = append(lon, v)
	}

	nt, ny, nx := len(times), len(lat), len(lon)
	bl := sparse.ZerosDense(nt, ny, nx)
	subsat := sparse.ZerosDense(nt, ny, nx)
	cape := sparse.ZerosDense(nt, ny, nx)
	pr := sparse.ZerosDense(nt, ny, nx)

	for k := range bl.Elements {
		s := 40 * rng.Float64()        // subsaturation, K
		c := -20 + 30*rng.Float64()    // undilute buoyancy excess, K
		b := 9.8 * (0.35*c - 0.65*s) / 550

		p := 0.0
		if excess := b + 0.1; excess > 0 {
			p = 400 * excess * excess * (0.5 + rng.Float64())
		}
		if rng.Float64() < 0.01 {
			p = math.NaN() // missing observation
		}

		subsat.Elements[k] = s
		cape.Elements[k] = c
		bl.Elements[k] = b
		pr.Elements[k] = p
	}

	return grid.New(times, lat, lon, bl, subsat, cape, pr, "mm/hr")
}

func printStats(d *grid.Dataset) {
	var missing, wet int
	minBL, maxBL := math.Inf(1), math.Inf(-1)
	for k, p := range d.Precip.Elements {
		if math.IsNaN(p) {
			missing++
		} else if p > 0.25 {
			wet++
		}
		b := d.BL.Elements[k]
		minBL = math.Min(minBL, b)
		maxBL = math.Max(maxBL, b)
	}

	total := d.NumPoints()
	fmt.Println("\n=== Synthetic field summary ===")
	fmt.Printf("Points: %d\n", total)
	fmt.Printf("Missing precip: %d (%.2f%%)\n", missing, 100*float64(missing)/float64(total))
	fmt.Printf("Precipitating (>0.25 mm/hr): %d (%.2f%%)\n", wet, 100*float64(wet)/float64(total))
	fmt.Printf("BL range: [%.4f, %.4f] m/s^2\n", minBL, maxBL)
}
