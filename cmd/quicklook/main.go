// Command quicklook renders one region-month slice of a statistics
// product as ASCII charts: conditional mean precipitation and exceedance
// probability per average-buoyancy bin. It is the fast sanity check after
// a run, before the product goes anywhere near a plotting notebook.
//
// Usage:
//
//	go run ./cmd/quicklook -product out/stats.nc -region wpac -month 7
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/guptarohit/asciigraph"

	"github.com/tropmet/convstats/internal/adapter/netcdf"
	"github.com/tropmet/convstats/internal/binstats"
)

func main() {
	product := flag.String("product", "", "path to a statistics product file")
	region := flag.String("region", "", "region name (default: first in file)")
	month := flag.Int("month", 0, "calendar month (default: first in file)")
	width := flag.Int("width", 100, "chart width in columns")
	height := flag.Int("height", 12, "chart height in rows")
	flag.Parse()

	if *product == "" {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(*product, *region, *month, *width, *height); err != nil {
		fmt.Fprintf(os.Stderr, "quicklook: %v\n", err)
		os.Exit(1)
	}
}

func run(path, region string, month, width, height int) error {
	p, err := netcdf.ReadProduct(path)
	if err != nil {
		return err
	}

	ri, err := regionIndex(p, region)
	if err != nil {
		return err
	}
	mi, err := monthIndex(p, month)
	if err != nil {
		return err
	}

	fmt.Printf("%s  region=%s month=%d\n", path, p.Regions[ri], p.Months[mi])
	if p.Author != "" || !p.CreatedAt.IsZero() {
		fmt.Printf("created %s by %s\n", p.CreatedAt.Format(time.RFC3339), p.Author)
	}
	fmt.Printf("threshold %g %s, %d BL bins [%g, %g]\n\n",
		p.Threshold, p.PrecipUnits, len(p.BLEdges), p.BLEdges[0], p.BLEdges[len(p.BLEdges)-1])

	counts := slice1D(p, "Q0", ri, mi)
	sums := slice1D(p, "Q1", ri, mi)
	wets := slice1D(p, "QE", ri, mi)

	lo, hi, ok := populatedRange(counts)
	if !ok {
		fmt.Println("subset is empty, nothing to plot")
		return nil
	}

	mean := make([]float64, 0, hi-lo+1)
	prob := make([]float64, 0, hi-lo+1)
	var total float64
	for i := lo; i <= hi; i++ {
		if counts[i] > 0 {
			mean = append(mean, sums[i]/counts[i])
			prob = append(prob, wets[i]/counts[i])
		} else {
			mean = append(mean, 0)
			prob = append(prob, 0)
		}
		total += counts[i]
	}

	fmt.Println(asciigraph.Plot(mean,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(fmt.Sprintf("conditional mean precip (%s) per BL bin", p.PrecipUnits)),
	))
	fmt.Println()
	fmt.Println(asciigraph.Plot(prob,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(fmt.Sprintf("probability of precip > %g %s", p.Threshold, p.PrecipUnits)),
	))
	fmt.Printf("\n%.0f points in populated bins %d..%d (edges %g to %g)\n",
		total, lo, hi, p.BLEdges[lo], p.BLEdges[hi])
	return nil
}

func regionIndex(p *binstats.Product, name string) (int, error) {
	if name == "" {
		return 0, nil
	}
	for i, r := range p.Regions {
		if r == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("region %q not in product (have %s)", name, strings.Join(p.Regions, ", "))
}

func monthIndex(p *binstats.Product, month int) (int, error) {
	if month == 0 {
		return 0, nil
	}
	for i, m := range p.Months {
		if m == month {
			return i, nil
		}
	}
	return 0, fmt.Errorf("month %d not in product (have %v)", month, p.Months)
}

// slice1D returns the BL-bin vector of one marginal variable for a
// region-month cell.
func slice1D(p *binstats.Product, name string, ri, mi int) []float64 {
	a := p.Var(name)
	n := a.Shape[2]
	off := (ri*len(p.Months) + mi) * n
	return a.Elements[off : off+n]
}

func populatedRange(counts []float64) (lo, hi int, ok bool) {
	lo, hi = -1, -1
	for i, c := range counts {
		if c > 0 {
			if lo < 0 {
				lo = i
			}
			hi = i
		}
	}
	return lo, hi, lo >= 0
}
