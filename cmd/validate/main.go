// Command validate checks a binned statistics product file for internal
// consistency: axis structure, bin-level accumulator invariants, and, when
// the run configuration is supplied, a full recount from the input fields.
//
// Usage:
//
//	go run ./cmd/validate -product data/stats.nc
//	go run ./cmd/validate -product data/stats.nc -config config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"slices"

	"go.uber.org/zap"

	"github.com/tropmet/convstats/internal/adapter/netcdf"
	"github.com/tropmet/convstats/internal/binstats"
	"github.com/tropmet/convstats/internal/config"
	"github.com/tropmet/convstats/internal/grid"
	"github.com/tropmet/convstats/internal/observability"
	"github.com/tropmet/convstats/internal/pipeline"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	product := flag.String("product", "", "path to the binned statistics product netCDF file")
	configPath := flag.String("config", "", "optional run configuration; enables the recount phase")
	flag.Parse()

	if *product == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*product, *configPath); code != 0 {
		os.Exit(code)
	}
}

func run(productPath, configPath string) int {
	prod, err := netcdf.ReadProduct(productPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read product: %v\n", err)
		return 1
	}

	fmt.Println("=== Binned Statistics Product Validation ===")
	fmt.Println()
	fmt.Printf("Product: %d regions x %d months, %d BL bins, %d x %d joint bins\n",
		len(prod.Regions), len(prod.Months), len(prod.BLEdges), len(prod.SubsatEdges), len(prod.CapeEdges))

	// ── Run validation phases ──
	phases := []*phase{
		validateStructure(prod),
		validateAccumulators(prod),
	}
	if configPath != "" {
		phases = append(phases, validateRecount(prod, configPath))
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-46s %s\n", p.name, status)
	}

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Structure ──
// Validates the bin axes and product metadata.

func validateStructure(prod *binstats.Product) *phase {
	p := &phase{name: "Phase 1: Structure (axes and metadata)"}

	checkAxis(p, "bl", prod.BLEdges)
	checkAxis(p, "subsat", prod.SubsatEdges)
	checkAxis(p, "cape", prod.CapeEdges)

	if len(prod.Regions) == 0 {
		p.errorf("product has no regions")
	}
	seenRegion := map[string]bool{}
	for i, name := range prod.Regions {
		if name == "" {
			p.errorf("region %d has an empty name", i)
		}
		if seenRegion[name] {
			p.errorf("duplicate region %q", name)
		}
		seenRegion[name] = true
	}

	if len(prod.Months) == 0 {
		p.errorf("product has no months")
	}
	seenMonth := map[int]bool{}
	for _, m := range prod.Months {
		if m < 1 || m > 12 {
			p.errorf("month %d out of range 1..12", m)
		}
		if seenMonth[m] {
			p.errorf("duplicate month %d", m)
		}
		seenMonth[m] = true
	}

	if prod.Threshold < 0 {
		p.errorf("negative exceedance threshold %g", prod.Threshold)
	}
	if prod.CreatedAt.IsZero() {
		p.errorf("created timestamp missing")
	}
	return p
}

// checkAxis verifies an edge vector is ascending with a uniform step.
func checkAxis(p *phase, name string, edges []float64) {
	if len(edges) < 2 {
		p.errorf("%s axis has %d edges, need at least 2", name, len(edges))
		return
	}
	width := edges[1] - edges[0]
	if width <= 0 {
		p.errorf("%s axis is not ascending (first step %g)", name, width)
		return
	}
	for i := 2; i < len(edges); i++ {
		step := edges[i] - edges[i-1]
		if math.Abs(step-width) > floatSlack(width) {
			p.errorf("%s axis step %d is %g, want %g", name, i, step, width)
		}
	}
}

// ── Phase 2: Accumulator Consistency ──
// Validates the bin-level relationships between the count and sum arrays.

func validateAccumulators(prod *binstats.Product) *phase {
	p := &phase{name: "Phase 2: Accumulator Consistency (bin invariants)"}

	checkMarginal(p, prod)
	checkJoint(p, prod)

	return p
}

func checkMarginal(p *phase, prod *binstats.Product) {
	q0, qe := prod.Q0.Elements, prod.QE.Elements
	q1, q2 := prod.Q1.Elements, prod.Q2.Elements
	for i := range q0 {
		label := marginalLabel(prod, i)
		checkFamily(p, label, prod.Threshold, q0[i], qe[i], q1[i], q2[i])
	}
}

func checkJoint(p *phase, prod *binstats.Product) {
	p0, pe := prod.P0.Elements, prod.PE.Elements
	p1, p2 := prod.P1.Elements, prod.P2.Elements
	for i := range p0 {
		label := jointLabel(prod, i)
		checkFamily(p, label, prod.Threshold, p0[i], pe[i], p1[i], p2[i])
	}
}

// checkFamily applies the shared invariants of one count/exceedance/sum/
// sum-of-squares bin family.
func checkFamily(p *phase, label string, threshold, n, ne, s1, s2 float64) {
	checkCount(p, label, "count", n)
	checkCount(p, label, "exceedance count", ne)

	if ne > n {
		p.errorf("%s: exceedance count %g exceeds count %g", label, ne, n)
	}
	if n == 0 {
		if ne != 0 || s1 != 0 || s2 != 0 {
			p.errorf("%s: empty bin has nonzero sums", label)
		}
		return
	}
	if s1 < 0 || s2 < 0 {
		p.errorf("%s: negative sum (%g, %g)", label, s1, s2)
	}
	if s1+floatSlack(s1) < threshold*ne {
		p.errorf("%s: sum %g below threshold*exceedances %g", label, s1, threshold*ne)
	}
	// Cauchy-Schwarz: n non-negative values with sum s1 cannot have a sum
	// of squares below s1^2/n.
	if n*s2+floatSlack(n*s2) < s1*s1 {
		p.errorf("%s: sum of squares %g too small for sum %g over %g points", label, s2, s1, n)
	}
}

func checkCount(p *phase, label, what string, v float64) {
	if v < 0 {
		p.errorf("%s: negative %s %g", label, what, v)
	}
	if v != math.Trunc(v) {
		p.errorf("%s: non-integral %s %g", label, what, v)
	}
}

func marginalLabel(prod *binstats.Product, i int) string {
	nm, nb := len(prod.Months), len(prod.BLEdges)
	r := i / (nm * nb)
	m := i / nb % nm
	b := i % nb
	return fmt.Sprintf("%s month %d bl bin %d", prod.Regions[r], prod.Months[m], b)
}

func jointLabel(prod *binstats.Product, i int) string {
	nm, ns, nc := len(prod.Months), len(prod.SubsatEdges), len(prod.CapeEdges)
	r := i / (nm * ns * nc)
	m := i / (ns * nc) % nm
	a := i / nc % ns
	c := i % nc
	return fmt.Sprintf("%s month %d joint bin (%d,%d)", prod.Regions[r], prod.Months[m], a, c)
}

// ── Phase 3: Recount ──
// Re-runs the aggregation from the configured input fields and compares
// every bin of every variable against the product file.

func validateRecount(prod *binstats.Product, configPath string) *phase {
	p := &phase{name: "Phase 3: Recount (product vs input fields)"}

	cfg, err := config.Load(configPath)
	if err != nil {
		p.errorf("load config: %v", err)
		return p
	}

	names := make([]string, len(cfg.Regions))
	regions := make([]pipeline.Region, len(cfg.Regions))
	for i, r := range cfg.Regions {
		names[i] = r.Name
		regions[i] = pipeline.Region{
			Name:   r.Name,
			Bounds: grid.Bounds{LatMin: r.LatMin, LatMax: r.LatMax, LonMin: r.LonMin, LonMax: r.LonMax},
		}
	}
	if !slices.Equal(names, prod.Regions) {
		p.errorf("config regions %v do not match product regions %v", names, prod.Regions)
		return p
	}
	if !slices.Equal(cfg.Months, prod.Months) {
		p.errorf("config months %v do not match product months %v", cfg.Months, prod.Months)
		return p
	}
	if math.Abs(cfg.Threshold-prod.Threshold) > floatSlack(prod.Threshold) {
		p.errorf("config threshold %g does not match product threshold %g", cfg.Threshold, prod.Threshold)
		return p
	}

	d, err := netcdf.ReadDataset(cfg.Input)
	if err != nil {
		p.errorf("read input fields: %v", err)
		return p
	}

	builder := binstats.NewBuilder(
		binSpec(cfg.Bins.BL), binSpec(cfg.Bins.Subsat), binSpec(cfg.Bins.Cape),
		cfg.Threshold, cfg.Workers,
	)
	agg := pipeline.New(builder, regions, cfg.Months, cfg.Author, zap.NewNop(), observability.NewMetrics())
	want, err := agg.Run(context.Background(), d)
	if err != nil {
		p.errorf("recount: %v", err)
		return p
	}

	for _, name := range []string{"Q0", "QE", "Q1", "Q2", "P0", "PE", "P1", "P2"} {
		compareArray(p, name, want.Var(name).Elements, prod.Var(name).Elements)
	}
	return p
}

// compareArray reports elementwise mismatches, capping the detail at five
// per variable.
func compareArray(p *phase, name string, want, got []float64) {
	if len(want) != len(got) {
		p.errorf("%s: recount has %d values, product has %d", name, len(want), len(got))
		return
	}
	bad := 0
	for i, w := range want {
		g := got[i]
		if math.Abs(w-g) > floatSlack(math.Max(math.Abs(w), math.Abs(g))) {
			bad++
			if bad <= 5 {
				p.errorf("%s[%d]: product %g, recount %g", name, i, g, w)
			}
		}
	}
	if bad > 5 {
		p.errorf("%s: %d further mismatches suppressed", name, bad-5)
	}
}

// ── Helpers ──

func floatSlack(x float64) float64 {
	return 1e-9 * math.Max(1, math.Abs(x))
}

func binSpec(b config.BinConfig) binstats.Spec {
	return binstats.Spec{Min: b.Min, Max: b.Max, Width: b.Width}
}
