package process

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Generator draws one sample path of n points from src.
type Generator interface {
	Sample(src rand.Source, n int) []float64
}

// Validator is implemented by generators with checkable settings.
type Validator interface {
	Validate() error
}

// Realize builds runs independent paths of the given number of points.
// Run r draws from seeds.Source(r), so the result depends only on the master seed.
func Realize(gen Generator, seeds SeedSequence, runs, points int) (*Samples, error) {
	if gen == nil {
		return nil, errors.New("generator is nil")
	}
	if runs < 1 {
		return nil, fmt.Errorf("runs must be >= 1, got %d", runs)
	}
	if points < 1 {
		return nil, fmt.Errorf("points must be >= 1, got %d", points)
	}
	if v, ok := gen.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	paths := make([][]float64, runs)
	for r := 1; r <= runs; r++ {
		paths[r-1] = gen.Sample(seeds.Source(r), points)
	}
	return NewSamples(paths)
}

// Constant yields the same value at every epoch.
type Constant struct {
	Value float64
}

func (c Constant) Sample(_ rand.Source, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = c.Value
	}
	return out
}

// BoundedGBM is geometric Brownian motion with per-epoch steps, reflected in
// log space at Min and Max. Drift and Volatility are annualized.
type BoundedGBM struct {
	Start         float64
	Drift         float64
	Volatility    float64
	Min           float64
	Max           float64
	EpochsPerYear float64
}

func (g BoundedGBM) Validate() error {
	switch {
	case g.Min <= 0 || g.Max <= g.Min:
		return fmt.Errorf("bounded gbm: need 0 < min < max, got [%g, %g]", g.Min, g.Max)
	case g.Start < g.Min || g.Start > g.Max:
		return fmt.Errorf("bounded gbm: start %g outside [%g, %g]", g.Start, g.Min, g.Max)
	case g.Volatility < 0:
		return fmt.Errorf("bounded gbm: negative volatility %g", g.Volatility)
	case !finite(g.Start, g.Drift, g.Volatility, g.Min, g.Max, g.EpochsPerYear):
		return fmt.Errorf("bounded gbm: non-finite setting in %+v", g)
	case g.EpochsPerYear <= 0:
		return fmt.Errorf("bounded gbm: epochs per year must be positive")
	}
	return nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (g BoundedGBM) Sample(src rand.Source, n int) []float64 {
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	z := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	dt := 1 / g.EpochsPerYear
	drift := (g.Drift - g.Volatility*g.Volatility/2) * dt
	diffusion := g.Volatility * math.Sqrt(dt)

	lo, hi := math.Log(g.Min), math.Log(g.Max)
	x := math.Log(g.Start)
	out[0] = g.Start
	for i := 1; i < n; i++ {
		x += drift + diffusion*z.Rand()
		x = reflect(x, lo, hi)
		out[i] = math.Exp(x)
	}
	return out
}

// reflect folds x back into [lo, hi] as if mirrored at both bounds.
// Infinite values stick to the bound they overflowed past.
func reflect(x, lo, hi float64) float64 {
	switch {
	case x >= lo && x <= hi:
		return x
	case math.IsNaN(x) || math.IsInf(x, -1):
		return lo
	case math.IsInf(x, 1):
		return hi
	}
	w := hi - lo
	m := math.Mod(x-lo, 2*w)
	if m < 0 {
		m += 2 * w
	}
	if m > w {
		m = 2*w - m
	}
	return math.Min(hi, lo+m)
}

// PoissonArrivals draws the number of new validators per epoch.
type PoissonArrivals struct {
	Rate float64
}

func (p PoissonArrivals) Validate() error {
	if p.Rate < 0 {
		return fmt.Errorf("poisson arrivals: negative rate %g", p.Rate)
	}
	return nil
}

func (p PoissonArrivals) Sample(src rand.Source, n int) []float64 {
	out := make([]float64, n)
	if p.Rate == 0 {
		return out
	}
	d := distuv.Poisson{Lambda: p.Rate, Src: src}
	for i := range out {
		out[i] = d.Rand()
	}
	return out
}

// BetaUptime draws the fraction of validators online per epoch.
type BetaUptime struct {
	Mean          float64
	Concentration float64
	Floor         float64
}

func (b BetaUptime) Validate() error {
	if b.Mean <= 0 || b.Mean >= 1 {
		return fmt.Errorf("beta uptime: mean must be in (0, 1), got %g", b.Mean)
	}
	if b.Concentration <= 0 {
		return fmt.Errorf("beta uptime: concentration must be positive, got %g", b.Concentration)
	}
	if b.Floor < 0 || b.Floor > 1 {
		return fmt.Errorf("beta uptime: floor must be in [0, 1], got %g", b.Floor)
	}
	return nil
}

func (b BetaUptime) Sample(src rand.Source, n int) []float64 {
	d := distuv.Beta{Alpha: b.Mean * b.Concentration, Beta: (1 - b.Mean) * b.Concentration, Src: src}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Max(b.Floor, d.Rand())
	}
	return out
}
