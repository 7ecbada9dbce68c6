// Package analysis reduces Monte Carlo trajectories to per-subset statistics.
package analysis

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"eth-economic-model/internal/postprocess"
)

// DefaultMetrics are the final-timestep columns summarized for every experiment.
var DefaultMetrics = []string{
	"eth_supply",
	"eth_staked_pct",
	"number_of_active_validators",
	"supply_inflation_pct",
	"total_revenue_yields_pct",
	"total_profit_yields_pct",
	"cumulative_total_network_issuance_eth",
	"cumulative_total_profit",
}

// Stat describes one metric across runs.
type Stat struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P05    float64 `json:"p05"`
	P95    float64 `json:"p95"`
}

// Summary is the state of one subset at its final timestep.
type Summary struct {
	Subset   int             `json:"subset"`
	Label    string          `json:"label"`
	Timestep int             `json:"timestep"`
	Runs     int             `json:"runs"`
	Metrics  map[string]Stat `json:"metrics"`
}

// Summarize computes per-subset statistics over the last row of every run
// that reached the subset's final timestep. Truncated runs are skipped.
func Summarize(t *postprocess.Table, metrics []string) ([]Summary, error) {
	subsets, runs, steps := t.Ints("subset"), t.Ints("run"), t.Ints("timestep")
	if subsets == nil || runs == nil || steps == nil {
		return nil, fmt.Errorf("table lacks index columns")
	}
	labels := t.Strings("subset_label")
	cols := make([][]float64, len(metrics))
	for i, m := range metrics {
		c, ok := t.Column(m)
		if !ok {
			return nil, fmt.Errorf("unknown metric %q", m)
		}
		switch c.Kind {
		case postprocess.Float:
			cols[i] = c.Floats
		case postprocess.Int:
			cols[i] = make([]float64, len(c.Ints))
			for j, v := range c.Ints {
				cols[i][j] = float64(v)
			}
		default:
			return nil, fmt.Errorf("metric %q is not numeric", m)
		}
	}

	type key struct{ subset, run int64 }
	last := map[key]int{}
	final := map[int64]int64{}
	for i := range subsets {
		k := key{subsets[i], runs[i]}
		if j, ok := last[k]; !ok || steps[i] > steps[j] {
			last[k] = i
		}
		if steps[i] > final[subsets[i]] {
			final[subsets[i]] = steps[i]
		}
	}

	rowsBySubset := map[int64][]int{}
	for k, i := range last {
		if steps[i] == final[k.subset] {
			rowsBySubset[k.subset] = append(rowsBySubset[k.subset], i)
		}
	}

	out := make([]Summary, 0, len(rowsBySubset))
	for subset, rows := range rowsBySubset {
		sort.Ints(rows)
		s := Summary{
			Subset:   int(subset),
			Timestep: int(final[subset]),
			Runs:     len(rows),
			Metrics:  make(map[string]Stat, len(metrics)),
		}
		if labels != nil {
			s.Label = labels[rows[0]]
		}
		for i, m := range metrics {
			x := make([]float64, len(rows))
			for j, r := range rows {
				x[j] = cols[i][r]
			}
			s.Metrics[m] = describe(x)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subset < out[j].Subset })
	return out, nil
}

func describe(x []float64) Stat {
	sort.Float64s(x)
	s := Stat{
		Mean: stat.Mean(x, nil),
		Min:  x[0],
		Max:  x[len(x)-1],
		P05:  stat.Quantile(0.05, stat.LinInterp, x, nil),
		P95:  stat.Quantile(0.95, stat.LinInterp, x, nil),
	}
	if len(x) > 1 {
		s.StdDev = stat.StdDev(x, nil)
	}
	if math.IsNaN(s.StdDev) {
		s.StdDev = 0
	}
	return s
}
