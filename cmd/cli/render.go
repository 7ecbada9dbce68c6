package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"eth-economic-model/internal/analysis"
	"eth-economic-model/internal/engine"
	"eth-economic-model/internal/experiment"
	"eth-economic-model/internal/model"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// renderSummaries prints one table per subset with the final-timestep
// statistics across runs.
func renderSummaries(w io.Writer, out *experiment.Output) {
	res := out.Result
	fmt.Fprintf(w, "Experiment %s: %d subsets x %d runs x %d timesteps in %s\n",
		out.Experiment.Name, res.Subsets, res.Runs, res.Timesteps, out.Duration.Round(time.Millisecond))
	if n := len(res.Failures); n > 0 {
		fmt.Fprintf(w, "%d runs failed:\n", n)
		for _, f := range res.Failures {
			fmt.Fprintf(w, "  %v\n", f)
		}
	}

	for _, s := range out.Summaries {
		t := newTable(w)
		t.SetTitle(fmt.Sprintf("%s (timestep %d, %d runs)", s.Label, s.Timestep, s.Runs))
		t.AppendHeader(table.Row{"Metric", "Mean", "Std", "P05", "P95", "Min", "Max"})
		t.SetColumnConfigs(numericColumns(2, 7))
		for _, name := range analysis.DefaultMetrics {
			st, ok := s.Metrics[name]
			if !ok {
				continue
			}
			t.AppendRow(table.Row{name, num(st.Mean), num(st.StdDev), num(st.P05), num(st.P95), num(st.Min), num(st.Max)})
		}
		t.Render()
	}
}

func numericColumns(from, to int) []table.ColumnConfig {
	var cfgs []table.ColumnConfig
	for i := from; i <= to; i++ {
		cfgs = append(cfgs, table.ColumnConfig{Number: i, Align: text.AlignRight})
	}
	return cfgs
}

func num(v float64) string {
	return fmt.Sprintf("%.4g", v)
}

func formatDefault(v any) string {
	switch d := v.(type) {
	case engine.Process:
		return fmt.Sprintf("%g", d(1, 0))
	case time.Time:
		return d.Format("2006-01-02")
	case model.Stage:
		return d.String()
	default:
		return fmt.Sprint(v)
	}
}
