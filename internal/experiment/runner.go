package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"eth-economic-model/internal/analysis"
	"eth-economic-model/internal/engine"
	"eth-economic-model/internal/model"
	"eth-economic-model/internal/policy"
	"eth-economic-model/internal/postprocess"
	"eth-economic-model/internal/process"
)

// Runner validates, realizes and executes experiments.
type Runner struct {
	Engine *engine.Engine
	Log    *logrus.Entry
}

func NewRunner(eng *engine.Engine, log *logrus.Entry) *Runner {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if eng == nil {
		eng = engine.New(engine.WithLogger(log))
	}
	return &Runner{Engine: eng, Log: log.WithField("component", "experiment")}
}

// Output is everything one experiment run produces.
type Output struct {
	Experiment *Experiment
	Result     *engine.Result
	Table      *postprocess.Table
	Summaries  []analysis.Summary
	Duration   time.Duration
}

// Run executes exp. Setup problems are returned before any trajectory starts.
// Run-level failures are recorded in Output.Result and do not fail the call.
// On cancellation the partial result is returned, without a table, together
// with ctx.Err().
func (r *Runner) Run(ctx context.Context, exp *Experiment) (*Output, error) {
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	set := exp.Parameters.Clone()
	if err := realize(set, exp); err != nil {
		return nil, fmt.Errorf("experiment %q: %w", exp.Name, err)
	}
	subsets, err := engine.Expand(set, exp.Sweep)
	if err != nil {
		return nil, fmt.Errorf("experiment %q: %w", exp.Name, err)
	}
	initial, err := model.InitialState(exp.Initial)
	if err != nil {
		return nil, fmt.Errorf("experiment %q: %w", exp.Name, err)
	}

	log := r.Log.WithFields(logrus.Fields{
		"experiment": exp.Name,
		"seed":       exp.Seed,
		"sweep":      exp.Sweep,
	})
	log.WithField("stochastic", len(exp.Stochastic)).Debug("experiment prepared")

	start := time.Now()
	res, runErr := r.Engine.Run(ctx, engine.Config{
		Subsets:   subsets,
		Runs:      exp.Runs,
		Timesteps: exp.Timesteps,
		Blocks:    policy.Blocks(),
		Initial:   initial,
		Seed:      policy.SeedInitial,
		Template:  set,
	})
	if res == nil {
		return nil, runErr
	}

	out := &Output{Experiment: exp, Result: res, Duration: time.Since(start)}
	if runErr != nil {
		log.WithError(runErr).Warn("experiment interrupted")
		return out, runErr
	}
	out.Table, err = postprocess.Process(res, postprocess.Options{Label: exp.Label})
	if err != nil {
		return out, fmt.Errorf("post-process: %w", err)
	}
	out.Summaries, err = analysis.Summarize(out.Table, analysis.DefaultMetrics)
	if err != nil {
		return out, fmt.Errorf("summarize: %w", err)
	}

	entry := log.WithFields(logrus.Fields{
		"rows":     out.Table.NumRows(),
		"failures": len(res.Failures),
		"duration": out.Duration.String(),
	})
	if len(res.Failures) > 0 {
		entry.Warn("experiment finished with failed runs")
	} else {
		entry.Info("experiment finished")
	}
	return out, nil
}

// realize draws every stochastic input once per run and binds the sample
// paths into set. Paths cover the longest horizon any dt candidate reaches.
func realize(set *engine.ParameterSet, exp *Experiment) error {
	if len(exp.Stochastic) == 0 {
		return nil
	}
	maxDT := 1
	for _, c := range set.Candidates(model.ParamDT) {
		if d, ok := c.(int); ok && d > maxDT {
			maxDT = d
		}
	}
	points := exp.Timesteps*maxDT + 1
	seeds := process.NewSeedSequence(exp.Seed)
	for _, in := range exp.Stochastic {
		samples, err := process.Realize(in.Generator, seeds.Spawn(in.Parameter), exp.Runs, points)
		if err != nil {
			return fmt.Errorf("realize %s: %w", in.Parameter, err)
		}
		if err := set.Override(in.Parameter, samples.Process()); err != nil {
			return err
		}
	}
	return nil
}
