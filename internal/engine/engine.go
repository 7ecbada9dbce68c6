package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Config describes one sweep: every subset runs Runs times for Timesteps steps.
type Config struct {
	Subsets   []Subset
	Runs      int
	Timesteps int
	Blocks    []Block
	Initial   State

	// Seed, when set, adjusts the timestep-0 state of each trajectory from its
	// subset's parameters. Only values change; the schema is fixed.
	Seed func(sub Subset, initial State) (State, error)

	// Template, when set, is used to check parameter references at setup.
	Template *ParameterSet
}

type Engine struct {
	workers int
	log     *logrus.Entry
}

type Option func(*Engine)

// WithWorkers bounds the number of (subset, run) trajectories executed concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		workers: runtime.GOMAXPROCS(0),
		log:     logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.WithField("component", "engine")
	return e
}

func (e *Engine) validate(cfg Config) error {
	if len(cfg.Subsets) == 0 {
		return errors.New("no parameter subsets")
	}
	if cfg.Runs < 1 {
		return fmt.Errorf("runs must be >= 1, got %d", cfg.Runs)
	}
	if cfg.Timesteps < 0 {
		return fmt.Errorf("timesteps must be >= 0, got %d", cfg.Timesteps)
	}
	if cfg.Initial.schema == nil {
		return errors.New("initial state is empty")
	}
	if err := ValidateBlocks(cfg.Blocks, cfg.Initial.schema, cfg.Template); err != nil {
		return err
	}
	// Each subset must bind every parameter a block reads.
	for _, s := range cfg.Subsets {
		for _, b := range cfg.Blocks {
			for _, p := range b.Policies {
				for _, r := range p.Reads {
					if !s.Params.Has(r) {
						return &UnregisteredParameterError{Parameter: r, Referrer: fmt.Sprintf("policy %q in block %q", p.Name, b.Label)}
					}
				}
			}
			for _, u := range b.Variables {
				for _, r := range u.Reads {
					if !s.Params.Has(r) {
						return &UnregisteredParameterError{Parameter: r, Referrer: fmt.Sprintf("update %q in block %q", u.Key, b.Label)}
					}
				}
			}
		}
	}
	return nil
}

type workItem struct {
	subset Subset
	run    int
}

type workResult struct {
	rows    []State
	failure *RunError
}

// Run executes the sweep. Configuration problems are returned before any work
// starts. A failing trajectory is truncated and reported in Result.Failures
// while the rest of the sweep continues. If ctx is cancelled, trajectories stop
// at the next timestep boundary and the partial result is returned with ctx.Err().
func (e *Engine) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := e.validate(cfg); err != nil {
		return nil, err
	}

	items := make([]workItem, 0, len(cfg.Subsets)*cfg.Runs)
	for _, s := range cfg.Subsets {
		for r := 1; r <= cfg.Runs; r++ {
			items = append(items, workItem{subset: s, run: r})
		}
	}

	start := time.Now()
	e.log.WithFields(logrus.Fields{
		"subsets":   len(cfg.Subsets),
		"runs":      cfg.Runs,
		"timesteps": cfg.Timesteps,
		"blocks":    len(cfg.Blocks),
		"workers":   e.workers,
	}).Info("sweep started")

	results := make([]workResult, len(items))
	g := new(errgroup.Group)
	g.SetLimit(e.workers)
	for i, it := range items {
		if ctx.Err() != nil {
			break
		}
		i, it := i, it
		g.Go(func() error {
			rows, failure := e.runTrajectory(ctx, cfg, it)
			results[i] = workResult{rows: rows, failure: failure}
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{
		Subsets:   len(cfg.Subsets),
		Runs:      cfg.Runs,
		Timesteps: cfg.Timesteps,
		Schema:    cfg.Initial.schema,
	}
	for _, r := range results {
		res.Rows = append(res.Rows, r.rows...)
		if r.failure != nil {
			res.Failures = append(res.Failures, r.failure)
		}
	}

	e.log.WithFields(logrus.Fields{
		"rows":     len(res.Rows),
		"failures": len(res.Failures),
		"duration": time.Since(start).String(),
	}).Info("sweep finished")

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (e *Engine) runTrajectory(ctx context.Context, cfg Config, it workItem) ([]State, *RunError) {
	state := cfg.Initial.Clone()
	if cfg.Seed != nil {
		seeded, err := seedState(cfg.Seed, it.subset, state)
		if err != nil {
			rerr := &RunError{Subset: it.subset.Index, Run: it.run, Block: "initial state", Err: err}
			e.log.WithFields(logrus.Fields{
				"subset": rerr.Subset,
				"run":    rerr.Run,
			}).WithError(err).Warn("run failed")
			return nil, rerr
		}
		state = seeded
	}
	state.Subset, state.Run, state.Timestep, state.Substep = it.subset.Index, it.run, 0, 0

	rows := make([]State, 0, cfg.Timesteps+1)
	rows = append(rows, state.Clone())

	for t := 1; t <= cfg.Timesteps; t++ {
		if ctx.Err() != nil {
			return rows, nil
		}
		h := NewHistory(rows)
		for bi, b := range cfg.Blocks {
			next, err := applyBlock(it.subset.Params, bi+1, h, state, b)
			if err != nil {
				rerr := &RunError{Subset: it.subset.Index, Run: it.run, Timestep: t, Block: b.Label, Err: err}
				e.log.WithFields(logrus.Fields{
					"subset":   rerr.Subset,
					"run":      rerr.Run,
					"timestep": rerr.Timestep,
					"block":    rerr.Block,
				}).WithError(err).Warn("run failed")
				return rows, rerr
			}
			state = next
		}
		state.Timestep = t
		rows = append(rows, state.Clone())
	}
	return rows, nil
}

func seedState(seed func(Subset, State) (State, error), sub Subset, initial State) (out State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	out, err = seed(sub, initial)
	if err != nil {
		return State{}, err
	}
	if out.schema != initial.schema {
		return State{}, errors.New("seeded state changed the schema")
	}
	return out, nil
}

// applyBlock runs every policy against prev, merges their signals, evaluates
// every update against the same prev, then applies all updates at once.
func applyBlock(p Params, substep int, h History, prev State, b Block) (next State, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()

	signals := Signals{}
	for _, pol := range b.Policies {
		out, perr := pol.Fn(p, substep, h, prev)
		if perr != nil {
			return State{}, fmt.Errorf("policy %q: %w", pol.Name, perr)
		}
		if merr := signals.Merge(out); merr != nil {
			return State{}, fmt.Errorf("policy %q: %w", pol.Name, merr)
		}
	}

	updates := make(map[string]any, len(b.Variables))
	for _, u := range b.Variables {
		v, uerr := u.Fn(p, substep, h, prev, signals)
		if uerr != nil {
			return State{}, fmt.Errorf("update %q: %w", u.Key, uerr)
		}
		updates[u.Key] = v
	}

	next, err = prev.With(updates)
	if err != nil {
		return State{}, err
	}
	next.Substep = substep
	return next, nil
}
