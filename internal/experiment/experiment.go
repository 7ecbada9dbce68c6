// Package experiment bundles parameter templates, stochastic inputs and run
// settings into named, runnable experiments.
package experiment

import (
	"errors"
	"fmt"

	"eth-economic-model/internal/engine"
	"eth-economic-model/internal/model"
	"eth-economic-model/internal/process"
)

// StochasticInput binds a process parameter to a generator. The path is
// realized once per run at setup from the experiment seed.
type StochasticInput struct {
	Parameter string
	Generator process.Generator
}

type Experiment struct {
	Name        string
	Description string

	Parameters *engine.ParameterSet
	Sweep      engine.SweepMode
	Runs       int
	Timesteps  int
	Seed       uint64

	Initial    model.InitialOptions
	Stochastic []StochasticInput

	// Labels name each subset in emission order. Optional.
	Labels []string
}

// Clone returns a copy whose parameter set can be modified independently.
func (e *Experiment) Clone() *Experiment {
	out := *e
	if e.Parameters != nil {
		out.Parameters = e.Parameters.Clone()
	}
	out.Stochastic = append([]StochasticInput(nil), e.Stochastic...)
	out.Labels = append([]string(nil), e.Labels...)
	return &out
}

func (e *Experiment) Validate() error {
	if e == nil {
		return errors.New("experiment is nil")
	}
	if e.Parameters == nil {
		return fmt.Errorf("experiment %q: no parameters", e.Name)
	}
	if _, err := engine.ParseSweepMode(string(e.Sweep)); err != nil {
		return fmt.Errorf("experiment %q: %w", e.Name, err)
	}
	if e.Runs < 1 {
		return fmt.Errorf("experiment %q: runs must be >= 1", e.Name)
	}
	if e.Timesteps < 0 {
		return fmt.Errorf("experiment %q: timesteps must be >= 0", e.Name)
	}
	for _, s := range e.Stochastic {
		spec, ok := model.Lookup(s.Parameter)
		if !ok || !e.Parameters.Has(s.Parameter) {
			return &engine.UnregisteredParameterError{Parameter: s.Parameter, Referrer: "stochastic input"}
		}
		if spec.Kind != model.KindProcess {
			return fmt.Errorf("experiment %q: %s is not a process parameter", e.Name, s.Parameter)
		}
		if s.Generator == nil {
			return fmt.Errorf("experiment %q: %s has no generator", e.Name, s.Parameter)
		}
	}
	if err := model.ValidateParameterSet(e.Parameters); err != nil {
		return fmt.Errorf("experiment %q: %w", e.Name, err)
	}
	if len(e.Labels) > 0 {
		n, err := engine.SubsetCount(e.Parameters, e.Sweep)
		if err != nil {
			return fmt.Errorf("experiment %q: %w", e.Name, err)
		}
		if n != len(e.Labels) {
			return fmt.Errorf("experiment %q: %d labels for %d subsets", e.Name, len(e.Labels), n)
		}
	}
	return nil
}

// Label returns the subset label, or a generic one.
func (e *Experiment) Label(subset int) string {
	if subset >= 0 && subset < len(e.Labels) {
		return e.Labels[subset]
	}
	return fmt.Sprintf("subset %d", subset)
}

// Overrides are run settings supplied by configuration or a request.
// Zero values leave the experiment unchanged.
type Overrides struct {
	Runs       int
	Timesteps  int
	Seed       *uint64
	Sweep      engine.SweepMode
	Parameters map[string][]any
	Initial    model.InitialOptions
}

// Apply mutates e with o. Overriding a parameter with a stochastic input
// removes that input, and changing the sweep shape drops the subset labels.
func (e *Experiment) Apply(o Overrides) error {
	if o.Runs != 0 {
		e.Runs = o.Runs
	}
	if o.Timesteps != 0 {
		e.Timesteps = o.Timesteps
	}
	if o.Seed != nil {
		e.Seed = *o.Seed
	}
	if o.Sweep != "" {
		mode, err := engine.ParseSweepMode(string(o.Sweep))
		if err != nil {
			return err
		}
		e.Sweep = mode
	}
	if len(o.Parameters) > 0 {
		if err := model.ApplyOverrides(e.Parameters, o.Parameters); err != nil {
			return err
		}
		kept := e.Stochastic[:0]
		for _, s := range e.Stochastic {
			if _, overridden := o.Parameters[s.Parameter]; !overridden {
				kept = append(kept, s)
			}
		}
		e.Stochastic = kept
		if n, err := engine.SubsetCount(e.Parameters, e.Sweep); err != nil || n != len(e.Labels) {
			e.Labels = nil
		}
	}
	e.Initial = e.Initial.Overlay(o.Initial)
	return nil
}
