package engine

import (
	"errors"
)

// Result is the trajectory table of one sweep.
// Rows are ordered by (subset, run, timestep) regardless of worker scheduling.
type Result struct {
	Rows     []State
	Failures []*RunError

	Subsets   int
	Runs      int
	Timesteps int

	Schema *Schema
}

// Healthy reports whether every trajectory ran to completion.
func (r *Result) Healthy() bool {
	return len(r.Failures) == 0 && len(r.Rows) == r.Subsets*r.Runs*(r.Timesteps+1)
}

// Err joins all run-level failures, or returns nil.
func (r *Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Failed reports whether the given trajectory recorded a failure.
func (r *Result) Failed(subset, run int) bool {
	for _, f := range r.Failures {
		if f.Subset == subset && f.Run == run {
			return true
		}
	}
	return false
}

// Trajectory returns the rows of one (subset, run) pair in timestep order.
func (r *Result) Trajectory(subset, run int) []State {
	var out []State
	for _, row := range r.Rows {
		if row.Subset == subset && row.Run == run {
			out = append(out, row)
		}
	}
	return out
}

// Final returns the last recorded row of one trajectory.
func (r *Result) Final(subset, run int) (State, bool) {
	t := r.Trajectory(subset, run)
	if len(t) == 0 {
		return State{}, false
	}
	return t[len(t)-1], true
}

func (r *Result) Filter(subset int) []State {
	var out []State
	for _, row := range r.Rows {
		if row.Subset == subset {
			out = append(out, row)
		}
	}
	return out
}

// Records flattens the rows into plain maps with index columns included.
func (r *Result) Records() []map[string]any {
	out := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		m := row.Map()
		m["subset"] = row.Subset
		m["run"] = row.Run
		m["timestep"] = row.Timestep
		m["substep"] = row.Substep
		out = append(out, m)
	}
	return out
}
