package engine

import (
	"fmt"
	"sort"
	"time"
)

// Process is a stochastic or time-varying parameter value.
// run is 1-indexed; epoch is the elapsed epoch offset (timestep * dt).
// It must be deterministic for a given (run, epoch).
type Process func(run int, epoch int) float64

// ConstantProcess returns a Process that always yields v.
func ConstantProcess(v float64) Process {
	return func(int, int) float64 { return v }
}

// ParameterSet is a sweep template: each declared parameter holds one or more
// candidate values. Declaration order is preserved and drives subset ordering.
type ParameterSet struct {
	names  []string
	values map[string][]any
}

func NewParameterSet() *ParameterSet {
	return &ParameterSet{values: map[string][]any{}}
}

// Declare sets the candidates for name. Redeclaring keeps the original position.
func (s *ParameterSet) Declare(name string, candidates ...any) *ParameterSet {
	if _, ok := s.values[name]; !ok {
		s.names = append(s.names, name)
	}
	s.values[name] = append([]any(nil), candidates...)
	return s
}

// Override replaces the candidates of an already declared parameter.
func (s *ParameterSet) Override(name string, candidates ...any) error {
	if _, ok := s.values[name]; !ok {
		return &UnregisteredParameterError{Parameter: name, Referrer: "override"}
	}
	if len(candidates) == 0 {
		return fmt.Errorf("parameter %q: override needs at least one candidate", name)
	}
	s.values[name] = append([]any(nil), candidates...)
	return nil
}

func (s *ParameterSet) Has(name string) bool {
	_, ok := s.values[name]
	return ok
}

func (s *ParameterSet) Names() []string {
	return append([]string(nil), s.names...)
}

func (s *ParameterSet) Candidates(name string) []any {
	return append([]any(nil), s.values[name]...)
}

func (s *ParameterSet) Len() int { return len(s.names) }

func (s *ParameterSet) Clone() *ParameterSet {
	out := NewParameterSet()
	for _, n := range s.names {
		out.Declare(n, s.values[n]...)
	}
	return out
}

// Validate checks that every declared parameter has at least one candidate.
func (s *ParameterSet) Validate() error {
	for _, n := range s.names {
		if len(s.values[n]) == 0 {
			return fmt.Errorf("parameter %q has no candidate values", n)
		}
	}
	return nil
}

// Params is one concrete parameter binding: exactly one value per key.
// Accessors panic with *ParameterError on a missing key or a type mismatch;
// the engine recovers those panics into run-level errors.
type Params struct {
	values map[string]any
}

// NewParams builds a concrete binding, mostly useful in tests.
func NewParams(values map[string]any) Params {
	cp := make(map[string]any, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Params{values: cp}
}

func (p Params) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

func (p Params) Names() []string {
	out := make([]string, 0, len(p.values))
	for k := range p.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (p Params) Value(name string) any {
	v, ok := p.values[name]
	if !ok {
		panic(&ParameterError{Parameter: name, Reason: "not bound"})
	}
	return v
}

// With returns a copy of p with name bound to v.
func (p Params) With(name string, v any) Params {
	cp := make(map[string]any, len(p.values)+1)
	for k, x := range p.values {
		cp[k] = x
	}
	cp[name] = v
	return Params{values: cp}
}

func (p Params) Float(name string) float64 {
	switch x := p.Value(name).(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	}
	panic(&ParameterError{Parameter: name, Reason: fmt.Sprintf("want number, have %T", p.values[name])})
}

func (p Params) Int(name string) int {
	switch x := p.Value(name).(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		if x == float64(int(x)) {
			return int(x)
		}
	}
	panic(&ParameterError{Parameter: name, Reason: fmt.Sprintf("want integer, have %T", p.values[name])})
}

func (p Params) Bool(name string) bool {
	if b, ok := p.Value(name).(bool); ok {
		return b
	}
	panic(&ParameterError{Parameter: name, Reason: fmt.Sprintf("want bool, have %T", p.values[name])})
}

func (p Params) String(name string) string {
	switch x := p.Value(name).(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	}
	panic(&ParameterError{Parameter: name, Reason: fmt.Sprintf("want string, have %T", p.values[name])})
}

func (p Params) Time(name string) time.Time {
	if t, ok := p.Value(name).(time.Time); ok {
		return t
	}
	panic(&ParameterError{Parameter: name, Reason: fmt.Sprintf("want time, have %T", p.values[name])})
}

func (p Params) Vector(name string) []float64 {
	if v, ok := p.Value(name).([]float64); ok {
		return v
	}
	panic(&ParameterError{Parameter: name, Reason: fmt.Sprintf("want []float64, have %T", p.values[name])})
}

// Process returns the bound process. Plain numbers are treated as constant processes.
func (p Params) Process(name string) Process {
	switch x := p.Value(name).(type) {
	case Process:
		return x
	case func(int, int) float64:
		return x
	case float64, int, int64:
		return ConstantProcess(p.Float(name))
	}
	panic(&ParameterError{Parameter: name, Reason: fmt.Sprintf("want process, have %T", p.values[name])})
}
