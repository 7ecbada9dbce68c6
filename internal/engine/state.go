package engine

import (
	"fmt"
	"time"
)

// Cloner is implemented by structured state values that need a deep copy.
type Cloner interface {
	Clone() any
}

// Var is one initial state entry.
type Var struct {
	Key   string
	Value any
}

// Schema is the closed set of state keys, fixed by the initial state.
type Schema struct {
	keys  []string
	index map[string]int
}

func (s *Schema) Keys() []string { return append([]string(nil), s.keys...) }

func (s *Schema) Len() int { return len(s.keys) }

func (s *Schema) Has(key string) bool {
	_, ok := s.index[key]
	return ok
}

func (s *Schema) slot(key string) (int, bool) {
	i, ok := s.index[key]
	return i, ok
}

// State is one snapshot of the simulation variables plus its trajectory
// coordinates. Values live in schema slots; the key set never changes.
type State struct {
	Subset   int
	Run      int
	Timestep int
	Substep  int

	schema *Schema
	values []any
}

// NewState builds an initial state. Key order defines the schema and the
// column order of exported tables.
func NewState(vars ...Var) (State, error) {
	sc := &Schema{index: make(map[string]int, len(vars))}
	values := make([]any, 0, len(vars))
	for _, v := range vars {
		if v.Key == "" {
			return State{}, fmt.Errorf("state variable with empty key")
		}
		if _, dup := sc.index[v.Key]; dup {
			return State{}, &StateKeyError{Key: v.Key, Reason: "declared twice"}
		}
		sc.index[v.Key] = len(sc.keys)
		sc.keys = append(sc.keys, v.Key)
		values = append(values, v.Value)
	}
	return State{schema: sc, values: values}, nil
}

func (s State) Schema() *Schema { return s.schema }

func (s State) Keys() []string {
	if s.schema == nil {
		return nil
	}
	return s.schema.Keys()
}

func (s State) Len() int { return len(s.values) }

func (s State) Has(key string) bool {
	return s.schema != nil && s.schema.Has(key)
}

// Get returns the value of key. Unknown keys panic with *StateKeyError.
func (s State) Get(key string) any {
	if s.schema != nil {
		if i, ok := s.schema.slot(key); ok {
			return s.values[i]
		}
	}
	panic(&StateKeyError{Key: key, Reason: "not in schema"})
}

func (s State) Float(key string) float64 {
	switch x := s.Get(key).(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	}
	panic(&StateKeyError{Key: key, Reason: fmt.Sprintf("want number, have %T", s.Get(key))})
}

func (s State) Int(key string) int {
	switch x := s.Get(key).(type) {
	case int:
		return x
	case int64:
		return int(x)
	case interface{ Int() int }:
		return x.Int()
	}
	panic(&StateKeyError{Key: key, Reason: fmt.Sprintf("want integer, have %T", s.Get(key))})
}

func (s State) Vector(key string) []float64 {
	if v, ok := s.Get(key).([]float64); ok {
		return v
	}
	panic(&StateKeyError{Key: key, Reason: fmt.Sprintf("want []float64, have %T", s.Get(key))})
}

func (s State) Time(key string) time.Time {
	if t, ok := s.Get(key).(time.Time); ok {
		return t
	}
	panic(&StateKeyError{Key: key, Reason: fmt.Sprintf("want time, have %T", s.Get(key))})
}

// Clone deep-copies the snapshot so no slice is shared with s.
func (s State) Clone() State {
	out := s
	out.values = make([]any, len(s.values))
	for i, v := range s.values {
		out.values[i] = cloneValue(v)
	}
	return out
}

// With returns a new snapshot with all updates applied at once.
func (s State) With(updates map[string]any) (State, error) {
	out := s
	out.values = append([]any(nil), s.values...)
	for k, v := range updates {
		i, ok := s.schema.slot(k)
		if !ok {
			return State{}, &StateKeyError{Key: k, Reason: "not in schema"}
		}
		out.values[i] = v
	}
	return out, nil
}

// Map returns the values keyed by name. Vectors are copied.
func (s State) Map() map[string]any {
	out := make(map[string]any, len(s.values))
	for i, k := range s.schema.keys {
		out[k] = cloneValue(s.values[i])
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case []float64:
		return append([]float64(nil), x...)
	case []int:
		return append([]int(nil), x...)
	case Cloner:
		return x.Clone()
	}
	return v
}

// History is the read-only trajectory of the current run so far,
// including the snapshot at timestep 0.
type History struct {
	rows []State
}

func NewHistory(rows []State) History { return History{rows: rows} }

func (h History) Len() int { return len(h.rows) }

func (h History) At(i int) State { return h.rows[i] }

func (h History) Last() State { return h.rows[len(h.rows)-1] }
