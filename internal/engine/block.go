package engine

import (
	"errors"
	"fmt"
	"sort"
)

// Signals is the ephemeral output of a block's policies.
type Signals map[string]any

func (s Signals) Float(key string) float64 {
	switch x := s[key].(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case nil:
		panic(&ParameterError{Parameter: key, Reason: "signal not emitted"})
	}
	panic(&ParameterError{Parameter: key, Reason: fmt.Sprintf("signal want number, have %T", s[key])})
}

func (s Signals) Vector(key string) []float64 {
	if v, ok := s[key].([]float64); ok {
		return v
	}
	panic(&ParameterError{Parameter: key, Reason: fmt.Sprintf("signal want []float64, have %T", s[key])})
}

// Value returns the raw signal value, or def when the key was not emitted.
func (s Signals) Value(key string, def any) any {
	if v, ok := s[key]; ok {
		return v
	}
	return def
}

// Merge folds other into s. Colliding keys are added, never overwritten.
func (s Signals) Merge(other Signals) error {
	for k, v := range other {
		cur, ok := s[k]
		if !ok {
			s[k] = cloneValue(v)
			continue
		}
		sum, err := addValues(k, cur, v)
		if err != nil {
			return err
		}
		s[k] = sum
	}
	return nil
}

func addValues(key string, a, b any) (any, error) {
	switch x := a.(type) {
	case float64:
		switch y := b.(type) {
		case float64:
			return x + y, nil
		case int:
			return x + float64(y), nil
		}
	case int:
		switch y := b.(type) {
		case int:
			return x + y, nil
		case float64:
			return float64(x) + y, nil
		}
	case []float64:
		if y, ok := b.([]float64); ok && len(x) == len(y) {
			out := make([]float64, len(x))
			for i := range x {
				out[i] = x[i] + y[i]
			}
			return out, nil
		}
	}
	return nil, &SignalMergeError{Key: key, Left: a, Right: b}
}

// PolicyFunc computes signals from the previous state. It must be pure.
type PolicyFunc func(p Params, substep int, h History, prev State) (Signals, error)

// UpdateFunc computes the new value of exactly one state key.
type UpdateFunc func(p Params, substep int, h History, prev State, s Signals) (any, error)

type Policy struct {
	Name  string
	Reads []string // parameter keys
	Fn    PolicyFunc
}

type StateUpdate struct {
	Key   string
	Reads []string // parameter keys
	Fn    UpdateFunc
}

// Block is applied atomically within a timestep: every policy and update
// sees the pre-block snapshot.
type Block struct {
	Label     string
	Policies  []Policy
	Variables []StateUpdate
}

// ValidateBlocks enforces the block contract before any simulation work:
// well-formed blocks, registered parameter references, and a closed state schema.
func ValidateBlocks(blocks []Block, schema *Schema, params *ParameterSet) error {
	if len(blocks) == 0 {
		return errors.New("no update blocks")
	}
	if schema == nil {
		return errors.New("state schema is nil")
	}
	for bi, b := range blocks {
		if b.Label == "" {
			return fmt.Errorf("block %d has no label", bi)
		}
		seenPolicy := map[string]bool{}
		for _, p := range b.Policies {
			if p.Name == "" || p.Fn == nil {
				return fmt.Errorf("block %q: policy needs a name and a function", b.Label)
			}
			if seenPolicy[p.Name] {
				return fmt.Errorf("block %q: duplicate policy %q", b.Label, p.Name)
			}
			seenPolicy[p.Name] = true
			if err := checkReads(params, p.Reads, fmt.Sprintf("policy %q in block %q", p.Name, b.Label)); err != nil {
				return err
			}
		}
		seenKey := map[string]bool{}
		for _, u := range b.Variables {
			if u.Key == "" || u.Fn == nil {
				return fmt.Errorf("block %q: state update needs a key and a function", b.Label)
			}
			if seenKey[u.Key] {
				return fmt.Errorf("block %q: state key %q updated twice", b.Label, u.Key)
			}
			seenKey[u.Key] = true
			if err := checkReads(params, u.Reads, fmt.Sprintf("update %q in block %q", u.Key, b.Label)); err != nil {
				return err
			}
		}
	}
	return CheckClosure(blocks, schema)
}

// CheckClosure verifies that the keys written across all blocks equal the schema keys.
func CheckClosure(blocks []Block, schema *Schema) error {
	written := map[string]bool{}
	for _, b := range blocks {
		for _, u := range b.Variables {
			written[u.Key] = true
		}
	}
	var missing, extra []string
	for _, k := range schema.keys {
		if !written[k] {
			missing = append(missing, k)
		}
	}
	for k := range written {
		if !schema.Has(k) {
			extra = append(extra, k)
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	sort.Strings(extra)
	return &SchemaClosureError{Missing: missing, Extra: extra}
}

func checkReads(params *ParameterSet, reads []string, referrer string) error {
	if params == nil {
		return nil
	}
	for _, r := range reads {
		if !params.Has(r) {
			return &UnregisteredParameterError{Parameter: r, Referrer: referrer}
		}
	}
	return nil
}

// WrittenKeys lists the state keys updated by blocks in declaration order.
func WrittenKeys(blocks []Block) []string {
	var out []string
	for _, b := range blocks {
		for _, u := range b.Variables {
			out = append(out, u.Key)
		}
	}
	return out
}
