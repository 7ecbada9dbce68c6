package engine

import (
	"fmt"
	"strings"
)

// LengthMismatchError is returned by a zip sweep whose swept lists differ in length.
type LengthMismatchError struct {
	Lengths map[string]int
	Order   []string
}

func (e *LengthMismatchError) Error() string {
	parts := make([]string, 0, len(e.Order))
	for _, n := range e.Order {
		parts = append(parts, fmt.Sprintf("%s=%d", n, e.Lengths[n]))
	}
	return "zip sweep requires equal-length candidate lists: " + strings.Join(parts, ", ")
}

// UnregisteredParameterError is a setup error: something references a parameter
// that has no default entry in the template.
type UnregisteredParameterError struct {
	Parameter string
	Referrer  string
}

func (e *UnregisteredParameterError) Error() string {
	return fmt.Sprintf("parameter %q referenced by %s is not registered", e.Parameter, e.Referrer)
}

// ParameterError reports a bad parameter read at run time.
type ParameterError struct {
	Parameter string
	Reason    string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("parameter %q: %s", e.Parameter, e.Reason)
}

// StateKeyError reports a read or write of a key outside the state schema.
type StateKeyError struct {
	Key    string
	Reason string
}

func (e *StateKeyError) Error() string {
	return fmt.Sprintf("state key %q: %s", e.Key, e.Reason)
}

// SchemaClosureError lists the keys that break the closed-world state schema.
type SchemaClosureError struct {
	Missing []string // in the initial state but never written
	Extra   []string // written but absent from the initial state
}

func (e *SchemaClosureError) Error() string {
	var b strings.Builder
	b.WriteString("state schema not closed")
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, "; never updated: %s", strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		fmt.Fprintf(&b, "; not in initial state: %s", strings.Join(e.Extra, ", "))
	}
	return b.String()
}

// SignalMergeError is raised when two policies in one block emit the same
// signal key with values that cannot be summed.
type SignalMergeError struct {
	Key   string
	Left  any
	Right any
}

func (e *SignalMergeError) Error() string {
	return fmt.Sprintf("signal %q: cannot merge %T with %T", e.Key, e.Left, e.Right)
}

// RunError captures the failure of a single (subset, run) trajectory.
type RunError struct {
	Subset   int
	Run      int
	Timestep int
	Block    string
	Err      error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("subset %d run %d timestep %d block %q: %v", e.Subset, e.Run, e.Timestep, e.Block, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// PanicError wraps a value recovered from a panicking policy or update function.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
