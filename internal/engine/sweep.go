package engine

import (
	"errors"
	"fmt"
)

// SweepMode selects how multi-valued parameters combine into subsets.
// There is no default; the experiment designer chooses explicitly.
type SweepMode string

const (
	// Cartesian runs the full cross product of every multi-valued parameter.
	Cartesian SweepMode = "cartesian"
	// Zip pairs same-index candidates across all multi-valued parameters.
	Zip SweepMode = "zip"
)

func ParseSweepMode(s string) (SweepMode, error) {
	switch SweepMode(s) {
	case Cartesian, Zip:
		return SweepMode(s), nil
	case "":
		return "", errors.New("sweep mode is required (cartesian or zip)")
	}
	return "", fmt.Errorf("unknown sweep mode %q (want cartesian or zip)", s)
}

// Subset is one fully bound parameter set.
type Subset struct {
	Index  int
	Params Params
}

// Expand turns a parameter template into the ordered list of concrete subsets.
// Candidate processes are bound as-is; they are only invoked while running.
func Expand(set *ParameterSet, mode SweepMode) ([]Subset, error) {
	if set == nil {
		return nil, errors.New("parameter set is nil")
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	switch mode {
	case Cartesian:
		return expandCartesian(set), nil
	case Zip:
		return expandZip(set)
	case "":
		return nil, errors.New("sweep mode is required (cartesian or zip)")
	default:
		return nil, fmt.Errorf("unknown sweep mode %q", mode)
	}
}

// SubsetCount reports how many subsets Expand would produce.
func SubsetCount(set *ParameterSet, mode SweepMode) (int, error) {
	switch mode {
	case Cartesian:
		n := 1
		for _, name := range set.names {
			n *= len(set.values[name])
		}
		return n, nil
	case Zip:
		n, err := zipLength(set)
		if err != nil {
			return 0, err
		}
		return n, nil
	}
	return 0, fmt.Errorf("unknown sweep mode %q", mode)
}

func expandCartesian(set *ParameterSet) []Subset {
	// Mixed-radix counter: the last declared key varies fastest, so the
	// emission order matches nested loops over declaration order.
	names := set.names
	total, _ := SubsetCount(set, Cartesian)
	idx := make([]int, len(names))
	out := make([]Subset, 0, total)
	for i := 0; i < total; i++ {
		values := make(map[string]any, len(names))
		for k, name := range names {
			values[name] = set.values[name][idx[k]]
		}
		out = append(out, Subset{Index: i, Params: Params{values: values}})

		for k := len(names) - 1; k >= 0; k-- {
			idx[k]++
			if idx[k] < len(set.values[names[k]]) {
				break
			}
			idx[k] = 0
		}
	}
	return out
}

func zipLength(set *ParameterSet) (int, error) {
	n := 1
	lengths := map[string]int{}
	var swept []string
	for _, name := range set.names {
		l := len(set.values[name])
		if l == 1 {
			continue
		}
		lengths[name] = l
		swept = append(swept, name)
		if n == 1 {
			n = l
		}
	}
	for _, name := range swept {
		if lengths[name] != n {
			return 0, &LengthMismatchError{Lengths: lengths, Order: swept}
		}
	}
	return n, nil
}

func expandZip(set *ParameterSet) ([]Subset, error) {
	n, err := zipLength(set)
	if err != nil {
		return nil, err
	}
	out := make([]Subset, 0, n)
	for i := 0; i < n; i++ {
		values := make(map[string]any, len(set.names))
		for _, name := range set.names {
			cands := set.values[name]
			if len(cands) == 1 {
				values[name] = cands[0]
			} else {
				values[name] = cands[i]
			}
		}
		out = append(out, Subset{Index: i, Params: Params{values: values}})
	}
	return out, nil
}
