package policy

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eth-economic-model/internal/engine"
	"eth-economic-model/internal/model"
)

// only binds just the declared parameters of full.
func only(full engine.Params, reads []string) engine.Params {
	values := make(map[string]any, len(reads))
	for _, k := range reads {
		values[k] = full.Value(k)
	}
	return engine.NewParams(values)
}

// undeclaredRead calls fn and reports the parameter behind a recovered
// *engine.ParameterError, if any.
func undeclaredRead(fn func()) (param string) {
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(*engine.ParameterError); ok {
				param = pe.Parameter
				return
			}
			param = fmt.Sprintf("panic: %v", r)
		}
	}()
	fn()
	return ""
}

func TestBlocksDeclareEveryParameterRead(t *testing.T) {
	for _, stage := range []model.Stage{model.StageBeaconChain, model.StageEIP1559, model.StageProofOfStake, model.StageAll} {
		t.Run(stage.String(), func(t *testing.T) {
			set := model.DefaultParameterSet().Declare(model.ParamStage, stage)
			subsets, err := engine.Expand(set, engine.Cartesian)
			require.NoError(t, err)
			full := subsets[0].Params

			res := simulate(t, map[string]any{model.ParamStage: stage}, 1, 3)
			require.True(t, res.Healthy())

			for ts := 1; ts < len(res.Rows); ts++ {
				prev := res.Rows[ts-1]
				h := engine.NewHistory(res.Rows[:ts])
				for bi, b := range Blocks() {
					substep := bi + 1
					signals := engine.Signals{}
					for _, pol := range b.Policies {
						p := only(full, pol.Reads)
						missing := undeclaredRead(func() { _, _ = pol.Fn(p, substep, h, prev) })
						assert.Empty(t, missing, "policy %q in block %q reads undeclared parameter", pol.Name, b.Label)

						out, err := pol.Fn(full, substep, h, prev)
						require.NoError(t, err)
						require.NoError(t, signals.Merge(out))
					}

					updates := make(map[string]any, len(b.Variables))
					for _, u := range b.Variables {
						p := only(full, u.Reads)
						missing := undeclaredRead(func() { _, _ = u.Fn(p, substep, h, prev, signals) })
						assert.Empty(t, missing, "update %q in block %q reads undeclared parameter", u.Key, b.Label)

						v, err := u.Fn(full, substep, h, prev, signals)
						require.NoError(t, err)
						updates[u.Key] = v
					}
					prev, err = prev.With(updates)
					require.NoError(t, err)
				}
			}
		})
	}
}

func TestUndeclaredReadIsDetected(t *testing.T) {
	fn := func(p engine.Params, _ int, _ engine.History, _ engine.State) (engine.Signals, error) {
		return engine.Signals{"x": p.Float(model.ParamSlashingRate)}, nil
	}
	full := engine.NewParams(map[string]any{model.ParamSlashingRate: 0.1, model.ParamDT: 1})
	p := only(full, []string{model.ParamDT})
	assert.Equal(t, model.ParamSlashingRate, undeclaredRead(func() { _, _ = fn(p, 1, engine.History{}, engine.State{}) }))
}
