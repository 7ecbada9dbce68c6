// Package policy holds the update blocks of the validator economy model.
// Blocks run in the order returned by Blocks; within a block every policy and
// update reads the snapshot produced by the previous block.
package policy

import (
	"fmt"
	"math"

	"eth-economic-model/internal/engine"
	"eth-economic-model/internal/model"
)

// Blocks returns the ordered update blocks.
func Blocks() []engine.Block {
	return []engine.Block{
		upgradeStagesBlock(),
		ethPriceBlock(),
		validatorsBlock(),
		stakingBlock(),
		baseRewardBlock(),
		incentivesBlock(),
		eip1559Block(),
		mevBlock(),
		validatingTotalsBlock(),
		accountingBlock(),
		validatorMetricsBlock(),
	}
}

// SeedInitial starts a subset with a pinned stage parameter in that stage
// instead of the stage of the shared initial state.
func SeedInitial(sub engine.Subset, initial engine.State) (engine.State, error) {
	if !sub.Params.Has(model.ParamStage) {
		return initial, nil
	}
	configured, ok := sub.Params.Value(model.ParamStage).(model.Stage)
	if !ok || !configured.Valid() {
		return engine.State{}, &model.InvalidStageError{Value: fmt.Sprint(sub.Params.Value(model.ParamStage))}
	}
	if configured == model.StageAll {
		return initial, nil
	}
	return initial.With(map[string]any{model.KeyStage: configured})
}

// fromSignal copies the merged signal of the same name into state.
func fromSignal(key string) engine.StateUpdate {
	return engine.StateUpdate{
		Key: key,
		Fn: func(_ engine.Params, _ int, _ engine.History, _ engine.State, s engine.Signals) (any, error) {
			v, ok := s[key]
			if !ok {
				return nil, fmt.Errorf("signal %q not emitted", key)
			}
			return v, nil
		},
	}
}

func dt(p engine.Params) float64 {
	return float64(p.Int(model.ParamDT))
}

func stageOf(s engine.State) model.Stage {
	st, _ := s.Get(model.KeyStage).(model.Stage)
	return st
}

// sample reads a process at the epoch of the timestep being computed.
func sample(p engine.Params, prev engine.State, name string) (float64, error) {
	v := p.Process(name)(prev.Run, model.CurrentEpoch(p, prev))
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s returned %v at run %d", name, v, prev.Run)
	}
	return v, nil
}

func sum(v []float64) float64 {
	t := 0.0
	for _, x := range v {
		t += x
	}
	return t
}
