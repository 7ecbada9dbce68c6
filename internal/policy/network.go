package policy

import (
	"fmt"
	"math"

	"eth-economic-model/internal/engine"
	"eth-economic-model/internal/model"
)

func upgradeStagesBlock() engine.Block {
	return engine.Block{
		Label: "upgrade stages",
		Policies: []engine.Policy{{
			Name:  "upgrade stages",
			Reads: []string{model.ParamDT, model.ParamStage, model.ParamDateStart, model.ParamDateEIP1559, model.ParamDatePoS},
			Fn:    policyUpgradeStages,
		}},
		Variables: []engine.StateUpdate{
			fromSignal(model.KeyStage),
			fromSignal(model.KeyTimestamp),
		},
	}
}

func policyUpgradeStages(p engine.Params, _ int, _ engine.History, prev engine.State) (engine.Signals, error) {
	configured, ok := p.Value(model.ParamStage).(model.Stage)
	if !ok {
		return nil, &model.InvalidStageError{Value: fmt.Sprint(p.Value(model.ParamStage))}
	}
	ts := model.Timestamp(p.Time(model.ParamDateStart), model.CurrentEpoch(p, prev))
	next, err := model.NextStage(stageOf(prev), configured, ts, model.MilestonesFrom(p))
	if err != nil {
		return nil, err
	}
	return engine.Signals{model.KeyStage: next, model.KeyTimestamp: ts}, nil
}

func ethPriceBlock() engine.Block {
	return engine.Block{
		Label: "eth price",
		Policies: []engine.Policy{{
			Name:  "eth price process",
			Reads: []string{model.ParamDT, model.ParamETHPriceProcess},
			Fn: func(p engine.Params, _ int, _ engine.History, prev engine.State) (engine.Signals, error) {
				price, err := sample(p, prev, model.ParamETHPriceProcess)
				if err != nil {
					return nil, err
				}
				if price <= 0 {
					return nil, fmt.Errorf("eth price must be positive, got %g", price)
				}
				return engine.Signals{model.KeyETHPrice: price}, nil
			},
		}},
		Variables: []engine.StateUpdate{fromSignal(model.KeyETHPrice)},
	}
}

func validatorsBlock() engine.Block {
	return engine.Block{
		Label: "validators",
		Policies: []engine.Policy{{
			Name:  "validator adoption",
			Reads: []string{model.ParamDT, model.ParamValidatorProcess, model.ParamUptimeProcess, model.ParamMaxValidatorCount},
			Fn:    policyValidators,
		}},
		Variables: []engine.StateUpdate{
			fromSignal(model.KeyActivationQueue),
			fromSignal(model.KeyActiveValidators),
			fromSignal(model.KeyAwakeValidators),
			fromSignal(model.KeyValidatorUptime),
		},
	}
}

// policyValidators moves new validators through the activation queue at the
// churn limit and applies the uptime process.
func policyValidators(p engine.Params, _ int, _ engine.History, prev engine.State) (engine.Signals, error) {
	arrivals, err := sample(p, prev, model.ParamValidatorProcess)
	if err != nil {
		return nil, err
	}
	if arrivals < 0 {
		return nil, fmt.Errorf("validator process returned %g new validators", arrivals)
	}
	uptime, err := sample(p, prev, model.ParamUptimeProcess)
	if err != nil {
		return nil, err
	}
	uptime = math.Min(1, math.Max(0, uptime))

	active, queue := activate(
		prev.Float(model.KeyActiveValidators),
		prev.Float(model.KeyActivationQueue),
		arrivals, p.Int(model.ParamDT), p.Float(model.ParamMaxValidatorCount),
	)

	return engine.Signals{
		model.KeyActivationQueue:  queue,
		model.KeyActiveValidators: active,
		model.KeyAwakeValidators:  active * uptime,
		model.KeyValidatorUptime:  uptime,
	}, nil
}

// activate steps the activation queue one epoch at a time, so the churn limit
// follows the validator count within a timestep. limit <= 0 means no cap.
func activate(active, queue, arrivals float64, epochs int, limit float64) (float64, float64) {
	for i := 0; i < epochs; i++ {
		queue += arrivals
		activated := math.Min(queue, float64(model.ChurnLimit(uint64(active))))
		if limit > 0 {
			activated = math.Max(0, math.Min(activated, limit-active))
		}
		active += activated
		queue -= activated
	}
	return active, queue
}

func stakingBlock() engine.Block {
	return engine.Block{
		Label: "staking",
		Variables: []engine.StateUpdate{
			{
				Key: model.KeyETHStaked,
				Fn: func(_ engine.Params, _ int, _ engine.History, prev engine.State, _ engine.Signals) (any, error) {
					return prev.Float(model.KeyActiveValidators) * prev.Float(model.KeyAverageEffBalance) / model.GweiPerETH, nil
				},
			},
			{
				Key: model.KeyAverageEffBalance,
				Fn: func(_ engine.Params, _ int, _ engine.History, prev engine.State, _ engine.Signals) (any, error) {
					return math.Min(prev.Float(model.KeyAverageEffBalance), model.MaxEffectiveBalance), nil
				},
			},
		},
	}
}

func baseRewardBlock() engine.Block {
	return engine.Block{
		Label: "base reward",
		Variables: []engine.StateUpdate{{
			Key: model.KeyBaseReward,
			Fn: func(_ engine.Params, _ int, _ engine.History, prev engine.State, _ engine.Signals) (any, error) {
				eff := uint64(prev.Float(model.KeyAverageEffBalance))
				total := uint64(prev.Float(model.KeyActiveValidators)) * eff
				return float64(model.BaseReward(eff, model.BaseRewardPerIncrement(total))), nil
			},
		}},
	}
}

func accountingBlock() engine.Block {
	reads := []string{model.ParamDT, model.ParamDailyPoWIssuance}
	return engine.Block{
		Label: "accounting",
		Variables: []engine.StateUpdate{
			{
				Key:   model.KeyPoWIssuance,
				Reads: reads,
				Fn: func(p engine.Params, _ int, _ engine.History, prev engine.State, _ engine.Signals) (any, error) {
					return powIssuance(p, prev), nil
				},
			},
			{
				Key:   model.KeyNetworkIssuance,
				Reads: reads,
				Fn: func(p engine.Params, _ int, _ engine.History, prev engine.State, _ engine.Signals) (any, error) {
					return networkIssuance(p, prev), nil
				},
			},
			{
				Key:   model.KeyETHSupply,
				Reads: reads,
				Fn: func(p engine.Params, _ int, _ engine.History, prev engine.State, _ engine.Signals) (any, error) {
					supply := prev.Float(model.KeyETHSupply) + model.GweiToETH(networkIssuance(p, prev))
					if supply < 0 {
						return nil, fmt.Errorf("eth supply went negative: %g", supply)
					}
					return supply, nil
				},
			},
			{
				Key:   model.KeySupplyInflation,
				Reads: reads,
				Fn: func(p engine.Params, _ int, _ engine.History, prev engine.State, _ engine.Signals) (any, error) {
					supply := prev.Float(model.KeyETHSupply)
					if supply == 0 {
						return 0.0, nil
					}
					return model.GweiToETH(networkIssuance(p, prev)) / supply * model.EpochsPerYear / dt(p), nil
				},
			},
		},
	}
}

// powIssuance is the proof-of-work block reward until the merge, in Gwei.
func powIssuance(p engine.Params, prev engine.State) float64 {
	if stageOf(prev).ProofOfStake() {
		return 0
	}
	return model.ETHToGwei(p.Float(model.ParamDailyPoWIssuance)) / model.EpochsPerDay * dt(p)
}

// networkIssuance is the net change of ETH supply over the timestep, in Gwei.
func networkIssuance(p engine.Params, prev engine.State) float64 {
	return prev.Float(model.KeyValidatingRewards) -
		prev.Float(model.KeyValidatingPenalties) +
		prev.Float(model.KeyWhistleblowerRewards) -
		prev.Float(model.KeyAmountSlashed) -
		prev.Float(model.KeyTotalBasefee) +
		powIssuance(p, prev)
}
