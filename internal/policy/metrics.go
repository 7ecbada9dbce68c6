package policy

import (
	"fmt"

	"eth-economic-model/internal/engine"
	"eth-economic-model/internal/model"
)

// Signal keys private to the validator metrics block.
const (
	sigDistribution = model.KeyValidatorCountDistribution
	sigStaked       = model.KeyValidatorETHStaked
	sigRevenue      = model.KeyValidatorRevenue
	sigCosts        = model.KeyValidatorCosts
)

func validatorMetricsBlock() engine.Block {
	reads := []string{model.ParamDT, model.ParamValidatorShares}
	costReads := func(extra string) []string {
		return []string{model.ParamDT, model.ParamValidatorShares, extra}
	}
	return engine.Block{
		Label: "validator metrics",
		Policies: []engine.Policy{
			{Name: "validator distribution", Reads: reads, Fn: policyValidatorDistribution},
			// The three cost policies emit the same key and are summed.
			{Name: "hardware costs", Reads: costReads(model.ParamHardwareCosts), Fn: monthlyCosts(model.ParamHardwareCosts)},
			{Name: "cloud costs", Reads: costReads(model.ParamCloudCosts), Fn: monthlyCosts(model.ParamCloudCosts)},
			{Name: "third-party costs", Reads: costReads(model.ParamThirdPartyFees), Fn: policyThirdPartyCosts},
		},
		Variables: []engine.StateUpdate{
			fromSignal(model.KeyValidatorCountDistribution),
			fromSignal(model.KeyValidatorETHStaked),
			fromSignal(model.KeyValidatorRevenue),
			fromSignal(model.KeyValidatorCosts),
			{Key: model.KeyValidatorProfit, Fn: updateValidatorProfit},
			{Key: model.KeyValidatorRevenueYields, Reads: reads, Fn: vectorYield(false)},
			{Key: model.KeyValidatorProfitYields, Reads: reads, Fn: vectorYield(true)},
			{Key: model.KeyTotalRevenue, Fn: totalOf(sigRevenue)},
			{Key: model.KeyTotalCosts, Fn: totalOf(sigCosts)},
			{Key: model.KeyTotalProfit, Fn: updateTotalProfit},
			{Key: model.KeyTotalRevenueYields, Reads: reads, Fn: totalYield(false)},
			{Key: model.KeyTotalProfitYields, Reads: reads, Fn: totalYield(true)},
		},
	}
}

func shares(p engine.Params) ([]float64, error) {
	s := p.Vector(model.ParamValidatorShares)
	if len(s) != model.NumEnvironments() {
		return nil, fmt.Errorf("%s has %d entries, want %d", model.ParamValidatorShares, len(s), model.NumEnvironments())
	}
	return s, nil
}

// revenueUSD splits online validator rewards across environments by share.
func revenueUSD(prev engine.State, sh []float64) []float64 {
	total := model.GweiToETH(prev.Float(model.KeyOnlineRewards)) * prev.Float(model.KeyETHPrice)
	out := make([]float64, len(sh))
	for i, s := range sh {
		out[i] = total * s
	}
	return out
}

func policyValidatorDistribution(p engine.Params, _ int, _ engine.History, prev engine.State) (engine.Signals, error) {
	sh, err := shares(p)
	if err != nil {
		return nil, err
	}
	active := prev.Float(model.KeyActiveValidators)
	effETH := model.GweiToETH(prev.Float(model.KeyAverageEffBalance))
	dist := make([]float64, len(sh))
	staked := make([]float64, len(sh))
	for i, s := range sh {
		dist[i] = s * active
		staked[i] = dist[i] * effETH
	}
	return engine.Signals{
		sigDistribution: dist,
		sigStaked:       staked,
		sigRevenue:      revenueUSD(prev, sh),
	}, nil
}

// monthlyCosts charges a per-validator USD monthly cost pro rata per epoch.
func monthlyCosts(param string) engine.PolicyFunc {
	return func(p engine.Params, _ int, _ engine.History, prev engine.State) (engine.Signals, error) {
		sh, err := shares(p)
		if err != nil {
			return nil, err
		}
		perMonth := p.Vector(param)
		if len(perMonth) != len(sh) {
			return nil, fmt.Errorf("%s has %d entries, want %d", param, len(perMonth), len(sh))
		}
		active := prev.Float(model.KeyActiveValidators)
		d := dt(p)
		costs := make([]float64, len(sh))
		for i := range sh {
			costs[i] = sh[i] * active * perMonth[i] / model.EpochsPerMonth * d
		}
		return engine.Signals{sigCosts: costs}, nil
	}
}

func policyThirdPartyCosts(p engine.Params, _ int, _ engine.History, prev engine.State) (engine.Signals, error) {
	sh, err := shares(p)
	if err != nil {
		return nil, err
	}
	fees := p.Vector(model.ParamThirdPartyFees)
	if len(fees) != len(sh) {
		return nil, fmt.Errorf("%s has %d entries, want %d", model.ParamThirdPartyFees, len(fees), len(sh))
	}
	rev := revenueUSD(prev, sh)
	costs := make([]float64, len(sh))
	for i := range rev {
		costs[i] = rev[i] * fees[i]
	}
	return engine.Signals{sigCosts: costs}, nil
}

func profit(s engine.Signals) []float64 {
	rev, costs := s.Vector(sigRevenue), s.Vector(sigCosts)
	out := make([]float64, len(rev))
	for i := range rev {
		out[i] = rev[i] - costs[i]
	}
	return out
}

func updateValidatorProfit(_ engine.Params, _ int, _ engine.History, _ engine.State, s engine.Signals) (any, error) {
	return profit(s), nil
}

func updateTotalProfit(_ engine.Params, _ int, _ engine.History, _ engine.State, s engine.Signals) (any, error) {
	return sum(profit(s)), nil
}

func totalOf(key string) engine.UpdateFunc {
	return func(_ engine.Params, _ int, _ engine.History, _ engine.State, s engine.Signals) (any, error) {
		return sum(s.Vector(key)), nil
	}
}

// annualize turns a per-timestep USD amount on a USD stake into a yearly rate.
func annualize(amount, stakeUSD, d float64) float64 {
	if stakeUSD == 0 {
		return 0
	}
	return amount / stakeUSD * model.EpochsPerYear / d
}

func vectorYield(net bool) engine.UpdateFunc {
	return func(p engine.Params, _ int, _ engine.History, prev engine.State, s engine.Signals) (any, error) {
		amounts := s.Vector(sigRevenue)
		if net {
			amounts = profit(s)
		}
		staked := s.Vector(sigStaked)
		price := prev.Float(model.KeyETHPrice)
		d := dt(p)
		out := make([]float64, len(amounts))
		for i := range amounts {
			out[i] = annualize(amounts[i], staked[i]*price, d)
		}
		return out, nil
	}
}

func totalYield(net bool) engine.UpdateFunc {
	return func(p engine.Params, _ int, _ engine.History, prev engine.State, s engine.Signals) (any, error) {
		amount := sum(s.Vector(sigRevenue))
		if net {
			amount = sum(profit(s))
		}
		stake := sum(s.Vector(sigStaked)) * prev.Float(model.KeyETHPrice)
		return annualize(amount, stake, dt(p)), nil
	}
}
