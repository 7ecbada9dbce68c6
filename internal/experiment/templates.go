package experiment

import (
	"fmt"
	"sort"
	"sync"

	"eth-economic-model/internal/engine"
	"eth-economic-model/internal/model"
	"eth-economic-model/internal/process"
)

// Template builds a fresh experiment on every call.
type Template func() *Experiment

var (
	mu        sync.RWMutex
	templates = map[string]Template{
		"base":               Base,
		"eth_price_sweep":    ETHPriceSweep,
		"eip1559_scenarios":  EIP1559Scenarios,
		"validator_adoption": ValidatorAdoption,
		"stochastic_price":   StochasticPrice,
		"timescale":          Timescale,
	}
)

// Register adds or replaces a named template.
func Register(name string, t Template) {
	mu.Lock()
	defer mu.Unlock()
	templates[name] = t
}

// Get returns a new experiment built from the named template.
func Get(name string) (*Experiment, error) {
	mu.RLock()
	t, ok := templates[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown experiment %q (available: %v)", name, Names())
	}
	exp := t()
	exp.Name = name
	return exp, nil
}

func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(templates))
	for n := range templates {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Base is one year of daily timesteps with default parameters.
func Base() *Experiment {
	return &Experiment{
		Name:        "base",
		Description: "Default parameters, one deterministic run over a year of daily steps",
		Parameters:  model.DefaultParameterSet(),
		Sweep:       engine.Cartesian,
		Runs:        1,
		Timesteps:   365,
		Seed:        1,
	}
}

// ETHPriceSweep compares validator yields across constant ETH prices after the merge.
func ETHPriceSweep() *Experiment {
	exp := Base()
	exp.Description = "Validator yields across constant ETH prices, post-merge"
	prices := []float64{500, 1000, 2000, 3000, 5000}
	cands := make([]any, len(prices))
	exp.Labels = make([]string, len(prices))
	for i, p := range prices {
		cands[i] = engine.ConstantProcess(p)
		exp.Labels[i] = fmt.Sprintf("ETH $%g", p)
	}
	exp.Parameters.
		Declare(model.ParamStage, model.StageProofOfStake).
		Declare(model.ParamETHPriceProcess, cands...)
	exp.Initial.Stage = model.StageProofOfStake
	return exp
}

// EIP1559Scenarios zips base fee and tip levels into named fee-market scenarios.
func EIP1559Scenarios() *Experiment {
	exp := Base()
	exp.Description = "Fee market scenarios: disabled, steady state and congested"
	exp.Sweep = engine.Zip
	exp.Parameters.
		Declare(model.ParamStage, model.StageProofOfStake).
		Declare(model.ParamBaseFeeProcess,
			engine.ConstantProcess(0), engine.ConstantProcess(25), engine.ConstantProcess(100)).
		Declare(model.ParamPriorityFeeProcess,
			engine.ConstantProcess(0), engine.ConstantProcess(2), engine.ConstantProcess(5))
	exp.Labels = []string{
		"Disabled (Base Fee=0, Tip=0)",
		"Steady State (Base Fee=25, Tip=2)",
		"Congested (Base Fee=100, Tip=5)",
	}
	exp.Initial.Stage = model.StageProofOfStake
	return exp
}

// ValidatorAdoption sweeps the rate of new validators joining the queue.
func ValidatorAdoption() *Experiment {
	exp := Base()
	exp.Description = "Low, normal and high validator adoption"
	exp.Parameters.Declare(model.ParamValidatorProcess,
		engine.ConstantProcess(1.5), engine.ConstantProcess(3), engine.ConstantProcess(4.5))
	exp.Labels = []string{"Low Adoption", "Normal Adoption", "High Adoption"}
	return exp
}

// StochasticPrice is a Monte Carlo over price, validator arrivals and uptime.
func StochasticPrice() *Experiment {
	exp := Base()
	exp.Description = "Monte Carlo over ETH price, validator arrivals and uptime"
	exp.Runs = 8
	exp.Timesteps = 180
	exp.Seed = 42
	exp.Parameters.Declare(model.ParamStage, model.StageProofOfStake)
	exp.Initial.Stage = model.StageProofOfStake
	exp.Stochastic = []StochasticInput{
		{
			Parameter: model.ParamETHPriceProcess,
			Generator: process.BoundedGBM{
				Start:         model.DefaultETHPrice,
				Drift:         0,
				Volatility:    0.8,
				Min:           100,
				Max:           20000,
				EpochsPerYear: model.EpochsPerYear,
			},
		},
		{Parameter: model.ParamValidatorProcess, Generator: process.PoissonArrivals{Rate: 3}},
		{Parameter: model.ParamUptimeProcess, Generator: process.BetaUptime{Mean: 0.98, Concentration: 500, Floor: 0.5}},
	}
	return exp
}

// Timescale resolves a single day epoch by epoch.
func Timescale() *Experiment {
	exp := Base()
	exp.Description = "One day at per-epoch resolution"
	exp.Timesteps = model.EpochsPerDay
	exp.Parameters.Declare(model.ParamDT, 1)
	return exp
}
