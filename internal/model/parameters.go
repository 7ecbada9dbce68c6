package model

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"eth-economic-model/internal/engine"
)

// Parameter names.
const (
	ParamDT                 = "dt"
	ParamStage              = "stage"
	ParamDateStart          = "date_start"
	ParamDateEIP1559        = "date_eip1559"
	ParamDatePoS            = "date_pos"
	ParamETHPriceProcess    = "eth_price_process"
	ParamValidatorProcess   = "validator_process"
	ParamUptimeProcess      = "validator_uptime_process"
	ParamSlashingRate       = "slashing_events_per_1000_epochs"
	ParamBaseFeeProcess     = "base_fee_process"
	ParamPriorityFeeProcess = "priority_fee_process"
	ParamGasTargetProcess   = "gas_target_process"
	ParamGasUsedProcess     = "gas_used_process"
	ParamMEVPerBlock        = "mev_per_block"
	ParamDailyPoWIssuance   = "daily_pow_issuance"
	ParamMaxValidatorCount  = "max_validator_count"
	ParamValidatorShares    = "validator_percentage_distribution"
	ParamHardwareCosts      = "validator_hardware_costs_per_month"
	ParamCloudCosts         = "validator_cloud_costs_per_month"
	ParamThirdPartyFees     = "validator_third_party_costs_per_epoch"
)

type Kind string

const (
	KindInt     Kind = "int"
	KindFloat   Kind = "float"
	KindProcess Kind = "process"
	KindDate    Kind = "date"
	KindStage   Kind = "stage"
	KindVector  Kind = "vector"
)

// ParameterSpec documents one registered parameter and its default.
type ParameterSpec struct {
	Name        string `json:"name" yaml:"name"`
	Kind        Kind   `json:"kind" yaml:"kind"`
	Default     any    `json:"-" yaml:"-"`
	Unit        string `json:"unit" yaml:"unit"`
	Description string `json:"description" yaml:"description"`
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var registry = []ParameterSpec{
	{ParamDT, KindInt, EpochsPerDay, "epochs", "epochs per timestep"},
	{ParamStage, KindStage, StageAll, "", "upgrade stage, or all to follow the milestone dates"},
	{ParamDateStart, KindDate, date(2022, time.January, 1), "", "simulated date of timestep 0"},
	{ParamDateEIP1559, KindDate, date(2021, time.August, 5), "", "EIP-1559 activation date"},
	{ParamDatePoS, KindDate, date(2022, time.September, 15), "", "proof-of-stake merge date"},
	{ParamETHPriceProcess, KindProcess, engine.ConstantProcess(2000), "USD", "ETH price by (run, epoch)"},
	{ParamValidatorProcess, KindProcess, engine.ConstantProcess(3), "validators/epoch", "new validators joining the activation queue"},
	{ParamUptimeProcess, KindProcess, engine.ConstantProcess(0.98), "fraction", "share of active validators online"},
	{ParamSlashingRate, KindFloat, 1.0, "events/1000 epochs", "slashing events"},
	{ParamBaseFeeProcess, KindProcess, engine.ConstantProcess(25), "Gwei/gas", "EIP-1559 base fee"},
	{ParamPriorityFeeProcess, KindProcess, engine.ConstantProcess(2), "Gwei/gas", "priority fee (tip)"},
	{ParamGasTargetProcess, KindProcess, engine.ConstantProcess(15e6), "gas", "gas target per block"},
	{ParamGasUsedProcess, KindProcess, engine.ConstantProcess(15e6), "gas", "gas used per block"},
	{ParamMEVPerBlock, KindFloat, 0.02, "ETH", "realized MEV per block paid to the proposer"},
	{ParamDailyPoWIssuance, KindFloat, 13500.0, "ETH/day", "proof-of-work block rewards before the merge"},
	{ParamMaxValidatorCount, KindFloat, 0.0, "validators", "cap on active validators, 0 for none"},
	{ParamValidatorShares, KindVector, environmentVector(func(e Environment) float64 { return e.Share }), "fraction", "validator share per environment"},
	{ParamHardwareCosts, KindVector, environmentVector(func(e Environment) float64 { return e.HardwareCostMonth }), "USD/month", "hardware cost per validator"},
	{ParamCloudCosts, KindVector, environmentVector(func(e Environment) float64 { return e.CloudCostMonth }), "USD/month", "cloud cost per validator"},
	{ParamThirdPartyFees, KindVector, environmentVector(func(e Environment) float64 { return e.ThirdPartyFee }), "fraction", "third-party fee as a share of revenue"},
}

// Parameters lists the registered parameters in declaration order.
func Parameters() []ParameterSpec {
	return append([]ParameterSpec(nil), registry...)
}

func Lookup(name string) (ParameterSpec, bool) {
	for _, p := range registry {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterSpec{}, false
}

// DefaultParameterSet declares every registered parameter with its default.
func DefaultParameterSet() *engine.ParameterSet {
	set := engine.NewParameterSet()
	for _, p := range registry {
		set.Declare(p.Name, p.Default)
	}
	return set
}

// Coerce converts a decoded YAML/JSON scalar into the typed candidate for spec.
func Coerce(spec ParameterSpec, raw any) (any, error) {
	switch spec.Kind {
	case KindInt:
		f, ok := number(raw)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("%s: want integer, have %v", spec.Name, raw)
		}
		return int(f), nil
	case KindFloat:
		f, ok := number(raw)
		if !ok {
			return nil, fmt.Errorf("%s: want number, have %v", spec.Name, raw)
		}
		return f, nil
	case KindProcess:
		switch x := raw.(type) {
		case engine.Process:
			return x, nil
		case func(int, int) float64:
			return engine.Process(x), nil
		}
		f, ok := number(raw)
		if !ok {
			return nil, fmt.Errorf("%s: want number or process, have %v", spec.Name, raw)
		}
		return engine.ConstantProcess(f), nil
	case KindDate:
		switch x := raw.(type) {
		case time.Time:
			return x.UTC(), nil
		case string:
			for _, layout := range []string{"2006-01-02", time.RFC3339} {
				if t, err := time.Parse(layout, x); err == nil {
					return t.UTC(), nil
				}
			}
		}
		return nil, fmt.Errorf("%s: want date (YYYY-MM-DD), have %v", spec.Name, raw)
	case KindStage:
		switch x := raw.(type) {
		case Stage:
			if !x.Valid() {
				return nil, &InvalidStageError{Value: x.String()}
			}
			return x, nil
		case string:
			return ParseStage(x)
		}
		return nil, &InvalidStageError{Value: fmt.Sprint(raw)}
	case KindVector:
		switch x := raw.(type) {
		case []float64:
			return append([]float64(nil), x...), nil
		case []any:
			out := make([]float64, len(x))
			for i, v := range x {
				f, ok := number(v)
				if !ok {
					return nil, fmt.Errorf("%s[%d]: want number, have %v", spec.Name, i, v)
				}
				out[i] = f
			}
			return out, nil
		}
		return nil, fmt.Errorf("%s: want list of numbers, have %v", spec.Name, raw)
	}
	return nil, fmt.Errorf("%s: unknown kind %q", spec.Name, spec.Kind)
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

// ApplyOverrides coerces raw candidate lists and replaces them in set.
func ApplyOverrides(set *engine.ParameterSet, overrides map[string][]any) error {
	names := make([]string, 0, len(overrides))
	for n := range overrides {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		spec, ok := Lookup(name)
		if !ok {
			return &engine.UnregisteredParameterError{Parameter: name, Referrer: "configuration"}
		}
		raw := overrides[name]
		cands := make([]any, 0, len(raw))
		for _, r := range raw {
			v, err := Coerce(spec, r)
			if err != nil {
				return err
			}
			cands = append(cands, v)
		}
		if err := set.Override(name, cands...); err != nil {
			return err
		}
	}
	return nil
}

// ValidateParameterSet performs the domain checks that must fail at setup:
// stage values, dt, milestone ordering and environment vectors.
func ValidateParameterSet(set *engine.ParameterSet) error {
	var errs []string
	for _, c := range set.Candidates(ParamStage) {
		s, ok := c.(Stage)
		if !ok || !s.Valid() {
			return &InvalidStageError{Value: fmt.Sprint(c)}
		}
	}
	for _, c := range set.Candidates(ParamDT) {
		if dt, ok := c.(int); !ok || dt < 1 {
			errs = append(errs, fmt.Sprintf("%s must be a positive integer, got %v", ParamDT, c))
		}
	}
	for _, c := range set.Candidates(ParamSlashingRate) {
		if f, ok := number(c); !ok || f < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0, got %v", ParamSlashingRate, c))
		}
	}
	for _, a := range set.Candidates(ParamDateEIP1559) {
		for _, b := range set.Candidates(ParamDatePoS) {
			ta, okA := a.(time.Time)
			tb, okB := b.(time.Time)
			if okA && okB && tb.Before(ta) {
				errs = append(errs, fmt.Sprintf("%s precedes %s", ParamDatePoS, ParamDateEIP1559))
			}
		}
	}
	for _, shares := range set.Candidates(ParamValidatorShares) {
		for _, hw := range set.Candidates(ParamHardwareCosts) {
			for _, cloud := range set.Candidates(ParamCloudCosts) {
				for _, fees := range set.Candidates(ParamThirdPartyFees) {
					if err := ValidateEnvironmentVectors(vec(shares), vec(hw), vec(cloud), vec(fees)); err != nil {
						errs = append(errs, err.Error())
					}
				}
			}
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(dedupe(errs), "; "))
	}
	return nil
}

func vec(v any) []float64 {
	f, _ := v.([]float64)
	return f
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// MilestonesFrom reads the upgrade dates from a bound parameter set.
func MilestonesFrom(p engine.Params) Milestones {
	return Milestones{
		EIP1559:      p.Time(ParamDateEIP1559),
		ProofOfStake: p.Time(ParamDatePoS),
	}
}

// CurrentEpoch is the epoch offset of the timestep being computed from prev.
func CurrentEpoch(p engine.Params, prev engine.State) int {
	return (prev.Timestep + 1) * p.Int(ParamDT)
}
