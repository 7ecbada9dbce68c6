package model

import (
	"fmt"
	"math"
)

// Environment is a validator operating profile.
// Costs are in USD per validator per month; ThirdPartyFee is a fraction of revenue.
type Environment struct {
	Name              string
	Share             float64
	HardwareCostMonth float64
	CloudCostMonth    float64
	ThirdPartyFee     float64
}

var environments = []Environment{
	{Name: "diy_hardware", Share: 0.37, HardwareCostMonth: 40},
	{Name: "diy_cloud", Share: 0.13, CloudCostMonth: 60},
	{Name: "pool_staas", Share: 0.27, ThirdPartyFee: 0.12},
	{Name: "pool_hardware", Share: 0.05, HardwareCostMonth: 40, ThirdPartyFee: 0.03},
	{Name: "pool_cloud", Share: 0.02, CloudCostMonth: 60, ThirdPartyFee: 0.03},
	{Name: "staas_full", Share: 0.08, ThirdPartyFee: 0.15},
	{Name: "staas_self_custodied", Share: 0.08, ThirdPartyFee: 0.12},
}

func Environments() []Environment {
	return append([]Environment(nil), environments...)
}

func EnvironmentNames() []string {
	out := make([]string, len(environments))
	for i, e := range environments {
		out[i] = e.Name
	}
	return out
}

func NumEnvironments() int { return len(environments) }

func environmentVector(f func(Environment) float64) []float64 {
	out := make([]float64, len(environments))
	for i, e := range environments {
		out[i] = f(e)
	}
	return out
}

// ValidateEnvironmentVectors checks per-environment parameter vectors.
func ValidateEnvironmentVectors(shares, hardware, cloud, fees []float64) error {
	n := len(environments)
	vectors := []struct {
		name string
		v    []float64
	}{
		{ParamValidatorShares, shares},
		{ParamHardwareCosts, hardware},
		{ParamCloudCosts, cloud},
		{ParamThirdPartyFees, fees},
	}
	for _, vec := range vectors {
		name, v := vec.name, vec.v
		if len(v) != n {
			return fmt.Errorf("%s: want %d environments, have %d", name, n, len(v))
		}
		for i, x := range v {
			if x < 0 || math.IsNaN(x) {
				return fmt.Errorf("%s[%s] must be >= 0, got %g", name, environments[i].Name, x)
			}
		}
	}
	sum := 0.0
	for _, s := range shares {
		sum += s
	}
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("%s must sum to 1, got %g", ParamValidatorShares, sum)
	}
	for i, f := range fees {
		if f > 1 {
			return fmt.Errorf("%s[%s] is a fraction, got %g", ParamThirdPartyFees, environments[i].Name, f)
		}
	}
	return nil
}
