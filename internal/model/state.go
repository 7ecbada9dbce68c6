package model

import (
	"fmt"
	"time"

	"eth-economic-model/internal/engine"
)

// State variable keys. eth_* amounts are in ETH; rewards, penalties, fees and
// issuance are Gwei per timestep; validator revenue, costs and profit are USD.
const (
	KeyStage     = "stage"
	KeyTimestamp = "timestamp"

	KeyETHPrice  = "eth_price"
	KeyETHSupply = "eth_supply"

	KeyActivationQueue   = "number_of_validators_in_activation_queue"
	KeyActiveValidators  = "number_of_active_validators"
	KeyAwakeValidators   = "number_of_awake_validators"
	KeyValidatorUptime   = "validator_uptime"
	KeyETHStaked         = "eth_staked"
	KeyAverageEffBalance = "average_effective_balance"
	KeyBaseReward        = "base_reward"

	KeySourceReward           = "source_reward"
	KeyTargetReward           = "target_reward"
	KeyHeadReward             = "head_reward"
	KeySyncReward             = "sync_reward"
	KeyBlockProposerReward    = "block_proposer_reward"
	KeyAttestationPenalties   = "attestation_penalties"
	KeySyncCommitteePenalties = "sync_committee_penalties"
	KeyAmountSlashed          = "amount_slashed"
	KeyWhistleblowerRewards   = "whistleblower_rewards"

	KeyTotalBasefee     = "total_basefee"
	KeyTotalTips        = "total_tips_to_validators"
	KeyTotalRealizedMEV = "total_realized_mev_to_validators"

	KeyValidatingRewards   = "validating_rewards"
	KeyValidatingPenalties = "validating_penalties"
	KeyOnlineRewards       = "total_online_validator_rewards"

	KeyPoWIssuance     = "pow_issuance"
	KeyNetworkIssuance = "total_network_issuance"
	KeySupplyInflation = "supply_inflation"

	KeyValidatorCountDistribution = "validator_count_distribution"
	KeyValidatorETHStaked         = "validator_eth_staked"
	KeyValidatorRevenue           = "validator_revenue"
	KeyValidatorCosts             = "validator_costs"
	KeyValidatorProfit            = "validator_profit"
	KeyValidatorRevenueYields     = "validator_revenue_yields"
	KeyValidatorProfitYields      = "validator_profit_yields"
	KeyTotalRevenue               = "total_revenue"
	KeyTotalCosts                 = "total_costs"
	KeyTotalProfit                = "total_profit"
	KeyTotalRevenueYields         = "total_revenue_yields"
	KeyTotalProfitYields          = "total_profit_yields"
)

// InitialOptions seeds the initial state. Zero fields take the defaults.
type InitialOptions struct {
	ETHPrice                float64 // USD
	ETHSupply               float64 // ETH
	ActiveValidators        float64
	ActivationQueue         float64
	AverageEffectiveBalance float64 // Gwei
	Uptime                  float64
	Stage                   Stage
	DateStart               time.Time
}

// Overlay returns o with every non-zero field of override applied.
func (o InitialOptions) Overlay(override InitialOptions) InitialOptions {
	out := o
	if override.ETHPrice != 0 {
		out.ETHPrice = override.ETHPrice
	}
	if override.ETHSupply != 0 {
		out.ETHSupply = override.ETHSupply
	}
	if override.ActiveValidators != 0 {
		out.ActiveValidators = override.ActiveValidators
	}
	if override.ActivationQueue != 0 {
		out.ActivationQueue = override.ActivationQueue
	}
	if override.AverageEffectiveBalance != 0 {
		out.AverageEffectiveBalance = override.AverageEffectiveBalance
	}
	if override.Uptime != 0 {
		out.Uptime = override.Uptime
	}
	if override.Stage != 0 {
		out.Stage = override.Stage
	}
	if !override.DateStart.IsZero() {
		out.DateStart = override.DateStart
	}
	return out
}

const (
	DefaultETHPrice         = 2000.0
	DefaultETHSupply        = 118_000_000.0
	DefaultActiveValidators = 300_000.0
	DefaultUptime           = 0.98
)

func (o InitialOptions) withDefaults() InitialOptions {
	if o.ETHPrice == 0 {
		o.ETHPrice = DefaultETHPrice
	}
	if o.ETHSupply == 0 {
		o.ETHSupply = DefaultETHSupply
	}
	if o.ActiveValidators == 0 {
		o.ActiveValidators = DefaultActiveValidators
	}
	if o.AverageEffectiveBalance == 0 {
		o.AverageEffectiveBalance = MaxEffectiveBalance
	}
	if o.Uptime == 0 {
		o.Uptime = DefaultUptime
	}
	if o.Stage == 0 {
		o.Stage = StageBeaconChain
	}
	if o.DateStart.IsZero() {
		o.DateStart = date(2022, time.January, 1)
	}
	return o
}

// InitialState builds the timestep-0 snapshot. Its keys are the full schema
// the update blocks must close over.
func InitialState(opts InitialOptions) (engine.State, error) {
	o := opts.withDefaults()
	if o.Stage == StageAll {
		o.Stage = StageBeaconChain
	}
	if !o.Stage.Valid() {
		return engine.State{}, &InvalidStageError{Value: o.Stage.String()}
	}
	if o.ActiveValidators < 0 || o.ETHSupply < 0 || o.ETHPrice < 0 {
		return engine.State{}, fmt.Errorf("initial state: negative value in %+v", o)
	}
	if o.AverageEffectiveBalance > MaxEffectiveBalance {
		return engine.State{}, fmt.Errorf("initial state: average effective balance %g exceeds %d", o.AverageEffectiveBalance, MaxEffectiveBalance)
	}

	n := NumEnvironments()
	zeros := func() []float64 { return make([]float64, n) }
	shares := environmentVector(func(e Environment) float64 { return e.Share })
	dist := make([]float64, n)
	for i, s := range shares {
		dist[i] = s * o.ActiveValidators
	}

	staked := o.ActiveValidators * o.AverageEffectiveBalance / GweiPerETH
	perIncrement := BaseRewardPerIncrement(uint64(o.ActiveValidators * o.AverageEffectiveBalance))
	baseReward := float64(BaseReward(uint64(o.AverageEffectiveBalance), perIncrement))

	return engine.NewState(
		engine.Var{Key: KeyStage, Value: o.Stage},
		engine.Var{Key: KeyTimestamp, Value: o.DateStart},
		engine.Var{Key: KeyETHPrice, Value: o.ETHPrice},
		engine.Var{Key: KeyETHSupply, Value: o.ETHSupply},
		engine.Var{Key: KeyActivationQueue, Value: o.ActivationQueue},
		engine.Var{Key: KeyActiveValidators, Value: o.ActiveValidators},
		engine.Var{Key: KeyAwakeValidators, Value: o.ActiveValidators * o.Uptime},
		engine.Var{Key: KeyValidatorUptime, Value: o.Uptime},
		engine.Var{Key: KeyETHStaked, Value: staked},
		engine.Var{Key: KeyAverageEffBalance, Value: o.AverageEffectiveBalance},
		engine.Var{Key: KeyBaseReward, Value: baseReward},
		engine.Var{Key: KeySourceReward, Value: 0.0},
		engine.Var{Key: KeyTargetReward, Value: 0.0},
		engine.Var{Key: KeyHeadReward, Value: 0.0},
		engine.Var{Key: KeySyncReward, Value: 0.0},
		engine.Var{Key: KeyBlockProposerReward, Value: 0.0},
		engine.Var{Key: KeyAttestationPenalties, Value: 0.0},
		engine.Var{Key: KeySyncCommitteePenalties, Value: 0.0},
		engine.Var{Key: KeyAmountSlashed, Value: 0.0},
		engine.Var{Key: KeyWhistleblowerRewards, Value: 0.0},
		engine.Var{Key: KeyTotalBasefee, Value: 0.0},
		engine.Var{Key: KeyTotalTips, Value: 0.0},
		engine.Var{Key: KeyTotalRealizedMEV, Value: 0.0},
		engine.Var{Key: KeyValidatingRewards, Value: 0.0},
		engine.Var{Key: KeyValidatingPenalties, Value: 0.0},
		engine.Var{Key: KeyOnlineRewards, Value: 0.0},
		engine.Var{Key: KeyPoWIssuance, Value: 0.0},
		engine.Var{Key: KeyNetworkIssuance, Value: 0.0},
		engine.Var{Key: KeySupplyInflation, Value: 0.0},
		engine.Var{Key: KeyValidatorCountDistribution, Value: dist},
		engine.Var{Key: KeyValidatorETHStaked, Value: scale(dist, o.AverageEffectiveBalance/GweiPerETH)},
		engine.Var{Key: KeyValidatorRevenue, Value: zeros()},
		engine.Var{Key: KeyValidatorCosts, Value: zeros()},
		engine.Var{Key: KeyValidatorProfit, Value: zeros()},
		engine.Var{Key: KeyValidatorRevenueYields, Value: zeros()},
		engine.Var{Key: KeyValidatorProfitYields, Value: zeros()},
		engine.Var{Key: KeyTotalRevenue, Value: 0.0},
		engine.Var{Key: KeyTotalCosts, Value: 0.0},
		engine.Var{Key: KeyTotalProfit, Value: 0.0},
		engine.Var{Key: KeyTotalRevenueYields, Value: 0.0},
		engine.Var{Key: KeyTotalProfitYields, Value: 0.0},
	)
}

func scale(v []float64, k float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x * k
	}
	return out
}
