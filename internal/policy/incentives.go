package policy

import (
	"errors"
	"fmt"

	"eth-economic-model/internal/engine"
	"eth-economic-model/internal/model"
)

// ErrGasLimit is returned when a block uses more gas than the EIP-1559 limit.
var ErrGasLimit = errors.New("gas used exceeds gas limit")

func incentivesBlock() engine.Block {
	return engine.Block{
		Label: "incentives",
		Policies: []engine.Policy{
			{Name: "attestation", Reads: []string{model.ParamDT}, Fn: policyAttestation},
			{Name: "sync committee", Reads: []string{model.ParamDT}, Fn: policySyncCommittee},
			{Name: "block proposer", Reads: []string{model.ParamDT}, Fn: policyBlockProposer},
			{Name: "slashing", Reads: []string{model.ParamDT, model.ParamSlashingRate}, Fn: policySlashing},
		},
		Variables: []engine.StateUpdate{
			fromSignal(model.KeySourceReward),
			fromSignal(model.KeyTargetReward),
			fromSignal(model.KeyHeadReward),
			fromSignal(model.KeySyncReward),
			fromSignal(model.KeyBlockProposerReward),
			fromSignal(model.KeyAttestationPenalties),
			fromSignal(model.KeySyncCommitteePenalties),
			fromSignal(model.KeyAmountSlashed),
			fromSignal(model.KeyWhistleblowerRewards),
		},
	}
}

// totalBaseReward is the base reward summed over active validators, in Gwei per epoch.
func totalBaseReward(prev engine.State) float64 {
	return prev.Float(model.KeyBaseReward) * prev.Float(model.KeyActiveValidators)
}

// attestationReward is the reward for one participation flag. Only online
// validators earn it, scaled again by the participating share.
func attestationReward(prev engine.State, weight, d float64) float64 {
	u := prev.Float(model.KeyValidatorUptime)
	return totalBaseReward(prev) * weight / model.WeightDenominator * u * u * d
}

func syncReward(prev engine.State, d float64) float64 {
	u := prev.Float(model.KeyValidatorUptime)
	return totalBaseReward(prev) * model.SyncRewardWeight / model.WeightDenominator * u * d
}

func policyAttestation(p engine.Params, _ int, _ engine.History, prev engine.State) (engine.Signals, error) {
	d := dt(p)
	u := prev.Float(model.KeyValidatorUptime)
	penalties := totalBaseReward(prev) * (model.TimelySourceWeight + model.TimelyTargetWeight) / model.WeightDenominator * (1 - u) * d
	return engine.Signals{
		model.KeySourceReward:         attestationReward(prev, model.TimelySourceWeight, d),
		model.KeyTargetReward:         attestationReward(prev, model.TimelyTargetWeight, d),
		model.KeyHeadReward:           attestationReward(prev, model.TimelyHeadWeight, d),
		model.KeyAttestationPenalties: penalties,
	}, nil
}

func policySyncCommittee(p engine.Params, _ int, _ engine.History, prev engine.State) (engine.Signals, error) {
	d := dt(p)
	u := prev.Float(model.KeyValidatorUptime)
	return engine.Signals{
		model.KeySyncReward:             syncReward(prev, d),
		model.KeySyncCommitteePenalties: totalBaseReward(prev) * model.SyncRewardWeight / model.WeightDenominator * (1 - u) * d,
	}, nil
}

// policyBlockProposer pays the proposer W_p / (W - W_p) of everything it includes.
func policyBlockProposer(p engine.Params, _ int, _ engine.History, prev engine.State) (engine.Signals, error) {
	d := dt(p)
	included := attestationReward(prev, model.TimelySourceWeight, d) +
		attestationReward(prev, model.TimelyTargetWeight, d) +
		attestationReward(prev, model.TimelyHeadWeight, d) +
		syncReward(prev, d)
	reward := included * model.ProposerWeight / (model.WeightDenominator - model.ProposerWeight)
	return engine.Signals{model.KeyBlockProposerReward: reward}, nil
}

func policySlashing(p engine.Params, _ int, _ engine.History, prev engine.State) (engine.Signals, error) {
	rate := p.Float(model.ParamSlashingRate)
	if rate < 0 {
		return nil, fmt.Errorf("slashing rate must be >= 0, got %g", rate)
	}
	eff := uint64(prev.Float(model.KeyAverageEffBalance))
	penalty := float64(eff / model.MinSlashingPenaltyQuotient)
	whistleblower := float64(eff / model.WhistleblowerRewardQuotient)
	// events = rate / 1000 * dt; multiplied out first to keep whole numbers exact.
	d := dt(p)
	return engine.Signals{
		model.KeyAmountSlashed:        rate * d * penalty / 1000,
		model.KeyWhistleblowerRewards: rate * d * whistleblower / 1000,
	}, nil
}

func eip1559Block() engine.Block {
	return engine.Block{
		Label: "eip1559",
		Policies: []engine.Policy{{
			Name: "transaction fees",
			Reads: []string{
				model.ParamDT, model.ParamBaseFeeProcess, model.ParamPriorityFeeProcess,
				model.ParamGasTargetProcess, model.ParamGasUsedProcess,
			},
			Fn: policyTransactionFees,
		}},
		Variables: []engine.StateUpdate{
			fromSignal(model.KeyTotalBasefee),
			fromSignal(model.KeyTotalTips),
		},
	}
}

// policyTransactionFees burns the base fee once the fee market is live and
// pays tips to validators after the merge. All blocks are assumed full to gas_used.
func policyTransactionFees(p engine.Params, _ int, _ engine.History, prev engine.State) (engine.Signals, error) {
	gasUsed, err := sample(p, prev, model.ParamGasUsedProcess)
	if err != nil {
		return nil, err
	}
	gasTarget, err := sample(p, prev, model.ParamGasTargetProcess)
	if err != nil {
		return nil, err
	}
	if limit := gasTarget * model.ElasticityMultiplier; gasUsed > limit {
		return nil, fmt.Errorf("%w: %g > %g", ErrGasLimit, gasUsed, limit)
	}
	baseFee, err := sample(p, prev, model.ParamBaseFeeProcess)
	if err != nil {
		return nil, err
	}
	tip, err := sample(p, prev, model.ParamPriorityFeeProcess)
	if err != nil {
		return nil, err
	}

	blocks := model.SlotsPerEpoch * dt(p)
	stage := stageOf(prev)
	basefee, tips := 0.0, 0.0
	if stage.FeeMarket() {
		basefee = baseFee * gasUsed * blocks
	}
	if stage.ProofOfStake() {
		tips = tip * gasUsed * blocks
	}
	return engine.Signals{model.KeyTotalBasefee: basefee, model.KeyTotalTips: tips}, nil
}

func mevBlock() engine.Block {
	return engine.Block{
		Label: "mev",
		Policies: []engine.Policy{{
			Name:  "mev",
			Reads: []string{model.ParamDT, model.ParamMEVPerBlock},
			Fn: func(p engine.Params, _ int, _ engine.History, prev engine.State) (engine.Signals, error) {
				mev := 0.0
				if stageOf(prev).ProofOfStake() {
					mev = model.ETHToGwei(p.Float(model.ParamMEVPerBlock)) * model.SlotsPerEpoch * dt(p)
				}
				return engine.Signals{model.KeyTotalRealizedMEV: mev}, nil
			},
		}},
		Variables: []engine.StateUpdate{fromSignal(model.KeyTotalRealizedMEV)},
	}
}

func validatingTotalsBlock() engine.Block {
	return engine.Block{
		Label: "validating totals",
		Variables: []engine.StateUpdate{
			{
				Key: model.KeyValidatingRewards,
				Fn: func(_ engine.Params, _ int, _ engine.History, prev engine.State, _ engine.Signals) (any, error) {
					return validatingRewards(prev), nil
				},
			},
			{
				Key: model.KeyValidatingPenalties,
				Fn: func(_ engine.Params, _ int, _ engine.History, prev engine.State, _ engine.Signals) (any, error) {
					return validatingPenalties(prev), nil
				},
			},
			{
				Key: model.KeyOnlineRewards,
				Fn: func(_ engine.Params, _ int, _ engine.History, prev engine.State, _ engine.Signals) (any, error) {
					return validatingRewards(prev) - validatingPenalties(prev) +
						prev.Float(model.KeyWhistleblowerRewards) +
						prev.Float(model.KeyTotalTips) +
						prev.Float(model.KeyTotalRealizedMEV), nil
				},
			},
		},
	}
}

func validatingRewards(prev engine.State) float64 {
	return prev.Float(model.KeySourceReward) +
		prev.Float(model.KeyTargetReward) +
		prev.Float(model.KeyHeadReward) +
		prev.Float(model.KeySyncReward) +
		prev.Float(model.KeyBlockProposerReward)
}

func validatingPenalties(prev engine.State) float64 {
	return prev.Float(model.KeyAttestationPenalties) + prev.Float(model.KeySyncCommitteePenalties)
}
