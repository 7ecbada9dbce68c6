package model

// Protocol and accounting constants. Balances are in Gwei.
const (
	GweiPerETH = 1e9

	SlotsPerEpoch   = 32
	SecondsPerSlot  = 12
	SecondsPerEpoch = SlotsPerEpoch * SecondsPerSlot
	EpochsPerDay    = 225
	EpochsPerYear   = 82180
	EpochsPerMonth  = EpochsPerYear / 12.0

	BaseRewardFactor          = 64
	EffectiveBalanceIncrement = 1_000_000_000
	MaxEffectiveBalance       = 32_000_000_000

	MinSlashingPenaltyQuotient  = 64
	WhistleblowerRewardQuotient = 512

	MinPerEpochChurnLimit = 4
	ChurnLimitQuotient    = 65536

	ElasticityMultiplier = 2
)

// Incentive weights. Attestation flags take 3/4 of the weight, sync committee
// participation and block proposals 1/8 each.
const (
	TimelySourceWeight = 12
	TimelyTargetWeight = 24
	TimelyHeadWeight   = 12
	SyncRewardWeight   = 8
	ProposerWeight     = 8
	WeightDenominator  = 64
)

// IntegerSquareRoot returns the largest x with x*x <= n.
func IntegerSquareRoot(n uint64) uint64 {
	if n < 2 {
		return n
	}
	x := n
	y := x/2 + x&1
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}

// BaseRewardPerIncrement is the per-increment base reward for a given total
// active balance in Gwei.
func BaseRewardPerIncrement(totalActiveBalance uint64) uint64 {
	root := IntegerSquareRoot(totalActiveBalance)
	if root == 0 {
		return 0
	}
	return EffectiveBalanceIncrement * BaseRewardFactor / root
}

// BaseReward is the per-validator base reward for an effective balance in Gwei.
func BaseReward(effectiveBalance, perIncrement uint64) uint64 {
	return effectiveBalance / EffectiveBalanceIncrement * perIncrement
}

// ChurnLimit is the number of validators that may activate per epoch.
func ChurnLimit(active uint64) uint64 {
	if c := active / ChurnLimitQuotient; c > MinPerEpochChurnLimit {
		return c
	}
	return MinPerEpochChurnLimit
}

func GweiToETH(gwei float64) float64 { return gwei / GweiPerETH }

func ETHToGwei(eth float64) float64 { return eth * GweiPerETH }
