package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eth-economic-model/internal/engine"
)

func TestIntegerSquareRoot(t *testing.T) {
	cases := map[uint64]uint64{
		0: 0, 1: 1, 2: 1, 3: 1, 4: 2, 15: 3, 16: 4, 17: 4,
		9_600_000_000_000_000: 97979589,
		1<<64 - 1:             4294967295,
	}
	for n, want := range cases {
		assert.Equal(t, want, IntegerSquareRoot(n), "isqrt(%d)", n)
	}
}

func TestBaseRewardIdentity(t *testing.T) {
	validators := []uint64{1, 16_384, 100_000, 300_000, 555_555, 1_000_000}
	balances := []uint64{16e9, 17e9, 31e9, 32e9}
	for _, n := range validators {
		for _, eff := range balances {
			total := n * eff
			perIncrement := BaseRewardPerIncrement(total)
			baseReward := BaseReward(eff, perIncrement)
			increments := total / EffectiveBalanceIncrement
			assert.Equal(t, perIncrement*increments, baseReward*n, "n=%d eff=%d", n, eff)
		}
	}
}

func TestBaseRewardReference(t *testing.T) {
	// 300k validators at 32 ETH.
	per := BaseRewardPerIncrement(300_000 * MaxEffectiveBalance)
	assert.Equal(t, uint64(653), per)
	assert.Equal(t, uint64(653*32), BaseReward(MaxEffectiveBalance, per))
	assert.Zero(t, BaseRewardPerIncrement(0))
}

func TestChurnLimit(t *testing.T) {
	assert.Equal(t, uint64(4), ChurnLimit(0))
	assert.Equal(t, uint64(4), ChurnLimit(300_000))
	assert.Equal(t, uint64(15), ChurnLimit(1_000_000))
}

func TestParseStage(t *testing.T) {
	s, err := ParseStage("Proof_Of_Stake")
	require.NoError(t, err)
	assert.Equal(t, StageProofOfStake, s)

	_, err = ParseStage("phase_7")
	var ise *InvalidStageError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "phase_7", ise.Value)

	var st Stage
	require.NoError(t, st.UnmarshalText([]byte("eip1559")))
	assert.Equal(t, StageEIP1559, st)
	b, err := StageAll.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "all", string(b))
}

func TestNextStageForwardOnly(t *testing.T) {
	m := Milestones{
		EIP1559:      time.Date(2021, 8, 5, 0, 0, 0, 0, time.UTC),
		ProofOfStake: time.Date(2022, 9, 15, 0, 0, 0, 0, time.UTC),
	}
	at := func(y int, mo time.Month, d int) time.Time { return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC) }

	s, err := NextStage(StageBeaconChain, StageAll, at(2021, 1, 1), m)
	require.NoError(t, err)
	assert.Equal(t, StageBeaconChain, s)

	s, _ = NextStage(s, StageAll, at(2021, 8, 5), m)
	assert.Equal(t, StageEIP1559, s)

	s, _ = NextStage(s, StageAll, at(2023, 1, 1), m)
	assert.Equal(t, StageProofOfStake, s)

	// A timestamp before the milestones never moves the stage back.
	s, _ = NextStage(s, StageAll, at(2020, 1, 1), m)
	assert.Equal(t, StageProofOfStake, s)

	// Both milestones crossed in one step.
	s, _ = NextStage(0, StageAll, at(2024, 1, 1), m)
	assert.Equal(t, StageProofOfStake, s)

	pinned, _ := NextStage(StageBeaconChain, StageEIP1559, at(2030, 1, 1), m)
	assert.Equal(t, StageEIP1559, pinned)

	_, err = NextStage(StageBeaconChain, Stage(42), at(2030, 1, 1), m)
	assert.Error(t, err)
}

func TestTimestamp(t *testing.T) {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, start.Add(24*time.Hour), Timestamp(start, EpochsPerDay))
}

func TestStageGates(t *testing.T) {
	assert.False(t, StageBeaconChain.FeeMarket())
	assert.True(t, StageEIP1559.FeeMarket())
	assert.False(t, StageEIP1559.ProofOfStake())
	assert.True(t, StageProofOfStake.FeeMarket())
	assert.True(t, StageProofOfStake.ProofOfStake())
}

func TestCoerce(t *testing.T) {
	dt, _ := Lookup(ParamDT)
	v, err := Coerce(dt, 225.0)
	require.NoError(t, err)
	assert.Equal(t, 225, v)
	_, err = Coerce(dt, 1.5)
	assert.Error(t, err)

	price, _ := Lookup(ParamETHPriceProcess)
	v, err = Coerce(price, 3000)
	require.NoError(t, err)
	assert.Equal(t, 3000.0, v.(engine.Process)(4, 1000))

	d, _ := Lookup(ParamDatePoS)
	v, err = Coerce(d, "2022-09-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 9, 15, 0, 0, 0, 0, time.UTC), v)

	st, _ := Lookup(ParamStage)
	_, err = Coerce(st, "sharding")
	var ise *InvalidStageError
	assert.ErrorAs(t, err, &ise)

	shares, _ := Lookup(ParamValidatorShares)
	v, err = Coerce(shares, []any{0.5, 0.5, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Len(t, v, 7)
}

func TestApplyOverrides(t *testing.T) {
	set := DefaultParameterSet()
	err := ApplyOverrides(set, map[string][]any{
		ParamDT:           {1},
		ParamSlashingRate: {0, 1, 2},
		ParamStage:        {"proof_of_stake"},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{1}, set.Candidates(ParamDT))
	assert.Len(t, set.Candidates(ParamSlashingRate), 3)
	assert.Equal(t, []any{StageProofOfStake}, set.Candidates(ParamStage))

	err = ApplyOverrides(set, map[string][]any{"no_such_parameter": {1}})
	var ue *engine.UnregisteredParameterError
	assert.ErrorAs(t, err, &ue)
}

func TestValidateParameterSet(t *testing.T) {
	require.NoError(t, ValidateParameterSet(DefaultParameterSet()))

	bad := DefaultParameterSet()
	bad.Declare(ParamStage, Stage(9))
	var ise *InvalidStageError
	assert.True(t, errors.As(ValidateParameterSet(bad), &ise))

	shares := DefaultParameterSet()
	shares.Declare(ParamValidatorShares, []float64{0.5, 0.1, 0, 0, 0, 0, 0})
	assert.ErrorContains(t, ValidateParameterSet(shares), "sum to 1")

	dt := DefaultParameterSet()
	dt.Declare(ParamDT, 0)
	assert.Error(t, ValidateParameterSet(dt))
}

func TestEnvironmentSharesSumToOne(t *testing.T) {
	sum := 0.0
	for _, e := range Environments() {
		sum += e.Share
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
	assert.Len(t, EnvironmentNames(), NumEnvironments())
}

func TestInitialState(t *testing.T) {
	s, err := InitialState(InitialOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultETHPrice, s.Float(KeyETHPrice))
	assert.Equal(t, 9_600_000.0, s.Float(KeyETHStaked))
	assert.Equal(t, float64(653*32), s.Float(KeyBaseReward))
	assert.Equal(t, StageBeaconChain, s.Get(KeyStage))
	assert.Len(t, s.Vector(KeyValidatorCountDistribution), NumEnvironments())

	_, err = InitialState(InitialOptions{AverageEffectiveBalance: 40e9})
	assert.Error(t, err)
}

func TestInitialOptionsOverlay(t *testing.T) {
	base := InitialOptions{ETHPrice: 1500, ETHSupply: 120e6, Stage: StageAll}
	got := base.Overlay(InitialOptions{ETHPrice: 3000, Stage: StageProofOfStake})
	assert.Equal(t, 3000.0, got.ETHPrice)
	assert.Equal(t, 120e6, got.ETHSupply)
	assert.Equal(t, StageProofOfStake, got.Stage)
	assert.Equal(t, base, base.Overlay(InitialOptions{}))
}
