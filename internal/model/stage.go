package model

import (
	"fmt"
	"strings"
	"time"
)

// Stage is a network upgrade stage.
type Stage int

const (
	StageBeaconChain Stage = iota + 1
	StageEIP1559
	StageProofOfStake
	// StageAll starts at the beacon chain and advances through every
	// stage as the configured milestone dates pass.
	StageAll
)

var stageNames = map[Stage]string{
	StageBeaconChain:  "beacon_chain",
	StageEIP1559:      "eip1559",
	StageProofOfStake: "proof_of_stake",
	StageAll:          "all",
}

func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

func (s Stage) Valid() bool {
	_, ok := stageNames[s]
	return ok
}

// FeeMarket reports whether EIP-1559 base fee burning is active.
func (s Stage) FeeMarket() bool {
	return s == StageEIP1559 || s == StageProofOfStake
}

// ProofOfStake reports whether the execution layer has merged: tips and MEV
// go to validators and proof-of-work issuance stops.
func (s Stage) ProofOfStake() bool {
	return s == StageProofOfStake
}

func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, &InvalidStageError{Value: s.String()}
	}
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(b []byte) error {
	v, err := ParseStage(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// InvalidStageError is a configuration error.
type InvalidStageError struct {
	Value string
}

func (e *InvalidStageError) Error() string {
	return fmt.Sprintf("invalid stage %q (want beacon_chain, eip1559, proof_of_stake or all)", e.Value)
}

func ParseStage(s string) (Stage, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for st, name := range stageNames {
		if name == key {
			return st, nil
		}
	}
	return 0, &InvalidStageError{Value: s}
}

// Milestones are the upgrade dates used in StageAll mode.
type Milestones struct {
	EIP1559      time.Time
	ProofOfStake time.Time
}

// NextStage returns the stage for timestamp given the stage at the previous
// timestep. A pinned stage never changes; in StageAll mode the stage only
// moves forward.
func NextStage(current, configured Stage, timestamp time.Time, m Milestones) (Stage, error) {
	if !configured.Valid() {
		return 0, &InvalidStageError{Value: configured.String()}
	}
	if configured != StageAll {
		return configured, nil
	}
	s := current
	if s == 0 || s == StageAll {
		s = StageBeaconChain
	}
	if s == StageBeaconChain && !timestamp.Before(m.EIP1559) {
		s = StageEIP1559
	}
	if s == StageEIP1559 && !timestamp.Before(m.ProofOfStake) {
		s = StageProofOfStake
	}
	return s, nil
}

// Timestamp converts elapsed epochs since start into simulated wall time.
func Timestamp(start time.Time, epochs int) time.Time {
	return start.Add(time.Duration(epochs) * SecondsPerEpoch * time.Second)
}
