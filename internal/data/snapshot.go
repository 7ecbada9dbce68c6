package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"eth-economic-model/internal/model"
)

// Snapshot is a persisted set of live network values.
type Snapshot struct {
	ETHPrice         float64 `json:"eth_price"`
	ETHSupply        float64 `json:"eth_supply"`
	ActiveValidators float64 `json:"active_validators"`
	Epoch            float64 `json:"epoch"`
	UpdatedAt        string  `json:"updated_at"` // ISO 8601 timestamp
}

// DefaultSnapshot holds the model defaults used when a feed is unavailable.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		ETHPrice:         model.DefaultETHPrice,
		ETHSupply:        model.DefaultETHSupply,
		ActiveValidators: model.DefaultActiveValidators,
	}
}

// InitialOptions seeds the initial state from the snapshot.
func (s Snapshot) InitialOptions() model.InitialOptions {
	return model.InitialOptions{
		ETHPrice:         s.ETHPrice,
		ETHSupply:        s.ETHSupply,
		ActiveValidators: s.ActiveValidators,
	}
}

// LoadSnapshot loads a snapshot from a JSON file
func LoadSnapshot(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot file: %w", err)
	}
	return &s, nil
}

// SaveSnapshot saves a snapshot to a JSON file
func SaveSnapshot(s *Snapshot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	return nil
}

// DefaultSnapshotPath returns the default path for the snapshot file
func DefaultSnapshotPath() string {
	if path := os.Getenv("SNAPSHOT_FILE"); path != "" {
		return path
	}
	return "./data/snapshot.json"
}
