package models

import "eth-economic-model/internal/config"

// SimulationRequest represents the request body for submitting a simulation
type SimulationRequest struct {
	Experiment string                `json:"experiment" binding:"required"` // registered template name
	Scenario   config.ScenarioConfig `json:"scenario,omitempty"`
}

// TrajectoryQuery selects and formats trajectory rows
type TrajectoryQuery struct {
	Format string `form:"format"` // "json" (default), "csv", "arrow"
	Subset *int   `form:"subset"`
	Run    *int   `form:"run"`
}
