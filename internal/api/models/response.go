package models

import (
	"time"

	"eth-economic-model/internal/analysis"
)

// SimulationResponse represents one submitted simulation
type SimulationResponse struct {
	ID          string             `json:"id"`
	Experiment  string             `json:"experiment"`
	Status      string             `json:"status"`
	Error       string             `json:"error,omitempty"`
	SubmittedAt time.Time          `json:"submitted_at"`
	StartedAt   *time.Time         `json:"started_at,omitempty"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
	Result      *SimulationResult  `json:"result,omitempty"`
	Summaries   []analysis.Summary `json:"summaries,omitempty"`
}

// SimulationResult describes the shape of a finished simulation
type SimulationResult struct {
	Subsets         int           `json:"subsets"`
	Runs            int           `json:"runs"`
	Timesteps       int           `json:"timesteps"`
	Rows            int           `json:"rows"`
	DurationSeconds float64       `json:"duration_seconds"`
	Labels          []string      `json:"labels,omitempty"`
	Failures        []FailureInfo `json:"failures,omitempty"`
}

// FailureInfo locates a run that stopped early
type FailureInfo struct {
	Subset   int    `json:"subset"`
	Run      int    `json:"run"`
	Timestep int    `json:"timestep"`
	Block    string `json:"block"`
	Message  string `json:"message"`
}

// SimulationListResponse lists retained simulations, oldest first
type SimulationListResponse struct {
	Simulations []SimulationResponse `json:"simulations"`
}

// ExperimentInfo represents a registered experiment template
type ExperimentInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Subsets     int      `json:"subsets"`
	Runs        int      `json:"runs"`
	Timesteps   int      `json:"timesteps"`
	Sweep       string   `json:"sweep"`
	Labels      []string `json:"labels,omitempty"`
	Stochastic  []string `json:"stochastic,omitempty"`
}

// ParameterInfo describes a registered parameter
type ParameterInfo struct {
	Name        string      `json:"name"`
	Kind        string      `json:"kind"`
	Unit        string      `json:"unit,omitempty"`
	Description string      `json:"description"`
	Default     interface{} `json:"default,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
