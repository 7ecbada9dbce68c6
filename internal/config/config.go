package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"eth-economic-model/internal/engine"
	"eth-economic-model/internal/experiment"
	"eth-economic-model/internal/model"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	Experiment string `yaml:"experiment"`
	// Optional: load scenario settings from a separate YAML (e.g. scenarios/*.yaml).
	// Fields set under scenario override those from the file.
	ScenarioFile string         `yaml:"scenario_file"`
	Scenario     ScenarioConfig `yaml:"scenario"`
	Workers      int            `yaml:"workers"`
	Output       OutputConfig   `yaml:"output"`
	Logging      LoggingConfig  `yaml:"logging"`
	Data         DataConfig     `yaml:"data"`
}

// ScenarioConfig overrides an experiment template. It doubles as the API
// request body, hence the JSON tags.
type ScenarioConfig struct {
	Runs      int     `yaml:"runs" json:"runs,omitempty"`
	Timesteps int     `yaml:"timesteps" json:"timesteps,omitempty"`
	Seed      *uint64 `yaml:"seed" json:"seed,omitempty"`
	Sweep     string  `yaml:"sweep" json:"sweep,omitempty"`
	// Parameters maps a registered name to one value or a list of candidates.
	// Vector parameters take a list of numbers, or a list of such lists.
	Parameters   map[string]any     `yaml:"parameters" json:"parameters,omitempty"`
	InitialState InitialStateConfig `yaml:"initial_state" json:"initial_state,omitempty"`
}

type InitialStateConfig struct {
	ETHPrice                float64 `yaml:"eth_price" json:"eth_price,omitempty"`
	ETHSupply               float64 `yaml:"eth_supply" json:"eth_supply,omitempty"`
	ActiveValidators        float64 `yaml:"active_validators" json:"active_validators,omitempty"`
	ActivationQueue         float64 `yaml:"activation_queue" json:"activation_queue,omitempty"`
	AverageEffectiveBalance float64 `yaml:"average_effective_balance" json:"average_effective_balance,omitempty"`
	ValidatorUptime         float64 `yaml:"validator_uptime" json:"validator_uptime,omitempty"`
	Stage                   string  `yaml:"stage" json:"stage,omitempty"`
	DateStart               string  `yaml:"date_start" json:"date_start,omitempty"`
}

type OutputConfig struct {
	CSV   string `yaml:"csv"`
	Arrow string `yaml:"arrow"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type DataConfig struct {
	Enabled         bool          `yaml:"enabled"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	EtherscanAPIKey string        `yaml:"etherscan_api_key"`
	EtherscanURL    string        `yaml:"etherscan_url"`
	BeaconchainURL  string        `yaml:"beaconchain_url"`
	SnapshotFile    string        `yaml:"snapshot_file"`
}

const (
	DefaultExperiment = "base"
	DefaultLogLevel   = "info"
	DefaultCacheTTL   = 3 * time.Hour
)

func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads and merges config, but does not validate it.
// ${VAR} references are expanded from the environment before parsing.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if c.ScenarioFile != "" {
		scenarioPath := c.ScenarioFile
		if !filepath.IsAbs(scenarioPath) {
			// Relative to the config file when that exists, else to the cwd.
			cand := filepath.Join(filepath.Dir(path), scenarioPath)
			if _, err := os.Stat(cand); err == nil {
				scenarioPath = cand
			}
		}
		loaded, err := loadScenarioFile(scenarioPath)
		if err != nil {
			return nil, err
		}
		c.Scenario = MergeScenario(loaded, c.Scenario)
	}
	return &c, nil
}

// Default is the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Experiment == "" {
		c.Experiment = DefaultExperiment
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Data.CacheTTL == 0 {
		c.Data.CacheTTL = DefaultCacheTTL
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if _, err := experiment.Get(c.Experiment); err != nil {
		return err
	}
	if c.Workers < 0 {
		return errors.New("workers must be >= 0")
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Data.Enabled && c.Data.CacheTTL < 0 {
		return errors.New("data.cache_ttl must be positive")
	}
	if _, err := c.Scenario.Overrides(); err != nil {
		return fmt.Errorf("scenario invalid: %w", err)
	}
	return nil
}

// Overrides converts the scenario into experiment overrides, coercing every
// parameter candidate to its registered kind.
func (s ScenarioConfig) Overrides() (experiment.Overrides, error) {
	var o experiment.Overrides
	if s.Runs < 0 || s.Timesteps < 0 {
		return o, errors.New("runs and timesteps must be >= 0")
	}
	o.Runs, o.Timesteps, o.Seed = s.Runs, s.Timesteps, s.Seed
	if s.Sweep != "" {
		mode, err := engine.ParseSweepMode(s.Sweep)
		if err != nil {
			return o, err
		}
		o.Sweep = mode
	}
	if len(s.Parameters) > 0 {
		o.Parameters = make(map[string][]any, len(s.Parameters))
		for name, raw := range s.Parameters {
			spec, ok := model.Lookup(name)
			if !ok {
				return o, &engine.UnregisteredParameterError{Parameter: name, Referrer: "scenario"}
			}
			cands := candidates(spec, raw)
			for _, c := range cands {
				if _, err := model.Coerce(spec, c); err != nil {
					return o, err
				}
			}
			o.Parameters[name] = cands
		}
	}
	initial, err := s.InitialState.options()
	if err != nil {
		return o, err
	}
	o.Initial = initial
	return o, nil
}

// candidates splits a raw value into sweep candidates. A vector parameter
// given as a flat list of numbers is a single candidate.
func candidates(spec model.ParameterSpec, raw any) []any {
	list, ok := raw.([]any)
	if !ok {
		return []any{raw}
	}
	if spec.Kind == model.KindVector && len(list) > 0 {
		if _, nested := list[0].([]any); !nested {
			return []any{list}
		}
	}
	return list
}

func (i InitialStateConfig) options() (model.InitialOptions, error) {
	o := model.InitialOptions{
		ETHPrice:                i.ETHPrice,
		ETHSupply:               i.ETHSupply,
		ActiveValidators:        i.ActiveValidators,
		ActivationQueue:         i.ActivationQueue,
		AverageEffectiveBalance: i.AverageEffectiveBalance,
		Uptime:                  i.ValidatorUptime,
	}
	if i.Stage != "" {
		st, err := model.ParseStage(i.Stage)
		if err != nil {
			return o, err
		}
		o.Stage = st
	}
	if i.DateStart != "" {
		t, err := time.Parse("2006-01-02", i.DateStart)
		if err != nil {
			return o, fmt.Errorf("initial_state.date_start: %w", err)
		}
		o.DateStart = t
	}
	return o, nil
}

type scenarioFileWrapper struct {
	Scenario ScenarioConfig `yaml:"scenario"`
}

func loadScenarioFile(path string) (ScenarioConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ScenarioConfig{}, err
	}
	var w scenarioFileWrapper
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &w); err != nil {
		return ScenarioConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return w.Scenario, nil
}

// MergeScenario overlays non-zero fields from override onto base.
// Parameters are merged by name.
func MergeScenario(base, override ScenarioConfig) ScenarioConfig {
	out := base
	if override.Runs != 0 {
		out.Runs = override.Runs
	}
	if override.Timesteps != 0 {
		out.Timesteps = override.Timesteps
	}
	if override.Seed != nil {
		out.Seed = override.Seed
	}
	if override.Sweep != "" {
		out.Sweep = override.Sweep
	}
	if len(override.Parameters) > 0 {
		merged := make(map[string]any, len(base.Parameters)+len(override.Parameters))
		for k, v := range base.Parameters {
			merged[k] = v
		}
		for k, v := range override.Parameters {
			merged[k] = v
		}
		out.Parameters = merged
	}
	out.InitialState = mergeInitial(base.InitialState, override.InitialState)
	return out
}

func mergeInitial(base, override InitialStateConfig) InitialStateConfig {
	out := base
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
	if override.ValidatorUptime != 0 {
		out.ValidatorUptime = override.ValidatorUptime
	}
	if override.Stage != "" {
		out.Stage = override.Stage
	}
	if override.DateStart != "" {
		out.DateStart = override.DateStart
	}
	return out
}

// Build resolves the configured experiment with the scenario applied.
func (c *Config) Build() (*experiment.Experiment, error) {
	exp, err := experiment.Get(c.Experiment)
	if err != nil {
		return nil, err
	}
	o, err := c.Scenario.Overrides()
	if err != nil {
		return nil, err
	}
	if err := exp.Apply(o); err != nil {
		return nil, err
	}
	return exp, nil
}
