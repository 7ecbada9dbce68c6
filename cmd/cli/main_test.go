package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eth-economic-model/internal/data"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestExperimentsCmd(t *testing.T) {
	out, err := execute(t, "experiments")
	require.NoError(t, err)
	for _, name := range []string{"base", "eth_price_sweep", "eip1559_scenarios", "stochastic_price"} {
		assert.Contains(t, out, name)
	}

	out, err = execute(t, "experiments", "--json")
	require.NoError(t, err)
	var list []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.NotEmpty(t, list)
}

func TestParametersCmd(t *testing.T) {
	out, err := execute(t, "parameters")
	require.NoError(t, err)
	assert.Contains(t, out, "eth_price_process")
	assert.Contains(t, out, "2022-09-15")
}

func TestRunCmdWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "trajectory.csv")
	arrowPath := filepath.Join(dir, "out", "trajectory.arrow")
	rawPath := filepath.Join(dir, "raw.csv")

	out, err := execute(t, "run", "--experiment", "eth_price_sweep", "--timesteps", "3",
		"--csv", csvPath, "--arrow", arrowPath, "--raw-csv", rawPath, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Experiment eth_price_sweep: 5 subsets x 1 runs x 3 timesteps")
	assert.Contains(t, out, "ETH $500")
	assert.Contains(t, out, "total_profit_yields_pct")

	raw, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(t, lines, 1+5*4)
	assert.FileExists(t, arrowPath)
	assert.FileExists(t, rawPath)
}

func TestRunCmdConfigAndJSON(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
experiment: stochastic_price
scenario:
  runs: 3
  timesteps: 5
logging:
  level: error
`), 0o644))

	out, err := execute(t, "run", "--config", cfgPath, "--runs", "2", "--json")
	require.NoError(t, err)
	var got struct {
		Experiment string `json:"experiment"`
		Failures   int    `json:"failures"`
		Summaries  []struct {
			Runs     int `json:"runs"`
			Timestep int `json:"timestep"`
		} `json:"summaries"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "stochastic_price", got.Experiment)
	assert.Zero(t, got.Failures)
	require.Len(t, got.Summaries, 1)
	assert.Equal(t, 2, got.Summaries[0].Runs)
	assert.Equal(t, 5, got.Summaries[0].Timestep)
}

func TestRunCmdSnapshotAndLiveFeeds(t *testing.T) {
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "snapshot.json")
	require.NoError(t, data.SaveSnapshot(&data.Snapshot{ETHPrice: 1234, ETHSupply: 119e6, ActiveValidators: 400000}, snapPath))

	// Feeds that always fail fall back to the snapshot values.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
experiment: base
scenario:
  timesteps: 2
logging:
  level: error
data:
  etherscan_url: `+srv.URL+`
  beaconchain_url: `+srv.URL+`
`), 0o644))

	csvPath := filepath.Join(dir, "t.csv")
	_, err := execute(t, "run", "--config", cfgPath, "--snapshot", snapPath, "--live", "--csv", csvPath)
	require.NoError(t, err)

	raw, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	header := strings.Split(lines[0], ",")
	first := strings.Split(lines[1], ",")
	col := map[string]string{}
	for i, h := range header {
		col[h] = first[i]
	}
	assert.Equal(t, "1234", col["eth_price"])
	assert.Equal(t, "400000", col["number_of_active_validators"])
}

func TestRunCmdErrors(t *testing.T) {
	_, err := execute(t, "run", "--experiment", "nope")
	assert.ErrorContains(t, err, "unknown experiment")

	_, err = execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = execute(t, "run", "--snapshot", filepath.Join(t.TempDir(), "missing.json"), "--timesteps", "1")
	assert.ErrorContains(t, err, "snapshot")
}
