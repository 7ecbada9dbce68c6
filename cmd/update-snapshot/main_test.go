package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eth-economic-model/internal/data"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newSnapshotCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("action") {
		case "ethprice":
			_, _ = io.WriteString(w, `{"status":"1","message":"OK","result":{"ethbtc":"0.05","ethusd":"2500.5"}}`)
		case "ethsupply":
			_, _ = io.WriteString(w, `{"status":"1","message":"OK","result":"120000000000000000000000000"}`)
		}
	})
	mux.HandleFunc("/api/v1/epoch/latest", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"OK","data":{"epoch":250000,"validatorscount":910000}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSnapshotCmdWritesFeeds(t *testing.T) {
	srv := upstream(t)
	path := filepath.Join(t.TempDir(), "nested", "snapshot.json")

	out, err := execute(t, "--output", path, "--etherscan-url", srv.URL, "--beaconchain-url", srv.URL, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "ETH price:          $2500.50")
	assert.Contains(t, out, "Active validators:  910000")
	assert.Contains(t, out, "Saved snapshot to "+path)

	snap, err := data.LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, 2500.5, snap.ETHPrice)
	assert.Equal(t, 120_000_000.0, snap.ETHSupply)
	assert.Equal(t, 910000.0, snap.ActiveValidators)
	assert.Equal(t, 250000.0, snap.Epoch)
	assert.NotEmpty(t, snap.UpdatedAt)
}

func TestSnapshotCmdKeepsSeedValuesOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	seed := filepath.Join(dir, "seed.json")
	require.NoError(t, data.SaveSnapshot(&data.Snapshot{ETHPrice: 1234, ETHSupply: 119e6, ActiveValidators: 400000, Epoch: 7, UpdatedAt: "2024-01-01T00:00:00Z"}, seed))
	path := filepath.Join(dir, "snapshot.json")

	out, err := execute(t, "--output", path, "--seed", seed, "--etherscan-url", srv.URL, "--beaconchain-url", srv.URL, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded previous snapshot from "+seed)

	snap, err := data.LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, 1234.0, snap.ETHPrice)
	assert.Equal(t, 119e6, snap.ETHSupply)
	assert.Equal(t, 400000.0, snap.ActiveValidators)
	assert.Equal(t, 7.0, snap.Epoch)
}

func TestSnapshotCmdRejectsArgs(t *testing.T) {
	_, err := execute(t, "extra")
	assert.Error(t, err)
}
