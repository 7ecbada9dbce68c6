package data

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func upstream(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("action") {
		case "ethprice":
			_, _ = io.WriteString(w, `{"status":"1","message":"OK","result":{"ethbtc":"0.05","ethusd":"3120.55"}}`)
		case "ethsupply":
			_, _ = io.WriteString(w, `{"status":"1","message":"OK","result":"120000000000000000000000000"}`)
		default:
			_, _ = io.WriteString(w, `{"status":"0","message":"NOTOK","result":"Error! Invalid action"}`)
		}
	})
	mux.HandleFunc("/api/v1/epoch/latest", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		_, _ = io.WriteString(w, `{"status":"OK","data":{"epoch":250000,"validatorscount":910000}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFeedsCollect(t *testing.T) {
	var hits int32
	srv := upstream(t, &hits)
	feeds := NewFeeds(FeedConfig{EtherscanURL: srv.URL, BeaconchainURL: srv.URL, EtherscanAPIKey: "k"}, quiet())
	defer feeds.Close()

	snap := feeds.Collect(context.Background(), DefaultSnapshot())
	assert.Equal(t, 3120.55, snap.ETHPrice)
	assert.Equal(t, 120_000_000.0, snap.ETHSupply)
	assert.Equal(t, 910000.0, snap.ActiveValidators)
	assert.Equal(t, 250000.0, snap.Epoch)
	assert.NotEmpty(t, snap.UpdatedAt)
	// The epoch endpoint serves both beacon chain feeds from cache.
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))

	feeds.Collect(context.Background(), DefaultSnapshot())
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestFeedFallsBackToDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	l, hook := test.NewNullLogger()
	client := NewClient(srv.URL, WithRetries(0, 0, 0), WithLogger(logrus.NewEntry(l)))
	feed := &EtherscanPriceFeed{Client: client, Log: logrus.NewEntry(l)}

	assert.Equal(t, 1234.0, feed.GetValue(context.Background(), 1234))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "etherscan_eth_price", hook.LastEntry().Data["feed"])
}

func TestFeedUnreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", WithRetries(0, 0, 0), WithLogger(quiet()))
	feed := &BeaconchainValidatorFeed{Client: client, Log: quiet()}
	assert.Equal(t, 7.0, feed.GetValue(context.Background(), 7))
}

func TestFeedUpstreamError(t *testing.T) {
	var hits int32
	srv := upstream(t, &hits)
	client := NewClient(srv.URL, WithLogger(quiet()))

	err := etherscanStats(context.Background(), client, "", "bogus", new(string))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "ETHERSCAN_ERROR", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "Invalid action")
}

func TestClientStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/limited":
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
		case "/forbidden":
			w.WriteHeader(http.StatusForbidden)
		default:
			_, _ = io.WriteString(w, `not json`)
		}
	}))
	defer srv.Close()
	client := NewClient(srv.URL, WithRetries(0, time.Millisecond, time.Millisecond), WithLogger(quiet()))

	var out map[string]any
	var apiErr *APIError
	err := client.GetJSON(context.Background(), "/limited", nil, &out)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "30", apiErr.RetryAfter)

	err = client.GetJSON(context.Background(), "/forbidden", nil, &out)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)

	err = client.GetJSON(context.Background(), "/garbage", nil, &out)
	assert.ErrorContains(t, err, "decode")
}

func TestCache(t *testing.T) {
	c := NewCache(50 * time.Millisecond)
	defer c.Stop()

	key := CacheKey("GET", "https://example.test/api?x=1")
	assert.Len(t, key, 64)
	assert.NotEqual(t, key, CacheKey("GET", "https://example.test/api?x=2"))

	c.Set(key, []byte("body"))
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "body", string(got))
	assert.Equal(t, 1, c.Len())

	assert.Eventually(t, func() bool {
		_, ok := c.Get(key)
		return !ok
	}, time.Second, 10*time.Millisecond)

	c.Set(key, []byte("again"))
	c.Clear()
	assert.Zero(t, c.Len())

	var nilCache *Cache
	_, ok = nilCache.Get(key)
	assert.False(t, ok)
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snapshot.json")
	in := &Snapshot{ETHPrice: 2500, ETHSupply: 120e6, ActiveValidators: 500000, Epoch: 100, UpdatedAt: "2024-01-01T00:00:00Z"}
	require.NoError(t, SaveSnapshot(in, path))

	out, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	opts := out.InitialOptions()
	assert.Equal(t, 2500.0, opts.ETHPrice)
	assert.Equal(t, 500000.0, opts.ActiveValidators)

	_, err = LoadSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDefaultSnapshotPath(t *testing.T) {
	t.Setenv("SNAPSHOT_FILE", "/tmp/snap.json")
	assert.Equal(t, "/tmp/snap.json", DefaultSnapshotPath())
	t.Setenv("SNAPSHOT_FILE", "")
	assert.Equal(t, "./data/snapshot.json", DefaultSnapshotPath())
}
