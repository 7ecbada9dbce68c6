// Package data fetches live network values used to seed the initial state.
// Feeds never fail: on any upstream problem they log and return a default.
package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultEtherscanURL   = "https://api.etherscan.io"
	DefaultBeaconchainURL = "https://beaconcha.in"

	weiPerETH = 1e18
)

// Feed yields one live value, or def when the value cannot be fetched.
type Feed interface {
	Name() string
	GetValue(ctx context.Context, def float64) float64
}

type fetcher interface {
	Name() string
	Fetch(ctx context.Context) (float64, error)
}

func getValue(ctx context.Context, f fetcher, def float64, log *logrus.Entry) float64 {
	v, err := f.Fetch(ctx)
	if err != nil {
		if log == nil {
			log = logrus.NewEntry(logrus.StandardLogger())
		}
		log.WithError(err).WithFields(logrus.Fields{
			"feed":    f.Name(),
			"default": def,
		}).Warn("feed unavailable, using default")
		return def
	}
	return v
}

// etherscanResponse is the envelope of every Etherscan stats call.
type etherscanResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func etherscanStats(ctx context.Context, c *Client, apiKey, action string, out any) error {
	q := url.Values{}
	q.Set("module", "stats")
	q.Set("action", action)
	if apiKey != "" {
		q.Set("apikey", apiKey)
	}
	var resp etherscanResponse
	if err := c.GetJSON(ctx, "/api", q, &resp); err != nil {
		return err
	}
	if resp.Status != "1" {
		return &APIError{Code: "ETHERSCAN_ERROR", Message: fmt.Sprintf("%s: %s", resp.Message, string(resp.Result))}
	}
	return json.Unmarshal(resp.Result, out)
}

// EtherscanPriceFeed reports the ETH/USD price.
type EtherscanPriceFeed struct {
	Client *Client
	APIKey string
	Log    *logrus.Entry
}

func (f *EtherscanPriceFeed) Name() string { return "etherscan_eth_price" }

func (f *EtherscanPriceFeed) Fetch(ctx context.Context) (float64, error) {
	var result struct {
		ETHUSD string `json:"ethusd"`
	}
	if err := etherscanStats(ctx, f.Client, f.APIKey, "ethprice", &result); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(result.ETHUSD, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ethusd %q: %w", result.ETHUSD, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive price %g", price)
	}
	return price, nil
}

func (f *EtherscanPriceFeed) GetValue(ctx context.Context, def float64) float64 {
	return getValue(ctx, f, def, f.Log)
}

// EtherscanSupplyFeed reports the circulating ETH supply in ETH.
type EtherscanSupplyFeed struct {
	Client *Client
	APIKey string
	Log    *logrus.Entry
}

func (f *EtherscanSupplyFeed) Name() string { return "etherscan_eth_supply" }

func (f *EtherscanSupplyFeed) Fetch(ctx context.Context) (float64, error) {
	var wei string
	if err := etherscanStats(ctx, f.Client, f.APIKey, "ethsupply", &wei); err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(wei, 64)
	if err != nil {
		return 0, fmt.Errorf("parse supply %q: %w", wei, err)
	}
	return v / weiPerETH, nil
}

func (f *EtherscanSupplyFeed) GetValue(ctx context.Context, def float64) float64 {
	return getValue(ctx, f, def, f.Log)
}

type beaconchainEpoch struct {
	Status string `json:"status"`
	Data   struct {
		Epoch           float64 `json:"epoch"`
		ValidatorsCount float64 `json:"validatorscount"`
	} `json:"data"`
}

func latestEpoch(ctx context.Context, c *Client) (*beaconchainEpoch, error) {
	var resp beaconchainEpoch
	if err := c.GetJSON(ctx, "/api/v1/epoch/latest", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "OK" {
		return nil, &APIError{Code: "BEACONCHAIN_ERROR", Message: "status " + resp.Status}
	}
	return &resp, nil
}

// BeaconchainValidatorFeed reports the active validator count.
type BeaconchainValidatorFeed struct {
	Client *Client
	Log    *logrus.Entry
}

func (f *BeaconchainValidatorFeed) Name() string { return "beaconchain_validator_count" }

func (f *BeaconchainValidatorFeed) Fetch(ctx context.Context) (float64, error) {
	e, err := latestEpoch(ctx, f.Client)
	if err != nil {
		return 0, err
	}
	if e.Data.ValidatorsCount <= 0 {
		return 0, errors.New("no validators reported")
	}
	return e.Data.ValidatorsCount, nil
}

func (f *BeaconchainValidatorFeed) GetValue(ctx context.Context, def float64) float64 {
	return getValue(ctx, f, def, f.Log)
}

// BeaconchainEpochFeed reports the latest beacon chain epoch.
type BeaconchainEpochFeed struct {
	Client *Client
	Log    *logrus.Entry
}

func (f *BeaconchainEpochFeed) Name() string { return "beaconchain_epoch" }

func (f *BeaconchainEpochFeed) Fetch(ctx context.Context) (float64, error) {
	e, err := latestEpoch(ctx, f.Client)
	if err != nil {
		return 0, err
	}
	return e.Data.Epoch, nil
}

func (f *BeaconchainEpochFeed) GetValue(ctx context.Context, def float64) float64 {
	return getValue(ctx, f, def, f.Log)
}

// FeedConfig locates the upstream APIs.
type FeedConfig struct {
	EtherscanURL    string
	EtherscanAPIKey string
	BeaconchainURL  string
	CacheTTL        time.Duration
	Retries         int
}

// Feeds groups the values needed for a snapshot.
type Feeds struct {
	Price      Feed
	Supply     Feed
	Validators Feed
	Epoch      Feed

	cache *Cache
}

// NewFeeds wires all feeds to shared clients and one cache.
func NewFeeds(cfg FeedConfig, log *logrus.Entry) *Feeds {
	if cfg.EtherscanURL == "" {
		cfg.EtherscanURL = DefaultEtherscanURL
	}
	if cfg.BeaconchainURL == "" {
		cfg.BeaconchainURL = DefaultBeaconchainURL
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	cache := NewCache(cfg.CacheTTL)
	opts := []ClientOption{WithCache(cache), WithLogger(log)}
	if cfg.Retries > 0 {
		opts = append(opts, WithRetries(cfg.Retries, 500*time.Millisecond, 5*time.Second))
	}
	etherscan := NewClient(cfg.EtherscanURL, opts...)
	beacon := NewClient(cfg.BeaconchainURL, opts...)
	log = log.WithField("component", "feeds")
	return &Feeds{
		Price:      &EtherscanPriceFeed{Client: etherscan, APIKey: cfg.EtherscanAPIKey, Log: log},
		Supply:     &EtherscanSupplyFeed{Client: etherscan, APIKey: cfg.EtherscanAPIKey, Log: log},
		Validators: &BeaconchainValidatorFeed{Client: beacon, Log: log},
		Epoch:      &BeaconchainEpochFeed{Client: beacon, Log: log},
		cache:      cache,
	}
}

// Close stops the shared cache.
func (f *Feeds) Close() { f.cache.Stop() }

// Collect reads every feed, falling back to the values in def.
func (f *Feeds) Collect(ctx context.Context, def Snapshot) Snapshot {
	return Snapshot{
		ETHPrice:         f.Price.GetValue(ctx, def.ETHPrice),
		ETHSupply:        f.Supply.GetValue(ctx, def.ETHSupply),
		ActiveValidators: f.Validators.GetValue(ctx, def.ActiveValidators),
		Epoch:            f.Epoch.GetValue(ctx, def.Epoch),
		UpdatedAt:        time.Now().UTC().Format(time.RFC3339),
	}
}
