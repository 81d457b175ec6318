package staking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	dErrors "stampd/pkg/domain-errors"
)

// Stake is one staking event reported by the scorer registry.
type Stake struct {
	ID          int64           `json:"id"`
	EventType   string          `json:"event_type"`
	RoundID     int64           `json:"round_id"`
	Staker      string          `json:"staker"`
	Address     string          `json:"address"`
	Amount      decimal.Decimal `json:"amount"`
	Staked      bool            `json:"staked"`
	BlockNumber int64           `json:"block_number"`
	TxHash      string          `json:"tx_hash"`
}

// UserStake aggregates an address's staking position for one round: the net
// self stake plus the raw community staking events.
type UserStake struct {
	SelfStake       decimal.Decimal
	CommunityStakes []Stake
}

// Client fetches a user's staking position.
type Client interface {
	UserStake(ctx context.Context, address, round string) (*UserStake, error)
}

// HTTPClient calls the scorer registry's staking endpoint.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// HTTPClientOption configures the HTTPClient.
type HTTPClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(client *http.Client) HTTPClientOption {
	return func(c *HTTPClient) {
		c.httpClient = client
	}
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, opts ...HTTPClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type stakeResponse struct {
	Results []Stake `json:"results"`
}

// UserStake fetches and aggregates the staking events for an address.
func (c *HTTPClient) UserStake(ctx context.Context, address, round string) (*UserStake, error) {
	url := fmt.Sprintf("%s/registry/gtc-stake/%s/%s", c.baseURL, address, round)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProviderExternal, "failed to create staking request")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProviderExternal, "staking request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProviderExternal, "failed to read staking response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, dErrors.New(dErrors.CodeProviderExternal,
			fmt.Sprintf("staking registry returned status %d", resp.StatusCode))
	}

	var parsed stakeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProviderExternal, "failed to decode staking response")
	}
	if parsed.Results == nil {
		return nil, dErrors.New(dErrors.CodeProviderExternal, "no results returned from the staking registry")
	}

	return aggregate(parsed.Results), nil
}

// aggregate splits events into net self stake and community events. Unstake
// events subtract from the self total.
func aggregate(results []Stake) *UserStake {
	out := &UserStake{SelfStake: decimal.Zero}
	for _, stake := range results {
		if stake.EventType == "SelfStake" {
			if stake.Staked {
				out.SelfStake = out.SelfStake.Add(stake.Amount)
			} else {
				out.SelfStake = out.SelfStake.Sub(stake.Amount)
			}
			continue
		}
		out.CommunityStakes = append(out.CommunityStakes, stake)
	}
	return out
}
