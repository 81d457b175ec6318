package evm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	dErrors "stampd/pkg/domain-errors"
)

// ModelResponse is the account analysis model's answer for one address.
type ModelResponse struct {
	Data AccountAnalysis `json:"data"`
}

// AccountAnalysis carries the model scores for an address.
type AccountAnalysis struct {
	HumanProbability float64 `json:"human_probability"`
	GasSpent         float64 `json:"gas_spent"`
	DaysActive       int64   `json:"n_days_active"`
	Transactions     int64   `json:"n_transactions"`
}

// Client fetches account analysis results.
type Client interface {
	Analyze(ctx context.Context, address string) (*AccountAnalysis, error)
}

// HTTPClient calls the external account analysis service.
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

type analyzeRequest struct {
	Address string `json:"address"`
}

// Analyze submits the address to the analysis model.
func (c *HTTPClient) Analyze(ctx context.Context, address string) (*AccountAnalysis, error) {
	body, err := json.Marshal(analyzeRequest{Address: address})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProviderExternal, "failed to marshal analysis request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analysis", bytes.NewReader(body))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProviderExternal, "failed to create analysis request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProviderExternal, "account analysis request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProviderExternal, "failed to read analysis response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, dErrors.New(dErrors.CodeProviderExternal,
			fmt.Sprintf("account analysis returned status %d", resp.StatusCode))
	}

	var parsed ModelResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeProviderExternal, "failed to decode analysis response")
	}
	return &parsed.Data, nil
}
