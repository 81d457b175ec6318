// Package allowlist verifies membership on named address lists kept by the
// scorer service. The list identifier travels inside the requested type, as
// in "AllowList#earlyAdopters", so one registered provider serves the whole
// family.
package allowlist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stampd/internal/providers"
	dErrors "stampd/pkg/domain-errors"
)

// Platform is the registry platform name for this provider.
const Platform = "AllowList"

// Client answers list membership queries.
type Client interface {
	IsMember(ctx context.Context, list, address string) (bool, error)
}

// HTTPClient calls the scorer's allow-list endpoint.
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

type membershipResponse struct {
	IsMember bool `json:"is_member"`
}

func (c *HTTPClient) IsMember(ctx context.Context, list, address string) (bool, error) {
	url := fmt.Sprintf("%s/registry/allow-list/%s/%s", c.baseURL, list, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeProviderExternal, "failed to create allow-list request")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeProviderExternal, "allow-list request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeProviderExternal, "failed to read allow-list response")
	}
	if resp.StatusCode != http.StatusOK {
		return false, dErrors.New(dErrors.CodeProviderExternal,
			fmt.Sprintf("allow-list service returned status %d", resp.StatusCode))
	}

	var parsed membershipResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeProviderExternal, "failed to decode allow-list response")
	}
	return parsed.IsMember, nil
}

// Provider checks whether the claimed address is on the list named by the
// request parameter.
type Provider struct {
	client Client
}

func NewProvider(client Client) *Provider {
	return &Provider{client: client}
}

func (p *Provider) Type() string { return "AllowList" }

func (p *Provider) Verify(ctx context.Context, req providers.Request, _ *providers.Context) (*providers.VerifiedPayload, error) {
	if req.Param == "" {
		return &providers.VerifiedPayload{
			Valid:  false,
			Errors: []string{"no allow list specified"},
		}, nil
	}

	address := strings.ToLower(req.Payload.Address)
	member, err := p.client.IsMember(ctx, req.Param, address)
	if err != nil {
		return nil, err
	}

	if !member {
		return &providers.VerifiedPayload{
			Valid:  false,
			Errors: []string{fmt.Sprintf("Address %s is not a member of the %s allow list.", address, req.Param)},
		}, nil
	}

	return &providers.VerifiedPayload{
		Valid:  true,
		Record: map[string]string{"address": address, "allowList": req.Param},
	}, nil
}
