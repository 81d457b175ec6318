// Package evm verifies conditions derived from on-chain account activity via
// an external account analysis model. All providers on this platform share one
// memoized model call per request.
package evm

import (
	"context"
	"fmt"
	"strings"

	"stampd/internal/providers"
)

// Platform is the registry platform name for these providers.
const Platform = "EVM"

const contextKey = "evm.accountAnalysis"

// analysisFor memoizes the model call in the per-request context.
func analysisFor(ctx context.Context, client Client, pctx *providers.Context, address string) (*AccountAnalysis, error) {
	return providers.Lookup(ctx, pctx, contextKey, func(ctx context.Context) (*AccountAnalysis, error) {
		return client.Analyze(ctx, strings.ToLower(address))
	})
}

// ScoreProvider validates that the model's human probability score meets a
// tier threshold. Three tiers are registered: ETHEnthusiast, ETHAdvocate and
// ETHMaxi.
type ScoreProvider struct {
	typ       string
	threshold float64
	client    Client
}

func NewScoreProvider(typ string, threshold float64, client Client) *ScoreProvider {
	return &ScoreProvider{typ: typ, threshold: threshold, client: client}
}

// NewEnthusiast requires a score of at least 50.
func NewEnthusiast(client Client) *ScoreProvider {
	return NewScoreProvider("ETHEnthusiast", 50, client)
}

// NewAdvocate requires a score of at least 75.
func NewAdvocate(client Client) *ScoreProvider {
	return NewScoreProvider("ETHAdvocate", 75, client)
}

// NewMaxi requires a score of at least 90.
func NewMaxi(client Client) *ScoreProvider {
	return NewScoreProvider("ETHMaxi", 90, client)
}

func (p *ScoreProvider) Type() string { return p.typ }

func (p *ScoreProvider) Verify(ctx context.Context, req providers.Request, pctx *providers.Context) (*providers.VerifiedPayload, error) {
	analysis, err := analysisFor(ctx, p.client, pctx, req.Payload.Address)
	if err != nil {
		return nil, err
	}

	if analysis.HumanProbability < p.threshold {
		return &providers.VerifiedPayload{
			Valid: false,
			Errors: []string{fmt.Sprintf(
				"Your account's humanity score %.0f is below the required %.0f for this stamp.",
				analysis.HumanProbability, p.threshold)},
		}, nil
	}

	return &providers.VerifiedPayload{
		Valid:  true,
		Record: map[string]string{"address": strings.ToLower(req.Payload.Address)},
	}, nil
}

// ActivityMetric selects which model metric an ActivityProvider compares.
type ActivityMetric string

const (
	MetricDaysActive   ActivityMetric = "n_days_active"
	MetricGasSpent     ActivityMetric = "gas_spent"
	MetricTransactions ActivityMetric = "n_transactions"
)

// ActivityProvider validates a raw account activity metric against a fixed
// threshold, e.g. at least 50 active days or 100 transactions.
type ActivityProvider struct {
	typ       string
	metric    ActivityMetric
	threshold float64
	client    Client
}

func NewActivityProvider(typ string, metric ActivityMetric, threshold float64, client Client) *ActivityProvider {
	return &ActivityProvider{typ: typ, metric: metric, threshold: threshold, client: client}
}

// NewDaysActive requires at least 50 distinct active days.
func NewDaysActive(client Client) *ActivityProvider {
	return NewActivityProvider("ETHDaysActive#50", MetricDaysActive, 50, client)
}

// NewGasSpent requires at least 0.25 ETH spent on gas.
func NewGasSpent(client Client) *ActivityProvider {
	return NewActivityProvider("ETHGasSpent#0.25", MetricGasSpent, 0.25, client)
}

// NewTransactions requires at least 100 transactions.
func NewTransactions(client Client) *ActivityProvider {
	return NewActivityProvider("ETHnumTransactions#100", MetricTransactions, 100, client)
}

func (p *ActivityProvider) Type() string { return p.typ }

func (p *ActivityProvider) Verify(ctx context.Context, req providers.Request, pctx *providers.Context) (*providers.VerifiedPayload, error) {
	analysis, err := analysisFor(ctx, p.client, pctx, req.Payload.Address)
	if err != nil {
		return nil, err
	}

	var value float64
	switch p.metric {
	case MetricDaysActive:
		value = float64(analysis.DaysActive)
	case MetricGasSpent:
		value = analysis.GasSpent
	case MetricTransactions:
		value = float64(analysis.Transactions)
	}

	if value < p.threshold {
		return &providers.VerifiedPayload{
			Valid: false,
			Errors: []string{fmt.Sprintf(
				"Your account's %s value %v is below the required %v for this stamp.",
				p.metric, value, p.threshold)},
		}, nil
	}

	return &providers.VerifiedPayload{
		Valid:  true,
		Record: map[string]string{"address": strings.ToLower(req.Payload.Address)},
	}, nil
}
