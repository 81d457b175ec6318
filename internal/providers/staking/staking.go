// Package staking verifies GTC staking conditions against the scorer
// registry. Self staking tiers compare the net self stake against a
// threshold; community tiers look at stakes between the address and other
// participants. All providers on this platform share one memoized registry
// call per request.
package staking

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"stampd/internal/providers"
	dErrors "stampd/pkg/domain-errors"
)

// Platform is the registry platform name for these providers.
const Platform = "GtcStaking"

const contextKey = "gtcStaking.userStake"

// normalizeAddress lower-cases and validates the claimed address.
func normalizeAddress(address string) (string, error) {
	addr := strings.ToLower(address)
	if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "not a proper ethereum address")
	}
	return addr, nil
}

// stakesFor memoizes the registry call in the per-request context.
func stakesFor(ctx context.Context, client Client, pctx *providers.Context, address, round string) (*UserStake, error) {
	return providers.Lookup(ctx, pctx, contextKey, func(ctx context.Context) (*UserStake, error) {
		return client.UserStake(ctx, address, round)
	})
}

// SelfStakeProvider validates that the address's net self stake meets a tier
// threshold.
type SelfStakeProvider struct {
	typ       string
	tag       string
	threshold decimal.Decimal
	client    Client
	round     string
}

func NewSelfStakeProvider(typ, tag string, threshold int64, client Client, round string) *SelfStakeProvider {
	return &SelfStakeProvider{
		typ:       typ,
		tag:       tag,
		threshold: decimal.NewFromInt(threshold),
		client:    client,
		round:     round,
	}
}

// NewSelfStakeBronze requires at least 5 GTC self staked.
func NewSelfStakeBronze(client Client, round string) *SelfStakeProvider {
	return NewSelfStakeProvider("SelfStakingBronze", "ssgte5", 5, client, round)
}

// NewSelfStakeSilver requires at least 20 GTC self staked.
func NewSelfStakeSilver(client Client, round string) *SelfStakeProvider {
	return NewSelfStakeProvider("SelfStakingSilver", "ssgte20", 20, client, round)
}

// NewSelfStakeGold requires at least 125 GTC self staked.
func NewSelfStakeGold(client Client, round string) *SelfStakeProvider {
	return NewSelfStakeProvider("SelfStakingGold", "ssgte125", 125, client, round)
}

func (p *SelfStakeProvider) Type() string { return p.typ }

func (p *SelfStakeProvider) Verify(ctx context.Context, req providers.Request, pctx *providers.Context) (*providers.VerifiedPayload, error) {
	address, err := normalizeAddress(req.Payload.Address)
	if err != nil {
		return nil, err
	}

	stakes, err := stakesFor(ctx, p.client, pctx, address, p.round)
	if err != nil {
		return nil, err
	}

	if stakes.SelfStake.LessThan(p.threshold) {
		return &providers.VerifiedPayload{
			Valid: false,
			Errors: []string{fmt.Sprintf(
				"Your current GTC self staking amount is %s GTC, which is below the required %s GTC for this stamp.",
				stakes.SelfStake.String(), p.threshold.String())},
		}, nil
	}

	return &providers.VerifiedPayload{
		Valid:  true,
		Record: map[string]string{"address": address, "stakeAmount": p.tag},
	}, nil
}

// CommunityStakeProvider validates community staking relationships: the
// address must have at least minStakers distinct counterparties with a staked
// amount at or above the threshold.
type CommunityStakeProvider struct {
	typ        string
	tag        string
	threshold  decimal.Decimal
	minStakers int
	client     Client
	round      string
}

func NewCommunityStakeProvider(typ, tag string, threshold int64, minStakers int, client Client, round string) *CommunityStakeProvider {
	return &CommunityStakeProvider{
		typ:        typ,
		tag:        tag,
		threshold:  decimal.NewFromInt(threshold),
		minStakers: minStakers,
		client:     client,
		round:      round,
	}
}

// NewBeginnerCommunityStaker requires one community stake of at least 5 GTC.
func NewBeginnerCommunityStaker(client Client, round string) *CommunityStakeProvider {
	return NewCommunityStakeProvider("BeginnerCommunityStaker", "bcsgte5", 5, 1, client, round)
}

// NewExperiencedCommunityStaker requires two distinct counterparties at 10
// GTC or more each.
func NewExperiencedCommunityStaker(client Client, round string) *CommunityStakeProvider {
	return NewCommunityStakeProvider("ExperiencedCommunityStaker", "ecsgte10", 10, 2, client, round)
}

// NewTrustedCitizen requires five distinct stakers backing the address at 20
// GTC or more each.
func NewTrustedCitizen(client Client, round string) *CommunityStakeProvider {
	return NewCommunityStakeProvider("TrustedCitizen", "tcgte20", 20, 5, client, round)
}

func (p *CommunityStakeProvider) Type() string { return p.typ }

func (p *CommunityStakeProvider) Verify(ctx context.Context, req providers.Request, pctx *providers.Context) (*providers.VerifiedPayload, error) {
	address, err := normalizeAddress(req.Payload.Address)
	if err != nil {
		return nil, err
	}

	stakes, err := stakesFor(ctx, p.client, pctx, address, p.round)
	if err != nil {
		return nil, err
	}

	counterparties := make(map[string]struct{})
	for _, stake := range stakes.CommunityStakes {
		if !stake.Staked || stake.Amount.LessThan(p.threshold) {
			continue
		}
		other := strings.ToLower(stake.Staker)
		if other == address {
			other = strings.ToLower(stake.Address)
		}
		counterparties[other] = struct{}{}
	}

	if len(counterparties) < p.minStakers {
		return &providers.VerifiedPayload{
			Valid: false,
			Errors: []string{fmt.Sprintf(
				"You have %d community stakes of at least %s GTC, but %d are required for this stamp.",
				len(counterparties), p.threshold.String(), p.minStakers)},
		}, nil
	}

	return &providers.VerifiedPayload{
		Valid:  true,
		Record: map[string]string{"address": address, "stakeAmount": p.tag},
	}, nil
}
