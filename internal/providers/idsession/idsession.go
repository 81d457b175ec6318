// Package idsession verifies a completed identity-verification session. The
// session is created by an external vendor flow and recorded in a cache; its
// remaining lifetime caps the issued credential's lifetime, so the stamp
// never outlives the session it attests.
package idsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"stampd/internal/platform/redis"
	"stampd/internal/providers"
	dErrors "stampd/pkg/domain-errors"
)

// Platform is the registry platform name for this provider.
const Platform = "IDSession"

// StatusApproved is the only session status that yields a stamp.
const StatusApproved = "approved"

const sessionKeyPrefix = "stampd:idsession:"

// Session is the vendor-written session state.
type Session struct {
	Address   string    `json:"address"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store reads session state. A missing session returns ok=false, not an error.
type Store interface {
	Get(ctx context.Context, sessionID string) (*Session, bool, error)
}

// RedisStore reads sessions from the shared cache.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Session, bool, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeProviderExternal, "session cache read failed")
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeProviderExternal, "malformed session record")
	}
	return &session, true, nil
}

// Provider validates the session referenced by proofs["sessionId"].
type Provider struct {
	store Store
	now   func() time.Time
}

// Option configures the Provider.
type Option func(*Provider)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

func NewProvider(store Store, opts ...Option) *Provider {
	p := &Provider{store: store, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Type() string { return "IdentitySession" }

func (p *Provider) Verify(ctx context.Context, req providers.Request, _ *providers.Context) (*providers.VerifiedPayload, error) {
	sessionID := req.Payload.Proofs["sessionId"]
	if sessionID == "" {
		return &providers.VerifiedPayload{
			Valid:  false,
			Errors: []string{"no verification session supplied"},
		}, nil
	}

	session, ok, err := p.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &providers.VerifiedPayload{
			Valid:  false,
			Errors: []string{"verification session not found"},
		}, nil
	}

	if session.Status != StatusApproved {
		return &providers.VerifiedPayload{
			Valid:  false,
			Errors: []string{fmt.Sprintf("verification session is %s, not approved", session.Status)},
		}, nil
	}
	if !strings.EqualFold(session.Address, req.Payload.Address) {
		return &providers.VerifiedPayload{
			Valid:  false,
			Errors: []string{"verification session belongs to a different address"},
		}, nil
	}

	remaining := session.ExpiresAt.Sub(p.now())
	if remaining <= 0 {
		return &providers.VerifiedPayload{
			Valid:  false,
			Errors: []string{"verification session has expired"},
		}, nil
	}

	return &providers.VerifiedPayload{
		Valid:            true,
		Record:           map[string]string{"address": strings.ToLower(req.Payload.Address), "sessionId": sessionID},
		ExpiresInSeconds: int64(remaining.Seconds()),
	}, nil
}
