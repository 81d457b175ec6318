package idsession

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stampd/contracts/credential"
	"stampd/internal/providers"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type stubStore struct {
	sessions map[string]*Session
}

func (s *stubStore) Get(_ context.Context, id string) (*Session, bool, error) {
	session, ok := s.sessions[id]
	return session, ok, nil
}

func newProvider(sessions map[string]*Session) *Provider {
	return NewProvider(&stubStore{sessions: sessions}, WithClock(func() time.Time { return testNow }))
}

func request(address, sessionID string) providers.Request {
	payload := credential.RequestPayload{Address: address}
	if sessionID != "" {
		payload.Proofs = map[string]string{"sessionId": sessionID}
	}
	return providers.Request{Type: "IdentitySession", Payload: payload}
}

func TestApprovedSessionCapsCredentialLifetime(t *testing.T) {
	p := newProvider(map[string]*Session{
		"s1": {Address: "0xAbC", Status: StatusApproved, ExpiresAt: testNow.Add(2 * time.Hour)},
	})

	result, err := p.Verify(context.Background(), request("0xabc", "s1"), providers.NewContext(nil))
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, int64(7200), result.ExpiresInSeconds)
	assert.Equal(t, "s1", result.Record["sessionId"])
}

func TestExpiredSessionRejected(t *testing.T) {
	p := newProvider(map[string]*Session{
		"s1": {Address: "0xabc", Status: StatusApproved, ExpiresAt: testNow.Add(-time.Minute)},
	})

	result, err := p.Verify(context.Background(), request("0xabc", "s1"), providers.NewContext(nil))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "expired")
}

func TestPendingSessionRejected(t *testing.T) {
	p := newProvider(map[string]*Session{
		"s1": {Address: "0xabc", Status: "pending", ExpiresAt: testNow.Add(time.Hour)},
	})

	result, err := p.Verify(context.Background(), request("0xabc", "s1"), providers.NewContext(nil))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "pending")
}

func TestSessionAddressMismatchRejected(t *testing.T) {
	p := newProvider(map[string]*Session{
		"s1": {Address: "0xother", Status: StatusApproved, ExpiresAt: testNow.Add(time.Hour)},
	})

	result, err := p.Verify(context.Background(), request("0xabc", "s1"), providers.NewContext(nil))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "different address")
}

func TestMissingSessionRejected(t *testing.T) {
	p := newProvider(nil)

	result, err := p.Verify(context.Background(), request("0xabc", "unknown"), providers.NewContext(nil))
	require.NoError(t, err)
	assert.False(t, result.Valid)

	result, err = p.Verify(context.Background(), request("0xabc", ""), providers.NewContext(nil))
	require.NoError(t, err)
	assert.False(t, result.Valid)
}
