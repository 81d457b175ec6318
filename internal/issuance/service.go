// Package issuance turns provider verification outcomes into signed stamp
// credentials. Each requested type yields either a credential plus its record
// or a per-type error, so callers can salvage partial results from a
// multi-type request.
package issuance

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"stampd/contracts/credential"
	"stampd/internal/audit"
	"stampd/internal/identity"
	"stampd/internal/platform/metrics"
	"stampd/internal/platform/middleware"
	"stampd/internal/providers"
)

// DefaultCredentialTTL is the stamp lifetime when a provider does not impose
// its own expiry.
const DefaultCredentialTTL = 90 * 24 * time.Hour

// recordVersion tags the record schema fed into the nullifier.
const recordVersion = "0.0.0"

// Engine dispatches provider verifications.
type Engine interface {
	VerifyTypes(ctx context.Context, types []string, payload credential.RequestPayload) []providers.TypeResult
}

// Issuer signs stamp credentials.
type Issuer interface {
	IssueStamp(p identity.StampParams) (*credential.Credential, error)
}

// Service orchestrates verification and issuance for one request.
type Service struct {
	engine  Engine
	issuer  Issuer
	audit   *audit.Publisher
	logger  *slog.Logger
	metrics *metrics.Metrics
	ttl     time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithCredentialTTL overrides the default stamp lifetime.
func WithCredentialTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// WithAuditPublisher enables audit event emission.
func WithAuditPublisher(p *audit.Publisher) Option {
	return func(s *Service) { s.audit = p }
}

func NewService(engine Engine, issuer Issuer, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		engine:  engine,
		issuer:  issuer,
		logger:  logger,
		metrics: m,
		ttl:     DefaultCredentialTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifyAndIssue runs every requested type through its provider and issues a
// stamp credential for each successful verification. The response array is in
// request order, one entry per type.
func (s *Service) VerifyAndIssue(ctx context.Context, types []string, address string, payload credential.RequestPayload) []credential.CredentialResponseBody {
	payload.Address = address
	results := s.engine.VerifyTypes(ctx, types, payload)

	out := make([]credential.CredentialResponseBody, len(results))
	for i, result := range results {
		out[i] = s.issueOne(ctx, result, address)
	}
	return out
}

func (s *Service) issueOne(ctx context.Context, result providers.TypeResult, address string) credential.CredentialResponseBody {
	if result.Error != "" || result.Result == nil || !result.Result.Valid {
		s.emit(ctx, audit.ActionStampRefused, address, result.Type, "", result.Error)
		return credential.CredentialResponseBody{Error: result.Error, Code: result.Code}
	}

	recordType := result.Type
	if pii := result.Result.Record["pii"]; pii != "" {
		recordType = result.Type + "#" + pii
	}

	record := identity.Record{
		"type":    recordType,
		"version": recordVersion,
	}
	for k, v := range result.Result.Record {
		record[k] = v
	}

	expiresIn := s.ttl
	if result.Result.ExpiresInSeconds > 0 {
		expiresIn = time.Duration(result.Result.ExpiresInSeconds) * time.Second
	}

	cred, err := s.issuer.IssueStamp(identity.StampParams{
		Address:   address,
		Provider:  recordType,
		Record:    record,
		ExpiresIn: expiresIn,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to issue credential", "type", result.Type, "error", err)
		if s.metrics != nil {
			s.metrics.IssuanceFailures.WithLabelValues(result.Type).Inc()
		}
		s.emit(ctx, audit.ActionStampRefused, address, result.Type, "", "signing failed")
		return credential.CredentialResponseBody{
			Error: "unable to produce a verifiable credential",
			Code:  http.StatusInternalServerError,
		}
	}

	if s.metrics != nil {
		s.metrics.CredentialsIssued.WithLabelValues(result.Type).Inc()
	}
	s.emit(ctx, audit.ActionStampIssued, address, result.Type, cred.Issuer, "")

	return credential.CredentialResponseBody{
		Credential: cred,
		Record:     record,
	}
}

func (s *Service) emit(ctx context.Context, action audit.Action, address, provider, issuerDID, reason string) {
	if err := s.audit.Emit(ctx, audit.Event{
		Action:    action,
		Address:   address,
		Provider:  provider,
		IssuerDID: issuerDID,
		Reason:    reason,
		RequestID: middleware.GetRequestID(ctx),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "error", err)
	}
}
