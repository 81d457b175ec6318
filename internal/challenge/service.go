// Package challenge implements the challenge response protocol: a short-lived
// signed challenge credential is bound to a claimed address and nonce, and the
// client must present it back with a signature before any provider runs.
package challenge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"stampd/contracts/credential"
	"stampd/internal/audit"
	"stampd/internal/identity"
	"stampd/internal/keys"
	"stampd/internal/platform/metrics"
	"stampd/internal/platform/middleware"
	dErrors "stampd/pkg/domain-errors"
)

// DefaultTTL is the validity window of an issued challenge credential.
const DefaultTTL = 60 * time.Second

// Issuer signs challenge credentials.
type Issuer interface {
	IssueChallenge(stampType, address, nonce string, ttl time.Duration) (*credential.Credential, error)
}

// NonceStore tracks issued challenge nonces so each can be redeemed once.
// A nil store disables single-use enforcement.
type NonceStore interface {
	Remember(ctx context.Context, nonce string, ttl time.Duration) error
	// Consume removes the nonce and reports whether it was present.
	Consume(ctx context.Context, nonce string) (bool, error)
}

// Service drives the protocol state machine for one verification attempt.
type Service struct {
	issuer  Issuer
	manager *keys.Manager
	chainID string
	ttl     time.Duration
	nonces  NonceStore
	audit   *audit.Publisher
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithNonceStore enables single-use challenge enforcement.
func WithNonceStore(store NonceStore) Option {
	return func(s *Service) { s.nonces = store }
}

// WithTTL overrides the challenge validity window.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithAuditPublisher enables audit event emission.
func WithAuditPublisher(p *audit.Publisher) Option {
	return func(s *Service) { s.audit = p }
}

func NewService(issuer Issuer, manager *keys.Manager, chainID string, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		issuer:  issuer,
		manager: manager,
		chainID: chainID,
		ttl:     DefaultTTL,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueChallenge creates a signed challenge credential bound to the claimed
// address and a fresh nonce.
func (s *Service) IssueChallenge(ctx context.Context, stampType, address string) (*credential.Credential, error) {
	if address == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "missing address")
	}
	if stampType == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "missing type")
	}

	nonce := uuid.NewString()
	cred, err := s.issuer.IssueChallenge(stampType, address, nonce, s.ttl)
	if err != nil {
		return nil, err
	}

	if s.nonces != nil {
		if err := s.nonces.Remember(ctx, nonce, s.ttl); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeVerification, "failed to record challenge nonce")
		}
	}

	if s.metrics != nil {
		s.metrics.ChallengesIssued.Inc()
	}
	s.logger.InfoContext(ctx, "challenge issued", "type", stampType, "address", address)
	if err := s.audit.Emit(ctx, audit.Event{
		Action:    audit.ActionChallengeIssued,
		Address:   address,
		Provider:  stampType,
		IssuerDID: cred.Issuer,
		RequestID: middleware.GetRequestID(ctx),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "error", err)
	}
	return cred, nil
}

// VerifyChallengeAndGetAddress validates a presented challenge and returns the
// proven address, the only trusted input to provider verification.
//
// Anything wrong with the presented material itself (unrecognized issuer, a
// challenge credential that fails to verify or cannot even be parsed, bad
// signatures, signer mismatch) is an unauthorized rejection. The verification
// exception code is reserved for infrastructure faults: issuer key
// resolution and nonce store I/O. The two classes are never merged.
func (s *Service) VerifyChallengeAndGetAddress(ctx context.Context, body *credential.VerifyRequestBody) (string, error) {
	if body.Challenge == nil {
		return "", s.reject(ctx, "missing_challenge", body.Payload.Address, "missing challenge")
	}
	challenge := body.Challenge
	boundAddress := challenge.CredentialSubject.Address

	ok, err := s.manager.HasIssuer(s.now(), challenge.Issuer)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeVerification, "failed to resolve issuer keys")
	}
	if !ok {
		return "", s.reject(ctx, "unknown_issuer", boundAddress, "invalid issuer")
	}

	valid, err := identity.VerifyCredentialAt(challenge, s.now())
	if err != nil {
		// errors raised by the credential's own content count as a failed
		// check, not an exception
		s.logger.WarnContext(ctx, "challenge credential failed to verify", "error", err)
		valid = false
	}
	if !valid {
		return "", s.reject(ctx, "invalid_challenge", boundAddress, "invalid challenge")
	}

	address, err := s.resolveSigner(challenge, body)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			if s.metrics != nil {
				s.metrics.ChallengeRejected.WithLabelValues("invalid_signature").Inc()
			}
			s.emitRejected(ctx, "invalid_signature", boundAddress)
		}
		return "", err
	}

	boundID := identity.DIDPKH(s.chainID, address)
	if !strings.EqualFold(boundID, challenge.CredentialSubject.ID) {
		return "", s.reject(ctx, "signer_mismatch", boundAddress, "invalid signer or provider")
	}

	if s.nonces != nil {
		consumed, err := s.nonces.Consume(ctx, challenge.CredentialSubject.Challenge)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeVerification, "failed to consume challenge nonce")
		}
		if !consumed {
			return "", s.reject(ctx, "nonce_reused", boundAddress, "challenge already used")
		}
	}

	return address, nil
}

// resolveSigner recovers the responding signer's address, on either the
// wallet-signature path or the delegated-session path.
func (s *Service) resolveSigner(challenge *credential.Credential, body *credential.VerifyRequestBody) (string, error) {
	challengeText := challenge.CredentialSubject.Challenge
	if challengeText == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "challenge credential carries no challenge text")
	}

	if body.SignedChallenge != nil {
		return s.verifySession(body.SignedChallenge, challengeText)
	}

	signature := body.Payload.Proofs["signature"]
	if signature == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "missing challenge signature")
	}
	addr, err := recoverPersonalSigner(challengeText, signature)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "unable to recover challenge signer")
	}
	return addr.Hex(), nil
}

func (s *Service) reject(ctx context.Context, reason, address, msg string) error {
	if s.metrics != nil {
		s.metrics.ChallengeRejected.WithLabelValues(reason).Inc()
	}
	s.logger.WarnContext(ctx, "challenge rejected", "reason", reason)
	s.emitRejected(ctx, reason, address)
	return dErrors.New(dErrors.CodeUnauthorized, msg)
}

func (s *Service) emitRejected(ctx context.Context, reason, address string) {
	if err := s.audit.Emit(ctx, audit.Event{
		Action:    audit.ActionChallengeRejected,
		Address:   address,
		Reason:    reason,
		RequestID: middleware.GetRequestID(ctx),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "error", err)
	}
}

// recoverPersonalSigner recovers the address behind an EIP-191 personal-sign
// signature over the given message.
func recoverPersonalSigner(message, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}

	// wallets return v as 27/28, SigToPub wants 0/1
	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
