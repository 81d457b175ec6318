package identity

import (
	"strings"
	"time"

	"stampd/contracts/credential"
	"stampd/internal/keys"
	dErrors "stampd/pkg/domain-errors"
)

const schemaText = "https://schema.org/Text"

// DIDPKH builds the did:pkh subject identifier for an address, lower-case hex.
func DIDPKH(chainID, address string) string {
	return "did:pkh:eip155:" + chainID + ":" + strings.ToLower(address)
}

// Issuer assembles and signs stamp and challenge credentials with the current
// issuer key. Pure function of (inputs, issuer key, time); the clock is
// injected so rotation edges stay testable.
type Issuer struct {
	manager *keys.Manager
	chainID string
	now     func() time.Time
}

// Option configures the Issuer.
type Option func(*Issuer)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer creates an Issuer over the given key manager.
func NewIssuer(manager *keys.Manager, chainID string, opts ...Option) *Issuer {
	i := &Issuer{
		manager: manager,
		chainID: chainID,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// StampParams describes one stamp issuance.
type StampParams struct {
	// Address is the proven holder address.
	Address string
	// Provider is the full stamp type, parameter suffix included.
	Provider string
	// Record is the canonicalized verification record, the nullifier preimage.
	Record Record
	// ExpiresIn is the credential lifetime. Providers with externally imposed
	// expiry override the engine default here.
	ExpiresIn time.Duration
	// Generators derive the linkage values, one per active key version. When
	// nil, generators for the current rotation window are used.
	Generators []NullifierGenerator
}

// IssueStamp builds and signs a stamp credential for a successful
// verification. The subject carries either the legacy hash field (single
// legacy generator) or the versioned nullifiers array.
func (i *Issuer) IssueStamp(p StampParams) (*credential.Credential, error) {
	now := i.now()

	set, err := i.manager.Versions(now)
	if err != nil {
		return nil, err
	}

	gens := p.Generators
	if gens == nil {
		gens = GeneratorsFor(set)
	}

	subject := credential.Subject{
		ID:       DIDPKH(i.chainID, p.Address),
		Provider: p.Provider,
	}

	if len(gens) == 1 && gens[0].Legacy() {
		hash, err := gens[0].Generate(p.Record)
		if err != nil {
			return nil, err
		}
		subject.Hash = hash
		subject.Context = map[string]string{
			"hash":     schemaText,
			"provider": schemaText,
		}
	} else {
		nullifiers := make([]string, 0, len(gens))
		for _, g := range gens {
			n, err := g.Generate(p.Record)
			if err != nil {
				return nil, err
			}
			nullifiers = append(nullifiers, n)
		}
		subject.Nullifiers = nullifiers
		subject.Context = map[string]string{
			"nullifiers": schemaText,
			"provider":   schemaText,
		}
	}

	cred := &credential.Credential{
		Context:           []string{VCContext, StatusListContext},
		Type:              []string{"VerifiableCredential", "Stamp"},
		IssuanceDate:      now.UTC().Format(time.RFC3339),
		ExpirationDate:    now.Add(p.ExpiresIn).UTC().Format(time.RFC3339),
		CredentialSubject: subject,
	}

	return cred, i.sign(cred, set.Issuer, now)
}

// IssueChallenge builds and signs a short-lived challenge credential binding
// the claimed address to a nonce.
func (i *Issuer) IssueChallenge(stampType, address, nonce string, ttl time.Duration) (*credential.Credential, error) {
	now := i.now()

	set, err := i.manager.Versions(now)
	if err != nil {
		return nil, err
	}

	cred := &credential.Credential{
		Context:        []string{VCContext},
		Type:           []string{"VerifiableCredential"},
		IssuanceDate:   now.UTC().Format(time.RFC3339),
		ExpirationDate: now.Add(ttl).UTC().Format(time.RFC3339),
		CredentialSubject: credential.Subject{
			Context: map[string]string{
				"address":   schemaText,
				"challenge": schemaText,
				"provider":  schemaText,
			},
			ID:        DIDPKH(i.chainID, address),
			Provider:  "challenge-" + stampType,
			Address:   address,
			Challenge: nonce,
		},
	}

	return cred, i.sign(cred, set.Issuer, now)
}

func (i *Issuer) sign(cred *credential.Credential, issuerKey keys.Version, now time.Time) error {
	did, err := issuerKey.DID()
	if err != nil {
		return err
	}
	priv, err := issuerKey.PrivateKey()
	if err != nil {
		return err
	}

	cred.Issuer = did
	cred.Proof = &credential.Proof{
		Type:               ProofType,
		ProofPurpose:       ProofPurpose,
		VerificationMethod: did + "#controller",
		Created:            now.UTC().Format(time.RFC3339),
	}

	return signCredential(cred, priv)
}

// VerifyCredential checks a credential's validity window and signature,
// recovering the signer from the recomputed typed-data hash and comparing it
// to the issuer DID. It reports false on expired or mis-signed credentials;
// an error means verification itself failed.
func (i *Issuer) VerifyCredential(cred *credential.Credential) (bool, error) {
	return VerifyCredentialAt(cred, i.now())
}

// VerifyCredentialAt is VerifyCredential with an explicit clock.
func VerifyCredentialAt(cred *credential.Credential, now time.Time) (bool, error) {
	exp, err := time.Parse(time.RFC3339, cred.ExpirationDate)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeVerification, "unparseable expiration date")
	}
	if !now.Before(exp) {
		return false, nil
	}

	signer, err := RecoverIssuerAddress(cred)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeVerification, "unable to recover credential signer")
	}

	issuerAddr, ok := strings.CutPrefix(cred.Issuer, "did:ethr:")
	if !ok {
		return false, nil
	}

	return strings.EqualFold(signer.Hex(), issuerAddr), nil
}
