package identity

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"stampd/contracts/credential"
	dErrors "stampd/pkg/domain-errors"
)

const (
	// VCContext is the base JSON-LD context of every issued credential.
	VCContext = "https://www.w3.org/2018/credentials/v1"
	// StatusListContext accompanies stamp credentials for future revocation support.
	StatusListContext = "https://w3id.org/vc/status-list/2021/v1"
	// SecurityContext scopes the proof object.
	SecurityContext = "https://w3id.org/security/suites/eip712sig-2021/v1"

	// ProofType marks the EIP-712 signature suite.
	ProofType    = "EthereumEip712Signature2021"
	ProofPurpose = "assertionMethod"

	domainName  = "VerifiableCredential"
	primaryType = "Document"
)

// typedDataFor rebuilds the full EIP-712 typed data for a credential from its
// document fields. The same credential always produces the same typed data,
// so a verifier needs nothing beyond the credential itself.
func typedDataFor(cred *credential.Credential) (apitypes.TypedData, error) {
	subj := cred.CredentialSubject

	subjectTypes := []apitypes.Type{
		{Name: "@context", Type: "Context"},
		{Name: "id", Type: "string"},
		{Name: "provider", Type: "string"},
	}
	var contextTypes []apitypes.Type
	subjectMsg := map[string]interface{}{
		"@context": contextMsg(subj.Context),
		"id":       subj.ID,
		"provider": subj.Provider,
	}

	switch {
	case subj.Challenge != "":
		subjectTypes = append(subjectTypes,
			apitypes.Type{Name: "address", Type: "string"},
			apitypes.Type{Name: "challenge", Type: "string"},
		)
		contextTypes = []apitypes.Type{
			{Name: "address", Type: "string"},
			{Name: "challenge", Type: "string"},
			{Name: "provider", Type: "string"},
		}
		subjectMsg["address"] = subj.Address
		subjectMsg["challenge"] = subj.Challenge
	case subj.Hash != "":
		subjectTypes = append(subjectTypes, apitypes.Type{Name: "hash", Type: "string"})
		contextTypes = []apitypes.Type{
			{Name: "hash", Type: "string"},
			{Name: "provider", Type: "string"},
		}
		subjectMsg["hash"] = subj.Hash
	case len(subj.Nullifiers) > 0:
		subjectTypes = append(subjectTypes, apitypes.Type{Name: "nullifiers", Type: "string[]"})
		contextTypes = []apitypes.Type{
			{Name: "nullifiers", Type: "string"},
			{Name: "provider", Type: "string"},
		}
		subjectMsg["nullifiers"] = toInterfaces(subj.Nullifiers)
	default:
		return apitypes.TypedData{}, fmt.Errorf("credential subject carries neither challenge, hash, nor nullifiers")
	}

	if cred.Proof == nil {
		return apitypes.TypedData{}, fmt.Errorf("credential has no proof options")
	}

	types := apitypes.Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
		},
		"Document": {
			{Name: "@context", Type: "string[]"},
			{Name: "type", Type: "string[]"},
			{Name: "issuer", Type: "string"},
			{Name: "issuanceDate", Type: "string"},
			{Name: "expirationDate", Type: "string"},
			{Name: "credentialSubject", Type: "CredentialSubject"},
			{Name: "proof", Type: "Proof"},
		},
		"CredentialSubject": subjectTypes,
		"Context":           contextTypes,
		"Proof": {
			{Name: "@context", Type: "string"},
			{Name: "created", Type: "string"},
			{Name: "proofPurpose", Type: "string"},
			{Name: "type", Type: "string"},
			{Name: "verificationMethod", Type: "string"},
		},
	}

	message := apitypes.TypedDataMessage{
		"@context":          toInterfaces(cred.Context),
		"type":              toInterfaces(cred.Type),
		"issuer":            cred.Issuer,
		"issuanceDate":      cred.IssuanceDate,
		"expirationDate":    cred.ExpirationDate,
		"credentialSubject": subjectMsg,
		"proof": map[string]interface{}{
			"@context":           SecurityContext,
			"created":            cred.Proof.Created,
			"proofPurpose":       cred.Proof.ProofPurpose,
			"type":               cred.Proof.Type,
			"verificationMethod": cred.Proof.VerificationMethod,
		},
	}

	return apitypes.TypedData{
		Types:       types,
		PrimaryType: primaryType,
		Domain:      apitypes.TypedDataDomain{Name: domainName},
		Message:     message,
	}, nil
}

// contextMsg orders the subject @context deterministically; typedDataFor's
// Context type definitions fix the field order, the values come from here.
func contextMsg(ctx map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}

func toInterfaces(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

// signCredential computes the typed-data hash of the credential (proof options
// included, proofValue excluded), signs it, and fills in proofValue plus the
// eip712Domain envelope so verifiers can recompute the hash.
func signCredential(cred *credential.Credential, key *ecdsa.PrivateKey) error {
	td, err := typedDataFor(cred)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeSigning, "unable to build typed data")
	}

	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeSigning, "unable to hash typed data")
	}

	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeSigning, "unable to sign credential")
	}
	sig[64] += 27

	cred.Proof.ProofValue = hexutil.Encode(sig)
	cred.Proof.EIP712Domain = domainEnvelope(td)
	return nil
}

// RecoverIssuerAddress recomputes the credential's typed-data hash and
// recovers the signer address from the embedded proof value.
func RecoverIssuerAddress(cred *credential.Credential) (common.Address, error) {
	if cred.Proof == nil || cred.Proof.ProofValue == "" {
		return common.Address{}, fmt.Errorf("credential has no proof value")
	}

	td, err := typedDataFor(cred)
	if err != nil {
		return common.Address{}, err
	}

	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Address{}, err
	}

	sig, err := hexutil.Decode(cred.Proof.ProofValue)
	if err != nil {
		return common.Address{}, fmt.Errorf("malformed proof value: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("proof value must be 65 bytes, got %d", len(sig))
	}

	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}

	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("unable to recover signer: %w", err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// domainEnvelope converts the typed data description into the wire proof
// envelope.
func domainEnvelope(td apitypes.TypedData) *credential.EIP712Domain {
	types := make(map[string][]credential.TypedDataField, len(td.Types))
	for name, fields := range td.Types {
		out := make([]credential.TypedDataField, len(fields))
		for i, f := range fields {
			out[i] = credential.TypedDataField{Name: f.Name, Type: f.Type}
		}
		types[name] = out
	}
	return &credential.EIP712Domain{
		Domain:      credential.Domain{Name: td.Domain.Name},
		PrimaryType: td.PrimaryType,
		Types:       types,
	}
}
