package credential

// Package credential hosts the stable wire DTOs for stamp credentials and the
// challenge/verify RPC bodies. These shapes are shared with external callers;
// keep them free of internal types and versioned independently from any
// in-process models.

// ContractVersion identifies the contract schema version for compatibility checks.
const ContractVersion = "v1.0.0"

// Credential is the JSON-LD flavored verifiable credential envelope issued by
// the engine. Stamp credentials carry nullifiers (or the legacy hash) under
// CredentialSubject; challenge credentials carry the bound address and nonce.
type Credential struct {
	Context           []string `json:"@context"`
	Type              []string `json:"type"`
	Issuer            string   `json:"issuer"`
	IssuanceDate      string   `json:"issuanceDate"`
	ExpirationDate    string   `json:"expirationDate"`
	CredentialSubject Subject  `json:"credentialSubject"`
	Proof             *Proof   `json:"proof,omitempty"`
}

// Subject is the credentialSubject of a stamp or challenge credential.
// ID is a did:pkh for the holder address, lower-case hex.
type Subject struct {
	Context    map[string]string `json:"@context,omitempty"`
	ID         string            `json:"id"`
	Provider   string            `json:"provider,omitempty"`
	Address    string            `json:"address,omitempty"`
	Challenge  string            `json:"challenge,omitempty"`
	Hash       string            `json:"hash,omitempty"`
	Nullifiers []string          `json:"nullifiers,omitempty"`
}

// Proof is the EIP-712 signature envelope. EIP712Domain carries the full
// typed-data domain and type definitions so a verifier can recompute the hash
// without out-of-band schema knowledge.
type Proof struct {
	Type               string        `json:"type"`
	ProofPurpose       string        `json:"proofPurpose"`
	ProofValue         string        `json:"proofValue"`
	VerificationMethod string        `json:"verificationMethod"`
	Created            string        `json:"created"`
	EIP712Domain       *EIP712Domain `json:"eip712Domain,omitempty"`
}

// EIP712Domain mirrors the typed-data description embedded in a proof.
type EIP712Domain struct {
	Domain      Domain                      `json:"domain"`
	PrimaryType string                      `json:"primaryType"`
	Types       map[string][]TypedDataField `json:"types"`
}

// Domain is the EIP-712 signing domain.
type Domain struct {
	Name string `json:"name"`
}

// TypedDataField is one member of an EIP-712 struct type definition.
type TypedDataField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// RequestPayload is the client-supplied portion of challenge and verify
// requests. For verify, Proofs may carry condition-specific inputs and, on
// the wallet-signature path, the signature over the challenge text under the
// "signature" key.
type RequestPayload struct {
	Type          string            `json:"type"`
	Types         []string          `json:"types,omitempty"`
	Address       string            `json:"address"`
	SignatureType string            `json:"signatureType,omitempty"`
	Proofs        map[string]string `json:"proofs,omitempty"`
}

// SessionSignature is one signature of a delegated session object.
type SessionSignature struct {
	Protected string `json:"protected,omitempty"`
	Signature string `json:"signature"`
}

// SignedSession is a delegated session signature: a different signer asserts
// control of the claimed address. Payload is the base64 session document
// embedding the exact challenge text; Issuer is the session signer's DID.
type SignedSession struct {
	Signatures []SessionSignature `json:"signatures"`
	Payload    string             `json:"payload"`
	Issuer     string             `json:"issuer"`
}

// ChallengeRequestBody is the body of POST /challenge.
type ChallengeRequestBody struct {
	Payload RequestPayload `json:"payload"`
}

// ChallengeResponseBody returns the short-lived challenge credential.
type ChallengeResponseBody struct {
	Credential *Credential `json:"credential"`
}

// VerifyRequestBody is the body of POST /verify. SignedChallenge is set on
// the delegated-session path; otherwise the wallet signature travels in
// Payload.Proofs["signature"].
type VerifyRequestBody struct {
	Challenge       *Credential    `json:"challenge"`
	Payload         RequestPayload `json:"payload"`
	SignedChallenge *SignedSession `json:"signedChallenge,omitempty"`
}

// CredentialResponseBody is one entry of the verify response array: either a
// credential plus the record it attests, or a per-type error with a code.
type CredentialResponseBody struct {
	Credential *Credential       `json:"credential,omitempty"`
	Record     map[string]string `json:"record,omitempty"`
	Error      string            `json:"error,omitempty"`
	Code       int               `json:"code,omitempty"`
}

// ErrorResponseBody is the shape of request-level failures (401/500-class).
type ErrorResponseBody struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}
