package challenge

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"stampd/contracts/credential"
	dErrors "stampd/pkg/domain-errors"
)

// MaxSessionAge bounds how old a delegated session may be when presented.
const MaxSessionAge = 24 * time.Hour

// sessionDocument is the decoded payload of a delegated session signature.
// It embeds the exact challenge text the session holder signed off on.
// Delegate optionally names a session key allowed to sign in place of the
// issuer; Grant is the issuer's own signature over the delegation text for
// that key, proving the issuer authorized it.
type sessionDocument struct {
	Challenge string    `json:"challenge"`
	IssuedAt  time.Time `json:"issuedAt"`
	Delegate  string    `json:"delegate,omitempty"`
	Grant     string    `json:"grant,omitempty"`
}

// sessionGrantText is the message an issuer signs to authorize a session key.
func sessionGrantText(delegate string) string {
	return "Authorize session key " + strings.ToLower(delegate)
}

// verifySession validates a delegated session signature object and returns
// the address the session issuer asserts control of. The session's embedded
// challenge text must match the presented challenge exactly.
func (s *Service) verifySession(session *credential.SignedSession, challengeText string) (string, error) {
	if len(session.Signatures) == 0 {
		return "", dErrors.New(dErrors.CodeUnauthorized, "signed challenge carries no signatures")
	}

	issuerAddr, ok := addressFromDIDPKH(session.Issuer)
	if !ok {
		return "", dErrors.New(dErrors.CodeUnauthorized, "signed challenge issuer is not a did:pkh")
	}

	raw, err := base64.StdEncoding.DecodeString(session.Payload)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "signed challenge payload is not base64")
	}
	var doc sessionDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "signed challenge payload is not a session document")
	}

	if doc.Challenge != challengeText {
		return "", dErrors.New(dErrors.CodeUnauthorized, "session challenge does not match")
	}
	now := s.now()
	if doc.IssuedAt.After(now) || now.Sub(doc.IssuedAt) > MaxSessionAge {
		return "", dErrors.New(dErrors.CodeUnauthorized, "session is expired")
	}

	// without a delegation the issuer must sign the payload itself
	authorized := issuerAddr
	if doc.Delegate != "" {
		grantor, err := recoverPersonalSigner(sessionGrantText(doc.Delegate), doc.Grant)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "unable to recover session grant signer")
		}
		if !strings.EqualFold(grantor.Hex(), issuerAddr) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "session grant was not signed by the issuer")
		}
		authorized = doc.Delegate
	}

	for _, sig := range session.Signatures {
		signingInput := session.Payload
		if sig.Protected != "" {
			signingInput = sig.Protected + "." + session.Payload
		}
		signer, err := recoverPersonalSigner(signingInput, sig.Signature)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "unable to recover session signer")
		}
		if !strings.EqualFold(signer.Hex(), authorized) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "session signature does not match the authorized signer")
		}
	}

	return issuerAddr, nil
}

// addressFromDIDPKH extracts the address component of a did:pkh:eip155 DID.
func addressFromDIDPKH(did string) (string, bool) {
	rest, ok := strings.CutPrefix(did, "did:pkh:eip155:")
	if !ok {
		return "", false
	}
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 || !strings.HasPrefix(parts[1], "0x") {
		return "", false
	}
	return parts[1], true
}
