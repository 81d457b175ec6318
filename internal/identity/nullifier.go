package identity

import (
	"crypto/sha256"
	"encoding/base64"

	"stampd/internal/keys"
	dErrors "stampd/pkg/domain-errors"
)

// LegacyPrefix tags nullifiers derived under the legacy key scheme. Versioned
// keys use "v<N>".
const LegacyPrefix = "v0.0.0"

// NullifierGenerator derives the deterministic, non-reversible linkage value
// for one signing key version: prefix + ":" + base64(sha256(secret ||
// canonicalJSON(record))). Pure, no I/O.
type NullifierGenerator struct {
	secret string
	prefix string
	legacy bool
}

// NewNullifierGenerator builds a generator for the given key version.
func NewNullifierGenerator(v keys.Version) NullifierGenerator {
	prefix := "v" + v.Version
	if v.IsLegacy() {
		prefix = LegacyPrefix
	}
	return NullifierGenerator{secret: v.Secret, prefix: prefix, legacy: v.IsLegacy()}
}

// GeneratorsFor returns one generator per active key version, so a single
// credential stays verifiable across a key transition.
func GeneratorsFor(set keys.VersionSet) []NullifierGenerator {
	out := make([]NullifierGenerator, 0, len(set.Active))
	for _, v := range set.Active {
		out = append(out, NewNullifierGenerator(v))
	}
	return out
}

// Legacy reports whether this generator derives the single legacy hash field
// rather than a member of the nullifiers array.
func (g NullifierGenerator) Legacy() bool {
	return g.legacy
}

// Generate derives the nullifier for the record.
func (g NullifierGenerator) Generate(record Record) (string, error) {
	canonical, err := record.CanonicalJSON()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeSigning, "unable to canonicalize record")
	}

	h := sha256.New()
	h.Write([]byte(g.secret))
	h.Write(canonical)

	return g.prefix + ":" + base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
