// Package identity assembles, signs, and verifies stamp credentials.
//
// A credential binds a did:pkh subject to a provider type and one or more
// nullifiers derived from the verified record, signed EIP-712 style so any
// verifier can recompute the typed-data hash from the proof envelope alone.
package identity

import (
	"bytes"
	"encoding/json"
	"sort"
)

// Record is the canonicalized description of what was verified: type,
// version, subject address, and condition-specific fields. It is the
// nullifier preimage, so serialization must be byte-stable across calls.
type Record map[string]string

// CanonicalJSON serializes the record as a key-sorted array of [key, value]
// pairs. Only keys are sorted; values are kept verbatim. The same record
// always yields the same bytes regardless of map iteration or insertion
// order.
func (r Record) CanonicalJSON() ([]byte, error) {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([][2]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, r[k]})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(pairs); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
