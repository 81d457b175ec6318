// Package keys owns the signing key set and its time-driven rotation window.
//
// Keys are loaded once from configuration and never change at runtime;
// removal happens only by omission on redeploy. Which keys are "active" is a
// pure function of wall-clock time, so every read takes an explicit now.
package keys

import (
	"crypto/ecdsa"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"stampd/internal/platform/config"
	dErrors "stampd/pkg/domain-errors"
)

// LegacyVersion is the sentinel version tag for the singular legacy key.
// It sorts before every numbered version by carrying the epoch start time.
const LegacyVersion = "legacy"

// Version is one signing key version. Secret is the raw configured key
// material: it is both the nullifier preimage component and, parsed as hex,
// the secp256k1 signing key.
type Version struct {
	Secret    string
	StartTime time.Time
	Version   string
}

// IsLegacy reports whether this is the legacy sentinel version.
func (v Version) IsLegacy() bool {
	return v.Version == LegacyVersion
}

// PrivateKey parses the secret as a hex-encoded secp256k1 private key.
func (v Version) PrivateKey() (*ecdsa.PrivateKey, error) {
	raw := strings.TrimPrefix(v.Secret, "0x")
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeConfiguration,
			fmt.Sprintf("key version %s is not a valid secp256k1 secret", v.Version))
	}
	return key, nil
}

// Address derives the ethereum address of the key.
func (v Version) Address() (common.Address, error) {
	key, err := v.PrivateKey()
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

// DID derives the issuer DID of the key, lower-case hex.
func (v Version) DID() (string, error) {
	addr, err := v.Address()
	if err != nil {
		return "", err
	}
	return "did:ethr:" + strings.ToLower(addr.Hex()), nil
}

// Getenv abstracts environment lookup so loading stays testable.
type Getenv func(string) string

// LoadConfigured reads the full configured key set: the legacy key (if set)
// first, then versioned keys V1, V2, ... until the first gap. Versions must
// be continuous and their start times strictly increasing. Future start times
// are allowed here; they are excluded per read by Manager.Versions.
func LoadConfigured(getenv Getenv, rotationEnabled bool) ([]Version, error) {
	var out []Version

	if legacy := getenv(config.LegacyKeyEnv); legacy != "" {
		out = append(out, Version{
			Secret:    legacy,
			StartTime: time.Unix(0, 0).UTC(),
			Version:   LegacyVersion,
		})
	}

	if rotationEnabled {
		for n := 1; ; n++ {
			name := fmt.Sprintf("%s%d", config.VersionedKeyEnv, n)
			secret := getenv(name)
			if secret == "" {
				break
			}

			rawStart := getenv(name + config.StartTimeSuffix)
			if rawStart == "" {
				return nil, dErrors.New(dErrors.CodeConfiguration,
					fmt.Sprintf("missing start time for key version %d", n))
			}
			start, err := time.Parse(time.RFC3339, rawStart)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeConfiguration,
					fmt.Sprintf("invalid start time for key version %d", n))
			}

			out = append(out, Version{
				Secret:    secret,
				StartTime: start.UTC(),
				Version:   fmt.Sprintf("%d", n),
			})
		}
	}

	if len(out) == 0 {
		return nil, dErrors.New(dErrors.CodeConfiguration, "no valid keys configured")
	}

	if err := CheckOrder(out); err != nil {
		return nil, err
	}

	return out, nil
}

// CheckOrder enforces strictly increasing start times across the ordered set.
func CheckOrder(versions []Version) error {
	for i := 1; i < len(versions); i++ {
		if !versions[i].StartTime.After(versions[i-1].StartTime) {
			return dErrors.New(dErrors.CodeKeyOrder,
				fmt.Sprintf("key version %s start time %s must be after previous version %s",
					versions[i].Version,
					versions[i].StartTime.Format(time.RFC3339),
					versions[i-1].StartTime.Format(time.RFC3339)))
		}
	}
	return nil
}

// VersionSet is the rotation window as of a given instant.
//
// Active holds at most the two most recently initiated versions. Issuer is
// the older of the two, so a freshly rotated key spends a grace period being
// accepted for verification before it starts issuing.
type VersionSet struct {
	Initiated []Version
	Active    []Version
	Issuer    Version
}

// Manager holds the immutable configured key set.
type Manager struct {
	configured []Version
}

// NewManager wraps an already loaded and order-checked key set.
func NewManager(configured []Version) *Manager {
	return &Manager{configured: configured}
}

// Load reads the key set from the environment and wraps it in a Manager.
func Load(getenv Getenv, rotationEnabled bool) (*Manager, error) {
	configured, err := LoadConfigured(getenv, rotationEnabled)
	if err != nil {
		return nil, err
	}
	return NewManager(configured), nil
}

// Versions computes the rotation window as of now. A key whose start time is
// still in the future is not initiated. Fails if nothing is initiated yet.
func (m *Manager) Versions(now time.Time) (VersionSet, error) {
	var initiated []Version
	for _, v := range m.configured {
		if v.StartTime.After(now) {
			// configured set is ordered, everything after is future too
			break
		}
		initiated = append(initiated, v)
	}

	if len(initiated) == 0 {
		return VersionSet{}, dErrors.New(dErrors.CodeConfiguration, "no initiated keys as of now")
	}

	active := initiated
	if len(active) > 2 {
		active = active[len(active)-2:]
	}

	return VersionSet{
		Initiated: initiated,
		Active:    active,
		Issuer:    active[0],
	}, nil
}

// HasIssuer reports whether the given issuer DID belongs to any active key
// as of now. Used to recognize challenges issued by this process (or a peer
// sharing the key set) across a rotation boundary.
func (m *Manager) HasIssuer(now time.Time, issuerDID string) (bool, error) {
	set, err := m.Versions(now)
	if err != nil {
		return false, err
	}
	for _, v := range set.Active {
		did, err := v.DID()
		if err != nil {
			return false, err
		}
		if strings.EqualFold(did, issuerDID) {
			return true, nil
		}
	}
	return false, nil
}
