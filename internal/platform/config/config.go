package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr    string
	ChainID string

	// RotationEnabled selects whether versioned signing keys are read at all.
	// Off means only the legacy key is loaded.
	RotationEnabled bool

	ChallengeTTL  time.Duration
	CredentialTTL time.Duration

	JWTSigningKey string

	RedisAddr    string
	KafkaBrokers []string

	EthAnalysisURL string
	EthAnalysisKey string
	ScorerURL      string
	ScorerKey      string
	StakingRound   string
	AllowListURL   string
}

// Env var names for the signing key set. The keys package reads these through
// an injected getenv so rotation stays testable.
const (
	LegacyKeyEnv     = "STAMPD_SIGNING_KEY"
	VersionedKeyEnv  = "STAMPD_SIGNING_KEY_V" // + version number
	StartTimeSuffix  = "_START_TIME"
	RotationFlagEnv  = "STAMPD_KEY_ROTATION"
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("STAMPD_ADDR")
	if addr == "" {
		addr = ":8003"
	}

	chainID := os.Getenv("STAMPD_CHAIN_ID")
	if chainID == "" {
		chainID = "1"
	}

	challengeTTL := durationOr("STAMPD_CHALLENGE_TTL", 60*time.Second)
	credentialTTL := durationOr("STAMPD_CREDENTIAL_TTL", 90*24*time.Hour)

	var brokers []string
	if raw := os.Getenv("STAMPD_KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
	}

	return Server{
		Addr:            addr,
		ChainID:         chainID,
		RotationEnabled: os.Getenv(RotationFlagEnv) == "true",
		ChallengeTTL:    challengeTTL,
		CredentialTTL:   credentialTTL,
		JWTSigningKey:   os.Getenv("STAMPD_JWT_SIGNING_KEY"),
		RedisAddr:       os.Getenv("STAMPD_REDIS_ADDR"),
		KafkaBrokers:    brokers,
		EthAnalysisURL:  os.Getenv("STAMPD_ETH_ANALYSIS_URL"),
		EthAnalysisKey:  os.Getenv("STAMPD_ETH_ANALYSIS_KEY"),
		ScorerURL:       os.Getenv("STAMPD_SCORER_URL"),
		ScorerKey:       os.Getenv("STAMPD_SCORER_KEY"),
		StakingRound:    envOr("STAMPD_STAKING_ROUND", "1"),
		AllowListURL:    os.Getenv("STAMPD_ALLOW_LIST_URL"),
	}
}

func durationOr(name string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(name); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return fallback
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
