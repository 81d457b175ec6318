package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"stampd/internal/audit"
	"stampd/internal/challenge"
	"stampd/internal/identity"
	"stampd/internal/issuance"
	"stampd/internal/keys"
	"stampd/internal/platform/config"
	"stampd/internal/platform/health"
	"stampd/internal/platform/httpserver"
	"stampd/internal/platform/kafka/producer"
	"stampd/internal/platform/logger"
	"stampd/internal/platform/metrics"
	"stampd/internal/platform/redis"
	"stampd/internal/providers"
	"stampd/internal/providers/allowlist"
	"stampd/internal/providers/evm"
	"stampd/internal/providers/idsession"
	"stampd/internal/providers/staking"
	"stampd/internal/providers/tracer"
	"stampd/internal/siweauth"
	httptransport "stampd/internal/transport/http"
)

const (
	upstreamTimeout = 10 * time.Second
	tokenTTL        = time.Hour
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing stampd",
		"addr", cfg.Addr,
		"chain_id", cfg.ChainID,
		"key_rotation", cfg.RotationEnabled,
	)

	manager, err := keys.Load(os.Getenv, cfg.RotationEnabled)
	if err != nil {
		log.Error("signing key configuration invalid", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = redis.New(cfg.RedisAddr)
		if err != nil {
			log.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	var auditPublisher *audit.Publisher
	var kafkaProducer *producer.Producer
	if len(cfg.KafkaBrokers) > 0 {
		kafkaProducer, err = producer.New(producer.Config{Brokers: cfg.KafkaBrokers}, log)
		if err != nil {
			log.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
		defer kafkaProducer.Close()

		auditPublisher = audit.NewPublisher(
			audit.NewKafkaSink(kafkaProducer, audit.DefaultTopic),
			audit.WithAsyncBuffer(256),
			audit.WithPublisherLogger(log),
		)
		defer auditPublisher.Close()
	}

	issuer := identity.NewIssuer(manager, cfg.ChainID)

	challengeOpts := []challenge.Option{challenge.WithTTL(cfg.ChallengeTTL)}
	if redisClient != nil {
		challengeOpts = append(challengeOpts, challenge.WithNonceStore(challenge.NewRedisNonceStore(redisClient)))
	}
	if auditPublisher != nil {
		challengeOpts = append(challengeOpts, challenge.WithAuditPublisher(auditPublisher))
	}
	challengeSvc := challenge.NewService(issuer, manager, cfg.ChainID, log, m, challengeOpts...)

	registry := buildRegistry(cfg, redisClient)
	engine := providers.NewEngine(registry, log, m, providers.WithTracer(tracer.NewOTel()))

	issuanceOpts := []issuance.Option{issuance.WithCredentialTTL(cfg.CredentialTTL)}
	if auditPublisher != nil {
		issuanceOpts = append(issuanceOpts, issuance.WithAuditPublisher(auditPublisher))
	}
	issuanceSvc := issuance.NewService(engine, issuer, log, m, issuanceOpts...)

	tokens := siweauth.NewService(cfg.JWTSigningKey, tokenTTL)

	healthHandler := health.New()
	if redisClient != nil {
		healthHandler.RegisterCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		})
	}

	handler := httptransport.NewHandler(challengeSvc, issuanceSvc, tokens, log)
	router := httptransport.NewRouter(handler, healthHandler, m, log)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting http server", "addr", cfg.Addr, "types", registry.Types())

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown on SIGINT
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

// buildRegistry registers every provider whose upstream is configured.
// Unconfigured platforms are simply absent; requests for their types get an
// unknown provider response rather than a runtime failure.
func buildRegistry(cfg config.Server, redisClient *redis.Client) *providers.Registry {
	registry := providers.NewRegistry()

	if cfg.EthAnalysisURL != "" {
		client := evm.NewHTTPClient(cfg.EthAnalysisURL, cfg.EthAnalysisKey, upstreamTimeout)
		registry.MustRegister(evm.Platform, evm.NewEnthusiast(client))
		registry.MustRegister(evm.Platform, evm.NewAdvocate(client))
		registry.MustRegister(evm.Platform, evm.NewMaxi(client))
		registry.MustRegister(evm.Platform, evm.NewDaysActive(client))
		registry.MustRegister(evm.Platform, evm.NewGasSpent(client))
		registry.MustRegister(evm.Platform, evm.NewTransactions(client))
	}

	if cfg.ScorerURL != "" {
		client := staking.NewHTTPClient(cfg.ScorerURL, cfg.ScorerKey, upstreamTimeout)
		round := cfg.StakingRound
		registry.MustRegister(staking.Platform, staking.NewSelfStakeBronze(client, round))
		registry.MustRegister(staking.Platform, staking.NewSelfStakeSilver(client, round))
		registry.MustRegister(staking.Platform, staking.NewSelfStakeGold(client, round))
		registry.MustRegister(staking.Platform, staking.NewBeginnerCommunityStaker(client, round))
		registry.MustRegister(staking.Platform, staking.NewExperiencedCommunityStaker(client, round))
		registry.MustRegister(staking.Platform, staking.NewTrustedCitizen(client, round))
	}

	if cfg.AllowListURL != "" {
		client := allowlist.NewHTTPClient(cfg.AllowListURL, cfg.ScorerKey, upstreamTimeout)
		registry.MustRegister(allowlist.Platform, allowlist.NewProvider(client))
	}

	if redisClient != nil {
		registry.MustRegister(idsession.Platform, idsession.NewProvider(idsession.NewRedisStore(redisClient)))
	}

	return registry
}
