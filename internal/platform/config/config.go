// Package config loads deployment configuration from the environment.
// All values are fixed at construction; nothing here is runtime-mutable.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	domain "baseproof/pkg/domain"
)

// Defaults mirror the reference deployment: 0.001 unit certification fee,
// 0.0005 unit transfer fee, 30 day revocation cooldown, 90 day dispute
// period, 0.01 unit challenge bond.
const (
	DefaultAddr             = ":8080"
	DefaultCertificationFee = domain.Amount(1_000_000_000_000_000)
	DefaultTransferFee      = domain.Amount(500_000_000_000_000)
	DefaultChallengeBond    = domain.Amount(10_000_000_000_000_000)
	DefaultCooldown         = 30 * 24 * time.Hour
	DefaultDisputePeriod    = 90 * 24 * time.Hour
	DefaultMaxPageSize      = 100
	DefaultMaxBulkSize      = 100
)

// VerificationCacheTTL bounds staleness of cached public verification
// results between mutations and cache invalidation.
var VerificationCacheTTL = 5 * time.Minute

// Redis captures connection settings for the optional verification cache.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures event sink settings. Empty Brokers disables Kafka and the
// service falls back to the in-memory event sink.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Config is the full deployment configuration for the registry service.
type Config struct {
	Addr          string
	JWTSigningKey string

	// Fee model and lifecycle windows; construction-time parameters per the
	// deployment contract.
	CertificationFee   domain.Amount
	TransferFee        domain.Amount
	RevocationCooldown time.Duration
	DisputePeriod      time.Duration
	ChallengeBond      domain.Amount

	// CommissionWallets receive collected fees. Validated at startup so a
	// mistyped address fails fast rather than at payout time.
	CommissionWallets []domain.Address

	MaxPageSize int
	MaxBulkSize int

	PostgresURL string
	Redis       Redis
	Kafka       Kafka
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:               envString("BASEPROOF_ADDR", DefaultAddr),
		JWTSigningKey:      os.Getenv("BASEPROOF_JWT_SIGNING_KEY"),
		CertificationFee:   DefaultCertificationFee,
		TransferFee:        DefaultTransferFee,
		RevocationCooldown: DefaultCooldown,
		DisputePeriod:      DefaultDisputePeriod,
		ChallengeBond:      DefaultChallengeBond,
		MaxPageSize:        DefaultMaxPageSize,
		MaxBulkSize:        DefaultMaxBulkSize,
		PostgresURL:        os.Getenv("BASEPROOF_POSTGRES_URL"),
		Redis: Redis{
			URL:          os.Getenv("BASEPROOF_REDIS_URL"),
			PoolSize:     envInt("BASEPROOF_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("BASEPROOF_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("BASEPROOF_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("BASEPROOF_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("BASEPROOF_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Topic: envString("BASEPROOF_KAFKA_TOPIC", "baseproof.registry.events"),
		},
	}

	if cfg.JWTSigningKey == "" {
		// Development default; must be overridden in production.
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}

	var err error
	if cfg.CertificationFee, err = envAmount("BASEPROOF_CERTIFICATION_FEE", cfg.CertificationFee); err != nil {
		return Config{}, err
	}
	if cfg.TransferFee, err = envAmount("BASEPROOF_TRANSFER_FEE", cfg.TransferFee); err != nil {
		return Config{}, err
	}
	if cfg.ChallengeBond, err = envAmount("BASEPROOF_CHALLENGE_BOND", cfg.ChallengeBond); err != nil {
		return Config{}, err
	}
	cfg.RevocationCooldown = envDuration("BASEPROOF_REVOCATION_COOLDOWN", cfg.RevocationCooldown)
	cfg.DisputePeriod = envDuration("BASEPROOF_DISPUTE_PERIOD", cfg.DisputePeriod)
	cfg.MaxPageSize = envInt("BASEPROOF_MAX_PAGE_SIZE", cfg.MaxPageSize)
	cfg.MaxBulkSize = envInt("BASEPROOF_MAX_BULK_SIZE", cfg.MaxBulkSize)

	if raw := os.Getenv("BASEPROOF_COMMISSION_WALLETS"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			addr, err := domain.ParseAddress(strings.TrimSpace(part))
			if err != nil {
				return Config{}, fmt.Errorf("BASEPROOF_COMMISSION_WALLETS: %w", err)
			}
			cfg.CommissionWallets = append(cfg.CommissionWallets, addr)
		}
	}

	if raw := os.Getenv("BASEPROOF_KAFKA_BROKERS"); raw != "" {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Kafka.Brokers = append(cfg.Kafka.Brokers, b)
			}
		}
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envAmount(key string, fallback domain.Amount) (domain.Amount, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	amount, err := domain.ParseAmount(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return amount, nil
}
