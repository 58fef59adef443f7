package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"zerotrust/internal/audit"
	ztstrings "zerotrust/pkg/platform/strings"
)

// devNullifierKey is used when NULLIFIER_KEY is unset. Nullifiers derived
// with it are predictable; never run production traffic with it.
const devNullifierKey = "7a65726f74727573742d6465762d6e756c6c69666965722d6b65792d30303031"

// Config is the full process configuration.
type Config struct {
	Server   Server
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Engine   EngineConfig
	Outbox   OutboxConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// DatabaseConfig selects PostgreSQL persistence. An empty URL keeps every
// store in memory.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the Kafka publisher for outbound events. Without
// brokers, events are logged instead.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

type EngineConfig struct {
	PolicyStorePath       string
	ChainHashAlgorithm    string
	NullifierKey          []byte
	NullifierKeyDefaulted bool
	CheckpointSigningKey  string
	ProofVerifyTimeout    time.Duration
	MaxProofSize          int
	AttestationValidity   time.Duration
	PolicyCacheSize       int64
	ProofBreakerThreshold int
	ProofBreakerCooldown  time.Duration
}

type OutboxConfig struct {
	PollInterval time.Duration
	MaxRetries   int
	BatchSize    int
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var errs []error
	cfg := Config{
		Server: Server{
			Addr:            getEnv("ZT_ADDR", ":8080"),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 15*time.Second, &errs),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 25, &errs),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5, &errs),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute, &errs),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10, &errs),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2, &errs),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second, &errs),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second, &errs),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second, &errs),
		},
		Kafka: KafkaConfig{
			Brokers:  ztstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			Topic:    getEnv("KAFKA_TOPIC", "zerotrust.events"),
			ClientID: getEnv("KAFKA_CLIENT_ID", "zerotrust"),
		},
		Engine: EngineConfig{
			PolicyStorePath:       os.Getenv("POLICY_STORE_PATH"),
			ChainHashAlgorithm:    getEnv("CHAIN_HASH_ALGORITHM", audit.AlgSHA256),
			CheckpointSigningKey:  os.Getenv("CHECKPOINT_SIGNING_KEY_FILE"),
			ProofVerifyTimeout:    getDuration("PROOF_VERIFY_TIMEOUT", 120*time.Second, &errs),
			MaxProofSize:          getInt("MAX_PROOF_SIZE", 1<<20, &errs),
			AttestationValidity:   getDuration("ATTESTATION_VALIDITY", 90*24*time.Hour, &errs),
			PolicyCacheSize:       int64(getInt("POLICY_CACHE_SIZE", 1024, &errs)),
			ProofBreakerThreshold: getInt("PROOF_BREAKER_THRESHOLD", 5, &errs),
			ProofBreakerCooldown:  getDuration("PROOF_BREAKER_COOLDOWN", 30*time.Second, &errs),
		},
		Outbox: OutboxConfig{
			PollInterval: getDuration("OUTBOX_POLL_INTERVAL", time.Second, &errs),
			MaxRetries:   getInt("OUTBOX_MAX_RETRIES", 10, &errs),
			BatchSize:    getInt("OUTBOX_BATCH_SIZE", 100, &errs),
		},
	}

	keyHex := os.Getenv("NULLIFIER_KEY")
	if keyHex == "" {
		keyHex = devNullifierKey
		cfg.Engine.NullifierKeyDefaulted = true
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		errs = append(errs, fmt.Errorf("NULLIFIER_KEY: %w", err))
	}
	cfg.Engine.NullifierKey = key

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate checks derived and cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if !slices.Contains(audit.Algorithms(), c.Engine.ChainHashAlgorithm) {
		errs = append(errs, fmt.Errorf("CHAIN_HASH_ALGORITHM must be one of %s", strings.Join(audit.Algorithms(), ", ")))
	}
	if len(c.Engine.NullifierKey) < 32 {
		errs = append(errs, errors.New("NULLIFIER_KEY must be at least 32 bytes"))
	}
	// The development key is public; persistent nullifiers derived from it
	// would be linkable by anyone holding a commitment id.
	if c.Engine.NullifierKeyDefaulted && (c.Database.URL != "" || c.Redis.URL != "") {
		errs = append(errs, errors.New("NULLIFIER_KEY is required when DATABASE_URL or REDIS_URL is set"))
	}
	if c.Engine.MaxProofSize <= 0 {
		errs = append(errs, errors.New("MAX_PROOF_SIZE must be positive"))
	}
	if c.Engine.ProofVerifyTimeout <= 0 {
		errs = append(errs, errors.New("PROOF_VERIFY_TIMEOUT must be positive"))
	}
	if c.Engine.AttestationValidity <= 0 {
		errs = append(errs, errors.New("ATTESTATION_VALIDITY must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, errors.New("LOG_FORMAT must be json or text"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}
