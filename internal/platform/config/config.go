package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName   string
	HTTPPort      string
	PostgresDSN   string
	LedgerBackend string
	KafkaBrokers  []string

	EscrowAddress   string
	AdminAddress    string
	SandboxSeedFile string

	OutboxPollInterval   time.Duration
	EnableEventStream    bool
	EnableInvariantAudit bool
}

// Load reads the process environment. A dotenv file named by ENV_FILE, or
// ./.env when present, is applied first without overriding variables
// already set.
func Load() (Config, error) {
	if err := loadDotenv(); err != nil {
		return Config{}, err
	}

	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "tiof-marketplace"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	var brokers []string
	for _, value := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			brokers = append(brokers, value)
		}
	}
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("LEDGER_BACKEND")))
	if backend == "" {
		backend = BackendMemory
		if dsn != "" {
			backend = BackendPostgres
		}
	}
	switch backend {
	case BackendMemory:
	case BackendPostgres:
		if dsn == "" {
			return Config{}, errors.New("POSTGRES_DSN is required for the postgres ledger backend")
		}
	default:
		return Config{}, fmt.Errorf("LEDGER_BACKEND %q is not supported", backend)
	}

	escrow := strings.TrimSpace(os.Getenv("MARKETPLACE_ESCROW_ADDRESS"))
	if escrow == "" {
		return Config{}, errors.New("MARKETPLACE_ESCROW_ADDRESS is required")
	}
	admin := strings.TrimSpace(os.Getenv("MARKETPLACE_ADMIN_ADDRESS"))
	if admin == "" {
		return Config{}, errors.New("MARKETPLACE_ADMIN_ADDRESS is required")
	}

	poll, err := envDuration("OUTBOX_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return Config{}, err
	}

	return Config{
		ServiceName:   service,
		HTTPPort:      port,
		PostgresDSN:   dsn,
		LedgerBackend: backend,
		KafkaBrokers:  brokers,

		EscrowAddress:   escrow,
		AdminAddress:    admin,
		SandboxSeedFile: strings.TrimSpace(os.Getenv("SANDBOX_SEED_FILE")),

		OutboxPollInterval:   poll,
		EnableEventStream:    envBool("ENABLE_EVENT_STREAM", true),
		EnableInvariantAudit: envBool("ENABLE_INVARIANT_AUDIT", true),
	}, nil
}

func loadDotenv() error {
	if path := strings.TrimSpace(os.Getenv("ENV_FILE")); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", name, raw)
	}
	return value, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
