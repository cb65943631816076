package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// BlockchainConfig describes one blockchain integration.
type BlockchainConfig struct {
	Type             string `json:"type"`
	APIURL           string `json:"apiUrl"`
	HotWalletAddress string `json:"hotWalletAddress"`
	Disabled         bool   `json:"disabled"`
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseURL string
	Blockchains []BlockchainConfig
	// blockchainsErr keeps a BLOCKCHAINS parse failure for Validate.
	blockchainsErr error

	MonitoringPeriod  time.Duration
	RequestsBatchSize int
	APIRetryMax       int
	APIRetryBaseDelay time.Duration

	KafkaBrokers       []string
	KafkaConsumerGroup string
	WalletEventsTopic  string
	CommandsTopic      string
	DepositEventsTopic string
	DeadLetterTopic    string
	BusMaxAttempts     int

	RedisAddr     string
	RedisPassword string

	ChaosStateOfChaos float64
	ChaosSeed         string

	RearmStoppedWallets bool
	ShutdownGracePeriod time.Duration

	HTTPPort    string
	AdminAPIKey string

	LogLevel  slog.Level
	LogFormat string

	GoogleSpreadsheetID   string
	GoogleCredentialsJSON string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	blockchains, blockchainsErr := envBlockchains("BLOCKCHAINS")
	return Config{
		DatabaseURL:    envOrDefaultWarn("DATABASE_URL", ""),
		Blockchains:    blockchains,
		blockchainsErr: blockchainsErr,

		MonitoringPeriod:  envOrDefaultDuration("MONITORING_PERIOD", 1*time.Minute),
		RequestsBatchSize: envOrDefaultInt("REQUESTS_BATCH_SIZE", 100),
		APIRetryMax:       envOrDefaultInt("API_RETRY_MAX", 5),
		APIRetryBaseDelay: envOrDefaultDuration("API_RETRY_BASE_DELAY", 2*time.Second),

		KafkaBrokers:       envList("KAFKA_BROKERS"),
		KafkaConsumerGroup: envOrDefault("KAFKA_CONSUMER_GROUP", "cashin-detector"),
		WalletEventsTopic:  envOrDefault("WALLET_EVENTS_TOPIC", "blockchain-wallets.events"),
		CommandsTopic:      envOrDefault("COMMANDS_TOPIC", "blockchain-transactions-history.commands"),
		DepositEventsTopic: envOrDefault("DEPOSIT_EVENTS_TOPIC", "blockchain-cashin-detector.events"),
		DeadLetterTopic:    envOrDefault("DEAD_LETTER_TOPIC", "blockchain-cashin-detector.dead-letter"),
		BusMaxAttempts:     envOrDefaultInt("BUS_MAX_ATTEMPTS", 5),

		RedisAddr:     envOrDefault("REDIS_ADDR", ""),
		RedisPassword: envOrDefault("REDIS_PASSWORD", ""),

		ChaosStateOfChaos: envOrDefaultFloat("CHAOS_STATE_OF_CHAOS", 0),
		ChaosSeed:         envOrDefault("CHAOS_SEED", ""),

		RearmStoppedWallets: envOrDefaultBool("SAGA_REARM_STOPPED_WALLETS", false),
		ShutdownGracePeriod: envOrDefaultDuration("SHUTDOWN_GRACE_PERIOD", 30*time.Second),

		HTTPPort:    envOrDefault("HTTP_PORT", "8080"),
		AdminAPIKey: envOrDefault("ADMIN_API_KEY", ""),

		LogLevel:  envLogLevel("LOG_LEVEL", slog.LevelInfo),
		LogFormat: envOrDefault("LOG_FORMAT", "json"),

		GoogleSpreadsheetID:   envOrDefault("GOOGLE_SPREADSHEET_ID", ""),
		GoogleCredentialsJSON: envOrDefault("GOOGLE_CREDENTIALS_JSON", ""),
	}
}

// Validate checks the settings the service cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.blockchainsErr != nil {
		errs = append(errs, c.blockchainsErr)
	}
	if c.MonitoringPeriod <= 0 {
		errs = append(errs, fmt.Errorf("MONITORING_PERIOD must be positive, got %s", c.MonitoringPeriod))
	}
	if c.RequestsBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("REQUESTS_BATCH_SIZE must be positive, got %d", c.RequestsBatchSize))
	}
	if c.ChaosStateOfChaos < 0 || c.ChaosStateOfChaos > 1 {
		errs = append(errs, fmt.Errorf("CHAOS_STATE_OF_CHAOS must be within [0, 1], got %v", c.ChaosStateOfChaos))
	}

	seen := make(map[string]bool, len(c.Blockchains))
	for i, b := range c.Blockchains {
		if b.Type == "" {
			errs = append(errs, fmt.Errorf("blockchain #%d: type is required", i))
			continue
		}
		if seen[b.Type] {
			errs = append(errs, fmt.Errorf("blockchain %s: duplicate type", b.Type))
		}
		seen[b.Type] = true
		if b.Disabled {
			continue
		}
		if b.APIURL == "" {
			errs = append(errs, fmt.Errorf("blockchain %s: apiUrl is required", b.Type))
		}
		if b.HotWalletAddress == "" {
			errs = append(errs, fmt.Errorf("blockchain %s: hotWalletAddress is required", b.Type))
		}
	}
	return errors.Join(errs...)
}

// HotWallets returns the blockchain type → hot wallet address mapping of all configured blockchains.
func (c Config) HotWallets() map[string]string {
	m := make(map[string]string, len(c.Blockchains))
	for _, b := range c.Blockchains {
		m[b.Type] = b.HotWalletAddress
	}
	return m
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("required env var not set", "key", key)
	}
	return v
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			slog.Warn("invalid float env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return f
	}
	return defaultVal
}

func envOrDefaultBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("invalid boolean env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return b
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envLogLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		slog.Warn("invalid log level env var, using default", "key", key, "value", v, "default", defaultVal)
		return defaultVal
	}
	return level
}

// envBlockchains parses a JSON array of BlockchainConfig.
func envBlockchains(key string) ([]BlockchainConfig, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	var bcs []BlockchainConfig
	if err := json.Unmarshal([]byte(v), &bcs); err != nil {
		return nil, fmt.Errorf("%s must be a JSON array of blockchains: %w", key, err)
	}
	return bcs, nil
}
