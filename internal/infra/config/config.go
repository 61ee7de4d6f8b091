package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorageMemory   = "memory"
	StorageMongo    = "mongo"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"

	ProviderFake   = "fake"
	ProviderStripe = "stripe"

	SinkLog   = "log"
	SinkKafka = "kafka"
	SinkS3    = "s3"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env      string
	HTTPAddr string

	StorageDriver string
	MongoURI      string
	MongoDB       string
	SQLDSN        string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	InflightTTL   time.Duration

	PaymentProvider      string
	StripeSecretKey      string
	StripeBaseURL        string
	PaymentCurrency      string
	PaymentTimeout       time.Duration
	PaymentStatusBackoff []time.Duration
	LedgerRetryBackoff   []time.Duration

	AuthSecret    string
	AuthIssuer    string
	AuthClockSkew time.Duration

	KafkaBrokers     []string
	KafkaTopicPrefix string
	KafkaGroupID     string
	ReconcileEnabled bool

	OutboxSink         string
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	RateLimitPerMinute float64
	RateLimitBurst     int

	RoomFixtures string
	OTLPEndpoint string
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		StorageDriver:    strings.ToLower(getEnv("STORAGE_DRIVER", StorageMemory)),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "stayvista"),
		SQLDSN:           os.Getenv("SQL_DSN"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		PaymentProvider:  strings.ToLower(getEnv("PAYMENT_PROVIDER", ProviderFake)),
		StripeSecretKey:  os.Getenv("STRIPE_SECRET_KEY"),
		StripeBaseURL:    os.Getenv("STRIPE_BASE_URL"),
		PaymentCurrency:  strings.ToUpper(getEnv("PAYMENT_CURRENCY", "usd")),
		AuthSecret:       os.Getenv("AUTH_SECRET"),
		AuthIssuer:       getEnv("AUTH_ISSUER", "stayvista"),
		KafkaTopicPrefix: getEnv("KAFKA_TOPIC_PREFIX", ""),
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "stayvista-reconcile"),
		OutboxSink:       strings.ToLower(getEnv("OUTBOX_SINK", SinkLog)),
		S3Endpoint:       getEnv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKey:      getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:      getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:         getEnv("S3_BUCKET", "stayvista-events"),
		RoomFixtures:     os.Getenv("ROOM_FIXTURES"),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	var err error
	if cfg.RedisDB, err = parseIntEnv("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.InflightTTL, err = parseDurationEnv("INFLIGHT_TTL", 2*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.PaymentTimeout, err = parseDurationEnv("PAYMENT_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.PaymentStatusBackoff, err = parseDurationListEnv("PAYMENT_STATUS_BACKOFF", "200ms,1s"); err != nil {
		return Config{}, err
	}
	if cfg.LedgerRetryBackoff, err = parseDurationListEnv("LEDGER_RETRY_BACKOFF", "100ms,500ms,2s"); err != nil {
		return Config{}, err
	}
	if cfg.AuthClockSkew, err = parseDurationEnv("AUTH_CLOCK_SKEW", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ReconcileEnabled, err = parseBoolEnv("RECONCILE_ENABLED", false); err != nil {
		return Config{}, err
	}
	if cfg.OutboxPollInterval, err = parseDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.RetryBackoff, err = parseDurationListEnv("RETRY_BACKOFF", "1s,5s,30s"); err != nil {
		return Config{}, err
	}
	if cfg.S3UseSSL, err = parseBoolEnv("S3_USE_SSL", false); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitBurst, err = parseIntEnv("RATE_LIMIT_BURST", 10); err != nil {
		return Config{}, err
	}
	perMinute, err := parseIntEnv("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimitPerMinute = float64(perMinute)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StorageDriver {
	case StorageMemory:
	case StorageMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when STORAGE_DRIVER=%s", c.StorageDriver)
		}
	case StoragePostgres, StorageSQLite:
		if c.SQLDSN == "" {
			return fmt.Errorf("SQL_DSN is required when STORAGE_DRIVER=%s", c.StorageDriver)
		}
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER %q", c.StorageDriver)
	}
	switch c.PaymentProvider {
	case ProviderFake:
	case ProviderStripe:
		if c.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe")
		}
	default:
		return fmt.Errorf("invalid PAYMENT_PROVIDER %q", c.PaymentProvider)
	}
	switch c.OutboxSink {
	case SinkLog, SinkS3:
	case SinkKafka:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when OUTBOX_SINK=kafka")
		}
	default:
		return fmt.Errorf("invalid OUTBOX_SINK %q", c.OutboxSink)
	}
	if c.ReconcileEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when RECONCILE_ENABLED=true")
	}
	if len(c.PaymentCurrency) != 3 {
		return fmt.Errorf("invalid PAYMENT_CURRENCY %q", c.PaymentCurrency)
	}
	if c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required")
	}
	if c.PaymentTimeout <= 0 {
		return fmt.Errorf("PAYMENT_TIMEOUT must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseDurationListEnv(key, def string) ([]time.Duration, error) {
	var out []time.Duration
	for _, raw := range strings.Split(getEnv(key, def), ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid %s component %q: %w", key, raw, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func parseIntEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	return n, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}
