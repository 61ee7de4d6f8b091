package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, ProviderFake, cfg.PaymentProvider)
	assert.Equal(t, SinkLog, cfg.OutboxSink)
	assert.Equal(t, "USD", cfg.PaymentCurrency)
	assert.Equal(t, 10*time.Second, cfg.PaymentTimeout)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 2 * time.Second}, cfg.LedgerRetryBackoff)
	assert.Equal(t, float64(120), cfg.RateLimitPerMinute)
}

func TestLoadDriverRequirements(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "mongo without uri", env: map[string]string{"STORAGE_DRIVER": "mongo"}, want: "MONGO_URI"},
		{name: "postgres without dsn", env: map[string]string{"STORAGE_DRIVER": "postgres"}, want: "SQL_DSN"},
		{name: "unknown driver", env: map[string]string{"STORAGE_DRIVER": "cassandra"}, want: "STORAGE_DRIVER"},
		{name: "stripe without key", env: map[string]string{"PAYMENT_PROVIDER": "stripe"}, want: "STRIPE_SECRET_KEY"},
		{name: "kafka sink without brokers", env: map[string]string{"OUTBOX_SINK": "kafka"}, want: "KAFKA_BROKERS"},
		{name: "bad duration", env: map[string]string{"PAYMENT_TIMEOUT": "soon"}, want: "PAYMENT_TIMEOUT"},
		{name: "bad backoff", env: map[string]string{"LEDGER_RETRY_BACKOFF": "1s,x"}, want: "LEDGER_RETRY_BACKOFF"},
		{name: "bad bool", env: map[string]string{"RECONCILE_ENABLED": "maybe"}, want: "RECONCILE_ENABLED"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("AUTH_SECRET", "s3cret")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadRequiresAuthSecret(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_SECRET")
}
