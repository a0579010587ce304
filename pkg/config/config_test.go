package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, time.Hour, c.RateLimit.Window)
	assert.Equal(t, 100, c.RateLimit.Limit)
	assert.Equal(t, 64, c.Payment.MinSignatureLength)
	assert.True(t, c.Payment.Amount.Equal(decimal.RequireFromString("0.00001")))
	assert.Equal(t, "none", c.Usage.Backend)
	assert.Equal(t, 2000, c.Redis.L1Entries)
	assert.Equal(t, 15*time.Second, c.Redis.L1TTL)
	assert.Equal(t, 5, c.Usage.SpillRetries)
	require.NoError(t, c.Validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
environment: test
rate_limit:
  limit: 5
  window: 10m
payment:
  amount: "0.5"
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, 5, c.RateLimit.Limit)
	assert.Equal(t, 10*time.Minute, c.RateLimit.Window)
	assert.Equal(t, "0.5", c.Payment.Amount.String())
	// untouched sections keep their defaults
	assert.Equal(t, "gpt-3.5-turbo", c.LLM.Model)
}

func TestValidate(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	c.RateLimit.Store = "redis"
	assert.Error(t, c.Validate())
	c.Redis.Enabled = true
	assert.NoError(t, c.Validate())

	c.Usage.Backend = "kafka"
	assert.Error(t, c.Validate())
	c.Kafka.Brokers = []string{"localhost:9092"}
	assert.NoError(t, c.Validate())

	c.Usage.Backend = "s3"
	assert.Error(t, c.Validate())
	c.Usage.Backend = "none"

	c.Payment.ReplayTTL = 0
	assert.Error(t, c.Validate(), "claims must expire")
}

func TestApplyEnv(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	env := map[string]string{
		"OPENAI_API_KEY": "sk-test",
		"REDIS_ADDR":     "redis:6379",
		"KAFKA_BROKERS":  "k1:9092,k2:9092",
		"PORT":           "9090",
	}
	c.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "sk-test", c.LLM.APIKey)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "redis:6379", c.Redis.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, 9090, c.Server.Port)
}

func TestLLMConfigured(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.False(t, c.LLMConfigured())
	c.LLM.APIKey = "your_openai_api_key_here"
	assert.False(t, c.LLMConfigured())
	c.LLM.APIKey = "sk-live"
	assert.True(t, c.LLMConfigured())
}
