package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"X402Chat/pkg/util"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORS            bool          `yaml:"cors" default:"true"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"5s"`
	} `yaml:"server"`
	Logger struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logger"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Payment struct {
		RPCEndpoint        string          `yaml:"rpc_endpoint" default:"https://api.mainnet-beta.solana.com"`
		WSEndpoint         string          `yaml:"ws_endpoint"`
		Commitment         string          `yaml:"commitment" default:"finalized"`
		Mint               string          `yaml:"mint" default:"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"`
		Decimals           int32           `yaml:"decimals" default:"6"`
		Recipient          string          `yaml:"recipient" default:"6yK1zeAnkqAe1fBP5Kk773EUm8taJvAsSxnMcYCSzhSL"`
		Amount             decimal.Decimal `yaml:"-"`
		AmountRaw          string          `yaml:"amount" default:"0.00001"`
		Currency           string          `yaml:"currency" default:"USDC"`
		Memo               string          `yaml:"memo" default:"X402 Chat Payment"`
		MinSignatureLength int             `yaml:"min_signature_length" default:"64"`
		ReplayTTL          time.Duration   `yaml:"replay_ttl" default:"720h"`
		AwaitTimeout       time.Duration   `yaml:"await_timeout" default:"0s"`
		RPCTimeout         time.Duration   `yaml:"rpc_timeout" default:"10s"`
		RPCMaxRetries      int             `yaml:"rpc_max_retries" default:"2"`
	} `yaml:"payment"`
	RateLimit struct {
		Window time.Duration `yaml:"window" default:"1h"`
		Limit  int           `yaml:"limit" default:"100"`
		Store  string        `yaml:"store" default:"memory"` // memory | redis
	} `yaml:"rate_limit"`
	Market struct {
		BaseURL           string        `yaml:"base_url" default:"https://api.coingecko.com/api/v3"`
		APIKey            string        `yaml:"api_key"`
		Timeout           time.Duration `yaml:"timeout" default:"8s"`
		RequestsPerMinute int           `yaml:"requests_per_minute" default:"30"`
		CacheTTL          time.Duration `yaml:"cache_ttl" default:"30s"`
	} `yaml:"market"`
	LLM struct {
		BaseURL          string        `yaml:"base_url" default:"https://api.openai.com/v1"`
		APIKey           string        `yaml:"api_key"`
		Model            string        `yaml:"model" default:"gpt-3.5-turbo"`
		Temperature      float64       `yaml:"temperature" default:"0.7"`
		MaxTokens        int           `yaml:"max_tokens" default:"800"`
		Timeout          time.Duration `yaml:"timeout" default:"20s"`
		HistoryTurns     int           `yaml:"history_turns" default:"5"`
		FailureThreshold int           `yaml:"failure_threshold" default:"3"`
		Cooldown         time.Duration `yaml:"cooldown" default:"1m"`
	} `yaml:"llm"`
	Redis struct {
		Enabled      bool          `yaml:"enabled"`
		Addr         string        `yaml:"addr" default:"localhost:6379"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		Prefix       string        `yaml:"prefix" default:"x402"`
		PoolSize     int           `yaml:"pool_size" default:"10"`
		MinIdleConns int           `yaml:"min_idle_conns" default:"2"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		L1Entries    int           `yaml:"l1_entries" default:"2000"` // local copy in front of Redis
		L1TTL        time.Duration `yaml:"l1_ttl" default:"15s"`
	} `yaml:"redis"`
	Usage struct {
		Backend      string        `yaml:"backend" default:"none"` // none | kafka | clickhouse
		Topic        string        `yaml:"topic" default:"x402.chat.usage"`
		BufferSize   int           `yaml:"buffer_size" default:"1024"`
		BatchSize    int           `yaml:"batch_size" default:"50"`
		FlushEvery   time.Duration `yaml:"flush_every" default:"2s"`
		SpillRetries int           `yaml:"spill_retries" default:"5"` // Redis spill queue, when Redis is enabled
		SpillDelay   time.Duration `yaml:"spill_delay" default:"30s"`
		Consumer     struct {
			Enabled bool `yaml:"enabled"`
		} `yaml:"consumer"`
	} `yaml:"usage"`
	Logs struct {
		Topic          string        `yaml:"topic"`
		Interval       time.Duration `yaml:"interval" default:"30s"`
		CountThreshold int           `yaml:"count_threshold" default:"100"`
	} `yaml:"logs"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"200ms"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"x402-usage-writer"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"x402.chat.usage.dlq"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"x402"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		Compression      bool          `yaml:"compression" default:"true"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
}

// Default returns a Config populated only from struct defaults.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	if err := c.resolve(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.resolve(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads .env (if present), then the YAML file, then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	c.applyEnv(os.Getenv)
	if err := c.resolve(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	set("OPENAI_API_KEY", &c.LLM.APIKey)
	set("OPENAI_BASE_URL", &c.LLM.BaseURL)
	set("COINGECKO_API_KEY", &c.Market.APIKey)
	set("SOLANA_RPC_ENDPOINT", &c.Payment.RPCEndpoint)
	set("SOLANA_WS_ENDPOINT", &c.Payment.WSEndpoint)
	set("PAYMENT_RECIPIENT", &c.Payment.Recipient)
	set("PAYMENT_AMOUNT", &c.Payment.AmountRaw)
	set("RATE_LIMIT_STORE", &c.RateLimit.Store)
	set("USAGE_BACKEND", &c.Usage.Backend)
	set("LOG_LEVEL", &c.Logger.Level)

	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	c.Server.Port = util.ParseIntDefault(getenv("PORT"), c.Server.Port)
}

func (c *Config) resolve() error {
	amount, err := decimal.NewFromString(c.Payment.AmountRaw)
	if err != nil {
		return fmt.Errorf("payment.amount: %w", err)
	}
	c.Payment.Amount = amount
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Payment.RPCEndpoint == "" {
		return fmt.Errorf("payment.rpc_endpoint is required")
	}
	if c.Payment.Mint == "" || c.Payment.Recipient == "" {
		return fmt.Errorf("payment.mint and payment.recipient are required")
	}
	if !c.Payment.Amount.IsPositive() {
		return fmt.Errorf("payment.amount must be positive, got %s", c.Payment.Amount)
	}
	if c.Payment.ReplayTTL <= 0 {
		return fmt.Errorf("payment.replay_ttl must be positive")
	}
	if c.RateLimit.Limit <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.limit and rate_limit.window must be positive")
	}
	switch c.RateLimit.Store {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("rate_limit.store 'redis' requires redis.enabled")
		}
	default:
		return fmt.Errorf("rate_limit.store must be 'memory' or 'redis', got '%s'", c.RateLimit.Store)
	}
	switch c.Usage.Backend {
	case "none", "clickhouse":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("usage.backend 'kafka' requires kafka.brokers")
		}
	default:
		return fmt.Errorf("usage.backend must be 'none', 'kafka' or 'clickhouse', got '%s'", c.Usage.Backend)
	}
	if c.Usage.Consumer.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("usage.consumer requires kafka.brokers")
	}
	return nil
}

// LLMConfigured reports whether a usable completion API key is present.
// Template placeholders such as "your_openai_api_key" count as absent.
func (c *Config) LLMConfigured() bool {
	return !util.IsPlaceholder(c.LLM.APIKey)
}
