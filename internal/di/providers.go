package di

import (
	"context"
	"fmt"
	"time"

	"X402Chat/internal/domain/repository"
	"X402Chat/internal/handler/api"
	mid "X402Chat/internal/middleware"
	internalrepo "X402Chat/internal/repository"
	"X402Chat/internal/service/coingecko"
	"X402Chat/internal/service/composer"
	"X402Chat/internal/service/intent"
	"X402Chat/internal/service/market"
	"X402Chat/internal/service/openai"
	"X402Chat/internal/service/payment"
	"X402Chat/internal/service/ratelimit"
	"X402Chat/internal/service/solana"
	"X402Chat/internal/usecase"
	"X402Chat/pkg/cache"
	pkgch "X402Chat/pkg/clickhouse"
	"X402Chat/pkg/config"
	xhttp "X402Chat/pkg/http"
	pkgkafka "X402Chat/pkg/kafka"
	"X402Chat/pkg/logger"
	"X402Chat/pkg/metrics"
	"X402Chat/pkg/queue"
	"X402Chat/pkg/server"
)

const (
	initTimeout        = 10 * time.Second
	memoryCacheEntries = 10000
)

// ProvideLogger creates the application logger. When a logs topic is set and
// Kafka is available, repeated errors are aggregated and shipped there.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logs.Topic != "" && producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Logs.Interval,
			CountThreshold: cfg.Logs.CountThreshold,
			Topic:          cfg.Logs.Topic,
			Publisher:      producer,
		})
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRedisCache connects to Redis when enabled; nil otherwise.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(context.Background(),
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns),
		cache.WithRedisDialTimeout(cfg.Redis.DialTimeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideCache layers an in-process copy over Redis, or uses memory alone.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache(cache.WithMemoryMaxEntries(memoryCacheEntries))
	}
	return cache.NewLayeredCache(rc,
		cache.WithL1Entries(cfg.Redis.L1Entries),
		cache.WithL1TTL(cfg.Redis.L1TTL),
	)
}

// ProvideRPCClient creates the Solana JSON-RPC client.
func ProvideRPCClient(cfg *config.Config) *solana.RPCClient {
	return solana.NewRPCClient(cfg.Payment.RPCEndpoint,
		solana.WithRPCTimeout(cfg.Payment.RPCTimeout),
		solana.WithMaxRetries(cfg.Payment.RPCMaxRetries),
	)
}

// ProvideSignatureRegistry remembers accepted signatures for the replay window.
// Claims never share the LRU-bounded snapshot cache: they live in Redis when it
// is enabled, otherwise in a dedicated store that only expires them by ttl.
func ProvideSignatureRegistry(cfg *config.Config, rc *cache.RedisCache) *payment.SignatureRegistry {
	if rc != nil {
		return payment.NewSignatureRegistry(rc, cfg.Payment.ReplayTTL)
	}
	return payment.NewMemorySignatureRegistry(cfg.Payment.ReplayTTL)
}

// ProvideVerifier creates the payment verifier.
func ProvideVerifier(
	cfg *config.Config,
	rpc *solana.RPCClient,
	registry *payment.SignatureRegistry,
	log *logger.Logger,
	m repository.Metrics,
) (*payment.Verifier, error) {
	opts := []payment.Option{
		payment.WithRegistry(registry),
		payment.WithLogger(log),
		payment.WithMetrics(m),
	}
	if cfg.Payment.WSEndpoint != "" && cfg.Payment.AwaitTimeout > 0 {
		opts = append(opts, payment.WithAwaiter(solana.NewSignatureWatcher(cfg.Payment.WSEndpoint)))
	}

	v, err := payment.NewVerifier(payment.Config{
		Mint:               cfg.Payment.Mint,
		Decimals:           cfg.Payment.Decimals,
		Recipient:          cfg.Payment.Recipient,
		Amount:             cfg.Payment.Amount,
		Currency:           cfg.Payment.Currency,
		Memo:               cfg.Payment.Memo,
		Commitment:         cfg.Payment.Commitment,
		MinSignatureLength: cfg.Payment.MinSignatureLength,
		AwaitTimeout:       cfg.Payment.AwaitTimeout,
		MaxAge:             payment.MaxTransactionAge(cfg.Payment.ReplayTTL),
	}, rpc, opts...)
	if err != nil {
		return nil, fmt.Errorf("payment verifier: %w", err)
	}
	return v, nil
}

// ProvideBalanceOracle reads settlement-asset balances.
func ProvideBalanceOracle(cfg *config.Config, rpc *solana.RPCClient) (*payment.BalanceOracle, error) {
	b, err := payment.NewBalanceOracle(rpc, cfg.Payment.Mint)
	if err != nil {
		return nil, fmt.Errorf("balance oracle: %w", err)
	}
	return b, nil
}

// ProvideMemoryRateStore returns the in-process window store, or nil when Redis holds the windows.
func ProvideMemoryRateStore(cfg *config.Config) *ratelimit.MemoryStore {
	if cfg.RateLimit.Store == "redis" {
		return nil
	}
	return ratelimit.NewMemoryStore()
}

// ProvideWindowStore picks the rate window store.
func ProvideWindowStore(cfg *config.Config, mem *ratelimit.MemoryStore, rc *cache.RedisCache) repository.WindowStore {
	if cfg.RateLimit.Store == "redis" && rc != nil {
		return ratelimit.NewRedisStore(rc.Client(), rc.Prefix()+":rate")
	}
	return mem
}

// ProvideLimiter creates the per-wallet message limiter.
func ProvideLimiter(cfg *config.Config, store repository.WindowStore, log *logger.Logger, m repository.Metrics) *ratelimit.Limiter {
	return ratelimit.New(store, cfg.RateLimit.Limit, cfg.RateLimit.Window,
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(m),
	)
}

// ProvideCoinGecko creates the market data client.
func ProvideCoinGecko(cfg *config.Config) *coingecko.Client {
	opts := []coingecko.Option{
		coingecko.WithBaseURL(cfg.Market.BaseURL),
		coingecko.WithTimeout(cfg.Market.Timeout),
		coingecko.WithRequestsPerMinute(cfg.Market.RequestsPerMinute),
	}
	if cfg.Market.APIKey != "" {
		opts = append(opts, coingecko.WithAPIKey(cfg.Market.APIKey))
	}
	return coingecko.New(opts...)
}

// ProvideMarketGateway caches snapshots per intent.
func ProvideMarketGateway(cfg *config.Config, client *coingecko.Client, c cache.Service, log *logger.Logger, m repository.Metrics) *market.Gateway {
	return market.NewGateway(client,
		market.WithCache(c, cfg.Market.CacheTTL),
		market.WithLogger(log),
		market.WithMetrics(m),
	)
}

// ProvideIntentRouter classifies messages, using the gateway for token search.
func ProvideIntentRouter(gw *market.Gateway, log *logger.Logger, m repository.Metrics) *intent.Router {
	return intent.NewRouter(gw, intent.WithLogger(log), intent.WithMetrics(m))
}

// ProvideCompletionClient creates the OpenAI-compatible client. An unset key
// leaves it unconfigured and the composer falls back to deterministic replies.
func ProvideCompletionClient(cfg *config.Config) *openai.Client {
	return openai.New(cfg.LLM.APIKey,
		openai.WithBaseURL(cfg.LLM.BaseURL),
		openai.WithModel(cfg.LLM.Model),
		openai.WithTemperature(cfg.LLM.Temperature),
		openai.WithMaxTokens(cfg.LLM.MaxTokens),
		openai.WithTimeout(cfg.LLM.Timeout),
	)
}

// ProvideComposer creates the reply composer.
func ProvideComposer(
	cfg *config.Config,
	client *openai.Client,
	v *payment.Verifier,
	log *logger.Logger,
	m repository.Metrics,
) *composer.Composer {
	return composer.New(client,
		composer.WithTerms(v.Terms()),
		composer.WithTimeout(cfg.LLM.Timeout),
		composer.WithHistoryTurns(cfg.LLM.HistoryTurns),
		composer.WithBreaker(cfg.LLM.FailureThreshold, cfg.LLM.Cooldown),
		composer.WithLogger(log),
		composer.WithMetrics(m),
	)
}

// ProvideKafkaProducer creates a Kafka producer when brokers are configured; nil otherwise.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAutoCreateTopics(cfg.Environment != "production"),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideClickHouseClient connects when usage rows are written to ClickHouse,
// either directly or by the consumer; nil otherwise.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.Usage.Backend != usecase.BackendClickHouse && !cfg.Usage.Consumer.Enabled {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithCompression(cfg.ClickHouse.Compression),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideUsageStorage creates the usage table and returns its repository; nil without ClickHouse.
func ProvideUsageStorage(client *pkgch.Client) (repository.UsageStorage, error) {
	if client == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHouseUsageStorage(client.DB(), client.Database())

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideUsagePublisher streams usage events to Kafka; nil without a producer.
func ProvideUsagePublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.UsagePublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaUsagePublisher(producer, cfg.Usage.Topic)
}

// ProvideUsageProcessor routes usage batches to the configured backend.
func ProvideUsageProcessor(
	cfg *config.Config,
	pub repository.UsagePublisher,
	store repository.UsageStorage,
	m repository.Metrics,
) *usecase.UsageProcessor {
	return usecase.NewUsageProcessor(pub, store, m, cfg.Usage.Backend)
}

// ProvideSpillQueue keeps usage batches the backend rejected in Redis and
// replays them; nil without Redis or a usage backend.
func ProvideSpillQueue(cfg *config.Config, rc *cache.RedisCache, proc *usecase.UsageProcessor, log *logger.Logger) *queue.RedisQueue {
	if rc == nil || cfg.Usage.Backend == usecase.BackendNone {
		return nil
	}
	q := queue.NewRedisQueue(rc.Client(), queue.Config{
		Workers:    1,
		RetryLimit: cfg.Usage.SpillRetries,
		RetryDelay: cfg.Usage.SpillDelay,
	},
		queue.WithKeyPrefix(rc.Prefix()+":usage:spill"),
		queue.WithLogger(log),
	)
	q.Register(usecase.NewUsageReplayJob(proc))
	return q
}

// ProvideUsagePipeline buffers usage events off the request path; nil when the backend is none.
func ProvideUsagePipeline(
	cfg *config.Config,
	proc *usecase.UsageProcessor,
	spill *queue.RedisQueue,
	log *logger.Logger,
	m repository.Metrics,
) *mid.UsagePipeline {
	if cfg.Usage.Backend == usecase.BackendNone {
		return nil
	}
	opts := []mid.PipelineOption{
		mid.WithBufferSize(cfg.Usage.BufferSize),
		mid.WithBatching(cfg.Usage.BatchSize, cfg.Usage.FlushEvery),
		mid.WithPipelineLogger(log),
	}
	if spill != nil {
		opts = append(opts, mid.WithSpill(spill))
	}
	return mid.NewUsagePipeline(proc, m, opts...)
}

// ProvideKafkaConsumer creates the usage consumer when enabled; nil otherwise.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Usage.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaUsageHandler writes consumed usage events to ClickHouse; nil without storage.
func ProvideKafkaUsageHandler(cfg *config.Config, store repository.UsageStorage, m repository.Metrics) *usecase.KafkaUsageHandler {
	if store == nil {
		return nil
	}
	return usecase.NewKafkaUsageHandler(cfg.Usage.Topic, store, m)
}

// ProvideChatGateway assembles the chat state machine.
func ProvideChatGateway(
	v *payment.Verifier,
	balance *payment.BalanceOracle,
	limiter *ratelimit.Limiter,
	router *intent.Router,
	gw *market.Gateway,
	comp *composer.Composer,
	pipeline *mid.UsagePipeline,
	log *logger.Logger,
	m repository.Metrics,
) *usecase.ChatGateway {
	opts := []usecase.ChatGatewayOption{
		usecase.WithGatewayLogger(log),
		usecase.WithGatewayMetrics(m),
	}
	if pipeline != nil {
		opts = append(opts, usecase.WithUsageRecorder(pipeline))
	}
	return usecase.NewChatGateway(v, balance, limiter, router, gw, comp, opts...)
}

// ProvideHandlers registers the chat, transaction, usage and health routes.
func ProvideHandlers(
	cfg *config.Config,
	log *logger.Logger,
	gw *usecase.ChatGateway,
	v *payment.Verifier,
	limiter *ratelimit.Limiter,
	rpc *solana.RPCClient,
	rc *cache.RedisCache,
	store repository.UsageStorage,
) xhttp.Handlers {
	checks := map[string]api.HealthCheck{
		"ledger": func(ctx context.Context) error {
			_, err := rpc.GetLatestBlockhash(ctx, solana.CommitmentConfirmed)
			return err
		},
	}
	if rc != nil {
		checks["redis"] = func(ctx context.Context) error {
			return rc.Ping(ctx)
		}
	}
	if store != nil {
		checks["clickhouse"] = store.Health
	}

	components := map[string]string{
		"rate_store":    cfg.RateLimit.Store,
		"usage_backend": cfg.Usage.Backend,
	}

	chatOpts := []api.ChatOption{api.WithRateHeaders(limiter)}
	if store != nil {
		chatOpts = append(chatOpts, api.WithUsageCounter(store))
	}

	return xhttp.Handlers{
		api.NewChatEchoHandler(log, gw, v, chatOpts...),
		api.NewHealthEchoHandler(log, checks, components),
	}
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, handlers xhttp.Handlers, log *logger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(handlers,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithMetrics(metricsPath, cfg.Server.SlowThreshold),
		xhttp.WithLogger(log),
	)
}

// ProvideApp creates the application server. Nil components are skipped.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	httpServer *xhttp.Server,
	pipeline *mid.UsagePipeline,
	proc *usecase.UsageProcessor,
	spill *queue.RedisQueue,
	consumer *pkgkafka.Consumer,
	handler *usecase.KafkaUsageHandler,
	mem *ratelimit.MemoryStore,
	c cache.Service,
	registry *payment.SignatureRegistry,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
) *server.App {
	opts := []server.Option{
		// the collector publishes through the producer, so it goes first
		server.WithCloser("log collector", closerFunc(func() error {
			log.RemoveCollector()
			return nil
		})),
		server.WithCloser("usage processor", closerFunc(func() error {
			proc.Close()
			return nil
		})),
		server.WithCloser("cache", c),
		server.WithCloser("signature registry", registry),
	}
	if pipeline != nil {
		opts = append(opts, server.WithUsagePipeline(pipeline))
	}
	if spill != nil {
		opts = append(opts, server.WithSpillQueue(spill))
	}
	if consumer != nil && handler != nil {
		opts = append(opts, server.WithConsumer(consumer, handler))
	}
	if mem != nil {
		opts = append(opts, server.WithRatePruner(mem))
	}
	if producer != nil {
		opts = append(opts, server.WithCloser("kafka producer", producer))
	}
	if chClient != nil {
		opts = append(opts, server.WithCloser("clickhouse", chClient))
	}
	return server.New(cfg, log, httpServer, opts...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
