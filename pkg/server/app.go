package server

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"X402Chat/internal/middleware"
	"X402Chat/internal/service/ratelimit"
	"X402Chat/pkg/config"
	xhttp "X402Chat/pkg/http"
	pkgkafka "X402Chat/pkg/kafka"
	applogger "X402Chat/pkg/logger"
	"X402Chat/pkg/queue"
)

// Option configures App.
type Option func(*App)

// WithUsagePipeline starts the usage pipeline with the app and flushes it on shutdown.
func WithUsagePipeline(p *middleware.UsagePipeline) Option {
	return func(a *App) {
		a.pipeline = p
	}
}

// WithSpillQueue runs the queue that replays usage batches the pipeline spilled.
func WithSpillQueue(q *queue.RedisQueue) Option {
	return func(a *App) {
		a.spill = q
	}
}

// WithConsumer runs a Kafka consumer with the given handler.
func WithConsumer(c *pkgkafka.Consumer, h pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = c
		a.consumerHandler = h
	}
}

// WithRatePruner periodically drops stale in-memory rate windows.
func WithRatePruner(s *ratelimit.MemoryStore) Option {
	return func(a *App) {
		a.pruner = s
	}
}

// WithCloser registers a resource closed after every worker has stopped.
// Closers run in registration order.
func WithCloser(name string, c io.Closer) Option {
	return func(a *App) {
		a.closers = append(a.closers, namedCloser{name: name, c: c})
	}
}

type namedCloser struct {
	name string
	c    io.Closer
}

// App encapsulates the gateway lifecycle.
type App struct {
	cfg             *config.Config
	log             *applogger.Logger
	httpServer      *xhttp.Server
	pipeline        *middleware.UsagePipeline
	spill           *queue.RedisQueue
	consumer        *pkgkafka.Consumer
	consumerHandler pkgkafka.MessageHandler
	pruner          *ratelimit.MemoryStore
	closers         []namedCloser
}

// New creates a new App.
func New(cfg *config.Config, log *applogger.Logger, httpServer *xhttp.Server, opts ...Option) *App {
	a := &App{cfg: cfg, log: log, httpServer: httpServer}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts all workers and the HTTP server and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Start launches background workers and the HTTP server without blocking.
func (a *App) Start(ctx context.Context) error {
	if a.pipeline != nil {
		a.pipeline.Start(ctx)
		a.log.Info("usage pipeline started", applogger.String("backend", a.cfg.Usage.Backend))
	}

	if a.spill != nil {
		if err := a.spill.Start(ctx); err != nil {
			// batches are dropped instead of spilled; not fatal
			a.log.Warn("usage spill queue not started", applogger.Error(err))
			a.spill = nil
		}
	}

	if a.consumer != nil && a.consumerHandler != nil {
		a.consumer.RegisterHandler(a.consumerHandler)
		if err := a.consumer.Start(); err != nil {
			return err
		}
		a.log.Info("usage consumer started", applogger.String("topic", a.consumerHandler.Topic()))
	}

	if a.pruner != nil {
		go a.pruner.RunPruner(ctx, a.cfg.RateLimit.Window/4, a.cfg.RateLimit.Window)
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	return nil
}

// Shutdown stops accepting requests, drains workers, then closes resources.
func (a *App) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	var errs []error
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}

	// the pipeline must flush before the publisher it writes to is closed
	if a.pipeline != nil {
		if err := a.pipeline.Stop(ctx); err != nil {
			a.log.Warn("usage pipeline stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if a.spill != nil {
		if err := a.spill.Stop(ctx); err != nil {
			a.log.Warn("usage spill queue stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if a.consumer != nil && a.consumerHandler != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("usage consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	for _, nc := range a.closers {
		if err := nc.c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", nc.name), applogger.Error(err))
			errs = append(errs, err)
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
