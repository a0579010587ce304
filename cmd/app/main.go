package main

import (
	"flag"
	"log"
	"os"

	"X402Chat/internal/di"
	"X402Chat/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s rate_store=%s usage_backend=%s llm=%t",
		cfg.Environment, cfg.RateLimit.Store, cfg.Usage.Backend, cfg.LLMConfigured())

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// blocks until SIGINT/SIGTERM
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
