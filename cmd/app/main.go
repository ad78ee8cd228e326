package main

import (
	"flag"
	"log"
	"os"

	"RatePulse/internal/di"
	"RatePulse/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s pairs=%d", cfg.Environment, len(cfg.Engine.Pairs))

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if cfg.ClickHouse.Enabled {
		log.Printf("clickhouse: connected and schema ready - db: %s", cfg.ClickHouse.Database)
	}
	if cfg.Kafka.Enabled {
		log.Printf("kafka: connected brokers=%v topic=%s", cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
