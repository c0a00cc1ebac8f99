package main

import (
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"CopyFabric/internal/di"
	"CopyFabric/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	envFile := flag.String("env-file", ".env", "optional dotenv file")
	flag.Parse()

	// A missing .env is normal outside development.
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv: %v", err)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s coord=%s broker=%s subscriptions=%s", cfg.Environment, cfg.Coord.Driver, cfg.Broker.Driver, cfg.Subscriptions.Source)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Blocks until SIGINT/SIGTERM.
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
