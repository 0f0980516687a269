// ====================================
// File: cmd/bot/main.go
// ====================================
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/bnb-sniper-bot/internal/bot"
	"github.com/rovshanmuradov/bnb-sniper-bot/internal/config"
	"github.com/rovshanmuradov/bnb-sniper-bot/internal/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// .env is optional; environment variables override the config file.
	_ = godotenv.Load()

	configPath := "configs/config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCfg := logger.DefaultConfig()
	logCfg.Development = cfg.DebugLogging
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Starting sniper bot", zap.String("config", configPath))

	runner := bot.NewRunner(log)
	if err := runner.Initialize(ctx, cfg); err != nil {
		log.Fatal("Failed to initialize bot", zap.Error(err))
	}

	if err := runner.Run(ctx); err != nil {
		log.Fatal("Bot execution error", zap.Error(err))
	}
}
