// Command roster serves the player roster page, its JSON API and the wallet
// panel.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/R3E-Network/roster/internal/app/runtime"
	"github.com/R3E-Network/roster/internal/config"
	"github.com/R3E-Network/roster/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (overrides "+config.ConfigPathEnv+")")
	flag.Parse()

	if *configPath != "" {
		if err := os.Setenv(config.ConfigPathEnv, *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "set config path: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging).Named("roster")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := runtime.NewApplication(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("initialise application")
	}

	log.WithField("addr", cfg.Server.Addr()).
		WithField("store", cfg.Storage.Driver).
		Info("starting roster")
	if err := application.Run(ctx); err != nil {
		log.WithError(err).Fatal("roster stopped with error")
	}
}
