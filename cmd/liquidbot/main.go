// Command liquidbot is the entry point for the liquidation bot. It loads
// configuration, validates it, wires dependencies, sets up signal handling, and
// runs the scheduler in the configured mode until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/liquidbot/internal/app"
	"github.com/alanyoungcy/liquidbot/internal/config"
	"github.com/alanyoungcy/liquidbot/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	encryptOut := flag.String("encrypt-key", "", "encrypt LIQBOT_WALLET_PRIVATE_KEY with LIQBOT_WALLET_KEY_PASSWORD into this file and exit")
	flag.Parse()

	if *encryptOut != "" {
		if err := writeKeyFile(*encryptOut); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("encrypted key written to %s\n", *encryptOut)
		return
	}

	// Bootstrap logger until the configured level is known.
	logger, _ := app.NewLogger(os.Stdout, "info", "")
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger, closeLog := app.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFile)
	defer closeLog()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("liquidation bot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			application.Close()
			os.Exit(1)
		}
	}

	logger.Info("liquidation bot stopped")
}

// writeKeyFile encrypts the wallet key from the environment into path.
func writeKeyFile(path string) error {
	key := os.Getenv("LIQBOT_WALLET_PRIVATE_KEY")
	password := os.Getenv("LIQBOT_WALLET_KEY_PASSWORD")
	if key == "" || password == "" {
		return errors.New("LIQBOT_WALLET_PRIVATE_KEY and LIQBOT_WALLET_KEY_PASSWORD must be set")
	}
	data, addr, err := crypto.EncryptKey(key, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	fmt.Printf("wrote encrypted key for %s to %s\n", addr.Hex(), path)
	return nil
}
