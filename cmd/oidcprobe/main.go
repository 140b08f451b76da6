// Package main is the entry point for the oidcprobe diagnostic tool.
// It resolves a provider's discovery document and signing keys using
// the same metadata service the relying party library uses, and logs
// what it finds.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vyrodovalexey/oidcrp/internal/httpjson"
	"github.com/vyrodovalexey/oidcrp/internal/observability"
	"github.com/vyrodovalexey/oidcrp/internal/oidc"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags, logger)

	if err := probe(cfg, logger); err != nil {
		logger.Error("probe failed", observability.Error(err))
		os.Exit(1)
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("oidcprobe %s (built %s, commit %s)\n", version, buildTime, gitCommit)
}

// initLogger initializes the logger from flags.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
		Output: "stderr",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig loads the relying party configuration.
func loadAndValidateConfig(flags cliFlags, logger observability.Logger) *oidc.Config {
	cfg, err := loadConfig(flags)
	if err != nil {
		logger.Error("failed to load configuration", observability.Error(err))
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", observability.Error(err))
		os.Exit(1)
	}

	return cfg
}

// probe resolves the discovery document and signing keys.
func probe(cfg *oidc.Config, logger observability.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fetcher := httpjson.NewClient(httpjson.WithLogger(logger))

	svc, err := oidc.NewMetadataService(cfg,
		oidc.WithFetcher(fetcher),
		oidc.WithMetadataLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create metadata service: %w", err)
	}

	issuer, err := svc.Issuer(ctx)
	if err != nil {
		return err
	}

	authzEndpoint, err := svc.AuthorizationEndpoint(ctx)
	if err != nil {
		return err
	}

	tokenEndpoint, err := svc.TokenEndpoint(ctx)
	if err != nil {
		return err
	}

	logger.Info("provider metadata resolved",
		observability.String("issuer", issuer),
		observability.String("authorizationEndpoint", authzEndpoint),
		observability.String("tokenEndpoint", tokenEndpoint),
	)

	if endSession, ok, err := svc.EndSessionEndpoint(ctx); err != nil {
		return err
	} else if ok {
		logger.Info("end session endpoint available",
			observability.String("endSessionEndpoint", endSession),
		)
	}

	keys, err := svc.SigningKeys(ctx)
	if err != nil {
		return err
	}

	logger.Info("signing keys resolved",
		observability.Int("keyCount", keys.Len()),
	)

	return nil
}
