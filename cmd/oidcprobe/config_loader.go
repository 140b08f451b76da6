package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/oidcrp/internal/oidc"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	authority   string
	clientID    string
	logLevel    string
	logFormat   string
	showVersion bool
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("OIDCPROBE_CONFIG_PATH", ""),
		"Path to configuration file")
	authority := flag.String("authority", "",
		"Provider authority URL (overrides the configuration file)")
	clientID := flag.String("client-id", "",
		"OAuth client ID (overrides the configuration file)")
	logLevel := flag.String("log-level", getEnvOrDefault("OIDCPROBE_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("OIDCPROBE_LOG_FORMAT", "console"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		authority:   *authority,
		clientID:    *clientID,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// loadConfig builds the relying party configuration from the optional
// configuration file and flag overrides.
func loadConfig(flags cliFlags) (*oidc.Config, error) {
	cfg := oidc.DefaultConfig()

	if flags.configPath != "" {
		data, err := os.ReadFile(flags.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if flags.authority != "" {
		cfg.Authority = flags.authority
	}
	if flags.clientID != "" {
		cfg.ClientID = flags.clientID
	}

	// The probe only reads metadata, so a client ID is not strictly
	// needed on the wire; it is still required by Validate to keep the
	// configuration usable for the full library.
	if cfg.ClientID == "" {
		cfg.ClientID = "oidcprobe"
	}

	return cfg, nil
}

// getEnvOrDefault returns an environment variable or a default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
