// config.go - Configuration management for the obsidian daemon
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents the daemon configuration. Monetary bounds are given in
// human token units and converted to base units at load time.
type Config struct {
	// Protocol settings
	MinOrderSize string `json:"min_order_size"`
	MaxOrderSize string `json:"max_order_size"`
	MinPrice     string `json:"min_price"`
	MaxPrice     string `json:"max_price"`
	MinimumBid   string `json:"minimum_bid"`

	AuctionDurationSeconds int `json:"auction_duration_seconds"`

	// KycRegistryRoot is the decimal field element compliance proofs are
	// verified against.
	KycRegistryRoot string `json:"kyc_registry_root"`

	// File paths
	LedgerPath   string `json:"ledger_path"`
	KeyDir       string `json:"key_dir"`
	WorkflowPath string `json:"workflow_path"`

	// Network
	ListenAddress string `json:"listen_address"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Rate limiting
	RateLimitTokens int `json:"rate_limit_tokens"`
	RateLimitRefill int `json:"rate_limit_refill"`

	// Security
	EnableAudit  bool   `json:"enable_audit"`
	AuditLogPath string `json:"audit_log_path"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		MinOrderSize:           "0.1",
		MaxOrderSize:           "1000",
		MinPrice:               "0.01",
		MaxPrice:               "10000",
		MinimumBid:             "1.0",
		AuctionDurationSeconds: 300,
		KycRegistryRoot:        "0",
		LedgerPath:             "ledger.json",
		KeyDir:                 "keys",
		WorkflowPath:           "workflows.json",
		ListenAddress:          ":8547",
		LogLevel:               "info",
		LogFile:                "obsidian.log",
		RateLimitTokens:        20,
		RateLimitRefill:        5,
		EnableAudit:            true,
		AuditLogPath:           "audit.log",
	}
}

// LoadConfig loads configuration from file or creates default
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		var config Config
		if err := json.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}

		return &config, nil
	}

	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}

	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// AuctionDuration returns the configured auction duration.
func (c *Config) AuctionDuration() time.Duration {
	return time.Duration(c.AuctionDurationSeconds) * time.Second
}

// Validate validates the configuration
func (c *Config) Validate() error {
	for name, v := range map[string]string{
		"min_order_size": c.MinOrderSize,
		"max_order_size": c.MaxOrderSize,
		"min_price":      c.MinPrice,
		"max_price":      c.MaxPrice,
		"minimum_bid":    c.MinimumBid,
	} {
		if _, err := parseAmount(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.AuctionDurationSeconds <= 0 {
		return fmt.Errorf("auction_duration_seconds must be positive")
	}
	if c.ListenAddress == "" {
		return fmt.Errorf("listen_address must be set")
	}
	if c.RateLimitTokens <= 0 || c.RateLimitRefill <= 0 {
		return fmt.Errorf("rate limit settings must be positive")
	}
	return nil
}
