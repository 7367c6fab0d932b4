package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/rescp17/lanTFTP/pkg/transfer"
)

const (
	DefaultAddr                   = ":6969"
	DefaultRoot                   = "files"
	DefaultIdleTimeout            = 10 * time.Second
	DefaultMaxConcurrentTransfers = 16
)

// Config holds the server settings. Zero values are not defaults; start from DefaultConfig.
type Config struct {
	Addr                   string           `json:"addr"`
	Root                   string           `json:"root"`
	IdleTimeout            time.Duration    `json:"idle_timeout"` // listen wait before re-checking for shutdown
	MaxConcurrentTransfers int              `json:"max_concurrent_transfers"`
	Announce               bool             `json:"announce"`
	Name                   string           `json:"name,omitempty"` // mDNS instance name, generated when empty
	HistoryPath            string           `json:"history_path,omitempty"`
	Transfer               *transfer.Config `json:"transfer"`
}

func DefaultConfig() *Config {
	return &Config{
		Addr:                   DefaultAddr,
		Root:                   DefaultRoot,
		IdleTimeout:            DefaultIdleTimeout,
		MaxConcurrentTransfers: DefaultMaxConcurrentTransfers,
		Transfer:               transfer.DefaultConfig(),
	}
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr cannot be empty")
	}
	if c.Root == "" {
		return errors.New("root cannot be empty")
	}
	if c.IdleTimeout <= 0 {
		return errors.New("idle_timeout must be positive")
	}
	if c.MaxConcurrentTransfers < 1 {
		return errors.New("max_concurrent_transfers must be at least 1")
	}
	if c.Transfer == nil {
		return errors.New("transfer config cannot be nil")
	}
	if err := c.Transfer.Validate(); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	return nil
}
