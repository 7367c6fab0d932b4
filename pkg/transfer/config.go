package transfer

import (
	"errors"
	"time"

	"github.com/rescp17/lanTFTP/pkg/packet"
)

// Config holds the per-session protocol settings.
// Block size is fixed by the protocol; it is kept here so Validate can reject
// anything that would need options negotiation.
type Config struct {
	BlockSize int           `json:"block_size"`
	Timeout   time.Duration `json:"timeout"` // wait for a peer reply before retransmitting
	Retry     *RetryPolicy  `json:"retry"`
}

const (
	DefaultTimeout       = 5 * time.Second
	DefaultMaxRetries    = 5
	DefaultBackoffFactor = 1.5
	DefaultMaxDelay      = 30 * time.Second
)

// DefaultConfig retransmits the last unacknowledged packet a bounded number
// of times before giving up.
func DefaultConfig() *Config {
	return &Config{
		BlockSize: packet.BlockSize,
		Timeout:   DefaultTimeout,
		Retry:     DefaultRetryPolicy(),
	}
}

// StrictConfig fails a transfer on its first timeout, without retransmitting.
func StrictConfig() *Config {
	cfg := DefaultConfig()
	cfg.Retry = NoRetryPolicy()
	return cfg
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	if c.BlockSize != packet.BlockSize {
		return errors.New("block_size must be 512; options negotiation is not supported")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.Retry == nil {
		return errors.New("retry policy cannot be nil")
	}
	return c.Retry.Validate()
}

// waitFor is how long to wait for a reply after the given retransmission count.
func (c *Config) waitFor(attempt int) time.Duration {
	return c.Retry.GetRetryDelay(c.Timeout, attempt)
}
