package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rescp17/lanTFTP/internal/util"
	"github.com/rescp17/lanTFTP/pkg/client"
	"github.com/rescp17/lanTFTP/pkg/server"
)

// Config holds persistent user settings. Unset fields keep the built-in defaults.
type Config struct {
	Server ServerSettings `json:"server,omitempty"`
	Client ClientSettings `json:"client,omitempty"`
}

type ServerSettings struct {
	Port         int      `json:"port,omitempty"`
	Root         string   `json:"root,omitempty"`
	Timeout      Duration `json:"timeout,omitempty"`
	Retries      *int     `json:"retries,omitempty"`
	MaxTransfers int      `json:"max_transfers,omitempty"`
	Announce     bool     `json:"announce,omitempty"`
	Name         string   `json:"name,omitempty"`
	History      string   `json:"history,omitempty"`
}

type ClientSettings struct {
	Server  string   `json:"server,omitempty"`
	Port    int      `json:"port,omitempty"`
	Timeout Duration `json:"timeout,omitempty"`
	Retries *int     `json:"retries,omitempty"`
}

// Duration reads either a Go duration string ("5s") or a number of seconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", b)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// GetConfigPath returns ~/.lantftp/config.json.
func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".lantftp", "config.json"), nil
}

// Load reads the config file at path. A missing file is an empty config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the config file
func Save(path string, cfg *Config) error {
	if err := util.EnsureDirectory(filepath.Dir(path)); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyServer copies the settings that are set onto cfg.
func (c *Config) ApplyServer(cfg *server.Config) {
	s := c.Server
	if s.Port != 0 {
		host, _, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			host = ""
		}
		cfg.Addr = net.JoinHostPort(host, strconv.Itoa(s.Port))
	}
	if s.Root != "" {
		cfg.Root = s.Root
	}
	if s.Timeout > 0 {
		cfg.Transfer.Timeout = time.Duration(s.Timeout)
	}
	if s.Retries != nil {
		cfg.Transfer.Retry.MaxRetries = *s.Retries
	}
	if s.MaxTransfers != 0 {
		cfg.MaxConcurrentTransfers = s.MaxTransfers
	}
	if s.Announce {
		cfg.Announce = true
	}
	if s.Name != "" {
		cfg.Name = s.Name
	}
	if s.History != "" {
		cfg.HistoryPath = s.History
	}
}

// ApplyClient copies the settings that are set onto cfg.
func (c *Config) ApplyClient(cfg *client.Config) {
	s := c.Client
	host, port, err := net.SplitHostPort(cfg.Server)
	if err != nil {
		host, port = cfg.Server, ""
	}
	if s.Server != "" {
		host = s.Server
	}
	if s.Port != 0 {
		port = strconv.Itoa(s.Port)
	}
	cfg.Server = net.JoinHostPort(host, port)

	if s.Timeout > 0 {
		cfg.Transfer.Timeout = time.Duration(s.Timeout)
	}
	if s.Retries != nil {
		cfg.Transfer.Retry.MaxRetries = *s.Retries
	}
}
