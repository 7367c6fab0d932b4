package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"github.com/rescp17/lanTFTP/pkg/storage"
	"github.com/rescp17/lanTFTP/pkg/transfer"
)

const DefaultServer = "127.0.0.1:6969"

type Config struct {
	Server   string           `json:"server"` // host:port of the listening socket
	Transfer *transfer.Config `json:"transfer"`
}

func DefaultConfig() *Config {
	return &Config{
		Server:   DefaultServer,
		Transfer: transfer.DefaultConfig(),
	}
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	if c.Server == "" {
		return errors.New("server address cannot be empty")
	}
	if _, _, err := net.SplitHostPort(c.Server); err != nil {
		return fmt.Errorf("server address: %w", err)
	}
	if c.Transfer == nil {
		return errors.New("transfer config cannot be nil")
	}
	return c.Transfer.Validate()
}

type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithProgress is called after every acknowledged block.
func WithProgress(fn func(transfer.Progress)) Option {
	return func(c *Client) { c.progress = fn }
}

// Client initiates transfers against one server.
type Client struct {
	cfg      *Config
	log      *slog.Logger
	progress func(transfer.Progress)
}

func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}
	c := &Client{cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get reads the remote file into dst.
func (c *Client) Get(ctx context.Context, remote string, dst io.Writer) (transfer.Stats, error) {
	return c.run(ctx, "get", remote, -1, func(s *transfer.Session) error {
		return s.Get(ctx, remote, dst)
	})
}

// Put writes size bytes (or -1 when unknown) from src to the remote file.
func (c *Client) Put(ctx context.Context, remote string, src io.Reader, size int64) (transfer.Stats, error) {
	return c.run(ctx, "put", remote, size, func(s *transfer.Session) error {
		return s.Put(ctx, remote, src)
	})
}

// Download stores the remote file at localPath. The file only appears once the
// whole transfer succeeded.
func (c *Client) Download(ctx context.Context, remote, localPath string) (transfer.Stats, error) {
	if localPath == "" {
		localPath = remote
	}
	dir, err := storage.NewDir(filepath.Dir(localPath))
	if err != nil {
		return transfer.Stats{}, err
	}
	sink, err := dir.OpenForWrite(filepath.Base(localPath))
	if err != nil {
		return transfer.Stats{}, fmt.Errorf("open %s: %w", localPath, err)
	}

	st, err := c.Get(ctx, remote, sink)
	if err != nil {
		if aerr := sink.Abort(); aerr != nil {
			c.log.Warn("failed to discard partial download", "path", localPath, "error", aerr)
		}
		return st, err
	}
	if err := sink.Commit(); err != nil {
		return st, &transfer.StorageError{Op: "commit", Err: err}
	}
	return st, nil
}

// Upload sends the local file as remote, or under its base name when remote is empty.
func (c *Client) Upload(ctx context.Context, localPath, remote string) (transfer.Stats, error) {
	if remote == "" {
		remote = filepath.Base(localPath)
	}
	f, err := os.Open(localPath)
	if err != nil {
		return transfer.Stats{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return transfer.Stats{}, err
	}
	if !info.Mode().IsRegular() {
		return transfer.Stats{}, fmt.Errorf("%s is not a regular file", localPath)
	}
	return c.Put(ctx, remote, f, info.Size())
}

func (c *Client) run(ctx context.Context, op, remote string, total int64, fn func(*transfer.Session) error) (transfer.Stats, error) {
	raddr, err := net.ResolveUDPAddr("udp", c.cfg.Server)
	if err != nil {
		return transfer.Stats{}, fmt.Errorf("resolve %s: %w", c.cfg.Server, err)
	}

	network, laddr := "udp", ":0"
	if raddr.IP.To4() != nil {
		network, laddr = "udp4", "0.0.0.0:0"
	}
	conn, err := net.ListenPacket(network, laddr)
	if err != nil {
		return transfer.Stats{}, err
	}
	defer conn.Close()

	log := c.log.With("server", raddr.String(), "file", remote, "op", op)
	opts := []transfer.Option{transfer.WithLogger(log), transfer.WithPeerBinding(), transfer.WithTotal(total)}
	if c.progress != nil {
		opts = append(opts, transfer.WithProgress(c.progress))
	}
	sess, err := transfer.NewSession(conn, raddr, c.cfg.Transfer, opts...)
	if err != nil {
		return transfer.Stats{}, err
	}

	err = fn(sess)
	return sess.Stats(), err
}
