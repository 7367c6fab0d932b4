package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescp17/lanTFTP/internal/style"
	"github.com/rescp17/lanTFTP/internal/util"
	"github.com/rescp17/lanTFTP/pkg/client"
	"github.com/rescp17/lanTFTP/pkg/discovery"
	"github.com/rescp17/lanTFTP/pkg/fileInfo"
	"github.com/rescp17/lanTFTP/pkg/transfer"
	"github.com/rescp17/lanTFTP/pkg/ui"
)

type clientFlags struct {
	server   string
	port     int
	timeout  time.Duration
	retries  int
	discover bool
	progress bool
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.server, "server", "s", "127.0.0.1", "Server host")
	cmd.Flags().IntVarP(&f.port, "port", "p", 6969, "Server port")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 5*time.Second, "Wait for a server reply before retransmitting")
	cmd.Flags().IntVar(&f.retries, "retries", 5, "Retransmissions before giving up (0 aborts on the first timeout)")
	cmd.Flags().BoolVar(&f.discover, "discover", false, "Find the server on the LAN over mDNS")
	cmd.Flags().BoolVar(&f.progress, "progress", false, "Show a progress display")
}

func (f *clientFlags) config(ctx context.Context, cmd *cobra.Command, opts *globalOptions) (*client.Config, error) {
	file, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	cfg := client.DefaultConfig()
	file.ApplyClient(cfg)

	host, port, _ := net.SplitHostPort(cfg.Server)
	flags := cmd.Flags()
	if flags.Changed("server") {
		host = f.server
	}
	if flags.Changed("port") {
		port = strconv.Itoa(f.port)
	}
	cfg.Server = net.JoinHostPort(host, port)
	if flags.Changed("timeout") {
		cfg.Transfer.Timeout = f.timeout
	}
	if flags.Changed("retries") {
		cfg.Transfer.Retry.MaxRetries = f.retries
	}

	if f.discover {
		dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		svc, err := discovery.First(dctx, &discovery.MDNSAdapter{}, discovery.ServiceName(discovery.DefaultServiceType, discovery.DefaultDomain))
		if err != nil {
			return nil, err
		}
		slog.Info("discovered server", "name", svc.Name, "addr", svc.HostPort())
		cfg.Server = svc.HostPort()
	}
	return cfg, nil
}

func newGetCmd(opts *globalOptions) *cobra.Command {
	var (
		flags    clientFlags
		output   string
		checksum string
	)
	cmd := &cobra.Command{
		Use:     "get <remote-file> [local-file]",
		Aliases: []string{"download"},
		Short:   "Download a file from a TFTP server",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			remote := args[0]
			local := output
			if len(args) == 2 {
				local = args[1]
			}
			if local == "" {
				local = filepath.Base(remote)
			}

			cfg, err := flags.config(ctx, cmd, opts)
			if err != nil {
				return err
			}
			run := func(ctx context.Context, report func(transfer.Progress)) (transfer.Stats, error) {
				c, err := client.New(cfg, clientOptions(report, opts.logFile == "")...)
				if err != nil {
					return transfer.Stats{}, err
				}
				return c.Download(ctx, remote, local)
			}

			st, err := execute(ctx, flags.progress, fmt.Sprintf("Downloading %s from %s", remote, cfg.Server), -1, run)
			if err != nil {
				return err
			}
			printResult("Downloaded", local, st)

			if checksum != "" {
				return verifyDownload(local, checksum)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Local file to write (defaults to the remote name)")
	cmd.Flags().StringVar(&checksum, "sha256", "", "Expected SHA-256 of the downloaded file")
	return cmd
}

func newPutCmd(opts *globalOptions) *cobra.Command {
	var flags clientFlags
	cmd := &cobra.Command{
		Use:     "put <local-file> [remote-file]",
		Aliases: []string{"upload"},
		Short:   "Upload a file to a TFTP server",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			local := args[0]
			remote := filepath.Base(local)
			if len(args) == 2 {
				remote = args[1]
			}
			info, err := os.Stat(local)
			if err != nil {
				return err
			}

			cfg, err := flags.config(ctx, cmd, opts)
			if err != nil {
				return err
			}
			run := func(ctx context.Context, report func(transfer.Progress)) (transfer.Stats, error) {
				c, err := client.New(cfg, clientOptions(report, opts.logFile == "")...)
				if err != nil {
					return transfer.Stats{}, err
				}
				return c.Upload(ctx, local, remote)
			}

			st, err := execute(ctx, flags.progress, fmt.Sprintf("Uploading %s to %s", local, cfg.Server), info.Size(), run)
			if err != nil {
				return err
			}
			printResult("Uploaded", remote, st)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

type transferFunc func(ctx context.Context, report func(transfer.Progress)) (transfer.Stats, error)

func execute(ctx context.Context, progress bool, title string, total int64, run transferFunc) (transfer.Stats, error) {
	if !progress {
		return run(ctx, nil)
	}
	return ui.RunTransfer(ctx, title, total, run)
}

// clientOptions wires the progress view. Its screen owns the terminal, so
// logs that would go to stderr are dropped while it runs.
func clientOptions(report func(transfer.Progress), logsOnStderr bool) []client.Option {
	if report == nil {
		return nil
	}
	opts := []client.Option{client.WithProgress(report)}
	if logsOnStderr {
		opts = append(opts, client.WithLogger(slog.New(slog.DiscardHandler)))
	}
	return opts
}

func printResult(verb, name string, st transfer.Stats) {
	line := fmt.Sprintf("%s %s: %s in %d blocks, %d retransmits, %s",
		verb, name, util.FormatSize(st.Bytes), st.Blocks, st.Retransmits, st.Duration.Round(time.Millisecond))
	fmt.Println(style.SuccessStyle.Render(line))
}

func verifyDownload(path, expected string) error {
	fi := fileInfo.FileInfo{Name: filepath.Base(path), Path: path}
	ok, err := fi.VerifySHA256(strings.ToLower(expected))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("checksum mismatch for %s", path)
	}
	fmt.Println(style.SuccessStyle.Render("Checksum verified"))
	return nil
}
