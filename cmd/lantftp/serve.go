package main

import (
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescp17/lanTFTP/internal/audit"
	"github.com/rescp17/lanTFTP/pkg/fileInfo"
	"github.com/rescp17/lanTFTP/pkg/server"
	"github.com/rescp17/lanTFTP/pkg/storage"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		port         int
		root         string
		timeout      time.Duration
		retries      int
		maxTransfers int
		announce     bool
		name         string
		history      string
	)
	defaultHistory, _ := audit.DefaultPath()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a directory over TFTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := loadConfig(opts)
			if err != nil {
				return err
			}
			cfg := server.DefaultConfig()
			file.ApplyServer(cfg)

			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.Addr = net.JoinHostPort("", strconv.Itoa(port))
			}
			if flags.Changed("root") {
				cfg.Root = root
			}
			if flags.Changed("timeout") {
				cfg.Transfer.Timeout = timeout
			}
			if flags.Changed("retries") {
				cfg.Transfer.Retry.MaxRetries = retries
			}
			if flags.Changed("max-transfers") {
				cfg.MaxConcurrentTransfers = maxTransfers
			}
			if flags.Changed("announce") {
				cfg.Announce = announce
			}
			if flags.Changed("name") {
				cfg.Name = name
			}
			if flags.Changed("history") || cfg.HistoryPath == "" {
				cfg.HistoryPath = history
			}

			dir, err := storage.NewDir(cfg.Root)
			if err != nil {
				return err
			}
			srvOpts := []server.Option{server.WithBackend(dir)}
			if cfg.HistoryPath != "" {
				journal, err := audit.Open(cfg.HistoryPath)
				if err != nil {
					return err
				}
				if err := journal.Prune(audit.MaxEntries); err != nil {
					slog.Warn("failed to prune transfer journal", "error", err)
				}
				srvOpts = append(srvOpts, server.WithJournal(journal))
			}

			srv, err := server.New(cfg, srvOpts...)
			if err != nil {
				return err
			}

			if files, err := fileInfo.Catalog(dir.Root()); err == nil {
				slog.Info("serving files", "root", dir.Root(), "count", len(files))
				for _, f := range files {
					slog.Debug("file", "name", f.Name, "size", f.Size, "mime", f.MimeType)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 6969, "UDP port to listen on")
	cmd.Flags().StringVarP(&root, "root", "r", server.DefaultRoot, "Directory to serve and store uploads in")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Wait for a peer reply before retransmitting")
	cmd.Flags().IntVar(&retries, "retries", 5, "Retransmissions before a transfer is abandoned (0 aborts on the first timeout)")
	cmd.Flags().IntVar(&maxTransfers, "max-transfers", server.DefaultMaxConcurrentTransfers, "Transfers served at the same time")
	cmd.Flags().BoolVar(&announce, "announce", false, "Announce the server on the LAN over mDNS")
	cmd.Flags().StringVar(&name, "name", "", "mDNS instance name (random when empty)")
	cmd.Flags().StringVar(&history, "history", defaultHistory, "Transfer journal file, empty to disable")
	return cmd
}
