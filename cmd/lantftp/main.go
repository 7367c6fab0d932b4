package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	dnssdlog "github.com/brutella/dnssd/log"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/rescp17/lanTFTP/internal/config"
)

type globalOptions struct {
	verbose    bool
	logFile    string
	configPath string
}

func main() {
	opts := &globalOptions{}
	var logCloser io.Closer

	cmd := &cobra.Command{
		Use:   "lantftp",
		Short: "A TFTP server and client for local networks",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := setupLogging(opts)
			logCloser = c
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				if err := logCloser.Close(); err != nil {
					slog.Warn("failed to close log file", "error", err)
				}
			}
		},
	}

	defaultConfig, _ := config.GetConfigPath()
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log every block and retransmission")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "Write logs to this file instead of stderr")
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfig, "Path to the JSON config file")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newGetCmd(opts))
	cmd.AddCommand(newPutCmd(opts))
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newDiscoverCmd())

	if err := fang.Execute(context.Background(), cmd); err != nil {
		os.Exit(1)
	}
}

func setupLogging(opts *globalOptions) (io.Closer, error) {
	// dnssd logs every packet it sees
	dnssdlog.Info.SetOutput(io.Discard)
	dnssdlog.Debug.SetOutput(io.Discard)

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	var closer io.Closer
	if opts.logFile != "" {
		f, err := os.OpenFile(opts.logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		w, closer = f, f
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	return closer, nil
}

func loadConfig(opts *globalOptions) (*config.Config, error) {
	if opts.configPath == "" {
		return &config.Config{}, nil
	}
	return config.Load(opts.configPath)
}
