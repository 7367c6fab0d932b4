package main

import (
	"github.com/spf13/cobra"

	"github.com/rescp17/lanTFTP/internal/audit"
)

func newHistoryCmd() *cobra.Command {
	var (
		path  string
		limit int
	)
	defaultHistory, _ := audit.DefaultPath()

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show transfers recorded by the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := audit.Open(path)
			if err != nil {
				return err
			}
			entries, err := journal.Load()
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}
			audit.Render(cmd.OutOrStdout(), entries)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "history", defaultHistory, "Transfer journal file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Show at most this many entries (0 for all)")
	return cmd
}
