package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescp17/lanTFTP/internal/style"
	"github.com/rescp17/lanTFTP/internal/util"
	"github.com/rescp17/lanTFTP/pkg/discovery"
)

func newDiscoverCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List TFTP servers announced on the LAN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()

			services, err := discovery.Collect(ctx, &discovery.MDNSAdapter{}, discovery.ServiceName(discovery.DefaultServiceType, discovery.DefaultDomain))
			if err != nil {
				return err
			}
			if len(services) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), style.HelpStyle.Render("No TFTP servers found."))
				return nil
			}

			widths := []int{24, 40, 6}
			fmt.Fprintln(cmd.OutOrStdout(), style.HeaderStyle.Render(util.Row([]string{"NAME", "ADDRESS", "PORT"}, widths)))
			for _, s := range services {
				addr := s.Name + "." + s.Domain
				if s.Addr != nil {
					addr = s.Addr.String()
				}
				fmt.Fprintln(cmd.OutOrStdout(), util.Row([]string{s.Name, addr, strconv.Itoa(s.Port)}, widths))
			}
			return nil
		},
	}
	cmd.Flags().DurationVarP(&wait, "wait", "w", 3*time.Second, "How long to listen for announcements")
	return cmd
}
