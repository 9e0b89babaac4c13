package contentctl

import (
	"fmt"
	"io"
	"time"

	platformgrpc "github.com/louisbranch/contentstream/internal/platform/grpc"
	"github.com/louisbranch/contentstream/internal/platform/timeouts"
	"github.com/spf13/cobra"
)

func (c *cli) healthCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the content daemon reports SERVING",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := platformgrpc.DialWithHealth(cmd.Context(), c.cfg.Addr, timeout, nil)
			if err != nil {
				return fmt.Errorf("contentd at %s: %w", c.cfg.Addr, err)
			}
			defer conn.Close()
			view := struct {
				Addr   string `json:"addr"`
				Status string `json:"status"`
			}{Addr: c.cfg.Addr, Status: "SERVING"}
			return c.render(cmd, view, func(w io.Writer) {
				fmt.Fprintf(w, "%s\t%s\n", view.Addr, view.Status)
			})
		},
	}
	cmd.Flags().StringVar(&c.cfg.Addr, "addr", c.cfg.Addr, "content daemon gRPC address")
	cmd.Flags().DurationVar(&timeout, "timeout", timeouts.GRPCDial, "how long to wait for SERVING")
	return cmd
}
