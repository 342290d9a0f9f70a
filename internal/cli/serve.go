package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCmd(env *environment) *cobra.Command {
	var metricsAddr string
	var noJobs bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools on stdin/stdout",
		Long: "serve runs the MCP server on stdin/stdout. Scheduled and file-watch\n" +
			"import jobs run in the background while it is up.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if metricsAddr != "" {
				env.v.Set("metrics.addr", metricsAddr)
			}
			if noJobs {
				env.v.Set("jobs.enabled", false)
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, _, closeApp, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer closeApp()
			return a.Serve(ctx, Version)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose prometheus metrics on this address")
	cmd.Flags().BoolVar(&noJobs, "no-jobs", false, "do not start scheduled or file-watch import jobs")
	return cmd
}
