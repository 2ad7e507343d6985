package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/sitegen/internal/monitor"
)

func newMonitorCmd(api *apiClient) *cobra.Command {
	var (
		interval   time.Duration
		exitOnDone bool
	)
	cmd := &cobra.Command{
		Use:   "monitor <run-id>...",
		Short: "Watch runs in a live dashboard",
		Long: `Poll one or more runs and render their stages, scores and failures.

Keys: r refreshes, q quits.

Examples:
  sitegenctl monitor 0b6f... 91ac...
  sitegenctl monitor 0b6f... --interval 5s --exit-on-done`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return fmt.Errorf("interval must be positive")
			}
			client := monitor.NewClient(api.baseURL)
			if err := client.Health(cmd.Context()); err != nil {
				return fmt.Errorf("server %s is not reachable: %w", api.baseURL, err)
			}
			var opts []monitor.Option
			if exitOnDone {
				opts = append(opts, monitor.WithExitOnDone())
			}
			_, err := monitor.Run(client, args, interval, opts...)
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval")
	cmd.Flags().BoolVar(&exitOnDone, "exit-on-done", false, "quit once every run is finished")
	return cmd
}
