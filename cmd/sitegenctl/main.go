// Package main implements sitegenctl, the CLI for driving a sitegen server
// over its REST API.
package main

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// version information
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var serverURL string
	api := &apiClient{http: &http.Client{}}

	root := &cobra.Command{
		Use:   "sitegenctl",
		Short: "CLI for sitegen server operations",
		Long: `sitegenctl is a command-line interface for the sitegen HTTP server.
It starts and steps generation runs, prices quotes, scores content and
watches runs in a live dashboard.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			api.baseURL = strings.TrimRight(serverURL, "/")
		},
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:9191", "sitegen server URL")
	root.PersistentFlags().DurationVar(&api.http.Timeout, "timeout", 10*time.Minute, "request timeout; stages may call an LLM")

	root.AddCommand(
		newHealthCmd(api),
		newRunCmd(api),
		newQuoteCmd(api),
		newScoreCmd(api),
		newMonitorCmd(api),
	)
	return root
}

// newHealthCmd checks server health
func newHealthCmd(api *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check sitegen server health",
		Long: `Check the health status of the sitegen HTTP server.

Examples:
  # Check health
  sitegenctl health

  # Check health on a different server
  sitegenctl health --server http://localhost:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp HealthResponse
			if err := api.do(cmd.Context(), http.MethodGet, "/health", nil, &resp); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fprintf(w, "Server Status: %s\n", statusColor(resp.Status).Sprint(resp.Status))
			fprintf(w, "Server URL: %s\n", api.baseURL)
			return nil
		},
	}
}
