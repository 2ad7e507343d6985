package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/sitegen/internal/monitor"
)

// StartRunResponse matches internal/http StartRunResponse
type StartRunResponse struct {
	RunID string `json:"run_id"`
}

func newRunCmd(api *apiClient) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start and step website generation runs",
	}
	cmd.AddCommand(
		newRunStartCmd(api),
		newRunGetCmd(api),
		newRunAdvanceCmd(api),
		newRunResumeCmd(api),
		newRunCancelCmd(api),
		newRunSkipCmd(api),
		newRunQuoteCmd(api),
		newRunExportCmd(api),
	)
	return cmd
}

func newRunStartCmd(api *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "start [facts.json]",
		Short: "Start a run from company facts",
		Long: `Start a run from a JSON document of company facts.

Examples:
  # Start from a file
  sitegenctl run start acme.json

  # Start from stdin
  cat acme.json | sitegenctl run start -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			facts, err := readJSONInput(cmd, args)
			if err != nil {
				return err
			}
			var resp StartRunResponse
			if err := api.do(cmd.Context(), http.MethodPost, "/api/v1/runs", facts, &resp); err != nil {
				return err
			}
			green.Fprintf(cmd.OutOrStdout(), "✓ Run started: %s\n", resp.RunID)
			return nil
		},
	}
}

func newRunGetCmd(api *apiClient) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get <run-id>",
		Short: "Show a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAndPrint(cmd, api, http.MethodGet, runPath(args[0], ""), nil, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw run state")
	return cmd
}

func newRunAdvanceCmd(api *apiClient) *cobra.Command {
	var (
		force bool
		tier  string
	)
	cmd := &cobra.Command{
		Use:   "advance <run-id>",
		Short: "Run the next stage",
		Long: `Run the next pending stage of a run.

When content misses the quality threshold the run waits for a revision.
--force accepts a rerun of the content stage, on the quality tier unless
--tier says otherwise.

Examples:
  sitegenctl run advance 0b6f...
  sitegenctl run advance 0b6f... --force --tier quality`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"force": force, "tier": tier}
			err := runAndPrint(cmd, api, http.MethodPost, runPath(args[0], "advance"), body, false)
			var apiErr *apiError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnprocessableEntity {
				printGate(cmd.OutOrStdout(), args[0], apiErr)
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "rerun content after a quality gate")
	cmd.Flags().StringVar(&tier, "tier", "", "model tier for this step (fast or quality)")
	return cmd
}

func newRunResumeCmd(api *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Run the remaining stages",
		Long: `Run stages until the run completes, fails or waits for a revision.
When the server has a durable worker the resume is handed to it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				monitor.RunStatus
				WorkflowID string `json:"workflow_id"`
			}
			if err := api.do(cmd.Context(), http.MethodPost, runPath(args[0], "resume"), nil, &resp); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if resp.WorkflowID != "" {
				cyan.Fprintf(w, "Resume dispatched to workflow %s\n", resp.WorkflowID)
				return nil
			}
			printRun(w, resp.RunStatus, time.Now())
			return nil
		},
	}
}

func newRunCancelCmd(api *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAndPrint(cmd, api, http.MethodPost, runPath(args[0], "cancel"), nil, false)
		},
	}
}

func newRunSkipCmd(api *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "skip <run-id> <stage>",
		Short: "Skip an optional stage",
		Long: `Skip an optional stage before it runs. Only research can be skipped.

Examples:
  sitegenctl run skip 0b6f... research`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"stage": args[1]}
			return runAndPrint(cmd, api, http.MethodPost, runPath(args[0], "skip"), body, false)
		},
	}
}

func newRunQuoteCmd(api *apiClient) *cobra.Command {
	var (
		urgency     string
		maintenance bool
		domain      bool
		addOns      []string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "quote <run-id>",
		Short: "Price the site a run describes",
		Long: `Price the site a run describes from its pages and last model tier.

Examples:
  sitegenctl run quote 0b6f... --urgency rush --add-ons blog-system,dark-mode`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if urgency != "" {
				q.Set("urgency", urgency)
			}
			if maintenance {
				q.Set("maintenance", strconv.FormatBool(maintenance))
			}
			if domain {
				q.Set("domain", strconv.FormatBool(domain))
			}
			if len(addOns) > 0 {
				q.Set("add_ons", strings.Join(addOns, ","))
			}
			if !asJSON {
				q.Set("format", "text")
			}

			var body []byte
			if err := api.do(cmd.Context(), http.MethodGet, runPath(args[0], "quote")+"?"+q.Encode(), nil, &body); err != nil {
				return err
			}
			_, err := cmd.OutOrStdout().Write(body)
			return err
		},
	}
	cmd.Flags().StringVar(&urgency, "urgency", "", "normal, rush or express")
	cmd.Flags().BoolVar(&maintenance, "maintenance", false, "include a maintenance plan")
	cmd.Flags().BoolVar(&domain, "domain", false, "include domain registration")
	cmd.Flags().StringSliceVar(&addOns, "add-ons", nil, "add-on IDs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the quote as JSON")
	return cmd
}

func newRunExportCmd(api *apiClient) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <run-id>",
		Short: "Export the pages of a run",
		Long: `Export the pages, design and manifest of a run as JSON or YAML.

Examples:
  sitegenctl run export 0b6f... --format yaml -o acme.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("format must be json or yaml, got %q", format)
			}
			var body []byte
			if err := api.do(cmd.Context(), http.MethodGet, runPath(args[0], "export")+"?format="+format, nil, &body); err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err := cmd.OutOrStdout().Write(body)
				return err
			}
			if err := os.WriteFile(output, body, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			green.Fprintf(cmd.OutOrStdout(), "✓ Exported run %s to %s\n", args[0], output)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

// runAndPrint issues a request that returns a run and prints it.
func runAndPrint(cmd *cobra.Command, api *apiClient, method, path string, body any, asJSON bool) error {
	var raw []byte
	if err := api.do(cmd.Context(), method, path, body, &raw); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if asJSON {
		_, err := w.Write(raw)
		return err
	}
	var run monitor.RunStatus
	if err := json.Unmarshal(raw, &run); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	printRun(w, run, time.Now())
	return nil
}

func runPath(runID, action string) string {
	p := "/api/v1/runs/" + url.PathEscape(runID)
	if action != "" {
		p += "/" + action
	}
	return p
}

// readJSONInput reads a JSON document from the named file, or stdin when
// the argument is missing or "-".
func readJSONInput(cmd *cobra.Command, args []string) (json.RawMessage, error) {
	var (
		content []byte
		err     error
	)
	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("no input")
	}
	if !json.Valid(content) {
		return nil, fmt.Errorf("input is not valid JSON")
	}
	return content, nil
}
