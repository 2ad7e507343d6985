package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/sitegen/internal/quality"
	"github.com/fyrsmithlabs/sitegen/internal/site"
)

// ScoreRequest matches internal/http ScoreRequest
type ScoreRequest struct {
	Pages    json.RawMessage `json:"pages"`
	MinScore *float64        `json:"min_score,omitempty"`
}

// ScoreResponse matches internal/http ScoreResponse
type ScoreResponse struct {
	quality.Report
	MeetsMinimum *bool `json:"meets_minimum,omitempty"`
}

func newScoreCmd(api *apiClient) *cobra.Command {
	var (
		minScore float64
		offline  bool
	)
	cmd := &cobra.Command{
		Use:   "score [pages.json]",
		Short: "Score page content",
		Long: `Score a JSON array of pages with the server's quality rules.

Examples:
  sitegenctl score pages.json
  sitegenctl score pages.json --min 80
  sitegenctl score pages.json --offline`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pages, err := readJSONInput(cmd, args)
			if err != nil {
				return err
			}
			req := ScoreRequest{Pages: pages}
			if cmd.Flags().Changed("min") {
				req.MinScore = &minScore
			}

			var resp ScoreResponse
			if offline {
				if resp, err = localScore(req); err != nil {
					return err
				}
			} else if err := api.do(cmd.Context(), http.MethodPost, "/api/v1/quality/score", req, &resp); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			verdict := green.Sprint("passed")
			if !resp.Passed {
				verdict = red.Sprint("failed")
			}
			fprintf(w, "Score: %.1f/%.0f %s\n", resp.Score, resp.Threshold, verdict)
			fprintf(w, "  readability %.1f  keyword density %.1f  repetition penalty %.1f  cta %.1f\n",
				resp.Subscores.Readability, resp.Subscores.KeywordDensity, resp.Subscores.RepetitionPenalty, resp.Subscores.CTAPresence)
			if resp.MeetsMinimum != nil {
				fprintf(w, "Meets minimum %.1f: %t\n", minScore, *resp.MeetsMinimum)
			}
			for _, issue := range resp.Issues {
				yellow.Fprintf(w, "  - %s\n", issue)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&minScore, "min", 0, "report whether the score reaches this minimum")
	cmd.Flags().BoolVar(&offline, "offline", false, "score locally with the default rules")
	return cmd
}

func localScore(req ScoreRequest) (ScoreResponse, error) {
	var pages []site.PageContent
	if err := json.Unmarshal(req.Pages, &pages); err != nil {
		return ScoreResponse{}, fmt.Errorf("pages must be a JSON array of pages: %w", err)
	}
	if len(pages) == 0 {
		return ScoreResponse{}, fmt.Errorf("no pages to score")
	}
	scorer, err := quality.NewScorer(quality.DefaultConfig())
	if err != nil {
		return ScoreResponse{}, err
	}
	if req.MinScore != nil {
		ok, report := scorer.QuickCheck(pages, *req.MinScore)
		return ScoreResponse{Report: report, MeetsMinimum: &ok}, nil
	}
	return ScoreResponse{Report: scorer.Score(pages)}, nil
}
