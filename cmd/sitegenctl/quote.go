package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/sitegen/internal/quote"
	"github.com/fyrsmithlabs/sitegen/internal/stage"
)

func newQuoteCmd(api *apiClient) *cobra.Command {
	var (
		req       quote.Request
		tier      string
		urg       string
		asJSON    bool
		offline   bool
		priceBook string
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a website without a run",
		Long: `Price a website from a page count and options.

Examples:
  # A three page site on the fast tier
  sitegenctl quote --client "Acme Dental" --pages 3

  # A larger site delivered quickly
  sitegenctl quote --client Acme --pages 12 --tier quality --urgency express --add-ons gallery

  # Price locally against a price book file
  sitegenctl quote --client Acme --pages 4 --offline --price-book prices.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Tier = stage.ModelTier(tier)
			req.Urgency = quote.Urgency(urg)

			var (
				q    quote.Quote
				body []byte
				err  error
			)
			if offline {
				if q, err = localQuote(req, priceBook); err != nil {
					return err
				}
				if body, err = json.Marshal(q); err != nil {
					return err
				}
			} else {
				if err := api.do(cmd.Context(), http.MethodPost, "/api/v1/quotes", req, &body); err != nil {
					return err
				}
				if err := json.Unmarshal(body, &q); err != nil {
					return fmt.Errorf("failed to decode response: %w", err)
				}
			}

			w := cmd.OutOrStdout()
			if asJSON {
				_, err := w.Write(body)
				return err
			}
			fprintf(w, "%s", quote.FormatText(q))
			return nil
		},
	}
	cmd.Flags().StringVar(&req.ClientName, "client", "", "client name")
	cmd.Flags().IntVar(&req.PageCount, "pages", 1, "number of pages")
	cmd.Flags().StringVar(&tier, "tier", "fast", "model tier (fast or quality)")
	cmd.Flags().StringVar(&urg, "urgency", "", "normal, rush or express")
	cmd.Flags().StringSliceVar(&req.AddOns, "add-ons", nil, "add-on IDs")
	cmd.Flags().BoolVar(&req.Maintenance, "maintenance", false, "include a maintenance plan")
	cmd.Flags().BoolVar(&req.IncludeDomain, "domain", false, "include domain registration")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the quote as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "price locally instead of asking the server")
	cmd.Flags().StringVar(&priceBook, "price-book", "", "TOML price book for --offline (default: built-in)")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func localQuote(req quote.Request, priceBook string) (quote.Quote, error) {
	book := quote.DefaultPriceBook()
	if priceBook != "" {
		var err error
		if book, err = quote.LoadPriceBook(priceBook); err != nil {
			return quote.Quote{}, err
		}
	}
	req.IssuedAt = time.Now()
	return quote.Generate(book, req)
}
