package quote

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const ruleWidth = 50

// FormatText renders q as a plain-text breakdown.
func FormatText(q Quote) string {
	var b strings.Builder
	heavy := strings.Repeat("=", ruleWidth)
	light := strings.Repeat("-", ruleWidth)

	fmt.Fprintln(&b, heavy)
	fmt.Fprintf(&b, "PRICE QUOTE %s\n", q.ID)
	fmt.Fprintln(&b, heavy)
	fmt.Fprintf(&b, "Client:      %s\n", q.ClientName)
	fmt.Fprintf(&b, "Package:     %s\n", q.Package.Name)
	fmt.Fprintf(&b, "Tier:        %s\n", q.Tier)
	fmt.Fprintf(&b, "Issued:      %s\n", q.IssuedAt.Format(time.DateOnly))
	fmt.Fprintf(&b, "Valid until: %s\n", q.ValidUntil.Format(time.DateOnly))
	fmt.Fprintln(&b, light)

	for _, li := range q.Breakdown {
		desc := li.Description
		if li.Quantity > 1 {
			desc = fmt.Sprintf("%s x%d", desc, li.Quantity)
		}
		fmt.Fprintf(&b, "%-34s %15s\n", desc, amount(li.Total, q.Currency))
	}

	fmt.Fprintln(&b, light)
	fmt.Fprintf(&b, "%-34s %15s\n", "Subtotal", amount(q.Subtotal, q.Currency))
	if q.Discount.IsPositive() {
		fmt.Fprintf(&b, "%-34s %15s\n", "Discount ("+q.DiscountReason+")", "-"+amount(q.Discount, q.Currency))
	}
	fmt.Fprintf(&b, "%-34s %15s\n", "Total", amount(q.TotalPrice, q.Currency))
	fmt.Fprintf(&b, "%-34s %15s\n", fmt.Sprintf("VAT (%s%%)", q.TaxRate.Shift(2).String()), amount(q.Tax, q.Currency))
	fmt.Fprintln(&b, heavy)
	fmt.Fprintf(&b, "%-34s %15s\n", "GRAND TOTAL", amount(q.GrandTotal, q.Currency))
	fmt.Fprintln(&b, heavy)

	if len(q.Notes) > 0 {
		fmt.Fprintln(&b, "Notes:")
		for _, n := range q.Notes {
			fmt.Fprintf(&b, "  * %s\n", n)
		}
	}
	return b.String()
}

func amount(v decimal.Decimal, currency string) string {
	return v.StringFixed(2) + " " + currency
}

// ProposalItem is one billable row for the proposal collaborator.
type ProposalItem struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Unit        string          `json:"unit"`
}

// ProposalData is the shape the proposal collaborator stores as an order.
type ProposalData struct {
	QuoteID     string          `json:"quote_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Items       []ProposalItem  `json:"items"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
	Currency    string          `json:"currency"`
	ValidUntil  time.Time       `json:"valid_until"`
	Notes       string          `json:"notes"`
}

// ToProposalData maps q for the proposal collaborator. Adjustments are
// folded into the item list so Items sum to Subtotal plus surcharges.
func ToProposalData(q Quote) ProposalData {
	p := ProposalData{
		QuoteID:     q.ID,
		Title:       q.ClientName + " website project",
		Description: fmt.Sprintf("Website build on the %s package, %s tier generation", q.Package.Name, q.Tier),
		Items:       make([]ProposalItem, 0, len(q.Breakdown)),
		Subtotal:    q.TotalPrice.Add(q.Discount),
		Discount:    q.Discount,
		Tax:         q.Tax,
		Total:       q.GrandTotal,
		Currency:    q.Currency,
		ValidUntil:  q.ValidUntil,
		Notes:       strings.Join(q.Notes, "\n"),
	}
	for _, li := range q.Breakdown {
		unit := "item"
		if li.Category == "pages" {
			unit = "page"
		}
		p.Items = append(p.Items, ProposalItem{
			Name:        li.Description,
			Description: li.Category,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			Unit:        unit,
		})
	}
	return p
}
