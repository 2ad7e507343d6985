// Package quote turns a page count, add-ons and the generation tier into a
// priced quote. Generate is pure: the same book and request always produce
// the same Quote, ID included.
package quote

import (
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fyrsmithlabs/sitegen/internal/memo"
	"github.com/fyrsmithlabs/sitegen/internal/stage"
)

// Urgency speeds up delivery at a surcharge.
type Urgency string

const (
	UrgencyNormal  Urgency = "normal"
	UrgencyRush    Urgency = "rush"
	UrgencyExpress Urgency = "express"
)

// Request is everything a quote is computed from.
type Request struct {
	ClientName    string          `json:"client_name" cbor:"client_name"`
	PageCount     int             `json:"page_count" cbor:"page_count"`
	AddOns        []string        `json:"add_ons,omitempty" cbor:"add_ons"`
	Tier          stage.ModelTier `json:"tier" cbor:"tier"`
	Maintenance   bool            `json:"maintenance,omitempty" cbor:"maintenance"`
	Urgency       Urgency         `json:"urgency,omitempty" cbor:"urgency"`
	IncludeDomain bool            `json:"include_domain,omitempty" cbor:"include_domain"`
	IssuedAt      time.Time       `json:"issued_at" cbor:"issued_at"`
}

// LineItem is one row of the breakdown.
type LineItem struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// Quote is a priced offer. TotalPrice excludes tax; GrandTotal includes it.
type Quote struct {
	ID             string          `json:"id"`
	ClientName     string          `json:"client_name"`
	Package        Package         `json:"package"`
	Tier           stage.ModelTier `json:"tier"`
	Urgency        Urgency         `json:"urgency"`
	BasePrice      decimal.Decimal `json:"base_price"`
	AddOns         []LineItem      `json:"add_ons"`
	Breakdown      []LineItem      `json:"breakdown"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	DiscountReason string          `json:"discount_reason,omitempty"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	Tax            decimal.Decimal `json:"tax"`
	GrandTotal     decimal.Decimal `json:"grand_total"`
	Currency       string          `json:"currency"`
	IssuedAt       time.Time       `json:"issued_at"`
	ValidUntil     time.Time       `json:"valid_until"`
	EstimatedDays  int             `json:"estimated_days"`
	Notes          []string        `json:"notes,omitempty"`
}

// ValidationError reports an unusable request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid quote request: %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

var idKey = [32]byte{'s', 'i', 't', 'e', 'g', 'e', 'n', '.', 'q', 'u', 'o', 't', 'e', '.', 'i', 'd'}

// Normalize returns req with defaults applied and add-ons sorted and
// deduplicated, so equivalent requests hash alike.
func Normalize(req Request) Request {
	if req.Tier == "" {
		req.Tier = stage.TierFast
	}
	if req.Urgency == "" {
		req.Urgency = UrgencyNormal
	}
	req.ClientName = strings.TrimSpace(req.ClientName)
	ids := make([]string, 0, len(req.AddOns))
	for _, id := range req.AddOns {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	req.AddOns = slices.Compact(ids)
	if len(req.AddOns) == 0 {
		req.AddOns = nil
	}
	req.IssuedAt = req.IssuedAt.UTC().Truncate(time.Second)
	return req
}

// Generate prices req against book.
func Generate(book *PriceBook, req Request) (Quote, error) {
	req = Normalize(req)
	if req.PageCount < 1 {
		return Quote{}, &ValidationError{Field: "page_count", Reason: "must be at least 1"}
	}
	tierMult, ok := book.TierMultipliers[string(req.Tier)]
	if !ok {
		return Quote{}, &ValidationError{Field: "tier", Reason: fmt.Sprintf("unknown tier %q", req.Tier)}
	}
	urgMult, ok := book.Urgency[string(req.Urgency)]
	if !ok {
		return Quote{}, &ValidationError{Field: "urgency", Reason: fmt.Sprintf("unknown urgency %q", req.Urgency)}
	}
	if req.IssuedAt.IsZero() {
		return Quote{}, &ValidationError{Field: "issued_at", Reason: "is required"}
	}

	pkg := book.PackageFor(req.PageCount)
	q := Quote{
		ClientName:    req.ClientName,
		Package:       pkg,
		Tier:          req.Tier,
		Urgency:       req.Urgency,
		BasePrice:     pkg.BasePrice,
		Currency:      book.Currency,
		TaxRate:       book.TaxRate,
		IssuedAt:      req.IssuedAt,
		ValidUntil:    req.IssuedAt.AddDate(0, 0, book.ValidityDays),
		EstimatedDays: pkg.DeliveryDays,
		AddOns:        []LineItem{},
	}

	q.Breakdown = append(q.Breakdown, item("package:"+pkg.ID, pkg.Name+" package", "package", 1, pkg.BasePrice))

	if extra := req.PageCount - pkg.MaxPages; extra > 0 {
		q.Breakdown = append(q.Breakdown, item("extra-pages", fmt.Sprintf("Extra pages (%d)", extra), "pages", extra, book.ExtraPagePrice))
		q.EstimatedDays += (extra + 2) / 3
	}

	addOns := req.AddOns
	if req.Maintenance && book.MaintenanceAddOn != "" && !slices.Contains(addOns, book.MaintenanceAddOn) {
		addOns = append(slices.Clone(addOns), book.MaintenanceAddOn)
	}
	for _, id := range addOns {
		a, ok := book.AddOn(id)
		if !ok {
			return Quote{}, &ValidationError{Field: "add_ons", Reason: fmt.Sprintf("unknown add-on %q", id)}
		}
		li := item(a.ID, a.Name, a.Category, 1, a.Price)
		q.AddOns = append(q.AddOns, li)
		q.Breakdown = append(q.Breakdown, li)
		q.EstimatedDays += a.Days
	}

	if req.IncludeDomain && !pkg.IncludesDomain {
		q.Breakdown = append(q.Breakdown, item("domain", "Domain registration (1 year)", "infrastructure", 1, book.DomainPrice))
	}
	if req.Maintenance && !pkg.IncludesHosting {
		q.Breakdown = append(q.Breakdown, item("hosting", "Hosting (1 year)", "infrastructure", 1, book.HostingPrice))
	}

	for _, li := range q.Breakdown {
		q.Subtotal = q.Subtotal.Add(li.Total)
	}

	adjusted := q.Subtotal
	if !tierMult.Equal(decimal.NewFromInt(1)) {
		surcharge := money(adjusted.Mul(tierMult.Sub(decimal.NewFromInt(1))))
		q.Breakdown = append(q.Breakdown, item("tier:"+string(req.Tier), fmt.Sprintf("%s tier generation (x%s)", req.Tier, tierMult.String()), "adjustment", 1, surcharge))
		adjusted = adjusted.Add(surcharge)
	}
	if !urgMult.Equal(decimal.NewFromInt(1)) {
		surcharge := money(adjusted.Mul(urgMult.Sub(decimal.NewFromInt(1))))
		q.Breakdown = append(q.Breakdown, item("urgency:"+string(req.Urgency), fmt.Sprintf("%s delivery (x%s)", req.Urgency, urgMult.String()), "adjustment", 1, surcharge))
		adjusted = adjusted.Add(surcharge)
		q.EstimatedDays = int(decimal.NewFromInt(int64(q.EstimatedDays)).Div(urgMult).Ceil().IntPart())
	}

	if rate := book.discountRate(adjusted); rate.IsPositive() {
		q.Discount = money(adjusted.Mul(rate))
		q.DiscountReason = fmt.Sprintf("volume discount (%s%%)", rate.Shift(2).String())
	}
	q.TotalPrice = adjusted.Sub(q.Discount)
	q.Tax = money(q.TotalPrice.Mul(book.TaxRate))
	q.GrandTotal = q.TotalPrice.Add(q.Tax)
	q.Notes = notes(pkg, book, q)

	id, err := requestID(req)
	if err != nil {
		return Quote{}, err
	}
	q.ID = id
	return q, nil
}

func item(id, desc, category string, qty int, unit decimal.Decimal) LineItem {
	return LineItem{
		ID:          id,
		Description: desc,
		Category:    category,
		Quantity:    qty,
		UnitPrice:   unit,
		Total:       unit.Mul(decimal.NewFromInt(int64(qty))),
	}
}

func money(v decimal.Decimal) decimal.Decimal { return v.Round(2) }

func notes(pkg Package, book *PriceBook, q Quote) []string {
	var n []string
	if pkg.IncludesHosting {
		n = append(n, "One year of hosting is included.")
	}
	if pkg.IncludesDomain {
		n = append(n, "One year of domain registration is included.")
	}
	n = append(n,
		fmt.Sprintf("Estimated delivery: %d working days.", q.EstimatedDays),
		fmt.Sprintf("Valid for %d days.", book.ValidityDays),
		fmt.Sprintf("Prices exclude %s%% VAT, shown separately.", book.TaxRate.Shift(2).String()),
	)
	return n
}

func requestID(req Request) (string, error) {
	sum, err := memo.CanonicalHash(idKey, req)
	if err != nil {
		return "", fmt.Errorf("hash quote request: %w", err)
	}
	return "Q-" + hex.EncodeToString(sum)[:12], nil
}
