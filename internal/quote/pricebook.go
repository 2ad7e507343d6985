package quote

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

// Package is a base offering selected by page count.
type Package struct {
	ID              string          `toml:"id" json:"id"`
	Name            string          `toml:"name" json:"name"`
	Description     string          `toml:"description" json:"description"`
	MaxPages        int             `toml:"max_pages" json:"max_pages"`
	BasePrice       decimal.Decimal `toml:"base_price" json:"base_price"`
	IncludesHosting bool            `toml:"includes_hosting" json:"includes_hosting"`
	IncludesDomain  bool            `toml:"includes_domain" json:"includes_domain"`
	DeliveryDays    int             `toml:"delivery_days" json:"delivery_days"`
}

// AddOn is an optional feature priced on top of the package.
type AddOn struct {
	ID       string          `toml:"id" json:"id"`
	Name     string          `toml:"name" json:"name"`
	Category string          `toml:"category" json:"category"`
	Price    decimal.Decimal `toml:"price" json:"price"`
	Days     int             `toml:"days" json:"days"`
}

// VolumeDiscount applies Rate when the adjusted subtotal exceeds Threshold.
type VolumeDiscount struct {
	Threshold decimal.Decimal `toml:"threshold" json:"threshold"`
	Rate      decimal.Decimal `toml:"rate" json:"rate"`
}

// PriceBook holds every number the generator uses.
type PriceBook struct {
	Currency         string                     `toml:"currency"`
	TaxRate          decimal.Decimal            `toml:"tax_rate"`
	ValidityDays     int                        `toml:"validity_days"`
	ExtraPagePrice   decimal.Decimal            `toml:"extra_page_price"`
	DomainPrice      decimal.Decimal            `toml:"domain_price"`
	HostingPrice     decimal.Decimal            `toml:"hosting_price"`
	MaintenanceAddOn string                     `toml:"maintenance_add_on"`
	TierMultipliers  map[string]decimal.Decimal `toml:"tier_multipliers"`
	Urgency          map[string]decimal.Decimal `toml:"urgency"`
	Packages         []Package                  `toml:"packages"`
	AddOns           []AddOn                    `toml:"add_ons"`
	VolumeDiscounts  []VolumeDiscount           `toml:"volume_discounts"`
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func pct(v string) decimal.Decimal { return decimal.RequireFromString(v) }

// DefaultPriceBook returns the built-in price list, in Turkish lira.
func DefaultPriceBook() *PriceBook {
	return &PriceBook{
		Currency:         "TRY",
		TaxRate:          pct("0.20"),
		ValidityDays:     30,
		ExtraPagePrice:   d(750),
		DomainPrice:      d(350),
		HostingPrice:     d(1200),
		MaintenanceAddOn: "monthly-maintenance",
		TierMultipliers: map[string]decimal.Decimal{
			"fast":    pct("1.00"),
			"quality": pct("1.25"),
		},
		Urgency: map[string]decimal.Decimal{
			"normal":  pct("1.00"),
			"rush":    pct("1.25"),
			"express": pct("1.50"),
		},
		Packages: []Package{
			{ID: "starter", Name: "Starter", Description: "Essential website for small businesses", MaxPages: 5, BasePrice: d(7500), IncludesHosting: true, DeliveryDays: 7},
			{ID: "professional", Name: "Professional", Description: "Professional site for growing businesses", MaxPages: 10, BasePrice: d(15000), IncludesHosting: true, IncludesDomain: true, DeliveryDays: 14},
			{ID: "enterprise", Name: "Enterprise", Description: "Full-scope solution for established firms", MaxPages: 25, BasePrice: d(35000), IncludesHosting: true, IncludesDomain: true, DeliveryDays: 30},
		},
		AddOns: []AddOn{
			{ID: "custom-design", Name: "Custom design", Category: "design", Price: d(5000), Days: 5},
			{ID: "animation-pack", Name: "Animation pack", Category: "design", Price: d(2500), Days: 2},
			{ID: "dark-mode", Name: "Dark mode", Category: "design", Price: d(1500), Days: 1},
			{ID: "blog-system", Name: "Blog system", Category: "functionality", Price: d(4000), Days: 3},
			{ID: "appointment-system", Name: "Appointment booking", Category: "functionality", Price: d(6000), Days: 4},
			{ID: "contact-forms", Name: "Advanced forms", Category: "functionality", Price: d(2000), Days: 2},
			{ID: "gallery", Name: "Gallery", Category: "functionality", Price: d(2500), Days: 2},
			{ID: "multi-language", Name: "Multi-language", Category: "functionality", Price: d(3500), Days: 3},
			{ID: "whatsapp-integration", Name: "WhatsApp integration", Category: "integration", Price: d(1500), Days: 1},
			{ID: "google-maps", Name: "Google Maps", Category: "integration", Price: d(500), Days: 1},
			{ID: "social-media", Name: "Social media feeds", Category: "integration", Price: d(2000), Days: 2},
			{ID: "crm-integration", Name: "CRM integration", Category: "integration", Price: d(5000), Days: 3},
			{ID: "payment-gateway", Name: "Payment gateway", Category: "integration", Price: d(4000), Days: 3},
			{ID: "monthly-maintenance", Name: "Monthly maintenance (yearly)", Category: "support", Price: d(6000)},
			{ID: "priority-support", Name: "Priority support (yearly)", Category: "support", Price: d(12000)},
			{ID: "training", Name: "Training session", Category: "support", Price: d(1500), Days: 1},
		},
		VolumeDiscounts: []VolumeDiscount{
			{Threshold: d(30000), Rate: pct("0.05")},
			{Threshold: d(50000), Rate: pct("0.10")},
		},
	}
}

// LoadPriceBook reads a TOML price book. Missing top-level values fall back
// to DefaultPriceBook; list tables replace the defaults wholesale.
func LoadPriceBook(path string) (*PriceBook, error) {
	book := DefaultPriceBook()
	book.Packages, book.AddOns, book.VolumeDiscounts = nil, nil, nil

	if _, err := toml.DecodeFile(path, book); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPriceBook, path, err)
	}

	def := DefaultPriceBook()
	if len(book.Packages) == 0 {
		book.Packages = def.Packages
	}
	if len(book.AddOns) == 0 {
		book.AddOns = def.AddOns
	}
	if book.VolumeDiscounts == nil {
		book.VolumeDiscounts = def.VolumeDiscounts
	}
	if err := book.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPriceBook, path, err)
	}
	return book, nil
}

// ErrInvalidPriceBook wraps every price book load failure.
var ErrInvalidPriceBook = errors.New("invalid price book")

// Validate checks the book is usable and sorts its brackets.
func (b *PriceBook) Validate() error {
	var errs []error
	if b.Currency == "" {
		errs = append(errs, errors.New("currency is required"))
	}
	if b.TaxRate.IsNegative() {
		errs = append(errs, errors.New("tax_rate cannot be negative"))
	}
	if b.ValidityDays <= 0 {
		errs = append(errs, errors.New("validity_days must be positive"))
	}
	if len(b.Packages) == 0 {
		errs = append(errs, errors.New("at least one package is required"))
	}
	for _, t := range []string{"fast", "quality"} {
		if m, ok := b.TierMultipliers[t]; !ok || !m.IsPositive() {
			errs = append(errs, fmt.Errorf("tier multiplier %q must be positive", t))
		}
	}
	if m, ok := b.Urgency["normal"]; !ok || !m.IsPositive() {
		errs = append(errs, errors.New(`urgency "normal" must be positive`))
	}
	seen := make(map[string]bool)
	for _, a := range b.AddOns {
		if seen[a.ID] {
			errs = append(errs, fmt.Errorf("duplicate add-on %q", a.ID))
		}
		seen[a.ID] = true
	}
	if b.MaintenanceAddOn != "" && !seen[b.MaintenanceAddOn] {
		errs = append(errs, fmt.Errorf("maintenance add-on %q is not in the catalogue", b.MaintenanceAddOn))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	sort.SliceStable(b.Packages, func(i, j int) bool { return b.Packages[i].MaxPages < b.Packages[j].MaxPages })
	sort.SliceStable(b.VolumeDiscounts, func(i, j int) bool {
		return b.VolumeDiscounts[i].Threshold.LessThan(b.VolumeDiscounts[j].Threshold)
	})
	return nil
}

// PackageFor returns the smallest package covering pages, or the largest
// package when none does.
func (b *PriceBook) PackageFor(pages int) Package {
	for _, p := range b.Packages {
		if pages <= p.MaxPages {
			return p
		}
	}
	return b.Packages[len(b.Packages)-1]
}

// AddOn looks up a catalogue entry.
func (b *PriceBook) AddOn(id string) (AddOn, bool) {
	for _, a := range b.AddOns {
		if a.ID == id {
			return a, true
		}
	}
	return AddOn{}, false
}

// discountRate returns the rate for the highest threshold below amount.
func (b *PriceBook) discountRate(amount decimal.Decimal) decimal.Decimal {
	rate := decimal.Zero
	for _, v := range b.VolumeDiscounts {
		if amount.GreaterThan(v.Threshold) {
			rate = v.Rate
		}
	}
	return rate
}

// Dump writes the book as TOML. It is used to scaffold an editable file.
func (b *PriceBook) Dump(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(b)
}
