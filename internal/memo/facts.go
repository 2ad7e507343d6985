package memo

import (
	"fmt"
	"unicode/utf8"
)

// Namespace names. They match the names of the stages that contribute them.
const (
	NamespaceInput    = "input"
	NamespaceResearch = "research"
	NamespaceDesign   = "design"
)

// PageSpec is one page the customer asked for.
type PageSpec struct {
	Slug string `json:"slug" cbor:"slug"`
	Name string `json:"name" cbor:"name"`
	Type string `json:"type" cbor:"type"`
}

// Contact is the verified contact block of the company.
type Contact struct {
	Email   string `json:"email,omitempty" cbor:"email"`
	Phone   string `json:"phone,omitempty" cbor:"phone"`
	Address string `json:"address,omitempty" cbor:"address"`
	City    string `json:"city,omitempty" cbor:"city"`
}

// InputFacts are the confirmed facts supplied when a run starts.
type InputFacts struct {
	CompanyID       string     `json:"company_id" cbor:"company_id"`
	CompanyName     string     `json:"company_name" cbor:"company_name"`
	Industry        string     `json:"industry" cbor:"industry"`
	Pages           []PageSpec `json:"pages" cbor:"pages"`
	Services        []string   `json:"services,omitempty" cbor:"services"`
	FocusKeywords   []string   `json:"focus_keywords,omitempty" cbor:"focus_keywords"`
	Competitors     []string   `json:"competitors,omitempty" cbor:"competitors"`
	ForbiddenTopics []string   `json:"forbidden_topics,omitempty" cbor:"forbidden_topics"`
	Contact         Contact    `json:"contact" cbor:"contact"`
	Domain          string     `json:"domain,omitempty" cbor:"domain"`
	Tone            string     `json:"tone,omitempty" cbor:"tone"`
	TargetAudience  string     `json:"target_audience,omitempty" cbor:"target_audience"`
	Features        []string   `json:"features,omitempty" cbor:"features"`
}

// AllowedSlugs returns the page slugs in request order.
func (f *InputFacts) AllowedSlugs() []string {
	out := make([]string, 0, len(f.Pages))
	for _, p := range f.Pages {
		out = append(out, p.Slug)
	}
	return out
}

func (f *InputFacts) clone() *InputFacts {
	c := *f
	c.Pages = append([]PageSpec(nil), f.Pages...)
	c.Services = cloneStrings(f.Services)
	c.FocusKeywords = cloneStrings(f.FocusKeywords)
	c.Competitors = cloneStrings(f.Competitors)
	c.ForbiddenTopics = cloneStrings(f.ForbiddenTopics)
	c.Features = cloneStrings(f.Features)
	return &c
}

// Keywords groups researched search terms by intent.
type Keywords struct {
	Primary   []string `json:"primary" cbor:"primary"`
	Secondary []string `json:"secondary,omitempty" cbor:"secondary"`
	LongTail  []string `json:"long_tail,omitempty" cbor:"long_tail"`
}

// All returns every keyword, primary first.
func (k Keywords) All() []string {
	out := make([]string, 0, len(k.Primary)+len(k.Secondary)+len(k.LongTail))
	out = append(out, k.Primary...)
	out = append(out, k.Secondary...)
	return append(out, k.LongTail...)
}

// ResearchFacts are contributed by the research stage.
type ResearchFacts struct {
	Keywords    Keywords `json:"keywords" cbor:"keywords"`
	Competitors []string `json:"competitors,omitempty" cbor:"competitors"`
	Insights    []string `json:"insights,omitempty" cbor:"insights"`
}

func (f *InputFacts) invalidText() []string {
	var bad badText
	bad.check("company_id", f.CompanyID)
	bad.check("company_name", f.CompanyName)
	bad.check("industry", f.Industry)
	for i, p := range f.Pages {
		bad.check(fmt.Sprintf("pages[%d].slug", i), p.Slug)
		bad.check(fmt.Sprintf("pages[%d].name", i), p.Name)
		bad.check(fmt.Sprintf("pages[%d].type", i), p.Type)
	}
	bad.list("services", f.Services)
	bad.list("focus_keywords", f.FocusKeywords)
	bad.list("competitors", f.Competitors)
	bad.list("forbidden_topics", f.ForbiddenTopics)
	bad.list("features", f.Features)
	bad.check("contact.email", f.Contact.Email)
	bad.check("contact.phone", f.Contact.Phone)
	bad.check("contact.address", f.Contact.Address)
	bad.check("contact.city", f.Contact.City)
	bad.check("domain", f.Domain)
	bad.check("tone", f.Tone)
	bad.check("target_audience", f.TargetAudience)
	return bad
}

func (f *ResearchFacts) clone() *ResearchFacts {
	c := *f
	c.Keywords = Keywords{
		Primary:   cloneStrings(f.Keywords.Primary),
		Secondary: cloneStrings(f.Keywords.Secondary),
		LongTail:  cloneStrings(f.Keywords.LongTail),
	}
	c.Competitors = cloneStrings(f.Competitors)
	c.Insights = cloneStrings(f.Insights)
	return &c
}

func (f *ResearchFacts) invalidText() []string {
	var bad badText
	bad.list("keywords.primary", f.Keywords.Primary)
	bad.list("keywords.secondary", f.Keywords.Secondary)
	bad.list("keywords.long_tail", f.Keywords.LongTail)
	bad.list("competitors", f.Competitors)
	bad.list("insights", f.Insights)
	return bad
}

// Palette is the approved colour set. Values are #rrggbb.
type Palette struct {
	Primary    string `json:"primary" cbor:"primary"`
	Secondary  string `json:"secondary,omitempty" cbor:"secondary"`
	Accent     string `json:"accent,omitempty" cbor:"accent"`
	Background string `json:"background,omitempty" cbor:"background"`
	Text       string `json:"text,omitempty" cbor:"text"`
}

// Colours returns the non-empty palette entries.
func (p Palette) Colours() []string {
	var out []string
	for _, c := range []string{p.Primary, p.Secondary, p.Accent, p.Background, p.Text} {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// DesignFacts are contributed by the design stage.
type DesignFacts struct {
	Palette     Palette `json:"palette" cbor:"palette"`
	HeadingFont string  `json:"heading_font,omitempty" cbor:"heading_font"`
	BodyFont    string  `json:"body_font,omitempty" cbor:"body_font"`
	Layout      string  `json:"layout,omitempty" cbor:"layout"`
}

func (f *DesignFacts) clone() *DesignFacts {
	c := *f
	return &c
}

func (f *DesignFacts) invalidText() []string {
	var bad badText
	bad.check("palette.primary", f.Palette.Primary)
	bad.check("palette.secondary", f.Palette.Secondary)
	bad.check("palette.accent", f.Palette.Accent)
	bad.check("palette.background", f.Palette.Background)
	bad.check("palette.text", f.Palette.Text)
	bad.check("heading_font", f.HeadingFont)
	bad.check("body_font", f.BodyFont)
	bad.check("layout", f.Layout)
	return bad
}

// badText collects the names of fields holding invalid UTF-8. Such bytes
// do not survive a JSON round trip, so the stored memo would no longer
// match its fingerprint.
type badText []string

func (b *badText) check(field, v string) {
	if !utf8.ValidString(v) {
		*b = append(*b, field)
	}
}

func (b *badText) list(field string, vs []string) {
	for i, v := range vs {
		b.check(fmt.Sprintf("%s[%d]", field, i), v)
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
