package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/fyrsmithlabs/sitegen/internal/memo"
	"github.com/fyrsmithlabs/sitegen/internal/stage"
)

// Static answers prompts from the brief alone. Output depends only on the
// prompt, so repeated runs produce identical sites.
type Static struct{}

// NewStatic returns the offline client.
func NewStatic() *Static { return &Static{} }

var palettes = []memo.Palette{
	{Primary: "#1d4ed8", Secondary: "#0f172a", Accent: "#f59e0b", Background: "#ffffff", Text: "#111827"},
	{Primary: "#047857", Secondary: "#064e3b", Accent: "#f97316", Background: "#ffffff", Text: "#1f2937"},
	{Primary: "#b91c1c", Secondary: "#1f2937", Accent: "#facc15", Background: "#fafafa", Text: "#111827"},
	{Primary: "#6d28d9", Secondary: "#1e1b4b", Accent: "#22d3ee", Background: "#ffffff", Text: "#0f172a"},
}

func (s *Static) Complete(ctx context.Context, prompt string, tier stage.ModelTier) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	task, b, err := ParsePrompt(prompt)
	if err != nil {
		return "", stage.NonRetryable(err)
	}
	var out any
	switch task {
	case TaskResearch:
		out = staticResearch(b)
	case TaskDesign:
		out = staticDesign(b)
	case TaskContent:
		if b.Page == nil {
			return "", stage.NonRetryablef("content prompt without a page")
		}
		out = staticPage(b, *b.Page)
	default:
		return "", stage.NonRetryablef("unknown task %q", task)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", stage.NonRetryable(err)
	}
	return "```json\n" + string(data) + "\n```", nil
}

func staticResearch(b Brief) memo.ResearchFacts {
	industry := strings.ToLower(b.Industry)
	primary := append([]string(nil), b.Keywords...)
	if len(primary) == 0 {
		primary = []string{industry}
	}
	var secondary, longTail []string
	for _, svc := range b.Services {
		secondary = append(secondary, strings.ToLower(svc))
	}
	if b.City != "" {
		longTail = append(longTail, fmt.Sprintf("%s in %s", industry, b.City))
	}
	return memo.ResearchFacts{
		Keywords:    memo.Keywords{Primary: primary, Secondary: secondary, LongTail: longTail},
		Competitors: b.Competitors,
		Insights:    []string{fmt.Sprintf("Customers compare %s providers on clarity and response time.", industry)},
	}
}

func staticDesign(b Brief) memo.DesignFacts {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(b.CompanyName)))
	return memo.DesignFacts{
		Palette:     palettes[int(h.Sum32())%len(palettes)],
		HeadingFont: "Inter",
		BodyFont:    "Source Sans 3",
		Layout:      "classic",
	}
}

type pagePayload struct {
	Title           string           `json:"title"`
	MetaTitle       string           `json:"meta_title"`
	MetaDescription string           `json:"meta_description"`
	Sections        []sectionPayload `json:"sections"`
}

type sectionPayload struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
	Body  string `json:"body"`
}

func staticPage(b Brief, p memo.PageSpec) pagePayload {
	keyword := strings.ToLower(b.Industry)
	if len(b.Keywords) > 0 {
		keyword = b.Keywords[0]
	}
	name := p.Name
	if name == "" {
		name = p.Slug
	}
	services := "the services our customers ask for most"
	if len(b.Services) > 0 {
		services = strings.Join(b.Services, ", ")
	}

	// Sentences are written per page so repeated phrasing stays low.
	intro := []string{
		fmt.Sprintf("%s brings practical %s help to people who want clear answers.", b.CompanyName, keyword),
		fmt.Sprintf("This %s page explains what we do and how we work.", strings.ToLower(name)),
		fmt.Sprintf("Our team focuses on %s.", services),
		"We keep each step simple and we tell you the cost before work starts.",
		"You get one contact person from the first call to the final check.",
	}
	detail := []string{
		fmt.Sprintf("Every %s visit starts with a short talk about your goals.", keyword),
		"We listen first and then suggest a plan that fits your time and budget.",
		fmt.Sprintf("The %s section below lists the details that matter most.", p.Slug),
		"Plain language replaces jargon wherever we can.",
		"Questions are welcome at every stage.",
	}
	return pagePayload{
		Title:           fmt.Sprintf("%s | %s", name, b.CompanyName),
		MetaTitle:       truncate(fmt.Sprintf("%s - %s", name, b.CompanyName), 60),
		MetaDescription: truncate(fmt.Sprintf("%s: %s from %s.", name, keyword, b.CompanyName), 160),
		Sections: []sectionPayload{
			{ID: p.Slug + "-hero", Type: "hero", Title: name, Body: strings.Join(intro, " ")},
			{ID: p.Slug + "-detail", Type: "text", Title: "How we work", Body: strings.Join(detail, " ")},
			{ID: p.Slug + "-cta", Type: "cta", Title: "Get in touch", Body: fmt.Sprintf("Contact %s today to book your first appointment.", b.CompanyName)},
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
