// Package site defines the generated page model shared by the content
// stage, the quality scorer and the export bundle.
package site

import "strings"

// Section types with special meaning to the scorer.
const (
	SectionHero    = "hero"
	SectionCTA     = "cta"
	SectionContact = "contact"
)

// Section is one block of a page. Body is markdown.
type Section struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
	Body  string `json:"body"`
}

// PageContent is the generated content for one page.
type PageContent struct {
	ID              string    `json:"id"`
	Slug            string    `json:"slug"`
	Type            string    `json:"type"`
	Title           string    `json:"title"`
	MetaTitle       string    `json:"meta_title,omitempty"`
	MetaDescription string    `json:"meta_description,omitempty"`
	Sections        []Section `json:"sections"`
	Keywords        []string  `json:"keywords,omitempty"`
	WordCount       int       `json:"word_count,omitempty"`
}

// Markdown joins title and section bodies into one markdown document.
func (p PageContent) Markdown() string {
	var b strings.Builder
	if p.Title != "" {
		b.WriteString("# ")
		b.WriteString(p.Title)
		b.WriteString("\n\n")
	}
	for _, s := range p.Sections {
		if s.Title != "" {
			b.WriteString("## ")
			b.WriteString(s.Title)
			b.WriteString("\n\n")
		}
		b.WriteString(s.Body)
		b.WriteString("\n\n")
	}
	return b.String()
}

// HasSectionType reports whether any section has one of the given types.
func (p PageContent) HasSectionType(types ...string) bool {
	for _, s := range p.Sections {
		for _, t := range types {
			if strings.EqualFold(s.Type, t) {
				return true
			}
		}
	}
	return false
}
