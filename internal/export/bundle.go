package export

import (
	"fmt"

	"github.com/fyrsmithlabs/sitegen/internal/memo"
	"github.com/fyrsmithlabs/sitegen/internal/site"
)

// Page is one page of the bundle as markdown.
type Page struct {
	Slug            string `json:"slug" yaml:"slug"`
	Title           string `json:"title" yaml:"title"`
	MetaTitle       string `json:"meta_title,omitempty" yaml:"meta_title,omitempty"`
	MetaDescription string `json:"meta_description,omitempty" yaml:"meta_description,omitempty"`
	Markdown        string `json:"markdown" yaml:"markdown"`
}

// Bundle is everything a static host needs besides rendering.
type Bundle struct {
	RunID    string            `json:"run_id" yaml:"run_id"`
	Manifest Manifest          `json:"manifest" yaml:"manifest"`
	Design   *memo.DesignFacts `json:"design,omitempty" yaml:"design,omitempty"`
	Pages    []Page            `json:"pages" yaml:"pages"`
	Score    *float64          `json:"quality_score,omitempty" yaml:"quality_score,omitempty"`
}

// BuildBundle assembles the bundle for src.
func BuildBundle(src Source) (Bundle, error) {
	m, err := BuildManifest(src)
	if err != nil {
		return Bundle{}, err
	}
	b := Bundle{RunID: src.RunID, Manifest: m, Design: src.Design, Pages: pages(src.Pages)}
	if src.Quality != nil {
		score := src.Quality.Score
		b.Score = &score
	}
	return b, nil
}

func pages(in []site.PageContent) []Page {
	out := make([]Page, 0, len(in))
	for _, p := range in {
		out = append(out, Page{
			Slug:            p.Slug,
			Title:           p.Title,
			MetaTitle:       p.MetaTitle,
			MetaDescription: p.MetaDescription,
			Markdown:        p.Markdown(),
		})
	}
	return out
}

// Summary is a one-line description used in logs and the CLI.
func (b Bundle) Summary() string {
	return fmt.Sprintf("%s (%s): %d pages, status %s", b.Manifest.Company.Name, b.Manifest.Domain.Primary, len(b.Pages), b.Manifest.Status)
}
