package generator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/sitegen/internal/memo"
	"github.com/fyrsmithlabs/sitegen/internal/secrets"
	"github.com/fyrsmithlabs/sitegen/internal/site"
)

// PolicyError lists why generated pages were rejected.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("content policy violated: %s", strings.Join(e.Violations, "; "))
}

var colourToken = regexp.MustCompile(`#[0-9a-fA-F]{6}\b`)

// Guard checks generated pages against the memo: every page must be in the
// requested set, error-level hallucinations and off-palette colours are
// rejected, and no page may contain a credential. Warnings pass.
func Guard(m memo.Memo, pages []site.PageContent, scanner *secrets.Scanner) error {
	var violations []string
	texts := make(map[string]string, len(pages))
	order := make([]string, 0, len(pages))

	for _, p := range pages {
		if err := memo.ValidateContentScope(m, p.Slug); err != nil {
			violations = append(violations, fmt.Sprintf("%s: %v", p.Slug, err))
			continue
		}
		text := p.MetaTitle + "\n" + p.MetaDescription + "\n" + p.Markdown()
		for _, issue := range memo.DetectHallucinations(m, text) {
			if issue.Severity == memo.SeverityError {
				violations = append(violations, fmt.Sprintf("%s: %s", p.Slug, issue.Message))
			}
		}
		if m.Has(memo.NamespaceDesign) {
			if colours := colourToken.FindAllString(text, -1); len(colours) > 0 {
				for _, issue := range memo.ValidateDesignTokens(m, colours) {
					violations = append(violations, fmt.Sprintf("%s: %s", p.Slug, issue.Message))
				}
			}
		}
		texts[p.Slug] = text
		order = append(order, p.Slug)
	}

	if scanner != nil {
		found, err := scanner.ScanAll(texts, order)
		if err != nil {
			return err
		}
		for _, f := range found {
			violations = append(violations, "credential detected: "+f.String())
		}
	}

	if len(violations) > 0 {
		return &PolicyError{Violations: violations}
	}
	return nil
}
