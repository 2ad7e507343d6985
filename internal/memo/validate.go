package memo

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Severity of a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single finding from one of the memo checks.
type Issue struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

var hexColour = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidateIntegrity checks that m holds what the target stage needs.
func ValidateIntegrity(m Memo, target string) []Issue {
	var issues []Issue
	if m.input == nil {
		return []Issue{{SeverityError, "missing_input", "input facts are not set"}}
	}
	if len(strings.TrimSpace(m.input.CompanyName)) < 2 {
		issues = append(issues, Issue{SeverityError, "invalid_company", "company name is too short"})
	}
	if m.design != nil && !hexColour.MatchString(m.design.Palette.Primary) {
		issues = append(issues, Issue{SeverityError, "invalid_palette", "primary colour must be #rrggbb"})
	}
	if target == "content" && len(m.input.Pages) == 0 {
		issues = append(issues, Issue{SeverityError, "no_pages", "no allowed pages for content generation"})
	}
	if len(m.input.FocusKeywords) == 0 {
		issues = append(issues, Issue{SeverityWarning, "no_keywords", "no focus keywords; SEO will be weak"})
	}
	return issues
}

var (
	yearPattern    = regexp.MustCompile(`\b(?:since|founded in|established in|est\.?)\s+(19|20)\d{2}\b`)
	metricPattern  = regexp.MustCompile(`\b\d+(?:[.,]\d+)?\s*(?:%|percent|\+\s*(?:customers|clients|projects|years))`)
	certPattern    = regexp.MustCompile(`(?i)\b(?:ISO\s?\d{4,5}|certified|accredited|award[- ]winning)\b`)
	phonePattern   = regexp.MustCompile(`\+?\d[\d\s().-]{8,}\d`)
	locationPrefix = regexp.MustCompile(`(?i)\b(?:located in|offices? in|based in)\s+([A-Z][\p{L}]+)`)
)

// DetectHallucinations looks for factual claims in text that are not backed
// by the memo. Findings are warnings unless they contradict a known fact.
func DetectHallucinations(m Memo, text string) []Issue {
	var issues []Issue
	lower := strings.ToLower(text)

	for _, match := range yearPattern.FindAllString(lower, -1) {
		issues = append(issues, Issue{SeverityWarning, "unverified_date", fmt.Sprintf("unverified founding date %q", match)})
	}
	for _, match := range metricPattern.FindAllString(lower, -1) {
		issues = append(issues, Issue{SeverityWarning, "unverified_metric", fmt.Sprintf("unverified metric %q", strings.TrimSpace(match))})
	}
	for _, match := range certPattern.FindAllString(text, -1) {
		issues = append(issues, Issue{SeverityWarning, "unverified_certification", fmt.Sprintf("unverified certification %q", match)})
	}

	var knownPhone string
	var knownCity string
	if m.input != nil {
		knownPhone = digits(m.input.Contact.Phone)
		knownCity = strings.ToLower(m.input.Contact.City)
	}
	for _, match := range phonePattern.FindAllString(text, -1) {
		if knownPhone != "" && digits(match) == knownPhone {
			continue
		}
		issues = append(issues, Issue{SeverityError, "invented_phone", fmt.Sprintf("phone number %q is not the company's", strings.TrimSpace(match))})
	}
	for _, sub := range locationPrefix.FindAllStringSubmatch(text, -1) {
		if knownCity != "" && strings.ToLower(sub[1]) == knownCity {
			continue
		}
		issues = append(issues, Issue{SeverityError, "invented_location", fmt.Sprintf("location %q is not the company's", sub[1])})
	}

	if m.input != nil {
		for _, topic := range m.input.ForbiddenTopics {
			if topic != "" && strings.Contains(lower, strings.ToLower(topic)) {
				issues = append(issues, Issue{SeverityError, "forbidden_topic", fmt.Sprintf("mentions forbidden topic %q", topic)})
			}
		}
	}
	return issues
}

// ValidateContentScope fails when slug is not one of the requested pages.
func ValidateContentScope(m Memo, slug string) error {
	if m.input == nil {
		return &ValidationError{Fields: []string{"input"}, Reason: "input facts are not set"}
	}
	if !slices.Contains(m.input.AllowedSlugs(), slug) {
		return &ValidationError{Fields: []string{slug}, Reason: "page is outside the requested page set"}
	}
	return nil
}

var neutralColours = map[string]bool{
	"#000000": true, "#ffffff": true, "#f5f5f5": true, "#fafafa": true,
	"#e5e5e5": true, "#d4d4d4": true, "#a3a3a3": true, "#737373": true,
	"#525252": true, "#404040": true, "#262626": true, "#171717": true,
}

// ValidateDesignTokens reports colours that are neither in the approved
// palette nor a neutral grey.
func ValidateDesignTokens(m Memo, colours []string) []Issue {
	if m.design == nil {
		return []Issue{{SeverityError, "missing_design", "design facts are not set"}}
	}
	allowed := make(map[string]bool)
	for _, c := range m.design.Palette.Colours() {
		allowed[strings.ToLower(c)] = true
	}
	var issues []Issue
	for _, c := range colours {
		lc := strings.ToLower(c)
		if allowed[lc] || neutralColours[lc] {
			continue
		}
		issues = append(issues, Issue{SeverityError, "off_palette", fmt.Sprintf("colour %s is not in the approved palette", c)})
	}
	return issues
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
