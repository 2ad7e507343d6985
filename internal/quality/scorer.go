package quality

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/sitegen/internal/site"
)

// Subscores are the components of the composite score, each 0-100.
// RepetitionPenalty is subtracted; the others are added.
type Subscores struct {
	Readability       float64 `json:"readability"`
	KeywordDensity    float64 `json:"keyword_density"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	CTAPresence       float64 `json:"cta_presence"`
}

// PageReport holds per-page measurements.
type PageReport struct {
	Slug         string   `json:"slug"`
	WordCount    int      `json:"word_count"`
	Readability  float64  `json:"readability"`
	Density      float64  `json:"density"`
	DensityScore float64  `json:"density_score"`
	HasCTA       bool     `json:"has_cta"`
	RequiresCTA  bool     `json:"requires_cta"`
	Issues       []string `json:"issues,omitempty"`
}

// Report is the immutable outcome of scoring one content stage execution.
type Report struct {
	Score     float64      `json:"score"`
	Subscores Subscores    `json:"subscores"`
	Passed    bool         `json:"passed"`
	Issues    []string     `json:"issues"`
	Pages     []PageReport `json:"pages,omitempty"`
	Threshold float64      `json:"threshold"`
	Capped    bool         `json:"capped,omitempty"`
}

// Scorer computes quality reports. It is safe for concurrent use and has no
// side effects.
type Scorer struct {
	cfg     Config
	ctas    []*regexp.Regexp
	cliches [][]string
}

// NewScorer validates cfg and returns a scorer.
func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid quality config: %w", err)
	}
	s := &Scorer{cfg: cfg}
	for _, p := range cfg.CTAPatterns {
		s.ctas = append(s.ctas, regexp.MustCompile("(?i)"+p))
	}
	for _, c := range cfg.Cliches {
		if w := words(c); len(w) > 0 {
			s.cliches = append(s.cliches, w)
		}
	}
	return s, nil
}

// Config returns the scorer configuration.
func (s *Scorer) Config() Config { return s.cfg }

// Score scores a page set.
func (s *Scorer) Score(pages []site.PageContent) Report {
	report := Report{Threshold: s.cfg.PassThreshold, Issues: []string{}}
	if len(pages) == 0 {
		report.Issues = append(report.Issues, "no pages to score")
		return report
	}

	var (
		readSum, densSum float64
		densPages        int
		ctaPages         int
		needCTA, gotCTA  int
		allTokens        [][]string
		allSentences     []string
	)
	for _, page := range pages {
		pr, tokens, sents := s.scorePage(page)
		report.Pages = append(report.Pages, pr)
		for _, issue := range pr.Issues {
			report.Issues = append(report.Issues, page.Slug+": "+issue)
		}
		readSum += pr.Readability
		if len(page.Keywords) > 0 {
			densSum += pr.DensityScore
			densPages++
		}
		if pr.HasCTA {
			ctaPages++
		}
		if pr.RequiresCTA {
			needCTA++
			if pr.HasCTA {
				gotCTA++
			}
		}
		allTokens = append(allTokens, tokens)
		allSentences = append(allSentences, sents...)
	}

	sub := Subscores{Readability: round(readSum / float64(len(pages)))}
	if needCTA > 0 {
		sub.CTAPresence = round(100 * float64(gotCTA) / float64(needCTA))
	} else {
		sub.CTAPresence = round(100 * float64(ctaPages) / float64(len(pages)))
	}
	if densPages > 0 {
		sub.KeywordDensity = round(densSum / float64(densPages))
	} else {
		report.Issues = append(report.Issues, "no target keywords on any page")
	}

	overlap, repeated := s.overlap(allTokens)
	if overlap > s.cfg.Repetition.Threshold {
		sub.RepetitionPenalty = round(overlap * 100)
		report.Issues = append(report.Issues, fmt.Sprintf("repeated phrasing across pages (%.0f%% shingle overlap)", overlap*100))
	}
	for _, phrase := range repeated {
		report.Issues = append(report.Issues, fmt.Sprintf("phrase repeated more than %d times: %q", s.cfg.Repetition.MaxPhraseFrequency, phrase))
	}
	report.Issues = append(report.Issues, s.duplicateSentences(allSentences)...)
	report.Issues = append(report.Issues, s.clicheIssues(allTokens)...)

	// The ceiling applies when a page that needs a CTA lacks one, and
	// always when no page has any.
	allCTA := gotCTA == needCTA && ctaPages > 0
	switch {
	case ctaPages == 0:
		report.Issues = append(report.Issues, fmt.Sprintf("no page has a call to action; score capped at %.0f", s.cfg.CTACeiling))
	case !allCTA:
		report.Issues = append(report.Issues, fmt.Sprintf("%d of %d pages have no call to action; score capped at %.0f", needCTA-gotCTA, needCTA, s.cfg.CTACeiling))
	}

	report.Subscores = sub
	report.Score, report.Capped = s.composite(sub, allCTA)
	report.Passed = report.Score >= s.cfg.PassThreshold
	return report
}

// QuickCheck reports whether pages reach minScore.
func (s *Scorer) QuickCheck(pages []site.PageContent, minScore float64) (bool, Report) {
	r := s.Score(pages)
	return r.Score >= minScore, r
}

func (s *Scorer) composite(sub Subscores, allCTA bool) (float64, bool) {
	w := s.cfg.Weights
	total := w.Readability + w.KeywordDensity + w.CTA
	score := (w.Readability*sub.Readability + w.KeywordDensity*sub.KeywordDensity + w.CTA*sub.CTAPresence) / total
	score -= w.Repetition * sub.RepetitionPenalty
	score = clamp(score)
	capped := false
	if !allCTA && score > s.cfg.CTACeiling {
		score = s.cfg.CTACeiling
		capped = true
	}
	return round(score), capped
}

func (s *Scorer) scorePage(page site.PageContent) (PageReport, []string, []string) {
	pr := PageReport{Slug: page.Slug}

	var sents []string
	var tokens []string
	for _, sec := range page.Sections {
		plain := plainText(sec.Body)
		sents = append(sents, sentences(plain)...)
		tokens = append(tokens, words(plain)...)
	}
	pr.WordCount = len(tokens)
	pr.Readability = round(s.readability(sents, tokens))
	ctas := s.ctaCount(page)
	pr.HasCTA = ctas > 0
	pr.RequiresCTA = true

	if len(page.Keywords) > 0 && len(tokens) > 0 {
		occurrences := 0
		for _, kw := range page.Keywords {
			occurrences += countPhrase(tokens, words(kw))
		}
		pr.Density = round(100 * float64(occurrences) / float64(len(tokens)))
		pr.DensityScore = round(s.densityScore(pr.Density))
		switch {
		case pr.Density < s.cfg.Density.Min:
			pr.Issues = append(pr.Issues, fmt.Sprintf("keyword density %.2f%% below %.2f%%", pr.Density, s.cfg.Density.Min))
		case pr.Density > s.cfg.Density.IdealHigh:
			pr.Issues = append(pr.Issues, fmt.Sprintf("keyword density %.2f%% above %.2f%% (stuffing)", pr.Density, s.cfg.Density.IdealHigh))
		}
	}

	long := 0
	for _, sent := range sents {
		if len(words(sent)) > s.cfg.Readability.LongSentenceWords {
			long++
		}
	}
	if long > 0 {
		pr.Issues = append(pr.Issues, fmt.Sprintf("%d sentences longer than %d words", long, s.cfg.Readability.LongSentenceWords))
	}
	if strings.TrimSpace(page.Title) == "" {
		pr.Issues = append(pr.Issues, "missing page title (H1)")
	}
	if len(page.Sections) < 2 {
		pr.Issues = append(pr.Issues, "fewer than 2 sections")
	}
	if req, ok := s.cfg.Pages[page.Type]; ok {
		pr.RequiresCTA = req.RequiresCTA
		if req.MinWords > 0 && pr.WordCount < req.MinWords {
			pr.Issues = append(pr.Issues, fmt.Sprintf("thin content: %d words, minimum %d", pr.WordCount, req.MinWords))
		}
		if req.MaxWords > 0 && pr.WordCount > req.MaxWords {
			pr.Issues = append(pr.Issues, fmt.Sprintf("too long: %d words, maximum %d", pr.WordCount, req.MaxWords))
		}
	}
	if pr.RequiresCTA {
		switch ctas {
		case 0:
			pr.Issues = append(pr.Issues, "no call to action")
		case 1:
			pr.Issues = append(pr.Issues, "only one call to action; add a second")
		}
	}
	return pr, tokens, sents
}

func (s *Scorer) readability(sents, tokens []string) float64 {
	if len(sents) == 0 || len(tokens) == 0 {
		return 0
	}
	syl := 0
	for _, w := range tokens {
		syl += syllables(w)
	}
	r := s.cfg.Readability
	wordsPerSentence := float64(len(tokens)) / float64(len(sents))
	syllablesPerWord := float64(syl) / float64(len(tokens))
	return clamp(r.Base - r.SentenceWeight*wordsPerSentence - r.SyllableWeight*syllablesPerWord)
}

// densityScore maps keyword density to 0-100. The curve rises, plateaus,
// then falls, so both absence and stuffing are penalised.
func (s *Scorer) densityScore(d float64) float64 {
	c := s.cfg.Density
	switch {
	case d < c.Min:
		return 0
	case d < c.IdealLow:
		return c.RampFloor + (100-c.RampFloor)*(d-c.Min)/(c.IdealLow-c.Min)
	case d <= c.IdealHigh:
		return 100
	case d < c.Max:
		return 100 * (c.Max - d) / (c.Max - c.IdealHigh)
	default:
		return 0
	}
}

// ctaCount counts the sections that carry a call to action, either by
// section type or by matching a CTA pattern.
func (s *Scorer) ctaCount(page site.PageContent) int {
	n := 0
	for _, sec := range page.Sections {
		if sec.Type == site.SectionCTA || sec.Type == site.SectionContact {
			n++
			continue
		}
		for _, re := range s.ctas {
			if re.MatchString(sec.Body) || re.MatchString(sec.Title) {
				n++
				break
			}
		}
	}
	return n
}

// overlap returns the share of shingle occurrences that repeat an earlier
// shingle, and the phrases seen more often than MaxPhraseFrequency.
func (s *Scorer) overlap(pages [][]string) (float64, []string) {
	n := s.cfg.Repetition.ShingleSize
	counts := make(map[string]int)
	total := 0
	for _, tokens := range pages {
		for i := 0; i+n <= len(tokens); i++ {
			counts[strings.Join(tokens[i:i+n], " ")]++
			total++
		}
	}
	if total == 0 {
		return 0, nil
	}
	repeated := 0
	var frequent []string
	for shingle, c := range counts {
		if c > 1 {
			repeated += c - 1
		}
		if c > s.cfg.Repetition.MaxPhraseFrequency {
			frequent = append(frequent, shingle)
		}
	}
	sort.Strings(frequent)
	if len(frequent) > 5 {
		frequent = frequent[:5]
	}
	return float64(repeated) / float64(total), frequent
}

func (s *Scorer) duplicateSentences(sents []string) []string {
	seen := make(map[string]int)
	var order []string
	for _, sent := range sents {
		w := words(sent)
		if len(w) < s.cfg.Repetition.MinSentenceWords {
			continue
		}
		key := strings.Join(w, " ")
		if seen[key] == 0 {
			order = append(order, key)
		}
		seen[key]++
	}
	var issues []string
	for _, key := range order {
		if seen[key] > 1 {
			issues = append(issues, fmt.Sprintf("duplicate sentence (%dx): %q", seen[key], key))
		}
	}
	return issues
}

func (s *Scorer) clicheIssues(pages [][]string) []string {
	var issues []string
	for _, phrase := range s.cliches {
		n := 0
		for _, tokens := range pages {
			n += countPhrase(tokens, phrase)
		}
		if n > s.cfg.Repetition.MaxPhraseFrequency {
			issues = append(issues, fmt.Sprintf("cliche %q used %d times", strings.Join(phrase, " "), n))
		}
	}
	return issues
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
