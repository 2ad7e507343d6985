package quality

import (
	"errors"
	"fmt"
	"regexp"
)

// Config holds every tunable constant of the scorer. The defaults are a
// starting point; deployments override them through the quality config
// section.
type Config struct {
	// PassThreshold is the minimum composite score for a report to pass.
	PassThreshold float64 `koanf:"pass_threshold"`

	// CTACeiling caps the composite when any page lacks a call to action.
	CTACeiling float64 `koanf:"cta_ceiling"`

	Weights     Weights           `koanf:"weights"`
	Readability ReadabilityConfig `koanf:"readability"`
	Density     DensityConfig     `koanf:"density"`
	Repetition  RepetitionConfig  `koanf:"repetition"`

	// CTAPatterns are case-insensitive regular expressions.
	CTAPatterns []string `koanf:"cta_patterns"`

	// Cliches are overused phrases reported when they appear more than
	// Repetition.MaxPhraseFrequency times across the page set.
	Cliches []string `koanf:"cliches"`

	// Pages maps a page type to its length requirements.
	Pages map[string]PageRequirement `koanf:"pages"`
}

// Weights of the composite. Readability, KeywordDensity and CTA are added;
// Repetition multiplies the penalty that is subtracted.
type Weights struct {
	Readability    float64 `koanf:"readability"`
	KeywordDensity float64 `koanf:"keyword_density"`
	CTA            float64 `koanf:"cta"`
	Repetition     float64 `koanf:"repetition"`
}

// ReadabilityConfig parameterises the Flesch-style formula
// Base - SentenceWeight*(words/sentences) - SyllableWeight*(syllables/words).
type ReadabilityConfig struct {
	Base              float64 `koanf:"base"`
	SentenceWeight    float64 `koanf:"sentence_weight"`
	SyllableWeight    float64 `koanf:"syllable_weight"`
	LongSentenceWords int     `koanf:"long_sentence_words"`
}

// DensityConfig shapes the keyword density curve, in occurrences per 100
// words. Below Min scores 0, Min..IdealLow ramps from RampFloor to 100,
// IdealLow..IdealHigh scores 100, and IdealHigh..Max decays to 0.
type DensityConfig struct {
	Min       float64 `koanf:"min"`
	IdealLow  float64 `koanf:"ideal_low"`
	IdealHigh float64 `koanf:"ideal_high"`
	Max       float64 `koanf:"max"`
	RampFloor float64 `koanf:"ramp_floor"`
}

// RepetitionConfig controls shingle based overlap detection.
type RepetitionConfig struct {
	ShingleSize        int     `koanf:"shingle_size"`
	Threshold          float64 `koanf:"threshold"`
	MaxPhraseFrequency int     `koanf:"max_phrase_frequency"`
	MinSentenceWords   int     `koanf:"min_sentence_words"`
}

// PageRequirement bounds a page type.
type PageRequirement struct {
	MinWords    int  `koanf:"min_words"`
	MaxWords    int  `koanf:"max_words"`
	RequiresCTA bool `koanf:"requires_cta"`
}

// DefaultConfig returns the scorer defaults.
func DefaultConfig() Config {
	return Config{
		PassThreshold: 75,
		CTACeiling:    70,
		Weights: Weights{
			Readability:    0.40,
			KeywordDensity: 0.35,
			CTA:            0.25,
			Repetition:     0.50,
		},
		Readability: ReadabilityConfig{
			Base:              206.835,
			SentenceWeight:    1.015,
			SyllableWeight:    84.6,
			LongSentenceWords: 25,
		},
		Density: DensityConfig{
			Min:       0.5,
			IdealLow:  1.0,
			IdealHigh: 3.0,
			Max:       6.0,
			RampFloor: 40,
		},
		Repetition: RepetitionConfig{
			ShingleSize:        5,
			Threshold:          0.10,
			MaxPhraseFrequency: 2,
			MinSentenceWords:   6,
		},
		CTAPatterns: []string{
			`\b(?:contact|call|email|message)\s+us\b`,
			`\b(?:book|schedule|request)\s+(?:an?\s+)?(?:appointment|consultation|call|demo|quote)\b`,
			`\bget\s+(?:a\s+)?(?:free\s+)?(?:quote|started|in touch)\b`,
			`\b(?:start|try)\s+(?:now|today|for free)\b`,
			`hemen (?:başla|ara|iletişim|teklif)`,
			`şimdi (?:ara|başla|dene)`,
			`ücretsiz (?:teklif|danışma|deneme)`,
			`iletişime geç`,
			`teklif (?:al|iste)`,
			`bize (?:ulaş|yaz)`,
			`randevu (?:al|oluştur)`,
		},
		Cliches: []string{
			"world-class",
			"cutting-edge",
			"best in class",
			"one-stop shop",
			"customer satisfaction",
			"years of experience",
			"industry leader",
			"müşteri memnuniyeti",
			"yılların tecrübesi",
			"sektörün lideri",
		},
		Pages: map[string]PageRequirement{
			"home":     {MinWords: 300, MaxWords: 1500, RequiresCTA: true},
			"about":    {MinWords: 200, MaxWords: 1000, RequiresCTA: true},
			"services": {MinWords: 200, MaxWords: 1000, RequiresCTA: true},
			"contact":  {MinWords: 50, MaxWords: 400, RequiresCTA: true},
			"blog":     {MinWords: 400, MaxWords: 2500, RequiresCTA: false},
		},
	}
}

// Validate checks ranges and compiles patterns.
func (c Config) Validate() error {
	var errs []error
	if c.PassThreshold < 0 || c.PassThreshold > 100 {
		errs = append(errs, fmt.Errorf("pass_threshold must be within 0-100, got %v", c.PassThreshold))
	}
	if c.CTACeiling < 0 || c.CTACeiling > 100 {
		errs = append(errs, fmt.Errorf("cta_ceiling must be within 0-100, got %v", c.CTACeiling))
	}
	w := c.Weights
	if w.Readability < 0 || w.KeywordDensity < 0 || w.CTA < 0 || w.Repetition < 0 {
		errs = append(errs, errors.New("weights must not be negative"))
	}
	if w.Readability+w.KeywordDensity+w.CTA == 0 {
		errs = append(errs, errors.New("at least one additive weight must be positive"))
	}
	d := c.Density
	if !(d.Min <= d.IdealLow && d.IdealLow <= d.IdealHigh && d.IdealHigh < d.Max) {
		errs = append(errs, fmt.Errorf("density bounds must satisfy min <= ideal_low <= ideal_high < max, got %v/%v/%v/%v", d.Min, d.IdealLow, d.IdealHigh, d.Max))
	}
	if c.Repetition.ShingleSize < 2 {
		errs = append(errs, fmt.Errorf("repetition.shingle_size must be at least 2, got %d", c.Repetition.ShingleSize))
	}
	for _, p := range c.CTAPatterns {
		if _, err := regexp.Compile("(?i)" + p); err != nil {
			errs = append(errs, fmt.Errorf("invalid cta pattern %q: %w", p, err))
		}
	}
	return errors.Join(errs...)
}
