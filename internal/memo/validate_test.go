package memo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIntegrity(t *testing.T) {
	m, err := Create(testFacts())
	require.NoError(t, err)
	assert.Empty(t, ValidateIntegrity(m, "content"))

	m, err = Extend(m, NamespaceDesign, DesignFacts{Palette: Palette{Primary: "blue"}})
	require.NoError(t, err)
	issues := ValidateIntegrity(m, "content")
	require.Len(t, issues, 1)
	assert.Equal(t, "invalid_palette", issues[0].Code)
	assert.True(t, HasErrors(issues))
}

func TestDetectHallucinations(t *testing.T) {
	m, err := Create(func() InputFacts {
		f := testFacts()
		f.ForbiddenTopics = []string{"cosmetic surgery"}
		return f
	}())
	require.NoError(t, err)

	tests := []struct {
		name  string
		text  string
		codes []string
	}{
		{"clean text", "We welcome new patients every weekday.", nil},
		{"known phone allowed", "Call us on +90 212 555 0101 today.", nil},
		{"invented phone", "Call us on +90 216 444 9999 today.", []string{"invented_phone"}},
		{"metric", "Over 98% of patients recommend us.", []string{"unverified_metric"}},
		{"founding date", "Trusted since 1998.", []string{"unverified_date"}},
		{"certification", "An ISO 9001 certified clinic.", []string{"unverified_certification", "unverified_certification"}},
		{"known city", "We are located in Istanbul.", nil},
		{"invented city", "We are located in Ankara.", []string{"invented_location"}},
		{"forbidden topic", "We also offer cosmetic surgery.", []string{"forbidden_topic"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var codes []string
			for _, i := range DetectHallucinations(m, tt.text) {
				codes = append(codes, i.Code)
			}
			assert.Equal(t, tt.codes, codes)
		})
	}
}

func TestValidateContentScope(t *testing.T) {
	m, err := Create(testFacts())
	require.NoError(t, err)

	assert.NoError(t, ValidateContentScope(m, "home"))
	err = ValidateContentScope(m, "pricing")
	assert.True(t, IsValidation(err))
}

func TestValidateDesignTokens(t *testing.T) {
	m, err := Create(testFacts())
	require.NoError(t, err)
	m, err = Extend(m, NamespaceDesign, DesignFacts{Palette: Palette{Primary: "#0055AA", Accent: "#ffcc00"}})
	require.NoError(t, err)

	issues := ValidateDesignTokens(m, []string{"#0055aa", "#FFFFFF", "#ff0000"})
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "#ff0000")
}
