package export

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sitegen/internal/memo"
	"github.com/fyrsmithlabs/sitegen/internal/quality"
	"github.com/fyrsmithlabs/sitegen/internal/site"
)

func source(completed bool) Source {
	return Source{
		RunID:     "run-1",
		Completed: completed,
		Input:     &memo.InputFacts{CompanyID: "c-42", CompanyName: "Atlas Dental", Domain: " AtlasDental.example "},
		Pages: []site.PageContent{{
			Slug:     "home",
			Title:    "Welcome",
			Sections: []site.Section{{ID: "hero", Type: site.SectionHero, Title: "Smiles", Body: "We care."}},
		}},
		Quality: &quality.Report{Score: 82},
	}
}

func TestBuildManifest(t *testing.T) {
	m, err := BuildManifest(source(true))
	require.NoError(t, err)
	assert.Equal(t, Manifest{
		Version: "1.0",
		Company: Company{ID: "c-42", Name: "Atlas Dental"},
		Domain:  Domain{Primary: "atlasdental.example"},
		Status:  StatusReady,
	}, m)

	draft, err := BuildManifest(source(false))
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, draft.Status)

	_, err = BuildManifest(Source{})
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestManifestShape(t *testing.T) {
	m, err := BuildManifest(source(true))
	require.NoError(t, err)

	data, err := m.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"1.0","company":{"id":"c-42","name":"Atlas Dental"},"domain":{"primary":"atlasdental.example"},"status":"ready"}`, string(data))

	y, err := m.YAML()
	require.NoError(t, err)
	assert.Contains(t, string(y), "primary: atlasdental.example")

	fromJSON, err := ParseManifest(data)
	require.NoError(t, err)
	fromYAML, err := ParseManifest(y)
	require.NoError(t, err)
	assert.Equal(t, m, fromJSON)
	assert.Equal(t, m, fromYAML)

	_, err = ParseManifest([]byte("status: ready"))
	assert.Error(t, err)
}

func TestBuildBundle(t *testing.T) {
	b, err := BuildBundle(source(true))
	require.NoError(t, err)
	require.Len(t, b.Pages, 1)
	assert.Contains(t, b.Pages[0].Markdown, "We care.")
	require.NotNil(t, b.Score)
	assert.Equal(t, 82.0, *b.Score)
	assert.Equal(t, "Atlas Dental (atlasdental.example): 1 pages, status ready", b.Summary())

	_, err = json.Marshal(b)
	require.NoError(t, err)
}
