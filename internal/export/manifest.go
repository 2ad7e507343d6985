// Package export builds the deployment manifest for a generated site.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/sitegen/internal/memo"
	"github.com/fyrsmithlabs/sitegen/internal/quality"
	"github.com/fyrsmithlabs/sitegen/internal/site"
)

// ManifestVersion is written into every manifest.
const ManifestVersion = "1.0"

// Status of an exported site.
const (
	StatusReady = "ready"
	StatusDraft = "draft"
)

// Company identifies the site owner.
type Company struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Domain holds the hostnames the site is served on.
type Domain struct {
	Primary string `json:"primary" yaml:"primary"`
}

// Manifest is consumed by the hosting collaborator.
type Manifest struct {
	Version string  `json:"version" yaml:"version"`
	Company Company `json:"company" yaml:"company"`
	Domain  Domain  `json:"domain" yaml:"domain"`
	Status  string  `json:"status" yaml:"status"`
}

// Source is the slice of run state an export needs.
type Source struct {
	RunID     string
	Completed bool
	Input     *memo.InputFacts
	Design    *memo.DesignFacts
	Pages     []site.PageContent
	Quality   *quality.Report
}

// ErrNoInput is returned when the run has no input facts to export.
var ErrNoInput = errors.New("export: run has no input facts")

// BuildManifest derives the manifest for src. Only completed runs are ready.
func BuildManifest(src Source) (Manifest, error) {
	if src.Input == nil {
		return Manifest{}, ErrNoInput
	}
	m := Manifest{
		Version: ManifestVersion,
		Company: Company{ID: src.Input.CompanyID, Name: src.Input.CompanyName},
		Domain:  Domain{Primary: strings.ToLower(strings.TrimSpace(src.Input.Domain))},
		Status:  StatusDraft,
	}
	if m.Company.ID == "" {
		m.Company.ID = src.RunID
	}
	if src.Completed {
		m.Status = StatusReady
	}
	return m, nil
}

// JSON renders m the way the hosting collaborator reads it.
func (m Manifest) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// YAML renders m for operators.
func (m Manifest) YAML() ([]byte, error) {
	out, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest yaml: %w", err)
	}
	return out, nil
}

// ParseManifest reads either JSON or YAML.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Version == "" {
		return Manifest{}, errors.New("parse manifest: version is missing")
	}
	return m, nil
}
