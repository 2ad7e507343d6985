package memo

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SchemaVersion is the memo layout this build reads and writes. Bump it
// whenever a facts struct changes shape.
const SchemaVersion = 1

// Memo is an immutable bag of confirmed facts. The zero value is empty and
// only useful as a decode target; use Create.
type Memo struct {
	schema   int
	input    *InputFacts
	research *ResearchFacts
	design   *DesignFacts
}

// Create builds a memo holding only input facts.
func Create(facts InputFacts) (Memo, error) {
	var missing []string
	if len(strings.TrimSpace(facts.CompanyName)) < 2 {
		missing = append(missing, "company_name")
	}
	if strings.TrimSpace(facts.Industry) == "" {
		missing = append(missing, "industry")
	}
	if len(facts.Pages) == 0 {
		missing = append(missing, "pages")
	}
	for i, p := range facts.Pages {
		if strings.TrimSpace(p.Slug) == "" {
			missing = append(missing, fmt.Sprintf("pages[%d].slug", i))
		}
	}
	if len(missing) > 0 {
		return Memo{}, &ValidationError{Fields: missing, Reason: "required input facts missing"}
	}
	if bad := facts.invalidText(); len(bad) > 0 {
		return Memo{}, textError(NamespaceInput, bad)
	}
	return Memo{schema: SchemaVersion, input: facts.clone()}, nil
}

// Extend returns a copy of m with facts stored under namespace. The facts
// value must be the type owned by the namespace, either by value or pointer.
func Extend(m Memo, namespace string, facts any) (Memo, error) {
	next := m
	switch namespace {
	case NamespaceInput:
		f, ok := asInput(facts)
		if !ok {
			return Memo{}, wrongType(namespace, facts)
		}
		if m.input != nil {
			return Memo{}, &Violation{Namespace: namespace}
		}
		if bad := f.invalidText(); len(bad) > 0 {
			return Memo{}, textError(namespace, bad)
		}
		next.input = f.clone()
	case NamespaceResearch:
		f, ok := asResearch(facts)
		if !ok {
			return Memo{}, wrongType(namespace, facts)
		}
		if m.research != nil {
			return Memo{}, &Violation{Namespace: namespace}
		}
		if bad := f.invalidText(); len(bad) > 0 {
			return Memo{}, textError(namespace, bad)
		}
		next.research = f.clone()
	case NamespaceDesign:
		f, ok := asDesign(facts)
		if !ok {
			return Memo{}, wrongType(namespace, facts)
		}
		if m.design != nil {
			return Memo{}, &Violation{Namespace: namespace}
		}
		if bad := f.invalidText(); len(bad) > 0 {
			return Memo{}, textError(namespace, bad)
		}
		next.design = f.clone()
	default:
		return Memo{}, &ValidationError{Fields: []string{namespace}, Reason: "unknown memo namespace"}
	}
	if next.schema == 0 {
		next.schema = SchemaVersion
	}
	return next, nil
}

// Schema returns the schema version the memo was written with.
func (m Memo) Schema() int { return m.schema }

// Input returns a copy of the input facts, or nil.
func (m Memo) Input() *InputFacts {
	if m.input == nil {
		return nil
	}
	return m.input.clone()
}

// Research returns a copy of the research facts, or nil.
func (m Memo) Research() *ResearchFacts {
	if m.research == nil {
		return nil
	}
	return m.research.clone()
}

// Design returns a copy of the design facts, or nil.
func (m Memo) Design() *DesignFacts {
	if m.design == nil {
		return nil
	}
	return m.design.clone()
}

// Has reports whether namespace is set.
func (m Memo) Has(namespace string) bool {
	switch namespace {
	case NamespaceInput:
		return m.input != nil
	case NamespaceResearch:
		return m.research != nil
	case NamespaceDesign:
		return m.design != nil
	}
	return false
}

// Namespaces lists the set namespaces in stage order.
func (m Memo) Namespaces() []string {
	var out []string
	for _, ns := range []string{NamespaceInput, NamespaceResearch, NamespaceDesign} {
		if m.Has(ns) {
			out = append(out, ns)
		}
	}
	return out
}

// Keywords returns focus keywords followed by researched keywords, deduplicated.
func (m Memo) Keywords() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(words []string) {
		for _, w := range words {
			k := strings.ToLower(strings.TrimSpace(w))
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, w)
		}
	}
	if m.input != nil {
		add(m.input.FocusKeywords)
	}
	if m.research != nil {
		add(m.research.Keywords.All())
	}
	return out
}

// snapshot is the persisted form.
type snapshot struct {
	Schema   int            `json:"schema" cbor:"schema"`
	Input    *InputFacts    `json:"input,omitempty" cbor:"input"`
	Research *ResearchFacts `json:"research,omitempty" cbor:"research"`
	Design   *DesignFacts   `json:"design,omitempty" cbor:"design"`
}

func (m Memo) snapshot() snapshot {
	return snapshot{Schema: m.schema, Input: m.input, Research: m.research, Design: m.design}
}

// MarshalJSON implements json.Marshaler.
func (m Memo) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.snapshot())
}

// UnmarshalJSON implements json.Unmarshaler. Any schema version is accepted
// here; Verify decides whether the result is usable.
func (m *Memo) UnmarshalJSON(data []byte) error {
	var s snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode memo: %w", err)
	}
	*m = Memo{schema: s.Schema, input: s.Input, research: s.Research, design: s.Design}
	return nil
}

func asInput(v any) (*InputFacts, bool) {
	switch f := v.(type) {
	case InputFacts:
		return &f, true
	case *InputFacts:
		return f, f != nil
	}
	return nil, false
}

func asResearch(v any) (*ResearchFacts, bool) {
	switch f := v.(type) {
	case ResearchFacts:
		return &f, true
	case *ResearchFacts:
		return f, f != nil
	}
	return nil, false
}

func asDesign(v any) (*DesignFacts, bool) {
	switch f := v.(type) {
	case DesignFacts:
		return &f, true
	case *DesignFacts:
		return f, f != nil
	}
	return nil, false
}

func textError(namespace string, fields []string) error {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = namespace + "." + f
	}
	return &ValidationError{Fields: out, Reason: "facts are not valid UTF-8"}
}

func wrongType(namespace string, v any) error {
	return &ValidationError{
		Fields: []string{namespace},
		Reason: fmt.Sprintf("facts of type %T do not belong to namespace", v),
	}
}
