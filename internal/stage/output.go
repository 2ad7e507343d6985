package stage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/sitegen/internal/memo"
	"github.com/fyrsmithlabs/sitegen/internal/quality"
	"github.com/fyrsmithlabs/sitegen/internal/site"
)

// Output is the result of one stage. The set of variants is closed: only
// the types in this package implement it.
type Output interface {
	Stage() Name
	Validate() error
	isOutput()
}

// InputOutput normalises the company brief.
type InputOutput struct {
	CompanyName string          `json:"company_name"`
	Industry    string          `json:"industry"`
	Pages       []memo.PageSpec `json:"pages"`
	Keywords    []string        `json:"keywords,omitempty"`
}

// ResearchOutput carries keyword and competitor findings.
type ResearchOutput struct {
	Facts memo.ResearchFacts `json:"facts"`
}

// DesignOutput carries the approved palette and typography.
type DesignOutput struct {
	Facts memo.DesignFacts `json:"facts"`
}

// ContentOutput carries generated pages and the report they were scored with.
type ContentOutput struct {
	Pages  []site.PageContent `json:"pages"`
	Tier   ModelTier          `json:"tier"`
	Report *quality.Report    `json:"report,omitempty"`
}

func (*InputOutput) Stage() Name    { return Input }
func (*ResearchOutput) Stage() Name { return Research }
func (*DesignOutput) Stage() Name   { return Design }
func (*ContentOutput) Stage() Name  { return Content }

func (*InputOutput) isOutput()    {}
func (*ResearchOutput) isOutput() {}
func (*DesignOutput) isOutput()   {}
func (*ContentOutput) isOutput()  {}

func (o *InputOutput) Validate() error {
	if o == nil {
		return errors.New("input output: nil")
	}
	if strings.TrimSpace(o.CompanyName) == "" {
		return errors.New("input output: company name is empty")
	}
	if len(o.Pages) == 0 {
		return errors.New("input output: no pages")
	}
	return nil
}

func (o *ResearchOutput) Validate() error {
	if o == nil {
		return errors.New("research output: nil")
	}
	if len(o.Facts.Keywords.All()) == 0 {
		return errors.New("research output: no keywords")
	}
	return nil
}

func (o *DesignOutput) Validate() error {
	if o == nil {
		return errors.New("design output: nil")
	}
	if o.Facts.Palette.Primary == "" {
		return errors.New("design output: primary colour is empty")
	}
	return nil
}

func (o *ContentOutput) Validate() error {
	if o == nil {
		return errors.New("content output: nil")
	}
	if len(o.Pages) == 0 {
		return errors.New("content output: no pages")
	}
	seen := make(map[string]bool, len(o.Pages))
	for _, p := range o.Pages {
		if p.Slug == "" {
			return errors.New("content output: page without slug")
		}
		if seen[p.Slug] {
			return fmt.Errorf("content output: duplicate page %q", p.Slug)
		}
		seen[p.Slug] = true
	}
	return nil
}

// Match dispatches o to the handler for its variant. Every handler is a
// required parameter, so adding a variant breaks every call site until it
// is handled.
func Match[T any](o Output,
	onInput func(*InputOutput) T,
	onResearch func(*ResearchOutput) T,
	onDesign func(*DesignOutput) T,
	onContent func(*ContentOutput) T,
) T {
	switch v := o.(type) {
	case *InputOutput:
		return onInput(v)
	case *ResearchOutput:
		return onResearch(v)
	case *DesignOutput:
		return onDesign(v)
	case *ContentOutput:
		return onContent(v)
	}
	panic(fmt.Sprintf("stage: unknown output type %T", o))
}

type envelope struct {
	Stage Name            `json:"stage"`
	Data  json.RawMessage `json:"data"`
}

// Encode writes o as {"stage": name, "data": {...}}.
func Encode(o Output) ([]byte, error) {
	if o == nil {
		return nil, errors.New("stage: cannot encode nil output")
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode %s output: %w", o.Stage(), err)
	}
	return json.Marshal(envelope{Stage: o.Stage(), Data: data})
}

// Decode reads an envelope written by Encode.
func Decode(b []byte) (Output, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode output envelope: %w", err)
	}
	var o Output
	switch env.Stage {
	case Input:
		o = &InputOutput{}
	case Research:
		o = &ResearchOutput{}
	case Design:
		o = &DesignOutput{}
	case Content:
		o = &ContentOutput{}
	default:
		return nil, fmt.Errorf("decode output envelope: unknown stage %q", env.Stage)
	}
	if err := json.Unmarshal(env.Data, o); err != nil {
		return nil, fmt.Errorf("decode %s output: %w", env.Stage, err)
	}
	return o, nil
}

// Outputs maps completed stages to their outputs.
type Outputs map[Name]Output

// Clone returns a shallow copy. Outputs are never mutated after a stage
// completes, so sharing the values is safe.
func (o Outputs) Clone() Outputs {
	out := make(Outputs, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Content returns the content output, if any.
func (o Outputs) Content() *ContentOutput {
	c, _ := o[Content].(*ContentOutput)
	return c
}

func (o Outputs) MarshalJSON() ([]byte, error) {
	raw := make(map[Name]json.RawMessage, len(o))
	for k, v := range o {
		if v.Stage() != k {
			return nil, fmt.Errorf("stage: output for %s is keyed under %s", v.Stage(), k)
		}
		b, err := Encode(v)
		if err != nil {
			return nil, err
		}
		raw[k] = b
	}
	return json.Marshal(raw)
}

func (o *Outputs) UnmarshalJSON(b []byte) error {
	var raw map[Name]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make(Outputs, len(raw))
	for k, v := range raw {
		dec, err := Decode(v)
		if err != nil {
			return err
		}
		if dec.Stage() != k {
			return fmt.Errorf("stage: output for %s is keyed under %s", dec.Stage(), k)
		}
		out[k] = dec
	}
	*o = out
	return nil
}
