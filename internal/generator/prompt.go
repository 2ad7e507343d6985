package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/sitegen/internal/logging"
	"github.com/fyrsmithlabs/sitegen/internal/memo"
)

const systemPrompt = `You write website copy for small and medium businesses.
Use only the facts in the BRIEF. Never invent founding years, certifications,
customer counts, phone numbers or addresses. Answer with a single JSON object
and nothing else.`

// Task names the kind of completion a prompt asks for.
type Task string

const (
	TaskResearch Task = "research"
	TaskDesign   Task = "design"
	TaskContent  Task = "content"
)

// Brief is the memo view sent to the model. Contact details are masked.
type Brief struct {
	CompanyName   string          `json:"company_name"`
	Industry      string          `json:"industry"`
	Services      []string        `json:"services,omitempty"`
	Pages         []memo.PageSpec `json:"pages"`
	Keywords      []string        `json:"keywords,omitempty"`
	Competitors   []string        `json:"competitors,omitempty"`
	Forbidden     []string        `json:"forbidden_topics,omitempty"`
	Tone          string          `json:"tone,omitempty"`
	Audience      string          `json:"target_audience,omitempty"`
	City          string          `json:"city,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	Email         string          `json:"email,omitempty"`
	Palette       *memo.Palette   `json:"palette,omitempty"`
	Page          *memo.PageSpec  `json:"page,omitempty"`
	ResearchNotes []string        `json:"research_notes,omitempty"`
}

// NewBrief builds the prompt view of m.
func NewBrief(m memo.Memo) Brief {
	in := m.Input()
	if in == nil {
		return Brief{}
	}
	b := Brief{
		CompanyName: in.CompanyName,
		Industry:    in.Industry,
		Services:    in.Services,
		Pages:       in.Pages,
		Keywords:    m.Keywords(),
		Competitors: in.Competitors,
		Forbidden:   in.ForbiddenTopics,
		Tone:        in.Tone,
		Audience:    in.TargetAudience,
		City:        in.Contact.City,
		Phone:       logging.MaskContact(in.Contact.Phone),
		Email:       logging.MaskContact(in.Contact.Email),
	}
	if r := m.Research(); r != nil {
		b.ResearchNotes = r.Insights
	}
	if d := m.Design(); d != nil {
		p := d.Palette
		b.Palette = &p
	}
	return b
}

// Prompt renders the instruction for task followed by the brief.
func Prompt(task Task, b Brief) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "TASK: %s\n", task)
	switch task {
	case TaskResearch:
		sb.WriteString(`Research search keywords for this business.
Return {"keywords":{"primary":[],"secondary":[],"long_tail":[]},"competitors":[],"insights":[]}.
Primary keywords must be short phrases a customer would search for.`)
	case TaskDesign:
		sb.WriteString(`Choose a colour palette and typography that fit the industry.
Return {"palette":{"primary":"#rrggbb","secondary":"#rrggbb","accent":"#rrggbb","background":"#rrggbb","text":"#rrggbb"},"heading_font":"","body_font":"","layout":""}.`)
	case TaskContent:
		sb.WriteString(`Write the page named in BRIEF.page. Use the keywords naturally, about two mentions per hundred words.
Every page needs a call to action section of type "cta".
Return {"title":"","meta_title":"","meta_description":"","sections":[{"id":"","type":"hero|text|features|cta|contact","title":"","body":"markdown"}]}.`)
	}
	data, _ := json.MarshalIndent(b, "", "  ")
	sb.WriteString("\n\nBRIEF:\n")
	sb.Write(data)
	sb.WriteString("\n")
	return sb.String()
}

// ParsePrompt recovers the task and brief from a prompt built by Prompt.
func ParsePrompt(prompt string) (Task, Brief, error) {
	var task Task
	first, _, _ := strings.Cut(prompt, "\n")
	if t, ok := strings.CutPrefix(first, "TASK: "); ok {
		task = Task(strings.TrimSpace(t))
	}
	_, raw, ok := strings.Cut(prompt, "\nBRIEF:\n")
	if task == "" || !ok {
		return "", Brief{}, fmt.Errorf("prompt has no task or brief")
	}
	var b Brief
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return "", Brief{}, fmt.Errorf("decode brief: %w", err)
	}
	return task, b, nil
}

// extractJSON decodes the first JSON object in text into v. Models often
// wrap the object in a fenced block.
func extractJSON(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in model output")
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}
