package notify

import (
	"bytes"
	"errors"
	"strings"
	"text/template"

	monitor "strongbot/internal/monitor/domain"
)

// DefaultTemplate renders the report description.
const DefaultTemplate = `Epoch {{.EpochLabel}} snapshot at {{.CapturedAt}}.
{{- if .Unavailable }}
Unavailable: {{ join .Unavailable ", " }}
{{- end }}`

// TemplateData provides fields for rendering the report description.
type TemplateData struct {
	Epoch       int64
	EpochLabel  string
	CapturedAt  string
	Broadcast   bool
	Unavailable []string
	Lines       []ReportLine
}

// Template renders report descriptions.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a report template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("epoch-report").Funcs(template.FuncMap{
		"join": strings.Join,
	}).Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("report template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func templateData(r Report) TemplateData {
	label := NotAvailable
	for _, line := range r.Lines {
		if line.Metric == monitor.MetricEpoch && line.Value != NotAvailable {
			label = line.Value
			break
		}
	}
	captured := ""
	if !r.CapturedAt.IsZero() {
		captured = r.CapturedAt.UTC().Format("2006-01-02 15:04 MST")
	}
	return TemplateData{
		Epoch:       r.Epoch,
		EpochLabel:  label,
		CapturedAt:  captured,
		Broadcast:   r.Broadcast,
		Unavailable: r.Unavailable(),
		Lines:       r.Lines,
	}
}
