package prompts

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Template represents a prompt template
type Template struct {
	ID          string
	Name        string
	Description string
	Content     string
	Tags        []string
	Metadata    map[string]string

	// Parsed template (cached)
	parsed *template.Template
}

// TemplateOption is a function that configures a template
type TemplateOption func(*Template)

// WithDescription sets the template description
func WithDescription(description string) TemplateOption {
	return func(t *Template) {
		t.Description = description
	}
}

// WithTags sets the template tags
func WithTags(tags ...string) TemplateOption {
	return func(t *Template) {
		t.Tags = tags
	}
}

// New creates a new template
func New(id string, name string, content string, options ...TemplateOption) *Template {
	tmpl := &Template{
		ID:       id,
		Name:     name,
		Content:  content,
		Tags:     []string{},
		Metadata: map[string]string{},
	}

	for _, option := range options {
		option(tmpl)
	}

	return tmpl
}

var funcs = template.FuncMap{
	"join": strings.Join,
}

// Render renders the template with the given data. Missing keys are an error.
func (t *Template) Render(data interface{}) (string, error) {
	if t.parsed == nil {
		parsed, err := template.New(t.ID).Funcs(funcs).Option("missingkey=error").Parse(t.Content)
		if err != nil {
			return "", fmt.Errorf("failed to parse template %s: %w", t.ID, err)
		}
		t.parsed = parsed
	}

	var buf bytes.Buffer
	if err := t.parsed.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", t.ID, err)
	}

	return buf.String(), nil
}

// HasTag reports whether the template carries tag
func (t *Template) HasTag(tag string) bool {
	for _, candidate := range t.Tags {
		if candidate == tag {
			return true
		}
	}
	return false
}

// parseTemplateFile parses a template file: a "key: value" header, a "---" line, then the body
func parseTemplateFile(data string, id string) (*Template, error) {
	header, content, found := strings.Cut(data, "---\n")
	if !found {
		return nil, fmt.Errorf("invalid template file format")
	}

	tmpl := New(id, id, strings.TrimRight(content, "\n"))

	for _, line := range strings.Split(header, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "name":
			tmpl.Name = value
		case "description":
			tmpl.Description = value
		case "tags":
			tmpl.Tags = strings.Split(value, ",")
			for i, tag := range tmpl.Tags {
				tmpl.Tags[i] = strings.TrimSpace(tag)
			}
		default:
			tmpl.Metadata[key] = value
		}
	}

	return tmpl, nil
}
