package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/run-bigpig/llmatscale/pkg/interfaces"
)

var (
	markdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		// raw HTML passes through here and is sanitized by policy below
		goldmark.WithRendererOptions(html.WithUnsafe(), html.WithHardWraps()),
	)

	policy = newPolicy()
)

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("details", "summary")
	p.AllowAttrs("open").OnElements("details")
	p.AllowAttrs("style").OnElements("table", "tr", "td", "th", "div", "span", "h3", "p")
	p.AllowStyles(
		"color", "background", "background-color", "padding", "margin", "margin-top",
		"border", "border-left", "border-bottom", "border-radius", "border-collapse",
		"text-align", "vertical-align", "width", "font-size", "font-weight",
		"line-height", "display", "word-wrap",
	).OnElements("table", "tr", "td", "th", "div", "span", "h3", "p")
	return p
}

// Markdown converts model output to sanitized HTML
func Markdown(md string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	// #nosec G203 - output is sanitized by the bluemonday policy
	return template.HTML(policy.SanitizeBytes(buf.Bytes())), nil
}

// Sanitize cleans an HTML fragment produced elsewhere
func Sanitize(fragment string) template.HTML {
	// #nosec G203 - output is sanitized by the bluemonday policy
	return template.HTML(policy.Sanitize(fragment))
}

const transcriptTemplate = `<div class="transcript">
{{- range .}}
{{- if eq .Role "user"}}
<div class="bubble bubble-user"><div class="bubble-author">You</div><div class="bubble-body">{{.Text}}</div></div>
{{- else}}
<div class="bubble bubble-assistant"><div class="bubble-author">LLMAI Live Agent</div><div class="bubble-body">{{.HTML}}</div></div>
{{- end}}
{{- end}}
</div>`

var transcript = template.Must(template.New("transcript").Parse(transcriptTemplate))

type bubble struct {
	Role string
	Text string
	HTML template.HTML
}

// Transcript renders chat messages as bubbles. User text is escaped, assistant text is markdown.
func Transcript(messages []interfaces.Message) (template.HTML, error) {
	bubbles := make([]bubble, 0, len(messages))
	for _, msg := range messages {
		b := bubble{Role: msg.Role, Text: msg.Content}
		if msg.Role != "user" {
			rendered, err := Markdown(msg.Content)
			if err != nil {
				return "", err
			}
			b.HTML = rendered
		}
		bubbles = append(bubbles, b)
	}

	var buf strings.Builder
	if err := transcript.Execute(&buf, bubbles); err != nil {
		return "", fmt.Errorf("failed to render transcript: %w", err)
	}
	// #nosec G203 - user text is escaped by html/template and assistant text is sanitized
	return template.HTML(buf.String()), nil
}
