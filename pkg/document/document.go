// Package document extracts page text from uploaded files.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedFormat is returned for file types that cannot be read
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Page is the text of a single page
type Page struct {
	Number int
	Text   string
}

// Document is an extracted file
type Document struct {
	Name  string
	Pages []Page
}

// Extract reads the text of a PDF, plain text or markdown file
func Extract(name string, data []byte) (*Document, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return extractPDF(name, data)
	case ".txt", ".md":
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%s: text file is not valid UTF-8", name)
		}
		return &Document{Name: name, Pages: []Page{{Number: 1, Text: string(data)}}}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

func extractPDF(name string, data []byte) (doc *Document, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("%s: malformed PDF: %v", name, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open PDF: %w", name, err)
	}

	doc = &Document{Name: name}
	for i := 1; i <= reader.NumPage(); i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read page %d: %w", name, i, err)
		}
		doc.Pages = append(doc.Pages, Page{Number: i, Text: text})
	}

	return doc, nil
}

// Text joins the pages with "--- Page N ---" markers
func (d *Document) Text() string {
	var b strings.Builder
	for i, p := range d.Pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- Page %d ---\n%s", p.Number, p.Text)
	}
	return b.String()
}

// PlainText joins the pages with newlines
func (d *Document) PlainText() string {
	texts := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n")
}

// FirstPages returns a document holding at most the first n pages
func (d *Document) FirstPages(n int) *Document {
	if n < 0 {
		n = 0
	}
	if n > len(d.Pages) {
		n = len(d.Pages)
	}
	return &Document{Name: d.Name, Pages: d.Pages[:n]}
}

// Empty reports whether the document has no text
func (d *Document) Empty() bool {
	for _, p := range d.Pages {
		if strings.TrimSpace(p.Text) != "" {
			return false
		}
	}
	return true
}

// Truncate cuts s to at most n bytes without splitting a rune
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
