package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText(t *testing.T) {
	doc, err := Extract("notes.TXT", []byte("line one\nline two"))
	require.NoError(t, err)
	require.Len(t, doc.Pages, 1)
	assert.Equal(t, "--- Page 1 ---\nline one\nline two", doc.Text())
	assert.Equal(t, "line one\nline two", doc.PlainText())
	assert.False(t, doc.Empty())
}

func TestExtractMarkdownEmpty(t *testing.T) {
	doc, err := Extract("empty.md", nil)
	require.NoError(t, err)
	assert.True(t, doc.Empty())
	assert.Equal(t, "", doc.PlainText())
}

func TestExtractUnsupported(t *testing.T) {
	_, err := Extract("sheet.xlsx", []byte("x"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractInvalidPDF(t *testing.T) {
	_, err := Extract("broken.pdf", []byte("not a pdf"))
	assert.Error(t, err)
}

func TestPagesHelpers(t *testing.T) {
	doc := &Document{Pages: []Page{{1, "a"}, {2, "b"}, {3, "c"}}}

	assert.Equal(t, "--- Page 1 ---\na\n\n--- Page 2 ---\nb\n\n--- Page 3 ---\nc", doc.Text())
	assert.Equal(t, "a\nb\nc", doc.PlainText())
	assert.Len(t, doc.FirstPages(2).Pages, 2)
	assert.Len(t, doc.FirstPages(10).Pages, 3)
	assert.Len(t, doc.FirstPages(-1).Pages, 0)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "", Truncate("abc", 0))
	// "é" is two bytes; cutting in its middle drops it
	assert.Equal(t, "a", Truncate("aé", 2))
	assert.Equal(t, "aé", Truncate("aé", 3))
}
