package incidents

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/run-bigpig/llmatscale/pkg/httpx"
	"github.com/run-bigpig/llmatscale/pkg/llm/mocks"
	"github.com/run-bigpig/llmatscale/pkg/prompts"
)

const conditionsPage = `<html><head><title>Caltrans</title>
<script>var x = "[IN THE CENTRAL AREA]";</script><style>p{}</style></head>
<body>
<div>Enter Highway Number</div>
<h2>I-80</h2>
<pre>[IN THE SAN FRANCISCO BAY AREA]
IS CLOSED TO ALL TRAFFIC FROM THE JCT OF SR 4 TO 1 MI W OF THE JCT OF I-680
ONE-WAY TRAFFIC CONTROL IS IN EFFECT
Check current conditions on QuickMap
</pre>
<pre>[IN THE SACRAMENTO VALLEY AREA]
1 MI E OF AUBURN - CONSTRUCTION, EXPECT DELAYS
</pre>
<footer>Back to Top | Conditions of Use | Privacy Policy</footer>
<div>AFTER FOOTER LINE</div>
</body></html>`

type staticFetcher struct {
	lines []string
	err   error
}

func (f staticFetcher) Fetch(ctx context.Context, highway string) ([]string, error) {
	return f.lines, f.err
}

func TestHighwayNumber(t *testing.T) {
	tests := []struct {
		prompt   string
		expected string
	}{
		{"What's happening on I-80?", "80"},
		{"any closures on sr 99 today", "99"},
		{"Highway 101 please", "101"},
		{"hwy-50 status", "50"},
		{"how are the roads?", DefaultHighway},
	}
	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			assert.Equal(t, tt.expected, HighwayNumber(tt.prompt))
		})
	}
}

func TestTextLinesAndExtract(t *testing.T) {
	lines, err := TextLines([]byte(conditionsPage))
	require.NoError(t, err)
	assert.NotContains(t, lines, `var x = "[IN THE CENTRAL AREA]";`)

	report := ExtractIncidents(lines)
	assert.Equal(t, strings.Join([]string{
		"[IN THE SAN FRANCISCO BAY AREA]",
		"IS CLOSED TO ALL TRAFFIC FROM THE JCT OF SR 4 TO 1 MI W OF THE JCT OF I-680",
		"ONE-WAY TRAFFIC CONTROL IS IN EFFECT",
		"[IN THE SACRAMENTO VALLEY AREA]",
		"1 MI E OF AUBURN - CONSTRUCTION, EXPECT DELAYS",
	}, "\n"), report)
}

func TestExtractIncidentsNoHeading(t *testing.T) {
	assert.Empty(t, ExtractIncidents([]string{"No information returned", "Privacy Policy"}))
}

func TestNormalizeBullets(t *testing.T) {
	assert.Equal(t, "- closure at SR 4\n- delays near Auburn", NormalizeBullets("- closure at SR 4 - delays near Auburn"))

	multi := "- one\n- two"
	assert.Equal(t, multi, NormalizeBullets(multi))
}

func TestRoadsFetcher(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "80", r.URL.Query().Get("roadnumber"))
		_, _ = w.Write([]byte(conditionsPage))
	}))
	defer server.Close()

	fetcher := NewRoadsFetcher(WithURL(server.URL), WithTransport(http.DefaultClient))
	lines, err := fetcher.Fetch(context.Background(), "80")
	require.NoError(t, err)
	assert.Contains(t, lines, "ONE-WAY TRAFFIC CONTROL IS IN EFFECT")
}

func TestRoadsFetcherBreakerOpens(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	fetcher := NewRoadsFetcher(WithURL(server.URL), WithTransport(http.DefaultClient), WithBreaker(time.Minute, 2))
	for i := 0; i < 2; i++ {
		_, err := fetcher.Fetch(context.Background(), "5")
		var statusErr *httpx.StatusError
		assert.ErrorAs(t, err, &statusErr)
	}

	_, err := fetcher.Fetch(context.Background(), "5")
	assert.ErrorIs(t, err, httpx.ErrCircuitOpen)
	assert.Equal(t, 2, calls)
}

func TestSummarize(t *testing.T) {
	templates, err := prompts.Default("")
	require.NoError(t, err)

	lines, err := TextLines([]byte(conditionsPage))
	require.NoError(t, err)

	model := &mocks.MockLLM{}
	model.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "REPORT:") && strings.Contains(p, "ONE-WAY TRAFFIC CONTROL")
	}), mock.Anything).Return("- I-80 closed near SR 4 - Delays near Auburn", nil)

	s := NewSummarizer(staticFetcher{lines: lines}, model, templates)
	out, err := s.Run(context.Background(), "Any incidents on I-80?")
	require.NoError(t, err)
	assert.Equal(t, "- I-80 closed near SR 4\n- Delays near Auburn", out)

	opts := mocks.Options(model.Calls[0].Arguments.Get(2))
	assert.Equal(t, 0.2, opts.LLMConfig.Temperature)
	assert.Equal(t, 300, opts.LLMConfig.MaxTokens)
}

func TestSummarizeNoIncidents(t *testing.T) {
	templates, err := prompts.Default("")
	require.NoError(t, err)

	model := &mocks.MockLLM{}
	s := NewSummarizer(staticFetcher{lines: []string{"Nothing here"}}, model, templates)
	summary, err := s.Summarize(context.Background(), "99")
	require.NoError(t, err)
	assert.Equal(t, "No current incidents reported for highway 99.", summary.Summary)
	model.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)

	_, err = NewSummarizer(staticFetcher{err: errors.New("down")}, model, templates).Run(context.Background(), "I-5")
	assert.Error(t, err)
}
