package stage

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telcowatch/telcowatch/core"
	"github.com/telcowatch/telcowatch/model"
)

func TestIngestorExtractsArticleText(t *testing.T) {
	body := strings.Repeat("UKE opened new proceedings. ", 20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><script>junk()</script></head><body>
			<nav>menu menu</nav>
			<article><p>%s</p></article>
			<footer>footer text</footer>
		</body></html>`, body)
	}))
	defer srv.Close()

	m := model.NewMockModel("fast")
	m.AddContains("named organizations", `{"entities": ["UKE"]}`)

	ig := NewIngestor(m, func(o *IngestorOptions) {
		o.MinLength = 50
	})
	fragments, err := ig.Run(context.Background(), core.StreamLegal, []core.Candidate{
		{URL: srv.URL, Source: "telko.in"},
	})
	require.NoError(t, err)
	require.Len(t, fragments, 1)

	f := fragments[0]
	assert.Equal(t, core.StreamLegal, f.Stream)
	assert.Equal(t, srv.URL, f.SourceURL)
	assert.Contains(t, f.Text, "UKE opened new proceedings.")
	assert.NotContains(t, f.Text, "menu menu")
	assert.NotContains(t, f.Text, "footer text")
	assert.NotContains(t, f.Text, "junk()")
	assert.Equal(t, []string{"UKE"}, f.Entities)
}

func TestIngestorDropsThinContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><article>too short</article></body></html>`)
	}))
	defer srv.Close()

	ig := NewIngestor(model.NewMockModel("fast"), func(o *IngestorOptions) {
		o.MinLength = 200
	})
	fragments, err := ig.Run(context.Background(), core.StreamLegal, []core.Candidate{{URL: srv.URL}})
	require.NoError(t, err, "rejection is filtering, not failure")
	assert.Empty(t, fragments)
}

func TestIngestorDropsFetchFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ig := NewIngestor(model.NewMockModel("fast"))
	fragments, err := ig.Run(context.Background(), core.StreamLegal, []core.Candidate{{URL: srv.URL}})
	require.NoError(t, err)
	assert.Empty(t, fragments)
}

func TestIngestorTruncatesLongContent(t *testing.T) {
	long := strings.Repeat("regulacja rynku telekomunikacyjnego ", 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><article>%s</article></body></html>`, long)
	}))
	defer srv.Close()

	m := model.NewMockModel("fast")
	m.AddContains("named organizations", `{"entities": []}`)

	ig := NewIngestor(m, func(o *IngestorOptions) {
		o.MinLength = 50
		o.MaxLength = 300
	})
	fragments, err := ig.Run(context.Background(), core.StreamLegal, []core.Candidate{{URL: srv.URL}})
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Len(t, []rune(fragments[0].Text), 300)
}

func TestIngestorEntityFailureDegrades(t *testing.T) {
	body := strings.Repeat("Orange Polska published results. ", 20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><article>%s</article></body></html>`, body)
	}))
	defer srv.Close()

	m := model.NewMockModel("fast")
	m.SetError(fmt.Errorf("model down"))

	ig := NewIngestor(m, func(o *IngestorOptions) {
		o.MinLength = 50
	})
	fragments, err := ig.Run(context.Background(), core.StreamFinancial, []core.Candidate{{URL: srv.URL}})
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Empty(t, fragments[0].Entities)
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", normalizeWhitespace("  a\n\tb   c\n"))
}
