package stage

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/telcowatch/telcowatch/core"
	"github.com/telcowatch/telcowatch/logging"
	"github.com/telcowatch/telcowatch/model"
)

// IngestorOptions configure the ingestion stage.
type IngestorOptions struct {
	HTTPClient  *http.Client
	MinLength   int
	MaxLength   int
	MaxParallel int
	UserAgent   string
	Logger      logging.Logger
}

// Ingestor resolves accepted candidates into normalized Fragments. It fetches
// each page, extracts the main text, rejects thin or walled content, and
// attaches a best-effort entity list from the low-cost model. Rejections are
// normal filtering, never stage failures.
type Ingestor struct {
	model model.Model
	opts  IngestorOptions
}

// NewIngestor constructs the ingestion stage.
func NewIngestor(m model.Model, optFns ...func(o *IngestorOptions)) *Ingestor {
	opts := IngestorOptions{
		HTTPClient:  &http.Client{Timeout: 20 * time.Second},
		MinLength:   200,
		MaxLength:   8000,
		MaxParallel: 5,
		UserAgent:   "telcowatch/1.0",
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 1
	}
	return &Ingestor{model: m, opts: opts}
}

// Run converts candidates into fragments with bounded parallelism. Per-page
// failures and content rejections drop the candidate; only context
// cancellation aborts the stage.
func (ig *Ingestor) Run(ctx context.Context, stream core.Stream, candidates []core.Candidate) ([]core.Fragment, error) {
	results := make([]*core.Fragment, len(candidates))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ig.opts.MaxParallel)

	for i, cand := range candidates {
		i, cand := i, cand
		g.Go(func() error {
			frag, err := ig.ingestOne(gctx, stream, cand)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				ig.opts.Logger.Debug("candidate dropped at ingestion",
					"stream", stream.String(), "url", cand.URL, "reason", err.Error())
				return nil
			}
			mu.Lock()
			results[i] = frag
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var fragments []core.Fragment
	for _, f := range results {
		if f != nil {
			fragments = append(fragments, *f)
		}
	}
	ig.opts.Logger.Info("ingestion completed",
		"stream", stream.String(), "candidates", len(candidates), "fragments", len(fragments))
	return fragments, nil
}

func (ig *Ingestor) ingestOne(ctx context.Context, stream core.Stream, cand core.Candidate) (*core.Fragment, error) {
	text, err := ig.fetchText(ctx, cand.URL)
	if err != nil {
		return nil, err
	}
	if len([]rune(text)) < ig.opts.MinLength {
		return nil, core.NewStageError(core.KindContentRejected, "ingestion", stream,
			fmt.Errorf("content below minimum length (%d runes)", len([]rune(text))))
	}
	if looksWalled(text) {
		return nil, core.NewStageError(core.KindContentRejected, "ingestion", stream,
			fmt.Errorf("content behind an access wall"))
	}
	if max := ig.opts.MaxLength; max > 0 {
		if runes := []rune(text); len(runes) > max {
			text = string(runes[:max])
		}
	}

	// Entity extraction failures degrade to an empty set, never drop the
	// fragment.
	entities := ig.extractEntities(ctx, stream, text)

	return &core.Fragment{
		Text:       text,
		SourceURL:  cand.URL,
		SourceName: cand.Source,
		Stream:     stream,
		Entities:   entities,
	}, nil
}

func (ig *Ingestor) fetchText(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", ig.opts.UserAgent)

	resp, err := ig.opts.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}
	doc.Find("script, style, nav, header, footer, aside, form, iframe").Remove()

	// Prefer the article body when the page marks one up.
	for _, selector := range []string{"article", "main", "body"} {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			if text := normalizeWhitespace(sel.Text()); text != "" {
				return text, nil
			}
		}
	}
	return "", fmt.Errorf("no readable content")
}

func (ig *Ingestor) extractEntities(ctx context.Context, stream core.Stream, text string) []string {
	sample := text
	if runes := []rune(sample); len(runes) > 2000 {
		sample = string(runes[:2000])
	}
	var parsed struct {
		Entities []string `json:"entities"`
	}
	prompt := fmt.Sprintf(entityPromptTemplate, sample)
	if err := generateJSON(ctx, ig.model, "ingestion", stream, entityInstructions, prompt, &parsed); err != nil {
		ig.opts.Logger.Debug("entity extraction degraded to empty set",
			"stream", stream.String(), "error", err.Error())
		return nil
	}
	return parsed.Entities
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// normalizeWhitespace collapses runs of whitespace into single spaces.
func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}

// wallMarkers are phrases that reliably indicate the fetched page is a
// paywall or login shell rather than the article itself.
var wallMarkers = []string{
	"subscribe to continue reading",
	"log in to read",
	"zaloguj się, aby przeczytać",
	"artykuł dostępny dla subskrybentów",
}

func looksWalled(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range wallMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
