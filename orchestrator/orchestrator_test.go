package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/telcowatch/telcowatch/artifact"
	"github.com/telcowatch/telcowatch/config"
	"github.com/telcowatch/telcowatch/core"
	"github.com/telcowatch/telcowatch/logging"
	"github.com/telcowatch/telcowatch/model"
	"github.com/telcowatch/telcowatch/retry"
	"github.com/telcowatch/telcowatch/stage"
	"github.com/telcowatch/telcowatch/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSearch struct {
	fn func(ctx context.Context, queries []string) ([]core.Candidate, error)
}

func (f *fakeSearch) Search(ctx context.Context, queries, allowlist []string, windowDays int) ([]core.Candidate, error) {
	return f.fn(ctx, queries)
}

type fakeSynthesis struct {
	err error
	out core.EnrichmentContext
}

func (f *fakeSynthesis) Synthesize(ctx context.Context, s core.Stream, queries []string) (core.EnrichmentContext, error) {
	if f.err != nil {
		return core.EnrichmentContext{}, f.err
	}
	out := f.out
	out.Stream = s
	return out, nil
}

func testStreams() []config.StreamConfig {
	return []config.StreamConfig{
		{Name: "legal", Queries: []string{"legal query"}},
		{Name: "political", Queries: []string{"political query"}},
		{Name: "financial", Queries: []string{"financial query"}},
	}
}

type fixture struct {
	orch    *Orchestrator
	reports *store.SQLiteStore
	fast    *model.MockModel
	deep    *model.MockModel
}

func newFixture(t *testing.T, search core.SearchProvider, synth core.SynthesisProvider) *fixture {
	t.Helper()

	fast := model.NewMockModel("fast")
	deep := model.NewMockModel("deep")
	log := logging.NoOpLogger{}

	reports, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { reports.Close() })

	stages := Stages{
		Verifier: stage.NewVerifier(fast, 2, log),
		Ingestor: stage.NewIngestor(fast, func(o *stage.IngestorOptions) {
			o.MinLength = 20
			o.MaxParallel = 2
		}),
		Writer:      stage.NewWriter(deep, log),
		Enricher:    stage.NewEnricher(synth, log),
		Categorizer: stage.NewCategorizer(deep, log),
		Synthesizer: stage.NewSynthesizer(deep, log),
	}
	orch := New(search, stages, reports, artifact.NewInMemoryStore(), testStreams(),
		func(o *Options) {
			o.Retry = retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, RateLimitDelay: time.Millisecond, MaxDelay: time.Millisecond}
			o.StageTimeout = 10 * time.Second
			o.NewReportID = func() string { return "report-test" }
		})
	return &fixture{orch: orch, reports: reports, fast: fast, deep: deep}
}

func TestRunMergesExactRequestedKeys(t *testing.T) {
	// No candidates anywhere: every stream completes with an empty report.
	search := &fakeSearch{fn: func(ctx context.Context, queries []string) ([]core.Candidate, error) {
		return nil, nil
	}}
	f := newFixture(t, search, &fakeSynthesis{})

	result, err := f.orch.Run(context.Background(), "user-1", []string{"legal", "market"})
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, result.State)

	require.Len(t, result.Merged.DomainReports, 2)
	assert.Contains(t, result.Merged.DomainReports, core.StreamLegal)
	assert.Contains(t, result.Merged.DomainReports, core.StreamFinancial)
	for s, dr := range result.Merged.DomainReports {
		assert.Equal(t, s, dr.Stream)
		assert.False(t, dr.Degraded)
		assert.Empty(t, dr.Items)
	}

	// Empty run still persists and publishes.
	run, err := f.reports.GetReport(context.Background(), result.ReportID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusPublished, run.Status)
	assert.Equal(t, []core.Stream{core.StreamLegal, core.StreamFinancial}, run.StreamDomains)
}

func TestRunFullPipeline(t *testing.T) {
	article := strings.Repeat("UKE fined an operator for breaching retention rules. ", 5)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><body><article>%s</article></body></html>", article)
	}))
	defer srv.Close()

	search := &fakeSearch{fn: func(ctx context.Context, queries []string) ([]core.Candidate, error) {
		if strings.Contains(queries[0], "legal") {
			return []core.Candidate{{Title: "UKE fine", URL: srv.URL, Source: "telko.in"}}, nil
		}
		return nil, nil
	}}
	f := newFixture(t, search, &fakeSynthesis{
		out: core.EnrichmentContext{Summary: "fresh context", Citations: []string{"https://uke.gov.pl"}},
	})

	f.fast.AddContains("Search hits",
		fmt.Sprintf(`[{"url": %q, "accept": true, "reason": ""}]`, srv.URL))
	f.fast.AddContains("named organizations", `{"entities": ["UKE"]}`)
	f.deep.AddContains("Write the narrative", "UKE fined an operator this week.")
	f.deep.AddContains("Return a JSON array of items", fmt.Sprintf(`[
		{"text": "UKE fined an operator", "category": "legal", "impact_level": "high",
		 "entities": ["UKE"], "sources": [%q]}
	]`, srv.URL))
	f.deep.AddContains("Categorized reports", `{
		"tips": ["Review retention compliance"],
		"alerts": [{"text": "Compliance deadline risk", "alert_level": 4}]
	}`)

	result, err := f.orch.Run(context.Background(), "user-1", []string{"legal"})
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, result.State)

	legal := result.Merged.DomainReports[core.StreamLegal]
	require.Len(t, legal.Items, 1)
	assert.Equal(t, core.CategoryLegal, legal.Items[0].Category)
	assert.Equal(t, core.ImpactHigh, legal.Items[0].ImpactLevel)

	assert.Equal(t, []string{"Review retention compliance"}, result.TipsAlerts.Tips)
	require.Len(t, result.TipsAlerts.Alerts, 1)
	assert.Equal(t, 4, result.TipsAlerts.Alerts[0].AlertLevel)

	assert.Equal(t, 1, result.Run.TipCount)
	assert.Equal(t, 1, result.Run.AlertCount)
	assert.Equal(t, "report-test/merged_report.json", result.Run.StoragePaths.MergedReport)
	assert.Equal(t, "report-test/domains/legal.json", result.Run.StoragePaths.PerDomain[core.StreamLegal])
}

func TestRunEnrichmentOnlyStreamProducesItems(t *testing.T) {
	// Quiet search everywhere, but enrichment returns fresh context: the
	// stream still gets categorized items sourced from the citations.
	search := &fakeSearch{fn: func(ctx context.Context, queries []string) ([]core.Candidate, error) {
		return nil, nil
	}}
	synth := &fakeSynthesis{out: core.EnrichmentContext{
		Summary:   "UKE announced the 700 MHz auction schedule.",
		Citations: []string{"https://uke.gov.pl/auction"},
	}}
	f := newFixture(t, search, synth)

	f.deep.AddContains("Return a JSON array of items", `[
		{"text": "UKE opened the 700 MHz auction", "category": "legal", "impact_level": "high",
		 "entities": ["UKE"], "sources": ["https://uke.gov.pl/auction"]}
	]`)
	f.deep.AddContains("Categorized reports", `{"tips": [], "alerts": []}`)

	result, err := f.orch.Run(context.Background(), "user-1", []string{"legal"})
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, result.State)

	legal := result.Merged.DomainReports[core.StreamLegal]
	assert.False(t, legal.Degraded)
	require.Len(t, legal.Items, 1)
	assert.Equal(t, []string{"https://uke.gov.pl/auction"}, legal.Items[0].Sources)
}

func TestRunTipsAlertsFailureMarksDegraded(t *testing.T) {
	search := &fakeSearch{fn: func(ctx context.Context, queries []string) ([]core.Candidate, error) {
		return nil, nil
	}}
	synth := &fakeSynthesis{out: core.EnrichmentContext{
		Summary:   "UKE announced the 700 MHz auction schedule.",
		Citations: []string{"https://uke.gov.pl/auction"},
	}}
	f := newFixture(t, search, synth)

	f.deep.AddContains("Return a JSON array of items", `[
		{"text": "UKE opened the 700 MHz auction", "category": "legal", "impact_level": "high",
		 "entities": ["UKE"], "sources": ["https://uke.gov.pl/auction"]}
	]`)
	// Tips/alerts synthesis keeps returning garbage until retries run out.
	f.deep.AddContains("Categorized reports", "no payload here")

	result, err := f.orch.Run(context.Background(), "user-1", []string{"legal"})
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, result.State)

	assert.True(t, result.TipsAlerts.Degraded, "failed advisory synthesis must be visible")
	assert.Empty(t, result.TipsAlerts.Tips)
	assert.Empty(t, result.TipsAlerts.Alerts)
	assert.Equal(t, 0, result.Run.TipCount)

	// The domain reports still persist and publish.
	run, err := f.reports.GetReport(context.Background(), result.ReportID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusPublished, run.Status)
}

func TestRunDegradedStreamDoesNotFailRun(t *testing.T) {
	search := &fakeSearch{fn: func(ctx context.Context, queries []string) ([]core.Candidate, error) {
		if strings.Contains(queries[0], "political") {
			return nil, core.NewStageError(core.KindRateLimited, "search", core.StreamPolitical,
				errors.New("quota exhausted"))
		}
		return nil, nil
	}}
	f := newFixture(t, search, &fakeSynthesis{})

	result, err := f.orch.Run(context.Background(), "user-1",
		[]string{"legal", "political", "financial"})
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, result.State)
	require.Len(t, result.Merged.DomainReports, 3)

	assert.True(t, result.Merged.DomainReports[core.StreamPolitical].Degraded)
	assert.Empty(t, result.Merged.DomainReports[core.StreamPolitical].Items)
	assert.False(t, result.Merged.DomainReports[core.StreamLegal].Degraded)
	assert.False(t, result.Merged.DomainReports[core.StreamFinancial].Degraded)
}

func TestRunInvalidDomain(t *testing.T) {
	called := false
	search := &fakeSearch{fn: func(ctx context.Context, queries []string) ([]core.Candidate, error) {
		called = true
		return nil, nil
	}}
	f := newFixture(t, search, &fakeSynthesis{})

	_, err := f.orch.Run(context.Background(), "user-1", []string{"legal", "sports"})
	assert.Equal(t, core.KindInvalidRequest, core.KindOf(err))
	assert.False(t, called, "no external call before validation")

	_, err = f.orch.Run(context.Background(), "user-1", nil)
	assert.Equal(t, core.KindInvalidRequest, core.KindOf(err))
}

type failingReportStore struct {
	core.ReportStore
}

func (f *failingReportStore) CreateReport(ctx context.Context, run core.PipelineRun) error {
	return core.NewStageError(core.KindPersistenceFailure, "store", "", errors.New("disk full"))
}

func TestRunPersistenceFailureFailsRun(t *testing.T) {
	search := &fakeSearch{fn: func(ctx context.Context, queries []string) ([]core.Candidate, error) {
		return nil, nil
	}}
	f := newFixture(t, search, &fakeSynthesis{})

	stages := Stages{
		Verifier:    stage.NewVerifier(f.fast, 1, logging.NoOpLogger{}),
		Ingestor:    stage.NewIngestor(f.fast),
		Writer:      stage.NewWriter(f.deep, logging.NoOpLogger{}),
		Enricher:    stage.NewEnricher(nil, logging.NoOpLogger{}),
		Categorizer: stage.NewCategorizer(f.deep, logging.NoOpLogger{}),
		Synthesizer: stage.NewSynthesizer(f.deep, logging.NoOpLogger{}),
	}
	artifacts := artifact.NewInMemoryStore()
	orch := New(search, stages, &failingReportStore{}, artifacts, testStreams(),
		func(o *Options) {
			o.Retry = retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond}
			o.NewReportID = func() string { return "report-test" }
		})

	result, err := orch.Run(context.Background(), "user-1", []string{"legal"})
	require.Error(t, err)
	assert.Equal(t, core.KindPersistenceFailure, core.KindOf(err))
	assert.Equal(t, core.StateFailed, result.State)

	// Artifacts written before the store failure are cleaned up.
	ids, err := artifacts.List("report-test")
	require.NoError(t, err)
	assert.Empty(t, ids, "failed runs leave no partial artifacts behind")
}

func TestRunCancelledContextDiscards(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	search := &fakeSearch{fn: func(ctx context.Context, queries []string) ([]core.Candidate, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	f := newFixture(t, search, &fakeSynthesis{})

	result, err := f.orch.Run(ctx, "user-1", []string{"legal"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, core.StateFailed, result.State)

	_, err = f.reports.GetReport(context.Background(), "report-test")
	assert.ErrorIs(t, err, store.ErrNotFound, "cancelled runs persist nothing")
}

func TestRunEnrichmentFailureIsFailOpen(t *testing.T) {
	search := &fakeSearch{fn: func(ctx context.Context, queries []string) ([]core.Candidate, error) {
		return nil, nil
	}}
	synth := &fakeSynthesis{err: core.NewStageError(core.KindProviderTimeout, "enrichment", "", errors.New("slow"))}
	f := newFixture(t, search, synth)

	result, err := f.orch.Run(context.Background(), "user-1", []string{"financial"})
	require.NoError(t, err)
	assert.Equal(t, core.StateCompleted, result.State)
	assert.False(t, result.Merged.DomainReports[core.StreamFinancial].Degraded)
}
