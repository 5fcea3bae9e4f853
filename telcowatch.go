// Package telcowatch provides a high-level façade over the pipeline
// orchestrator and the chat supervisor, enabling rapid construction of the
// telecom-market news intelligence service. Most applications interact with
// this package by:
//  1. Creating a TelcoWatch via New() with their providers and model backends
//  2. Running pipelines (RunPipeline) for one or more topic streams
//  3. Streaming ad-hoc chat answers (Chat)
//
// The façade delegates orchestration to orchestrator.Orchestrator while
// keeping setup concise. Defaults are safe for local development and tests;
// production deployments supply a durable artifact store and a structured
// logger.
package telcowatch

import (
	"context"
	"fmt"
	"time"

	"github.com/telcowatch/telcowatch/artifact"
	"github.com/telcowatch/telcowatch/chat"
	"github.com/telcowatch/telcowatch/config"
	"github.com/telcowatch/telcowatch/core"
	"github.com/telcowatch/telcowatch/logging"
	"github.com/telcowatch/telcowatch/model"
	"github.com/telcowatch/telcowatch/orchestrator"
	"github.com/telcowatch/telcowatch/retry"
	"github.com/telcowatch/telcowatch/stage"
)

// Options configures the TelcoWatch instance.
type Options struct {
	// Streams defines the topic streams (queries + source allow-lists).
	// Defaults to the built-in Polish telecom streams.
	Streams []config.StreamConfig

	// Retry is the policy applied to every external call site.
	Retry retry.Policy

	// StageTimeout bounds each pipeline stage. Zero disables the bound.
	StageTimeout time.Duration

	// WindowDays is the search recency window.
	WindowDays int

	// MaxConcurrentCandidates bounds candidate-level verification and
	// ingestion parallelism within a stream.
	MaxConcurrentCandidates int

	// MinContentLength / MaxContentLength bound ingested page text.
	MinContentLength int
	MaxContentLength int

	// ChatKeywords and ChatLengthThreshold drive strategist routing.
	// Zero values keep the chat package defaults.
	ChatKeywords        []string
	ChatLengthThreshold int

	// ArtifactStore defaults to an in-memory implementation.
	ArtifactStore core.ArtifactStore

	// Logger defaults to a NoOp logger.
	Logger logging.Logger
}

// TelcoWatch is the high-level façade aggregating the orchestrator, the
// report store and the chat supervisor.
type TelcoWatch struct {
	orch       *orchestrator.Orchestrator
	supervisor *chat.Supervisor
	reports    core.ReportStore
	opts       Options
}

// New creates a TelcoWatch instance. The search provider, synthesis
// provider, both model backends and the report store are required; any
// unset service falls back to a safe in-process default.
func New(
	search core.SearchProvider,
	synthesis core.SynthesisProvider,
	fast, deep model.Model,
	reports core.ReportStore,
	optFns ...func(o *Options),
) (*TelcoWatch, error) {
	opts := Options{
		Streams:                 config.DefaultStreams(),
		Retry:                   retry.DefaultPolicy(),
		StageTimeout:            2 * time.Minute,
		WindowDays:              7,
		MaxConcurrentCandidates: 5,
		MinContentLength:        200,
		MaxContentLength:        8000,
		ArtifactStore:           artifact.NewInMemoryStore(),
		Logger:                  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	switch {
	case search == nil:
		return nil, fmt.Errorf("search provider is required")
	case fast == nil || deep == nil:
		return nil, fmt.Errorf("both model backends are required")
	case reports == nil:
		return nil, fmt.Errorf("report store is required")
	}

	stages := orchestrator.Stages{
		Verifier: stage.NewVerifier(fast, opts.MaxConcurrentCandidates, opts.Logger),
		Ingestor: stage.NewIngestor(fast, func(o *stage.IngestorOptions) {
			o.MinLength = opts.MinContentLength
			o.MaxLength = opts.MaxContentLength
			o.MaxParallel = opts.MaxConcurrentCandidates
			o.Logger = opts.Logger
		}),
		Writer:      stage.NewWriter(deep, opts.Logger),
		Enricher:    stage.NewEnricher(synthesis, opts.Logger),
		Categorizer: stage.NewCategorizer(deep, opts.Logger),
		Synthesizer: stage.NewSynthesizer(deep, opts.Logger),
	}
	orch := orchestrator.New(search, stages, reports, opts.ArtifactStore, opts.Streams,
		func(o *orchestrator.Options) {
			o.Retry = opts.Retry
			o.StageTimeout = opts.StageTimeout
			o.WindowDays = opts.WindowDays
			o.Logger = opts.Logger
		})
	supervisor := chat.NewSupervisor(fast, deep, func(o *chat.SupervisorOptions) {
		if len(opts.ChatKeywords) > 0 {
			o.StrategicKeywords = opts.ChatKeywords
		}
		if opts.ChatLengthThreshold > 0 {
			o.DeepLengthThreshold = opts.ChatLengthThreshold
		}
		o.Logger = opts.Logger
	})

	return &TelcoWatch{orch: orch, supervisor: supervisor, reports: reports, opts: opts}, nil
}

// RunPipeline executes a full pipeline run for the requested domains and
// blocks until the run completes or fails.
func (tw *TelcoWatch) RunPipeline(ctx context.Context, userRef string, domains []string) (orchestrator.Result, error) {
	return tw.orch.Run(ctx, userRef, domains)
}

// Chat dispatches a conversation to the routed model tier and streams the
// answer chunk by chunk.
func (tw *TelcoWatch) Chat(ctx context.Context, messages []model.Message) (chat.Route, <-chan string, <-chan error) {
	return tw.supervisor.Stream(ctx, messages)
}

// Orchestrator exposes the underlying orchestrator for callers wiring the
// HTTP server directly.
func (tw *TelcoWatch) Orchestrator() *orchestrator.Orchestrator { return tw.orch }

// Supervisor exposes the chat supervisor.
func (tw *TelcoWatch) Supervisor() *chat.Supervisor { return tw.supervisor }

// Reports exposes the report store.
func (tw *TelcoWatch) Reports() core.ReportStore { return tw.reports }
