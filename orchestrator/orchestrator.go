// Package orchestrator drives a full pipeline run: parallel per-stream
// processing, the merge barrier, cross-domain tips/alerts synthesis, and
// persistence of the resulting report.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telcowatch/telcowatch/config"
	"github.com/telcowatch/telcowatch/core"
	"github.com/telcowatch/telcowatch/logging"
	"github.com/telcowatch/telcowatch/retry"
	"github.com/telcowatch/telcowatch/stage"
)

// Stages bundles the per-stream and cross-domain processing stages.
type Stages struct {
	Verifier    *stage.Verifier
	Ingestor    *stage.Ingestor
	Writer      *stage.Writer
	Enricher    *stage.Enricher
	Categorizer *stage.Categorizer
	Synthesizer *stage.Synthesizer
}

// Options configure the orchestrator.
type Options struct {
	Retry        retry.Policy
	StageTimeout time.Duration
	WindowDays   int
	Logger       logging.Logger
	// Now is the clock; override in tests.
	Now func() time.Time
	// NewReportID generates report identifiers; override in tests.
	NewReportID func() string
}

// Orchestrator owns the run state machine. Streams execute concurrently and
// independently; a stream that exhausts its retries degrades to an empty
// report instead of failing the run. Only persistence failures and caller
// errors fail a run.
type Orchestrator struct {
	search    core.SearchProvider
	stages    Stages
	reports   core.ReportStore
	artifacts core.ArtifactStore
	streams   []config.StreamConfig
	opts      Options
}

// New constructs an Orchestrator.
func New(search core.SearchProvider, stages Stages, reports core.ReportStore, artifacts core.ArtifactStore, streams []config.StreamConfig, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		Retry:        retry.DefaultPolicy(),
		StageTimeout: 2 * time.Minute,
		WindowDays:   7,
		Logger:       logging.NoOpLogger{},
		Now:          time.Now,
		NewReportID:  uuid.NewString,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Orchestrator{
		search:    search,
		stages:    stages,
		reports:   reports,
		artifacts: artifacts,
		streams:   streams,
		opts:      opts,
	}
}

// Result is the outcome of one pipeline run.
type Result struct {
	ReportID   string            `json:"report_id"`
	State      core.RunState     `json:"state"`
	Merged     core.MergedReport `json:"merged_report"`
	TipsAlerts core.TipsAlerts   `json:"tips_alerts"`
	Run        core.PipelineRun  `json:"run"`
}

type streamResult struct {
	stream core.Stream
	report core.DomainReport
}

// Run executes the pipeline for the requested domains on behalf of userRef.
// Unknown domain names fail fast with an invalid-request error before any
// external call. Context cancellation discards all partial work.
func (o *Orchestrator) Run(ctx context.Context, userRef string, domains []string) (Result, error) {
	streams, err := core.ParseStreams(domains)
	if err != nil {
		return Result{}, core.NewStageError(core.KindInvalidRequest, "orchestrator", "", err)
	}

	reportID := o.opts.NewReportID()
	log := o.opts.Logger
	transition := func(state core.RunState) {
		log.Debug("run state transition", "report_id", reportID, "state", string(state))
	}
	transition(core.StateInitialized)
	log.Info("pipeline run starting",
		"report_id", reportID, "user_ref", userRef, "streams", len(streams))

	// Fan out one worker per requested stream; the WaitGroup is the merge
	// barrier.
	transition(core.StateStreamsRunning)
	results := make(chan streamResult, len(streams))
	var wg sync.WaitGroup
	for _, s := range streams {
		wg.Add(1)
		go func(s core.Stream) {
			defer wg.Done()
			results <- streamResult{stream: s, report: o.runStream(ctx, s)}
		}(s)
	}
	wg.Wait()
	close(results)

	if err := ctx.Err(); err != nil {
		log.Warn("pipeline run cancelled, discarding", "report_id", reportID)
		return Result{ReportID: reportID, State: core.StateFailed}, err
	}

	transition(core.StateMerging)
	merged := core.MergedReport{
		DomainReports: make(map[core.Stream]core.DomainReport, len(streams)),
		MergedAt:      o.opts.Now().UTC(),
	}
	for r := range results {
		merged.DomainReports[r.stream] = r.report
	}

	transition(core.StateSynthesizing)
	var tipsAlerts core.TipsAlerts
	err = retry.Do(ctx, o.opts.Retry, log, "tips-alerts", func(ctx context.Context) error {
		var serr error
		tipsAlerts, serr = o.stages.Synthesizer.Run(ctx, merged)
		return serr
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result{ReportID: reportID, State: core.StateFailed}, ctx.Err()
		}
		// The report itself is still worth persisting; ship it without
		// tips/alerts rather than dropping the whole run. The Degraded flag
		// distinguishes this from a quiet period with nothing to advise on.
		log.Error("tips/alerts synthesis failed, persisting report without them",
			"report_id", reportID, "error", err.Error())
		tipsAlerts = core.TipsAlerts{Degraded: true, GeneratedAt: o.opts.Now().UTC()}
	}

	transition(core.StatePersisting)
	run, err := o.persist(ctx, reportID, userRef, streams, merged, tipsAlerts)
	if err != nil {
		log.Error("pipeline run failed at persistence",
			"report_id", reportID, "error", err.Error())
		// Drop whatever artifacts made it to storage before the failure so
		// a failed run leaves no partial report behind.
		if perr := o.artifacts.Purge(reportID); perr != nil {
			log.Warn("artifact cleanup failed", "report_id", reportID, "error", perr.Error())
		}
		return Result{ReportID: reportID, State: core.StateFailed}, err
	}

	transition(core.StateCompleted)
	log.Info("pipeline run completed",
		"report_id", reportID, "tips", len(tipsAlerts.Tips), "alerts", len(tipsAlerts.Alerts))
	return Result{
		ReportID:   reportID,
		State:      core.StateCompleted,
		Merged:     merged,
		TipsAlerts: tipsAlerts,
		Run:        run,
	}, nil
}

// runStream executes the per-stream pipeline. Any stage failure that
// survives the retry policy degrades the stream to an empty report.
func (o *Orchestrator) runStream(ctx context.Context, s core.Stream) core.DomainReport {
	log := o.opts.Logger
	report, err := o.streamPipeline(ctx, s)
	if err != nil {
		log.Warn("stream degraded",
			"stream", s.String(), "kind", string(core.KindOf(err)), "error", err.Error())
		return core.DomainReport{
			Stream:      s,
			Degraded:    true,
			GeneratedAt: o.opts.Now().UTC(),
		}
	}
	return report
}

func (o *Orchestrator) streamPipeline(ctx context.Context, s core.Stream) (core.DomainReport, error) {
	sc, err := o.streamConfig(s)
	if err != nil {
		return core.DomainReport{}, core.NewStageError(core.KindInvalidRequest, "orchestrator", s, err)
	}

	var candidates []core.Candidate
	err = o.withStageTimeout(ctx, "search", func(ctx context.Context) error {
		return retry.Do(ctx, o.opts.Retry, o.opts.Logger, "search:"+s.String(), func(ctx context.Context) error {
			var serr error
			candidates, serr = o.search.Search(ctx, sc.Queries, sc.Allowlist, o.opts.WindowDays)
			return serr
		})
	})
	if err != nil {
		return core.DomainReport{}, err
	}

	var accepted []core.Candidate
	err = o.withStageTimeout(ctx, "verification", func(ctx context.Context) error {
		return retry.Do(ctx, o.opts.Retry, o.opts.Logger, "verification:"+s.String(), func(ctx context.Context) error {
			var serr error
			accepted, serr = o.stages.Verifier.Run(ctx, s, candidates)
			return serr
		})
	})
	if err != nil {
		return core.DomainReport{}, err
	}

	var fragments []core.Fragment
	err = o.withStageTimeout(ctx, "ingestion", func(ctx context.Context) error {
		var serr error
		fragments, serr = o.stages.Ingestor.Run(ctx, s, accepted)
		return serr
	})
	if err != nil {
		return core.DomainReport{}, err
	}

	// Enrichment is fail-open and independent of the fragment path.
	var enrichment core.EnrichmentContext
	_ = o.withStageTimeout(ctx, "enrichment", func(ctx context.Context) error {
		enrichment = o.stages.Enricher.Run(ctx, s, sc.Queries)
		return nil
	})

	var narrative core.StreamNarrative
	err = o.withStageTimeout(ctx, "writer", func(ctx context.Context) error {
		return retry.Do(ctx, o.opts.Retry, o.opts.Logger, "writer:"+s.String(), func(ctx context.Context) error {
			var serr error
			narrative, serr = o.stages.Writer.Run(ctx, s, fragments)
			return serr
		})
	})
	if err != nil {
		return core.DomainReport{}, err
	}

	var report core.DomainReport
	err = o.withStageTimeout(ctx, "categorization", func(ctx context.Context) error {
		return retry.Do(ctx, o.opts.Retry, o.opts.Logger, "categorization:"+s.String(), func(ctx context.Context) error {
			var serr error
			report, serr = o.stages.Categorizer.Run(ctx, narrative, enrichment, fragments)
			return serr
		})
	})
	if err != nil {
		return core.DomainReport{}, err
	}
	return report, nil
}

func (o *Orchestrator) withStageTimeout(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if o.opts.StageTimeout <= 0 {
		return fn(ctx)
	}
	sctx, cancel := context.WithTimeout(ctx, o.opts.StageTimeout)
	defer cancel()
	return fn(sctx)
}

func (o *Orchestrator) streamConfig(s core.Stream) (config.StreamConfig, error) {
	for _, sc := range o.streams {
		if sc.Name == string(s) {
			return sc, nil
		}
	}
	return config.StreamConfig{}, fmt.Errorf("stream %q not configured", s)
}

// persist writes the run's artifacts, records the draft run, and publishes
// it. Every failure here is a persistence failure that fails the run.
func (o *Orchestrator) persist(ctx context.Context, reportID, userRef string, streams []core.Stream, merged core.MergedReport, tipsAlerts core.TipsAlerts) (core.PipelineRun, error) {
	wrap := func(err error) error {
		return core.NewStageError(core.KindPersistenceFailure, "persist", "", err)
	}

	paths := core.StoragePaths{
		MergedReport: path.Join(reportID, "merged_report.json"),
		TipsAlerts:   path.Join(reportID, "tips_alerts.json"),
		PerDomain:    make(map[core.Stream]string, len(streams)),
	}
	for s, dr := range merged.DomainReports {
		p := path.Join(reportID, "domains", s.String()+".json")
		data, err := json.MarshalIndent(dr, "", "  ")
		if err != nil {
			return core.PipelineRun{}, wrap(fmt.Errorf("marshal domain report %s: %w", s, err))
		}
		if err := o.artifacts.Save(reportID, path.Join("domains", s.String()+".json"), data); err != nil {
			return core.PipelineRun{}, wrap(fmt.Errorf("save domain report %s: %w", s, err))
		}
		paths.PerDomain[s] = p
	}

	mergedData, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return core.PipelineRun{}, wrap(fmt.Errorf("marshal merged report: %w", err))
	}
	if err := o.artifacts.Save(reportID, "merged_report.json", mergedData); err != nil {
		return core.PipelineRun{}, wrap(fmt.Errorf("save merged report: %w", err))
	}

	tipsData, err := json.MarshalIndent(tipsAlerts, "", "  ")
	if err != nil {
		return core.PipelineRun{}, wrap(fmt.Errorf("marshal tips/alerts: %w", err))
	}
	if err := o.artifacts.Save(reportID, "tips_alerts.json", tipsData); err != nil {
		return core.PipelineRun{}, wrap(fmt.Errorf("save tips/alerts: %w", err))
	}

	now := o.opts.Now().UTC()
	run := core.PipelineRun{
		ReportID:      reportID,
		UserRef:       userRef,
		StreamDomains: streams,
		Status:        core.RunStatusDraft,
		TipCount:      len(tipsAlerts.Tips),
		AlertCount:    len(tipsAlerts.Alerts),
		StoragePaths:  paths,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := o.reports.CreateReport(ctx, run); err != nil {
		return core.PipelineRun{}, wrap(err)
	}
	if err := o.reports.PublishReport(ctx, reportID); err != nil {
		return core.PipelineRun{}, wrap(err)
	}
	run.Status = core.RunStatusPublished
	return run, nil
}
