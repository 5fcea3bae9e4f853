package core

import "context"

// SearchProvider wraps the keyword/site-restricted search API. It returns
// deduplicated candidates (by normalized URL) and performs no retries of its
// own; retry policy lives with the orchestrator.
type SearchProvider interface {
	Search(ctx context.Context, queries []string, allowlist []string, windowDays int) ([]Candidate, error)
}

// SynthesisProvider wraps the general answer-synthesis API used by the
// enrichment stage. It works from the stream's canonical queries, not from
// ingested fragments, so a degraded ingestion path never blocks enrichment.
type SynthesisProvider interface {
	Synthesize(ctx context.Context, stream Stream, queries []string) (EnrichmentContext, error)
}

// ReportFilter narrows ListReports results. Zero values match everything.
type ReportFilter struct {
	UserRef string
	Status  RunStatus
	Limit   int
}

// ReportStore persists PipelineRun records. Implementations must keep runs
// independent: persisting the same report content twice under different IDs
// yields two non-conflicting records.
type ReportStore interface {
	CreateReport(ctx context.Context, run PipelineRun) error
	GetReport(ctx context.Context, reportID string) (PipelineRun, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]PipelineRun, error)
	// PublishReport transitions a draft run to published. Any other
	// transition is rejected.
	PublishReport(ctx context.Context, reportID string) error
	// ArchiveReport moves a run to the terminal archived status.
	ArchiveReport(ctx context.Context, reportID string) error
}

// ArtifactStore persists report artifacts (JSON documents) keyed by report
// identifier. Implementations should be thread-safe. Short method names
// mirror the store interfaces for consistency.
type ArtifactStore interface {
	Save(reportID, artifactID string, data []byte) error
	Get(reportID, artifactID string) ([]byte, error)
	List(reportID string) ([]string, error)
	Delete(reportID, artifactID string) error
	// Purge removes every artifact of the report. Purging an unknown report
	// is a no-op; failed runs use this to leave no partial report behind.
	Purge(reportID string) error
}
