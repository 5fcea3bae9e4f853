package stage

import (
	"context"

	"github.com/telcowatch/telcowatch/core"
	"github.com/telcowatch/telcowatch/logging"
)

// Enricher wraps the answer-synthesis provider and makes it fail-open: any
// provider error degrades to an empty context for the stream instead of
// failing the run.
type Enricher struct {
	provider core.SynthesisProvider
	log      logging.Logger
}

// NewEnricher constructs the enrichment stage. A nil provider disables
// enrichment entirely; every stream then gets an empty context.
func NewEnricher(p core.SynthesisProvider, log logging.Logger) *Enricher {
	if log == nil {
		log = logging.NoOpLogger{}
	}
	return &Enricher{provider: p, log: log}
}

// Run fetches fresh context for the stream from its canonical queries.
func (e *Enricher) Run(ctx context.Context, stream core.Stream, queries []string) core.EnrichmentContext {
	if e.provider == nil {
		return core.EnrichmentContext{Stream: stream}
	}
	ec, err := e.provider.Synthesize(ctx, stream, queries)
	if err != nil {
		e.log.Warn("enrichment degraded to empty context",
			"stream", stream.String(), "kind", string(core.KindOf(err)), "error", err.Error())
		return core.EnrichmentContext{Stream: stream}
	}
	e.log.Info("enrichment completed",
		"stream", stream.String(), "citations", len(ec.Citations))
	return ec
}
