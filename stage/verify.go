package stage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/telcowatch/telcowatch/core"
	"github.com/telcowatch/telcowatch/logging"
	"github.com/telcowatch/telcowatch/model"
)

const verifyBatchSize = 10

// Verifier judges topical fit of search candidates against a stream using
// the low-cost model. It is best-effort filtering, not a correctness gate:
// a false negative loses one item, a false positive is caught by ingestion's
// stricter content checks.
type Verifier struct {
	model       model.Model
	maxParallel int
	log         logging.Logger
}

// NewVerifier constructs the verification stage. maxParallel bounds
// concurrent judge calls; values below 1 mean serial execution.
func NewVerifier(m model.Model, maxParallel int, log logging.Logger) *Verifier {
	if maxParallel < 1 {
		maxParallel = 1
	}
	if log == nil {
		log = logging.NoOpLogger{}
	}
	return &Verifier{model: m, maxParallel: maxParallel, log: log}
}

type verdict struct {
	URL    string `json:"url"`
	Accept bool   `json:"accept"`
	Reason string `json:"reason"`
}

// Run returns the candidates the judge accepted for the stream, preserving
// input order. Candidates are judged in small batches with bounded
// parallelism; a failed batch fails the stage so the orchestrator's retry
// policy can decide what to do.
func (v *Verifier) Run(ctx context.Context, stream core.Stream, candidates []core.Candidate) ([]core.Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	accepted := make([]bool, len(candidates))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.maxParallel)

	for start := 0; start < len(candidates); start += verifyBatchSize {
		end := min(start+verifyBatchSize, len(candidates))
		start := start
		batch := candidates[start:end]
		g.Go(func() error {
			verdicts, err := v.judgeBatch(gctx, stream, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for i, vd := range verdicts {
				if i >= len(batch) {
					break
				}
				accepted[start+i] = vd.Accept
				if !vd.Accept {
					v.log.Debug("candidate rejected",
						"stream", stream.String(), "url", batch[i].URL, "reason", vd.Reason)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []core.Candidate
	for i, c := range candidates {
		if accepted[i] {
			out = append(out, c)
		}
	}
	v.log.Info("verification completed",
		"stream", stream.String(), "candidates", len(candidates), "accepted", len(out))
	return out, nil
}

func (v *Verifier) judgeBatch(ctx context.Context, stream core.Stream, batch []core.Candidate) ([]verdict, error) {
	var sb strings.Builder
	for i, c := range batch {
		fmt.Fprintf(&sb, "Hit %d:\nTitle: %s\nSnippet: %s\nURL: %s\nSource: %s\n\n",
			i+1, c.Title, c.Snippet, c.URL, c.Source)
	}

	var verdicts []verdict
	prompt := fmt.Sprintf(verifyPromptTemplate, stream, sb.String())
	if err := generateJSON(ctx, v.model, "verification", stream, verifyInstructions, prompt, &verdicts); err != nil {
		return nil, classifyModelErr("verification", stream, err)
	}

	// The judge sometimes answers by URL rather than by position; realign
	// when the URLs match up.
	byURL := make(map[string]verdict, len(verdicts))
	for _, vd := range verdicts {
		byURL[vd.URL] = vd
	}
	aligned := make([]verdict, len(batch))
	for i, c := range batch {
		if vd, ok := byURL[c.URL]; ok {
			aligned[i] = vd
			continue
		}
		if i < len(verdicts) {
			aligned[i] = verdicts[i]
		}
	}
	return aligned, nil
}
