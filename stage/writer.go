package stage

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/telcowatch/telcowatch/core"
	"github.com/telcowatch/telcowatch/logging"
	"github.com/telcowatch/telcowatch/model"
)

// NoMaterialDevelopments is the canonical narrative for a stream whose run
// produced no usable fragments. Downstream stages treat it like any other
// narrative text.
const NoMaterialDevelopments = "No material developments were identified for this topic area in the covered period."

// Writer aggregates a stream's fragments into a single narrative. It owns
// entity deduplication: no other stage normalizes or merges entity lists.
type Writer struct {
	model model.Model
	log   logging.Logger
}

// NewWriter constructs the writer stage around the deep reasoning model.
func NewWriter(m model.Model, log logging.Logger) *Writer {
	if log == nil {
		log = logging.NoOpLogger{}
	}
	return &Writer{model: m, log: log}
}

// Run produces the stream narrative. An empty fragment set short-circuits to
// the no-developments narrative without a model call.
func (w *Writer) Run(ctx context.Context, stream core.Stream, fragments []core.Fragment) (core.StreamNarrative, error) {
	if len(fragments) == 0 {
		w.log.Info("no fragments to write", "stream", stream.String())
		return core.StreamNarrative{Stream: stream, Narrative: NoMaterialDevelopments}, nil
	}

	var sb strings.Builder
	for i, f := range fragments {
		fmt.Fprintf(&sb, "Excerpt %d (%s, %s):\n%s\n\n", i+1, f.SourceName, f.SourceURL, f.Text)
	}

	start := time.Now()
	prompt := fmt.Sprintf(writerPromptTemplate, stream, len(fragments), sb.String())
	text, err := model.Text(ctx, w.model, model.Request{
		Instructions: writerInstructions,
		Messages:     []model.Message{{Role: "user", Text: prompt}},
	})
	if err != nil {
		return core.StreamNarrative{}, classifyModelErr("writer", stream, err)
	}
	w.log.Info("narrative written",
		"stream", stream.String(), "fragments", len(fragments), "duration", time.Since(start).String())

	return core.StreamNarrative{
		Stream:    stream,
		Narrative: strings.TrimSpace(text),
		Entities:  DedupeEntities(collectEntities(fragments)),
	}, nil
}

func collectEntities(fragments []core.Fragment) []string {
	var all []string
	for _, f := range fragments {
		all = append(all, f.Entities...)
	}
	return all
}

// DedupeEntities merges entity mentions that differ only in case,
// punctuation, or whitespace. The first-seen spelling wins, with runs of
// whitespace collapsed.
func DedupeEntities(entities []string) []string {
	seen := make(map[string]struct{}, len(entities))
	var out []string
	for _, e := range entities {
		display := normalizeWhitespace(e)
		if display == "" {
			continue
		}
		key := entityKey(display)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, display)
	}
	return out
}

// entityKey folds an entity mention to its comparison form: lowercase with
// punctuation and whitespace stripped.
func entityKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
