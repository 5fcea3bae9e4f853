// Package stage implements the pipeline's processing stages: verification,
// ingestion, narrative writing, enrichment, categorization, and tips/alerts
// synthesis. The stages form a closed set of typed structs dispatched by the
// orchestrator in a fixed order; there is no open-ended stage registry.
//
// Stages return taxonomy-classified errors (core.StageError) so the
// orchestrator's retry policy can tell recoverable failures from content
// rejections and caller errors.
package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/telcowatch/telcowatch/core"
	"github.com/telcowatch/telcowatch/model"
)

// classifyModelErr maps a model call failure onto the taxonomy. Errors that
// already carry a kind pass through; everything else counts as a recoverable
// provider timeout so the shared retry policy applies.
func classifyModelErr(stage string, stream core.Stream, err error) error {
	var se *core.StageError
	if errors.As(err, &se) {
		return err
	}
	return core.NewStageError(core.KindProviderTimeout, stage, stream, err)
}

// generateJSON runs a non-streaming generation and unmarshals the response
// into out, tolerating markdown code fences and leading prose around the
// JSON payload.
func generateJSON(ctx context.Context, m model.Model, stage string, stream core.Stream, instructions, prompt string, out any) error {
	text, err := model.Text(ctx, m, model.Request{
		Instructions: instructions,
		Messages:     []model.Message{{Role: "user", Text: prompt}},
	})
	if err != nil {
		return classifyModelErr(stage, stream, err)
	}
	payload := extractJSON(text)
	if payload == "" {
		return fmt.Errorf("no JSON payload in model response")
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("unmarshal model response: %w", err)
	}
	return nil
}

// extractJSON returns the first top-level JSON object or array embedded in
// text. Models wrap JSON in code fences or explanation prose often enough
// that strict parsing of the raw response is not an option.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if fenced := betweenFences(text); fenced != "" {
		text = fenced
	}
	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return ""
	}
	open := text[start]
	closer := byte(']')
	if open == '{' {
		closer = '}'
	}
	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch ch {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func betweenFences(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return ""
	}
	rest := text[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}
