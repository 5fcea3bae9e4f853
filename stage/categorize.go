package stage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/telcowatch/telcowatch/core"
	"github.com/telcowatch/telcowatch/logging"
	"github.com/telcowatch/telcowatch/model"
)

// Categorizer splits a stream narrative into discrete, graded report items.
// It enforces the report invariants the model cannot be trusted with: every
// item carries the stream's own category, a valid impact level, and at least
// one source.
type Categorizer struct {
	model model.Model
	log   logging.Logger
}

// NewCategorizer constructs the categorization stage around the deep
// reasoning model.
func NewCategorizer(m model.Model, log logging.Logger) *Categorizer {
	if log == nil {
		log = logging.NoOpLogger{}
	}
	return &Categorizer{model: m, log: log}
}

type rawItem struct {
	Text        string   `json:"text"`
	Category    string   `json:"category"`
	ImpactLevel string   `json:"impact_level"`
	Entities    []string `json:"entities"`
	Sources     []string `json:"sources"`
}

// Run produces the stream's DomainReport. Fragments and enrichment are
// independent inputs and either alone is enough material to categorize; only
// a run with neither yields an empty report without a model call, so the
// merged report always has the requested keys.
func (c *Categorizer) Run(ctx context.Context, narrative core.StreamNarrative, enrichment core.EnrichmentContext, fragments []core.Fragment) (core.DomainReport, error) {
	report := core.DomainReport{
		Stream:      narrative.Stream,
		GeneratedAt: time.Now().UTC(),
	}
	hasEnrichment := strings.TrimSpace(enrichment.Summary) != "" || len(enrichment.Citations) > 0
	if len(fragments) == 0 && !hasEnrichment {
		c.log.Info("nothing to categorize", "stream", narrative.Stream.String())
		return report, nil
	}

	// Items may cite fragment URLs or enrichment citations; both pools go to
	// the model.
	var urls []string
	for _, f := range fragments {
		urls = append(urls, f.SourceURL)
	}
	urls = append(urls, enrichment.Citations...)
	extra := enrichment.Summary
	if extra == "" {
		extra = "(none)"
	}

	category := narrative.Stream.Category()
	prompt := fmt.Sprintf(categorizePromptTemplate,
		narrative.Stream, string(category), narrative.Narrative, extra,
		strings.Join(urls, "\n"), string(category))

	var raw []rawItem
	if err := generateJSON(ctx, c.model, "categorization", narrative.Stream, categorizeInstructions, prompt, &raw); err != nil {
		return core.DomainReport{}, classifyModelErr("categorization", narrative.Stream, err)
	}

	for _, r := range raw {
		item, ok := c.validate(narrative.Stream, category, r)
		if !ok {
			continue
		}
		report.Items = append(report.Items, item)
	}
	c.log.Info("categorization completed",
		"stream", narrative.Stream.String(), "raw_items", len(raw), "items", len(report.Items))
	return report, nil
}

// validate drops cross-domain and sourceless items and clamps bad impact
// grades to medium rather than discarding the item.
func (c *Categorizer) validate(stream core.Stream, category core.Category, r rawItem) (core.CategorizedItem, bool) {
	if strings.TrimSpace(r.Text) == "" {
		return core.CategorizedItem{}, false
	}
	if core.Category(r.Category) != category {
		c.log.Debug("cross-domain item dropped",
			"stream", stream.String(), "category", r.Category)
		return core.CategorizedItem{}, false
	}
	sources := nonEmpty(r.Sources)
	if len(sources) == 0 {
		c.log.Debug("sourceless item dropped", "stream", stream.String())
		return core.CategorizedItem{}, false
	}
	impact := r.ImpactLevel
	if !core.ValidImpactLevel(impact) {
		impact = string(core.ImpactMedium)
	}
	return core.CategorizedItem{
		Text:        strings.TrimSpace(r.Text),
		Category:    category,
		ImpactLevel: core.ImpactLevel(impact),
		Entities:    DedupeEntities(r.Entities),
		Sources:     sources,
	}, true
}

func nonEmpty(ss []string) []string {
	var out []string
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
