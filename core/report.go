package core

import "time"

// Candidate is a raw search hit produced by the search provider. Candidates
// are ephemeral: verification consumes them and they are never persisted.
type Candidate struct {
	Title       string    `json:"title"`
	Snippet     string    `json:"snippet"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// Fragment is a cleaned, attributable unit of source content produced by the
// ingestion stage. A Fragment belongs to exactly one stream's run until the
// writer stage consumes it.
type Fragment struct {
	Text       string   `json:"text"`
	SourceURL  string   `json:"source_url"`
	SourceName string   `json:"source_name"`
	Stream     Stream   `json:"stream"`
	Entities   []string `json:"entities"`
}

// StreamNarrative is the writer stage's synthesis of one stream's fragments.
// Entities are deduplicated (case-insensitive, punctuation-normalized) by
// the writer; nothing mutates a narrative after creation.
type StreamNarrative struct {
	Stream    Stream   `json:"stream"`
	Narrative string   `json:"narrative"`
	Entities  []string `json:"entities"`
}

// EnrichmentContext carries fresh context fetched from the answer-synthesis
// provider, produced independently of the fragment path. On provider failure
// it degrades to an empty summary with no citations.
type EnrichmentContext struct {
	Stream    Stream   `json:"stream"`
	Summary   string   `json:"summary"`
	Citations []string `json:"citations"`
}

// Category classifies a report item. Each stream owns exactly one category.
type Category string

const (
	CategoryLegal     Category = "legal"
	CategoryPolitical Category = "political"
	CategoryMarket    Category = "market"
)

// ImpactLevel grades how strongly an item affects telecom stakeholders.
type ImpactLevel string

const (
	ImpactLow      ImpactLevel = "low"
	ImpactMedium   ImpactLevel = "medium"
	ImpactHigh     ImpactLevel = "high"
	ImpactCritical ImpactLevel = "critical"
)

// ValidImpactLevel reports whether s is a member of the impact rubric.
func ValidImpactLevel(s string) bool {
	switch ImpactLevel(s) {
	case ImpactLow, ImpactMedium, ImpactHigh, ImpactCritical:
		return true
	}
	return false
}

// CategorizedItem is the atomic unit inside a DomainReport: one distinct
// development with its category, impact grade and traceable sources. An item
// without at least one source is invalid and must never be emitted.
type CategorizedItem struct {
	Text        string      `json:"text"`
	Category    Category    `json:"category"`
	ImpactLevel ImpactLevel `json:"impact_level"`
	Entities    []string    `json:"entities"`
	Sources     []string    `json:"sources"`
}

// DomainReport is the categorized output for one stream. Immutable once
// produced; a degraded stream yields a report with no items.
type DomainReport struct {
	Stream      Stream            `json:"stream"`
	Items       []CategorizedItem `json:"items"`
	Degraded    bool              `json:"degraded,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// MergedReport is the union of the requested DomainReports for one run. It
// always contains exactly the requested stream keys, even when a stream
// degraded to an empty report.
type MergedReport struct {
	DomainReports map[Stream]DomainReport `json:"domain_reports"`
	MergedAt      time.Time               `json:"merged_at"`
}

// Alert is a severity-ranked warning. AlertLevel (1 lowest, 5 highest) is
// the authoritative severity; slice order carries no meaning.
type Alert struct {
	Text       string `json:"text"`
	AlertLevel int    `json:"alert_level"`
}

// TipsAlerts is the final cross-domain synthesis: tips ranked by insertion
// order and alerts ranked by their level. Degraded marks a run whose advisory
// synthesis failed after retries; the report still persists with empty tips
// and alerts but readers can tell the difference from a quiet period.
type TipsAlerts struct {
	Tips        []string  `json:"tips"`
	Alerts      []Alert   `json:"alerts"`
	Degraded    bool      `json:"degraded,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}
