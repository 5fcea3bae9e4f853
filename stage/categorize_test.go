package stage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telcowatch/telcowatch/core"
	"github.com/telcowatch/telcowatch/logging"
	"github.com/telcowatch/telcowatch/model"
)

func TestCategorizerEnforcesItemInvariants(t *testing.T) {
	m := model.NewMockModel("deep")
	m.AddContains("Narrative", `[
		{"text": "UKE fined an operator", "category": "legal", "impact_level": "high",
		 "entities": ["UKE", "uke"], "sources": ["https://telko.in/a"]},
		{"text": "Quarterly results out", "category": "market", "impact_level": "high",
		 "sources": ["https://telko.in/b"]},
		{"text": "No sources here", "category": "legal", "impact_level": "low", "sources": []},
		{"text": "Bad impact grade", "category": "legal", "impact_level": "severe",
		 "sources": ["https://telko.in/c"]}
	]`)

	c := NewCategorizer(m, logging.NoOpLogger{})
	narrative := core.StreamNarrative{Stream: core.StreamLegal, Narrative: "things happened"}
	fragments := []core.Fragment{{SourceURL: "https://telko.in/a", Stream: core.StreamLegal}}

	report, err := c.Run(context.Background(), narrative, core.EnrichmentContext{}, fragments)
	require.NoError(t, err)
	assert.Equal(t, core.StreamLegal, report.Stream)
	assert.False(t, report.Degraded)
	require.Len(t, report.Items, 2, "cross-domain and sourceless items must be dropped")

	assert.Equal(t, core.CategoryLegal, report.Items[0].Category)
	assert.Equal(t, core.ImpactHigh, report.Items[0].ImpactLevel)
	assert.Equal(t, []string{"UKE"}, report.Items[0].Entities)

	// Unknown impact grades clamp to medium instead of dropping the item.
	assert.Equal(t, core.ImpactMedium, report.Items[1].ImpactLevel)
}

func TestCategorizerEmptyRunSkipsModel(t *testing.T) {
	m := model.NewMockModel("deep")
	c := NewCategorizer(m, logging.NoOpLogger{})

	// No fragments and no enrichment content: nothing to work from.
	narrative := core.StreamNarrative{Stream: core.StreamPolitical, Narrative: NoMaterialDevelopments}
	report, err := c.Run(context.Background(), narrative, core.EnrichmentContext{}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.StreamPolitical, report.Stream)
	assert.Empty(t, report.Items)
	assert.False(t, report.GeneratedAt.IsZero())
	assert.Empty(t, m.Requests())
}

func TestCategorizerRunsOnEnrichmentAlone(t *testing.T) {
	m := model.NewMockModel("deep")
	m.AddContains("Return a JSON array of items", `[
		{"text": "UKE opened the 700 MHz auction", "category": "legal", "impact_level": "high",
		 "entities": ["UKE"], "sources": ["https://uke.gov.pl/auction"]}
	]`)
	c := NewCategorizer(m, logging.NoOpLogger{})

	// Zero fragments but a populated enrichment context still produces a
	// report; the two context paths never gate each other.
	narrative := core.StreamNarrative{Stream: core.StreamLegal, Narrative: NoMaterialDevelopments}
	enrichment := core.EnrichmentContext{
		Stream:    core.StreamLegal,
		Summary:   "UKE announced the 700 MHz spectrum auction schedule.",
		Citations: []string{"https://uke.gov.pl/auction"},
	}

	report, err := c.Run(context.Background(), narrative, enrichment, nil)
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, []string{"https://uke.gov.pl/auction"}, report.Items[0].Sources)

	// The citation is offered to the model as a usable source URL.
	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Messages[0].Text, "https://uke.gov.pl/auction")
	assert.Contains(t, reqs[0].Messages[0].Text, enrichment.Summary)
}
