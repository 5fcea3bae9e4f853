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

func TestWriterEmptyFragmentsSkipsModel(t *testing.T) {
	m := model.NewMockModel("deep")
	w := NewWriter(m, logging.NoOpLogger{})

	narrative, err := w.Run(context.Background(), core.StreamLegal, nil)
	require.NoError(t, err)
	assert.Equal(t, core.StreamLegal, narrative.Stream)
	assert.Equal(t, NoMaterialDevelopments, narrative.Narrative)
	assert.Empty(t, narrative.Entities)
	assert.Empty(t, m.Requests(), "no model call for an empty run")
}

func TestWriterAggregatesAndDedupesEntities(t *testing.T) {
	m := model.NewMockModel("deep")
	m.AddContains("Topic area", "UKE opened proceedings against two operators.")

	w := NewWriter(m, logging.NoOpLogger{})
	fragments := []core.Fragment{
		{Text: "one", SourceURL: "https://telko.in/a", Stream: core.StreamLegal,
			Entities: []string{"UKE", "Orange Polska"}},
		{Text: "two", SourceURL: "https://telko.in/b", Stream: core.StreamLegal,
			Entities: []string{"uke", "Orange  Polska", "orange-polska", "Play"}},
	}
	narrative, err := w.Run(context.Background(), core.StreamLegal, fragments)
	require.NoError(t, err)
	assert.Equal(t, "UKE opened proceedings against two operators.", narrative.Narrative)
	assert.Equal(t, []string{"UKE", "Orange Polska", "Play"}, narrative.Entities)
}

func TestDedupeEntities(t *testing.T) {
	in := []string{"UKE", "U.K.E.", "uke", "Orange  Polska", "Orange Polska", " ", ""}
	assert.Equal(t, []string{"UKE", "Orange Polska"}, DedupeEntities(in))
}
