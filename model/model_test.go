package model

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextCollectsFinalResponse(t *testing.T) {
	m := NewMockModel("test")
	m.AddResponse("hello", "hi there")

	text, err := Text(context.Background(), m, Request{
		Messages: []Message{{Role: "user", Text: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", text)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.False(t, reqs[0].Stream, "Text forces non-streaming")
}

func TestTextPropagatesError(t *testing.T) {
	m := NewMockModel("test")
	m.SetError(errors.New("backend down"))

	_, err := Text(context.Background(), m, Request{
		Messages: []Message{{Role: "user", Text: "hello"}},
	})
	assert.Error(t, err)
}

func TestMockModelStreaming(t *testing.T) {
	m := NewMockModel("test")
	m.AddResponse("hello", "one two three")

	respCh, errCh := m.Generate(context.Background(), Request{
		Messages: []Message{{Role: "user", Text: "hello"}},
		Stream:   true,
	})

	var sb strings.Builder
	var final string
	for resp := range respCh {
		if resp.Partial {
			sb.WriteString(resp.Text)
			continue
		}
		final = resp.Text
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, "one two three", sb.String())
	assert.Equal(t, "one two three", final)
}

func TestMockModelContainsRules(t *testing.T) {
	m := NewMockModel("test")
	m.AddContains("weather", "sunny")
	m.AddResponse("exact", "exact wins")

	text, err := Text(context.Background(), m, Request{
		Messages: []Message{{Role: "user", Text: "what is the weather like"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "sunny", text)

	text, err = Text(context.Background(), m, Request{
		Messages: []Message{{Role: "user", Text: "exact"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "exact wins", text)
}
