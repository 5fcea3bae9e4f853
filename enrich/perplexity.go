// Package enrich implements the answer-synthesis provider used by the
// enrichment stage. The provider speaks the OpenAI chat completion wire
// format, so the official client is pointed at its base URL; citations are
// read from the provider's response extension field.
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/telcowatch/telcowatch/core"
	"github.com/telcowatch/telcowatch/logging"
)

const stageName = "enrichment"

// Options configure the synthesis client.
type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Logger  logging.Logger
}

// Client fetches fresh context for a stream from the answer-synthesis API.
// It implements core.SynthesisProvider.
type Client struct {
	client *openai.Client
	model  string
	log    logging.Logger
}

var _ core.SynthesisProvider = (*Client)(nil)

// NewClient constructs a synthesis client.
func NewClient(optFns ...func(o *Options)) *Client {
	opts := Options{
		BaseURL: "https://api.perplexity.ai",
		APIKey:  os.Getenv("PERPLEXITY_API_KEY"),
		Model:   "sonar",
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	client := openai.NewClient(
		option.WithBaseURL(opts.BaseURL),
		option.WithAPIKey(opts.APIKey),
	)
	return &Client{client: &client, model: opts.Model, log: opts.Logger}
}

// NewClientFromOpenAI constructs a synthesis client from an existing client,
// used by tests to point at a local server.
func NewClientFromOpenAI(client *openai.Client, model string, log logging.Logger) *Client {
	if log == nil {
		log = logging.NoOpLogger{}
	}
	return &Client{client: client, model: model, log: log}
}

// Synthesize asks the provider for a current-events summary built from the
// stream's canonical queries. It deliberately does not see ingested
// fragments: the two context paths stay independent so neither can block
// the other.
func (c *Client) Synthesize(ctx context.Context, stream core.Stream, queries []string) (core.EnrichmentContext, error) {
	prompt := fmt.Sprintf(
		"Summarize the most recent developments in Poland's telecommunications market for the %s topic area. "+
			"Focus on: %s. Cover the last days only, cite your sources, and say explicitly if nothing notable happened.",
		stream, strings.Join(queries, "; "),
	)

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return core.EnrichmentContext{}, core.NewStageError(classify(err), stageName, stream, err)
	}
	if len(resp.Choices) == 0 {
		return core.EnrichmentContext{}, core.NewStageError(core.KindProviderTimeout, stageName, stream,
			fmt.Errorf("synthesis provider returned no choices"))
	}

	return core.EnrichmentContext{
		Stream:    stream,
		Summary:   resp.Choices[0].Message.Content,
		Citations: extractCitations(resp.RawJSON()),
	}, nil
}

// classify maps provider errors onto the taxonomy: quota exhaustion gets the
// longer rate-limit backoff, everything else counts as a timeout-class
// recoverable failure. The stage fails open either way.
func classify(err error) core.Kind {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == 429 {
		return core.KindRateLimited
	}
	return core.KindProviderTimeout
}

// extractCitations pulls the provider's non-standard citations field out of
// the raw response. A missing or malformed field yields no citations.
func extractCitations(raw string) []string {
	var extra struct {
		Citations []string `json:"citations"`
	}
	if err := json.Unmarshal([]byte(raw), &extra); err != nil {
		return nil
	}
	return extra.Citations
}
