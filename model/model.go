// Package model defines the minimal LLM interface the pipeline stages and
// the chat supervisor drive generation through. Two interchangeable backends
// implement it: a low-latency model (model/openai) and a high-capability
// model (model/anthropic). Responses arrive on a channel so the chat-facing
// path can stream tokens while pipeline stages simply collect the final
// response.
package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Message is one turn of role-based text content.
type Message struct {
	Role string `json:"role"` // system, user, assistant
	Text string `json:"text"`
}

// Request captures the normalized model input produced by stages.
type Request struct {
	Instructions string    `json:"instructions"` // System-level instructions
	Messages     []Message `json:"messages"`
	Stream       bool      `json:"stream,omitempty"`
}

// Response is a (partial or final) chunk emitted by a model.
type Response struct {
	Partial      bool   `json:"partial"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", ...
}

// Model is the interface required by stages and the chat supervisor.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Text runs a non-streaming generation and returns the final response text.
// It drains the response channel so implementations can close cleanly.
func Text(ctx context.Context, m Model, req Request) (string, error) {
	req.Stream = false
	respCh, errCh := m.Generate(ctx, req)
	var final string
	for resp := range respCh {
		if !resp.Partial {
			final = resp.Text
		}
	}
	if err := <-errCh; err != nil {
		return "", err
	}
	if strings.TrimSpace(final) == "" {
		return "", fmt.Errorf("model %s returned empty response", m.Info().Name)
	}
	return final, nil
}

// mockRule matches requests by substring of the last message.
type mockRule struct {
	contains string
	response string
}

// MockModel is a lightweight in-memory Model for tests. Responses can be
// registered for an exact last-message text or for a contained substring;
// unmatched requests get a generic echo response.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	rules     []mockRule
	err       error
	requests  []Request
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned completion for an exact input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// AddContains registers a canned completion for any prompt containing substr.
// Rules are checked in registration order after exact matches.
func (m *MockModel) AddContains(substr, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{contains: substr, response: response})
}

// SetError makes every subsequent Generate call fail with err.
func (m *MockModel) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Requests returns a copy of all requests seen so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockModel) lookup(input string) string {
	if resp, ok := m.responses[input]; ok {
		return resp
	}
	for _, r := range m.rules {
		if strings.Contains(input, r.contains) {
			return r.response
		}
	}
	return fmt.Sprintf("Mock response to: %s", input)
}

// Generate implements Model; emits optional streaming chunks then the final
// response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	injected := m.err
	var input string
	if len(req.Messages) > 0 {
		input = req.Messages[len(req.Messages)-1].Text
	}
	full := m.lookup(input)
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if injected != nil {
			errCh <- injected
			return
		}
		if len(req.Messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}
		if req.Stream {
			for _, word := range strings.SplitAfter(full, " ") {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: word}:
				}
			}
		}
		respCh <- Response{Text: full, FinishReason: "stop"}
	}()
	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
