// Package chat routes conversational requests between the low-latency
// workforce model and the high-capability strategist model, streaming the
// chosen model's output chunk by chunk.
package chat

import (
	"context"
	"strings"

	"github.com/telcowatch/telcowatch/logging"
	"github.com/telcowatch/telcowatch/model"
)

// Route names the model tier a message was dispatched to.
type Route string

const (
	// RouteWorkforce is the low-latency default tier.
	RouteWorkforce Route = "workforce"
	// RouteStrategist is the deep reasoning tier for strategic questions.
	RouteStrategist Route = "strategist"
)

const chatInstructions = `You are a telecommunications market assistant for a Polish mobile operator.
You answer questions about the Polish telecom market (operators Play, Orange,
T-Mobile and Plus; regulators UKE and UOKiK), drawing on recent intelligence
reports when the user references them. Be concise and concrete.`

// SupervisorOptions configure routing.
type SupervisorOptions struct {
	// StrategicKeywords force the strategist tier when any of them appears
	// in the message (case-insensitive).
	StrategicKeywords []string
	// DeepLengthThreshold routes messages of at least this many runes to the
	// strategist tier. Zero disables length-based routing.
	DeepLengthThreshold int
	Logger              logging.Logger
}

// Supervisor dispatches chat messages to a model tier. Routing is a cheap
// heuristic, not a model call: strategic keywords or long messages go deep,
// everything else goes to the workforce tier. A strategist failure before the
// first chunk falls back to the workforce model rather than failing the chat.
type Supervisor struct {
	workforce  model.Model
	strategist model.Model
	opts       SupervisorOptions
}

// NewSupervisor constructs a Supervisor over the two model tiers.
func NewSupervisor(workforce, strategist model.Model, optFns ...func(o *SupervisorOptions)) *Supervisor {
	opts := SupervisorOptions{
		StrategicKeywords:   DefaultStrategicKeywords(),
		DeepLengthThreshold: 400,
		Logger:              logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Supervisor{workforce: workforce, strategist: strategist, opts: opts}
}

// DefaultStrategicKeywords returns the built-in strategist trigger terms.
func DefaultStrategicKeywords() []string {
	return []string{
		"strategy", "strategia", "forecast", "prognoza", "scenario",
		"long-term", "długoterminow", "acquisition", "przejęcie",
		"investment", "inwestycj", "risk analysis", "analiza ryzyka",
	}
}

// Route decides the tier for a message without dispatching it.
func (s *Supervisor) Route(message string) Route {
	lower := strings.ToLower(message)
	for _, kw := range s.opts.StrategicKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return RouteStrategist
		}
	}
	if t := s.opts.DeepLengthThreshold; t > 0 && len([]rune(message)) >= t {
		return RouteStrategist
	}
	return RouteWorkforce
}

// Stream dispatches the conversation and returns the taken route plus a
// channel of text chunks. The chunk channel closes when the answer is
// complete; the error channel then carries at most one error.
func (s *Supervisor) Stream(ctx context.Context, messages []model.Message) (Route, <-chan string, <-chan error) {
	route := RouteWorkforce
	if len(messages) > 0 {
		route = s.Route(messages[len(messages)-1].Text)
	}

	out := make(chan string, 16)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)

		m := s.workforce
		if route == RouteStrategist {
			m = s.strategist
		}
		emitted, err := s.pipe(ctx, m, messages, out)
		if err == nil {
			return
		}
		if route == RouteStrategist && !emitted && ctx.Err() == nil {
			s.opts.Logger.Warn("strategist failed, falling back to workforce",
				"error", err.Error())
			if _, err = s.pipe(ctx, s.workforce, messages, out); err == nil {
				return
			}
		}
		errCh <- err
	}()
	return route, out, errCh
}

// pipe streams one model's chunks into out. It reports whether any chunk was
// forwarded, so the caller never falls back mid-answer.
func (s *Supervisor) pipe(ctx context.Context, m model.Model, messages []model.Message, out chan<- string) (bool, error) {
	respCh, errCh := m.Generate(ctx, model.Request{
		Instructions: chatInstructions,
		Messages:     messages,
		Stream:       true,
	})
	emitted := false
	for resp := range respCh {
		if !resp.Partial {
			continue
		}
		select {
		case <-ctx.Done():
			return emitted, ctx.Err()
		case out <- resp.Text:
			emitted = true
		}
	}
	return emitted, <-errCh
}
