package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/telcowatch/telcowatch/core"
	"github.com/telcowatch/telcowatch/logging"
	"github.com/telcowatch/telcowatch/model"
)

// Synthesizer produces the final cross-domain tips and alerts from the
// merged report. It runs exactly once per pipeline run, over all requested
// streams together.
type Synthesizer struct {
	model model.Model
	log   logging.Logger
}

// NewSynthesizer constructs the tips/alerts stage around the deep reasoning
// model.
func NewSynthesizer(m model.Model, log logging.Logger) *Synthesizer {
	if log == nil {
		log = logging.NoOpLogger{}
	}
	return &Synthesizer{model: m, log: log}
}

// Run synthesizes tips and alerts from the merged report. A merged report
// with no items at all short-circuits to an empty result.
func (s *Synthesizer) Run(ctx context.Context, merged core.MergedReport) (core.TipsAlerts, error) {
	result := core.TipsAlerts{GeneratedAt: time.Now().UTC()}

	total := 0
	for _, dr := range merged.DomainReports {
		total += len(dr.Items)
	}
	if total == 0 {
		s.log.Info("no report items, skipping tips/alerts synthesis")
		return result, nil
	}

	payload, err := json.MarshalIndent(merged.DomainReports, "", "  ")
	if err != nil {
		return core.TipsAlerts{}, fmt.Errorf("marshal merged report: %w", err)
	}

	var raw struct {
		Tips   []string `json:"tips"`
		Alerts []struct {
			Text       string `json:"text"`
			AlertLevel int    `json:"alert_level"`
		} `json:"alerts"`
	}
	prompt := fmt.Sprintf(tipsAlertsPromptTemplate, string(payload))
	if err := generateJSON(ctx, s.model, "tips-alerts", "", tipsAlertsInstructions, prompt, &raw); err != nil {
		return core.TipsAlerts{}, classifyModelErr("tips-alerts", "", err)
	}

	result.Tips = nonEmpty(raw.Tips)
	for _, a := range raw.Alerts {
		text := strings.TrimSpace(a.Text)
		if text == "" {
			continue
		}
		result.Alerts = append(result.Alerts, core.Alert{Text: text, AlertLevel: clampLevel(a.AlertLevel)})
	}
	result.Alerts = enforceSeverityOrder(result.Alerts)

	s.log.Info("tips/alerts synthesized",
		"tips", len(result.Tips), "alerts", len(result.Alerts))
	return result, nil
}

func clampLevel(n int) int {
	if n < 1 {
		return 1
	}
	if n > 5 {
		return 5
	}
	return n
}

// alertClass ranks the concern an alert speaks to. Compliance deadlines
// outrank regulatory risk, which outranks competitive pressure.
func alertClass(text string) int {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "compliance", "deadline", "termin", "obowiązek"):
		return 3
	case containsAny(lower, "regulat", "uke", "uokik", "kara", "fine", "penalty", "law", "ustawa"):
		return 2
	case containsAny(lower, "competit", "konkurencj", "market share", "pricing", "price war"):
		return 1
	}
	return 0
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// enforceSeverityOrder raises alert levels so that no compliance alert sits
// below a regulatory one and no regulatory alert sits below a competitive
// one. Levels are only ever raised, never lowered.
func enforceSeverityOrder(alerts []core.Alert) []core.Alert {
	maxBelow := make(map[int]int)
	for _, a := range alerts {
		cls := alertClass(a.Text)
		if a.AlertLevel > maxBelow[cls] {
			maxBelow[cls] = a.AlertLevel
		}
	}
	// Floor for a class is the highest level seen in any strictly lower class.
	floor := make(map[int]int)
	for cls := 1; cls <= 3; cls++ {
		f := floor[cls-1]
		if maxBelow[cls-1] > f {
			f = maxBelow[cls-1]
		}
		floor[cls] = f
	}
	out := make([]core.Alert, len(alerts))
	for i, a := range alerts {
		cls := alertClass(a.Text)
		if f := floor[cls]; a.AlertLevel < f {
			a.AlertLevel = clampLevel(f)
		}
		out[i] = a
	}
	return out
}
