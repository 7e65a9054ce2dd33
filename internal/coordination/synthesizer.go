package coordination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"disruptline/internal/domain"
	"disruptline/internal/metrics"
	"disruptline/internal/reasoning"
)

const contextTimelineEvents = 5

const rcaInstruction = `You are a root cause analysis engine for logistics disruptions.

You analyze disruptions using data from multiple sources:
- Initial report from the field operator
- Responses from CHAs, port operations and shipping lines
- External system data

Your job:
1. ROOT CAUSE - The fundamental reason (not symptoms), with evidence from stakeholders
2. IMMEDIATE BLOCKER - What is stopping resolution right now
3. RESPONSIBLE PARTY - Who owns fixing this (be specific)
4. CONTRIBUTING FACTORS - What made it worse
5. RECOMMENDED ACTIONS - Specific WHO does WHAT by WHEN
6. ESTIMATED RESOLUTION TIME - Based on similar cases
7. PREVENTIVE MEASURES - How to avoid next time

Rules:
- Cite evidence from stakeholders ("According to CHA...")
- Distinguish root cause from symptoms
- Every action needs an owner, a timeline and a priority

Respond with JSON only:
{
  "root_cause": "...",
  "immediate_blocker": "...",
  "responsible_party": "...",
  "contributing_factors": ["..."],
  "recommended_actions": [
    {"action": "...", "owner": "...", "timeline": "...", "priority": "high/medium/low"}
  ],
  "estimated_resolution_time": "...",
  "preventive_measures": ["..."],
  "evidence_sources": ["CHA", "Port Ops", "API"],
  "confidence": "high/medium/low",
  "similar_cases_reference": "..."
}`

// FallbackRCA is returned whenever synthesis cannot produce a parsed result.
func FallbackRCA() domain.RCAResult {
	return domain.RCAResult{
		RootCause:           "Unable to determine root cause - analysis unavailable",
		ImmediateBlocker:    "Insufficient data",
		ResponsibleParty:    "To be determined",
		ContributingFactors: []string{"Limited stakeholder responses"},
		RecommendedActions: []domain.RecommendedAction{{
			Action:   "Gather more information from stakeholders",
			Owner:    "Manager",
			Timeline: "Immediate",
			Priority: "high",
		}},
		EstimatedResolutionTime: "Unknown",
		PreventiveMeasures:      []string{"Improve data collection"},
		EvidenceSources:         []string{},
		Confidence:              domain.ConfidenceLow,
		SimilarCasesReference:   "N/A",
	}
}

// SynthesisInput is everything known about a case at analysis time.
type SynthesisInput struct {
	Case      domain.Case
	Timeline  []domain.TimelineEvent
	Responses []domain.Response
}

// Synthesizer turns collected evidence into a root-cause result.
type Synthesizer struct {
	Reasoner reasoning.Reasoner
	Logger   *zap.Logger
}

// Synthesize never fails: a missing collaborator, a call error or an
// unparseable answer all yield FallbackRCA with fallback set.
func (s Synthesizer) Synthesize(ctx context.Context, in SynthesisInput) (rca domain.RCAResult, fallback bool) {
	prompt := "Analyze this disruption with data from multiple stakeholders:\n\n" +
		BuildContext(in) +
		"\nProvide comprehensive RCA in JSON format."
	result, err := s.complete(ctx, prompt)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn("root cause synthesis fell back", zap.String("case_id", in.Case.ID), zap.Error(err))
		}
		metrics.RCATotal.WithLabelValues("fallback").Inc()
		return FallbackRCA(), true
	}
	metrics.RCATotal.WithLabelValues("parsed").Inc()
	return result, false
}

func (s Synthesizer) complete(ctx context.Context, prompt string) (domain.RCAResult, error) {
	if s.Reasoner == nil {
		return domain.RCAResult{}, reasoning.ErrDisabled
	}
	var (
		text string
		err  error
	)
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		text, err = s.Reasoner.Complete(ctx, rcaInstruction, prompt)
	}()
	if err != nil {
		return domain.RCAResult{}, domain.ExternalCallError{Collaborator: "reasoning", Err: err}
	}
	return ParseRCA(text)
}

// ParseRCA decodes a collaborator answer, tolerating a Markdown fence.
func ParseRCA(text string) (domain.RCAResult, error) {
	var rca domain.RCAResult
	if err := json.Unmarshal([]byte(reasoning.StripCodeFence(text)), &rca); err != nil {
		return domain.RCAResult{}, fmt.Errorf("parse rca: %w", err)
	}
	if strings.TrimSpace(rca.RootCause) == "" {
		return domain.RCAResult{}, errors.New("parse rca: root_cause missing")
	}
	switch c := strings.ToLower(strings.TrimSpace(rca.Confidence)); c {
	case domain.ConfidenceHigh, domain.ConfidenceMedium, domain.ConfidenceLow:
		rca.Confidence = c
	default:
		rca.Confidence = domain.ConfidenceMedium
	}
	if rca.ContributingFactors == nil {
		rca.ContributingFactors = []string{}
	}
	if rca.RecommendedActions == nil {
		rca.RecommendedActions = []domain.RecommendedAction{}
	}
	return rca, nil
}

// BuildContext renders the analysis prompt body: disruption details, the
// first timeline events and every stakeholder response.
func BuildContext(in SynthesisInput) string {
	d := in.Case.Disruption
	var b strings.Builder
	b.WriteString("DISRUPTION DETAILS:\n")
	fmt.Fprintf(&b, "Type: %s\n", orNA(d.Type))
	fmt.Fprintf(&b, "Location: %s\n", orNA(d.Identifier))
	fmt.Fprintf(&b, "Scope: %s\n", orNA(d.Scope))
	fmt.Fprintf(&b, "Description: %s\n", orNA(in.Case.Description))
	fmt.Fprintf(&b, "Discovered: %s\n", orNA(d.DiscoveredAt))
	fmt.Fprintf(&b, "Source: %s\n", orNA(d.Source))
	if fi := in.Case.FinancialImpact; fi != nil {
		fmt.Fprintf(&b, "Financial impact: %.2f %s (%s)\n", fi.Amount, fi.Currency, fi.Category)
	}
	b.WriteString("\nINITIAL TIMELINE:\n")
	events := in.Timeline
	if len(events) > contextTimelineEvents {
		events = events[:contextTimelineEvents]
	}
	for _, ev := range events {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", ev.Timestamp.Format("2006-01-02T15:04:05Z07:00"), ev.Actor, ev.Content)
	}
	b.WriteString("\nSTAKEHOLDER RESPONSES:\n")
	for _, r := range in.Responses {
		fmt.Fprintf(&b, "\n[%s] (Reliability: %s):\n%s\n", r.Stakeholder, r.Reliability, r.Content)
	}
	return b.String()
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
