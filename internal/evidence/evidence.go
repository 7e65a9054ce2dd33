// Package evidence scores how audit-ready a case's collected proof is.
package evidence

import (
	"fmt"
	"strings"
	"time"

	"disruptline/internal/domain"
)

// ReadyThreshold is the score at which a case is first marked evidence ready.
const ReadyThreshold = 70

const maxScore = 100

// Criterion weights.
const (
	WeightVoice        = 30
	WeightTranscript   = 10
	WeightAttribution  = 15
	WeightDocuments    = 20
	WeightCounterparty = 15
	WeightRCA          = 10
)

// Score computes the weighted completeness checklist. It never fails:
// absent data fails its criterion and is reported as missing.
func Score(c domain.Case, events []domain.TimelineEvent, documentCount int, now time.Time) domain.EvidenceScore {
	res := domain.EvidenceScore{
		Satisfied:      []string{},
		Missing:        []string{},
		LastCalculated: now.UTC(),
	}
	check := func(ok bool, weight int, satisfied, missing string) {
		if ok {
			res.Score += weight
			res.Satisfied = append(res.Satisfied, satisfied)
			return
		}
		res.Missing = append(res.Missing, missing)
	}

	voice := hasVoice(c, events)
	check(voice, WeightVoice, "Voice report captured", "Record driver/field voice report")
	// a voice report is transcribed and timestamped on capture
	check(voice, WeightTranscript, "Transcript timestamped", "Generate transcript")
	check(hasAttribution(c, events), WeightAttribution, "Source/Speaker attributed", "Identify specific speaker/source")
	check(documentCount > 0, WeightDocuments, fmt.Sprintf("%d Documents secured", documentCount), "Upload Invoice, BL, or Notice")
	check(hasCounterparty(c), WeightCounterparty, "Counterparty identified", "Link valid Counterparty (Carrier/CHA)")

	missingRCA := "Perform Root Cause Analysis"
	if c.RCA != nil {
		missingRCA = "Resolve RCA ambiguities"
	}
	check(c.RCA != nil && c.RCA.Confidence == domain.ConfidenceHigh, WeightRCA, "RCA consistent", missingRCA)

	if res.Score > maxScore {
		res.Score = maxScore
	}
	return res
}

// ReadyAt returns the evidence-ready marker after a recomputation. An
// already set marker is returned unchanged.
func ReadyAt(current *time.Time, score domain.EvidenceScore) *time.Time {
	if current != nil {
		return current
	}
	if score.Score >= ReadyThreshold {
		t := score.LastCalculated
		return &t
	}
	return nil
}

func hasVoice(c domain.Case, events []domain.TimelineEvent) bool {
	if strings.TrimSpace(c.VoiceTranscript) != "" {
		return true
	}
	for _, ev := range events {
		if ev.SourceType == domain.SourceVoice {
			return true
		}
	}
	return false
}

// hasAttribution treats an actor that looks like an email address, or a
// generic system identity, as unattributed.
func hasAttribution(c domain.Case, events []domain.TimelineEvent) bool {
	if strings.TrimSpace(c.Disruption.Source) != "" {
		return true
	}
	for _, ev := range events {
		if namedActor(ev.Actor) {
			return true
		}
	}
	return false
}

func namedActor(actor string) bool {
	actor = strings.TrimSpace(actor)
	if actor == "" || strings.Contains(actor, "@") {
		return false
	}
	switch strings.ToLower(actor) {
	case "system", "unknown":
		return false
	}
	return true
}

func hasCounterparty(c domain.Case) bool {
	if len(c.Stakeholders) > 0 {
		return true
	}
	if c.StructuredContext == nil {
		return false
	}
	return c.StructuredContext.CarrierCode != "" || c.StructuredContext.VendorID != ""
}
