package evidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"disruptline/internal/domain"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestEmptyCaseScoresZero(t *testing.T) {
	got := Score(domain.Case{ID: "c"}, nil, 0, now)
	assert.Equal(t, 0, got.Score)
	assert.Empty(t, got.Satisfied)
	assert.Equal(t, []string{
		"Record driver/field voice report",
		"Generate transcript",
		"Identify specific speaker/source",
		"Upload Invoice, BL, or Notice",
		"Link valid Counterparty (Carrier/CHA)",
		"Perform Root Cause Analysis",
	}, got.Missing)
	assert.Equal(t, now, got.LastCalculated)
}

func TestFullCaseScoresHundred(t *testing.T) {
	c := domain.Case{
		VoiceTranscript:   "driver says the gate is closed",
		Disruption:        domain.DisruptionDetails{Source: "driver"},
		StructuredContext: &domain.StructuredContext{CarrierCode: "MAEU"},
		RCA:               &domain.RCAResult{Confidence: domain.ConfidenceHigh},
	}
	got := Score(c, nil, 3, now)
	assert.Equal(t, 100, got.Score)
	assert.Empty(t, got.Missing)
	assert.Contains(t, got.Satisfied, "3 Documents secured")
}

func TestVoiceFromTimelineAndAttributionHeuristic(t *testing.T) {
	events := []domain.TimelineEvent{
		{Actor: "ops@example.com", SourceType: domain.SourceVoice},
		{Actor: "system", SourceType: domain.SourceSystem},
	}
	got := Score(domain.Case{}, events, 0, now)
	assert.Equal(t, WeightVoice+WeightTranscript, got.Score)
	assert.Contains(t, got.Missing, "Identify specific speaker/source")

	events = append(events, domain.TimelineEvent{Actor: "Suresh (CHA)", SourceType: domain.SourceText})
	got = Score(domain.Case{}, events, 0, now)
	assert.Equal(t, WeightVoice+WeightTranscript+WeightAttribution, got.Score)
}

func TestLowConfidenceRCAIsAmbiguous(t *testing.T) {
	got := Score(domain.Case{RCA: &domain.RCAResult{Confidence: domain.ConfidenceLow}}, nil, 0, now)
	assert.Contains(t, got.Missing, "Resolve RCA ambiguities")
	assert.NotContains(t, got.Missing, "Perform Root Cause Analysis")
}

func TestReadyAtIsSetOnce(t *testing.T) {
	low := domain.EvidenceScore{Score: 40, LastCalculated: now}
	assert.Nil(t, ReadyAt(nil, low))

	high := domain.EvidenceScore{Score: 85, LastCalculated: now}
	first := ReadyAt(nil, high)
	require.NotNil(t, first)
	assert.Equal(t, now, *first)

	later := domain.EvidenceScore{Score: 90, LastCalculated: now.Add(time.Hour)}
	assert.Same(t, first, ReadyAt(first, low))
	assert.Same(t, first, ReadyAt(first, later))
}
