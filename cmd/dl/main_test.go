package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"disruptline/internal/domain"
)

func TestParsePlanAcceptsBothShapes(t *testing.T) {
	bare := `[{"type":"notification","description":"tell the customer"}]`
	items, err := parsePlan([]byte(bare))
	if err != nil || len(items) != 1 || items[0].Type != "notification" {
		t.Fatalf("bare plan: %+v %v", items, err)
	}
	wrapped := `{"actions":[{"type":"system_update","description":"flag the order","system":"erp"},{"type":"task","description":"book a truck"}]}`
	items, err = parsePlan([]byte(wrapped))
	if err != nil || len(items) != 2 || items[0].System != "erp" {
		t.Fatalf("wrapped plan: %+v %v", items, err)
	}
	if _, err := parsePlan([]byte(`{"plan":[]}`)); err == nil {
		t.Fatalf("expected error for a document without actions")
	}
	if _, err := parsePlan([]byte(`not json`)); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTruncateCollapsesWhitespace(t *testing.T) {
	if got := truncate("short  text\nhere", 40); got != "short text here" {
		t.Fatalf("got %q", got)
	}
	got := truncate(strings.Repeat("a", 20), 10)
	if len([]rune(got)) != 10 || !strings.HasSuffix(got, "…") {
		t.Fatalf("got %q", got)
	}
}

func TestRenderCasesTable(t *testing.T) {
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	viper.Set("json", false)

	owner := "ops@example.com"
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	err := renderCases([]domain.Case{{
		ID:         "case-1",
		Disruption: domain.DisruptionDetails{Type: "customs_hold", Identifier: "MSCU1234567"},
		Status:     domain.StatusReported,
		Owner:      &owner,
		Evidence:   &domain.EvidenceScore{Score: 40},
		UpdatedAt:  now,
	}})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"case-1", "customs_hold", "MSCU1234567", "ops@example.com", "40%", "2026-03-01T09:00:00Z"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}
