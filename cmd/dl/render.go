package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/viper"

	"disruptline/internal/domain"
)

var stdout io.Writer = os.Stdout

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(stdout)
	tw.AppendHeader(header)
	return tw
}

func renderCases(items []domain.Case) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"ID", "Type", "Identifier", "Status", "Owner", "Evidence", "Updated"})
	for _, c := range items {
		tw.AppendRow(table.Row{c.ID, c.Disruption.Type, c.Disruption.Identifier, c.Status, deref(c.Owner), evidence(c.Evidence), stamp(c.UpdatedAt)})
	}
	tw.Render()
	return nil
}

func renderCase(c domain.Case) error {
	if viper.GetBool("json") {
		return printJSON(c)
	}
	tw := newTable(table.Row{"Field", "Value"})
	tw.AppendRows([]table.Row{
		{"id", c.ID},
		{"status", c.Status},
		{"description", c.Description},
		{"disruption", fmt.Sprintf("%s / %s / %s", c.Disruption.Type, c.Disruption.Scope, c.Disruption.Identifier)},
		{"source", c.Disruption.Source},
		{"owner", deref(c.Owner)},
		{"coordination", c.CoordinationPhase},
		{"evidence", evidence(c.Evidence)},
		{"stakeholders", len(c.Stakeholders)},
		{"updated", stamp(c.UpdatedAt)},
	})
	if c.RCA != nil {
		tw.AppendRow(table.Row{"root cause", c.RCA.RootCause})
		tw.AppendRow(table.Row{"confidence", c.RCA.Confidence})
	}
	tw.Render()
	return nil
}

func renderTimeline(items []domain.TimelineEvent) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"Seq", "Time", "Actor", "Action", "Content"})
	for _, ev := range items {
		tw.AppendRow(table.Row{ev.Seq, stamp(ev.Timestamp), ev.Actor, ev.Action, truncate(ev.Content, 72)})
	}
	tw.Render()
	return nil
}

func renderAudit(items []domain.AuditEntry) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"Time", "Case", "Actor", "Action"})
	for _, a := range items {
		tw.AppendRow(table.Row{stamp(a.Timestamp), a.CaseID, a.Actor, a.Action})
	}
	tw.Render()
	return nil
}

func renderOutreach(items []domain.OutreachResult) {
	tw := newTable(table.Row{"Stakeholder", "Channel", "Status", "Detail"})
	for _, r := range items {
		detail := r.MessageID
		if r.Error != "" {
			detail = r.Error
		} else if r.Reason != "" {
			detail = r.Reason
		}
		tw.AppendRow(table.Row{r.Stakeholder, r.ContactMethod, r.Status, detail})
	}
	tw.Render()
}

func renderActionResults(items []domain.ActionResult) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable(table.Row{"Action", "Type", "Status", "Detail"})
	completed := 0
	for _, r := range items {
		detail := r.Detail
		if r.Error != "" {
			detail = r.Error
		}
		if r.Status == domain.ActionCompleted {
			completed++
		}
		tw.AppendRow(table.Row{r.ActionID, r.Type, r.Status, detail})
	}
	tw.AppendFooter(table.Row{"", "", fmt.Sprintf("%d/%d", completed, len(items)), ""})
	tw.Render()
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func evidence(e *domain.EvidenceScore) string {
	if e == nil {
		return "-"
	}
	return fmt.Sprintf("%d%%", e.Score)
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
