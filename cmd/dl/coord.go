package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"disruptline/internal/app"
	"disruptline/internal/coordination"
	"disruptline/internal/domain"
)

func coordCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "coord",
		Short: "Run stakeholder coordination on a case",
		Long:  "Coordination runs in phases: start (identify stakeholders and send outreach), simulate or wait for replies, collect, rca (root-cause synthesis) and execute (run the approved plan).",
	}
	c.AddCommand(coordStartCmd())
	c.AddCommand(coordSimulateCmd())
	c.AddCommand(coordCollectCmd())
	c.AddCommand(coordRCACmd())
	c.AddCommand(coordExecuteCmd())
	return c
}

func coordStartCmd() *cobra.Command {
	var opts coordination.StartOptions
	cmd := &cobra.Command{
		Use:   "start <case-id>",
		Short: "Identify stakeholders and send outreach",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = actor()
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				res, err := a.Orchestrator.StartCoordination(ctx, args[0], opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				renderOutreach(res.Outreach)
				fmt.Printf("%d of %d stakeholders contacted\n", res.Contacted, len(res.Stakeholders))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Summary, "summary", "", "summary sent to stakeholders (defaults to the case description)")
	cmd.Flags().StringVar(&opts.Location, "location", "", "location used for region matching")
	return cmd
}

func coordSimulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate <case-id> <stakeholder> <content>",
		Short: "Record a stakeholder reply as if it arrived on its channel",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ev, err := a.Orchestrator.SimulateResponse(ctx, args[0], args[1], args[2])
				if err != nil {
					return err
				}
				return renderTimeline([]domain.TimelineEvent{ev})
			})
		},
	}
}

func coordCollectCmd() *cobra.Command {
	var expected int
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "collect <case-id>",
		Short: "Wait for stakeholder replies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if expected < 0 {
					expected = a.Orchestrator.ExpectedResponses
				}
				col, err := a.Orchestrator.Collect(ctx, args[0], expected, timeout)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(col)
				}
				tw := newTable(table.Row{"Time", "Stakeholder", "Reliability", "Content"})
				for _, r := range col.Responses {
					tw.AppendRow(table.Row{stamp(r.Timestamp), r.Stakeholder, r.Reliability, truncate(r.Content, 72)})
				}
				tw.Render()
				fmt.Printf("%d of %d expected replies (complete=%t)\n", len(col.Responses), expected, col.Complete)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&expected, "expected", -1, "replies to wait for (defaults to collector.expected_responses)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "how long to wait; 0 reads what has arrived")
	return cmd
}

func coordRCACmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rca <case-id>",
		Short: "Synthesize a root cause from the replies so far",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				out, err := a.Orchestrator.PerformEnhancedRCA(ctx, args[0], actor())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				tw := newTable(table.Row{"Field", "Value"})
				tw.AppendRow(table.Row{"root cause", out.RCA.RootCause})
				tw.AppendRow(table.Row{"confidence", out.RCA.Confidence})
				tw.AppendRow(table.Row{"responsible", out.RCA.ResponsibleParty})
				tw.AppendRow(table.Row{"sources", out.Sources})
				tw.AppendRow(table.Row{"fallback", out.Fallback})
				for i, act := range out.RCA.RecommendedActions {
					tw.AppendRow(table.Row{fmt.Sprintf("action %d", i+1), act.Action})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func coordExecuteCmd() *cobra.Command {
	var planFile string
	cmd := &cobra.Command{
		Use:   "execute <case-id>",
		Short: "Execute an approved action plan read from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := readPlan(planFile)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				results, err := a.Orchestrator.ExecutePlan(ctx, args[0], actor(), plan)
				if err != nil {
					return err
				}
				return renderActionResults(results)
			})
		},
	}
	cmd.Flags().StringVar(&planFile, "plan", "-", "plan file: a JSON array of actions, or {\"actions\": [...]}; - reads stdin")
	return cmd
}

// readPlan accepts either a bare action array or the HTTP request shape.
func readPlan(path string) ([]domain.ActionItem, error) {
	var data []byte
	var err error
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return parsePlan(data)
}

func parsePlan(data []byte) ([]domain.ActionItem, error) {
	var items []domain.ActionItem
	if err := json.Unmarshal(data, &items); err == nil {
		return items, nil
	}
	var wrapped struct {
		Actions []domain.ActionItem `json:"actions"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if wrapped.Actions == nil {
		return nil, fmt.Errorf("parse plan: no actions")
	}
	return wrapped.Actions, nil
}
