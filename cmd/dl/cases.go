package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"disruptline/internal/app"
	"disruptline/internal/domain"
	"disruptline/internal/engine"
	"disruptline/internal/repo"
)

func caseCmd() *cobra.Command {
	c := &cobra.Command{Use: "case", Short: "Report and manage disruption cases"}
	c.AddCommand(caseCreateCmd())
	c.AddCommand(caseListCmd())
	c.AddCommand(caseShowCmd())
	c.AddCommand(caseAssignCmd())
	c.AddCommand(caseTransitionCmd())
	c.AddCommand(caseContextCmd())
	c.AddCommand(caseDocumentCmd())
	c.AddCommand(caseEvidenceCmd())
	c.AddCommand(caseTimelineCmd())
	c.AddCommand(caseAuditCmd())
	return c
}

func caseCreateCmd() *cobra.Command {
	var opts engine.CaseCreateOptions
	var carrier, location, vendor, reason string
	var amount, daily float64
	var currency, category string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Report a disruption",
		RunE: func(cmd *cobra.Command, args []string) error {
			if carrier != "" || location != "" || vendor != "" || reason != "" {
				opts.StructuredContext = &domain.StructuredContext{CarrierCode: carrier, LocationCode: location, VendorID: vendor, ReasonCode: reason}
			}
			if category != "" {
				opts.FinancialImpact = &domain.FinancialImpact{Amount: amount, Currency: currency, Category: category, EstimatedDailyIncrease: daily}
			}
			opts.ActorID = actor()
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				c, err := a.Engine.CreateCase(ctx, opts)
				if err != nil {
					return err
				}
				return renderCase(c)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Description, "description", "", "what happened (min 10 characters)")
	cmd.Flags().StringVar(&opts.Disruption.Type, "type", "", "disruption type, e.g. customs_hold")
	cmd.Flags().StringVar(&opts.Disruption.Scope, "scope", "", "affected scope, e.g. shipment")
	cmd.Flags().StringVar(&opts.Disruption.Identifier, "identifier", "", "shipment, container or order id")
	cmd.Flags().StringVar(&opts.Disruption.Source, "source", "", "who reported it")
	cmd.Flags().StringVar(&opts.Disruption.DiscoveredAt, "discovered-at", "", "when it was discovered")
	cmd.Flags().StringVar(&carrier, "carrier", "", "carrier code")
	cmd.Flags().StringVar(&location, "location", "", "location code")
	cmd.Flags().StringVar(&vendor, "vendor", "", "vendor id")
	cmd.Flags().StringVar(&reason, "reason-code", "", "reason code")
	cmd.Flags().Float64Var(&amount, "impact-amount", 0, "financial impact amount")
	cmd.Flags().StringVar(&currency, "impact-currency", "USD", "financial impact currency")
	cmd.Flags().StringVar(&category, "impact-category", "", "demurrage, detention, production_loss or penalty")
	cmd.Flags().Float64Var(&daily, "impact-daily", 0, "estimated daily increase")
	return cmd
}

func caseListCmd() *cobra.Command {
	var f repo.CaseFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cases, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.OwnerEmail = strings.ToLower(strings.TrimSpace(f.OwnerEmail))
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				items, err := a.Engine.ListCases(ctx, f)
				if err != nil {
					return err
				}
				return renderCases(items)
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.OwnerEmail, "owner", "", "decision owner email filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max cases")
	return cmd
}

func caseShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <case-id>",
		Short: "Show one case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				c, err := a.Engine.GetCase(ctx, args[0])
				if err != nil {
					return err
				}
				return renderCase(c)
			})
		},
	}
}

func caseAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign <case-id> <owner-email>",
		Short: "Assign the decision owner; the owner must be a registered user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				c, err := a.Engine.AssignOwner(ctx, args[0], args[1], actor())
				if err != nil {
					return err
				}
				return renderCase(c)
			})
		},
	}
}

func caseTransitionCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "transition <case-id> <status>",
		Short: "Advance the case one status; run with --actor set to the owner",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				c, err := a.Engine.Transition(ctx, args[0], strings.ToUpper(args[1]), actor(), reason)
				if err != nil {
					return err
				}
				return renderCase(c)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the case moved")
	return cmd
}

func caseContextCmd() *cobra.Command {
	var opts engine.ContextOptions
	cmd := &cobra.Command{
		Use:   "context <case-id> <content>",
		Short: "Add context to the timeline",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.CaseID = args[0]
			opts.Content = args[1]
			opts.ActorID = actor()
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				ev, err := a.Engine.AddContext(ctx, opts)
				if err != nil {
					return err
				}
				return renderTimeline([]domain.TimelineEvent{ev})
			})
		},
	}
	cmd.Flags().StringVar(&opts.SourceType, "source-type", domain.SourceText, "text or voice")
	cmd.Flags().StringVar(&opts.Reliability, "reliability", "", "low, medium or high")
	return cmd
}

func caseDocumentCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "document <case-id> <name>",
		Short: "Record a supporting document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				doc, err := a.Engine.AddDocument(ctx, args[0], actor(), args[1], kind)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(doc)
				}
				fmt.Printf("document %s recorded on %s\n", doc.ID, doc.CaseID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "document kind, e.g. bill_of_lading")
	return cmd
}

func caseEvidenceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evidence <case-id>",
		Short: "Recompute the evidence completeness score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				score, err := a.Engine.RecomputeEvidence(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(score)
				}
				fmt.Printf("score %d%%\n", score.Score)
				if len(score.Missing) > 0 {
					fmt.Printf("missing: %s\n", strings.Join(score.Missing, ", "))
				}
				return nil
			})
		},
	}
}

func caseTimelineCmd() *cobra.Command {
	var limit int
	var action string
	cmd := &cobra.Command{
		Use:   "timeline <case-id>",
		Short: "Show the case timeline, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.Engine.GetCase(ctx, args[0]); err != nil {
					return err
				}
				f := repo.TimelineFilters{CaseID: args[0], Limit: limit}
				if action != "" {
					f.Actions = []string{strings.ToUpper(action)}
				}
				items, err := a.Engine.Repo.ListTimelineEvents(ctx, f)
				if err != nil {
					return err
				}
				return renderTimeline(items)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "max events")
	cmd.Flags().StringVar(&action, "action", "", "only this action, e.g. STAKEHOLDER_RESPONSE")
	return cmd
}

func caseAuditCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit <case-id>...",
		Short: "Audit trail for one or more cases, newest first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				entries, err := a.Engine.Audit(ctx, args, limit)
				if err != nil {
					return err
				}
				return renderAudit(entries)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "max entries")
	return cmd
}
