package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"disruptline/internal/app"
	"disruptline/internal/engine/auth"
)

func authService(a *app.App) auth.Service {
	return auth.Service{Repo: a.Engine.Repo, Now: a.Engine.Now}
}

func userCmd() *cobra.Command {
	c := &cobra.Command{Use: "user", Short: "Manage users who can own cases"}
	c.AddCommand(userAddCmd())
	c.AddCommand(userListCmd())
	return c
}

func userAddCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add <email>",
		Short: "Register a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := authService(a).RegisterUser(ctx, args[0], name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(u)
				}
				fmt.Printf("user %s registered (%s)\n", u.Email, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				users, err := authService(a).ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := newTable(table.Row{"ID", "Email", "Name", "Created"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Email, u.Name, stamp(u.CreatedAt)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func apiKeyCmd() *cobra.Command {
	c := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	c.AddCommand(apiKeyIssueCmd())
	c.AddCommand(apiKeyListCmd())
	return c
}

func apiKeyIssueCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "issue <email>",
		Short: "Issue an API key for a registered user; the key is shown once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				raw, key, err := authService(a).IssueAPIKey(ctx, args[0], name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": raw, "id": key.ID, "actor_id": key.ActorID, "name": key.Name})
				}
				fmt.Println(raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				keys, err := a.Engine.Repo.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				rows := make([]map[string]any, 0, len(keys))
				tw := newTable(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					rows = append(rows, map[string]any{"id": k.ID, "actor_id": k.ActorID, "name": k.Name, "created_at": k.CreatedAt})
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, stamp(k.CreatedAt)})
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor-id", "", "only keys owned by this user id")
	return cmd
}
