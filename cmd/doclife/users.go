package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"doclife/internal/app"
	"doclife/internal/domain"
	"doclife/internal/repo"
)

func usersCmd() *cobra.Command {
	u := &cobra.Command{
		Use:   "users",
		Short: "Manage users, their groups and API keys",
		Long:  "Groups map to configured roles (Admin, Partnership Manager, ...). Instance roles such as focal points or the assigned auditor come from the entity itself and need no group.",
	}
	u.AddCommand(usersAddCmd())
	u.AddCommand(usersRemoveGroupCmd())
	u.AddCommand(usersListCmd())
	u.AddCommand(usersShowCmd())
	u.AddCommand(usersKeysCmd())
	return u
}

func usersAddCmd() *cobra.Command {
	var email string
	var groups []string
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Create a user or add groups to an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Repo.UpsertUser(ctx, domain.User{ID: args[0], Email: email, Groups: groups}); err != nil {
					return err
				}
				u, err := a.Repo.GetUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printUser(u)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringArrayVar(&groups, "group", nil, "group membership (repeatable)")
	return cmd
}

func usersRemoveGroupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-group <id> <group>",
		Short: "Remove a user from a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Repo.RemoveGroup(ctx, args[0], args[1]); err != nil {
					return err
				}
				u, err := a.Repo.GetUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printUser(u)
			})
		},
	}
}

func usersListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				users, err := a.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(nonNil(users))
				}
				tw := newTable(table.Row{"ID", "Email", "Groups"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Email, strings.Join(u.Groups, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func usersShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a user and their groups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				u, err := a.Repo.GetUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printUser(u)
			})
		},
	}
}

func printUser(u domain.User) error {
	if viper.GetBool("json") {
		return printJSON(u)
	}
	fmt.Printf("id:     %s\n", u.ID)
	if u.Email != "" {
		fmt.Printf("email:  %s\n", u.Email)
	}
	fmt.Printf("groups: %s\n", strings.Join(u.Groups, ", "))
	return nil
}

func usersKeysCmd() *cobra.Command {
	k := &cobra.Command{Use: "keys", Short: "Manage API keys for the HTTP API"}
	k.AddCommand(usersKeysAddCmd())
	k.AddCommand(usersKeysListCmd())
	k.AddCommand(usersKeysRevokeCmd())
	return k
}

func usersKeysAddCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add <user-id>",
		Short: "Issue an API key; the raw key is printed once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				raw := "dlk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
				key := domain.APIKey{
					ID:      uuid.NewString(),
					UserID:  args[0],
					Name:    name,
					KeyHash: repo.HashAPIKey(raw),
				}
				if err := a.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				a.Logger.WithField("user_id", key.UserID).WithField("key_id", key.ID).Info("api key issued")
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "user_id": key.UserID, "name": name, "key": raw})
				}
				fmt.Printf("key id: %s\napi key: %s\n", key.ID, raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	return cmd
}

func usersKeysListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				keys, err := a.Repo.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable(table.Row{"ID", "User", "Name", "Created"})
				for _, key := range keys {
					tw.AppendRow(table.Row{key.ID, key.UserID, key.Name, key.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "only keys of this user")
	return cmd
}

func usersKeysRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Repo.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	}
}
