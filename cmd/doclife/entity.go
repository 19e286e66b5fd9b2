package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"doclife/internal/app"
	"doclife/internal/domain"
	"doclife/internal/engine"
)

func entityCmd() *cobra.Command {
	e := &cobra.Command{
		Use:     "entity",
		Aliases: []string{"e"},
		Short:   "Create, read and move documents through their lifecycle",
		Long:    "Every entity command runs as --actor; the actor's groups come from the users table unless --groups is given. Reads return only the fields the actor may view.",
	}
	e.AddCommand(entityCreateCmd())
	e.AddCommand(entityShowCmd())
	e.AddCommand(entityListCmd())
	e.AddCommand(entityUpdateCmd())
	e.AddCommand(entityTransitionCmd())
	e.AddCommand(entityTransitionsCmd())
	e.AddCommand(entityPermissionsCmd())
	e.AddCommand(entityHistoryCmd())
	e.AddCommand(entityDeleteCmd())
	return e
}

func entityCreateCmd() *cobra.Command {
	var data, file string
	cmd := &cobra.Command{
		Use:   "create <kind>",
		Short: "Create an entity from a JSON object of fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(args[0])
			if err != nil {
				return err
			}
			fields, err := readFields(data, file)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor, err := currentActor(ctx, a)
				if err != nil {
					return err
				}
				res, err := a.Engine.Create(ctx, kind, fields, actor)
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	addFieldFlags(cmd, &data, &file)
	return cmd
}

func entityShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <kind> <id>",
		Short: "Show an entity as the actor may see it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor, err := currentActor(ctx, a)
				if err != nil {
					return err
				}
				proj, err := a.Engine.Read(ctx, kind, args[1], actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(proj)
				}
				printProjection(proj)
				return nil
			})
		},
	}
}

func entityListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list <kind>",
		Short: "List entities of a kind, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(args[0])
			if err != nil {
				return err
			}
			if status != "" && !kind.HasStatus(domain.Status(status)) {
				return fmt.Errorf("%s has no status %q", kind, status)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				rows, err := a.Repo.ListEntities(ctx, kind, domain.Status(status), limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := newTable(table.Row{"ID", "Status", "Version", "Updated"})
				for _, r := range rows {
					tw.AppendRow(table.Row{r.ID, r.Status, r.Version, r.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func entityUpdateCmd() *cobra.Command {
	var data, file string
	cmd := &cobra.Command{
		Use:   "update <kind> <id>",
		Short: "Patch entity fields (null clears a field)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(args[0])
			if err != nil {
				return err
			}
			patch, err := readFields(data, file)
			if err != nil {
				return err
			}
			if len(patch) == 0 {
				return fmt.Errorf("nothing to update: pass --data or --file")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor, err := currentActor(ctx, a)
				if err != nil {
					return err
				}
				res, err := a.Engine.Update(ctx, kind, args[1], patch, actor)
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	addFieldFlags(cmd, &data, &file)
	return cmd
}

func entityTransitionCmd() *cobra.Command {
	var payload, patch, expect string
	cmd := &cobra.Command{
		Use:   "transition <kind> <id> <name>",
		Short: "Run a named transition",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(args[0])
			if err != nil {
				return err
			}
			req := engine.TransitionRequest{Kind: kind, ID: args[1], Name: args[2], ExpectedStatus: domain.Status(expect)}
			if req.Payload, err = readFields(payload, ""); err != nil {
				return fmt.Errorf("--payload: %w", err)
			}
			if req.Patch, err = readFields(patch, ""); err != nil {
				return fmt.Errorf("--patch: %w", err)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor, err := currentActor(ctx, a)
				if err != nil {
					return err
				}
				res, err := a.Engine.Transition(ctx, req, actor)
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "transition payload as a JSON object")
	cmd.Flags().StringVar(&patch, "patch", "", "field patch applied before the transition, as a JSON object")
	cmd.Flags().StringVar(&expect, "expect", "", "fail with stale_state unless the entity is in this status")
	return cmd
}

func entityTransitionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transitions <kind> <id>",
		Short: "List transitions the actor may run now",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor, err := currentActor(ctx, a)
				if err != nil {
					return err
				}
				names, err := a.Engine.AvailableTransitions(ctx, kind, args[1], actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"transitions": nonNil(names)})
				}
				if len(names) == 0 {
					fmt.Println("no transitions available")
					return nil
				}
				fmt.Println(strings.Join(names, "\n"))
				return nil
			})
		},
	}
}

func entityPermissionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "permissions <kind> <id>",
		Short: "Show the fields the actor may view and edit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor, err := currentActor(ctx, a)
				if err != nil {
					return err
				}
				perms, err := a.Engine.Permissions(ctx, kind, args[1], actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(perms)
				}
				tw := newTable(table.Row{"Field", "View", "Edit"})
				for _, field := range domain.FieldNames(kind) {
					tw.AppendRow(table.Row{field, mark(perms.View[field]), mark(perms.Edit[field])})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func entityHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <kind> <id>",
		Short: "Show an entity's activity log",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor, err := currentActor(ctx, a)
				if err != nil {
					return err
				}
				acts, err := a.Engine.History(ctx, kind, args[1], actor)
				if err != nil {
					return err
				}
				return printActivities(acts)
			})
		},
	}
}

func entityDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <kind> <id>",
		Short: "Delete an entity still in its initial status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor, err := currentActor(ctx, a)
				if err != nil {
					return err
				}
				if err := a.Engine.Delete(ctx, kind, args[1], actor); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"deleted": args[1]})
				}
				fmt.Printf("deleted %s %s\n", kind, args[1])
				return nil
			})
		},
	}
}

func addFieldFlags(cmd *cobra.Command, data, file *string) {
	cmd.Flags().StringVar(data, "data", "", "fields as a JSON object")
	cmd.Flags().StringVar(file, "file", "", "read fields from a JSON file (- for stdin)")
}

func printResult(res engine.Result) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	printProjection(res.Projection)
	for _, act := range res.Activities {
		line := fmt.Sprintf("activity %s: %s", act.ID, act.Kind)
		if act.Transition != "" {
			line += fmt.Sprintf(" %s (%s -> %s)", act.Transition, act.FromStatus, act.ToStatus)
		}
		if len(act.KeyEvents) > 0 {
			line += " [" + strings.Join(act.KeyEvents, ", ") + "]"
		}
		fmt.Println(line)
	}
	for _, in := range res.Intents {
		fmt.Printf("notify %s -> %s\n", in.Template, strings.Join(in.Recipients, ", "))
	}
	return nil
}

func printProjection(proj engine.Projection) {
	keys := make([]string, 0, len(proj))
	for k := range proj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tw := newTable(table.Row{"Field", "Value"})
	for _, k := range keys {
		tw.AppendRow(table.Row{k, string(proj[k])})
	}
	tw.Render()
}

func printActivities(acts []domain.Activity) error {
	if viper.GetBool("json") {
		return printJSON(nonNil(acts))
	}
	tw := newTable(table.Row{"Seq", "At", "Entity", "Actor", "Kind", "Status", "Changed", "Key events"})
	for _, act := range acts {
		status := ""
		if act.Transition != "" {
			status = fmt.Sprintf("%s -> %s", act.FromStatus, act.ToStatus)
		}
		tw.AppendRow(table.Row{
			act.Seq,
			act.At.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%s/%s", act.EntityKind, act.EntityID),
			act.ActorID,
			act.Kind,
			status,
			strings.Join(act.Diff.Fields(), ", "),
			strings.Join(act.KeyEvents, ", "),
		})
	}
	tw.Render()
	return nil
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "-"
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
