package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"doclife/internal/app"
	"doclife/internal/domain"
	"doclife/internal/repo"
)

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Read the activity log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var kindFlag, id string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (kindFlag == "") != (id == "") {
				return fmt.Errorf("--entity-kind and --entity-id go together")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var acts []domain.Activity
				var err error
				if kindFlag != "" {
					kind, perr := domain.ParseKind(kindFlag)
					if perr != nil {
						return perr
					}
					acts, err = a.Repo.Activities(ctx, kind, id)
					if err == nil && n > 0 && len(acts) > n {
						acts = acts[len(acts)-n:]
					}
				} else {
					acts, err = a.Repo.RecentActivities(ctx, n)
				}
				if err != nil {
					return err
				}
				return printActivities(acts)
			})
		},
	}
	cmd.Flags().IntVarP(&n, "lines", "n", 20, "number of activities")
	cmd.Flags().StringVar(&kindFlag, "entity-kind", "", "only this entity's activities (with --entity-id)")
	cmd.Flags().StringVar(&id, "entity-id", "", "entity id")
	return cmd
}

func outboxCmd() *cobra.Command {
	o := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect queued notification intents",
		Long:  "Intents are committed with the write that produced them and relayed to configured webhooks by 'doclife serve'.",
	}
	o.AddCommand(outboxListCmd())
	return o
}

func outboxListCmd() *cobra.Command {
	var pending bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List intents in enqueue order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				entries, err := a.Repo.Outbox(ctx, pending, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(nonNil(entries))
				}
				tw := newTable(table.Row{"Seq", "Template", "Recipients", "Created", "Attempts", "State"})
				for _, e := range entries {
					tw.AppendRow(table.Row{
						e.Seq,
						e.Intent.Template,
						strings.Join(e.Intent.Recipients, ", "),
						e.CreatedAt,
						e.Attempts,
						outboxState(e),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&pending, "pending", false, "only undelivered intents")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows (0: all)")
	return cmd
}

func outboxState(e repo.OutboxEntry) string {
	switch {
	case e.DeliveredAt != "":
		return "delivered " + e.DeliveredAt
	case e.LastError != "":
		return "failing: " + e.LastError
	default:
		return "pending"
	}
}
