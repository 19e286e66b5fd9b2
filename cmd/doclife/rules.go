package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"doclife/internal/app"
	"doclife/internal/config"
	"doclife/internal/domain"
	"doclife/internal/lifecycle"
	"doclife/internal/permissions"
)

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect the lifecycle config",
		Long:  "Config is the rulebook: roles, the field permission matrix, court rules, per-status requirements, transition role overrides, notifications, policy knobs and webhooks. It is read from doclife.yml in the workspace when present.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configDefaultCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if viper.GetBool("json") {
					return printJSON(a.Config)
				}
				out, err := yaml.Marshal(a.Config)
				if err != nil {
					return err
				}
				fmt.Print(string(out))
				return nil
			})
		},
	}
}

func configValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file (default: the workspace doclife.yml)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = config.Path(viper.GetString("workspace"))
			}
			_, err := compile(file)
			if viper.GetBool("json") {
				out := map[string]any{"ok": err == nil}
				if err != nil {
					out["error"] = err.Error()
				}
				return printJSON(out)
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "config file")
	return cmd
}

func configDefaultCmd() *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "default",
		Short: "Print the built-in config (or write it to the workspace)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !write {
				fmt.Print(config.GenerateDefault())
				return nil
			}
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "write doclife.yml into the workspace")
	return cmd
}

type compiled struct {
	Config    *config.Config
	Evaluator *permissions.Evaluator
	Registry  *lifecycle.Registry
	Policy    *permissions.Policy
}

// compile loads a config file and builds every structure the engine derives
// from it, so a bad file fails here rather than at serve time.
func compile(file string) (compiled, error) {
	cfg, err := config.FromFile(file)
	if err != nil {
		return compiled{}, err
	}
	return compileConfig(cfg)
}

func compileConfig(cfg *config.Config) (compiled, error) {
	ev, err := permissions.NewEvaluator(cfg)
	if err != nil {
		return compiled{}, err
	}
	reg, err := lifecycle.NewRegistry(cfg)
	if err != nil {
		return compiled{}, err
	}
	pol, err := permissions.NewPolicy(nil)
	if err != nil {
		return compiled{}, err
	}
	if err := reg.Grant(pol); err != nil {
		return compiled{}, err
	}
	return compiled{Config: cfg, Evaluator: ev, Registry: reg, Policy: pol}, nil
}

func effectiveConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

func matrixCmd() *cobra.Command {
	m := &cobra.Command{Use: "matrix", Short: "Inspect the field permission matrix"}
	m.AddCommand(matrixShowCmd())
	m.AddCommand(matrixCheckCmd())
	return m
}

func matrixShowCmd() *cobra.Command {
	var kindFlag, statusFlag string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show view/edit cells for one kind and status",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(kindFlag)
			if err != nil {
				return err
			}
			status := domain.Status(statusFlag)
			if status == "" {
				status = kind.InitialStatus()
			}
			if !kind.HasStatus(status) {
				return fmt.Errorf("%s has no status %q", kind, status)
			}
			cfg, err := effectiveConfig()
			if err != nil {
				return err
			}
			c, err := compileConfig(cfg)
			if err != nil {
				return err
			}
			roles := c.Evaluator.Matrix.Roles(kind, status)
			sort.Strings(roles)
			cells := map[string]map[string]string{}
			for _, field := range domain.FieldNames(kind) {
				cells[field] = map[string]string{}
				for _, role := range roles {
					view, edit, ok := c.Evaluator.Matrix.Cell(kind, status, role, field)
					switch {
					case !ok:
						cells[field][role] = ""
					case edit:
						cells[field][role] = "edit"
					case view:
						cells[field][role] = "view"
					default:
						cells[field][role] = "-"
					}
				}
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"kind": kind, "status": status, "cells": cells})
			}
			header := table.Row{"Field"}
			for _, role := range roles {
				header = append(header, role)
			}
			tw := newTable(header)
			for _, field := range domain.FieldNames(kind) {
				row := table.Row{field}
				for _, role := range roles {
					row = append(row, cells[field][role])
				}
				tw.AppendRow(row)
			}
			tw.SetTitle(fmt.Sprintf("%s / %s", kind, status))
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&kindFlag, "kind", "", "entity kind")
	cmd.Flags().StringVar(&statusFlag, "status", "", "status (default: initial status)")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func matrixCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check the config compiles and every status is covered and reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := effectiveConfig()
			if err != nil {
				return err
			}
			c, err := compileConfig(cfg)
			if err != nil {
				return err
			}
			var problems []string
			for _, kind := range domain.Kinds() {
				reachable := map[domain.Status]bool{}
				for _, s := range c.Registry.Reachable(kind) {
					reachable[s] = true
				}
				for _, s := range kind.Statuses() {
					if !c.Evaluator.Matrix.Has(kind, s) {
						problems = append(problems, fmt.Sprintf("%s/%s: no matrix rows", kind, s))
					}
					if !reachable[s] {
						problems = append(problems, fmt.Sprintf("%s/%s: unreachable from %s", kind, s, kind.InitialStatus()))
					}
				}
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": len(problems) == 0, "problems": problems})
			}
			if len(problems) > 0 {
				return fmt.Errorf("matrix check failed:\n  %s", strings.Join(problems, "\n  "))
			}
			fmt.Println("matrix OK")
			return nil
		},
	}
}

func transitionsCmd() *cobra.Command {
	t := &cobra.Command{Use: "transitions", Short: "Inspect the transition registry"}
	t.AddCommand(transitionsListCmd())
	t.AddCommand(transitionsGraphCmd())
	return t
}

type transitionRow struct {
	Name    string          `json:"name"`
	From    []domain.Status `json:"from"`
	To      domain.Status   `json:"to"`
	Roles   []string        `json:"roles"`
	Payload []string        `json:"payload,omitempty"`
	Guards  []string        `json:"guards"`
	Effects []string        `json:"effects"`
}

func transitionsListCmd() *cobra.Command {
	var kindFlag string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transitions of a kind with roles, guards and effects",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(kindFlag)
			if err != nil {
				return err
			}
			cfg, err := effectiveConfig()
			if err != nil {
				return err
			}
			c, err := compileConfig(cfg)
			if err != nil {
				return err
			}
			rows := []transitionRow{}
			for _, tr := range c.Registry.Transitions(kind) {
				rows = append(rows, transitionRow{
					Name:    tr.Name,
					From:    tr.From,
					To:      tr.To,
					Roles:   c.Policy.RolesFor(kind, tr.Name),
					Payload: tr.Payload,
					Guards:  tr.GuardNames(),
					Effects: tr.EffectNames(),
				})
			}
			if viper.GetBool("json") {
				return printJSON(rows)
			}
			tw := newTable(table.Row{"Name", "From", "To", "Roles", "Guards", "Effects"})
			for _, r := range rows {
				from := make([]string, 0, len(r.From))
				for _, s := range r.From {
					from = append(from, string(s))
				}
				tw.AppendRow(table.Row{
					r.Name,
					strings.Join(from, ", "),
					r.To,
					strings.Join(r.Roles, ", "),
					strings.Join(r.Guards, ", "),
					strings.Join(r.Effects, ", "),
				})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&kindFlag, "kind", "", "entity kind")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}

func transitionsGraphCmd() *cobra.Command {
	var kindFlag string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print a kind's state machine in Graphviz dot syntax",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(kindFlag)
			if err != nil {
				return err
			}
			cfg, err := effectiveConfig()
			if err != nil {
				return err
			}
			c, err := compileConfig(cfg)
			if err != nil {
				return err
			}
			fmt.Print(c.Registry.Graph(kind))
			return nil
		},
	}
	cmd.Flags().StringVar(&kindFlag, "kind", "", "entity kind")
	_ = cmd.MarkFlagRequired("kind")
	return cmd
}
