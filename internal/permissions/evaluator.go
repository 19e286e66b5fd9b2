package permissions

import (
	"bytes"
	"fmt"
	"sort"

	"doclife/internal/config"
	"doclife/internal/domain"
)

// Permissions is the per-field answer for one user on one instance.
type Permissions struct {
	View map[string]bool `json:"view"`
	Edit map[string]bool `json:"edit"`
}

// Evaluator combines the matrix with role resolution and the court rule.
type Evaluator struct {
	Matrix   *Matrix
	Resolver *Resolver
}

func NewEvaluator(cfg *config.Config) (*Evaluator, error) {
	m, err := Compile(cfg)
	if err != nil {
		return nil, err
	}
	return &Evaluator{Matrix: m, Resolver: NewResolver(cfg)}, nil
}

// Evaluate resolves view and edit for every field of the entity's kind.
func (ev *Evaluator) Evaluate(user domain.User, e domain.Entity) (Permissions, error) {
	return ev.EvaluateRoles(ev.Resolver.Roles(user, e), e)
}

// EvaluateRoles is Evaluate with a precomputed role set.
func (ev *Evaluator) EvaluateRoles(roles []string, e domain.Entity) (Permissions, error) {
	kind := e.Kind()
	status := e.Meta().Status
	if !ev.Matrix.Has(kind, status) {
		return Permissions{}, domain.Internal(fmt.Errorf("no permission rows for %s/%s", kind, status), "permission matrix lookup failed")
	}
	losing, exempt, err := ev.courtLoser(e)
	if err != nil {
		return Permissions{}, err
	}
	out := Permissions{View: map[string]bool{}, Edit: map[string]bool{}}
	for _, field := range domain.FieldNames(kind) {
		if domain.IsSystemField(field) {
			out.View[field] = true
			out.Edit[field] = false
			continue
		}
		var view, edit, matched bool
		for _, role := range roles {
			v, ed, ok := ev.Matrix.Cell(kind, status, role, field)
			if !ok {
				continue
			}
			matched = true
			if ed && losing != "" && ev.Matrix.sides[role] == losing && !exempt[field] {
				ed = false
			}
			view = view || v
			edit = edit || ed
		}
		if !matched {
			view = true
		}
		out.View[field] = view || edit
		out.Edit[field] = edit
	}
	return out, nil
}

// courtLoser returns the side that currently may not edit, if the kind has a court rule.
func (ev *Evaluator) courtLoser(e domain.Entity) (string, map[string]bool, error) {
	rule, ok := ev.Matrix.court[e.Kind()]
	if !ok {
		return "", nil, nil
	}
	fields, err := domain.Fields(e)
	if err != nil {
		return "", nil, domain.Internal(err, "read court flag")
	}
	exempt := map[string]bool{}
	for _, f := range rule.ExemptFields {
		exempt[f] = true
	}
	if bytes.Equal(bytes.TrimSpace(fields[rule.Field]), []byte("true")) {
		return config.SidePartner, exempt, nil
	}
	return config.SideUnicef, exempt, nil
}

func (ev *Evaluator) EditableFields(user domain.User, e domain.Entity) ([]string, error) {
	p, err := ev.Evaluate(user, e)
	if err != nil {
		return nil, err
	}
	return trueKeys(p.Edit), nil
}

func (ev *Evaluator) ViewableFields(user domain.User, e domain.Entity) ([]string, error) {
	p, err := ev.Evaluate(user, e)
	if err != nil {
		return nil, err
	}
	return trueKeys(p.View), nil
}

func trueKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, ok := range m {
		if ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
