// Package lifecycle holds the per-kind state machines: transition rows with
// their guards and side effects, the on-edit checks run on every write and the
// creation defaults. Rows are data; the registry is built once at startup and
// never changes afterwards.
package lifecycle

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"doclife/internal/config"
	"doclife/internal/domain"
	"doclife/internal/validation"
)

// Transition is one registry row.
type Transition struct {
	Name string
	From []domain.Status
	To   domain.Status
	// Roles granted the transition unless config overrides them.
	Roles []string
	// Payload fields the caller may set as part of the transition.
	Payload []string
	Guards  []Check
	Effects []Effect
}

// Allows reports whether the row may fire from status.
func (t *Transition) Allows(status domain.Status) bool {
	for _, s := range t.From {
		if s == status {
			return true
		}
	}
	return false
}

func (t *Transition) acceptsPayload(field string) bool {
	for _, f := range t.Payload {
		if f == field {
			return true
		}
	}
	return false
}

// Machine binds a kind to its rows.
type Machine struct {
	Kind        domain.Kind
	Transitions []*Transition
	// OnEdit runs on create, update and before every transition commits.
	OnEdit []Check
	// Init sets creation defaults; supplied holds the caller's raw fields.
	Init func(e domain.Entity, supplied map[string]json.RawMessage, actor domain.User)
}

// Authorizer decides whether any of roles may perform action on kind.
type Authorizer interface {
	Allowed(roles []string, kind domain.Kind, action string) (bool, error)
}

type key struct {
	kind domain.Kind
	name string
}

// Registry indexes transition rows by (kind, name).
type Registry struct {
	cfg      *config.Config
	machines map[domain.Kind]*Machine
	rows     map[key]*Transition
}

// Reserved action names shared with the create and delete policy.
var reserved = map[string]bool{"create": true, "delete": true}

// NewRegistry builds the machines, applies role overrides from cfg and checks
// that config only names registered transitions.
func NewRegistry(cfg *config.Config) (*Registry, error) {
	r := &Registry{cfg: cfg, machines: map[domain.Kind]*Machine{}, rows: map[key]*Transition{}}
	for _, m := range []*Machine{agreementMachine(), interventionMachine(), engagementMachine(), monitoringMachine(), actionPointMachine()} {
		if err := r.register(m); err != nil {
			return nil, err
		}
	}
	for kind, rules := range cfg.Transitions {
		for name, rule := range rules {
			t, ok := r.rows[key{domain.Kind(kind), name}]
			if !ok {
				return nil, fmt.Errorf("transitions.%s.%s: no such transition", kind, name)
			}
			t.Roles = append([]string(nil), rule.Roles...)
		}
	}
	for i, n := range cfg.Notifications {
		if n.Transition == "" {
			continue
		}
		if _, ok := r.rows[key{domain.Kind(n.Kind), n.Transition}]; !ok {
			return nil, fmt.Errorf("notifications[%d]: %s has no transition %s", i, n.Kind, n.Transition)
		}
	}
	return r, nil
}

func (r *Registry) register(m *Machine) error {
	if _, ok := r.machines[m.Kind]; ok {
		return fmt.Errorf("machine %s registered twice", m.Kind)
	}
	r.machines[m.Kind] = m
	for _, t := range m.Transitions {
		if reserved[t.Name] {
			return fmt.Errorf("%s: transition name %s is reserved", m.Kind, t.Name)
		}
		k := key{m.Kind, t.Name}
		if _, ok := r.rows[k]; ok {
			return fmt.Errorf("%s: duplicate transition %s", m.Kind, t.Name)
		}
		if !m.Kind.HasStatus(t.To) {
			return fmt.Errorf("%s.%s: unknown target status %s", m.Kind, t.Name, t.To)
		}
		for _, s := range t.From {
			if !m.Kind.HasStatus(s) {
				return fmt.Errorf("%s.%s: unknown source status %s", m.Kind, t.Name, s)
			}
		}
		r.rows[k] = t
	}
	return nil
}

// Lookup returns the row for (kind, name).
func (r *Registry) Lookup(kind domain.Kind, name string) (*Transition, bool) {
	t, ok := r.rows[key{kind, name}]
	return t, ok
}

// Transitions lists a kind's rows in declaration order.
func (r *Registry) Transitions(kind domain.Kind) []*Transition {
	m, ok := r.machines[kind]
	if !ok {
		return nil
	}
	return m.Transitions
}

// From lists the rows that may fire from status.
func (r *Registry) From(kind domain.Kind, status domain.Status) []*Transition {
	var out []*Transition
	for _, t := range r.Transitions(kind) {
		if t.Allows(status) {
			out = append(out, t)
		}
	}
	return out
}

// Init applies the kind's creation defaults.
func (r *Registry) Init(e domain.Entity, supplied map[string]json.RawMessage, actor domain.User) {
	if m, ok := r.machines[e.Kind()]; ok && m.Init != nil {
		m.Init(e, supplied, actor)
	}
}

// CheckEdit runs the struct tag constraints and the kind's on-edit checks
// over gc.Entity, aggregating every field failure. Tag failures are limited to
// touched fields when touched is non-nil. A hard failure stops the run.
func (r *Registry) CheckEdit(gc *Context, touched map[string]bool) (validation.Errors, error) {
	errs := validation.Errors{}
	m, ok := r.machines[gc.Entity.Kind()]
	if !ok {
		return nil, domain.Internal(fmt.Errorf("no machine for %s", gc.Entity.Kind()), "lifecycle lookup failed")
	}
	structErrs, err := validation.Struct(gc.Entity, touched)
	if err != nil {
		return nil, domain.Internal(err, "struct validation")
	}
	errs.Merge(structErrs)
	for _, c := range m.OnEdit {
		ve, err := c.Run(gc)
		if err != nil {
			return nil, err
		}
		errs.Merge(ve)
	}
	return errs, nil
}

// Execute runs the named transition over gc.Entity: lookup, source check,
// permission, payload, guards, status change and effects. On success
// gc.Entity holds the new instance; nothing is persisted here.
func (r *Registry) Execute(gc *Context, name string, auth Authorizer) (*Transition, error) {
	kind := gc.Entity.Kind()
	t, ok := r.Lookup(kind, name)
	if !ok {
		return nil, domain.Errorf(domain.ErrKindUnknownTransition, "%s has no transition %q", kind, name)
	}
	from := gc.Entity.Meta().Status
	if !t.Allows(from) {
		return nil, domain.Errorf(domain.ErrKindIllegalTransition, "%s %s cannot %s from %s", kind, gc.Entity.Meta().ID, name, from)
	}
	allowed, err := auth.Allowed(gc.Roles, kind, name)
	if err != nil {
		return nil, domain.Internal(err, "transition permission")
	}
	if !allowed {
		return nil, domain.Errorf(domain.ErrKindForbidden, "not allowed to %s this %s", name, kind)
	}
	if err := applyPayload(gc, t); err != nil {
		return nil, err
	}

	errs := validation.Errors{}
	for _, g := range t.Guards {
		ve, err := g.Run(gc)
		if err != nil {
			return nil, err
		}
		errs.Merge(ve)
	}
	required, err := validation.RequiredOf(gc.Entity, r.cfg.State(kind, t.To).Required)
	if err != nil {
		return nil, domain.Internal(err, "required fields")
	}
	errs.Merge(required)
	editErrs, err := r.CheckEdit(gc, nil)
	if err != nil {
		return nil, err
	}
	errs.Merge(editErrs)
	if !errs.Empty() {
		return nil, errs.Err()
	}

	gc.Entity.Meta().Status = t.To
	for _, fx := range t.Effects {
		if err := fx.Apply(gc); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func applyPayload(gc *Context, t *Transition) error {
	if len(gc.Payload) == 0 {
		return nil
	}
	errs := validation.Errors{}
	patch := map[string]json.RawMessage{}
	for field, raw := range gc.Payload {
		if !t.acceptsPayload(field) {
			errs.Add(field, "not accepted by "+t.Name)
			continue
		}
		patch[field] = raw
	}
	if !errs.Empty() {
		return errs.Err()
	}
	next, fieldErrs, err := domain.ApplyPatch(gc.Entity, patch)
	if err != nil {
		return domain.Internal(err, "apply payload")
	}
	if len(fieldErrs) > 0 {
		return domain.ValidationFailed(fieldErrs)
	}
	gc.Entity = next
	return nil
}

// Grant loads the transition, create and delete roles into the policy.
func (r *Registry) Grant(p interface {
	Allow(role string, kind domain.Kind, action string) error
}) error {
	for _, kind := range domain.Kinds() {
		for _, t := range r.Transitions(kind) {
			for _, role := range t.Roles {
				if err := p.Allow(role, kind, t.Name); err != nil {
					return err
				}
			}
		}
	}
	for section, table := range map[string]map[string][]string{"create": r.cfg.Create, "delete": r.cfg.Delete} {
		for kind, roles := range table {
			for _, role := range roles {
				if err := p.Allow(role, domain.Kind(kind), section); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Reachable returns the statuses reachable from the kind's initial status.
func (r *Registry) Reachable(kind domain.Kind) []domain.Status {
	seen := map[domain.Status]bool{kind.InitialStatus(): true}
	queue := []domain.Status{kind.InitialStatus()}
	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, t := range r.From(kind, s) {
			if !seen[t.To] {
				seen[t.To] = true
				queue = append(queue, t.To)
			}
		}
	}
	out := make([]domain.Status, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Graph renders the kind's edges in Graphviz dot syntax.
func (r *Registry) Graph(kind domain.Kind) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", kind)
	fmt.Fprintf(&b, "  %q [shape=doublecircle];\n", kind.InitialStatus())
	for _, t := range r.Transitions(kind) {
		for _, from := range t.From {
			fmt.Fprintf(&b, "  %q -> %q [label=%q];\n", from, t.To, t.Name)
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func names(checks []Check) []string {
	out := make([]string, 0, len(checks))
	for _, c := range checks {
		out = append(out, c.Name)
	}
	return out
}

// GuardNames lists the row's guards in run order.
func (t *Transition) GuardNames() []string { return names(t.Guards) }

// EffectNames lists the row's effects in run order.
func (t *Transition) EffectNames() []string {
	out := make([]string, 0, len(t.Effects))
	for _, fx := range t.Effects {
		out = append(out, fx.Name)
	}
	return out
}
