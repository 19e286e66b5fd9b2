package permissions

import (
	"fmt"

	"doclife/internal/config"
	"doclife/internal/domain"
)

type perm struct {
	view bool
	edit bool
}

// row is one (kind, status, role) entry with its wildcard resolved.
type row struct {
	fields map[string]perm
	def    perm
}

func (r row) lookup(field string) perm {
	if p, ok := r.fields[field]; ok {
		return p
	}
	return r.def
}

// Matrix is the compiled, read-only form of config.Matrix.
type Matrix struct {
	rows  map[domain.Kind]map[domain.Status]map[string]row
	court map[domain.Kind]config.CourtRule
	sides map[string]string
}

// Compile expands status wildcards so each (kind, status, role) query is a
// direct map lookup.
func Compile(cfg *config.Config) (*Matrix, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	m := &Matrix{
		rows:  map[domain.Kind]map[domain.Status]map[string]row{},
		court: map[domain.Kind]config.CourtRule{},
		sides: map[string]string{},
	}
	for _, k := range domain.Kinds() {
		statuses, ok := cfg.Matrix[string(k)]
		if !ok {
			return nil, fmt.Errorf("matrix for %s missing", k)
		}
		byStatus := map[domain.Status]map[string]row{}
		for _, s := range k.Statuses() {
			explicit, hasExplicit := statuses[string(s)]
			fallback, hasFallback := statuses[config.Wildcard]
			if !hasExplicit && !hasFallback {
				return nil, fmt.Errorf("matrix for %s/%s missing", k, s)
			}
			roles := map[string]row{}
			for role, fields := range fallback {
				roles[role] = compileRow(fields)
			}
			for role, fields := range explicit {
				roles[role] = compileRow(fields)
			}
			byStatus[s] = roles
		}
		m.rows[k] = byStatus
	}
	for kind, rule := range cfg.Court {
		m.court[domain.Kind(kind)] = rule
	}
	for role := range cfg.Roles {
		m.sides[role] = cfg.RoleSide(role)
	}
	return m, nil
}

func compileRow(fields map[string]config.Cell) row {
	r := row{fields: map[string]perm{}, def: perm{view: true}}
	for field, cell := range fields {
		p := perm{view: cell.CanView(), edit: cell.CanEdit()}
		if field == config.Wildcard {
			r.def = p
			continue
		}
		r.fields[field] = p
	}
	return r
}

// Has reports whether the matrix knows the (kind, status) pair.
func (m *Matrix) Has(kind domain.Kind, status domain.Status) bool {
	_, ok := m.rows[kind][status]
	return ok
}

// Cell answers the per-role question. ok is false when the role has no row.
func (m *Matrix) Cell(kind domain.Kind, status domain.Status, role, field string) (view, edit, ok bool) {
	r, ok := m.rows[kind][status][role]
	if !ok {
		return false, false, false
	}
	p := r.lookup(field)
	return p.view || p.edit, p.edit, true
}

// Roles lists the roles with a row for the pair.
func (m *Matrix) Roles(kind domain.Kind, status domain.Status) []string {
	var out []string
	for role := range m.rows[kind][status] {
		out = append(out, role)
	}
	return out
}
