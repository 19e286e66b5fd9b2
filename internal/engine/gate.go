package engine

import (
	"context"
	"encoding/json"

	"doclife/internal/domain"
	"doclife/internal/validation"
)

// gate runs a field patch against the current instance. It returns the
// proposed instance and its diff; an empty diff means nothing changed.
func (e Engine) gate(ctx context.Context, tx Tx, current domain.Entity, patch map[string]json.RawMessage, actor domain.User) (domain.Entity, domain.Diff, error) {
	perms, err := e.Evaluator.Evaluate(actor, current)
	if err != nil {
		return nil, nil, err
	}
	var blocked []string
	for name := range patch {
		if !perms.Edit[name] {
			blocked = append(blocked, name)
		}
	}
	if len(blocked) > 0 {
		return nil, nil, domain.FieldsNotEditable(blocked)
	}

	next, fieldErrs, err := domain.ApplyPatch(current, patch)
	if err != nil {
		return nil, nil, domain.Internal(err, "apply patch")
	}
	if len(fieldErrs) > 0 {
		return nil, nil, domain.ValidationFailed(fieldErrs)
	}
	diff, err := domain.Changes(current, next)
	if err != nil {
		return nil, nil, domain.Internal(err, "diff")
	}
	if len(diff) == 0 {
		return current, diff, nil
	}

	touched := map[string]bool{}
	for _, f := range diff.Fields() {
		touched[f] = true
	}
	errs, err := e.Registry.CheckEdit(e.gc(ctx, tx, next, current, actor), touched)
	if err != nil {
		return nil, nil, err
	}
	rigid, err := validation.RigidOf(current, next, e.Config.State(current.Kind(), current.Meta().Status).Rigid)
	if err != nil {
		return nil, nil, domain.Internal(err, "rigid fields")
	}
	errs.Merge(rigid)
	if !errs.Empty() {
		return nil, nil, errs.Err()
	}
	return next, diff, nil
}
