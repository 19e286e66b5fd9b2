package validation

import (
	"encoding/json"

	"doclife/internal/domain"
)

// Required checks that every path is non-empty on the instance.
func Required(fields map[string]json.RawMessage, paths []string) Errors {
	errs := Errors{}
	for _, p := range paths {
		raw, ok := domain.Value(fields, p)
		if !ok || domain.IsEmptyJSON(raw) {
			errs.Add(p, MsgRequired)
		}
	}
	return errs
}

// Rigid checks that no path differs between prior and next.
func Rigid(prior, next map[string]json.RawMessage, paths []string) Errors {
	errs := Errors{}
	for _, p := range paths {
		before, _ := domain.Value(prior, p)
		after, _ := domain.Value(next, p)
		if !domain.SameJSON(before, after) {
			errs.Add(p, MsgImmutable)
		}
	}
	return errs
}

// RequiredOf is Required over an entity.
func RequiredOf(e domain.Entity, paths []string) (Errors, error) {
	fields, err := domain.Fields(e)
	if err != nil {
		return nil, err
	}
	return Required(fields, paths), nil
}

// RigidOf is Rigid over two entity versions.
func RigidOf(prior, next domain.Entity, paths []string) (Errors, error) {
	if len(paths) == 0 {
		return Errors{}, nil
	}
	pf, err := domain.Fields(prior)
	if err != nil {
		return nil, err
	}
	nf, err := domain.Fields(next)
	if err != nil {
		return nil, err
	}
	return Rigid(pf, nf, paths), nil
}
