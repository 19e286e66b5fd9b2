package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"doclife/internal/config"
	"doclife/internal/domain"
	"doclife/internal/validation"
)

// Lookup is the read side of the store a guard may consult. It runs inside
// the caller's transaction.
type Lookup interface {
	Get(ctx context.Context, kind domain.Kind, id string, forUpdate bool) (domain.Entity, error)
	Find(ctx context.Context, q domain.Query) ([]domain.Entity, error)
}

// Context is what guards, effects and on-edit checks see.
type Context struct {
	Ctx      context.Context
	Entity   domain.Entity
	Prior    domain.Entity
	Actor    domain.User
	Roles    []string
	Now      time.Time
	Config   *config.Config
	Lookup   Lookup
	Payload  map[string]json.RawMessage
	// Cascades collects related entities an effect moves along with the
	// working instance. The caller saves them in the same unit of work.
	Cascades []Cascade
}

// Cascade is a status change on a related entity, already locked for update.
type Cascade struct {
	Entity domain.Entity
	To     domain.Status
}

// Today is the clock's calendar day.
func (c *Context) Today() domain.Date {
	return domain.DateOf(c.Now)
}

// Set replaces one top-level field on the working instance.
func (c *Context) Set(field string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return domain.Internal(err, "encode "+field)
	}
	next, fieldErrs, err := domain.ApplyPatch(c.Entity, map[string]json.RawMessage{field: raw})
	if err != nil {
		return domain.Internal(err, "set "+field)
	}
	if len(fieldErrs) > 0 {
		return domain.ValidationFailed(fieldErrs)
	}
	c.Entity = next
	return nil
}

// Present reports whether field holds a non-empty value on the working instance.
func (c *Context) Present(field string) (bool, error) {
	fields, err := domain.Fields(c.Entity)
	if err != nil {
		return false, domain.Internal(err, "read fields")
	}
	raw, ok := fields[field]
	return ok && !domain.IsEmptyJSON(raw), nil
}

// Agreement loads a linked agreement. A missing row yields (nil, nil).
func (c *Context) Agreement(id string) (*domain.Agreement, error) {
	if id == "" || c.Lookup == nil {
		return nil, nil
	}
	e, err := c.Lookup.Get(c.Ctx, domain.KindAgreement, id, false)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	a, ok := e.(*domain.Agreement)
	if !ok {
		return nil, domain.Internal(fmt.Errorf("got %T", e), "load agreement")
	}
	return a, nil
}

// Check is a named predicate. Hard failures (conflict, internal) come back
// as error; field-level failures as Errors.
type Check struct {
	Name string
	Run  func(gc *Context) (validation.Errors, error)
}

// Effect is a named post-guard hook that mutates the working instance.
type Effect struct {
	Name  string
	Apply func(gc *Context) error
}

func typed[T domain.Entity](fn func(gc *Context, e T) (validation.Errors, error)) func(*Context) (validation.Errors, error) {
	return func(gc *Context) (validation.Errors, error) {
		e, ok := gc.Entity.(T)
		if !ok {
			var want T
			return nil, domain.Internal(fmt.Errorf("check expects %T, got %T", want, gc.Entity), "check type mismatch")
		}
		return fn(gc, e)
	}
}

// prior returns the pre-request instance as T, or the zero T on create.
func prior[T domain.Entity](gc *Context) (T, bool) {
	p, ok := gc.Prior.(T)
	return p, ok
}

// present fails with field: required unless the working instance holds a value.
func present(field string) Check {
	return Check{Name: field + " present", Run: func(gc *Context) (validation.Errors, error) {
		errs := validation.Errors{}
		ok, err := gc.Present(field)
		if err != nil {
			return nil, err
		}
		if !ok {
			errs.Add(field, validation.MsgRequired)
		}
		return errs, nil
	}}
}

// supplied fails unless this request's payload carries a non-empty field.
func supplied(field string) Check {
	return Check{Name: field + " supplied", Run: func(gc *Context) (validation.Errors, error) {
		errs := validation.Errors{}
		if raw, ok := gc.Payload[field]; !ok || domain.IsEmptyJSON(raw) {
			errs.Add(field, validation.MsgRequired)
		}
		return errs, nil
	}}
}

func stamp(field string) Effect {
	return Effect{Name: "stamp " + field, Apply: func(gc *Context) error {
		return gc.Set(field, gc.Today())
	}}
}

func setField(field string, v any) Effect {
	return Effect{Name: fmt.Sprintf("set %s=%v", field, v), Apply: func(gc *Context) error {
		return gc.Set(field, v)
	}}
}
