package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"doclife/internal/config"
	"doclife/internal/domain"
	"doclife/internal/lifecycle"
	"doclife/internal/notify"
	"doclife/internal/permissions"
)

type Engine struct {
	Store     Store
	Config    *config.Config
	Registry  *lifecycle.Registry
	Evaluator *permissions.Evaluator
	Policy    *permissions.Policy
	Notifier  *notify.Dispatcher
	Logger    *logrus.Entry
	Now       func() time.Time
	NewID     func() string
}

// New compiles the matrix, registry and policy from cfg. The result is
// immutable apart from the store it writes to.
func New(store Store, cfg *config.Config, logger *logrus.Entry) (Engine, error) {
	if cfg == nil {
		return Engine{}, fmt.Errorf("config not loaded")
	}
	if logger == nil {
		logger = logrus.WithField("component", "engine")
	}
	ev, err := permissions.NewEvaluator(cfg)
	if err != nil {
		return Engine{}, err
	}
	reg, err := lifecycle.NewRegistry(cfg)
	if err != nil {
		return Engine{}, err
	}
	pol, err := permissions.NewPolicy(logger.WithField("component", "policy"))
	if err != nil {
		return Engine{}, err
	}
	if err := reg.Grant(pol); err != nil {
		return Engine{}, err
	}
	return Engine{
		Store:     store,
		Config:    cfg,
		Registry:  reg,
		Evaluator: ev,
		Policy:    pol,
		Notifier:  notify.NewDispatcher(cfg),
		Logger:    logger,
		Now:       time.Now,
		NewID:     func() string { return uuid.NewString() },
	}, nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

// Projection is an entity reduced to the fields the caller may view.
type Projection map[string]json.RawMessage

// Result is what a successful write returns.
type Result struct {
	Entity     domain.Entity     `json:"-"`
	Projection Projection        `json:"entity"`
	Activities []domain.Activity `json:"activities"`
	Intents    []domain.Intent   `json:"intents"`
}

// TransitionRequest names a transition and optionally a patch applied first.
type TransitionRequest struct {
	Kind    domain.Kind
	ID      string
	Name    string
	Payload map[string]json.RawMessage
	Patch   map[string]json.RawMessage
	// ExpectedStatus is the status the caller saw; empty means the status
	// read just before the lock.
	ExpectedStatus domain.Status
}

func (e Engine) project(actor domain.User, ent domain.Entity) (Projection, error) {
	visible, err := e.Evaluator.ViewableFields(actor, ent)
	if err != nil {
		return nil, err
	}
	fields, err := domain.Fields(ent)
	if err != nil {
		return nil, domain.Internal(err, "project entity")
	}
	out := Projection{}
	for _, name := range visible {
		if raw, ok := fields[name]; ok {
			out[name] = raw
		}
	}
	return out, nil
}

func (e Engine) gc(ctx context.Context, tx Tx, ent, prior domain.Entity, actor domain.User) *lifecycle.Context {
	return &lifecycle.Context{
		Ctx:    ctx,
		Entity: ent,
		Prior:  prior,
		Actor:  actor,
		Roles:  e.Evaluator.Resolver.Roles(actor, ent),
		Now:    e.now(),
		Config: e.Config,
		Lookup: tx,
	}
}

func checkKind(kind domain.Kind) error {
	if !kind.Valid() {
		return domain.Errorf(domain.ErrKindNotFound, "unknown entity kind %q", kind)
	}
	return nil
}

// Create stores a new entity in its kind's initial status.
func (e Engine) Create(ctx context.Context, kind domain.Kind, fields map[string]json.RawMessage, actor domain.User) (Result, error) {
	if err := checkKind(kind); err != nil {
		return Result{}, err
	}
	ok, err := e.Policy.Allowed(e.Evaluator.Resolver.Roles(actor, nil), kind, permissions.ActionCreate)
	if err != nil {
		return Result{}, domain.Internal(err, "create permission")
	}
	if !ok {
		return Result{}, domain.Errorf(domain.ErrKindForbidden, "not allowed to create %s", kind)
	}
	var blocked []string
	for name := range fields {
		if domain.IsSystemField(name) || !domain.HasField(kind, name) {
			blocked = append(blocked, name)
		}
	}
	if len(blocked) > 0 {
		return Result{}, domain.FieldsNotEditable(blocked)
	}
	ent, fieldErrs, err := domain.ApplyPatch(domain.New(kind), fields)
	if err != nil {
		return Result{}, domain.Internal(err, "decode fields")
	}
	if len(fieldErrs) > 0 {
		return Result{}, domain.ValidationFailed(fieldErrs)
	}
	now := e.now()
	meta := ent.Meta()
	meta.ID = e.newID()
	meta.Status = kind.InitialStatus()
	meta.Version = 1
	meta.CreatedAt = now
	meta.UpdatedAt = now
	e.Registry.Init(ent, fields, actor)

	editable, err := e.Evaluator.EditableFields(actor, ent)
	if err != nil {
		return Result{}, err
	}
	for name := range fields {
		if !slices.Contains(editable, name) {
			blocked = append(blocked, name)
		}
	}
	if len(blocked) > 0 {
		return Result{}, domain.FieldsNotEditable(blocked)
	}

	tx, err := e.Store.Begin(ctx)
	if err != nil {
		return Result{}, domain.Internal(err, "begin")
	}
	defer tx.Rollback()

	verrs, err := e.Registry.CheckEdit(e.gc(ctx, tx, ent, nil, actor), nil)
	if err != nil {
		return Result{}, err
	}
	if !verrs.Empty() {
		return Result{}, verrs.Err()
	}
	if err := tx.Insert(ctx, ent); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, domain.Internal(err, "commit")
	}

	diff, err := domain.Changes(nil, ent)
	if err != nil {
		return Result{}, domain.Internal(err, "diff")
	}
	act := e.activity(ent, actor, domain.ActivityCreate, diff)
	intents := e.dispatch(ctx, notify.Outcome{Entity: ent, Actor: actor, KeyEvents: act.KeyEvents}, &act)
	e.record(ctx, []domain.Activity{act}, intents)
	return e.result(actor, ent, []domain.Activity{act}, intents)
}

// Read returns the entity reduced to the actor's viewable fields.
func (e Engine) Read(ctx context.Context, kind domain.Kind, id string, actor domain.User) (Projection, error) {
	ent, err := e.load(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return e.project(actor, ent)
}

// Update applies a field patch through the gate.
func (e Engine) Update(ctx context.Context, kind domain.Kind, id string, patch map[string]json.RawMessage, actor domain.User) (Result, error) {
	return e.write(ctx, kind, id, patch, nil, actor)
}

// Transition applies req.Patch, if any, then fires req.Name over the
// updated instance in the same unit of work.
func (e Engine) Transition(ctx context.Context, req TransitionRequest, actor domain.User) (Result, error) {
	if req.ExpectedStatus == "" {
		ent, err := e.load(ctx, req.Kind, req.ID)
		if err != nil {
			return Result{}, err
		}
		req.ExpectedStatus = ent.Meta().Status
	}
	return e.write(ctx, req.Kind, req.ID, req.Patch, &req, actor)
}

func (e Engine) write(ctx context.Context, kind domain.Kind, id string, patch map[string]json.RawMessage, req *TransitionRequest, actor domain.User) (Result, error) {
	if err := checkKind(kind); err != nil {
		return Result{}, err
	}
	tx, err := e.Store.Begin(ctx)
	if err != nil {
		return Result{}, domain.Internal(err, "begin")
	}
	defer tx.Rollback()

	current, err := tx.Get(ctx, kind, id, true)
	if err != nil {
		return Result{}, err
	}
	if req != nil && current.Meta().Status != req.ExpectedStatus {
		return Result{}, domain.Errorf(domain.ErrKindStaleState, "%s %s is %s, expected %s", kind, id, current.Meta().Status, req.ExpectedStatus)
	}

	updated := current
	var updateDiff domain.Diff
	if len(patch) > 0 {
		updated, updateDiff, err = e.gate(ctx, tx, current, patch, actor)
		if err != nil {
			return Result{}, err
		}
	}

	final := updated
	var fired *lifecycle.Transition
	var transitionDiff domain.Diff
	var cascades []lifecycle.Cascade
	if req != nil {
		working, err := domain.Clone(updated)
		if err != nil {
			return Result{}, domain.Internal(err, "clone")
		}
		gc := e.gc(ctx, tx, working, current, actor)
		gc.Payload = req.Payload
		if fired, err = e.Registry.Execute(gc, req.Name, e.Policy); err != nil {
			return Result{}, err
		}
		final = gc.Entity
		cascades = gc.Cascades
		if transitionDiff, err = domain.Changes(updated, final); err != nil {
			return Result{}, domain.Internal(err, "diff")
		}
	}

	if len(updateDiff) == 0 && fired == nil {
		return e.result(actor, current, nil, nil)
	}
	meta := final.Meta()
	meta.Version = current.Meta().Version + 1
	meta.UpdatedAt = e.now()
	if err := tx.Save(ctx, final, current.Meta().Version); err != nil {
		return Result{}, err
	}
	moved, err := e.saveCascades(ctx, tx, cascades)
	if err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, domain.Internal(err, "commit")
	}

	var acts []domain.Activity
	var intents []domain.Intent
	if len(updateDiff) > 0 {
		act := e.activity(final, actor, domain.ActivityUpdate, updateDiff)
		intents = append(intents, e.dispatch(ctx, notify.Outcome{Entity: updated, Actor: actor, KeyEvents: act.KeyEvents}, &act)...)
		acts = append(acts, act)
	}
	if fired != nil {
		act := e.activity(final, actor, domain.ActivityTransition, transitionDiff)
		act.FromStatus = updated.Meta().Status
		act.ToStatus = fired.To
		act.Transition = fired.Name
		intents = append(intents, e.dispatch(ctx, notify.Outcome{
			Entity:     final,
			Actor:      actor,
			Transition: fired.Name,
			FromStatus: act.FromStatus,
			ToStatus:   act.ToStatus,
			KeyEvents:  act.KeyEvents,
		}, &act)...)
		acts = append(acts, act)
		for _, m := range moved {
			cact := e.activity(m.after, actor, domain.ActivityTransition, m.diff)
			cact.FromStatus = m.from
			cact.ToStatus = m.after.Meta().Status
			cact.Transition = fired.Name
			acts = append(acts, cact)
		}
		e.Logger.WithContext(ctx).WithFields(logrus.Fields{
			"kind":       final.Kind(),
			"id":         meta.ID,
			"transition": fired.Name,
			"actor":      actor.ID,
			"cascaded":   len(moved),
		}).Info("transition committed")
	}
	e.record(ctx, acts, intents)
	return e.result(actor, final, acts, intents)
}

type cascaded struct {
	after domain.Entity
	from  domain.Status
	diff  domain.Diff
}

// saveCascades writes the related status changes a transition's effects
// collected, inside the caller's transaction.
func (e Engine) saveCascades(ctx context.Context, tx Tx, cascades []lifecycle.Cascade) ([]cascaded, error) {
	out := make([]cascaded, 0, len(cascades))
	for _, c := range cascades {
		next, err := domain.Clone(c.Entity)
		if err != nil {
			return nil, domain.Internal(err, "clone")
		}
		prev := c.Entity.Meta()
		meta := next.Meta()
		meta.Status = c.To
		meta.Version = prev.Version + 1
		meta.UpdatedAt = e.now()
		if err := tx.Save(ctx, next, prev.Version); err != nil {
			return nil, err
		}
		diff, err := domain.Changes(c.Entity, next)
		if err != nil {
			return nil, domain.Internal(err, "diff")
		}
		out = append(out, cascaded{after: next, from: prev.Status, diff: diff})
	}
	return out, nil
}

// AvailableTransitions lists the transitions the actor may fire from the
// current status. Guards are not evaluated.
func (e Engine) AvailableTransitions(ctx context.Context, kind domain.Kind, id string, actor domain.User) ([]string, error) {
	ent, err := e.load(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	roles := e.Evaluator.Resolver.Roles(actor, ent)
	out := []string{}
	for _, t := range e.Registry.From(kind, ent.Meta().Status) {
		ok, err := e.Policy.Allowed(roles, kind, t.Name)
		if err != nil {
			return nil, domain.Internal(err, "transition permission")
		}
		if ok {
			out = append(out, t.Name)
		}
	}
	return out, nil
}

// Permissions returns the view and edit maps for the actor on the entity.
func (e Engine) Permissions(ctx context.Context, kind domain.Kind, id string, actor domain.User) (permissions.Permissions, error) {
	ent, err := e.load(ctx, kind, id)
	if err != nil {
		return permissions.Permissions{}, err
	}
	return e.Evaluator.Evaluate(actor, ent)
}

// Delete removes an entity that has not left its initial status.
func (e Engine) Delete(ctx context.Context, kind domain.Kind, id string, actor domain.User) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	tx, err := e.Store.Begin(ctx)
	if err != nil {
		return domain.Internal(err, "begin")
	}
	defer tx.Rollback()
	current, err := tx.Get(ctx, kind, id, true)
	if err != nil {
		return err
	}
	if current.Meta().Status != kind.InitialStatus() {
		return domain.Errorf(domain.ErrKindForbidden, "%s %s is %s; only %s entities can be deleted", kind, id, current.Meta().Status, kind.InitialStatus())
	}
	ok, err := e.Policy.Allowed(e.Evaluator.Resolver.Roles(actor, current), kind, permissions.ActionDelete)
	if err != nil {
		return domain.Internal(err, "delete permission")
	}
	if !ok {
		return domain.Errorf(domain.ErrKindForbidden, "not allowed to delete %s", kind)
	}
	if err := tx.Delete(ctx, kind, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return domain.Internal(err, "commit")
	}
	diff, err := domain.Changes(current, nil)
	if err != nil {
		return domain.Internal(err, "diff")
	}
	act := e.activity(current, actor, domain.ActivityDelete, diff)
	act.KeyEvents = []string{}
	e.record(ctx, []domain.Activity{act}, nil)
	return nil
}

// History returns the entity's activity records in append order.
func (e Engine) History(ctx context.Context, kind domain.Kind, id string, actor domain.User) ([]domain.Activity, error) {
	ent, err := e.load(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	perms, err := e.Evaluator.Evaluate(actor, ent)
	if err != nil {
		return nil, err
	}
	if !perms.View["status"] {
		return nil, domain.Errorf(domain.ErrKindForbidden, "not allowed to view %s history", kind)
	}
	acts, err := e.Store.Activities(ctx, kind, id)
	if err != nil {
		return nil, domain.Internal(err, "load activities")
	}
	return acts, nil
}

func (e Engine) load(ctx context.Context, kind domain.Kind, id string) (domain.Entity, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	tx, err := e.Store.Begin(ctx)
	if err != nil {
		return nil, domain.Internal(err, "begin")
	}
	defer tx.Rollback()
	return tx.Get(ctx, kind, id, false)
}

func (e Engine) result(actor domain.User, ent domain.Entity, acts []domain.Activity, intents []domain.Intent) (Result, error) {
	proj, err := e.project(actor, ent)
	if err != nil {
		return Result{}, err
	}
	if acts == nil {
		acts = []domain.Activity{}
	}
	if intents == nil {
		intents = []domain.Intent{}
	}
	return Result{Entity: ent, Projection: proj, Activities: acts, Intents: intents}, nil
}
