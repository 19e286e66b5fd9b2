// Package validation holds the pure predicates used by the gate and the
// transition guards. Nothing here mutates an entity or touches storage.
package validation

import (
	"sort"

	"doclife/internal/domain"
)

// Errors collects messages per field path.
type Errors map[string][]string

func (e Errors) Add(path, msg string) {
	for _, m := range e[path] {
		if m == msg {
			return
		}
	}
	e[path] = append(e[path], msg)
}

func (e Errors) Merge(other Errors) {
	for path, msgs := range other {
		for _, m := range msgs {
			e.Add(path, m)
		}
	}
}

func (e Errors) Empty() bool { return len(e) == 0 }

// Paths returns the failing field paths, sorted.
func (e Errors) Paths() []string {
	out := make([]string, 0, len(e))
	for p := range e {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Err converts to a validation_failed error, or nil when empty.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return domain.ValidationFailed(map[string][]string(e))
}

// Messages used across predicates; tests match on them.
const (
	MsgRequired     = "required"
	MsgFuture       = "cannot be in the future"
	MsgBeforeStart  = "must not be before start"
	MsgImmutable    = "cannot be changed in this status"
	MsgAmendmentSet = "recorded amendments cannot be altered or removed"
)
