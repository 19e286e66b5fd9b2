package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/wI2L/jsondiff"
)

var fieldNames = map[Kind][]string{}

func init() {
	for k, info := range kinds {
		names := jsonFieldNames(reflect.TypeOf(info.factory()).Elem())
		sort.Strings(names)
		fieldNames[k] = names
	}
}

func jsonFieldNames(t reflect.Type) []string {
	var out []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			out = append(out, jsonFieldNames(f.Type)...)
			continue
		}
		name := strings.Split(f.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		out = append(out, name)
	}
	return out
}

// FieldNames lists every top-level field of the kind, system fields included.
func FieldNames(k Kind) []string {
	return append([]string(nil), fieldNames[k]...)
}

func HasField(k Kind, name string) bool {
	names := fieldNames[k]
	i := sort.SearchStrings(names, name)
	return i < len(names) && names[i] == name
}

// Fields returns the entity's top-level fields as raw JSON.
func Fields(e Entity) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", e.Kind(), err)
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal %s fields: %w", e.Kind(), err)
	}
	return out, nil
}

// Decode builds an entity of kind k from its JSON document.
func Decode(k Kind, data []byte) (Entity, error) {
	e := New(k)
	if e == nil {
		return nil, fmt.Errorf("unknown kind %q", k)
	}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("decode %s: %w", k, err)
	}
	return e, nil
}

func Clone(e Entity) (Entity, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return Decode(e.Kind(), data)
}

// ApplyPatch returns a new entity with the patch fields replacing the
// current values. Undecodable values are reported per field.
func ApplyPatch(e Entity, patch map[string]json.RawMessage) (Entity, map[string][]string, error) {
	current, err := Fields(e)
	if err != nil {
		return nil, nil, err
	}
	fieldErrs := map[string][]string{}
	for name, raw := range patch {
		if msg := fieldDecodeError(e.Kind(), name, raw); msg != "" {
			fieldErrs[name] = append(fieldErrs[name], msg)
			continue
		}
		current[name] = raw
	}
	if len(fieldErrs) > 0 {
		return nil, fieldErrs, nil
	}
	data, err := json.Marshal(current)
	if err != nil {
		return nil, nil, err
	}
	next, err := Decode(e.Kind(), data)
	if err != nil {
		return nil, nil, err
	}
	return next, nil, nil
}

func fieldDecodeError(k Kind, name string, raw json.RawMessage) string {
	doc, err := json.Marshal(map[string]json.RawMessage{name: raw})
	if err != nil {
		return "invalid JSON value"
	}
	if err := json.Unmarshal(doc, New(k)); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Sprintf("invalid value, expected %s", typeErr.Type)
		}
		return strings.TrimPrefix(err.Error(), "json: ")
	}
	return ""
}

// Value resolves a dotted path such as planned_budget.currency.
func Value(fields map[string]json.RawMessage, path string) (json.RawMessage, bool) {
	parts := strings.Split(path, ".")
	raw, ok := fields[parts[0]]
	for _, p := range parts[1:] {
		if !ok {
			return nil, false
		}
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, false
		}
		raw, ok = inner[p]
	}
	return raw, ok
}

// IsEmptyJSON treats null, "", [], {} and missing values as empty.
func IsEmptyJSON(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", `""`, "[]", "{}":
		return true
	}
	return false
}

// SameJSON compares two raw values structurally. All empty values, as
// IsEmptyJSON defines them, are the same value.
func SameJSON(a, b json.RawMessage) bool {
	if IsEmptyJSON(a) || IsEmptyJSON(b) {
		return IsEmptyJSON(a) && IsEmptyJSON(b)
	}
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}

func isNull(raw json.RawMessage) bool {
	s := string(bytes.TrimSpace(raw))
	return s == "" || s == "null"
}

// Changes diffs two versions of an entity by top-level field. Either side may
// be nil. Bookkeeping fields (version, timestamps) are left out.
func Changes(before, after Entity) (Diff, error) {
	var bf, af map[string]json.RawMessage
	var err error
	if before != nil {
		if bf, err = Fields(before); err != nil {
			return nil, err
		}
	}
	if after != nil {
		if af, err = Fields(after); err != nil {
			return nil, err
		}
	}
	ops, err := jsondiff.Compare(bf, af)
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}
	out := Diff{}
	for _, op := range ops {
		field := topLevel(string(op.Path))
		if field == "" {
			for name := range af {
				out.add(name, bf[name], af[name])
			}
			for name := range bf {
				out.add(name, bf[name], af[name])
			}
			continue
		}
		out.add(field, bf[field], af[field])
	}
	return out, nil
}

func (d Diff) add(field string, before, after json.RawMessage) {
	switch field {
	case "version", "created_at", "updated_at":
		return
	}
	if SameJSON(before, after) {
		return
	}
	if len(before) == 0 {
		before = json.RawMessage("null")
	}
	if len(after) == 0 {
		after = json.RawMessage("null")
	}
	d[field] = FieldChange{Before: before, After: after}
}

// Fields returns the touched field names, sorted.
func (d Diff) Fields() []string {
	out := make([]string, 0, len(d))
	for k := range d {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func topLevel(pointer string) string {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return ""
	}
	seg := strings.SplitN(pointer, "/", 2)[0]
	seg = strings.ReplaceAll(seg, "~1", "/")
	return strings.ReplaceAll(seg, "~0", "~")
}

// KeyEvents tags a diff with the events downstream consumers react to.
func KeyEvents(d Diff) []string {
	var out []string
	if _, ok := d["status"]; ok {
		out = append(out, KeyEventStatusUpdate)
	}
	if c, ok := d["assigned_to"]; ok && !isNull(c.Before) {
		out = append(out, KeyEventReassign)
	}
	if _, ok := d["unicef_court"]; ok {
		out = append(out, KeyEventCourtChange)
	}
	if c, ok := d["amendments"]; ok && countItems(c.After) > countItems(c.Before) {
		out = append(out, KeyEventAmendmentAdded)
	}
	return out
}

func countItems(raw json.RawMessage) int {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return 0
	}
	return len(items)
}
