package record

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
)

// Record is one loaded template.
type Record struct {
	// Path is the source path, if the record came from (or describes) a file.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Content is the raw template content. It is never interpreted.
	Content string `json:"content" yaml:"content"`

	// Data holds the record's metadata (locals, front matter, caller options).
	Data map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// Clone returns a copy of r whose Data shares no maps or slices with r.
func (r Record) Clone() Record {
	if r.Data != nil {
		r.Data = cloneValue(r.Data).(map[string]any)
	}
	return r
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(v)
	case Locals:
		return cloneValue(map[string]any(v))
	default:
		return v
	}
}

// Equal reports whether two records have identical canonical encodings.
// Records that cannot be canonically encoded are compared structurally.
func (r Record) Equal(other Record) bool {
	a, errA := MarshalCanonical(r)
	b, errB := MarshalCanonical(other)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(r, other)
	}
	return string(a) == string(b)
}

// Set maps record keys to records. Keys are unique within a collection.
type Set map[string]Record

// Keys returns the set's keys in sorted order.
func (s Set) Keys() []string {
	return slices.Sorted(maps.Keys(s))
}

// Clone returns a copy of the set whose records own their data.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	for k, r := range s {
		out[k] = r.Clone()
	}
	return out
}

// Merge writes every record of other into s, overwriting existing keys.
// It returns the number of keys whose value changed or was added.
func (s Set) Merge(other Set) int {
	changed := 0
	for k, r := range other {
		if old, ok := s[k]; ok && old.Equal(r) {
			s[k] = r
			continue
		}
		s[k] = r
		changed++
	}
	return changed
}

// Locals carries caller-supplied options and metadata for one load.
type Locals map[string]any

// Clone returns a shallow copy; a nil receiver yields an empty map.
func (l Locals) Clone() Locals {
	out := make(Locals, len(l))
	maps.Copy(out, l)
	return out
}

// Normalize converts a loader's output into a Set.
//
// Accepted shapes:
//   - nil or false: no records
//   - Set, map[string]Record
//   - Record or *Record: keyed by its Path
//   - map[string]any: a literal set ({key: {content, data, path}}) or, when it
//     carries a string "path", the single-record shorthand {path, content, data}
//   - []any, []Set: each element normalized and merged in order
func Normalize(v any) (Set, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if !val {
			return nil, nil
		}
		return nil, fmt.Errorf("record: cannot normalize boolean true")
	case Set:
		return val, nil
	case map[string]Record:
		return Set(val), nil
	case Record:
		return singleton(val)
	case *Record:
		if val == nil {
			return nil, nil
		}
		return singleton(*val)
	case map[string]any:
		return fromLiteral(val)
	case Locals:
		return fromLiteral(map[string]any(val))
	case []Set:
		out := Set{}
		for _, s := range val {
			out.Merge(s)
		}
		return out, nil
	case []any:
		out := Set{}
		for i, elem := range val {
			s, err := Normalize(elem)
			if err != nil {
				return nil, fmt.Errorf("record: [%d]: %w", i, err)
			}
			out.Merge(s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("record: cannot normalize %T", v)
	}
}

func singleton(r Record) (Set, error) {
	if r.Path == "" {
		return nil, fmt.Errorf("record: record without path cannot be keyed")
	}
	return Set{r.Path: r}, nil
}

// IsShorthand reports whether m describes a single record as {path, content, ...}.
func IsShorthand(m map[string]any) bool {
	p, ok := m["path"].(string)
	return ok && p != ""
}

func fromLiteral(m map[string]any) (Set, error) {
	if IsShorthand(m) {
		r, err := FromMap(m)
		if err != nil {
			return nil, err
		}
		return Set{r.Path: r}, nil
	}

	out := make(Set, len(m))
	for key, raw := range m {
		switch val := raw.(type) {
		case Record:
			out[key] = val
		case string:
			out[key] = Record{Path: key, Content: val}
		case map[string]any:
			r, err := FromMap(val)
			if err != nil {
				return nil, fmt.Errorf("record: %q: %w", key, err)
			}
			out[key] = r
		default:
			return nil, fmt.Errorf("record: %q: unsupported value %T", key, raw)
		}
	}
	return out, nil
}

// FromMap builds a Record from a loosely typed map. The keys "path",
// "content" and "data" fill the matching fields; any other key is folded
// into Data, which mirrors how literal templates carry inline locals.
func FromMap(m map[string]any) (Record, error) {
	var r Record
	if v, ok := m["path"]; ok {
		s, ok := v.(string)
		if !ok {
			return Record{}, fmt.Errorf("path must be a string, got %T", v)
		}
		r.Path = s
	}
	if v, ok := m["content"]; ok {
		s, ok := v.(string)
		if !ok {
			return Record{}, fmt.Errorf("content must be a string, got %T", v)
		}
		r.Content = s
	}
	for _, k := range []string{"locals", "data"} {
		v, ok := m[k]
		if !ok {
			continue
		}
		d, ok := toStringMap(v)
		if !ok {
			return Record{}, fmt.Errorf("%s must be a mapping, got %T", k, v)
		}
		if r.Data == nil {
			r.Data = make(map[string]any, len(d))
		}
		maps.Copy(r.Data, d)
	}
	for k, v := range m {
		switch k {
		case "path", "content", "data", "locals":
			continue
		}
		if r.Data == nil {
			r.Data = make(map[string]any)
		}
		if _, exists := r.Data[k]; !exists {
			r.Data[k] = v
		}
	}
	return r, nil
}

func toStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Locals:
		return m, true
	case nil:
		return map[string]any{}, true
	default:
		return nil, false
	}
}
