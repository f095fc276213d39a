package merge

import (
	"fmt"
	"strconv"
)

// Merge combines a previously stored value with a newly written one.
//
// Scalars, and sequences or mappings without a placeholder, replace old outright.
// A sequence placeholder is replaced by all of old's elements; a mapping placeholder
// entry is replaced by all of old's entries. Duplicates are then removed keeping the
// first occurrence (by value for sequences, by key for mappings), so anything written
// before the placeholder moves to the front and anything written after it is only
// added when it was not already present.
//
// A nested sequence or mapping that carries its own placeholder is merged against the
// value old holds under the same mapping key. Nested placeholders with no
// counterpart in old are dropped.
func Merge(old, written Value) (Value, error) {
	return mergeAt("", &old, written)
}

// MergeAbsent merges written as if nothing had been stored before: placeholders are
// removed and everything else is kept literally.
func MergeAbsent(written Value) (Value, error) {
	return mergeAt("", nil, written)
}

func mergeAt(path string, old *Value, written Value) (Value, error) {
	switch written.kind {
	case KindSequence:
		return mergeSequence(path, old, written)
	case KindMapping:
		return mergeMapping(path, old, written)
	default:
		return written, nil
	}
}

func mergeSequence(path string, old *Value, written Value) (Value, error) {
	splice := written.HasPlaceholder()
	if splice && old != nil && old.kind != KindSequence {
		return Value{}, &TypeMismatchError{Path: path, Stored: old.kind, Written: KindSequence}
	}

	out := make([]Value, 0, len(written.items))
	for i, item := range written.items {
		if item.IsPlaceholder() {
			if old != nil {
				out = append(out, old.items...)
			}
			continue
		}
		merged, err := mergeAt(indexPath(path, i), nil, item)
		if err != nil {
			return Value{}, err
		}
		out = append(out, merged)
	}

	if !splice {
		return Value{kind: KindSequence, items: out}, nil
	}
	return Value{kind: KindSequence, items: dedupeItems(out)}, nil
}

func mergeMapping(path string, old *Value, written Value) (Value, error) {
	if written.HasPlaceholder() && old != nil && old.kind != KindMapping {
		return Value{}, &TypeMismatchError{Path: path, Stored: old.kind, Written: KindMapping}
	}

	out := make([]Entry, 0, len(written.entries))
	for _, e := range written.entries {
		if isPlaceholderEntry(e) {
			if old != nil {
				out = append(out, old.entries...)
			}
			continue
		}

		var counterpart *Value
		if old != nil && old.kind == KindMapping {
			if v, ok := old.Lookup(e.Key); ok {
				counterpart = &v
			}
		}
		merged, err := mergeAt(keyPath(path, e.Key), counterpart, e.Value)
		if err != nil {
			return Value{}, err
		}
		out = append(out, Entry{Key: e.Key, Value: merged})
	}

	return Value{kind: KindMapping, entries: dedupeEntries(out)}, nil
}

func dedupeItems(items []Value) []Value {
	seen := make(map[string]struct{}, len(items))
	out := make([]Value, 0, len(items))
	for _, item := range items {
		key := identity(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

// identity returns a string that is equal for two values exactly when Equal is true.
func identity(v Value) string {
	b, err := Encode(v)
	if err != nil {
		return fmt.Sprintf("\x00%#v", v)
	}
	return string(b)
}

func indexPath(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

func keyPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
