package merge

import (
	"fmt"
)

// Placeholder is the reserved token standing for previously stored contents.
const Placeholder = "..."

// Kind identifies the shape of a Value.
type Kind int

const (
	// KindScalar is a string, integer, float or boolean.
	KindScalar Kind = iota

	// KindSequence is an ordered list of values.
	KindSequence

	// KindMapping is an ordered set of uniquely keyed entries.
	KindMapping
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is an immutable structured value.
// The zero Value is the empty string scalar.
type Value struct {
	kind    Kind
	scalar  any // string, int64, float64 or bool
	items   []Value
	entries []Entry
}

// Entry is a single key/value pair of a mapping.
type Entry struct {
	Key   string
	Value Value
}

// String returns a string scalar.
func String(s string) Value {
	return Value{kind: KindScalar, scalar: s}
}

// Int returns an integer scalar.
func Int(i int64) Value {
	return Value{kind: KindScalar, scalar: i}
}

// Float returns a floating point scalar.
func Float(f float64) Value {
	return Value{kind: KindScalar, scalar: f}
}

// Bool returns a boolean scalar.
func Bool(b bool) Value {
	return Value{kind: KindScalar, scalar: b}
}

// Seq returns a sequence holding items.
func Seq(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindSequence, items: cp}
}

// Map returns a mapping holding entries. Later duplicates of a key are dropped.
func Map(entries ...Entry) Value {
	return Value{kind: KindMapping, entries: dedupeEntries(entries)}
}

// E is shorthand for building an Entry.
func E(key string, v Value) Entry {
	return Entry{Key: key, Value: v}
}

// Kind returns the value's kind.
func (v Value) Kind() Kind {
	return v.kind
}

// Scalar returns the underlying scalar (string, int64, float64 or bool), or nil for
// sequences and mappings.
func (v Value) Scalar() any {
	if v.kind != KindScalar {
		return nil
	}
	if v.scalar == nil {
		return ""
	}
	return v.scalar
}

// Items returns a copy of a sequence's elements.
func (v Value) Items() []Value {
	cp := make([]Value, len(v.items))
	copy(cp, v.items)
	return cp
}

// Entries returns a copy of a mapping's entries in order.
func (v Value) Entries() []Entry {
	cp := make([]Entry, len(v.entries))
	copy(cp, v.entries)
	return cp
}

// Len returns the number of elements or entries; scalars have length zero.
func (v Value) Len() int {
	switch v.kind {
	case KindSequence:
		return len(v.items)
	case KindMapping:
		return len(v.entries)
	default:
		return 0
	}
}

// Lookup returns the value stored under key in a mapping.
func (v Value) Lookup(key string) (Value, bool) {
	for _, e := range v.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// IsPlaceholder reports whether v is the "..." string scalar.
func (v Value) IsPlaceholder() bool {
	s, ok := v.Scalar().(string)
	return ok && s == Placeholder
}

// HasPlaceholder reports whether a sequence or mapping carries a placeholder at its
// top level.
func (v Value) HasPlaceholder() bool {
	switch v.kind {
	case KindSequence:
		for _, item := range v.items {
			if item.IsPlaceholder() {
				return true
			}
		}
	case KindMapping:
		for _, e := range v.entries {
			if isPlaceholderEntry(e) {
				return true
			}
		}
	}
	return false
}

// Equal reports whether a and b have the same kind and contents.
// Mapping entries are compared in order.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindSequence:
		if len(a.items) != len(b.items) {
			return false
		}
		for i := range a.items {
			if !Equal(a.items[i], b.items[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(a.entries) != len(b.entries) {
			return false
		}
		for i := range a.entries {
			if a.entries[i].Key != b.entries[i].Key || !Equal(a.entries[i].Value, b.entries[i].Value) {
				return false
			}
		}
		return true
	default:
		return a.Scalar() == b.Scalar()
	}
}

// String renders the value in its canonical encoding.
func (v Value) String() string {
	b, err := Encode(v)
	if err != nil {
		return fmt.Sprintf("<invalid value: %v>", err)
	}
	return string(b)
}

func isPlaceholderEntry(e Entry) bool {
	return e.Key == Placeholder && e.Value.IsPlaceholder()
}

func dedupeEntries(entries []Entry) []Entry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.Key]; ok {
			continue
		}
		seen[e.Key] = struct{}{}
		out = append(out, e)
	}
	return out
}
