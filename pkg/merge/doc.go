// Package merge provides the structured value model used by preference writes and the
// placeholder-driven merge algorithm that combines a newly written value with the one
// already stored.
//
// # Values
//
// A Value is one of three kinds:
//
//   - Scalar: a string, integer, float or boolean
//   - Sequence: an ordered list of values
//   - Mapping: an ordered list of key/value entries with unique keys
//
// Values are built fresh from parsed input (see Parse) and are never cyclic.
//
// # Placeholders
//
// The string "..." is reserved. Inside a sequence it stands for "every element that was
// stored before"; inside a mapping the entry "...": "..." stands for "every entry that
// was stored before". Merge splices the old contents in at the placeholder position and
// then drops duplicates, keeping the first occurrence:
//
//	old: ["a", "foo", "b", "bar", "c"]
//	new: ["foo", "...", "bar", "baz"]
//	=>   ["foo", "a", "b", "bar", "c", "baz"]
//
// Without a placeholder the new value replaces the old one outright.
//
// # Encoding
//
// Parse reads the human-authored YAML notation (JSON is accepted as a subset).
// Encode produces the canonical byte form used to store values and to decide whether a
// write changed anything.
package merge
