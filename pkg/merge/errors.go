package merge

import "fmt"

// TypeMismatchError is returned when a placeholder asks for stored contents of a
// different kind than the value being written, e.g. a sequence written over a stored
// scalar.
type TypeMismatchError struct {
	// Path locates the mismatch inside the written value ("" is the root).
	Path string

	// Stored is the kind of the previously stored value.
	Stored Kind

	// Written is the kind of the new value.
	Written Kind
}

// Error implements the error interface.
func (e *TypeMismatchError) Error() string {
	path := e.Path
	if path == "" {
		path = "<root>"
	}
	return fmt.Sprintf("cannot merge %s into stored %s at %s", e.Written, e.Stored, path)
}
