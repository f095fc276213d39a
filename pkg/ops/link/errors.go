package link

import (
	"fmt"
	"strings"
)

// ConflictError reports destination paths that are occupied by something
// other than the expected link. Nothing is modified when it is returned.
type ConflictError struct {
	Paths []string
}

func (e *ConflictError) Error() string {
	if len(e.Paths) == 1 {
		return fmt.Sprintf("link conflict at %s", e.Paths[0])
	}
	return fmt.Sprintf("link conflicts at %d paths: %s", len(e.Paths), strings.Join(e.Paths, ", "))
}

// DirectoryError reports a source or destination root that is missing or is
// not a directory.
type DirectoryError struct {
	Role string
	Path string
	Err  error
}

func (e *DirectoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s directory %s should exist and be a directory: %v", e.Role, e.Path, e.Err)
	}
	return fmt.Sprintf("%s directory %s should exist and be a directory", e.Role, e.Path)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}
