// Package stores provides the SQLite-backed preference store used by the
// defaults operation. Values are kept in their canonical JSON encoding so a
// read returns exactly what was written, key order included.
package stores
