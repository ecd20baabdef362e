package catalog

import "errors"

// ErrNotFound is returned when a lookup finds no matching record or directory.
var ErrNotFound = errors.New("catalog: not found")

// Error wraps a backend failure with the operation that triggered it,
// matching the single "CatalogError" kind from spec.md §7: callers either
// abort the current scan phase or surface a 500 at serve time.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "catalog: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
