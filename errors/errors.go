package errors

import (
	stderrors "errors"
)

// Classified is implemented by errors that carry an [Errno].
type Classified interface {
	error
	Errno() Errno
}

// ErrnoOf walks the chain of `err` and returns the errno of the first error
// that carries one. It returns [EOK] for nil, and [EIO] for errors that were
// never classified.
func ErrnoOf(err error) Errno {
	if err == nil {
		return EOK
	}

	var classified Classified
	if stderrors.As(err, &classified) {
		return classified.Errno()
	}
	return EIO
}
