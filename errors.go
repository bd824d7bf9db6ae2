package retrodisk

import (
	stderrors "errors"
	"fmt"

	"github.com/dargueta/retrodisk/errors"
	"github.com/hashicorp/go-multierror"
)

type DriverError interface {
	error
	Errno() errors.Errno
	WithMessage(message string) DriverError
	Wrap(err error) DriverError
}

type baseDiskError struct {
	errno   errors.Errno
	message string
}

func newKind(errno errors.Errno, message string) baseDiskError {
	return baseDiskError{errno: errno, message: message}
}

// Structural errors. These abort a build and no image is produced.
var ErrUnsupportedSizeForFormat DriverError = newKind(errors.EMEDIUMTYPE, "Unsupported size for format")
var ErrBlockSizeMismatch DriverError = newKind(errors.EFAULT, "Block size mismatch")
var ErrInvalidArgument DriverError = newKind(errors.EINVAL, "Invalid argument")
var ErrArgumentOutOfRange DriverError = newKind(errors.EDOM, "Numerical argument out of domain")

// Per-file errors. The file is skipped and the build carries on.
var ErrDiskFull DriverError = newKind(errors.ENOSPC, "Disk full")
var ErrDirectoryFull DriverError = newKind(errors.ENFILE, "Directory full")
var ErrReadSourceFailed DriverError = newKind(errors.EIO, "Failed to read source")
var ErrFileTooLarge DriverError = newKind(errors.EFBIG, "File too large")
var ErrNameCollision DriverError = newKind(errors.EEXIST, "Name collision")

var perFileErrors = []error{
	ErrDiskFull,
	ErrDirectoryFull,
	ErrReadSourceFailed,
	ErrFileTooLarge,
	ErrNameCollision,
}

// IsPerFile returns true if `err` only affects the file being placed, i.e. the
// build can skip that file and continue with the rest.
func IsPerFile(err error) bool {
	for _, kind := range perFileErrors {
		if stderrors.Is(err, kind) {
			return true
		}
	}
	return false
}

func (e baseDiskError) Error() string {
	return e.message
}

func (e baseDiskError) Errno() errors.Errno {
	return e.errno
}

func (e baseDiskError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		errno:         e.errno,
		originalError: e,
	}
}

func (e baseDiskError) Wrap(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		errno:         e.errno,
		originalError: multierror.Append(e, err),
	}
}

// -----------------------------------------------------------------------------

type customDriverError struct {
	message       string
	errno         errors.Errno
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e customDriverError) Error() string {
	return e.message
}

func (e customDriverError) Errno() errors.Errno {
	return e.errno
}

func (e customDriverError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		errno:         e.errno,
		originalError: e,
	}
}

func (e customDriverError) Wrap(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		errno:         e.errno,
		originalError: multierror.Append(e, err),
	}
}

func (e customDriverError) Unwrap() error {
	return e.originalError
}
