// Error codes used to classify image building failures. The numeric values
// match Linux so they can double as process exit codes.

package errors

import (
	"fmt"
)

type Errno int

const (
	EOK          Errno = 0
	EPERM        Errno = 1
	ENOENT       Errno = 2
	EIO          Errno = 5
	EFAULT       Errno = 14
	EEXIST       Errno = 17
	EINVAL       Errno = 22
	ENFILE       Errno = 23
	EFBIG        Errno = 27
	ENOSPC       Errno = 28
	EDOM         Errno = 33
	ERANGE       Errno = 34
	ENAMETOOLONG Errno = 36
	ENOSYS       Errno = 38
	ENOTSUP      Errno = 95
	EMEDIUMTYPE  Errno = 124
)

var errorMessagesByCode = map[Errno]string{
	EOK:          "Success",
	EPERM:        "Operation not permitted",
	ENOENT:       "No such file or directory",
	EIO:          "Input/output error",
	EFAULT:       "Bad address",
	EEXIST:       "File exists",
	EINVAL:       "Invalid argument",
	ENFILE:       "Too many files in directory",
	EFBIG:        "File too large",
	ENOSPC:       "No space left on device",
	EDOM:         "Numerical argument out of domain",
	ERANGE:       "Numerical result out of range",
	ENAMETOOLONG: "File name too long",
	ENOSYS:       "Function not implemented",
	ENOTSUP:      "Operation not supported",
	EMEDIUMTYPE:  "Wrong medium type",
}

func StrError(code Errno) string {
	message, ok := errorMessagesByCode[code]
	if ok {
		return message
	}
	return fmt.Sprintf("error %d not recognized.", int(code))
}
