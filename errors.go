package fatread

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// DriverError is the error type returned by every operation in this module. Use
// errors.Is against one of the Err* values below to find out what kind of
// failure occurred.
type DriverError interface {
	error
	WithMessage(message string) DriverError
	Wrap(err error) DriverError
}

type baseDriverError string

const rootError = baseDriverError("")

var ErrChecksumMismatch = rootError.WithMessage("Long file name checksum mismatch")
var ErrCorruptChain = rootError.WithMessage("Cluster chain is corrupted")
var ErrInvalidArgument = rootError.WithMessage("Invalid argument")
var ErrInvalidBootSector = rootError.WithMessage("Invalid FAT32 boot sector")
var ErrIOFailed = rootError.WithMessage("Input/output error")
var ErrNameTooLong = rootError.WithMessage("File name too long")
var ErrNotADirectory = rootError.WithMessage("Not a directory")
var ErrNotAFile = rootError.WithMessage("Not a regular file")
var ErrNotFound = rootError.WithMessage("No such file or directory")
var ErrOutOfRange = rootError.WithMessage("Cluster index out of range")

func (e baseDriverError) Error() string {
	return string(e)
}

func (e baseDriverError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       message,
		originalError: e,
	}
}

func (e baseDriverError) Wrap(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

// -----------------------------------------------------------------------------

type customDriverError struct {
	message       string
	originalError error
}

// Error implements the `error` object interface. When called, it returns a string
// describing the error.
func (e customDriverError) Error() string {
	return e.message
}

func (e customDriverError) WithMessage(message string) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.message, message),
		originalError: e,
	}
}

func (e customDriverError) Wrap(err error) DriverError {
	return customDriverError{
		message:       fmt.Sprintf("%s: %s", e.Error(), err.Error()),
		originalError: multierror.Append(e, err),
	}
}

func (e customDriverError) Unwrap() error {
	return e.originalError
}

// CastToDriverError returns `err` unchanged if it's already a DriverError, nil if
// it's nil, and otherwise wraps it in ErrIOFailed. Errors coming out of a block
// source or an image stream pass through here before reaching the caller.
func CastToDriverError(err error) DriverError {
	if err == nil {
		return nil
	}

	var driverErr DriverError
	if errors.As(err, &driverErr) {
		return driverErr
	}
	return ErrIOFailed.Wrap(err)
}
