// Package errors defines the error taxonomy shared by the storage layer.
// Every failure carries one sentinel kind (IO, corruption, format, misuse,
// ...) plus the operation and file it happened on, while still unwrapping
// to the original cause.
package errors

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
)

var (
	ErrIO               = errors.New("io error")
	ErrFileNotFound     = errors.New("file not found")
	ErrReadPastEOF      = errors.New("read past EOF")
	ErrCorruptIndex     = errors.New("corrupt index")
	ErrFormat           = errors.New("unsupported index format")
	ErrIllegalState     = errors.New("illegal state")
	ErrIllegalArgument  = errors.New("illegal argument")
	ErrUnsupported      = errors.New("unsupported operation")
	ErrLockObtainFailed = errors.New("lock obtain timed out")
	ErrAborted          = errors.New("operation aborted")
	ErrNoCommit         = errors.New("no segments file found")
)

// StoreError annotates a failure with its kind, the operation and the file
// name involved. Cause, when set, is the lower-level error that triggered it.
type StoreError struct {
	Err     error
	Op      string
	Name    string
	Message string
	Cause   error
}

func (e *StoreError) Error() string {
	msg := e.Err.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Name != "" {
		msg += fmt.Sprintf(" (%s)", e.Name)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *StoreError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func New(kind error, op, name, message string) *StoreError {
	return &StoreError{Err: kind, Op: op, Name: name, Message: message}
}

func Newf(kind error, op, name, format string, args ...any) *StoreError {
	return &StoreError{Err: kind, Op: op, Name: name, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to cause. A nil cause yields nil.
func Wrap(kind error, op, name string, cause error) error {
	if cause == nil {
		return nil
	}
	return &StoreError{Err: kind, Op: op, Name: name, Cause: cause}
}

// FromOS classifies an error returned by a filesystem call: missing files
// become ErrFileNotFound, short reads ErrReadPastEOF, everything else ErrIO.
func FromOS(op, name string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Wrap(ErrFileNotFound, op, name, err)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return Wrap(ErrReadPastEOF, op, name, err)
	default:
		return Wrap(ErrIO, op, name, err)
	}
}

// IsIO reports whether err is an I/O-class failure: plain IO errors, missing
// files and truncated reads. These are the errors the commit discovery loop
// treats as possibly caused by a concurrent writer.
func IsIO(err error) bool {
	return errors.Is(err, ErrIO) ||
		errors.Is(err, ErrFileNotFound) ||
		errors.Is(err, ErrReadPastEOF)
}

// IsMisuse reports whether err signals a programming error by the caller.
func IsMisuse(err error) bool {
	return errors.Is(err, ErrIllegalState) ||
		errors.Is(err, ErrIllegalArgument) ||
		errors.Is(err, ErrUnsupported)
}

// IsFatal reports whether err must never be retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFormat) || errors.Is(err, ErrAborted) || IsMisuse(err)
}

// Is, As and Join re-export the standard helpers so callers need only one
// errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func Join(errs ...error) error { return errors.Join(errs...) }
