package objstore

// Error taxonomy shared by the facade, the coordinator, and the backends.
// Exactly one kind is attached to every failure; wrapping with
// github.com/pkg/errors higher up does not lose the classification
// because KindOf walks the cause chain.

import (
	"fmt"
)

type ErrorKind int

const (
	ErrUnknown ErrorKind = iota
	// The acting user failed the permission check.
	ErrPermissionDenied
	// Bucket or key does not exist.
	ErrNotFound
	// Duplicate bucket name.
	ErrAlreadyExists
	// Non-force delete of a bucket that still holds objects.
	ErrBucketNotEmpty
	// Malformed metadata or arguments.
	ErrInvalidArgument
	// Any transport or storage-layer failure not otherwise classified.
	ErrBackend
)

func (k ErrorKind) String() string {
	switch k {
	case ErrPermissionDenied:
		return "permission denied"
	case ErrNotFound:
		return "not found"
	case ErrAlreadyExists:
		return "already exists"
	case ErrBucketNotEmpty:
		return "bucket not empty"
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrBackend:
		return "backend error"
	default:
		return "unknown error"
	}
}

type Error struct {
	kind  ErrorKind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *Error) Kind() ErrorKind { return e.kind }

// Unwrap and Cause expose the underlying error to both the stdlib errors
// package and github.com/pkg/errors.
func (e *Error) Unwrap() error { return e.cause }
func (e *Error) Cause() error  { return e.cause }

func NewError(kind ErrorKind, msg string) error {
	return &Error{kind: kind, msg: msg}
}

func Errorf(kind ErrorKind, format string, args ...interface{}) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind and message to an underlying error.
func WrapError(kind ErrorKind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: msg, cause: err}
}

type causer interface {
	Cause() error
}

type wrapper interface {
	Unwrap() error
}

// KindOf reports the classification of err, walking wrapped causes until
// it finds a classified error. Unclassified errors report ErrUnknown.
func KindOf(err error) ErrorKind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.kind
		}
		switch v := err.(type) {
		case causer:
			err = v.Cause()
		case wrapper:
			err = v.Unwrap()
		default:
			return ErrUnknown
		}
	}
	return ErrUnknown
}

func IsPermissionDenied(err error) bool { return KindOf(err) == ErrPermissionDenied }
func IsNotFound(err error) bool         { return KindOf(err) == ErrNotFound }
func IsAlreadyExists(err error) bool    { return KindOf(err) == ErrAlreadyExists }
func IsBucketNotEmpty(err error) bool   { return KindOf(err) == ErrBucketNotEmpty }
func IsInvalidArgument(err error) bool  { return KindOf(err) == ErrInvalidArgument }
func IsBackend(err error) bool          { return KindOf(err) == ErrBackend }
