// Package ierrs defines the error kinds shared by this module's internal
// packages, without depending on the root sstable package (which would
// create an import cycle). The root package translates these into
// *sstable.Error at the public API boundary.
package ierrs

import "fmt"

// Kind mirrors sstable.ErrorKind one-to-one.
type Kind int

const (
	KindIO Kind = iota
	KindInvalidData
	KindUnsupportedVersion
	KindKeyTooLong
	KindValueTooLong
	KindIncompatibleReaderForFormat
	KindProgrammingError
	KindCompressionError
)

// Error is the internal-package error type; Kind lets the root package map
// it onto the public ErrorKind without string sniffing.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func InvalidData(msg string) error {
	return New(KindInvalidData, msg)
}

func InvalidDataf(format string, args ...any) error {
	return New(KindInvalidData, fmt.Sprintf(format, args...))
}

func IO(op string, err error) error {
	return Wrap(KindIO, op, err)
}

func Compression(op string, err error) error {
	return Wrap(KindCompressionError, op, err)
}

func Programming(msg string) error {
	return New(KindProgrammingError, msg)
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; otherwise returns KindIO as the safest default for an opaque
// underlying failure.
func KindOf(err error) Kind {
	var e *Error
	if as(err, &e) {
		return e.Kind
	}
	return KindIO
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
