package core

import (
	"errors"
	"fmt"
)

// Failure kinds reported while resolving the structure of a PDF file.
// Every error returned by this module wraps exactly one of these, so callers
// can classify failures with errors.Is.
var (
	// ErrUnexpectedEOF indicates a read past the end of the input.
	ErrUnexpectedEOF = errors.New("unexpected end of input")

	// ErrMalformedObject indicates object syntax that cannot be parsed:
	// unbalanced brackets, unterminated strings, invalid keys.
	ErrMalformedObject = errors.New("malformed object")

	// ErrGenerationMismatch indicates the "n g obj" header found at an xref
	// offset does not match the requested reference.
	ErrGenerationMismatch = errors.New("object generation mismatch")

	// ErrDanglingReference indicates an object number outside every declared
	// cross-reference section.
	ErrDanglingReference = errors.New("dangling reference")

	// ErrUnsupportedFilter indicates a stream filter with no registered decoder.
	ErrUnsupportedFilter = errors.New("unsupported filter")

	// ErrStreamLengthMismatch indicates stream data whose declared Length
	// disagrees with the endstream marker and could not be recovered.
	ErrStreamLengthMismatch = errors.New("stream length mismatch")

	// ErrMalformedContainer indicates an invalid object stream.
	ErrMalformedContainer = errors.New("malformed object stream")

	// ErrPageTreeCycle indicates a Kids chain that revisits a node.
	ErrPageTreeCycle = errors.New("page tree cycle")

	// ErrLinearizationHintInvalid indicates a linearization dictionary whose
	// hints do not describe the file.
	ErrLinearizationHintInvalid = errors.New("invalid linearization hints")
)

// Error records where a structural failure happened. Err is one of the
// sentinel errors above, possibly wrapped with more detail.
type Error struct {
	Op     string      // operation that failed, e.g. "parse object"
	Offset int64       // byte offset in the file, -1 if unknown
	Ref    IndirectRef // reference being resolved, zero if none
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Ref != (IndirectRef{}) && e.Offset >= 0:
		return fmt.Sprintf("pdf: %s %s at offset %d: %v", e.Op, e.Ref, e.Offset, e.Err)
	case e.Ref != (IndirectRef{}):
		return fmt.Sprintf("pdf: %s %s: %v", e.Op, e.Ref, e.Err)
	case e.Offset >= 0:
		return fmt.Sprintf("pdf: %s at offset %d: %v", e.Op, e.Offset, e.Err)
	default:
		return fmt.Sprintf("pdf: %s: %v", e.Op, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// errorAt builds an *Error for a failure at a file offset.
func errorAt(op string, offset int64, err error) error {
	return &Error{Op: op, Offset: offset, Err: err}
}

// errorFor builds an *Error for a failure while resolving ref.
func errorFor(op string, ref IndirectRef, offset int64, err error) error {
	return &Error{Op: op, Offset: offset, Ref: ref, Err: err}
}

// malformed wraps ErrMalformedObject with a formatted detail message.
func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedObject, fmt.Sprintf(format, args...))
}
