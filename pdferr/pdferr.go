// Package pdferr defines the typed error domain shared by every layer of the
// parser. Errors carry a Code plus a chain of context frames pushed as the
// error propagates upward, so a failure deep in the tokenizer still reports
// which object and which subsystem it surfaced through.
package pdferr

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies a parse failure.
type Code int

const (
	// InvalidPDF marks structural failures not covered by a narrower code.
	InvalidPDF Code = iota + 1
	// InvalidXRef marks a malformed or cyclic cross-reference table.
	InvalidXRef
	// InvalidTrailer marks a missing or malformed trailer dictionary.
	InvalidTrailer
	// InvalidEOFToken marks a missing %%EOF or an exhausted backward scan.
	InvalidEOFToken
	// InvalidNumber marks an unparsable numeric token.
	InvalidNumber
	// InvalidName marks an unparsable name token.
	InvalidName
	// InvalidDataType marks a value of the wrong kind where a specific kind
	// was required.
	InvalidDataType
	// InvalidObject marks a malformed indirect object body.
	InvalidObject
	// InvalidEncryptionDict marks an /Encrypt dictionary that fails validation.
	InvalidEncryptionDict
	// InvalidPassword marks an authentication failure. Parser state survives
	// this error so the caller may supply another password and retry.
	InvalidPassword
	// UnsupportedFontFormat marks font data the library does not handle.
	UnsupportedFontFormat
	// ObjectNotFound marks a reference with no entry or a free slot.
	ObjectNotFound
	// RecursionLimit marks nesting beyond the configured depth cap.
	RecursionLimit
	// ValueOutOfRange marks a numeric value outside its permitted domain.
	ValueOutOfRange
	// UnexpectedEOF marks input ending inside a construct.
	UnexpectedEOF
	// InternalLogic marks a violated internal invariant.
	InternalLogic
)

var codeNames = map[Code]string{
	InvalidPDF:            "InvalidPDF",
	InvalidXRef:           "InvalidXRef",
	InvalidTrailer:        "InvalidTrailer",
	InvalidEOFToken:       "InvalidEOFToken",
	InvalidNumber:         "InvalidNumber",
	InvalidName:           "InvalidName",
	InvalidDataType:       "InvalidDataType",
	InvalidObject:         "InvalidObject",
	InvalidEncryptionDict: "InvalidEncryptionDict",
	InvalidPassword:       "InvalidPassword",
	UnsupportedFontFormat: "UnsupportedFontFormat",
	ObjectNotFound:        "ObjectNotFound",
	RecursionLimit:        "RecursionLimit",
	ValueOutOfRange:       "ValueOutOfRange",
	UnexpectedEOF:         "UnexpectedEOF",
	InternalLogic:         "InternalLogic",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Frame is one context record pushed onto an error as it crosses a layer.
type Frame struct {
	Message string
	Origin  string
}

// Error is the concrete error type for all parse failures.
type Error struct {
	Code   Code
	Frames []Frame
	cause  error
}

// New builds an Error with a single frame.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{
		Code:   code,
		Frames: []Frame{{Message: fmt.Sprintf(format, args...)}},
	}
}

// Wrap attaches a code and message to an underlying error. If err is already
// an *Error the original code is kept and a frame is pushed instead.
func Wrap(err error, code Code, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	var pe *Error
	if errors.As(err, &pe) {
		return &Error{
			Code:   pe.Code,
			Frames: append([]Frame{{Message: msg}}, pe.Frames...),
			cause:  err,
		}
	}
	return &Error{
		Code:   code,
		Frames: []Frame{{Message: msg}},
		cause:  err,
	}
}

// Push adds a context frame to err without changing its code. Non-*Error
// values pass through wrapped as InternalLogic.
func Push(err error, origin, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	var pe *Error
	if errors.As(err, &pe) {
		return &Error{
			Code:   pe.Code,
			Frames: append([]Frame{{Message: msg, Origin: origin}}, pe.Frames...),
			cause:  err,
		}
	}
	return &Error{
		Code:   InternalLogic,
		Frames: []Frame{{Message: msg, Origin: origin}},
		cause:  err,
	}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code.String())
	for _, f := range e.Frames {
		b.WriteString(": ")
		if f.Origin != "" {
			b.WriteString(f.Origin)
			b.WriteString(": ")
		}
		b.WriteString(f.Message)
	}
	if e.cause != nil && len(e.Frames) == 0 {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports code equality so errors.Is(err, pdferr.New(code, "")) works and,
// more usefully, errors.Is against sentinel codes via CodeOf.
func (e *Error) Is(target error) bool {
	var pe *Error
	if errors.As(target, &pe) {
		return e.Code == pe.Code
	}
	return false
}

// CodeOf extracts the Code from err, or 0 when err is not a pdferr error.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return 0
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
