// Package errors defines the stable error taxonomy shared by every layer of
// the ZTeraDB client. Each kind carries a fixed integer code so callers can
// classify failures without string matching.
package errors

import (
	"errors"
	"fmt"
)

// Stable error codes. These match the codes emitted by other ZTeraDB client
// implementations, except NoResponseData, which has its own code 101 here
// instead of sharing 100 with JSONParse. They must not be renumbered.
const (
	CodeQueryComplete  = 0
	CodeConnection     = 10
	CodeProtocol       = 20
	CodeAuth           = 30
	CodeValue          = 40
	CodeQuery          = 90
	CodeJSONParse      = 100
	CodeNoResponseData = 101
)

// Error is a coded client error. Err, when non-nil, is the underlying cause
// and participates in errors.Is/As chains via Unwrap.
type Error struct {
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with an explicit code.
func New(code int, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Connection reports a socket create/connect/read failure.
func Connection(message string, err error) *Error {
	return New(CodeConnection, message, err)
}

// Protocol reports interrupted or malformed framing.
func Protocol(message string, err error) *Error {
	return New(CodeProtocol, message, err)
}

// Auth reports a rejected handshake or an incomplete token record.
func Auth(message string, err error) *Error {
	return New(CodeAuth, message, err)
}

// Value reports invalid user input to a builder or constructor.
func Value(format string, args ...interface{}) *Error {
	return New(CodeValue, fmt.Sprintf(format, args...), nil)
}

// Query reports a non-data, non-terminator server response to a query.
func Query(message string) *Error {
	return New(CodeQuery, message, nil)
}

// JSONParse reports a malformed JSON payload. The offending bytes are
// truncated to 500 bytes in the message.
func JSONParse(payload []byte, err error) *Error {
	const maxPreview = 500
	preview := payload
	if len(preview) > maxPreview {
		preview = preview[:maxPreview]
	}
	return New(CodeJSONParse, fmt.Sprintf("invalid JSON payload: %s", preview), err)
}

// NoResponseData reports a query that completed without yielding any rows
// where at least one was required.
func NoResponseData(message string) *Error {
	return New(CodeNoResponseData, message, nil)
}

// CodeOf returns the code of the first *Error in err's chain, or -1 if none.
func CodeOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return -1
}

func is(err error, code int) bool {
	return CodeOf(err) == code
}

func IsConnection(err error) bool     { return is(err, CodeConnection) }
func IsProtocol(err error) bool       { return is(err, CodeProtocol) }
func IsAuth(err error) bool           { return is(err, CodeAuth) }
func IsValue(err error) bool          { return is(err, CodeValue) }
func IsQuery(err error) bool          { return is(err, CodeQuery) }
func IsJSONParse(err error) bool      { return is(err, CodeJSONParse) }
func IsNoResponseData(err error) bool { return is(err, CodeNoResponseData) }
