package core

import (
	"errors"
	"fmt"
)

// Error codes. Errors compare equal under errors.Is when their codes match.
const (
	CodeValidation       = "VALIDATION"
	CodeChannelConnect   = "CHANNEL_CONNECT"
	CodeSubscribe        = "SUBSCRIBE"
	CodeMalformedPayload = "MALFORMED_PAYLOAD"
	CodeInvalidTopic     = "INVALID_TOPIC"
	CodeChannelClosed    = "CHANNEL_CLOSED"
	CodeOverloaded       = "OVERLOADED"
	CodeInvalidInput     = "INVALID_INPUT"
)

// Sentinels for errors.Is checks.
var (
	ErrValidation       = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrChannelConnect   = &Error{Code: CodeChannelConnect, Message: "channel connect failed"}
	ErrSubscribe        = &Error{Code: CodeSubscribe, Message: "subscribe failed"}
	ErrMalformedPayload = &Error{Code: CodeMalformedPayload, Message: "malformed payload"}
	ErrInvalidTopic     = &Error{Code: CodeInvalidTopic, Message: "invalid topic"}
	ErrChannelClosed    = &Error{Code: CodeChannelClosed, Message: "channel closed"}
	ErrOverloaded       = &Error{Code: CodeOverloaded, Message: "overloaded"}
)

// Error is a classified error. Err, when set, is the underlying cause.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewValidationError reports bad client input.
func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewChannelConnectError reports a failure to reach the message channel at target.
func NewChannelConnectError(target string, err error) *Error {
	return &Error{Code: CodeChannelConnect, Message: "cannot connect to " + target, Err: err}
}

// NewSubscribeError reports a failed subscription to topic.
func NewSubscribeError(topic string, err error) *Error {
	return &Error{Code: CodeSubscribe, Message: "cannot subscribe to " + topic, Err: err}
}

// NewMalformedPayloadError reports an inbound payload that could not be decoded.
func NewMalformedPayloadError(reason string, err error) *Error {
	return &Error{Code: CodeMalformedPayload, Message: reason, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsMalformedPayload reports whether err is a malformed payload error.
func IsMalformedPayload(err error) bool { return errors.Is(err, ErrMalformedPayload) }
