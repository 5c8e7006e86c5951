package rig

import (
	"errors"
	"fmt"
)

// ErrorKind classifies control-plane failures for retry decisions.
type ErrorKind int

const (
	// KindValidation is a bad parameter or an operation disallowed in
	// the current state. Never retried.
	KindValidation ErrorKind = iota
	// KindExecution is a hardware I/O failure. Retried per the backoff
	// policy and surfaced only after exhaustion.
	KindExecution
	// KindDecode is malformed data received from the hardware (e.g. an
	// invalid BCD digit). Never retried.
	KindDecode
	// KindTimeout is a caller-side wait that expired. The control task
	// may still complete the operation server-side.
	KindTimeout
	// KindBusy means the command queue was full when the request was
	// submitted.
	KindBusy
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindExecution:
		return "execution"
	case KindDecode:
		return "decode"
	case KindTimeout:
		return "timeout"
	case KindBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Error is the typed error returned by rig requests.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Retryable reports whether the failure may succeed on retry. Only
// hardware execution failures qualify.
func (e *Error) Retryable() bool {
	return e.Kind == KindExecution
}

// Validationf builds a validation error.
func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Executionf builds a hardware execution error.
func Executionf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindExecution, Message: fmt.Sprintf(format, args...)}
}

// Decodef builds a malformed-data error.
func Decodef(format string, args ...interface{}) *Error {
	return &Error{Kind: KindDecode, Message: fmt.Sprintf(format, args...)}
}

// ErrBusy is returned by Submit when the command queue is full.
func ErrBusy() *Error {
	return &Error{Kind: KindBusy, Message: "rig busy: command queue full"}
}

// ErrReplyTimeout is returned when a caller stops waiting for a reply.
func ErrReplyTimeout() *Error {
	return &Error{Kind: KindTimeout, Message: "timed out waiting for rig reply"}
}

// Classify coerces an arbitrary backend error into a typed Error.
// Unknown errors are assumed to be transient hardware failures.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr
	}
	return &Error{Kind: KindExecution, Message: err.Error()}
}
