package core

import (
	"errors"
	"fmt"
)

// Kind categorizes engine errors.
type Kind string

const (
	// KindPermissionDenied means microphone or camera access was denied or revoked.
	KindPermissionDenied Kind = "permission_denied"
	// KindTransport means the live connection was lost or a send failed.
	KindTransport Kind = "transport_error"
	// KindDecode means an inbound chunk could not be decoded.
	KindDecode Kind = "decode_error"
	// KindDevice means an audio device could not be initialized or failed.
	KindDevice Kind = "device_error"
)

// Error is the engine error type. Kind drives propagation policy: decode
// errors are droppable per chunk, everything else tears the session down.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// Fatal reports whether the error must end the session. A single bad inbound
// chunk is logged and dropped; every other kind is terminal.
func (e *Error) Fatal() bool {
	return e.Kind != KindDecode
}

// NewPermissionDenied creates a permission error for a device name.
func NewPermissionDenied(device string, err error) *Error {
	return &Error{
		Kind:    KindPermissionDenied,
		Message: fmt.Sprintf("access to %s was denied", device),
		Err:     err,
	}
}

// NewTransportError creates a transport error.
func NewTransportError(message string, err error) *Error {
	return &Error{
		Kind:    KindTransport,
		Message: message,
		Err:     err,
	}
}

// NewDecodeError creates a decode error for a single inbound chunk.
func NewDecodeError(message string, err error) *Error {
	return &Error{
		Kind:    KindDecode,
		Message: message,
		Err:     err,
	}
}

// NewDeviceError creates a device initialization/failure error.
func NewDeviceError(message string, err error) *Error {
	return &Error{
		Kind:    KindDevice,
		Message: message,
		Err:     err,
	}
}

// KindOf returns the Kind of err, or "" if err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
