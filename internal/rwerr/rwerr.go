// Package rwerr defines the error-kind taxonomy shared across the core
// control packages: callers switch on Code, not on error identity, so a
// safety trip propagates differently from a missing sensor.
package rwerr

import "fmt"

// Code is a coarse error kind, not a full type hierarchy.
type Code int

const (
	// Configuration
	NotConfigured Code = iota
	Misconfigured
	Invalid
	Unknown
	Exists

	// Lifecycle
	Offline
	Init
	Ignore

	// Runtime arithmetic/logic
	InvalidMode
	Deadzone
	Deadband
	Generic

	// Sensor
	SensorInval
	SensorShort
	SensorDiscon

	// Hardware
	Hardware
	Safety
	Mismatch
	NotFound

	// Resources
	OOM
	IO
	Store
)

var names = map[Code]string{
	NotConfigured: "NOT_CONFIGURED",
	Misconfigured: "MISCONFIGURED",
	Invalid:       "INVALID",
	Unknown:       "UNKNOWN",
	Exists:        "EXISTS",
	Offline:       "OFFLINE",
	Init:          "INIT",
	Ignore:        "IGNORE",
	InvalidMode:   "INVALID_MODE",
	Deadzone:      "DEADZONE",
	Deadband:      "DEADBAND",
	Generic:       "GENERIC",
	SensorInval:   "SENSOR_INVAL",
	SensorShort:   "SENSOR_SHORT",
	SensorDiscon:  "SENSOR_DISCON",
	Hardware:      "HARDWARE",
	Safety:        "SAFETY",
	Mismatch:      "MISMATCH",
	NotFound:      "NOT_FOUND",
	OOM:           "OOM",
	IO:            "IO",
	Store:         "STORE",
}

func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return "UNKNOWN_CODE"
}

// Error wraps a Code with a message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap builds an *Error carrying cause.
func Wrap(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// CodeOf returns the Code carried by err (unwrapping as needed), or
// Generic if err carries none.
func CodeOf(err error) Code {
	var e *Error
	if asError(err, &e) {
		return e.Code
	}
	return Generic
}

// Is reports whether err is an *Error of the given code.
func Is(err error, code Code) bool {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Code == code
	}
	return false
}

func asError(err error, target **Error) bool {
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
