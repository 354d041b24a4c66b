// Unified error handling for the print host
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration errors
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrConfigType       ErrorCode = "CONFIG_TYPE"

	// Collaborator errors raised while a print is executing
	ErrLayerSource  ErrorCode = "LAYER_SOURCE"
	ErrLaser        ErrorCode = "LASER"
	ErrPath         ErrorCode = "PATH"
	ErrAudio        ErrorCode = "AUDIO"
	ErrZAxis        ErrorCode = "ZAXIS"
	ErrZAxisControl ErrorCode = "ZAXIS_CONTROL"

	// Controller and runtime errors
	ErrController ErrorCode = "CONTROLLER"
	ErrPanic      ErrorCode = "PANIC"
)

// PrintError is the unified error type for the print host
type PrintError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Err wraps the underlying error
	Err error

	// Context provides additional context
	Context map[string]interface{}

	// Stack is set for recovered panics
	Stack string
}

// Error implements the error interface
func (e *PrintError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Context[k])
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *PrintError) Unwrap() error {
	return e.Err
}

// SetContext adds additional context
func (e *PrintError) SetContext(key string, value interface{}) *PrintError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Wrap wraps an existing error with additional context.
// A nil err yields nil.
func Wrap(err error, code ErrorCode, message string) *PrintError {
	if err == nil {
		return nil
	}
	return &PrintError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// New creates a new PrintError
func New(code ErrorCode, message string) *PrintError {
	return &PrintError{
		Code:    code,
		Message: message,
	}
}

// Config errors

// ConfigSectionError creates an error for missing config section
func ConfigSectionError(section string) *PrintError {
	return New(ErrConfigSection, fmt.Sprintf("section '%s' not found", section))
}

// ConfigOptionError creates an error for a missing config option
func ConfigOptionError(section, option string) *PrintError {
	return New(ErrConfigOption, fmt.Sprintf("option '%s' not found in section '%s'", option, section))
}

// ConfigValidationError creates an error for config validation failure
func ConfigValidationError(section, option string, reason string) *PrintError {
	return New(ErrConfigValidation, fmt.Sprintf("option '%s' in section '%s': %s", option, section, reason))
}

// ConfigTypeError creates an error for a value that cannot be parsed
func ConfigTypeError(section, option, value, targetType string) *PrintError {
	return New(ErrConfigType, fmt.Sprintf("option '%s' in section '%s': failed to parse '%s' as %s", option, section, value, targetType))
}

// Collaborator errors

// LaserError wraps a laser control failure
func LaserError(op string, err error) *PrintError {
	return Wrap(err, ErrLaser, "laser "+op+" failed")
}

// PathError wraps a path-to-audio transform failure
func PathError(err error) *PrintError {
	return Wrap(err, ErrPath, "path transform failed")
}

// AudioError wraps an audio sink failure
func AudioError(op string, err error) *PrintError {
	return Wrap(err, ErrAudio, "audio "+op+" failed")
}

// ZAxisError wraps a z-axis failure
func ZAxisError(op string, err error) *PrintError {
	return Wrap(err, ErrZAxis, "z-axis "+op+" failed")
}

// ZAxisControlError wraps a z-axis valve control failure
func ZAxisControlError(op string, err error) *PrintError {
	return Wrap(err, ErrZAxisControl, "z-axis control "+op+" failed")
}

// FromPanic converts a recovered panic value into a PANIC error.
// It must be passed the result of recover() from the deferred function itself.
func FromPanic(r interface{}) *PrintError {
	if r == nil {
		return nil
	}
	var e *PrintError
	switch x := r.(type) {
	case error:
		e = &PrintError{Code: ErrPanic, Message: "panic", Err: x}
	default:
		e = New(ErrPanic, fmt.Sprintf("panic: %v", x))
	}
	e.Stack = firstFrames(debug.Stack(), 12)
	return e
}

func firstFrames(stack []byte, lines int) string {
	parts := strings.SplitN(string(stack), "\n", lines+1)
	if len(parts) > lines {
		parts = parts[:lines]
	}
	return strings.Join(parts, " | ")
}

// Is checks if any error in err's chain is a PrintError with the given code
func Is(err error, code ErrorCode) bool {
	var pe *PrintError
	for err != nil {
		if !stderrors.As(err, &pe) {
			return false
		}
		if pe.Code == code {
			return true
		}
		err = pe.Err
	}
	return false
}

// CodeOf returns the code of the outermost PrintError in err's chain
func CodeOf(err error) (ErrorCode, bool) {
	var pe *PrintError
	if stderrors.As(err, &pe) {
		return pe.Code, true
	}
	return "", false
}

// IsConfig checks if error is a config error
func IsConfig(err error) bool {
	return Is(err, ErrConfigSection) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation) ||
		Is(err, ErrConfigType)
}
