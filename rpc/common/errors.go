package common

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotImplemented is returned by pool strategies that do not implement node selection
var ErrNotImplemented = errors.New("pool: getConnection must be implemented")

// --------------------------------------------------------------------------
// Configuration errors (fatal, never retried)
// --------------------------------------------------------------------------

// ConfigurationError reports an invalid client setup, e.g. no nodes given
type ConfigurationError struct {
	Msg string
}

func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	return "ConfigurationError: " + e.Msg
}

// DuplicateConnectionError is returned when a connection id is already part of a pool
type DuplicateConnectionError struct {
	ID string
}

func (e *DuplicateConnectionError) Error() string {
	return fmt.Sprintf("Connection with id '%s' is already present", e.ID)
}

// --------------------------------------------------------------------------
// Connectivity errors (absorbed by the retry loop)
// --------------------------------------------------------------------------

// ConnectionError is a socket or connect level failure of a single attempt.
// Previous holds the errors of the attempts made before this one.
type ConnectionError struct {
	Err      error
	Meta     *RequestMeta
	Previous []error
}

func (e *ConnectionError) Error() string {
	return "ConnectionError: " + e.Err.Error() + formatPrevious(e.Previous)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError is returned when an attempt exceeds its request timeout
type TimeoutError struct {
	Err      error
	Meta     *RequestMeta
	Previous []error
}

func (e *TimeoutError) Error() string {
	return "TimeoutError: " + e.Err.Error() + formatPrevious(e.Previous)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// NoLivingConnectionsError is returned when the pool has nothing left to hand out
type NoLivingConnectionsError struct {
	Meta     *RequestMeta
	Previous []error
}

func (e *NoLivingConnectionsError) Error() string {
	return "NoLivingConnectionsError: there are no living connections" + formatPrevious(e.Previous)
}

// RequestAbortedError is returned when the caller cancels the request context
type RequestAbortedError struct {
	Err  error
	Meta *RequestMeta
}

func (e *RequestAbortedError) Error() string {
	if e.Err == nil {
		return "RequestAbortedError: request aborted"
	}
	return "RequestAbortedError: request aborted: " + e.Err.Error()
}

func (e *RequestAbortedError) Unwrap() error { return e.Err }

// --------------------------------------------------------------------------
// Payload errors (fatal, retrying would repeat the same failure)
// --------------------------------------------------------------------------

// SerializationError is returned when a request payload cannot be encoded
type SerializationError struct {
	Err  error
	Data any
}

func (e *SerializationError) Error() string {
	return "SerializationError: " + e.Err.Error()
}

func (e *SerializationError) Unwrap() error { return e.Err }

// DeserializationError is returned when a response payload is malformed or unsafe
type DeserializationError struct {
	Err  error
	Data []byte
}

func (e *DeserializationError) Error() string {
	return "DeserializationError: " + e.Err.Error()
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// --------------------------------------------------------------------------
// Response errors (the node answered with a non 2xx status)
// --------------------------------------------------------------------------

// ResponseError carries the status code and the parsed error body of a failed response
type ResponseError struct {
	StatusCode int
	Body       any
	Headers    map[string][]string
	Meta       *RequestMeta
}

func (e *ResponseError) Error() string {
	if reason := e.reason(); reason != "" {
		return fmt.Sprintf("ResponseError: %d %s", e.StatusCode, reason)
	}
	return fmt.Sprintf("ResponseError: status code %d", e.StatusCode)
}

// reason extracts error.type (and error.reason) from an OpenSearch style error body
func (e *ResponseError) reason() string {
	body, ok := e.Body.(map[string]any)
	if !ok {
		if s, ok := e.Body.(string); ok {
			return s
		}
		return ""
	}
	switch errBody := body["error"].(type) {
	case string:
		return errBody
	case map[string]any:
		typ, _ := errBody["type"].(string)
		reason, _ := errBody["reason"].(string)
		if reason == "" {
			return typ
		}
		if typ == "" {
			return reason
		}
		return typ + ": " + reason
	}
	return ""
}

// formatPrevious renders the errors of the earlier attempts, if any
func formatPrevious(previous []error) string {
	if len(previous) == 0 {
		return ""
	}
	parts := make([]string, len(previous))
	for i, err := range previous {
		parts[i] = err.Error()
	}
	return fmt.Sprintf(" (after %d failed attempt(s): %s)", len(previous), strings.Join(parts, "; "))
}
