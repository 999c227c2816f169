package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotConnected is returned for writes attempted while no adapter can carry
// them.
var ErrNotConnected = errors.New("not connected")

// TransportError describes how a primary connection attempt ended.
type TransportError struct {
	Code   int
	Reason string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport closed (code %d): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("transport closed (code %d): %s", e.Code, e.Reason)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError marks a payload that could not be turned into an update.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// RequestError is a failed request against the fallback endpoints. Message
// carries the server-supplied error text when the server sent one.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("%s %s failed: %s", e.Method, e.Path, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s %s failed: %v", e.Method, e.Path, e.Err)
	default:
		return fmt.Sprintf("%s %s failed with status %d", e.Method, e.Path, e.StatusCode)
	}
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// ValidationError is a task spec rejected before it was sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// APIError is the error member of a REST envelope. The engine sends either a
// bare string or an object with a message.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"error_type,omitempty"`
}

func (e *APIError) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		e.Message = text
		return nil
	}
	var obj struct {
		Message   string `json:"message"`
		ErrorType string `json:"error_type"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("failed to decode api error: %w", err)
	}
	e.Message = obj.Message
	e.Type = obj.ErrorType
	return nil
}

func (e APIError) MarshalJSON() ([]byte, error) {
	if e.Type == "" {
		return json.Marshal(e.Message)
	}
	return json.Marshal(struct {
		Message string `json:"message"`
		Type    string `json:"error_type"`
	}{e.Message, e.Type})
}
