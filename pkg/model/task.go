package model

import (
	"time"
	"unicode/utf8"
)

// TaskKind is the discriminant of a task type.
type TaskKind string

const (
	KindQuick  TaskKind = "quick"
	KindLong   TaskKind = "long"
	KindError  TaskKind = "error"
	KindCustom TaskKind = "custom"
)

// ErrorKind selects how an error task fails.
type ErrorKind string

const (
	ErrorImmediate  ErrorKind = "immediate"
	ErrorTimeout    ErrorKind = "timeout"
	ErrorRandom     ErrorKind = "random"
	ErrorNetwork    ErrorKind = "network"
	ErrorValidation ErrorKind = "validation"
)

const (
	MaxNameLength      = 100
	MaxMessageLength   = 500
	MaxCustomTimeoutMs = 300000
	DefaultCustomMs    = 5000
	minTimeoutMs       = 100
)

// TaskType is the task_type object of a create request.
type TaskType struct {
	Kind        TaskKind  `json:"type"`
	TimeoutMs   *int64    `json:"timeout_ms,omitempty"`
	ErrorType   ErrorKind `json:"error_type,omitempty"`
	CustomName  string    `json:"custom_name,omitempty"`
	FailureRate *float64  `json:"failure_rate,omitempty"`
}

// DefaultTimeout is the timeout the engine applies when none is supplied.
func (t TaskType) DefaultTimeout() time.Duration {
	ms := int64(0)
	switch t.Kind {
	case KindQuick:
		ms = 2000
	case KindLong:
		ms = 10000
	case KindError:
		ms = 5000
	case KindCustom:
		ms = DefaultCustomMs
	}
	if t.TimeoutMs != nil {
		ms = *t.TimeoutMs
	}
	if ms < minTimeoutMs {
		ms = minTimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

// TaskSpec is a request to create a task.
type TaskSpec struct {
	Name     string   `json:"name"`
	Message  string   `json:"message"`
	TaskType TaskType `json:"task_type"`
}

// Validate applies the same limits the engine enforces so a bad request fails
// before anything is sent.
func (s TaskSpec) Validate() error {
	if n := utf8.RuneCountInString(s.Name); n > MaxNameLength {
		return &ValidationError{Field: "name", Message: "task name cannot exceed 100 characters"}
	}
	if n := utf8.RuneCountInString(s.Message); n > MaxMessageLength {
		return &ValidationError{Field: "message", Message: "task message cannot exceed 500 characters"}
	}
	switch s.TaskType.Kind {
	case KindQuick, KindLong:
	case KindError:
		switch s.TaskType.ErrorType {
		case "", ErrorImmediate, ErrorTimeout, ErrorRandom, ErrorNetwork, ErrorValidation:
		default:
			return &ValidationError{Field: "task_type.error_type", Message: "unknown error type " + string(s.TaskType.ErrorType)}
		}
	case KindCustom:
		if s.TaskType.TimeoutMs != nil && *s.TaskType.TimeoutMs > MaxCustomTimeoutMs {
			return &ValidationError{Field: "task_type.timeout_ms", Message: "custom task timeout cannot exceed 5 minutes (300000ms)"}
		}
		if r := s.TaskType.FailureRate; r != nil && (*r < 0 || *r > 1) {
			return &ValidationError{Field: "task_type.failure_rate", Message: "failure rate must be between 0.0 and 1.0"}
		}
	default:
		return &ValidationError{Field: "task_type.type", Message: "unknown task type " + string(s.TaskType.Kind)}
	}
	return nil
}

// ForRequest fills in the fields the REST endpoint requires for custom tasks.
func (s TaskSpec) ForRequest() TaskSpec {
	if s.TaskType.Kind != KindCustom {
		return s
	}
	if s.TaskType.CustomName == "" {
		s.TaskType.CustomName = s.Name
		if s.TaskType.CustomName == "" {
			s.TaskType.CustomName = "Custom Task"
		}
	}
	if s.TaskType.TimeoutMs == nil {
		ms := int64(DefaultCustomMs)
		s.TaskType.TimeoutMs = &ms
	}
	return s
}

// CreatedTask is the data of a successful create response.
type CreatedTask struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    TaskStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}
