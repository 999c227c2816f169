// Package model holds the shapes exchanged between the task engine and the
// sync client: items, task creation requests, wire messages and the canonical
// update model both transports are normalized into.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle status of a task. Each status owns one region of
// the synchronized board.
type TaskStatus string

const (
	StatusInProgress TaskStatus = "InProgress"
	StatusCompleted  TaskStatus = "Completed"
	StatusError      TaskStatus = "Error"
)

// Statuses lists the statuses in board order. Region i of a board always holds
// the tasks with status Statuses[i].
var Statuses = []TaskStatus{StatusInProgress, StatusCompleted, StatusError}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusInProgress, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Title is the human column heading the server renders for the status.
func (s TaskStatus) Title() string {
	switch s {
	case StatusInProgress:
		return "In Progress"
	case StatusCompleted:
		return "Completed"
	case StatusError:
		return "Error"
	}
	return string(s)
}

// RegionIndex returns the board position of the status or -1.
func (s TaskStatus) RegionIndex() int {
	for i, st := range Statuses {
		if st == s {
			return i
		}
	}
	return -1
}

// Item is one task as reported by the engine.
type Item struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Message     string     `json:"message"`
	Status      TaskStatus `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	DurationMs  *int64     `json:"actual_duration_ms,omitempty"`
	Result      *string    `json:"result,omitempty"`
	Error       *string    `json:"error,omitempty"`
	TimeoutMs   int64      `json:"timeout_ms,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	TimeoutAt   *time.Time `json:"timeout_at,omitempty"`
}

// Validate checks the fields every item read from the fallback endpoint must
// carry.
func (i Item) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("item is missing an id")
	}
	if _, err := uuid.Parse(i.ID); err != nil {
		return fmt.Errorf("item id %q is not a uuid: %w", i.ID, err)
	}
	if !i.Status.Valid() {
		return fmt.Errorf("item %s has unknown status %q", i.ID, i.Status)
	}
	if i.StartedAt.IsZero() {
		return fmt.Errorf("item %s is missing started_at", i.ID)
	}
	return nil
}

func (i Item) WasCancelled() bool {
	return i.CancelledAt != nil
}

func (i Item) TimedOut() bool {
	return i.TimeoutAt != nil
}
