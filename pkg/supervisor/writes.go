package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/astromechza/livesync/pkg/model"
	"github.com/astromechza/livesync/pkg/transport"
)

// route asks the loop which adapter is active. The I/O itself happens on the
// caller's goroutine.
func (s *Supervisor) route(ctx context.Context) (State, transport.Link, error) {
	var state State
	var link transport.Link
	if err := s.call(ctx, func() {
		state, link = s.state, s.link
	}); err != nil {
		return 0, nil, err
	}
	return state, link, nil
}

func (s *Supervisor) send(link transport.Link, msg model.OutboundMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.Type, err)
	}
	return link.Send(raw)
}

// CreateTask validates spec and sends it through the active adapter. While
// Connected the frame is fire-and-forget; while Offline the request is
// awaited and its failure returned once.
func (s *Supervisor) CreateTask(ctx context.Context, spec model.TaskSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	state, link, err := s.route(ctx)
	if err != nil {
		return err
	}
	switch {
	case state == Connected && link != nil:
		return s.send(link, model.CreateTaskMessage(spec))
	case state == Offline:
		created, err := s.fallback.CreateTask(ctx, spec)
		if err != nil {
			return err
		}
		slog.Info("created task", "id", created.ID, "name", created.Name)
		return nil
	}
	return model.ErrNotConnected
}

// CancelTask cancels a running task through the active adapter.
func (s *Supervisor) CancelTask(ctx context.Context, id string) error {
	if id == "" {
		return &model.ValidationError{Field: "task_id", Message: "task id is required"}
	}
	state, link, err := s.route(ctx)
	if err != nil {
		return err
	}
	switch {
	case state == Connected && link != nil:
		return s.send(link, model.CancelTaskMessage(id))
	case state == Offline:
		return s.fallback.CancelTask(ctx, id)
	}
	return model.ErrNotConnected
}

// Refresh asks for fresh state. While Offline it performs one immediate read
// outside the regular schedule.
func (s *Supervisor) Refresh(ctx context.Context) error {
	state, link, err := s.route(ctx)
	if err != nil {
		return err
	}
	switch {
	case state == Connected && link != nil:
		return s.send(link, model.RefreshMessage())
	case state == Offline:
		body, err := s.fallback.ReadTasks(ctx)
		if err != nil {
			return err
		}
		return s.call(ctx, func() { s.onFallbackBody(body) })
	}
	return model.ErrNotConnected
}
