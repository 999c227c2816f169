// Package testserver is an in-process stand-in for the task engine. It serves
// the websocket live view and the REST endpoints with just enough behavior to
// exercise the client end to end.
package testserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/astromechza/livesync/pkg/model"
)

type Server struct {
	router   *mux.Router
	upgrader websocket.Upgrader

	// RejectWebsocket makes websocket upgrades fail with 503.
	RejectWebsocket atomic.Bool
	// FailReads makes the next n task list reads fail with 500.
	FailReads atomic.Int32
	// FailCreates makes the next n task creations fail with 500.
	FailCreates atomic.Int32
	// PingInterval makes the server ping live view clients.
	PingInterval time.Duration

	mu       sync.Mutex
	tasks    map[string]*model.Item
	conns    map[*liveConn]struct{}
	received []model.OutboundMessage
	reads    int
}

type liveConn struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	lastGrid string
}

func New() *Server {
	s := &Server{
		tasks: make(map[string]*model.Item),
		conns: make(map[*liveConn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			slog.Debug("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})
	r.Methods(http.MethodGet).Path("/ws/").HandlerFunc(s.live)
	r.Methods(http.MethodGet).Path("/api/health").HandlerFunc(s.health)
	r.Methods(http.MethodGet).Path("/api/tasks").HandlerFunc(s.listTasks)
	r.Methods(http.MethodPost).Path("/api/tasks").HandlerFunc(s.createTask)
	r.Methods(http.MethodDelete).Path("/api/tasks/{id}").HandlerFunc(s.cancelTask)
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Seed adds tasks without notifying anyone.
func (s *Server) Seed(items ...model.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range items {
		it := items[i]
		s.tasks[it.ID] = &it
	}
}

// Tasks returns all tasks ordered by start time.
func (s *Server) Tasks() []model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Received returns every frame clients sent over the websocket.
func (s *Server) Received() []model.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.OutboundMessage(nil), s.received...)
}

// Reads counts successful task list reads.
func (s *Server) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Connections counts live view clients.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Complete finishes a task and pushes the new grid to live view clients.
func (s *Server) Complete(id, result string) {
	s.mu.Lock()
	if it, ok := s.tasks[id]; ok {
		now := time.Now().UTC()
		ms := now.Sub(it.StartedAt).Milliseconds()
		it.Status = model.StatusCompleted
		it.FinishedAt = &now
		it.DurationMs = &ms
		it.Result = &result
	}
	s.mu.Unlock()
	s.pushGrid()
}

// DropConnections closes every live view connection with the given code.
func (s *Server) DropConnections(code int) {
	s.mu.Lock()
	conns := make([]*liveConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, "dropped"), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	}
}

func (s *Server) snapshotLocked() []model.Item {
	out := make([]model.Item, 0, len(s.tasks))
	for _, it := range s.tasks {
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Server) live(writer http.ResponseWriter, request *http.Request) {
	if s.RejectWebsocket.Load() {
		writer.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		slog.Error("failed to upgrade", "err", err)
		return
	}
	lc := &liveConn{conn: conn}

	s.mu.Lock()
	s.conns[lc] = struct{}{}
	items := s.snapshotLocked()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, lc)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	lc.writeMu.Lock()
	lc.lastGrid = RenderGrid(items)
	lc.writeMu.Unlock()
	if err := lc.write(model.InboundMessage{Type: model.MessageFullPageLoad, HTML: RenderPage(items)}); err != nil {
		slog.Error("failed to send page", "err", err)
		return
	}

	if s.PingInterval > 0 {
		done := make(chan struct{})
		defer close(done)
		go lc.ping(s.PingInterval, done)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg model.OutboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Error("failed to decode frame", "err", err)
			continue
		}
		s.mu.Lock()
		s.received = append(s.received, msg)
		s.mu.Unlock()

		switch msg.Type {
		case model.MessageCreateTask, model.MessageCreateCustomTask:
			s.addTask(model.TaskSpec{Name: msg.Name, Message: msg.Message, TaskType: model.TaskType{Kind: msg.TaskType}})
		case model.MessageCancelTask:
			_, _ = s.cancel(msg.TaskID)
		case model.MessageRefresh:
		default:
			slog.Warn("unknown message type", "type", msg.Type)
			continue
		}
		s.pushGrid()
	}
}

func (lc *liveConn) write(msg model.InboundMessage) error {
	lc.writeMu.Lock()
	defer lc.writeMu.Unlock()
	return lc.conn.WriteJSON(msg)
}

func (lc *liveConn) ping(interval time.Duration, done <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			lc.writeMu.Lock()
			err := lc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			lc.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// pushGrid sends a grid update to every client whose last grid differs.
func (s *Server) pushGrid() {
	s.mu.Lock()
	grid := RenderGrid(s.snapshotLocked())
	conns := make([]*liveConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.writeMu.Lock()
		changed := c.lastGrid != grid
		c.lastGrid = grid
		c.writeMu.Unlock()
		if !changed {
			continue
		}
		if err := c.write(model.InboundMessage{Type: model.MessageTaskGridUpdate, HTML: grid}); err != nil {
			slog.Error("failed to push grid", "err", err)
		}
	}
}

func (s *Server) addTask(spec model.TaskSpec) model.Item {
	name := spec.Name
	if name == "" {
		name = spec.TaskType.CustomName
	}
	if name == "" {
		name = string(spec.TaskType.Kind) + " task"
	}
	it := model.Item{
		ID:        uuid.NewString(),
		Name:      name,
		Message:   spec.Message,
		Status:    model.StatusInProgress,
		StartedAt: time.Now().UTC(),
		TimeoutMs: spec.TaskType.DefaultTimeout().Milliseconds(),
	}
	s.mu.Lock()
	s.tasks[it.ID] = &it
	s.mu.Unlock()
	return it
}

var (
	errNotFound   = errors.New("task not found")
	errNotRunning = errors.New("task is already completed")
)

func (s *Server) cancel(id string) (model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.tasks[id]
	if !ok {
		return model.Item{}, errNotFound
	}
	if it.Status != model.StatusInProgress {
		return model.Item{}, errNotRunning
	}
	now := time.Now().UTC()
	ms := now.Sub(it.StartedAt).Milliseconds()
	msg := "Task was cancelled"
	it.Status = model.StatusError
	it.FinishedAt = &now
	it.CancelledAt = &now
	it.DurationMs = &ms
	it.Error = &msg
	return *it, nil
}

func (s *Server) health(writer http.ResponseWriter, request *http.Request) {
	writeJSON(writer, http.StatusOK, map[string]interface{}{"status": "healthy", "timestamp": time.Now().UTC()})
}

func (s *Server) listTasks(writer http.ResponseWriter, request *http.Request) {
	if s.FailReads.Load() > 0 {
		s.FailReads.Add(-1)
		writeJSON(writer, http.StatusInternalServerError, model.APIResponse[struct{}]{Error: &model.APIError{Message: "Failed to retrieve tasks - internal service error"}})
		return
	}
	s.mu.Lock()
	items := s.snapshotLocked()
	s.reads++
	s.mu.Unlock()
	writeJSON(writer, http.StatusOK, model.APIResponse[model.TaskList]{Success: true, Data: &model.TaskList{Tasks: items, Total: len(items)}})
}

func (s *Server) createTask(writer http.ResponseWriter, request *http.Request) {
	var spec model.TaskSpec
	if err := json.NewDecoder(request.Body).Decode(&spec); err != nil {
		writeJSON(writer, http.StatusBadRequest, model.APIResponse[struct{}]{Error: &model.APIError{Message: "invalid request body"}})
		return
	}
	if err := spec.Validate(); err != nil {
		var verr *model.ValidationError
		msg := err.Error()
		if errors.As(err, &verr) {
			msg = verr.Message
		}
		writeJSON(writer, http.StatusBadRequest, model.APIResponse[struct{}]{Error: &model.APIError{Message: msg, Type: "validation"}})
		return
	}
	if s.FailCreates.Load() > 0 {
		s.FailCreates.Add(-1)
		writeJSON(writer, http.StatusInternalServerError, model.APIResponse[struct{}]{Error: &model.APIError{Message: "Failed to create task - internal service error"}})
		return
	}
	it := s.addTask(spec)
	s.pushGrid()
	writeJSON(writer, http.StatusCreated, model.APIResponse[model.CreatedTask]{Success: true, Data: &model.CreatedTask{
		ID: it.ID, Name: it.Name, Status: it.Status, CreatedAt: it.StartedAt,
	}})
}

func (s *Server) cancelTask(writer http.ResponseWriter, request *http.Request) {
	id := mux.Vars(request)["id"]
	if _, err := s.cancel(id); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(writer, status, model.APIResponse[struct{}]{Error: &model.APIError{Message: err.Error()}})
		return
	}
	s.pushGrid()
	msg := "Task cancelled successfully"
	writeJSON(writer, http.StatusOK, model.APIResponse[string]{Success: true, Data: &msg})
}

func writeJSON(writer http.ResponseWriter, status int, body interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(body); err != nil {
		slog.Error("failed to write out", "err", err)
	}
}
