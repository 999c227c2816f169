package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	cbackoff "github.com/cenkalti/backoff"

	"github.com/astromechza/livesync/pkg/model"
)

const (
	DefaultTasksPath  = "/api/tasks"
	DefaultHealthPath = "/api/health"
)

// Fallback talks to the engine's REST endpoints.
type Fallback struct {
	Client     *http.Client
	BaseURL    *url.URL
	TasksPath  string
	HealthPath string
}

func NewFallback(baseURL *url.URL, timeout time.Duration) *Fallback {
	return &Fallback{
		Client:     &http.Client{Timeout: timeout},
		BaseURL:    baseURL,
		TasksPath:  DefaultTasksPath,
		HealthPath: DefaultHealthPath,
	}
}

// ReadTasks fetches the complete task list and returns the raw response body
// for the normalizer.
func (f *Fallback) ReadTasks(ctx context.Context) ([]byte, error) {
	resp, body, err := f.do(ctx, http.MethodGet, f.TasksPath, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, requestError(http.MethodGet, f.TasksPath, resp.StatusCode, body)
	}
	return body, nil
}

// CreateTask issues one create request. A failure is returned to the caller
// and never retried.
func (f *Fallback) CreateTask(ctx context.Context, spec model.TaskSpec) (model.CreatedTask, error) {
	payload, err := json.Marshal(spec.ForRequest())
	if err != nil {
		return model.CreatedTask{}, fmt.Errorf("failed to encode task: %w", err)
	}
	resp, body, err := f.do(ctx, http.MethodPost, f.TasksPath, payload)
	if err != nil {
		return model.CreatedTask{}, err
	}
	var out model.APIResponse[model.CreatedTask]
	if err := json.Unmarshal(body, &out); err != nil || resp.StatusCode/100 != 2 || !out.Success || out.Data == nil {
		return model.CreatedTask{}, requestError(http.MethodPost, f.TasksPath, resp.StatusCode, body)
	}
	return *out.Data, nil
}

// CancelTask issues one cancel request for the task id.
func (f *Fallback) CancelTask(ctx context.Context, id string) error {
	path := f.TasksPath + "/" + url.PathEscape(id)
	resp, body, err := f.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	var out model.APIResponse[json.RawMessage]
	if err := json.Unmarshal(body, &out); err != nil || resp.StatusCode/100 != 2 || !out.Success {
		return requestError(http.MethodDelete, path, resp.StatusCode, body)
	}
	return nil
}

// Health checks the engine's health endpoint.
func (f *Fallback) Health(ctx context.Context) error {
	resp, body, err := f.do(ctx, http.MethodGet, f.HealthPath, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return requestError(http.MethodGet, f.HealthPath, resp.StatusCode, body)
	}
	return nil
}

// Poll reads the task list immediately and then every interval until ctx is
// cancelled. Read failures are reported through onErr and never stop the
// loop.
func (f *Fallback) Poll(ctx context.Context, interval time.Duration, onBody func([]byte), onErr func(error)) {
	ticker := cbackoff.NewTicker(cbackoff.NewConstantBackOff(interval))
	defer ticker.Stop()

	slog.Info("starting fallback read loop", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping fallback read loop")
			return
		case _, ok := <-ticker.C:
			if !ok {
				return
			}
			body, err := f.ReadTasks(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				onErr(err)
				continue
			}
			onBody(body)
		}
	}
}

func (f *Fallback) do(ctx context.Context, method, path string, payload []byte) (*http.Response, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, f.BaseURL.JoinPath(path).String(), reader)
	if err != nil {
		return nil, nil, &model.RequestError{Method: method, Path: path, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, nil, &model.RequestError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &model.RequestError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	return resp, body, nil
}

// requestError builds a RequestError, lifting the server's message out of the
// envelope when there is one.
func requestError(method, path string, status int, body []byte) *model.RequestError {
	re := &model.RequestError{Method: method, Path: path, StatusCode: status}
	var env model.APIResponse[json.RawMessage]
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		re.Message = env.Error.Message
	}
	return re
}
