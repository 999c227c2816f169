package model

// Inbound message types sent by the engine over the websocket.
const (
	MessageFullPageLoad   = "full_page_load"
	MessageTaskGridUpdate = "task_grid_update"
)

// Outbound message types understood by the engine.
const (
	MessageCreateTask       = "create_task"
	MessageCreateCustomTask = "create_custom_task"
	MessageCancelTask       = "cancel_task"
	MessageRefresh          = "refresh"
)

// InboundMessage is a websocket frame from the engine.
type InboundMessage struct {
	Type string `json:"type"`
	HTML string `json:"html"`
}

// OutboundMessage is a websocket frame to the engine.
type OutboundMessage struct {
	Type              string   `json:"type"`
	TaskType          TaskKind `json:"task_type,omitempty"`
	Name              string   `json:"name,omitempty"`
	Message           string   `json:"message,omitempty"`
	CustomTimeout     *int64   `json:"custom_timeout,omitempty"`
	CustomFailureRate *float64 `json:"custom_failure_rate,omitempty"`
	TaskID            string   `json:"task_id,omitempty"`
}

// CreateTaskMessage translates a spec into the websocket form. Plain tasks with
// no name or message use create_task; anything else needs create_custom_task.
func CreateTaskMessage(spec TaskSpec) OutboundMessage {
	if spec.TaskType.Kind != KindCustom && spec.Name == "" && spec.Message == "" {
		return OutboundMessage{Type: MessageCreateTask, TaskType: spec.TaskType.Kind}
	}
	msg := OutboundMessage{
		Type:     MessageCreateCustomTask,
		TaskType: spec.TaskType.Kind,
		Name:     spec.Name,
		Message:  spec.Message,
	}
	if spec.TaskType.Kind == KindCustom {
		msg.CustomTimeout = spec.TaskType.TimeoutMs
		msg.CustomFailureRate = spec.TaskType.FailureRate
	}
	return msg
}

func CancelTaskMessage(id string) OutboundMessage {
	return OutboundMessage{Type: MessageCancelTask, TaskID: id}
}

func RefreshMessage() OutboundMessage {
	return OutboundMessage{Type: MessageRefresh}
}

// APIResponse is the envelope of every REST response.
type APIResponse[T any] struct {
	Success bool      `json:"success"`
	Data    *T        `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// TaskList is the data of GET /api/tasks.
type TaskList struct {
	Tasks []Item `json:"tasks"`
	Total int    `json:"total"`
}
