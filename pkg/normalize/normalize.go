// Package normalize turns payloads from either transport into canonical
// updates. Anything it cannot make sense of comes back as a
// *model.ProtocolError for the caller to log and drop.
package normalize

import (
	"encoding/json"
	"sort"

	"github.com/astromechza/livesync/pkg/model"
)

// Primary converts one websocket frame.
func Primary(payload []byte) (model.Update, error) {
	var msg model.InboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return model.Update{}, &model.ProtocolError{Reason: "frame is not a json object", Err: err}
	}
	switch msg.Type {
	case model.MessageFullPageLoad:
		if msg.HTML == "" {
			return model.Update{}, noHTML(msg.Type)
		}
		regions, err := parsePage(msg.HTML)
		if err != nil {
			return model.Update{}, err
		}
		return model.FullReplica(model.Document{Markup: msg.HTML, Regions: regions}), nil
	case model.MessageTaskGridUpdate:
		if msg.HTML == "" {
			return model.Update{}, noHTML(msg.Type)
		}
		regions, err := parseGrid(msg.HTML)
		if err != nil {
			return model.Update{}, err
		}
		updates := make([]model.RegionUpdate, len(regions))
		for i, r := range regions {
			updates[i] = model.RegionUpdate{Index: i, Count: r.Count, Title: r.Title, Content: r.Content, Items: r.Items}
		}
		return model.RegionPatch(updates...), nil
	case "":
		return model.Update{}, &model.ProtocolError{Reason: "frame has no type"}
	default:
		return model.Update{}, &model.ProtocolError{Reason: "unknown frame type " + msg.Type}
	}
}

func noHTML(kind string) error {
	return &model.ProtocolError{Reason: "frame " + kind + " has no html"}
}

// Fallback converts a GET /api/tasks response body.
func Fallback(body []byte) (model.Update, error) {
	if err := checkTaskList(body); err != nil {
		return model.Update{}, err
	}
	var env model.APIResponse[model.TaskList]
	if err := json.Unmarshal(body, &env); err != nil {
		return model.Update{}, &model.ProtocolError{Reason: "task list is not valid json", Err: err}
	}
	if !env.Success {
		reason := "task list response reported failure"
		if env.Error != nil && env.Error.Message != "" {
			reason += ": " + env.Error.Message
		}
		return model.Update{}, &model.ProtocolError{Reason: reason}
	}
	if env.Data == nil {
		return model.Update{}, &model.ProtocolError{Reason: "task list response has no data"}
	}
	for _, it := range env.Data.Tasks {
		if err := it.Validate(); err != nil {
			return model.Update{}, &model.ProtocolError{Reason: "invalid task", Err: err}
		}
	}
	return Tasks(env.Data.Tasks), nil
}

// Tasks buckets a flat list into the fixed status regions. Each bucket is
// sorted by start time then id, so reading unchanged state twice yields equal
// region content.
func Tasks(items []model.Item) model.Update {
	buckets := make([][]model.Item, len(model.Statuses))
	for _, it := range items {
		if idx := it.Status.RegionIndex(); idx >= 0 {
			buckets[idx] = append(buckets[idx], it)
		}
	}

	updates := make([]model.RegionUpdate, len(model.Statuses))
	for i, status := range model.Statuses {
		bucket := buckets[i]
		sort.SliceStable(bucket, func(a, b int) bool {
			if !bucket[a].StartedAt.Equal(bucket[b].StartedAt) {
				return bucket[a].StartedAt.Before(bucket[b].StartedAt)
			}
			return bucket[a].ID < bucket[b].ID
		})
		if bucket == nil {
			bucket = []model.Item{}
		}
		content, _ := json.Marshal(bucket)
		updates[i] = model.RegionUpdate{
			Index:   i,
			Count:   model.IntPtr(len(bucket)),
			Title:   status.Title(),
			Content: string(content),
			Items:   bucket,
		}
	}
	return model.RegionPatch(updates...)
}
