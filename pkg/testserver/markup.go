package testserver

import (
	"fmt"
	"html"
	"strings"

	"github.com/astromechza/livesync/pkg/model"
)

var statusClass = map[model.TaskStatus]string{
	model.StatusInProgress: "in-progress",
	model.StatusCompleted:  "completed",
	model.StatusError:      "error",
}

// RenderGrid renders the inner markup of #task-grid the way the engine does:
// one column per status with a count badge and a list of cards.
func RenderGrid(items []model.Item) string {
	var b strings.Builder
	for _, status := range model.Statuses {
		var column []model.Item
		for _, it := range items {
			if it.Status == status {
				column = append(column, it)
			}
		}
		b.WriteString(`<div class="task-column"><div class="column-header">`)
		fmt.Fprintf(&b, `<div class="column-title status-%s">%s</div>`, statusClass[status], status.Title())
		fmt.Fprintf(&b, `<div class="task-count">%d</div></div><div class="task-list">`, len(column))
		if len(column) == 0 {
			b.WriteString(`<div class="empty-state">No tasks yet...</div>`)
		}
		for _, it := range column {
			renderCard(&b, it)
		}
		b.WriteString(`</div></div>`)
	}
	return b.String()
}

func renderCard(b *strings.Builder, it model.Item) {
	fmt.Fprintf(b, `<div class="task-card %s">`, statusClass[it.Status])
	fmt.Fprintf(b, `<div class="task-name">%s</div>`, html.EscapeString(it.Name))
	fmt.Fprintf(b, `<div class="task-message">%s</div>`, html.EscapeString(it.Message))
	b.WriteString(`<div class="task-meta">`)
	fmt.Fprintf(b, `<div>Started: %s</div>`, it.StartedAt.Format("15:04:05"))
	if it.FinishedAt != nil {
		fmt.Fprintf(b, `<div>Finished: %s</div>`, it.FinishedAt.Format("15:04:05"))
	}
	if it.DurationMs != nil {
		fmt.Fprintf(b, `<div>Duration: %dms</div>`, *it.DurationMs)
	}
	if it.Result != nil {
		fmt.Fprintf(b, `<div>Result: %s</div>`, html.EscapeString(*it.Result))
	}
	if it.Error != nil {
		fmt.Fprintf(b, `<div style="color: #e53e3e;">Error: %s</div>`, html.EscapeString(*it.Error))
	}
	b.WriteString(`</div>`)
	if it.Status == model.StatusInProgress {
		fmt.Fprintf(b, `<div class="task-actions"><button class="btn-cancel" onclick="cancelTask('%s')">Cancel</button></div>`, it.ID)
	}
	b.WriteString(`</div>`)
}

// RenderPage wraps the grid in a full page.
func RenderPage(items []model.Item) string {
	return `<!DOCTYPE html><html lang="en"><head><meta charset="UTF-8"><title>Task Overlord LiveView</title></head>` +
		`<body><div class="container"><div class="header"><h1>Task Overlord</h1></div>` +
		`<div class="task-grid" id="task-grid">` + RenderGrid(items) + `</div></div>` +
		`<script src="/static/app.js"></script></body></html>`
}
