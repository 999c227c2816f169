package normalize

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/astromechza/livesync/pkg/model"
)

const gridID = "task-grid"

var statusByClass = map[string]model.TaskStatus{
	"in-progress": model.StatusInProgress,
	"completed":   model.StatusCompleted,
	"error":       model.StatusError,
}

func parsePage(markup string) ([]model.Region, error) {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, &model.ProtocolError{Reason: "page is not parseable html", Err: err}
	}
	grid := find(doc, func(n *html.Node) bool { return attr(n, "id") == gridID })
	if grid == nil {
		return nil, &model.ProtocolError{Reason: "page has no #" + gridID}
	}
	return columns([]*html.Node{grid})
}

func parseGrid(markup string) ([]model.Region, error) {
	nodes, err := html.ParseFragment(strings.NewReader(markup), &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	})
	if err != nil {
		return nil, &model.ProtocolError{Reason: "grid is not parseable html", Err: err}
	}
	return columns(nodes)
}

func columns(roots []*html.Node) ([]model.Region, error) {
	var cols []*html.Node
	for _, root := range roots {
		collect(root, "task-column", &cols)
	}
	if len(cols) == 0 {
		return nil, &model.ProtocolError{Reason: "grid has no task columns"}
	}
	regions := make([]model.Region, 0, len(cols))
	for i, col := range cols {
		r, err := column(col)
		if err != nil {
			return nil, &model.ProtocolError{Reason: fmt.Sprintf("column %d", i), Err: err}
		}
		regions = append(regions, r)
	}
	return regions, nil
}

func column(col *html.Node) (model.Region, error) {
	list := findClass(col, "task-list")
	if list == nil {
		return model.Region{}, fmt.Errorf("missing task list")
	}
	var r model.Region
	if title := findClass(col, "column-title"); title != nil {
		r.Title = text(title)
	}
	if badge := findClass(col, "task-count"); badge != nil {
		if n, err := strconv.Atoi(text(badge)); err == nil {
			r.Count = &n
		}
	}

	var buf bytes.Buffer
	for c := list.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return model.Region{}, fmt.Errorf("failed to render list: %w", err)
		}
	}
	r.Content = buf.String()

	var cards []*html.Node
	collect(list, "task-card", &cards)
	r.Items = make([]model.Item, 0, len(cards))
	for _, card := range cards {
		r.Items = append(r.Items, item(card))
	}
	return r, nil
}

// item recovers what a card shows. Timestamps are rendered as wall-clock
// times only, so they are left unset.
func item(card *html.Node) model.Item {
	var it model.Item
	for _, c := range strings.Fields(attr(card, "class")) {
		if st, ok := statusByClass[c]; ok {
			it.Status = st
		}
	}
	if n := findClass(card, "task-name"); n != nil {
		it.Name = text(n)
	}
	if n := findClass(card, "task-message"); n != nil {
		it.Message = text(n)
	}
	if btn := findClass(card, "btn-cancel"); btn != nil {
		it.ID = cancelTarget(attr(btn, "onclick"))
	}
	if meta := findClass(card, "task-meta"); meta != nil {
		for c := meta.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			line := text(c)
			switch {
			case strings.HasPrefix(line, "Duration: "):
				v := strings.TrimSuffix(strings.TrimPrefix(line, "Duration: "), "ms")
				if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
					it.DurationMs = &ms
				}
			case strings.HasPrefix(line, "Result: "):
				v := strings.TrimPrefix(line, "Result: ")
				it.Result = &v
			case strings.HasPrefix(line, "Error: "):
				v := strings.TrimPrefix(line, "Error: ")
				it.Error = &v
			}
		}
	}
	return it
}

func cancelTarget(onclick string) string {
	const prefix = "cancelTask('"
	start := strings.Index(onclick, prefix)
	if start < 0 {
		return ""
	}
	rest := onclick[start+len(prefix):]
	end := strings.Index(rest, "'")
	if end < 0 {
		return ""
	}
	return rest[:end]
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func findClass(n *html.Node, class string) *html.Node {
	return find(n, func(n *html.Node) bool { return hasClass(n, class) })
}

// collect appends, in document order, every element carrying class without
// descending into matches.
func collect(n *html.Node, class string, out *[]*html.Node) {
	if hasClass(n, class) {
		*out = append(*out, n)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collect(c, class, out)
	}
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
