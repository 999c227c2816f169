// Package viz renders a supervisor's transition history as a graphviz SVG.
package viz

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/astromechza/livesync/pkg/supervisor"
)

// RenderTransitions builds the graph: one node per state visit and one edge
// per transition labelled with its cause.
func RenderTransitions(history []supervisor.Transition, format graphviz.Format) ([]byte, error) {
	g := graphviz.New()
	defer g.Close()

	graph, err := g.Graph()
	if err != nil {
		return nil, fmt.Errorf("failed to setup graph: %w", err)
	}
	defer graph.Close()

	if len(history) == 0 {
		if _, err := visit(graph, 0, supervisor.Disconnected, time.Time{}); err != nil {
			return nil, err
		}
	} else {
		prev, err := visit(graph, 0, history[0].From, time.Time{})
		if err != nil {
			return nil, err
		}
		for i, tr := range history {
			n, err := visit(graph, i+1, tr.To, tr.At)
			if err != nil {
				return nil, err
			}
			e, err := graph.CreateEdge(strconv.Itoa(i), prev, n)
			if err != nil {
				return nil, fmt.Errorf("failed to create edge: %w", err)
			}
			e.SetLabel(fmt.Sprintf("%s (retries %d)", tr.Cause, tr.Retries))
			prev = n
		}
	}

	var buff bytes.Buffer
	if err := g.Render(graph, format, &buff); err != nil {
		return nil, fmt.Errorf("failed to render: %w", err)
	}
	return buff.Bytes(), nil
}

func visit(graph *cgraph.Graph, i int, state supervisor.State, at time.Time) (*cgraph.Node, error) {
	n, err := graph.CreateNode("visit" + strconv.Itoa(i))
	if err != nil {
		return nil, fmt.Errorf("failed to create node: %w", err)
	}
	label := state.String()
	if !at.IsZero() {
		label += "\n" + at.Format("15:04:05.000")
	}
	n.SetLabel(label)
	if state == supervisor.Offline {
		n.SetShape(cgraph.DoubleCircleShape)
	}
	return n, nil
}

func RenderTransitionsToSvg(history []supervisor.Transition, outputPath string) error {
	raw, err := RenderTransitions(history, graphviz.SVG)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}
	return nil
}

func RenderToTemp(history []supervisor.Transition) (string, error) {
	tf := filepath.Join(os.TempDir(), fmt.Sprintf("livesync-%d%d.svg", time.Now().UnixNano(), rand.Int()))
	if err := RenderTransitionsToSvg(history, tf); err != nil {
		return "", err
	}
	return tf, nil
}
