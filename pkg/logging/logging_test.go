package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestFormats(t *testing.T) {
	tests := []struct {
		format string
		check  func(t *testing.T, out string)
	}{
		{"text", func(t *testing.T, out string) {
			if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "attempt=3") {
				t.Errorf("text output = %q", out)
			}
		}},
		{"json", func(t *testing.T, out string) {
			var rec map[string]interface{}
			if err := json.Unmarshal([]byte(out), &rec); err != nil {
				t.Fatalf("not json: %v", err)
			}
			if rec["msg"] != "hello" || rec["attempt"] != float64(3) {
				t.Errorf("record = %v", rec)
			}
			if _, err := uuid.Parse(rec["session"].(string)); err != nil {
				t.Errorf("session = %v", rec["session"])
			}
		}},
		{"pretty", func(t *testing.T, out string) {
			if !strings.Contains(out, "hello") || !strings.Contains(out, "attempt") {
				t.Errorf("pretty output = %q", out)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := New(&buf, "info", tt.format)
			if err != nil {
				t.Fatal(err)
			}
			logger.Debug("hidden")
			logger.Info("hello", "attempt", 3)
			out := buf.String()
			if strings.Contains(out, "hidden") {
				t.Errorf("debug record leaked at info level")
			}
			tt.check(t, out)
		})
	}
}

func TestRejects(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "loud", "text"); err == nil {
		t.Error("expected bad level to fail")
	}
	if _, err := New(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Error("expected bad format to fail")
	}
}
