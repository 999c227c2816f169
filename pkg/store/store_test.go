package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/astromechza/livesync/pkg/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "livesync.sqlite3"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func board(content string) model.Document {
	return model.Document{
		Markup: "<html></html>",
		Regions: []model.Region{
			{Title: "In Progress", Count: model.IntPtr(1), Content: content, Items: []model.Item{{ID: "6f1c7c1e-2a4b-4d59-9c1d-8c0f4d0b6f11", Name: "a", Status: model.StatusInProgress}}},
			{Title: "Completed", Count: model.IntPtr(0)},
		},
	}
}

func TestLoadEmpty(t *testing.T) {
	s := openTemp(t)
	_, found, err := s.Load(context.Background())
	if err != nil || found {
		t.Errorf("found = %v err = %v", found, err)
	}
}

func TestSaveOnlyWhenChanged(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	steps := []struct {
		name  string
		doc   model.Document
		saved bool
	}{
		{"first", board("a"), true},
		{"same", board("a"), false},
		{"changed", board("b"), true},
	}
	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			saved, err := s.Save(ctx, step.doc)
			if err != nil {
				t.Fatalf("save: %v", err)
			}
			if saved != step.saved {
				t.Errorf("saved = %v, want %v", saved, step.saved)
			}
		})
	}

	doc, found, err := s.Load(ctx)
	if err != nil || !found {
		t.Fatalf("load: found = %v err = %v", found, err)
	}
	if doc.Regions[0].Content != "b" || *doc.Regions[0].Count != 1 || doc.Regions[0].Items[0].Name != "a" {
		t.Errorf("loaded = %+v", doc)
	}
	if doc.Markup != "<html></html>" || len(doc.Regions) != 2 {
		t.Errorf("loaded = %+v", doc)
	}
}

func TestSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livesync.sqlite3")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(context.Background(), board("kept")); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	doc, found, err := s.Load(context.Background())
	if err != nil || !found || doc.Regions[0].Content != "kept" {
		t.Errorf("found = %v err = %v doc = %+v", found, err, doc)
	}
}

func TestBackup(t *testing.T) {
	s := openTemp(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Backup(ctx, func() model.Document { return board("ticked") }, 5*time.Millisecond)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		doc, found, err := s.Load(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if found && doc.Regions[0].Content == "ticked" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("backup never saved")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}
