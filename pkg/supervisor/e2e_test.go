package supervisor

import (
	"context"
	"errors"
	"math/rand"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/astromechza/livesync/pkg/backoff"
	"github.com/astromechza/livesync/pkg/model"
	"github.com/astromechza/livesync/pkg/replica"
	"github.com/astromechza/livesync/pkg/testserver"
	"github.com/astromechza/livesync/pkg/transport"
)

func startAgainst(t *testing.T, engine *testserver.Server, budget int) (*Supervisor, *replica.Replica) {
	t.Helper()
	srv := httptest.NewServer(engine.Handler())
	t.Cleanup(srv.Close)
	base, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	rep := replica.New()
	sup := New(Config{
		Addr:         "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/",
		RetryBudget:  budget,
		PollInterval: 20 * time.Millisecond,
		Backoff:      backoff.New(time.Millisecond, 5*time.Millisecond, 0, rand.NewSource(1)),
	}, transport.NewPrimary(time.Second, 0), transport.NewFallback(base, time.Second), rep)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sup.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	sup.Start()
	return sup, rep
}

func regionCount(rep *replica.Replica, i int) int {
	c := rep.Snapshot().Regions[i].Count
	if c == nil {
		return -1
	}
	return *c
}

func TestEndToEndPrimary(t *testing.T) {
	engine := testserver.New()
	engine.Seed(model.Item{ID: "6f1c7c1e-2a4b-4d59-9c1d-8c0f4d0b6f11", Name: "seeded", Status: model.StatusCompleted, StartedAt: time.Now()})
	sup, rep := startAgainst(t, engine, 3)

	eventually(t, "connected", func() bool { return sup.State() == Connected })
	eventually(t, "full replica", func() bool { return rep.Snapshot().Markup != "" })
	if regionCount(rep, 1) != 1 {
		t.Errorf("completed count = %d", regionCount(rep, 1))
	}

	if err := sup.CreateTask(context.Background(), model.TaskSpec{TaskType: model.TaskType{Kind: model.KindLong}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	eventually(t, "grid update", func() bool { return regionCount(rep, 0) == 1 })

	running := rep.Snapshot().Regions[0].Items
	if len(running) != 1 || running[0].ID == "" {
		t.Fatalf("running items = %+v", running)
	}
	if err := sup.CancelTask(context.Background(), running[0].ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	eventually(t, "cancel reflected", func() bool { return regionCount(rep, 0) == 0 && regionCount(rep, 2) == 1 })
}

func TestEndToEndFallback(t *testing.T) {
	engine := testserver.New()
	engine.RejectWebsocket.Store(true)
	engine.Seed(model.Item{ID: "6f1c7c1e-2a4b-4d59-9c1d-8c0f4d0b6f11", Name: "seeded", Status: model.StatusInProgress, StartedAt: time.Now()})
	sup, rep := startAgainst(t, engine, 3)

	eventually(t, "offline", func() bool { return sup.State() == Offline })
	eventually(t, "fallback read", func() bool { return regionCount(rep, 0) == 1 })

	engine.FailCreates.Store(1)
	err := sup.CreateTask(context.Background(), model.TaskSpec{TaskType: model.TaskType{Kind: model.KindQuick}})
	var rerr *model.RequestError
	if !errors.As(err, &rerr) {
		t.Fatalf("create = %v, want RequestError", err)
	}
	if rerr.Message != "Failed to create task - internal service error" {
		t.Errorf("message = %q", rerr.Message)
	}

	reads := engine.Reads()
	eventually(t, "reads continue", func() bool { return engine.Reads() > reads+1 })

	if err := sup.CreateTask(context.Background(), model.TaskSpec{TaskType: model.TaskType{Kind: model.KindQuick}}); err != nil {
		t.Fatalf("second create: %v", err)
	}
	eventually(t, "created task polled", func() bool { return regionCount(rep, 0) == 2 })
	if engine.Connections() != 0 {
		t.Errorf("live view connections = %d", engine.Connections())
	}
}
