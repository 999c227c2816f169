package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/astromechza/livesync/pkg/backoff"
	"github.com/astromechza/livesync/pkg/board"
	"github.com/astromechza/livesync/pkg/replica"
	"github.com/astromechza/livesync/pkg/store"
	"github.com/astromechza/livesync/pkg/supervisor"
	"github.com/astromechza/livesync/pkg/transport"
	"github.com/astromechza/livesync/pkg/viz"
)

func (a *app) newWatchCommand() *cobra.Command {
	var width int
	var dump, commands bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the board until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.watch(cmd, width, dump, commands)
		},
	}
	cmd.Flags().IntVar(&width, "width", 120, "terminal width used to lay out the board")
	cmd.Flags().BoolVar(&dump, "dump-transitions", true, "render the connection transitions to an svg on exit")
	cmd.Flags().BoolVar(&commands, "commands", true, "read create, cancel and refresh commands from stdin")
	return cmd
}

func (a *app) watch(cmd *cobra.Command, width int, dump, commands bool) error {
	cfg := a.cfg
	base, err := cfg.BaseURL()
	if err != nil {
		return err
	}
	addr, err := cfg.PrimaryURL()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg := new(sync.WaitGroup)

	rep := replica.New()

	var st *store.Store
	if cfg.Store.Path != "" {
		if st, err = store.Open(cfg.Store.Path); err != nil {
			return err
		}
		defer st.Close()
		if doc, found, err := st.Load(ctx); err != nil {
			slog.Error("failed to load snapshot", "err", err)
		} else if found {
			rep.Restore(doc)
			slog.Info("restored snapshot", "path", cfg.Store.Path)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.Backup(ctx, rep.Snapshot, cfg.Store.BackupInterval)
		}()
	}

	sup := supervisor.New(supervisor.Config{
		Addr:         addr,
		RetryBudget:  cfg.Supervisor.RetryBudget,
		PollInterval: cfg.Fallback.PollInterval,
		Backoff:      backoff.New(cfg.Backoff.Base, cfg.Backoff.Cap, cfg.Backoff.Jitter, nil),
	},
		transport.NewPrimary(cfg.Primary.HandshakeTimeout, cfg.Primary.ReadTimeout),
		transport.NewFallback(base, cfg.Fallback.RequestTimeout),
		rep,
	)

	out := cmd.OutOrStdout()
	var drawMu sync.Mutex
	draw := func() {
		drawMu.Lock()
		defer drawMu.Unlock()
		_, _ = fmt.Fprint(out, board.Render(rep.Snapshot(), sup.State(), width))
	}
	unsubscribe := rep.Subscribe(func(replica.Change) { draw() })
	defer unsubscribe()
	sup.OnTransition(func(supervisor.Transition) { draw() })

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = sup.Run(ctx)
	}()
	sup.Start()

	// Not part of the wait group: a blocked stdin read cannot be interrupted.
	if commands {
		go readCommands(ctx, cmd.InOrStdin(), sup)
	}

	exit := make(chan os.Signal, 1) // we need to reserve to buffer size 1, so the notifier are not blocked
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	slog.Info("Signal caught", "sig", sig)
	cancel()

	wg.Wait()

	if st != nil {
		if _, err := st.Save(context.Background(), rep.Snapshot()); err != nil {
			slog.Error("failed to save snapshot", "err", err)
		}
	}
	if dump {
		if svgPath, err := viz.RenderToTemp(sup.History()); err != nil {
			slog.Error("failed to render transitions", "err", err)
		} else {
			slog.Info("rendered transitions", "path", "file://"+svgPath)
		}
	}
	return nil
}
