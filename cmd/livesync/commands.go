package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/astromechza/livesync/pkg/model"
)

// taskWriter routes writes through whichever transport is active.
// *supervisor.Supervisor is the real one.
type taskWriter interface {
	CreateTask(ctx context.Context, spec model.TaskSpec) error
	CancelTask(ctx context.Context, id string) error
	Refresh(ctx context.Context) error
}

const commandHelp = "commands: create <quick|long|error|custom> [name], cancel <task-id>, refresh"

// readCommands runs one command per input line until in is exhausted or ctx
// ends. A failed command is logged and the next line is read.
func readCommands(ctx context.Context, in io.Reader, w taskWriter) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := runCommand(ctx, w, line); err != nil {
			slog.Error("failed to run command", "line", line, "err", err)
		}
	}
	if err := scanner.Err(); err != nil {
		slog.Error("failed to read commands", "err", err)
	}
}

func runCommand(ctx context.Context, w taskWriter, line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "create":
		if len(fields) < 2 {
			return errors.New(commandHelp)
		}
		spec := model.TaskSpec{
			Name:     strings.Join(fields[2:], " "),
			TaskType: model.TaskType{Kind: model.TaskKind(fields[1])},
		}
		return w.CreateTask(ctx, spec)
	case "cancel":
		if len(fields) != 2 {
			return errors.New(commandHelp)
		}
		return w.CancelTask(ctx, fields[1])
	case "refresh":
		return w.Refresh(ctx)
	}
	return fmt.Errorf("unknown command %q, %s", fields[0], commandHelp)
}
