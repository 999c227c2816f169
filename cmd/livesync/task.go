package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/astromechza/livesync/pkg/model"
	"github.com/astromechza/livesync/pkg/transport"
)

func (a *app) fallback() (*transport.Fallback, error) {
	base, err := a.cfg.BaseURL()
	if err != nil {
		return nil, err
	}
	return transport.NewFallback(base, a.cfg.Fallback.RequestTimeout), nil
}

type createFlags struct {
	kind        string
	name        string
	message     string
	timeout     time.Duration
	errorType   string
	failureRate float64
}

func (f createFlags) spec() model.TaskSpec {
	spec := model.TaskSpec{
		Name:    f.name,
		Message: f.message,
		TaskType: model.TaskType{
			Kind:      model.TaskKind(f.kind),
			ErrorType: model.ErrorKind(f.errorType),
		},
	}
	if f.timeout > 0 {
		ms := f.timeout.Milliseconds()
		spec.TaskType.TimeoutMs = &ms
	}
	if f.failureRate >= 0 {
		rate := f.failureRate
		spec.TaskType.FailureRate = &rate
	}
	return spec
}

func (a *app) newCreateCommand() *cobra.Command {
	var f createFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task through the REST api",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := f.spec()
			if err := spec.Validate(); err != nil {
				return err
			}
			fb, err := a.fallback()
			if err != nil {
				return err
			}
			created, err := fb.CreateTask(cmd.Context(), spec)
			if err != nil {
				return fmt.Errorf("failed to create task: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", created.ID, created.Name, created.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.kind, "type", string(model.KindQuick), "quick, long, error or custom")
	cmd.Flags().StringVar(&f.name, "name", "", "task name")
	cmd.Flags().StringVar(&f.message, "message", "", "task message")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "timeout override for custom tasks")
	cmd.Flags().StringVar(&f.errorType, "error-type", "", "immediate, timeout, random, network or validation")
	cmd.Flags().Float64Var(&f.failureRate, "failure-rate", -1, "failure probability for custom tasks, between 0 and 1")
	return cmd
}

func (a *app) newCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fb, err := a.fallback()
			if err != nil {
				return err
			}
			if err := fb.CancelTask(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to cancel task: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
			return nil
		},
	}
}

func (a *app) newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the engine answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fb, err := a.fallback()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Fallback.RequestTimeout)
			defer cancel()
			if err := fb.Health(ctx); err != nil {
				return fmt.Errorf("engine is unhealthy: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "healthy")
			return nil
		},
	}
}
