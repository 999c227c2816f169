package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/astromechza/livesync/pkg/board"
	"github.com/astromechza/livesync/pkg/store"
	"github.com/astromechza/livesync/pkg/supervisor"
)

func (a *app) newInspectCommand() *cobra.Command {
	var width int
	cmd := &cobra.Command{
		Use:   "inspect [snapshot-db]",
		Short: "Print the last persisted board without connecting",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.Store.Path
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("expected a snapshot database: pass one or set store.path")
			}
			st, err := store.Open(path)
			if err != nil {
				return err
			}
			defer st.Close()
			doc, found, err := st.Load(cmd.Context())
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("no snapshot stored in %s", path)
			}
			slog.Info("loaded snapshot", "path", path, "regions", len(doc.Regions))
			_, _ = fmt.Fprint(cmd.OutOrStdout(), board.Render(doc, supervisor.Disconnected, width))
			return nil
		},
	}
	cmd.Flags().IntVar(&width, "width", 120, "terminal width used to lay out the board")
	return cmd
}
