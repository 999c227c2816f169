package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/astromechza/livesync/pkg/config"
	"github.com/astromechza/livesync/pkg/logging"
)

type app struct {
	v          *viper.Viper
	configPath string
	cfg        config.Config
}

func newRootCommand() *cobra.Command {
	a := &app{v: config.New()}
	root := &cobra.Command{
		Use:           "livesync",
		Short:         "Keep a local view of the task board in sync with the engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				return nil
			}
			cfg, err := config.Load(a.v, a.configPath)
			if err != nil {
				return err
			}
			if err := logging.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Format); err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}
			a.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a livesync.toml file")
	flags.String("server", "", "base url of the task engine")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-format", "", "text, json or pretty")
	_ = a.v.BindPFlag("server.url", flags.Lookup("server"))
	_ = a.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("logging.format", flags.Lookup("log-format"))

	root.AddCommand(
		a.newWatchCommand(),
		a.newCreateCommand(),
		a.newCancelCommand(),
		a.newHealthCommand(),
		a.newInspectCommand(),
		newConfigCommand(),
	)
	return root
}
