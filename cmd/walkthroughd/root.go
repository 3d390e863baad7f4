package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// app carries state shared by every subcommand.
type app struct {
	configFile string
	settings   settings
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	v := newViper()

	root := &cobra.Command{
		Use:          "walkthroughd",
		Short:        "Coordinate guided walkthroughs across browser tabs",
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			s, err := loadSettings(v, a.configFile)
			if err != nil {
				return err
			}
			logger, err := newLogger(s.Log.Level, s.Log.Format)
			if err != nil {
				return err
			}
			a.settings = s
			a.logger = logger
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (yaml, json or toml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json, text)")
	flags.String("store-driver", "memory", "store backend (memory, sqlite, redis, postgres)")
	flags.String("store-dsn", "", "store connection string")
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = v.BindPFlag("store.driver", flags.Lookup("store-driver"))
	_ = v.BindPFlag("store.dsn", flags.Lookup("store-dsn"))

	root.AddCommand(
		newServeCmd(a, v),
		newMigrateCmd(a),
		newWorkflowsCmd(a),
	)
	return root
}
