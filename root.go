package main

import (
	"github.com/spf13/cobra"

	"github.com/manru/manru-be/internal/config"
	"github.com/manru/manru-be/internal/logger"
)

// NewRootCmd creates the root command. Configuration is loaded once before
// any subcommand runs and handed to it through the returned closure.
func NewRootCmd() *cobra.Command {
	var cfg *config.Config
	loadConfig := func() *config.Config { return cfg }

	cmd := &cobra.Command{
		Use:               "manru",
		Short:             "man.ru accounts backend",
		Long:              `man.ru runs the accounts API (registration, login, profiles) and carries a small client for managing a local session against it.`,
		SilenceUsage:      true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			loaded, err := config.Load()
			if err != nil {
				return err
			}
			logger.Init(loaded.LogLevel, !loaded.IsProduction())
			cfg = loaded
			return nil
		},
	}

	cmd.AddCommand(NewServeCmd(loadConfig))
	cmd.AddCommand(NewMigrateCmd(loadConfig))
	cmd.AddCommand(NewRegisterCmd(loadConfig))
	cmd.AddCommand(NewLoginCmd(loadConfig))
	cmd.AddCommand(NewWhoamiCmd(loadConfig))
	cmd.AddCommand(NewLogoutCmd(loadConfig))
	cmd.AddCommand(NewDeleteAccountCmd(loadConfig))
	cmd.AddCommand(NewRecoverProfilesCmd(loadConfig))

	return cmd
}
