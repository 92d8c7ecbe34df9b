package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var urlFlag string
	var execFlag string

	ctx := newCommandContext(&configFlag, &urlFlag, &execFlag)

	rootCmd := &cobra.Command{
		Use:           "appserverctl",
		Short:         "Talk to an app-server over WebSocket or stdio",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (default $APPSERVER_CONFIG or appserver.yaml)")
	rootCmd.PersistentFlags().StringVar(&urlFlag, "url", "", "Connect to this ws:// or wss:// URL instead of the configured transport")
	rootCmd.PersistentFlags().StringVar(&execFlag, "exec", "", "Launch this command line and talk to it over stdio")

	rootCmd.AddCommand(newCallCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newMethodsCommand())
	rootCmd.AddCommand(newMockServerCommand(ctx))
	rootCmd.AddCommand(newDoctorCommand(ctx))
	rootCmd.AddCommand(newEncryptValueCommand())

	return rootCmd
}
