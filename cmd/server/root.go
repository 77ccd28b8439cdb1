package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	serve := newServeCmd(opts)
	rootCmd := &cobra.Command{
		Use:   "wirechat-relay",
		Short: "Real-time chat relay over WebSocket",
		Long: `wirechat-relay accepts authenticated WebSocket connections, tracks who is
online and relays public, room and private messages with read receipts,
reactions and typing signals.

Running without a subcommand starts the server.`,
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml (default ./config.yaml)")
	rootCmd.Flags().AddFlagSet(serve.Flags())

	rootCmd.AddCommand(serve, newTokenCmd(opts))
	return rootCmd
}
