package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "bot",
		Short:         "Telegram front end for the document scan service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), configPath)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the config file")
	cmd.AddCommand(newSessionCmd(&configPath))

	return cmd
}
