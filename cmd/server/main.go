package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "notifications",
		Short:         "Notification aggregation and delivery service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand())
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logrus.WithError(err).Error("notifications exited")
		os.Exit(1)
	}
}
