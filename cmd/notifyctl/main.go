package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/anonto42/nano-midea/notifications/pkg/client"
	"github.com/anonto42/nano-midea/notifications/pkg/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("NOTIFY")
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "notifyctl",
		Short:         "Read and acknowledge notifications from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String("server", "http://localhost:8080", "notifications api base URL (NOTIFY_SERVER)")
	cmd.PersistentFlags().String("token", "", "bearer token (NOTIFY_TOKEN)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "log coordinator activity")
	_ = v.BindPFlag("server", cmd.PersistentFlags().Lookup("server"))
	_ = v.BindPFlag("token", cmd.PersistentFlags().Lookup("token"))
	_ = v.BindPFlag("verbose", cmd.PersistentFlags().Lookup("verbose"))

	session := func(poll time.Duration) (*client.Coordinator, error) {
		level := "warn"
		if v.GetBool("verbose") {
			level = "debug"
		}
		l, err := logger.New(logger.Options{Level: level, Output: os.Stderr})
		if err != nil {
			return nil, err
		}
		api := client.New(v.GetString("server"), v.GetString("token"))
		return client.NewCoordinator(api, client.Options{Logger: logrus.NewEntry(l), PollInterval: poll}), nil
	}

	cmd.AddCommand(
		newListCommand(session),
		newWatchCommand(session),
		newReadCommand(session),
		newReadAllCommand(session),
	)
	return cmd
}

type sessionFunc func(poll time.Duration) (*client.Coordinator, error)

func newListCommand(session sessionFunc) *cobra.Command {
	var noCache bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list recent notifications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := session(0)
			if err != nil {
				return err
			}
			defer c.Close()

			items, err := c.Request(cmd.Context(), noCache)
			if err != nil {
				return err
			}
			printItems(cmd.OutOrStdout(), items, c.UnreadCount())
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the server cache")
	return cmd
}

func newWatchCommand(session sessionFunc) *cobra.Command {
	var poll time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "keep printing notifications as they change",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := session(poll)
			if err != nil {
				return err
			}
			defer c.Close()

			updates, unsubscribe := c.Subscribe()
			defer unsubscribe()

			go c.Run(ctx)
			if _, err := c.Mount(ctx); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
			}

			out := cmd.OutOrStdout()
			for {
				select {
				case <-ctx.Done():
					return nil
				case s, ok := <-updates:
					if !ok {
						return nil
					}
					fmt.Fprintf(out, "\n%s\n", time.Now().Format("15:04:05"))
					printItems(out, s.Items, s.UnreadCount)
				}
			}
		},
	}
	cmd.Flags().DurationVar(&poll, "poll", 15*time.Second, "how often to poll the server")
	return cmd
}

func newReadCommand(session sessionFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := session(0)
			if err != nil {
				return err
			}
			defer c.Close()
			return markRead(cmd.Context(), c, args[0], cmd.OutOrStdout())
		},
	}
}

func markRead(ctx context.Context, c *client.Coordinator, id string, out io.Writer) error {
	if err := c.MarkRead(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "marked %s read\n", id)
	return nil
}

func newReadAllCommand(session sessionFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "read-all",
		Short: "mark every notification read",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := session(0)
			if err != nil {
				return err
			}
			defer c.Close()

			count, err := c.MarkAllRead(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "marked %d notifications read\n", count)
			return nil
		},
	}
}

func printItems(out io.Writer, items []client.Item, unread int) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tAGE\tTYPE\tMESSAGE\n")
	for _, it := range items {
		marker := " "
		if !it.IsRead {
			marker = "*"
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\n", marker, it.ID, it.DisplayTime, it.Kind(), it.Message)
	}
	w.Flush() //nolint:errcheck
	fmt.Fprintf(out, "%d unread\n", unread)
}
