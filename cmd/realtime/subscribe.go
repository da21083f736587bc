package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thejuampi/realtime-client-go/realtime"
)

func subscribeCmd(opts *options) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "subscribe <channel> <name> [name...]",
		Short: "Print messages published on a channel",
		Long: `Subscribe to one or more message names on a channel and print each
message as it arrives, until interrupted. The client reconnects and resumes
from the last received message when the connection drops.

Examples:
  realtime subscribe orders created
  realtime subscribe orders created cancelled --raw`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(opts, args[0], args[1:], raw)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print payloads without decoding them")

	return cmd
}

func runSubscribe(opts *options, channelName string, names []string, raw bool) error {
	client, err := opts.newClient()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client.OnError(func(event realtime.ErrorEvent) {
		info("error %d: %s", event.Code, event.Message)
	})
	client.On(realtime.StateConnecting, func(realtime.ConnectionEvent) {
		info("connecting to %s", opts.url)
	})

	channel := client.Channel(channelName)
	for _, name := range names {
		channel.Subscribe(name, func(message realtime.Message) {
			fmt.Println(formatMessage(message, raw))
		})
	}

	if err := client.Connect(ctx); err != nil {
		_ = client.Close()
		return err
	}
	success("subscribed to %s (session %s)", channelName, client.SessionID())

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return client.Shutdown(shutdownCtx)
}

func formatMessage(message realtime.Message, raw bool) string {
	if raw {
		return fmt.Sprintf("%s\t%s\t%x", message.ID, message.Name, message.Data)
	}
	var value any
	if err := message.Decode(&value); err != nil {
		return fmt.Sprintf("%s\t%s\t<undecodable: %v>", message.ID, message.Name, err)
	}
	return fmt.Sprintf("%s\t%s\t%v", message.ID, message.Name, value)
}
