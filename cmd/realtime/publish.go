package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func publishCmd(opts *options) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "publish <channel> <name> <json>",
		Short: "Publish one message on a channel",
		Long: `Connect, publish one message and disconnect. The payload is parsed as
JSON and re-encoded with the configured wire encoding.

Examples:
  realtime publish orders created '{"id":1}'
  realtime publish --encoding=json orders note '"hello"'`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(opts, args[0], args[1], args[2], timeout)
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 10*time.Second, "Time allowed to connect and flush")

	return cmd
}

func runPublish(opts *options, channelName string, name string, payload string, timeout time.Duration) error {
	var value any
	if err := json.Unmarshal([]byte(payload), &value); err != nil {
		return fmt.Errorf("payload is not valid JSON: %w", err)
	}

	client, err := opts.newClient()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		_ = client.Close()
		return err
	}
	if err := client.Channel(channelName).Publish(name, value); err != nil {
		_ = client.Close()
		return err
	}
	// Shutdown runs after the publish on the same executor, so the frame is
	// written before the disconnect.
	if err := client.Shutdown(ctx); err != nil {
		return err
	}

	success("published %s on %s", name, channelName)
	return nil
}
