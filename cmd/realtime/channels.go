package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

const restTimeout = 30 * time.Second

func channelsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "channels [channel]",
		Short: "List channels, or show one channel with its subscribers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runChannel(opts, args[0])
			}
			return runChannels(opts)
		},
	}
}

func runChannels(opts *options) error {
	client, err := opts.newRESTClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()

	channels, err := client.Channels(ctx)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		info("no channels")
		return nil
	}
	for _, channel := range channels {
		fmt.Println(channel.Channel)
	}
	return nil
}

func runChannel(opts *options, name string) error {
	client, err := opts.newRESTClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()

	channel, err := client.Channel(ctx, name)
	if err != nil {
		return err
	}
	subscriptions, err := client.ChannelSubscriptions(ctx, name)
	if err != nil {
		return err
	}

	fmt.Printf("Channel:     %s\n", channel.Channel)
	fmt.Printf("Subscribers: %d\n", len(subscriptions.Devices))
	for _, device := range subscriptions.Devices {
		fmt.Printf("  %s\n", device)
	}
	return nil
}

func historyCmd(opts *options) *cobra.Command {
	var start string

	cmd := &cobra.Command{
		Use:   "history <channel>",
		Short: "Print the stored messages of a channel",
		Long: `Read the stored messages of a channel through the REST API.

Examples:
  realtime history orders
  realtime history orders --start=42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], start)
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "Only messages after this message id")

	return cmd
}

func runHistory(opts *options, name string, start string) error {
	client, err := opts.newRESTClient()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), restTimeout)
	defer cancel()

	messages, err := client.ChannelMessages(ctx, name, start)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDATA")
	for _, message := range messages {
		fmt.Fprintf(w, "%s\t%s\t%s\n", message.ID, message.Name, message.Data)
	}
	return w.Flush()
}
