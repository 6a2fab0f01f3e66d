package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gate4ai/giftmessage/server/transport"
	"github.com/r3labs/sse/v2"
	"github.com/spf13/cobra"
	"gopkg.in/cenkalti/backoff.v1"
)

type watchOptions struct {
	url        string
	key        string
	maxElapsed time.Duration
}

func newWatchCommand() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch [OPTIONS]",
		Short: "Follow orders committed with gift messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.url, "url", "http://localhost:8080", "Base URL of the gift message server")
	flags.StringVar(&opts.key, "key", "", "Admin API key")
	flags.DurationVar(&opts.maxElapsed, "max-retry", time.Minute, "Give up reconnecting after this long")

	return cmd
}

func runWatch(cmd *cobra.Command, opts watchOptions) error {
	client := sse.NewClient(strings.TrimRight(opts.url, "/") + "/admin/events")
	if opts.key != "" {
		client.Headers["Authorization"] = "Bearer " + opts.key
	}
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = opts.maxElapsed
	client.ReconnectStrategy = backoff.WithContext(expBackoff, cmd.Context())
	client.ReconnectNotify = func(err error, d time.Duration) {
		fmt.Fprintf(cmd.ErrOrStderr(), "connection lost: %v, retrying in %s\n", err, d)
	}

	out := cmd.OutOrStdout()
	return client.SubscribeWithContext(cmd.Context(), transport.GiftMessageStream, func(msg *sse.Event) {
		printEvent(out, msg)
	})
}

func printEvent(out io.Writer, msg *sse.Event) {
	if string(msg.Event) != transport.EventOrderCommitted {
		return
	}
	var ev transport.CommittedEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		fmt.Fprintf(out, "unreadable event: %v\n", err)
		return
	}
	customer := ev.Customer
	if customer == "" {
		customer = "guest"
	}
	fmt.Fprintf(out, "%s\torder #%d\t%s\t%d gift message(s)\n",
		ev.CreatedAt.Format(time.RFC3339), ev.OrderID, customer, ev.GiftMessages)
}
