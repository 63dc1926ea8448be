// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-stomp/stomp/v3"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/vmware/stompclient-go/client"
)

type subscribeOptions struct {
	ack       string
	id        string
	broadcast bool
	filter    string
	count     int
	headers   bool
}

func newSubscribeCmd(a *app) *cobra.Command {
	opts := &subscribeOptions{}
	cmd := &cobra.Command{
		Use:   "subscribe <destination>",
		Short: "Print the messages sent to a destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.subscribe(ctx, args[0], opts, newPrinter(cmd.OutOrStdout(), opts.headers))
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.ack, "ack", "auto", "ack mode: auto, client or client-individual")
	flags.StringVar(&opts.id, "id", "", "subscription id, generated when empty")
	flags.BoolVar(&opts.broadcast, "broadcast", false, "share the subscription with other consumers of the destination")
	flags.StringVar(&opts.filter, "filter", "", "only print messages whose destination matches this glob")
	flags.IntVarP(&opts.count, "count", "n", 0, "exit after this many messages")
	flags.BoolVar(&opts.headers, "headers", false, "print message headers")
	return cmd
}

func parseAckMode(value string) (stomp.AckMode, error) {
	switch value {
	case "", "auto":
		return stomp.AckAuto, nil
	case "client":
		return stomp.AckClient, nil
	case "client-individual":
		return stomp.AckClientIndividual, nil
	}
	return stomp.AckAuto, errors.Errorf("unknown ack mode '%s'", value)
}

// compileFilter compiles a destination glob where '*' stays within one
// path segment and '**' spans several.
func compileFilter(pattern string) (glob.Glob, error) {
	if pattern == "" {
		return nil, nil
	}
	g, err := glob.Compile(pattern, '/', '.')
	if err != nil {
		return nil, errors.Wrapf(err, "invalid filter '%s'", pattern)
	}
	return g, nil
}

// consumer prints the messages of one destination across reconnects.
type consumer struct {
	destination string
	opts        *subscribeOptions
	mode        stomp.AckMode
	filter      glob.Glob
	printer     *printer
	received    int
}

func (a *app) subscribe(ctx context.Context, destination string, opts *subscribeOptions, p *printer) error {
	mode, err := parseAckMode(opts.ack)
	if err != nil {
		return err
	}
	filter, err := compileFilter(opts.filter)
	if err != nil {
		return err
	}
	c := &consumer{destination: destination, opts: opts, mode: mode, filter: filter, printer: p}

	sessions := a.client.Connect(a.settings.ConnectHeaders()...).Listen()
	defer sessions.Unsubscribe()
	for {
		session, err := sessions.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		done, err := c.consume(ctx, session)
		if err != nil || done {
			return err
		}
		a.logger.Info("session ended, waiting for the next one")
	}
}

// consume reads from session until it ends. done is true once the
// application should stop.
func (c *consumer) consume(ctx context.Context, session *client.Session) (done bool, err error) {
	opts := []client.SubscribeOption{client.WithAck(c.mode)}
	if c.opts.id != "" {
		opts = append(opts, client.WithId(c.opts.id))
	}
	var sub *client.Subscription
	if c.opts.broadcast {
		sub, err = session.SubscribeBroadcast(c.destination, opts...)
	} else {
		sub, err = session.Subscribe(c.destination, opts...)
	}
	if errors.Is(err, client.ErrSessionClosed) {
		return false, nil
	}
	if err != nil {
		return true, err
	}
	defer sub.Unsubscribe()

	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return false, nil
		}
		if c.filter == nil || c.filter.Match(msg.Destination()) {
			c.printer.print(msg)
			c.received++
		}
		if c.mode != stomp.AckAuto {
			if err := msg.Ack(); err != nil {
				return false, nil
			}
		}
		if c.opts.count > 0 && c.received >= c.opts.count {
			return true, nil
		}
	}
}
