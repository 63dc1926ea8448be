// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/vmware/stompclient-go/client"
)

type sendOptions struct {
	headers        []string
	contentType    string
	every          string
	receipt        bool
	receiptTimeout time.Duration
}

func newSendCmd(a *app) *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send <destination> <body>",
		Short: "Send a message to a destination, once or on a schedule",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.send(ctx, args[0], []byte(args[1]), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringArrayVarP(&opts.headers, "header", "H", nil, "extra header as key=value, repeatable")
	flags.StringVar(&opts.contentType, "content-type", "text/plain", "content-type header")
	flags.StringVar(&opts.every, "every", "", "cron schedule, e.g. '@every 5s' or '*/2 * * * *'")
	flags.BoolVar(&opts.receipt, "receipt", false, "wait for the broker to confirm each message")
	flags.DurationVar(&opts.receiptTimeout, "receipt-timeout", 5*time.Second, "how long to wait for a receipt")
	return cmd
}

// parseHeaders turns key=value arguments into header pairs.
func parseHeaders(values []string) ([]string, error) {
	headers := make([]string, 0, len(values)*2)
	for _, value := range values {
		i := strings.IndexByte(value, '=')
		if i <= 0 {
			return nil, errors.Errorf("header '%s' is not key=value", value)
		}
		headers = append(headers, value[:i], value[i+1:])
	}
	return headers, nil
}

func (a *app) send(ctx context.Context, destination string, body []byte, opts *sendOptions) error {
	headers, err := parseHeaders(opts.headers)
	if err != nil {
		return err
	}
	if opts.contentType != "" {
		headers = append(headers, frame.ContentType, opts.contentType)
	}

	sessions := a.client.Connect(a.settings.ConnectHeaders()...).Listen()
	defer sessions.Unsubscribe()

	if opts.every == "" {
		session, err := sessions.Next(ctx)
		if err != nil {
			return err
		}
		return a.sendOnce(ctx, session, destination, body, headers, opts)
	}
	return a.sendScheduled(ctx, sessions, destination, body, headers, opts)
}

func (a *app) sendScheduled(ctx context.Context, sessions *client.SessionListener, destination string, body []byte, headers []string, opts *sendOptions) error {
	var mu sync.Mutex
	var current *client.Session
	ended := make(chan struct{})
	go func() {
		defer close(ended)
		for s := range sessions.C {
			mu.Lock()
			current = s
			mu.Unlock()
		}
	}()

	logger := cron.PrintfLogger(a.logger)
	scheduler := cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))
	_, err := scheduler.AddFunc(opts.every, func() {
		mu.Lock()
		session := current
		mu.Unlock()
		if session == nil {
			a.logger.Warn("not connected, skipping scheduled send")
			return
		}
		if err := a.sendOnce(ctx, session, destination, body, headers, opts); err != nil {
			a.logger.WithError(err).Warn("scheduled send failed")
		}
	})
	if err != nil {
		return errors.Wrapf(err, "invalid schedule '%s'", opts.every)
	}
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()

	select {
	case <-ctx.Done():
		return nil
	case <-ended:
		return sessions.Err()
	}
}

func (a *app) sendOnce(ctx context.Context, session *client.Session, destination string, body []byte, headers []string, opts *sendOptions) error {
	if !opts.receipt {
		return session.Send(destination, body, headers...)
	}

	receipts := session.Receipts()
	defer receipts.Unsubscribe()
	id := "send-" + uuid.New().String()
	withReceipt := append(append([]string{}, headers...), frame.Receipt, id)
	if err := session.Send(destination, body, withReceipt...); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.receiptTimeout)
	defer cancel()
	for {
		f, err := receipts.Next(ctx)
		if err != nil {
			return errors.Wrapf(err, "no receipt for message '%s'", id)
		}
		if f.Header.Get(frame.ReceiptId) == id {
			a.logger.WithField("receipt", id).Debug("message confirmed")
			return nil
		}
	}
}
