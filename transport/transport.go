// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Package transport provides the byte stream connections a STOMP client runs
// over. A transport reports its life cycle through Events: Open once the
// connection is usable, Message for every chunk of inbound data and Close
// once when the connection is lost. Closing a transport on purpose does not
// raise Close.
package transport

import (
	"github.com/sirupsen/logrus"
)

const (
	ErrNotOpen = transportError("transport not open")
	ErrClosed  = transportError("transport closed")
)

type transportError string

func (e transportError) Error() string {
	return string(e)
}

type Transport interface {
	// Send writes one chunk of data. Concurrent calls are serialized.
	Send(data []byte) error
	// Close shuts the connection down without raising Events.Close.
	Close() error
}

// Events are invoked from the transport's own goroutine, one at a time.
type Events struct {
	Open    func()
	Message func(data []byte)
	Close   func(err error)
}

type Options struct {
	// Binary selects binary instead of text messages where the
	// transport distinguishes them.
	Binary bool
	Logger *logrus.Entry
}

// Factory starts connecting a new transport. Connection errors may be
// returned directly or reported later through events.Close.
type Factory func(events Events, opts Options) (Transport, error)

func (e Events) open() {
	if e.Open != nil {
		e.Open()
	}
}

func (e Events) message(data []byte) {
	if e.Message != nil {
		e.Message(data)
	}
}

func (e Events) close(err error) {
	if e.Close != nil {
		e.Close(err)
	}
}
