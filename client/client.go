// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Package client is a STOMP 1.0, 1.1 and 1.2 client with automatic
// reconnection.
//
// Client.Connect returns a SessionStream shared by every caller. The stream
// connects when its first listener attaches and publishes a Session each
// time the broker accepts a connection. When the connection is lost, the
// session is invalidated and the stream reconnects with a linear backoff
// until the configured number of consecutive failures is reached. The
// stream disconnects when its last listener detaches.
package client

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/vmware/stompclient-go/transport"
)

type Client struct {
	factory transport.Factory
	cfg     Config
	log     *logrus.Entry

	mu     sync.Mutex
	stream *SessionStream
}

// New returns a Client opening its connections with factory.
func New(factory transport.Factory, cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		factory: factory,
		cfg:     cfg,
		log:     cfg.Logger.WithField("component", "stomp-client"),
	}
}

// Connect returns the client's session stream, creating it if there is none
// or the previous one was torn down. headers are key, value pairs added to
// every CONNECT frame of a new stream.
func (c *Client) Connect(headers ...string) *SessionStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		c.stream = newSessionStream(c, headers)
	}
	return c.stream
}

// Disconnect tears the current stream down and waits for it to finish.
func (c *Client) Disconnect() {
	c.mu.Lock()
	s := c.stream
	c.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

func (c *Client) detach(s *SessionStream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == s {
		c.stream = nil
	}
}
