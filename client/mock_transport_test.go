// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package client

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/stretchr/testify/require"
	"github.com/vmware/stompclient-go/codec"
	"github.com/vmware/stompclient-go/transport"
)

const waitTimeout = 2 * time.Second

type MockTransport struct {
	events  transport.Events
	opts    transport.Options
	frames  chan *frame.Frame
	writes  int32
	pings   int32
	mu      sync.Mutex
	decoder *codec.Decoder
	closed  bool
}

func (m *MockTransport) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return transport.ErrClosed
	}
	atomic.AddInt32(&m.writes, 1)
	if m.decoder.Pending() == 0 && codec.IsHeartbeat(data) {
		atomic.AddInt32(&m.pings, 1)
		return nil
	}
	for _, f := range m.decoder.Decode(data) {
		m.frames <- f
	}
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockTransport) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// nextFrame returns the next frame written by the client.
func (m *MockTransport) nextFrame(t *testing.T) *frame.Frame {
	select {
	case f := <-m.frames:
		return f
	case <-time.After(waitTimeout):
		t.Fatal("no frame written")
		return nil
	}
}

func (m *MockTransport) expectFrame(t *testing.T, command string) *frame.Frame {
	f := m.nextFrame(t)
	require.Equal(t, command, f.Command)
	return f
}

func (m *MockTransport) noFrame(t *testing.T) {
	select {
	case f := <-m.frames:
		t.Fatalf("unexpected %s frame", f.Command)
	case <-time.After(50 * time.Millisecond):
	}
}

// receive feeds a server frame to the client.
func (m *MockTransport) receive(command string, headers ...string) {
	m.receiveBody(command, nil, headers...)
}

func (m *MockTransport) receiveBody(command string, body []byte, headers ...string) {
	m.events.Message(codec.Marshall(command, frame.NewHeader(headers...), body))
}

// handshake opens the transport and accepts the CONNECT frame.
func (m *MockTransport) handshake(t *testing.T, headers ...string) *frame.Frame {
	m.events.Open()
	connect := m.expectFrame(t, frame.CONNECT)
	m.receive(frame.CONNECTED, headers...)
	return connect
}

type MockBroker struct {
	transports chan *MockTransport
	created    int32
}

func NewMockBroker() *MockBroker {
	return &MockBroker{transports: make(chan *MockTransport, 16)}
}

func (b *MockBroker) Factory(events transport.Events, opts transport.Options) (transport.Transport, error) {
	atomic.AddInt32(&b.created, 1)
	m := &MockTransport{
		events:  events,
		opts:    opts,
		frames:  make(chan *frame.Frame, 256),
		decoder: codec.NewDecoder(nil),
	}
	b.transports <- m
	return m, nil
}

func (b *MockBroker) next(t *testing.T) *MockTransport {
	select {
	case m := <-b.transports:
		return m
	case <-time.After(waitTimeout):
		t.Fatal("no transport created")
		return nil
	}
}

func (b *MockBroker) count() int {
	return int(atomic.LoadInt32(&b.created))
}

func nextSession(t *testing.T, l *SessionListener) *Session {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	s, err := l.Next(ctx)
	require.NoError(t, err)
	return s
}

func nextMessage(t *testing.T, sub *Subscription) *Message {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	m, err := sub.Next(ctx)
	require.NoError(t, err)
	return m
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DisableHeartbeat = true
	cfg.TTLConnectAttempt = 10 * time.Millisecond
	return cfg
}

// connect returns a client with an established 1.2 session.
func connect(t *testing.T, cfg Config, connected ...string) (*Client, *MockBroker, *MockTransport, *SessionListener, *Session) {
	b := NewMockBroker()
	c := New(b.Factory, cfg)
	l := c.Connect().Listen()
	m := b.next(t)
	if len(connected) == 0 {
		connected = []string{frame.Version, "1.2", frame.Server, "mock/1.0"}
	}
	m.handshake(t, connected...)
	return c, b, m, l, nextSession(t, l)
}

func (m *MockTransport) pingCount() int {
	return int(atomic.LoadInt32(&m.pings))
}

func (m *MockTransport) writeCount() int {
	return int(atomic.LoadInt32(&m.writes))
}
