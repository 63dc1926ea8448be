// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Package stomptest runs a minimal in-process STOMP broker on a loopback TCP
// port. It routes SEND frames to the subscribers of their destination and
// answers receipts, which is enough to drive a client end to end.
package stomptest

import (
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const ServerName = "stomptest/1.0"

type Broker struct {
	listener net.Listener
	version  stomp.Version
	log      *logrus.Entry

	mu          sync.Mutex
	conns       map[string]*conn
	accepted    int32
	messageId   uint64
	wg          sync.WaitGroup
	closeOnce   sync.Once
	acknowledge chan *frame.Frame
}

// NewBroker listens on a random loopback port and answers CONNECT with the
// given version.
func NewBroker(version stomp.Version, logger *logrus.Entry) (*Broker, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	if logger == nil {
		discard := logrus.New()
		discard.SetLevel(logrus.PanicLevel)
		logger = logrus.NewEntry(discard)
	}
	b := &Broker{
		listener:    l,
		version:     version,
		log:         logger.WithField("component", "stomptest"),
		conns:       make(map[string]*conn),
		acknowledge: make(chan *frame.Frame, 64),
	}
	b.wg.Add(1)
	go b.accept()
	return b, nil
}

func (b *Broker) Addr() string {
	return b.listener.Addr().String()
}

// Accepted returns how many connections the broker accepted so far.
func (b *Broker) Accepted() int {
	return int(atomic.LoadInt32(&b.accepted))
}

// Acknowledgements receives the ACK and NACK frames of every client.
func (b *Broker) Acknowledgements() <-chan *frame.Frame {
	return b.acknowledge
}

// Subscribers returns how many subscriptions exist for destination.
func (b *Broker) Subscribers(destination string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.conns {
		for _, d := range c.subscriptions {
			if d == destination {
				n++
			}
		}
	}
	return n
}

// DropConnections closes every client connection without a goodbye.
func (b *Broker) DropConnections() {
	b.mu.Lock()
	conns := make([]*conn, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}

func (b *Broker) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.listener.Close()
		b.DropConnections()
		b.wg.Wait()
	})
	return err
}

func (b *Broker) accept() {
	defer b.wg.Done()
	for {
		raw, err := b.listener.Accept()
		if err != nil {
			return
		}
		atomic.AddInt32(&b.accepted, 1)
		c := &conn{
			id:            uuid.New().String(),
			raw:           raw,
			reader:        frame.NewReader(raw),
			writer:        frame.NewWriter(raw),
			broker:        b,
			subscriptions: make(map[string]string),
		}
		b.mu.Lock()
		b.conns[c.id] = c
		b.mu.Unlock()

		b.wg.Add(1)
		go c.run()
	}
}

type delivery struct {
	conn  *conn
	frame *frame.Frame
}

// route delivers a SEND frame to every matching subscription.
func (b *Broker) route(send *frame.Frame) {
	destination := send.Header.Get(frame.Destination)
	var deliveries []delivery

	b.mu.Lock()
	for _, c := range b.conns {
		for id, d := range c.subscriptions {
			if d != destination {
				continue
			}
			b.messageId++
			messageId := strconv.FormatUint(b.messageId, 10)
			f := frame.New(frame.MESSAGE,
				frame.Destination, destination,
				frame.MessageId, messageId,
				frame.Subscription, id)
			if b.version == stomp.V12 {
				f.Header.Add(frame.Ack, "ack-"+messageId)
			}
			if contentType := send.Header.Get(frame.ContentType); contentType != "" {
				f.Header.Add(frame.ContentType, contentType)
			}
			f.Body = send.Body
			deliveries = append(deliveries, delivery{conn: c, frame: f})
		}
	}
	b.mu.Unlock()

	for _, d := range deliveries {
		if err := d.conn.write(d.frame); err != nil {
			b.log.WithError(err).Debug("MESSAGE not delivered")
		}
	}
}

func (b *Broker) forget(c *conn) {
	b.mu.Lock()
	delete(b.conns, c.id)
	b.mu.Unlock()
}

type conn struct {
	id     string
	raw    net.Conn
	reader *frame.Reader
	writer *frame.Writer
	broker *Broker

	writeMu sync.Mutex
	once    sync.Once

	// guarded by broker.mu
	subscriptions map[string]string
}

func (c *conn) run() {
	defer c.broker.wg.Done()
	defer c.close()
	for {
		f, err := c.reader.Read()
		if err != nil {
			return
		}
		if f == nil {
			// heart-beat
			continue
		}
		if !c.handle(f) {
			return
		}
	}
}

// handle processes one client frame and reports whether the connection
// stays open.
func (c *conn) handle(f *frame.Frame) bool {
	switch f.Command {
	case frame.CONNECT, frame.STOMP:
		return c.write(frame.New(frame.CONNECTED,
			frame.Version, string(c.broker.version),
			frame.Server, ServerName,
			frame.HeartBeat, "0,0")) == nil
	case frame.SUBSCRIBE:
		id := f.Header.Get(frame.Id)
		if id == "" {
			id = f.Header.Get(frame.Destination)
		}
		c.broker.mu.Lock()
		c.subscriptions[id] = f.Header.Get(frame.Destination)
		c.broker.mu.Unlock()
	case frame.UNSUBSCRIBE:
		id := f.Header.Get(frame.Id)
		if id == "" {
			id = f.Header.Get(frame.Destination)
		}
		c.broker.mu.Lock()
		delete(c.subscriptions, id)
		c.broker.mu.Unlock()
	case frame.SEND:
		c.broker.route(f)
	case frame.ACK, frame.NACK:
		select {
		case c.broker.acknowledge <- f:
		default:
		}
	case frame.DISCONNECT:
		c.receipt(f)
		return false
	default:
		c.broker.log.WithField("command", f.Command).Debug("ignoring frame")
	}
	return c.receipt(f) == nil
}

func (c *conn) receipt(f *frame.Frame) error {
	id, ok := f.Header.Contains(frame.Receipt)
	if !ok {
		return nil
	}
	return c.write(frame.New(frame.RECEIPT, frame.ReceiptId, id))
}

func (c *conn) write(f *frame.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writer.Write(f)
}

func (c *conn) close() {
	c.once.Do(func() {
		c.raw.Close()
		c.broker.forget(c)
	})
}
