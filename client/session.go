// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package client

import (
	"strconv"
	"sync"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vmware/stompclient-go/metrics"
	"github.com/vmware/stompclient-go/monitor"
	"github.com/vmware/stompclient-go/protocol"
)

// Session is an established STOMP connection. It stays usable until the
// transport is lost or the stream is torn down; after that every operation
// returns ErrSessionClosed and every subscription is closed with it. A
// reconnect produces a new Session.
type Session struct {
	id       string
	version  stomp.Version
	server   string
	protocol protocol.Protocol
	writer   *writer
	buffer   int
	cancel   <-chan struct{}
	metrics  *metrics.Collector
	monitor  *monitor.MonitorStream
	log      *logrus.Entry

	mu            sync.Mutex
	broadcastMu   sync.Mutex
	closed        bool
	err           error
	failure       error
	nextId        uint64
	subscriptions map[string]*route
	broadcasts    map[string]*broadcast

	receiptsOnce   sync.Once
	receipts       *mailbox[*frame.Frame]
	errorsOnce     sync.Once
	errorFrames    *mailbox[*frame.Frame]
	connErrorsOnce sync.Once
	connErrors     *feed[error]

	done chan struct{}
}

func newSession(p protocol.Protocol, connected *frame.Frame, w *writer, cfg Config, cancel <-chan struct{}, logger *logrus.Entry) *Session {
	id := uuid.New().String()
	return &Session{
		id:            id,
		version:       p.Version(),
		server:        connected.Header.Get(frame.Server),
		protocol:      p,
		writer:        w,
		buffer:        cfg.SubscriptionBuffer,
		cancel:        cancel,
		metrics:       cfg.Metrics,
		monitor:       cfg.Monitor,
		log:           logger.WithField("session", id),
		subscriptions: make(map[string]*route),
		broadcasts:    make(map[string]*broadcast),
		done:          make(chan struct{}),
	}
}

func (s *Session) Id() string {
	return s.id
}

// Version returns the negotiated protocol version.
func (s *Session) Version() stomp.Version {
	return s.version
}

// Server returns the server header of the CONNECTED frame.
func (s *Session) Server() string {
	return s.server
}

// Done is closed when the session becomes invalid.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session ended, nil while it is valid.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) write(f *frame.Frame, err error) error {
	if err != nil {
		return err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	return s.writer.writeFrame(f)
}

// Send publishes body to destination. headers are key, value pairs.
func (s *Session) Send(destination string, body []byte, headers ...string) error {
	return s.write(s.protocol.Send(destination, body, frame.NewHeader(headers...)))
}

// Begin starts a transaction, allocating an id when transaction is empty.
func (s *Session) Begin(transaction string, headers ...string) (*Transaction, error) {
	f, err := s.protocol.Begin(transaction, frame.NewHeader(headers...))
	if err := s.write(f, err); err != nil {
		return nil, err
	}
	return &Transaction{Id: f.Header.Get(frame.Transaction), session: s}, nil
}

func (s *Session) Commit(transaction string, headers ...string) error {
	return s.write(s.protocol.Commit(transaction, frame.NewHeader(headers...)))
}

func (s *Session) Abort(transaction string, headers ...string) error {
	return s.write(s.protocol.Abort(transaction, frame.NewHeader(headers...)))
}

func (s *Session) Ack(messageId, subscriptionId string, headers ...string) error {
	return s.write(s.protocol.Ack(messageId, subscriptionId, frame.NewHeader(headers...)))
}

// Nack fails with protocol.ErrUnsupportedOperation on STOMP 1.0.
func (s *Session) Nack(messageId, subscriptionId string, headers ...string) error {
	return s.write(s.protocol.Nack(messageId, subscriptionId, frame.NewHeader(headers...)))
}

// Subscribe opens a wire subscription to destination. Messages are
// delivered on the returned subscription until it is unsubscribed or the
// session ends.
func (s *Session) Subscribe(destination string, opts ...SubscribeOption) (*Subscription, error) {
	o := subscribeOptions{ack: stomp.AckAuto, buffer: s.buffer}
	for _, opt := range opts {
		opt(&o)
	}
	if o.buffer < 0 {
		o.buffer = 0
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	id := o.id
	if id == "" {
		id = "sub-" + strconv.FormatUint(s.nextId, 10)
		s.nextId++
	}
	if _, ok := s.subscriptions[id]; ok {
		s.mu.Unlock()
		return nil, errors.Wrapf(ErrDuplicateSubscription, "id '%s'", id)
	}
	f, err := s.protocol.Subscribe(destination, id, o.ack, frame.NewHeader(o.headers...))
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	// the route is live before SUBSCRIBE goes out so that no MESSAGE is missed
	r := &route{id: id, destination: destination, feed: newMailbox[*Message](o.buffer, s.cancel)}
	listener := r.feed.listen(func() error {
		return s.unsubscribe(r)
	})
	s.subscriptions[id] = r
	s.metrics.SubscriptionOpened()
	s.mu.Unlock()

	if err := s.writer.writeFrame(f); err != nil {
		s.drop(r)
		r.feed.close(err)
		return nil, err
	}

	s.monitor.SendMonitorEvent(monitor.SubscribedEvt, destination)
	s.log.WithFields(logrus.Fields{"destination": destination, "subscription": id}).Debug("subscribed")
	return &Subscription{Listener: listener, Id: id, Destination: destination, AckMode: o.ack}, nil
}

// drop removes r from the routing table and reports whether it was there.
func (s *Session) drop(r *route) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.subscriptions[r.id] != r {
		return false
	}
	delete(s.subscriptions, r.id)
	s.metrics.SubscriptionClosed()
	return true
}

func (s *Session) unsubscribe(r *route) error {
	if !s.drop(r) {
		return nil
	}
	r.feed.close(nil)
	s.monitor.SendMonitorEvent(monitor.UnsubscribedEvt, r.destination)
	s.log.WithFields(logrus.Fields{"destination": r.destination, "subscription": r.id}).Debug("unsubscribed")

	return s.write(s.protocol.Unsubscribe(r.id, r.destination, nil))
}

// SubscribeBroadcast subscribes to destination through a wire subscription
// shared with every other broadcast consumer of the same destination. The
// first consumer's options apply. The wire subscription is closed when the
// last consumer unsubscribes; a later call subscribes again.
func (s *Session) SubscribeBroadcast(destination string, opts ...SubscribeOption) (*Subscription, error) {
	s.broadcastMu.Lock()
	defer s.broadcastMu.Unlock()

	s.mu.Lock()
	b, ok := s.broadcasts[destination]
	s.mu.Unlock()

	if !ok {
		upstream, err := s.Subscribe(destination, opts...)
		if err != nil {
			return nil, err
		}
		b = &broadcast{
			destination: destination,
			feed:        newFeed[*Message](s.buffer, s.cancel),
			upstream:    upstream,
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, ErrSessionClosed
		}
		s.broadcasts[destination] = b
		s.mu.Unlock()
		go b.pump()
	}

	listener := b.feed.listen(func() error {
		return s.release(b)
	})
	return &Subscription{
		Listener:    listener,
		Id:          b.upstream.Id,
		Destination: destination,
		AckMode:     b.upstream.AckMode,
	}, nil
}

// release closes the wire subscription of b once its last consumer left.
func (s *Session) release(b *broadcast) error {
	s.broadcastMu.Lock()
	defer s.broadcastMu.Unlock()

	if b.feed.count() > 0 {
		return nil
	}
	s.mu.Lock()
	if s.broadcasts[b.destination] == b {
		delete(s.broadcasts, b.destination)
	}
	s.mu.Unlock()

	b.feed.close(nil)
	return b.upstream.Unsubscribe()
}

// Receipts returns a listener for RECEIPT frames.
func (s *Session) Receipts() *Listener[*frame.Frame] {
	s.receiptsOnce.Do(func() {
		s.initFeed(&s.receipts)
	})
	return s.receipts.listen(nil)
}

// Errors returns a listener for ERROR frames.
func (s *Session) Errors() *Listener[*frame.Frame] {
	s.errorsOnce.Do(func() {
		s.initFeed(&s.errorFrames)
	})
	return s.errorFrames.listen(nil)
}

// ConnectionErrors returns a listener receiving the transport failure that
// ends the session, if any. A listener created after the failure still
// receives it before being closed.
func (s *Session) ConnectionErrors() *Listener[error] {
	s.connErrorsOnce.Do(func() {
		f := newLatestFeed[error](true)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			if s.failure != nil {
				f.publish(s.failure)
			}
			f.close(ErrSessionClosed)
		}
		s.connErrors = f
	})
	return s.connErrors.listen(nil)
}

func (s *Session) initFeed(target **mailbox[*frame.Frame]) {
	f := newMailbox[*frame.Frame](s.buffer, s.cancel)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		f.close(ErrSessionClosed)
	}
	*target = f
}

// dispatch hands an inbound frame to its listeners. It runs on the stream's
// event loop.
func (s *Session) dispatch(f *frame.Frame) {
	switch f.Command {
	case frame.MESSAGE:
		s.dispatchMessage(f)
	case frame.RECEIPT:
		s.mu.Lock()
		receipts := s.receipts
		s.mu.Unlock()
		if receipts != nil {
			receipts.post(f)
		}
	case frame.ERROR:
		s.log.WithField("message", f.Header.Get(frame.Message)).Warn("ERROR frame received")
		s.monitor.SendMonitorEvent(monitor.ErrorFrameEvt, f.Header.Get(frame.Destination))
		s.mu.Lock()
		errorFrames := s.errorFrames
		s.mu.Unlock()
		if errorFrames != nil {
			errorFrames.post(f)
		}
	default:
		s.log.WithField("command", f.Command).Warn("unhandled frame")
	}
}

func (s *Session) dispatchMessage(f *frame.Frame) {
	subscriptionId := s.protocol.SubscriptionId(f)
	destination := f.Header.Get(frame.Destination)

	var routes []*route
	s.mu.Lock()
	if subscriptionId != "" {
		if r, ok := s.subscriptions[subscriptionId]; ok {
			routes = append(routes, r)
		}
	} else {
		for _, r := range s.subscriptions {
			if r.destination == destination {
				routes = append(routes, r)
			}
		}
	}
	s.mu.Unlock()

	if len(routes) == 0 {
		s.log.WithFields(logrus.Fields{
			"destination":  destination,
			"subscription": subscriptionId,
		}).Debug("no subscription for MESSAGE, dropping")
		return
	}
	messageId := s.protocol.MessageId(f)
	for _, r := range routes {
		r.feed.post(&Message{
			Frame:          f,
			MessageId:      messageId,
			SubscriptionId: r.id,
			session:        s,
		})
	}
}

// invalidate ends the session. cause is reported on ConnectionErrors when
// the transport failed.
func (s *Session) invalidate(cause error, transportFailure bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = cause
	if transportFailure {
		s.failure = cause
	}
	routes := s.subscriptions
	s.subscriptions = make(map[string]*route)
	s.broadcasts = make(map[string]*broadcast)
	receipts, errorFrames, connErrors := s.receipts, s.errorFrames, s.connErrors
	s.mu.Unlock()

	if connErrors != nil {
		if transportFailure {
			connErrors.publish(cause)
		}
		connErrors.close(ErrSessionClosed)
	}
	for _, r := range routes {
		r.feed.close(ErrSessionClosed)
		s.metrics.SubscriptionClosed()
	}
	if receipts != nil {
		receipts.close(ErrSessionClosed)
	}
	if errorFrames != nil {
		errorFrames.close(ErrSessionClosed)
	}
	close(s.done)
}
