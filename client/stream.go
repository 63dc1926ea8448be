// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package client

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vmware/stompclient-go/codec"
	"github.com/vmware/stompclient-go/heartbeat"
	"github.com/vmware/stompclient-go/monitor"
	"github.com/vmware/stompclient-go/protocol"
	"github.com/vmware/stompclient-go/transport"
)

type eventKind int

const (
	transportOpened eventKind = iota
	transportData
	transportClosed
	heartbeatTimedOut
	reconnectDue
)

// event is posted to the loop. generation identifies the transport it
// belongs to; events of older transports are ignored.
type event struct {
	kind       eventKind
	generation uint64
	data       []byte
	err        error
}

// SessionListener receives every Session the stream establishes. A new
// listener first receives the current session, if any.
type SessionListener = Listener[*Session]

// SessionStream is the shared, reconnecting connection of a Client.
type SessionStream struct {
	id      string
	client  *Client
	cfg     Config
	factory transport.Factory
	headers []string
	log     *logrus.Entry

	sessions *feed[*Session]
	events   chan event
	stop     chan struct{}
	done     chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	state     int32

	// owned by the loop goroutine
	generation uint64
	transport  transport.Transport
	writer     *writer
	decoder    *codec.Decoder
	protocol   protocol.Protocol
	session    *Session
	heartbeat  *heartbeat.Negotiator
	attempts   int
	receipts   uint64
	reconnect  *time.Timer
	err        error
}

func newSessionStream(c *Client, headers []string) *SessionStream {
	id := uuid.New().String()
	logger := c.cfg.Logger.WithField("stream", id)
	return &SessionStream{
		id:        id,
		client:    c,
		cfg:       c.cfg,
		factory:   c.factory,
		headers:   headers,
		log:       logger,
		sessions:  newLatestFeed[*Session](true),
		events:    make(chan event),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		decoder:   codec.NewDecoder(logger),
		heartbeat: heartbeat.NewNegotiator(c.cfg.Heartbeat, logger),
	}
}

func (s *SessionStream) Id() string {
	return s.id
}

func (s *SessionStream) State() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *SessionStream) setState(state State) {
	atomic.StoreInt32(&s.state, int32(state))
}

// Listen attaches a listener, connecting if it is the first one.
func (s *SessionStream) Listen() *SessionListener {
	l := s.sessions.listen(func() error {
		s.requestStop()
		return nil
	})
	s.start()
	return l
}

// Close tears the stream down and waits until it is finished.
func (s *SessionStream) Close() {
	s.requestStop()
	s.start()
	<-s.done
}

// Done is closed once the stream has stopped for good.
func (s *SessionStream) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error of a failed stream.
func (s *SessionStream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *SessionStream) start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

func (s *SessionStream) requestStop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

// post hands an event to the loop, giving up when the loop is gone.
func (s *SessionStream) post(e event) {
	select {
	case s.events <- e:
	case <-s.done:
	}
}

func (s *SessionStream) run() {
	defer close(s.done)

	select {
	case <-s.stop:
		s.teardown()
		return
	default:
	}

	s.open()
	for {
		if s.State() == Failed {
			s.shutdown(s.err)
			return
		}
		select {
		case e := <-s.events:
			if e.generation != s.generation {
				continue
			}
			s.handle(e)
		case <-s.stop:
			s.teardown()
			return
		}
	}
}

func (s *SessionStream) handle(e event) {
	switch e.kind {
	case transportOpened:
		if s.transport != nil {
			s.onOpen()
		}
	case transportData:
		if s.transport != nil {
			s.onData(e.data)
		}
	case transportClosed:
		if s.transport != nil {
			err := e.err
			if err == nil {
				err = ErrTransportClosed
			}
			s.connectionLost(err)
		}
	case heartbeatTimedOut:
		if s.session != nil {
			s.cfg.Metrics.HeartbeatTimeout()
			s.cfg.Monitor.SendMonitorEvent(monitor.HeartbeatTimeoutEvt, "")
			s.connectionLost(ErrHeartbeatTimeout)
		}
	case reconnectDue:
		if s.transport == nil {
			s.open()
		}
	}
}

// open starts a new transport.
func (s *SessionStream) open() {
	s.generation++
	generation := s.generation
	s.setState(Connecting)
	s.decoder.Reset()
	s.protocol, _ = protocol.New("")

	s.log.WithField("attempt", s.attempts).Info("connecting")
	s.cfg.Monitor.SendMonitorEventAttempt(monitor.ConnectingEvt, s.attempts, nil)

	events := transport.Events{
		Open: func() {
			s.post(event{kind: transportOpened, generation: generation})
		},
		Message: func(data []byte) {
			// counts as activity even while the loop is busy
			s.heartbeat.Activity()
			s.post(event{kind: transportData, generation: generation, data: data})
		},
		Close: func(err error) {
			s.post(event{kind: transportClosed, generation: generation, err: err})
		},
	}
	t, err := s.factory(events, transport.Options{Binary: s.cfg.Binary, Logger: s.log})
	if err != nil {
		s.connectionLost(err)
		return
	}
	s.transport = t
	s.writer = newWriter(t, s.cfg, s.log)
}

func (s *SessionStream) onOpen() {
	header := frame.NewHeader(s.headers...)
	if _, ok := header.Contains(frame.HeartBeat); !ok {
		header.Set(frame.HeartBeat, s.cfg.Heartbeat.String())
	}
	if err := s.writer.writeFrame(s.protocol.Connect(header)); err != nil {
		s.connectionLost(err)
	}
}

func (s *SessionStream) onData(data []byte) {
	for _, f := range s.decoder.Decode(data) {
		s.cfg.Metrics.FrameReceived(f.Command)
		s.log.Tracef("<<< %s", f.Command)

		switch {
		case f.Command == frame.CONNECTED:
			s.onConnected(f)
		case s.session != nil:
			s.session.dispatch(f)
		default:
			s.log.WithFields(logrus.Fields{
				"command": f.Command,
				"message": f.Header.Get(frame.Message),
			}).Warn("frame received before CONNECTED")
		}
	}
}

func (s *SessionStream) onConnected(f *frame.Frame) {
	if s.session != nil {
		s.log.Warn("ignoring CONNECTED frame on an established session")
		return
	}

	version := f.Header.Get(frame.Version)
	if version == "" {
		version = "1.0"
	}
	p, err := protocol.New(version)
	if err != nil || p.Version() == "" {
		s.log.WithError(err).Warnf("server announced version '%s', falling back to 1.0", version)
		p = protocol.NewV10()
	}
	s.protocol = p
	s.attempts = 0

	if p.SupportsHeartbeat() {
		server, err := heartbeat.ParseServerSettings(f.Header.Get(frame.HeartBeat))
		if err != nil {
			s.log.WithError(err).Warn("ignoring server heart-beat settings")
		}
		w, generation, marker := s.writer, s.generation, p.HeartbeatMarker()
		s.heartbeat.Start(server,
			func() {
				if err := w.writeHeartbeat(marker); err != nil {
					s.log.WithError(err).Debug("heart-beat not sent")
				}
			},
			func() {
				go s.post(event{kind: heartbeatTimedOut, generation: generation})
			})
	}

	s.session = newSession(p, f, s.writer, s.cfg, s.stop, s.log)
	s.setState(Connected)
	s.cfg.Metrics.SetConnected(true)
	s.cfg.Monitor.SendMonitorEvent(monitor.ConnectedEvt, "")
	s.log.WithFields(logrus.Fields{
		"version": p.Version(),
		"server":  s.session.Server(),
		"session": s.session.Id(),
	}).Info("connected")

	s.sessions.publish(s.session)
}

// closeTransport releases everything tied to the current transport.
func (s *SessionStream) closeTransport(cause error, transportFailure bool) {
	s.heartbeat.Stop()
	if s.transport != nil {
		s.transport.Close()
		s.transport = nil
	}
	s.decoder.Reset()
	if s.session != nil {
		s.sessions.forget()
		s.session.invalidate(cause, transportFailure)
		s.session = nil
		s.cfg.Metrics.SetConnected(false)
	}
}

// connectionLost applies the reconnect policy after a failed or dropped
// connection.
func (s *SessionStream) connectionLost(cause error) {
	s.log.WithError(cause).Warn("connection lost")
	s.closeTransport(cause, true)
	s.cfg.Monitor.SendMonitorEventAttempt(monitor.DisconnectedEvt, s.attempts, cause)

	// the first retry after a drop is immediate
	delay := time.Duration(s.attempts) * s.cfg.TTLConnectAttempt
	s.attempts++
	limit := s.cfg.MaxConnectAttempt
	if limit != UnlimitedAttempts && s.attempts >= limit {
		s.err = &ConnectionError{Attempts: s.attempts, Err: cause}
		s.setState(Failed)
		return
	}

	s.log.WithFields(logrus.Fields{"attempt": s.attempts, "delay": delay}).Info("reconnecting")
	s.cfg.Metrics.ReconnectAttempt()
	s.cfg.Monitor.SendMonitorEventAttempt(monitor.ReconnectScheduledEvt, s.attempts, cause)

	generation := s.generation
	s.reconnect = time.AfterFunc(delay, func() {
		s.post(event{kind: reconnectDue, generation: generation})
	})
}

// shutdown ends a failed stream.
func (s *SessionStream) shutdown(err error) {
	s.log.WithError(err).Error("giving up on connection")
	s.cfg.Monitor.SendMonitorEventAttempt(monitor.ConnectionFailedEvt, s.attempts, err)
	s.client.detach(s)
	s.sessions.close(err)
}

// teardown disconnects on request.
func (s *SessionStream) teardown() {
	s.setState(Disconnecting)
	if s.reconnect != nil {
		s.reconnect.Stop()
	}
	if s.session != nil {
		s.receipts++
		f := s.protocol.Disconnect(frame.NewHeader(frame.Receipt, "close-"+strconv.FormatUint(s.receipts, 10)))
		if err := s.writer.writeFrame(f); err != nil {
			s.log.WithError(err).Debug("DISCONNECT not sent")
		}
	}
	s.closeTransport(ErrClientDisconnected, false)
	s.client.detach(s)
	s.sessions.close(ErrClientDisconnected)
	s.setState(Idle)
	s.cfg.Monitor.SendMonitorEvent(monitor.DisconnectedEvt, "")
	s.log.Info("disconnected")
}
