// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package transport

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vmware/stompclient-go/log"
)

const closeWriteTimeout = time.Second

type webSocketTransport struct {
	url         string
	header      http.Header
	dialer      *websocket.Dialer
	messageType int
	events      Events
	log         *logrus.Entry

	mu      sync.Mutex
	conn    *websocket.Conn
	closing bool

	writeLock sync.Mutex
}

// NewWebSocketFactory returns a Factory dialing url with gorilla/websocket.
// A nil dialer uses websocket.DefaultDialer.
func NewWebSocketFactory(url string, header http.Header, dialer *websocket.Dialer) Factory {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return func(events Events, opts Options) (Transport, error) {
		t := &webSocketTransport{
			url:         url,
			header:      header,
			dialer:      dialer,
			messageType: websocket.TextMessage,
			events:      events,
			log:         log.OrDiscard(opts.Logger).WithField("transport", "websocket"),
		}
		if opts.Binary {
			t.messageType = websocket.BinaryMessage
		}
		go t.run()
		return t, nil
	}
}

func (t *webSocketTransport) run() {
	t.log.WithField("url", t.url).Debug("dialing")
	conn, _, err := t.dialer.Dial(t.url, t.header)

	t.mu.Lock()
	if err != nil {
		closing := t.closing
		t.mu.Unlock()
		if !closing {
			t.events.close(errors.Wrapf(err, "dial %s", t.url))
		}
		return
	}
	if t.closing {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conn = conn
	t.mu.Unlock()

	t.events.open()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closing := t.closing
			t.mu.Unlock()
			if !closing {
				t.log.WithError(err).Debug("connection lost")
				t.events.close(err)
			}
			return
		}
		t.events.message(data)
	}
}

func (t *webSocketTransport) Send(data []byte) error {
	t.mu.Lock()
	conn, closing := t.conn, t.closing
	t.mu.Unlock()
	if closing {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotOpen
	}

	t.writeLock.Lock()
	defer t.writeLock.Unlock()
	return conn.WriteMessage(t.messageType, data)
}

func (t *webSocketTransport) Close() error {
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return nil
	}
	t.closing = true
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	t.writeLock.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	t.writeLock.Unlock()
	return conn.Close()
}
