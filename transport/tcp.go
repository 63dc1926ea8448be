// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package transport

import (
	"crypto/tls"
	"net"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vmware/stompclient-go/log"
	"golang.org/x/net/proxy"
)

const readBufferSize = 4096

type tcpTransport struct {
	addr      string
	tlsConfig *tls.Config
	events    Events
	log       *logrus.Entry

	mu      sync.Mutex
	conn    net.Conn
	closing bool

	writeLock sync.Mutex
}

// NewTCPFactory returns a Factory opening plain sockets to addr, through the
// proxy configured in the environment (ALL_PROXY) if any. A non nil
// tlsConfig wraps the socket in TLS.
func NewTCPFactory(addr string, tlsConfig *tls.Config) Factory {
	return func(events Events, opts Options) (Transport, error) {
		t := &tcpTransport{
			addr:      addr,
			tlsConfig: tlsConfig,
			events:    events,
			log:       log.OrDiscard(opts.Logger).WithField("transport", "tcp"),
		}
		go t.run()
		return t, nil
	}
}

func (t *tcpTransport) dial() (net.Conn, error) {
	conn, err := proxy.FromEnvironment().Dial("tcp", t.addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", t.addr)
	}
	if t.tlsConfig == nil {
		return conn, nil
	}
	cfg := t.tlsConfig.Clone()
	if cfg.ServerName == "" {
		if host, _, err := net.SplitHostPort(t.addr); err == nil {
			cfg.ServerName = host
		}
	}
	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "tls handshake")
	}
	return tlsConn, nil
}

func (t *tcpTransport) run() {
	t.log.WithField("addr", t.addr).Debug("dialing")
	conn, err := t.dial()

	t.mu.Lock()
	if err != nil {
		closing := t.closing
		t.mu.Unlock()
		if !closing {
			t.events.close(err)
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
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			t.events.message(append([]byte(nil), buf[:n]...))
		}
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
	}
}

func (t *tcpTransport) Send(data []byte) error {
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
	_, err := conn.Write(data)
	return err
}

func (t *tcpTransport) Close() error {
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
	return conn.Close()
}
