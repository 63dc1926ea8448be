// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package client

import (
	"sync"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vmware/stompclient-go/codec"
	"github.com/vmware/stompclient-go/metrics"
	"github.com/vmware/stompclient-go/transport"
)

// writer serializes whole frames and heart-beats onto one transport, so the
// pieces of a split frame are never interleaved with other writes.
type writer struct {
	mu                sync.Mutex
	transport         transport.Transport
	maxFrameSize      int
	skipContentLength bool
	metrics           *metrics.Collector
	log               *logrus.Entry
}

func newWriter(t transport.Transport, cfg Config, logger *logrus.Entry) *writer {
	return &writer{
		transport:         t,
		maxFrameSize:      cfg.MaxTransportFrameSize,
		skipContentLength: cfg.SkipContentLength,
		metrics:           cfg.Metrics,
		log:               logger,
	}
}

func (w *writer) writeFrame(f *frame.Frame) error {
	var opts []codec.MarshallOption
	if w.skipContentLength && f.Command == frame.SEND {
		opts = append(opts, codec.SkipContentLength())
	}
	data := codec.MarshallFrame(f, opts...)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.log.Logger.IsLevelEnabled(logrus.TraceLevel) {
		w.log.Tracef(">>> %s", data)
	}
	for len(data) > 0 {
		n := len(data)
		if w.maxFrameSize > 0 && n > w.maxFrameSize {
			n = w.maxFrameSize
		}
		if err := w.transport.Send(data[:n]); err != nil {
			return errors.Wrapf(err, "unable to send %s frame", f.Command)
		}
		data = data[n:]
	}
	w.metrics.FrameSent(f.Command)
	return nil
}

func (w *writer) writeHeartbeat(marker []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.transport.Send(marker)
}
