// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package monitor

import (
	"sync"
)

// MonitorStream exposes a channel to listen for client life cycle events.
// Sending never blocks: events nobody is ready to receive are dropped.
type MonitorStream struct {
	Stream chan *MonitorEvent
	lock   sync.Mutex // prevent concurrent writes to stream
	closed bool
}

// NewMonitorStream creates a stream buffering up to size undelivered events.
func NewMonitorStream(size int) *MonitorStream {
	return &MonitorStream{Stream: make(chan *MonitorEvent, size)}
}

// SendMonitorEvent sends a new monitor event without any detail.
func (m *MonitorStream) SendMonitorEvent(evtType EventType, destination string) {
	m.send(NewMonitorEvent(evtType, destination))
}

// SendMonitorEventAttempt sends a connection event tagged with the reconnect
// attempt it belongs to.
func (m *MonitorStream) SendMonitorEventAttempt(evtType EventType, attempt int, err error) {
	evt := NewMonitorEvent(evtType, "")
	evt.Attempt = attempt
	evt.Err = err
	m.send(evt)
}

func (m *MonitorStream) send(evt *MonitorEvent) {
	if m == nil {
		return
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.closed {
		return
	}
	// make this non blocking, there may be no-one listening.
	select {
	case m.Stream <- evt:
	default:
		// channel full, no-one listening, drop.
	}
}

// Close closes the underlying channel. Later events are dropped.
func (m *MonitorStream) Close() {
	m.lock.Lock()
	defer m.lock.Unlock()
	if !m.closed {
		m.closed = true
		close(m.Stream)
	}
}
