// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package transport

import (
	"testing"
	"time"
)

type recordedEvents struct {
	opened   chan struct{}
	messages chan []byte
	closed   chan error
}

func newRecordedEvents() *recordedEvents {
	return &recordedEvents{
		opened:   make(chan struct{}, 1),
		messages: make(chan []byte, 16),
		closed:   make(chan error, 1),
	}
}

func (r *recordedEvents) events() Events {
	return Events{
		Open:    func() { r.opened <- struct{}{} },
		Message: func(data []byte) { r.messages <- data },
		Close:   func(err error) { r.closed <- err },
	}
}

func (r *recordedEvents) waitOpen() bool {
	select {
	case <-r.opened:
		return true
	case <-time.After(2 * time.Second):
		return false
	}
}

func (r *recordedEvents) nextMessage() []byte {
	select {
	case m := <-r.messages:
		return m
	case <-time.After(2 * time.Second):
		return nil
	}
}

func (r *recordedEvents) waitClose(t *testing.T) error {
	select {
	case err := <-r.closed:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("no close event")
		return nil
	}
}
