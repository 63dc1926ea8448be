// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package client

import (
	"context"
	"sync"
)

// Listener receives the values of a shared stream on C. C is closed when the
// listener unsubscribes or the stream ends; Err then tells why.
type Listener[T any] struct {
	C <-chan T

	c    chan T
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	closed bool
	err    error

	feed    *feed[T]
	release func() error
}

// Next blocks for the next value. It returns ErrStreamClosed, or the error
// the stream ended with, once C is closed.
func (l *Listener[T]) Next(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-l.C:
		if !ok {
			if err := l.Err(); err != nil {
				return zero, err
			}
			return zero, ErrStreamClosed
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Err returns the error the stream ended with, nil while open or after
// Unsubscribe.
func (l *Listener[T]) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Unsubscribe detaches the listener and closes C. Detaching the last
// listener of a stream releases what the stream holds on the wire.
func (l *Listener[T]) Unsubscribe() error {
	if !l.feed.remove(l) {
		return nil
	}
	if l.release != nil {
		return l.release()
	}
	return nil
}

func (l *Listener[T]) deliver(v T, lossy bool, cancel <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if lossy {
		for {
			select {
			case l.c <- v:
				return
			default:
			}
			select {
			case <-l.c:
			default:
			}
		}
	}
	select {
	case l.c <- v:
	case <-l.done:
	case <-cancel:
	}
}

func (l *Listener[T]) shutdown(err error) {
	l.once.Do(func() {
		close(l.done)
		l.mu.Lock()
		l.closed = true
		l.err = err
		close(l.c)
		l.mu.Unlock()
	})
}

// feed fans values out to its listeners. Values are published from a single
// goroutine at a time. A lossy feed never blocks: a slow listener only keeps
// the latest value. Otherwise publish waits until each listener took the
// value, detached, or cancel is closed.
type feed[T any] struct {
	mu        sync.Mutex
	listeners map[*Listener[T]]struct{}
	buffer    int
	lossy     bool
	replay    bool
	latest    T
	hasLatest bool
	closed    bool
	err       error
	cancel    <-chan struct{}
}

func newFeed[T any](buffer int, cancel <-chan struct{}) *feed[T] {
	return &feed[T]{
		listeners: make(map[*Listener[T]]struct{}),
		buffer:    buffer,
		cancel:    cancel,
	}
}

// newLatestFeed returns a lossy feed. With replay, a new listener first
// receives the most recent value.
func newLatestFeed[T any](replay bool) *feed[T] {
	return &feed[T]{
		listeners: make(map[*Listener[T]]struct{}),
		buffer:    1,
		lossy:     true,
		replay:    replay,
	}
}

func (f *feed[T]) listen(release func() error) *Listener[T] {
	c := make(chan T, f.buffer)
	l := &Listener[T]{
		C:       c,
		c:       c,
		done:    make(chan struct{}),
		feed:    f,
		release: release,
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		if f.replay && f.hasLatest {
			l.deliver(f.latest, true, nil)
		}
		l.shutdown(f.err)
		return l
	}
	f.listeners[l] = struct{}{}
	if f.replay && f.hasLatest {
		l.deliver(f.latest, true, nil)
	}
	return l
}

func (f *feed[T]) publish(v T) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	if f.replay {
		f.latest, f.hasLatest = v, true
	}
	if f.lossy {
		for l := range f.listeners {
			l.deliver(v, true, nil)
		}
		f.mu.Unlock()
		return
	}
	listeners := make([]*Listener[T], 0, len(f.listeners))
	for l := range f.listeners {
		listeners = append(listeners, l)
	}
	f.mu.Unlock()

	for _, l := range listeners {
		l.deliver(v, false, f.cancel)
	}
}

// forget drops the replay value.
func (f *feed[T]) forget() {
	f.mu.Lock()
	defer f.mu.Unlock()
	var zero T
	f.latest, f.hasLatest = zero, false
}

// remove detaches l and reports whether it was the last listener of an open
// feed.
func (f *feed[T]) remove(l *Listener[T]) bool {
	f.mu.Lock()
	_, ok := f.listeners[l]
	delete(f.listeners, l)
	last := ok && !f.closed && len(f.listeners) == 0
	f.mu.Unlock()

	l.shutdown(nil)
	return last
}

func (f *feed[T]) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// close ends the feed, closing every listener with err.
func (f *feed[T]) close(err error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.err = err
	listeners := f.listeners
	f.listeners = make(map[*Listener[T]]struct{})
	f.mu.Unlock()

	for l := range listeners {
		l.shutdown(err)
	}
}

// mailbox is a feed whose values are queued and handed to the listeners by
// a goroutine of its own, so post never waits for a slow listener. Values
// are delivered in post order. Values still queued when the mailbox closes
// are dropped.
type mailbox[T any] struct {
	*feed[T]

	mu     sync.Mutex
	queue  []T
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newMailbox[T any](buffer int, cancel <-chan struct{}) *mailbox[T] {
	m := &mailbox[T]{
		feed: newFeed[T](buffer, cancel),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go m.drain()
	return m
}

func (m *mailbox[T]) post(v T) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, v)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// pending returns how many values wait for delivery.
func (m *mailbox[T]) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *mailbox[T]) close(err error) {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		m.queue = nil
		close(m.done)
	}
	m.mu.Unlock()
	m.feed.close(err)
}

func (m *mailbox[T]) drain() {
	for {
		select {
		case <-m.wake:
		case <-m.done:
			return
		}
		for {
			v, ok := m.next()
			if !ok {
				break
			}
			m.feed.publish(v)
		}
	}
}

func (m *mailbox[T]) next() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	if m.closed || len(m.queue) == 0 {
		return zero, false
	}
	v := m.queue[0]
	m.queue[0] = zero
	m.queue = m.queue[1:]
	return v, true
}
