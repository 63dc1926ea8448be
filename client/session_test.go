// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmware/stompclient-go/protocol"
)

func TestSession_Send(t *testing.T) {
	_, _, m, l, sess := connect(t, testConfig())
	defer l.Unsubscribe()

	require.NoError(t, sess.Send("/queue/a", []byte("hello"), "priority", "9"))
	f := m.expectFrame(t, frame.SEND)
	assert.Equal(t, "/queue/a", f.Header.Get(frame.Destination))
	assert.Equal(t, "9", f.Header.Get("priority"))
	assert.Equal(t, "5", f.Header.Get(frame.ContentLength))
	assert.Equal(t, []byte("hello"), f.Body)
}

func TestSession_Transaction(t *testing.T) {
	_, _, m, l, sess := connect(t, testConfig())
	defer l.Unsubscribe()

	tx, err := sess.Begin("")
	require.NoError(t, err)
	assert.Equal(t, "tx-0", tx.Id)
	assert.Equal(t, "tx-0", m.expectFrame(t, frame.BEGIN).Header.Get(frame.Transaction))

	require.NoError(t, tx.Send("/queue/a", []byte("x")))
	assert.Equal(t, "tx-0", m.expectFrame(t, frame.SEND).Header.Get(frame.Transaction))

	require.NoError(t, tx.Commit())
	assert.Equal(t, "tx-0", m.expectFrame(t, frame.COMMIT).Header.Get(frame.Transaction))

	named, err := sess.Begin("mine")
	require.NoError(t, err)
	assert.Equal(t, "mine", named.Id)
	m.expectFrame(t, frame.BEGIN)
	require.NoError(t, named.Abort())
	assert.Equal(t, "mine", m.expectFrame(t, frame.ABORT).Header.Get(frame.Transaction))
}

func TestSession_SubscribeAndAck(t *testing.T) {
	_, _, m, l, sess := connect(t, testConfig())
	defer l.Unsubscribe()

	sub, err := sess.Subscribe("/queue/a", WithAck(stomp.AckClientIndividual))
	require.NoError(t, err)
	assert.Equal(t, "sub-0", sub.Id)
	f := m.expectFrame(t, frame.SUBSCRIBE)
	assert.Equal(t, "sub-0", f.Header.Get(frame.Id))
	assert.Equal(t, "/queue/a", f.Header.Get(frame.Destination))
	assert.Equal(t, frame.AckClientIndividual, f.Header.Get(frame.Ack))

	m.receiveBody(frame.MESSAGE, []byte("one"),
		frame.Destination, "/queue/a",
		frame.Subscription, "sub-0",
		frame.MessageId, "m-1",
		frame.Ack, "a-1")
	msg := nextMessage(t, sub)
	assert.Equal(t, []byte("one"), msg.Body)
	assert.Equal(t, "/queue/a", msg.Destination())
	assert.Equal(t, "a-1", msg.MessageId)
	assert.Equal(t, "sub-0", msg.SubscriptionId)

	require.NoError(t, msg.Ack())
	ack := m.expectFrame(t, frame.ACK)
	assert.Equal(t, "a-1", ack.Header.Get(frame.Id))
	assert.Equal(t, "sub-0", ack.Header.Get(frame.Subscription))

	require.NoError(t, msg.Nack())
	assert.Equal(t, "a-1", m.expectFrame(t, frame.NACK).Header.Get(frame.Id))

	require.NoError(t, sub.Unsubscribe())
	unsub := m.expectFrame(t, frame.UNSUBSCRIBE)
	assert.Equal(t, "sub-0", unsub.Header.Get(frame.Id))
	_, ok := <-sub.C
	assert.False(t, ok)
	assert.NoError(t, sub.Err())

	require.NoError(t, sub.Unsubscribe())
	m.noFrame(t)
}

func TestSession_AckOn11(t *testing.T) {
	_, _, m, l, sess := connect(t, testConfig(), frame.Version, "1.1")
	defer l.Unsubscribe()

	sub, err := sess.Subscribe("/queue/a", WithAck(stomp.AckClient))
	require.NoError(t, err)
	m.expectFrame(t, frame.SUBSCRIBE)

	m.receive(frame.MESSAGE, frame.Destination, "/queue/a", frame.Subscription, "sub-0", frame.MessageId, "m-7")
	msg := nextMessage(t, sub)
	require.NoError(t, msg.Ack())
	ack := m.expectFrame(t, frame.ACK)
	assert.Equal(t, "m-7", ack.Header.Get(frame.MessageId))
	assert.Equal(t, "sub-0", ack.Header.Get(frame.Subscription))
}

func TestSession_NackOn10(t *testing.T) {
	_, _, m, l, sess := connect(t, testConfig(), frame.Version, "1.0")
	defer l.Unsubscribe()

	err := sess.Nack("m-1", "sub-0")
	assert.True(t, errors.Is(err, protocol.ErrUnsupportedOperation))
	m.noFrame(t)
}

func TestSession_RoutesByDestinationWithoutSubscriptionHeader(t *testing.T) {
	_, _, m, l, sess := connect(t, testConfig(), frame.Version, "1.0")
	defer l.Unsubscribe()

	a, err := sess.Subscribe("/topic/a")
	require.NoError(t, err)
	b, err := sess.Subscribe("/topic/b")
	require.NoError(t, err)
	m.expectFrame(t, frame.SUBSCRIBE)
	m.expectFrame(t, frame.SUBSCRIBE)

	m.receiveBody(frame.MESSAGE, []byte("for b"), frame.Destination, "/topic/b", frame.MessageId, "1")
	msg := nextMessage(t, b)
	assert.Equal(t, []byte("for b"), msg.Body)
	assert.Equal(t, b.Id, msg.SubscriptionId)
	assert.Empty(t, a.C)
}

func TestSession_UnknownSubscriptionIsDropped(t *testing.T) {
	_, _, m, l, sess := connect(t, testConfig())
	defer l.Unsubscribe()

	sub, err := sess.Subscribe("/queue/a")
	require.NoError(t, err)
	m.expectFrame(t, frame.SUBSCRIBE)

	m.receive(frame.MESSAGE, frame.Destination, "/queue/a", frame.Subscription, "sub-99", frame.MessageId, "1")
	m.receive(frame.MESSAGE, frame.Destination, "/queue/a", frame.Subscription, "sub-0", frame.MessageId, "2")
	assert.Equal(t, "2", nextMessage(t, sub).MessageId)
}

func TestSession_DuplicateSubscriptionId(t *testing.T) {
	_, _, m, l, sess := connect(t, testConfig())
	defer l.Unsubscribe()

	_, err := sess.Subscribe("/queue/a", WithId("mine"), WithHeaders("selector", "x = 1"))
	require.NoError(t, err)
	f := m.expectFrame(t, frame.SUBSCRIBE)
	assert.Equal(t, "mine", f.Header.Get(frame.Id))
	assert.Equal(t, "x = 1", f.Header.Get("selector"))

	_, err = sess.Subscribe("/queue/b", WithId("mine"))
	assert.True(t, errors.Is(err, ErrDuplicateSubscription))
	m.noFrame(t)
}

func TestSession_Broadcast(t *testing.T) {
	_, _, m, l, sess := connect(t, testConfig())
	defer l.Unsubscribe()

	first, err := sess.SubscribeBroadcast("/topic/news")
	require.NoError(t, err)
	second, err := sess.SubscribeBroadcast("/topic/news")
	require.NoError(t, err)
	assert.Equal(t, "sub-0", first.Id)
	assert.Equal(t, first.Id, second.Id)
	m.expectFrame(t, frame.SUBSCRIBE)
	m.noFrame(t)

	m.receiveBody(frame.MESSAGE, []byte("extra"), frame.Destination, "/topic/news", frame.Subscription, "sub-0", frame.MessageId, "1")
	assert.Equal(t, []byte("extra"), nextMessage(t, first).Body)
	assert.Equal(t, []byte("extra"), nextMessage(t, second).Body)

	require.NoError(t, first.Unsubscribe())
	m.noFrame(t)
	require.NoError(t, second.Unsubscribe())
	assert.Equal(t, "sub-0", m.expectFrame(t, frame.UNSUBSCRIBE).Header.Get(frame.Id))

	third, err := sess.SubscribeBroadcast("/topic/news")
	require.NoError(t, err)
	assert.Equal(t, "sub-1", third.Id)
	assert.Equal(t, "sub-1", m.expectFrame(t, frame.SUBSCRIBE).Header.Get(frame.Id))
}

func TestSession_Receipts(t *testing.T) {
	_, _, m, l, sess := connect(t, testConfig())
	defer l.Unsubscribe()

	receipts := sess.Receipts()
	defer receipts.Unsubscribe()
	require.NoError(t, sess.Send("/queue/a", nil, frame.Receipt, "r-1"))
	assert.Equal(t, "r-1", m.expectFrame(t, frame.SEND).Header.Get(frame.Receipt))

	m.receive(frame.RECEIPT, frame.ReceiptId, "r-1")
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	f, err := receipts.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r-1", f.Header.Get(frame.ReceiptId))
}

func TestSession_Errors(t *testing.T) {
	_, _, m, l, sess := connect(t, testConfig())
	defer l.Unsubscribe()

	errorFrames := sess.Errors()
	m.receiveBody(frame.ERROR, []byte("details"), frame.Message, "bad destination")

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	f, err := errorFrames.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bad destination", f.Header.Get(frame.Message))
	assert.Equal(t, []byte("details"), f.Body)
	assert.Nil(t, sess.Err())
}

func TestSession_Invalidate(t *testing.T) {
	_, b, m, l, sess := connect(t, testConfig())
	defer l.Unsubscribe()

	sub, err := sess.Subscribe("/queue/a")
	require.NoError(t, err)
	shared, err := sess.SubscribeBroadcast("/topic/a")
	require.NoError(t, err)
	receipts := sess.Receipts()
	connErrors := sess.ConnectionErrors()

	cause := errors.New("broken pipe")
	m.events.Close(cause)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	reported, err := connErrors.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, cause, reported)

	_, err = sub.Next(ctx)
	assert.Equal(t, ErrSessionClosed, err)
	_, err = shared.Next(ctx)
	assert.Equal(t, ErrSessionClosed, err)
	_, err = receipts.Next(ctx)
	assert.Equal(t, ErrSessionClosed, err)

	assert.Equal(t, ErrSessionClosed, sess.Send("/queue/a", nil))
	_, err = sess.Subscribe("/queue/b")
	assert.Equal(t, ErrSessionClosed, err)
	assert.NoError(t, sub.Unsubscribe())

	late := sess.Errors()
	_, ok := <-late.C
	assert.False(t, ok)
	assert.Equal(t, ErrSessionClosed, late.Err())

	b.next(t)
}

func TestSession_SlowSubscriberDoesNotBlockDisconnect(t *testing.T) {
	c, _, m, l, sess := connect(t, testConfig())
	defer l.Unsubscribe()

	sub, err := sess.Subscribe("/queue/a", WithBuffer(0))
	require.NoError(t, err)
	m.expectFrame(t, frame.SUBSCRIBE)
	m.receive(frame.MESSAGE, frame.Destination, "/queue/a", frame.Subscription, sub.Id, frame.MessageId, "1")

	done := make(chan struct{})
	go func() {
		c.Disconnect()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("disconnect blocked on a slow subscriber")
	}
}

func TestSession_SlowSubscriberDoesNotStallOthers(t *testing.T) {
	_, _, m, l, sess := connect(t, testConfig())
	defer l.Unsubscribe()

	slow, err := sess.Subscribe("/queue/slow", WithBuffer(1))
	require.NoError(t, err)
	m.expectFrame(t, frame.SUBSCRIBE)
	fast, err := sess.Subscribe("/queue/fast")
	require.NoError(t, err)
	m.expectFrame(t, frame.SUBSCRIBE)
	receipts := sess.Receipts()
	defer receipts.Unsubscribe()

	for _, id := range []string{"1", "2", "3"} {
		m.receive(frame.MESSAGE, frame.Destination, "/queue/slow", frame.Subscription, slow.Id, frame.MessageId, id)
	}
	m.receive(frame.MESSAGE, frame.Destination, "/queue/fast", frame.Subscription, fast.Id, frame.MessageId, "4")
	m.receive(frame.RECEIPT, frame.ReceiptId, "r-1")

	msg := nextMessage(t, fast)
	assert.Equal(t, "4", msg.MessageId)

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	f, err := receipts.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r-1", f.Header.Get(frame.ReceiptId))

	for _, id := range []string{"1", "2", "3"} {
		assert.Equal(t, id, nextMessage(t, slow).MessageId)
	}
}

func TestSession_ConnectionErrorsAfterFailure(t *testing.T) {
	_, b, m, l, sess := connect(t, testConfig())
	defer l.Unsubscribe()

	cause := errors.New("connection reset")
	m.events.Close(cause)
	select {
	case <-sess.Done():
	case <-time.After(waitTimeout):
		t.Fatal("session not invalidated")
	}

	connErrors := sess.ConnectionErrors()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	reported, err := connErrors.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, cause, reported)
	_, err = connErrors.Next(ctx)
	assert.Equal(t, ErrSessionClosed, err)

	again := sess.ConnectionErrors()
	reported, err = again.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, cause, reported)

	b.next(t)
}

func TestSession_ConnectionErrorsAfterDisconnect(t *testing.T) {
	c, _, _, l, sess := connect(t, testConfig())
	defer l.Unsubscribe()

	c.Disconnect()
	<-sess.Done()

	connErrors := sess.ConnectionErrors()
	_, ok := <-connErrors.C
	assert.False(t, ok)
	assert.Equal(t, ErrSessionClosed, connErrors.Err())
}
