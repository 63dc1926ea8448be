// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package protocol

import (
	"testing"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, v := range []stomp.Version{stomp.V10, stomp.V11, stomp.V12} {
		p, err := New(string(v))
		require.NoError(t, err)
		assert.Equal(t, v, p.Version())
	}

	p, err := New("")
	require.NoError(t, err)
	assert.Equal(t, stomp.Version(""), p.Version())

	_, err = New("2.0")
	assert.Equal(t, ErrUnsupportedVersion, errors.Cause(err))
}

func TestProtocol_Connect(t *testing.T) {
	for _, v := range []string{"", "1.0", "1.1", "1.2"} {
		p, _ := New(v)
		f := p.Connect(frame.NewHeader(frame.AcceptVersion, "1.0", frame.HeartBeat, "1000,1000", frame.Login, "guest"))
		assert.Equal(t, frame.CONNECT, f.Command)
		assert.Equal(t, AcceptVersions, f.Header.Get(frame.AcceptVersion))
		assert.Equal(t, []string{AcceptVersions}, f.Header.GetAll(frame.AcceptVersion))
		assert.Equal(t, "1000,1000", f.Header.Get(frame.HeartBeat))
		assert.Equal(t, "guest", f.Header.Get(frame.Login))

		d := p.Disconnect(frame.NewHeader(frame.Receipt, "close-1"))
		assert.Equal(t, frame.DISCONNECT, d.Command)
		assert.Equal(t, "close-1", d.Header.Get(frame.Receipt))
	}
}

func TestUnnegotiated_RejectsOperations(t *testing.T) {
	p, _ := New("")
	_, err := p.Send("/q", nil, nil)
	assert.Equal(t, ErrNotNegotiated, err)
	_, err = p.Subscribe("/q", "sub-0", stomp.AckAuto, nil)
	assert.Equal(t, ErrNotNegotiated, err)
	_, err = p.Begin("", nil)
	assert.Equal(t, ErrNotNegotiated, err)
	_, err = p.Ack("1", "sub-0", nil)
	assert.Equal(t, ErrNotNegotiated, err)
	assert.Nil(t, p.HeartbeatMarker())
	assert.False(t, p.SupportsHeartbeat())
}

func TestProtocol_Send(t *testing.T) {
	p := NewV12()
	f, err := p.Send("/queue/a", []byte("hi"), frame.NewHeader(frame.Destination, "/ignored", "priority", "9"))
	require.NoError(t, err)
	assert.Equal(t, frame.SEND, f.Command)
	assert.Equal(t, "/queue/a", f.Header.Get(frame.Destination))
	assert.Equal(t, "9", f.Header.Get("priority"))
	assert.Equal(t, []byte("hi"), f.Body)

	_, err = p.Send("", nil, nil)
	assert.Equal(t, ErrMissingHeader, errors.Cause(err))
}

func TestProtocol_Transactions(t *testing.T) {
	p := NewV11()
	f, err := p.Begin("", nil)
	require.NoError(t, err)
	assert.Equal(t, frame.BEGIN, f.Command)
	assert.Equal(t, "tx-0", f.Header.Get(frame.Transaction))

	f, _ = p.Begin("", nil)
	assert.Equal(t, "tx-1", f.Header.Get(frame.Transaction))

	f, _ = p.Begin("mine", nil)
	assert.Equal(t, "mine", f.Header.Get(frame.Transaction))

	f, err = p.Commit("tx-0", nil)
	require.NoError(t, err)
	assert.Equal(t, frame.COMMIT, f.Command)
	assert.Equal(t, "tx-0", f.Header.Get(frame.Transaction))

	f, err = p.Abort("tx-1", nil)
	require.NoError(t, err)
	assert.Equal(t, frame.ABORT, f.Command)

	_, err = p.Commit("", nil)
	assert.Equal(t, ErrMissingHeader, errors.Cause(err))
	_, err = p.Abort("", nil)
	assert.Equal(t, ErrMissingHeader, errors.Cause(err))
}

func TestProtocol_Subscribe(t *testing.T) {
	p := NewV10()
	f, err := p.Subscribe("/topic/t", "sub-3", stomp.AckClientIndividual, frame.NewHeader("selector", "x > 1"))
	require.NoError(t, err)
	assert.Equal(t, frame.SUBSCRIBE, f.Command)
	assert.Equal(t, "/topic/t", f.Header.Get(frame.Destination))
	assert.Equal(t, "sub-3", f.Header.Get(frame.Id))
	assert.Equal(t, frame.AckClientIndividual, f.Header.Get(frame.Ack))
	assert.Equal(t, "x > 1", f.Header.Get("selector"))

	_, err = p.Subscribe("", "sub-3", stomp.AckAuto, nil)
	assert.Equal(t, ErrMissingHeader, errors.Cause(err))
	_, err = p.Subscribe("/topic/t", "", stomp.AckAuto, nil)
	assert.Equal(t, ErrMissingHeader, errors.Cause(err))
}

func TestProtocol_Unsubscribe(t *testing.T) {
	f, err := NewV10().Unsubscribe("", "/topic/t", nil)
	require.NoError(t, err)
	assert.Equal(t, "/topic/t", f.Header.Get(frame.Destination))

	f, err = NewV10().Unsubscribe("sub-1", "/topic/t", nil)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", f.Header.Get(frame.Id))
	_, ok := f.Header.Contains(frame.Destination)
	assert.False(t, ok)

	_, err = NewV11().Unsubscribe("", "/topic/t", nil)
	assert.Equal(t, ErrMissingHeader, errors.Cause(err))

	f, err = NewV12().Unsubscribe("sub-1", "", nil)
	require.NoError(t, err)
	assert.Equal(t, frame.UNSUBSCRIBE, f.Command)
}

func TestV10_Acknowledge(t *testing.T) {
	p := NewV10()
	f, err := p.Ack("m-1", "sub-0", frame.NewHeader(frame.Transaction, "tx-0"))
	require.NoError(t, err)
	assert.Equal(t, frame.ACK, f.Command)
	assert.Equal(t, "m-1", f.Header.Get(frame.MessageId))
	assert.Equal(t, "sub-0", f.Header.Get(frame.Subscription))
	assert.Equal(t, "tx-0", f.Header.Get(frame.Transaction))

	_, err = p.Nack("m-1", "sub-0", nil)
	assert.Equal(t, ErrUnsupportedOperation, err)

	_, err = p.Ack("", "sub-0", nil)
	assert.Equal(t, ErrMissingHeader, errors.Cause(err))
}

func TestV11_Acknowledge(t *testing.T) {
	p := NewV11()
	f, err := p.Nack("m-1", "sub-0", nil)
	require.NoError(t, err)
	assert.Equal(t, frame.NACK, f.Command)
	assert.Equal(t, "m-1", f.Header.Get(frame.MessageId))
	assert.Equal(t, "sub-0", f.Header.Get(frame.Subscription))
}

func TestV12_Acknowledge(t *testing.T) {
	p := NewV12()
	f, err := p.Ack("ack-7", "sub-0", nil)
	require.NoError(t, err)
	assert.Equal(t, frame.ACK, f.Command)
	assert.Equal(t, "ack-7", f.Header.Get(frame.Id))
	assert.Equal(t, "sub-0", f.Header.Get(frame.Subscription))
	_, ok := f.Header.Contains(frame.MessageId)
	assert.False(t, ok)

	f, err = p.Nack("ack-7", "sub-0", nil)
	require.NoError(t, err)
	assert.Equal(t, frame.NACK, f.Command)
	assert.Equal(t, "ack-7", f.Header.Get(frame.Id))
	assert.Equal(t, "sub-0", f.Header.Get(frame.Subscription))

	f, err = p.Ack("ack-8", "", nil)
	require.NoError(t, err)
	_, ok = f.Header.Contains(frame.Subscription)
	assert.False(t, ok)

	_, err = p.Ack("", "", nil)
	assert.Equal(t, ErrMissingHeader, errors.Cause(err))
}

func TestProtocol_MessageId(t *testing.T) {
	msg := frame.New(frame.MESSAGE,
		frame.MessageId, "m-1",
		frame.Ack, "ack-1",
		frame.Subscription, "sub-0")

	assert.Equal(t, "m-1", NewV10().MessageId(msg))
	assert.Equal(t, "m-1", NewV11().MessageId(msg))
	assert.Equal(t, "ack-1", NewV12().MessageId(msg))
	assert.Equal(t, "sub-0", NewV12().SubscriptionId(msg))

	noAck := frame.New(frame.MESSAGE, frame.MessageId, "m-2")
	assert.Equal(t, "m-2", NewV12().MessageId(noAck))
}

func TestProtocol_Heartbeats(t *testing.T) {
	assert.Nil(t, NewV10().HeartbeatMarker())
	assert.False(t, NewV10().SupportsHeartbeat())
	assert.Equal(t, []byte{'\n'}, NewV11().HeartbeatMarker())
	assert.True(t, NewV11().SupportsHeartbeat())
	assert.Equal(t, []byte{'\n'}, NewV12().HeartbeatMarker())
	assert.True(t, NewV12().SupportsHeartbeat())
}
