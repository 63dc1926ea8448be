// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package protocol

import (
	"strconv"
	"sync/atomic"

	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
)

// V10 implements STOMP 1.0.
type V10 struct {
	transactions *uint64
}

func NewV10() *V10 {
	return &V10{transactions: new(uint64)}
}

func (p *V10) Version() stomp.Version {
	return stomp.V10
}

func (p *V10) Connect(header *frame.Header) *frame.Frame {
	return build(frame.CONNECT, header, frame.AcceptVersion, AcceptVersions)
}

func (p *V10) Disconnect(header *frame.Header) *frame.Frame {
	return build(frame.DISCONNECT, header)
}

func (p *V10) Send(destination string, body []byte, header *frame.Header) (*frame.Frame, error) {
	if destination == "" {
		return nil, missing(frame.SEND, frame.Destination)
	}
	f := build(frame.SEND, header, frame.Destination, destination)
	f.Body = body
	return f, nil
}

func (p *V10) Begin(transaction string, header *frame.Header) (*frame.Frame, error) {
	if transaction == "" {
		n := atomic.AddUint64(p.transactions, 1) - 1
		transaction = "tx-" + strconv.FormatUint(n, 10)
	}
	return build(frame.BEGIN, header, frame.Transaction, transaction), nil
}

func (p *V10) Commit(transaction string, header *frame.Header) (*frame.Frame, error) {
	if transaction == "" {
		return nil, missing(frame.COMMIT, frame.Transaction)
	}
	return build(frame.COMMIT, header, frame.Transaction, transaction), nil
}

func (p *V10) Abort(transaction string, header *frame.Header) (*frame.Frame, error) {
	if transaction == "" {
		return nil, missing(frame.ABORT, frame.Transaction)
	}
	return build(frame.ABORT, header, frame.Transaction, transaction), nil
}

func (p *V10) Ack(messageId, subscriptionId string, header *frame.Header) (*frame.Frame, error) {
	return p.acknowledge(frame.ACK, messageId, subscriptionId, header)
}

func (p *V10) Nack(string, string, *frame.Header) (*frame.Frame, error) {
	return nil, ErrUnsupportedOperation
}

func (p *V10) acknowledge(command, messageId, subscriptionId string, header *frame.Header) (*frame.Frame, error) {
	if messageId == "" {
		return nil, missing(command, frame.MessageId)
	}
	mandatory := []string{frame.MessageId, messageId}
	if subscriptionId != "" {
		mandatory = append(mandatory, frame.Subscription, subscriptionId)
	}
	return build(command, header, mandatory...), nil
}

func (p *V10) Subscribe(destination, id string, ack stomp.AckMode, header *frame.Header) (*frame.Frame, error) {
	if destination == "" {
		return nil, missing(frame.SUBSCRIBE, frame.Destination)
	}
	if id == "" {
		return nil, missing(frame.SUBSCRIBE, frame.Id)
	}
	return build(frame.SUBSCRIBE, header,
		frame.Destination, destination,
		frame.Id, id,
		frame.Ack, ack.String()), nil
}

// Unsubscribe identifies the subscription by id, or by destination when no
// id is known, as 1.0 allows.
func (p *V10) Unsubscribe(id, destination string, header *frame.Header) (*frame.Frame, error) {
	switch {
	case id != "":
		return build(frame.UNSUBSCRIBE, header, frame.Id, id), nil
	case destination != "":
		return build(frame.UNSUBSCRIBE, header, frame.Destination, destination), nil
	}
	return nil, missing(frame.UNSUBSCRIBE, frame.Id)
}

func (p *V10) MessageId(f *frame.Frame) string {
	return f.Header.Get(frame.MessageId)
}

func (p *V10) SubscriptionId(f *frame.Frame) string {
	return f.Header.Get(frame.Subscription)
}

func (p *V10) HeartbeatMarker() []byte {
	return nil
}

func (p *V10) SupportsHeartbeat() bool {
	return false
}
