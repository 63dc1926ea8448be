// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package client

import (
	"github.com/go-stomp/stomp/v3/frame"
)

// Message is a MESSAGE frame delivered to a subscription. The identifiers
// used by Ack and Nack are captured when the frame is delivered.
type Message struct {
	*frame.Frame
	MessageId      string
	SubscriptionId string

	session *Session
}

func (m *Message) Destination() string {
	return m.Header.Get(frame.Destination)
}

func (m *Message) Ack(headers ...string) error {
	return m.session.Ack(m.MessageId, m.SubscriptionId, headers...)
}

// Nack fails with protocol.ErrUnsupportedOperation on STOMP 1.0.
func (m *Message) Nack(headers ...string) error {
	return m.session.Nack(m.MessageId, m.SubscriptionId, headers...)
}

// Transaction is a transaction opened with Session.Begin.
type Transaction struct {
	Id string

	session *Session
}

func (t *Transaction) Commit(headers ...string) error {
	return t.session.Commit(t.Id, headers...)
}

func (t *Transaction) Abort(headers ...string) error {
	return t.session.Abort(t.Id, headers...)
}

// Send publishes a message as part of the transaction.
func (t *Transaction) Send(destination string, body []byte, headers ...string) error {
	h := append([]string{frame.Transaction, t.Id}, headers...)
	return t.session.Send(destination, body, h...)
}
